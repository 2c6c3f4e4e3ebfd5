package internal

// StringHash returns a hash value for the given string value.
func StringHash(s string) (hash uint64) {
	// DJBX33A
	hash = 5381
	for _, b := range s {
		hash = ((hash << 5) + hash) + uint64(b)
	}
	return
}

// StringPairHash returns a hash value for the given pair of strings
// that does not depend on their order.
func StringPairHash(s1, s2 string) uint64 {
	return StringHash(s1) ^ StringHash(s2)
}
