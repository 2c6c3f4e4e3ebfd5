// vdjprep: HMM construction and clonal partitioning for B-cell receptor sequences.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/vdjprep/blob/master/LICENSE.txt>.

package internal

import (
	"fmt"
	"strconv"
)

// ParseInt is strconv.Atoi with the offending field named in the error.
func ParseInt(field, s string) (int, error) {
	result, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer in field %v: %w", field, err)
	}
	return result, nil
}

// ParseFloat is strconv.ParseFloat with the offending field named in
// the error.
func ParseFloat(field, s string) (float64, error) {
	result, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in field %v: %w", field, err)
	}
	return result, nil
}

// FormatFloat formats probabilities and log-probabilities the same way
// everywhere output files are written, so that they read back exactly.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
