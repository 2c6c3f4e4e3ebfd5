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

package bins

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const (
	// EmptyEps is the count below which a bin is considered empty.
	EmptyEps = 1e-6

	// NormEps is the tolerance for a sum of probabilities to count as 1.
	NormEps = 1e-10

	// AlwaysInterpolate can be passed as nMaxToInterpolate to
	// Interpolate to fill every empty bin by interpolation.
	AlwaysInterpolate = -1

	// NoTail can be passed as maxBin to Interpolate to not append a
	// decaying tail. Any negative maxBin has the same effect.
	NoTail = -1
)

var (
	// ErrNoFullBins is returned when a distribution has no bin with
	// a count of at least EmptyEps.
	ErrNoFullBins = errors.New("bins: no full bins")

	// ErrNotNormalized is returned when a distribution cannot be
	// normalized to a sum of 1.
	ErrNotNormalized = errors.New("bins: distribution not normalized")
)

// IsNormed checks whether total is 1 within NormEps.
func IsNormed(total float64) bool {
	return math.Abs(total-1) < NormEps
}

// A Distribution maps bin indices to weights.
type Distribution map[int]float64

// Add adds count to the given bin.
func (d Distribution) Add(bin int, count float64) {
	d[bin] += count
}

// Bins returns the sorted bin indices of d.
func (d Distribution) Bins() []int {
	result := make([]int, 0, len(d))
	for bin := range d {
		result = append(result, bin)
	}
	sort.Ints(result)
	return result
}

// EmptyBins returns the sorted indices of the bins below EmptyEps.
func (d Distribution) EmptyBins() (result []int) {
	for _, bin := range d.Bins() {
		if d[bin] < EmptyEps {
			result = append(result, bin)
		}
	}
	return result
}

// FullBins returns the sorted indices of the bins of at least EmptyEps.
func (d Distribution) FullBins() (result []int) {
	for _, bin := range d.Bins() {
		if d[bin] >= EmptyEps {
			result = append(result, bin)
		}
	}
	return result
}

// Total returns the sum of all weights.
func (d Distribution) Total() float64 {
	values := make([]float64, 0, len(d))
	for _, bin := range d.Bins() {
		values = append(values, d[bin])
	}
	return floats.Sum(values)
}

// Mean returns the weighted average bin index, or -1 if d has no weight.
func (d Distribution) Mean() float64 {
	var total, weights float64
	for _, bin := range d.Bins() {
		total += float64(bin) * d[bin]
		weights += d[bin]
	}
	if weights == 0 {
		return -1
	}
	return total / weights
}

// Normalize divides all weights by their total.
func (d Distribution) Normalize() error {
	total := d.Total()
	if total <= 0 || math.IsInf(total, 0) || math.IsNaN(total) {
		return fmt.Errorf("%w: total weight %v", ErrNotNormalized, total)
	}
	for bin := range d {
		d[bin] /= total
	}
	if testTotal := d.Total(); !IsNormed(testTotal) {
		return fmt.Errorf("%w: sum is %v after normalization", ErrNotNormalized, testTotal)
	}
	return nil
}

// findFullBin returns the member of fullBins closest to bin on the
// lower or upper side. If there is none on that side, the outermost
// full bin on that side is returned. fullBins must be sorted and
// non-empty.
func findFullBin(bin int, fullBins []int, lower bool) int {
	if lower {
		nearest := fullBins[0]
		for _, fb := range fullBins {
			if fb < bin && fb > nearest {
				nearest = fb
			}
		}
		return nearest
	}
	nearest := fullBins[len(fullBins)-1]
	for i := len(fullBins) - 1; i >= 0; i-- {
		if fb := fullBins[i]; fb > bin && fb < nearest {
			nearest = fb
		}
	}
	return nearest
}

// addEmptyBins adds a zero bin for every missing index between the
// smallest and largest bin.
func (d Distribution) addEmptyBins() {
	all := d.Bins()
	for bin := all[0]; bin < all[len(all)-1]; bin++ {
		if _, ok := d[bin]; !ok {
			d[bin] = 0
		}
	}
}

func maxInt(x, y int) int {
	if x > y {
		return x
	}
	return y
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

/*
Interpolate fills the empty bins of d.

Missing bins between the smallest and largest bin are added as empty
bins first. An empty bin is filled with the inverse-distance weighted
average of its nearest full neighbors if those neighbors together
hold fewer than nMaxToInterpolate counts (or nMaxToInterpolate is
AlwaysInterpolate), and with the square root of their sum otherwise.

If the last full bin holds fewer than nMaxToInterpolate counts, a
linearly decreasing tail is appended whose slope would reach zero as
far beyond the last full bin as that bin is from zero. The tail stops
before maxBin, so a negative maxBin such as NoTail adds no tail at all.

Interpolate does not normalize d.
*/
func (d Distribution) Interpolate(nMaxToInterpolate int, maxBin int, debug bool) error {
	if len(d) == 0 {
		return ErrNoFullBins
	}
	if debug {
		log.Printf("interpolating with %v: %v", nMaxToInterpolate, d.String())
	}
	d.addEmptyBins()
	fullBins := d.FullBins()
	if len(fullBins) == 0 {
		return ErrNoFullBins
	}
	nMax := float64(nMaxToInterpolate)
	for _, emptyBin := range d.EmptyBins() {
		lowerBin := findFullBin(emptyBin, fullBins, true)
		upperBin := findFullBin(emptyBin, fullBins, false)
		lowerValue, upperValue := d[lowerBin], d[upperBin]
		if nMaxToInterpolate == AlwaysInterpolate || lowerValue+upperValue < nMax {
			lowerWeight := 1 / float64(maxInt(1, absInt(emptyBin-lowerBin)))
			upperWeight := 1 / float64(maxInt(1, absInt(emptyBin-upperBin)))
			d[emptyBin] = (lowerWeight*lowerValue + upperWeight*upperValue) / (lowerWeight + upperWeight)
		} else {
			d[emptyBin] = math.Sqrt(lowerValue + upperValue)
		}
	}

	lastBin := fullBins[len(fullBins)-1]
	if lastValue := d[lastBin]; lastValue < nMax && lastBin > 0 {
		slope := -lastValue / float64(lastBin)
		value := lastValue
		for bin := lastBin + 1; bin <= 2*lastBin; bin++ {
			value += slope
			if value <= 0 || bin >= maxBin {
				break
			}
			d[bin] = value
		}
	}
	if debug {
		log.Printf("interpolated: %v", d.String())
	}
	return nil
}

// String formats the bins of d in order.
func (d Distribution) String() string {
	var buf []byte
	for i, bin := range d.Bins() {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, fmt.Sprintf("%d:%g", bin, d[bin])...)
	}
	return string(buf)
}
