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

package params

import (
	"fmt"
	"log"

	"github.com/exascience/vdjprep/bins"
	"github.com/exascience/vdjprep/internal"
)

// InsertionContentFilename returns the name of the base content table
// of the given insertion, such as "vd".
func InsertionContentFilename(insertion string) string {
	return insertion + "_insertion_content.csv"
}

// UniformContent returns equal probabilities for all nukes.
func UniformContent() map[string]float64 {
	content := make(map[string]float64, len(Nukes))
	for _, nuke := range Nukes {
		content[nuke] = 1 / float64(len(Nukes))
	}
	return content
}

func parseInsertionContent(insertion string) func(string) (interface{}, error) {
	return func(filename string) (interface{}, error) {
		table, err := readCSV(filename)
		if err != nil {
			return nil, err
		}
		column := insertion + "_insertion_content"
		baseIndex, err := table.column(column)
		if err != nil {
			return nil, err
		}
		countIndex, err := table.column("count")
		if err != nil {
			return nil, err
		}
		counts := make(map[string]int, len(Nukes))
		var total int
		for line, record := range table.records {
			count, err := internal.ParseInt("count", record[countIndex])
			if err != nil {
				return nil, fmt.Errorf("%v line %v: %w", filename, line+2, err)
			}
			counts[record[baseIndex]] = count
			total += count
		}
		if total == 0 {
			return nil, fmt.Errorf("%w: zero total count in %v", ErrEmptyTable, filename)
		}
		content := make(map[string]float64, len(Nukes))
		var sum float64
		for _, nuke := range Nukes {
			if _, ok := counts[nuke]; !ok {
				log.Printf("Warning: %v not in insertion content probs of %v, adding with zero.\n", nuke, filename)
			}
			content[nuke] = float64(counts[nuke]) / float64(total)
			sum += content[nuke]
		}
		if !bins.IsNormed(sum) {
			return nil, fmt.Errorf("%w: insertion content in %v sums to %v", bins.ErrNotNormalized, filename, sum)
		}
		return content, nil
	}
}

// InsertionContent returns the base content of the given insertion.
// The result must not be modified.
func (dir *Dir) InsertionContent(insertion string) (map[string]float64, error) {
	content, err := dir.cached(InsertionContentFilename(insertion), parseInsertionContent(insertion))
	if err != nil {
		return nil, err
	}
	return content.(map[string]float64), nil
}
