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

package glomerator

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/exascience/vdjprep/internal"
)

// ReadNaiveSeqs reads the inferred naive sequence of every input
// sequence from a CSV file with the columns unique_id and naive_seq.
func ReadNaiveSeqs(filename string) (naiveSeqs map[string]string, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer internal.Close(f, &err)
	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading %v: %w", filename, err)
	}
	idIndex, seqIndex := -1, -1
	for i, column := range header {
		switch column {
		case "unique_id":
			idIndex = i
		case "naive_seq":
			seqIndex = i
		}
	}
	if idIndex < 0 || seqIndex < 0 {
		return nil, fmt.Errorf("%v needs unique_id and naive_seq columns", filename)
	}
	naiveSeqs = make(map[string]string)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("error reading %v: %w", filename, err)
		}
		id := record[idIndex]
		if _, ok := naiveSeqs[id]; ok {
			return nil, fmt.Errorf("%v line %v: duplicate unique_id %v", filename, line, id)
		}
		naiveSeqs[id] = strings.ToUpper(record[seqIndex])
	}
	return naiveSeqs, nil
}
