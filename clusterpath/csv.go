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

package clusterpath

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/exascience/vdjprep/internal"
)

// Columns of the partition files.
const (
	PathIndexColumn        = "path_index"
	InitialPathIndexColumn = "initial_path_index"
	LogprobColumn          = "logprob"
	NProcsColumn           = "n_procs"
	LogweightColumn        = "logweight"
	AdjMIColumn            = "adj_mi"
	PartitionColumn        = "partition"
)

// Header lists the columns in the order WriteCSV writes them.
var Header = []string{
	PathIndexColumn,
	InitialPathIndexColumn,
	LogprobColumn,
	NProcsColumn,
	LogweightColumn,
	AdjMIColumn,
	PartitionColumn,
}

// WriteCSV writes one row per step of each path, using the index of
// the path in paths as path index.
func WriteCSV(w io.Writer, paths []*ClusterPath) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	record := make([]string, len(Header))
	for pathIndex, path := range paths {
		record[0] = strconv.Itoa(pathIndex)
		record[1] = strconv.Itoa(path.InitialPathIndex)
		for i, partition := range path.Partitions {
			record[2] = internal.FormatFloat(path.Logprobs[i])
			record[3] = strconv.Itoa(path.NProcs[i])
			record[4] = internal.FormatFloat(path.Logweights[i])
			record[5] = internal.FormatFloat(path.AdjMIs[i])
			record[6] = partition.String()
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}
