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
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrEmptyPath is returned when removing a partition from a path that
// has none.
var ErrEmptyPath = errors.New("clusterpath: empty path")

// NoInitialPathIndex marks a path that does not descend from a single
// previous path, such as a path merged from several processes.
const NoInitialPathIndex = -1

// NoAdjMI marks a step without adjusted mutual information.
const NoAdjMI = -1.0

// A ClusterPath is a sequence of partitions, from the one with the most
// clusters to the one with the fewest, with per-step statistics. All
// slices have the same length.
type ClusterPath struct {
	// InitialPathIndex is the index of the path of the previous
	// iteration that this path continues.
	InitialPathIndex int
	Partitions       []Partition
	Logprobs         []float64
	NProcs           []int
	Logweights       []float64
	AdjMIs           []float64
}

// New allocates an empty path.
func New(initialPathIndex int) *ClusterPath {
	return &ClusterPath{InitialPathIndex: initialPathIndex}
}

// Len returns the number of steps of the path.
func (path *ClusterPath) Len() int {
	return len(path.Partitions)
}

// AddPartition appends one step to the path.
func (path *ClusterPath) AddPartition(partition Partition, logprob float64, nProcs int, logweight, adjMI float64) {
	path.Partitions = append(path.Partitions, partition)
	path.Logprobs = append(path.Logprobs, logprob)
	path.NProcs = append(path.NProcs, nProcs)
	path.Logweights = append(path.Logweights, logweight)
	path.AdjMIs = append(path.AdjMIs, adjMI)
}

// RemoveFirstPartition drops the first step of the path.
func (path *ClusterPath) RemoveFirstPartition() error {
	if len(path.Partitions) == 0 {
		return ErrEmptyPath
	}
	path.Partitions = path.Partitions[1:]
	path.Logprobs = path.Logprobs[1:]
	path.NProcs = path.NProcs[1:]
	path.Logweights = path.Logweights[1:]
	path.AdjMIs = path.AdjMIs[1:]
	return nil
}

// Concatenate returns a new path with the steps of prev followed by
// the steps of cur. Partitions are copied.
func Concatenate(prev, cur *ClusterPath) *ClusterPath {
	result := New(NoInitialPathIndex)
	for _, path := range []*ClusterPath{prev, cur} {
		for i, partition := range path.Partitions {
			result.AddPartition(partition.Clone(), path.Logprobs[i], path.NProcs[i], path.Logweights[i], path.AdjMIs[i])
		}
	}
	return result
}

// logPotentialParents returns the log of the number of ways in which
// the partition can be reached by merging two clusters, that is the
// sum over clusters of 2^(n-1) - 1, where n is the cluster size, but
// at least 1.
func logPotentialParents(partition Partition) float64 {
	var terms []float64
	for _, cluster := range partition {
		if n := len(cluster); n > 1 {
			// log(2^(n-1) - 1)
			terms = append(terms, float64(n-1)*math.Ln2+math.Log1p(-math.Exp2(-float64(n-1))))
		}
	}
	if len(terms) == 0 {
		return 0
	}
	return math.Max(0, floats.LogSumExp(terms))
}

// SetSyntheticLogweightHistory recomputes the log weights of all steps,
// so that each step carries the combinatorial factors of all steps
// before it.
func (path *ClusterPath) SetSyntheticLogweightHistory() {
	var last float64
	for i, partition := range path.Partitions {
		last -= logPotentialParents(partition)
		path.Logweights[i] = last
	}
}

// BestIndex returns the index of the step with the highest log
// probability; the first one on ties. It returns -1 for an empty path.
func (path *ClusterPath) BestIndex() int {
	best := -1
	for i, logprob := range path.Logprobs {
		if best < 0 || logprob > path.Logprobs[best] {
			best = i
		}
	}
	return best
}

// Best returns the partition with the highest log probability.
func (path *ClusterPath) Best() Partition {
	if best := path.BestIndex(); best >= 0 {
		return path.Partitions[best]
	}
	return nil
}

// Print writes a human-readable listing of the path to w, with an
// extra label in front of every line. The best step is marked with an
// asterisk.
func (path *ClusterPath) Print(w io.Writer, label string) error {
	if _, err := fmt.Fprintf(w, "%s %10s %9s %7s %9s %7s  clusters\n", label, "logprob", "delta", "n_procs", "logweight", "adj_mi"); err != nil {
		return err
	}
	best := path.BestIndex()
	for i, partition := range path.Partitions {
		var delta float64
		if i > 0 {
			delta = path.Logprobs[i] - path.Logprobs[i-1]
		}
		mark := " "
		if i == best {
			mark = "*"
		}
		adjMI := "-"
		if path.AdjMIs[i] != NoAdjMI {
			adjMI = fmt.Sprintf("%.3f", path.AdjMIs[i])
		}
		if _, err := fmt.Fprintf(w, "%s%s%10.2f %9.2f %7d %9.2f %7s  %d: %v\n",
			label, mark, path.Logprobs[i], delta, path.NProcs[i], path.Logweights[i], adjMI, len(partition), partition); err != nil {
			return err
		}
	}
	return nil
}
