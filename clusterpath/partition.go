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
	"strings"

	"github.com/willf/bitset"
)

var (
	// ErrEmptyPartition is returned for partitions without clusters,
	// or with an empty cluster or identifier.
	ErrEmptyPartition = errors.New("clusterpath: empty partition")

	// ErrDuplicateID is returned when an identifier occurs more than
	// once in a partition.
	ErrDuplicateID = errors.New("clusterpath: duplicate identifier")

	// ErrMissingID is returned when a partition does not cover a set
	// of identifiers.
	ErrMissingID = errors.New("clusterpath: missing identifier")
)

// A Cluster is a list of sequence identifiers.
type Cluster []string

// A Partition is a list of disjoint clusters.
type Partition []Cluster

// ParsePartition parses the string representation of a partition.
func ParsePartition(s string) (Partition, error) {
	if s == "" {
		return nil, ErrEmptyPartition
	}
	clusters := strings.Split(s, ";")
	partition := make(Partition, 0, len(clusters))
	for _, cluster := range clusters {
		partition = append(partition, Cluster(strings.Split(cluster, ":")))
	}
	return partition, nil
}

// String formats the partition the way ParsePartition reads it.
func (partition Partition) String() string {
	var builder strings.Builder
	for i, cluster := range partition {
		if i > 0 {
			builder.WriteByte(';')
		}
		builder.WriteString(strings.Join(cluster, ":"))
	}
	return builder.String()
}

// Clone returns a deep copy of the partition.
func (partition Partition) Clone() Partition {
	result := make(Partition, len(partition))
	for i, cluster := range partition {
		result[i] = append(Cluster(nil), cluster...)
	}
	return result
}

// NIDs returns the total number of identifiers.
func (partition Partition) NIDs() (n int) {
	for _, cluster := range partition {
		n += len(cluster)
	}
	return n
}

// Sizes returns the cluster sizes.
func (partition Partition) Sizes() []int {
	sizes := make([]int, len(partition))
	for i, cluster := range partition {
		sizes[i] = len(cluster)
	}
	return sizes
}

// index assigns consecutive indices to the identifiers of the
// partition and checks that each occurs exactly once.
func (partition Partition) index() (map[string]uint, error) {
	if len(partition) == 0 {
		return nil, ErrEmptyPartition
	}
	indices := make(map[string]uint, partition.NIDs())
	for _, cluster := range partition {
		if len(cluster) == 0 {
			return nil, fmt.Errorf("%w: empty cluster", ErrEmptyPartition)
		}
		for _, id := range cluster {
			if id == "" {
				return nil, fmt.Errorf("%w: empty identifier", ErrEmptyPartition)
			}
			if _, ok := indices[id]; ok {
				return nil, fmt.Errorf("%w %v", ErrDuplicateID, id)
			}
			indices[id] = uint(len(indices))
		}
	}
	return indices, nil
}

// Validate checks that the partition is not empty, that no cluster is
// empty, and that every identifier occurs exactly once.
func (partition Partition) Validate() error {
	_, err := partition.index()
	return err
}

// CheckCovers checks that the partition is valid, and that it contains
// exactly the given identifiers.
func (partition Partition) CheckCovers(ids []string) error {
	indices, err := partition.index()
	if err != nil {
		return err
	}
	covered := bitset.New(uint(len(indices)))
	for _, id := range ids {
		index, ok := indices[id]
		if !ok {
			return fmt.Errorf("%w %v", ErrMissingID, id)
		}
		covered.Set(index)
	}
	if !covered.All() {
		for id, index := range indices {
			if !covered.Test(index) {
				return fmt.Errorf("%w: unexpected %v", ErrMissingID, id)
			}
		}
	}
	return nil
}
