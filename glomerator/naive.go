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
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/exascience/pargo/parallel"
	"github.com/exascience/pargo/sync"

	"github.com/exascience/vdjprep/clusterpath"
	"github.com/exascience/vdjprep/internal"
)

var (
	// ErrBadClusterCount is returned when asking for fewer than one
	// cluster.
	ErrBadClusterCount = errors.New("glomerator: invalid number of clusters")

	// ErrEmptySequence is returned when a naive sequence is empty.
	ErrEmptySequence = errors.New("glomerator: empty naive sequence")
)

// Homogenization stops when the largest cluster is at most this many
// times as large as the smallest, or at most maxHomogenizedDifference
// elements larger.
const (
	maxHomogenizedRatio      = 1.1
	maxHomogenizedDifference = 3
)

type idPair struct {
	a, b string
}

func newIDPair(a, b string) idPair {
	if b < a {
		a, b = b, a
	}
	return idPair{a, b}
}

// Hash implements the method of the sync.Hasher interface.
func (pair idPair) Hash() uint64 {
	return internal.StringPairHash(pair.a, pair.b)
}

// HammingFraction returns the fraction of differing positions of two
// sequences. Of a longer sequence, only the rightmost bases are
// compared.
func HammingFraction(seq1, seq2 string) float64 {
	n := len(seq1)
	if len(seq2) < n {
		n = len(seq2)
	}
	seq1, seq2 = seq1[len(seq1)-n:], seq2[len(seq2)-n:]
	var mismatches int
	for i := 0; i < n; i++ {
		if seq1[i] != seq2[i] {
			mismatches++
		}
	}
	return float64(mismatches) / float64(n)
}

// naiveSession is the state of one call to NaiveSeqGlomerate.
type naiveSession struct {
	naiveSeqs     map[string]string
	clusters      clusterpath.Partition
	maxPerCluster int

	// once set, pairs of clusters may be merged regardless of size
	mergeWhateverYouGot bool

	distances *sync.Map
	debug     bool
}

func (s *naiveSession) distance(a, b string) float64 {
	pair := newIDPair(a, b)
	if d, ok := s.distances.Load(pair); ok {
		return d.(float64)
	}
	d, _ := s.distances.LoadOrStore(pair, HammingFraction(s.naiveSeqs[a], s.naiveSeqs[b]))
	return d.(float64)
}

func (s *naiveSession) minDistance(a, b clusterpath.Cluster) float64 {
	result := -1.0
	for _, idA := range a {
		for _, idB := range b {
			if d := s.distance(idA, idB); result < 0 || d < result {
				result = d
			}
		}
	}
	return result
}

type mergeCandidate struct {
	i, j     int
	distance float64
	found    bool
	skipped  int
}

// clustersToMerge finds the pair of clusters with the smallest
// distance between any two of their members, considering pairs in
// order and keeping the first of equally distant pairs.
func (s *naiveSession) clustersToMerge() mergeCandidate {
	n := len(s.clusters)
	return parallel.RangeReduce(0, n, 0, func(low, high int) interface{} {
		var best mergeCandidate
		for i := low; i < high; i++ {
			for j := i + 1; j < n; j++ {
				a, b := s.clusters[i], s.clusters[j]
				if len(a)+len(b) > s.maxPerCluster && !s.mergeWhateverYouGot {
					best.skipped++
					continue
				}
				if d := s.minDistance(a, b); !best.found || d < best.distance {
					best = mergeCandidate{i: i, j: j, distance: d, found: true, skipped: best.skipped}
				}
			}
		}
		return best
	}, func(x, y interface{}) interface{} {
		left, right := x.(mergeCandidate), y.(mergeCandidate)
		skipped := left.skipped + right.skipped
		if right.found && (!left.found || right.distance < left.distance) {
			left = right
		}
		left.skipped = skipped
		return left
	}).(mergeCandidate)
}

func (s *naiveSession) glomerate() {
	if s.debug {
		log.Printf("    current %v\n", s.clusters.Sizes())
	}
	candidate := s.clustersToMerge()
	if s.debug && candidate.skipped > 0 {
		log.Printf("      skipped: %v\n", candidate.skipped)
	}
	if !candidate.found {
		if s.debug {
			log.Println("    no pair of clusters small enough to merge")
		}
		s.mergeWhateverYouGot = true
		return
	}
	a, b := s.clusters[candidate.i], s.clusters[candidate.j]
	if s.debug {
		log.Printf("    merging %v %v\n", len(a), len(b))
	}
	merged := make(clusterpath.Cluster, 0, len(a)+len(b))
	merged = append(append(merged, a...), b...)
	clusters := make(clusterpath.Partition, 0, len(s.clusters)-1)
	for k, cluster := range s.clusters {
		if k != candidate.i && k != candidate.j {
			clusters = append(clusters, cluster)
		}
	}
	s.clusters = append(clusters, merged)
}

// NaiveSeqGlomerate agglomerates the identifiers of naiveSeqs until
// nClusters clusters are left, always merging the two clusters with
// the closest pair of naive sequences. Merges that result in a cluster
// larger than the average target size are only considered when no
// other merge is possible. Afterwards, cluster sizes are roughly
// equalized.
func (g *Glomerator) NaiveSeqGlomerate(naiveSeqs map[string]string, nClusters int) (clusterpath.Partition, error) {
	if nClusters < 1 {
		return nil, fmt.Errorf("%w: %v", ErrBadClusterCount, nClusters)
	}
	if len(naiveSeqs) == 0 {
		return nil, clusterpath.ErrEmptyPartition
	}
	start := time.Now()
	ids := make([]string, 0, len(naiveSeqs))
	for id, seq := range naiveSeqs {
		if seq == "" {
			return nil, fmt.Errorf("%w for %v", ErrEmptySequence, id)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	s := &naiveSession{
		naiveSeqs:     naiveSeqs,
		clusters:      make(clusterpath.Partition, len(ids)),
		maxPerCluster: (len(ids) + nClusters - 1) / nClusters,
		distances:     sync.NewMap(0),
		debug:         g.Debug,
	}
	for i, id := range ids {
		s.clusters[i] = clusterpath.Cluster{id}
	}
	if s.debug {
		log.Printf("  max %v per cluster\n", s.maxPerCluster)
	}
	for len(s.clusters) > nClusters {
		s.glomerate()
	}
	clusters := Homogenize(s.clusters, s.debug)
	if g.Debug {
		log.Printf("    divvy time: %.3f\n", time.Since(start).Seconds())
	}
	return clusters, nil
}

func sortBySize(clusters clusterpath.Partition) {
	sort.SliceStable(clusters, func(i, j int) bool {
		return len(clusters[i]) < len(clusters[j])
	})
}

func needsHomogenization(clusters clusterpath.Partition) bool {
	smallest, largest := len(clusters[0]), len(clusters[len(clusters)-1])
	return float64(largest)/float64(smallest) > maxHomogenizedRatio && largest-smallest > maxHomogenizedDifference
}

// Homogenize sorts the clusters by size and then repeatedly moves
// elements from the end of the largest cluster to the end of the
// smallest, until their sizes are close enough. It makes at most as
// many passes as there are clusters. Partitions with fewer than two
// clusters are returned unchanged.
func Homogenize(clusters clusterpath.Partition, debug bool) clusterpath.Partition {
	if len(clusters) < 2 {
		return clusters
	}
	sortBySize(clusters)
	for passes := 0; passes < len(clusters) && needsHomogenization(clusters); passes++ {
		first, last := clusters[0], clusters[len(clusters)-1]
		if debug {
			log.Printf("  homogenizing %v %v, before %v\n", len(first), len(last), clusters.Sizes())
		}
		keep := (len(first) + len(last) + 1) / 2
		clusters[0] = append(append(clusterpath.Cluster(nil), first...), last[keep:]...)
		clusters[len(clusters)-1] = last[:keep:keep]
		sortBySize(clusters)
		if debug {
			log.Printf("    after %v\n", clusters.Sizes())
		}
	}
	return clusters
}
