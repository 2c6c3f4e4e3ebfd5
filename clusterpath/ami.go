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
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/exascience/vdjprep/internal"
)

// Truth maps sequence identifiers to the identifier of the
// rearrangement event they descend from.
type Truth map[string]string

// ReadTruth reads a reference clustering from a CSV file with the
// columns unique_id and reco_id.
func ReadTruth(filename string) (truth Truth, err error) {
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
	idIndex, recoIndex := -1, -1
	for i, column := range header {
		switch column {
		case "unique_id":
			idIndex = i
		case "reco_id":
			recoIndex = i
		}
	}
	if idIndex < 0 || recoIndex < 0 {
		return nil, fmt.Errorf("%v needs unique_id and reco_id columns", filename)
	}
	truth = make(Truth)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("error reading %v: %w", filename, err)
		}
		truth[record[idIndex]] = record[recoIndex]
	}
	return truth, nil
}

// Partition returns the true partition, with clusters ordered by
// event identifier and identifiers sorted within clusters.
func (truth Truth) Partition() Partition {
	clusters := make(map[string]Cluster)
	var events []string
	for id, event := range truth {
		if _, ok := clusters[event]; !ok {
			events = append(events, event)
		}
		clusters[event] = append(clusters[event], id)
	}
	sort.Strings(events)
	partition := make(Partition, 0, len(events))
	for _, event := range events {
		cluster := clusters[event]
		sort.Strings(cluster)
		partition = append(partition, cluster)
	}
	return partition
}

func logFactorial(n int) float64 {
	result, _ := math.Lgamma(float64(n + 1))
	return result
}

func entropy(counts []int, n int) float64 {
	p := make([]float64, len(counts))
	for i, count := range counts {
		p[i] = float64(count) / float64(n)
	}
	return stat.Entropy(p)
}

// expectedMutualInformation is the expected mutual information of two
// random clusterings with the given cluster sizes, under the
// hypergeometric model.
func expectedMutualInformation(a, b []int, n int) float64 {
	N := float64(n)
	logFactN := logFactorial(n)
	var emi float64
	for _, ai := range a {
		for _, bj := range b {
			start := ai + bj - n
			if start < 1 {
				start = 1
			}
			end := ai
			if bj < end {
				end = bj
			}
			logNumerator := logFactorial(ai) + logFactorial(bj) + logFactorial(n-ai) + logFactorial(n-bj) - logFactN
			for nij := start; nij <= end; nij++ {
				term := float64(nij) / N * math.Log(N*float64(nij)/(float64(ai)*float64(bj)))
				logProb := logNumerator - logFactorial(nij) - logFactorial(ai-nij) - logFactorial(bj-nij) - logFactorial(n-ai-bj+nij)
				emi += term * math.Exp(logProb)
			}
		}
	}
	return emi
}

// AdjustedMutualInformation compares the partition to the truth, with
// arithmetic-mean normalization. Every identifier of the partition
// must occur in the truth.
func AdjustedMutualInformation(partition Partition, truth Truth) (float64, error) {
	if err := partition.Validate(); err != nil {
		return 0, err
	}
	n := partition.NIDs()
	eventIndex := make(map[string]int)
	var eventSizes []int
	contingency := make([]map[int]int, len(partition))
	for i, cluster := range partition {
		contingency[i] = make(map[int]int)
		for _, id := range cluster {
			event, ok := truth[id]
			if !ok {
				return 0, fmt.Errorf("%w %v in true partition", ErrMissingID, id)
			}
			j, ok := eventIndex[event]
			if !ok {
				j = len(eventSizes)
				eventIndex[event] = j
				eventSizes = append(eventSizes, 0)
			}
			eventSizes[j]++
			contingency[i][j]++
		}
	}
	clusterSizes := partition.Sizes()
	if len(clusterSizes) == len(eventSizes) && (len(clusterSizes) == 1 || len(clusterSizes) == n) {
		return 1, nil
	}

	N := float64(n)
	var mi float64
	for i, row := range contingency {
		for j, nij := range row {
			mi += float64(nij) / N * math.Log(N*float64(nij)/(float64(clusterSizes[i])*float64(eventSizes[j])))
		}
	}
	emi := expectedMutualInformation(clusterSizes, eventSizes, n)
	normalizer := (entropy(clusterSizes, n) + entropy(eventSizes, n)) / 2
	denominator := normalizer - emi
	const eps = 2.220446049250313e-16
	if denominator < 0 {
		denominator = math.Min(denominator, -eps)
	} else {
		denominator = math.Max(denominator, eps)
	}
	return (mi - emi) / denominator, nil
}
