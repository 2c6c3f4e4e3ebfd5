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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat"

	"github.com/exascience/vdjprep/internal"
)

// ErrNoMuteFreqs is returned when none of the approved genes has a
// mutation frequency table.
var ErrNoMuteFreqs = errors.New("params: no mutation frequencies")

// MuteFreqs holds the mutation frequencies of one gene.
type MuteFreqs struct {
	// Overall is the mean over all observed positions.
	Overall float64
	// ByPosition holds the frequency of each observed germline
	// position.
	ByPosition map[int]float64
}

// At returns the mutation frequency at the given germline position,
// falling back to the overall mean for unobserved positions.
func (freqs *MuteFreqs) At(position int) float64 {
	if freq, ok := freqs.ByPosition[position]; ok {
		return freq
	}
	return freqs.Overall
}

// MuteFreqsFilename returns the name of the mutation frequency table
// of the given gene.
func MuteFreqsFilename(gene string) string {
	return filepath.Join("mute-freqs", SanitizeName(gene)+".csv")
}

type muteObservation struct {
	freq, weight float64
}

func parseMuteObservations(filename string) (interface{}, error) {
	table, err := readCSV(filename)
	if err != nil {
		return nil, err
	}
	var indices [4]int
	for i, column := range []string{"position", "mute_freq", "lo_err", "hi_err"} {
		if indices[i], err = table.column(column); err != nil {
			return nil, err
		}
	}
	observations := make(map[int]muteObservation, len(table.records))
	for line, record := range table.records {
		position, err := internal.ParseInt("position", record[indices[0]])
		if err != nil {
			return nil, fmt.Errorf("%v line %v: %w", filename, line+2, err)
		}
		var values [3]float64
		for i, field := range []string{"mute_freq", "lo_err", "hi_err"} {
			if values[i], err = internal.ParseFloat(field, record[indices[i+1]]); err != nil {
				return nil, fmt.Errorf("%v line %v: %w", filename, line+2, err)
			}
			if values[i] < 0 {
				return nil, fmt.Errorf("%v line %v: negative %v", filename, line+2, field)
			}
		}
		// inverse square of the half-width of the uncertainty interval
		weight := 1.0
		if halfWidth := (values[2] - values[1]) / 2; halfWidth > 0 {
			weight = 1 / (halfWidth * halfWidth)
		}
		observations[position] = muteObservation{freq: values[0], weight: weight}
	}
	return observations, nil
}

// MuteFreqs returns the mutation frequencies of the given gene, pooled
// over the approved genes. Approved genes without a mutation frequency
// table are skipped. Each position gets the inverse-error-weighted
// average over the genes in which it was observed.
func (dir *Dir) MuteFreqs(gene string, approvedGenes []string) (*MuteFreqs, error) {
	if approvedGenes == nil {
		approvedGenes = []string{gene}
	}
	freqs := make(map[int][]float64)
	weights := make(map[int][]float64)
	var allFreqs, allWeights []float64
	for _, g := range approvedGenes {
		filename := MuteFreqsFilename(g)
		if _, err := os.Stat(filepath.Join(dir.Path, filename)); os.IsNotExist(err) {
			continue
		}
		observations, err := dir.cached(filename, parseMuteObservations)
		if err != nil {
			return nil, err
		}
		for position, obs := range observations.(map[int]muteObservation) {
			freqs[position] = append(freqs[position], obs.freq)
			weights[position] = append(weights[position], obs.weight)
			allFreqs = append(allFreqs, obs.freq)
			allWeights = append(allWeights, obs.weight)
		}
	}
	if len(allFreqs) == 0 {
		return nil, fmt.Errorf("%w for %v in %v", ErrNoMuteFreqs, gene, dir.Path)
	}
	result := &MuteFreqs{
		Overall:    stat.Mean(allFreqs, allWeights),
		ByPosition: make(map[int]float64, len(freqs)),
	}
	for position, f := range freqs {
		result.ByPosition[position] = stat.Mean(f, weights[position])
	}
	return result, nil
}
