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

package hmm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/vdjprep/params"
)

const (
	dGene     = "IGHD1-1*01"
	dGermline = "ACGTAC"
	jGene     = "IGHJ4*02"
	jGermline = "ACTACTTTGACTAC"
)

var parameterFiles = map[string]string{
	"d_gene-probs.csv": "d_gene,count\nIGHD1-1*01,50\nIGHD1-1*02,2\n",
	"d_gene-d_5p_del-probs.csv": `d_5p_del,d_gene,count
0,IGHD1-1*01,30
1,IGHD1-1*01,10
2,IGHD1-1*01,5
`,
	"d_gene-d_3p_del-probs.csv": `d_3p_del,d_gene,count
0,IGHD1-1*01,30
1,IGHD1-1*01,10
3,IGHD1-1*01,5
`,
	"d_gene-vd_insertion-probs.csv": `vd_insertion,d_gene,count
0,IGHD1-1*01,20
1,IGHD1-1*01,10
2,IGHD1-1*01,10
4,IGHD1-1*01,5
`,
	"vd_insertion_content.csv": "vd_insertion_content,count\nA,1\nC,1\nG,1\nT,1\n",
	"mute-freqs/IGHD1-1_star_01.csv": `position,mute_freq,lo_err,hi_err
0,0.1,0.05,0.15
1,0.0,0.0,0.0
`,
	"j_gene-probs.csv": "j_gene,count\nIGHJ4*02,100\n",
	"j_gene-j_5p_del-probs.csv": `j_5p_del,j_gene,count
0,IGHJ4*02,50
2,IGHJ4*02,30
`,
	"j_gene-j_3p_del-probs.csv": "j_3p_del,j_gene,count\n0,IGHJ4*02,80\n",
	"j_gene-dj_insertion-probs.csv": `dj_insertion,j_gene,count
0,IGHJ4*02,40
3,IGHJ4*02,40
`,
	"jf_insertion-probs.csv":   "jf_insertion,count\n0,90\n",
	"dj_insertion_content.csv": "dj_insertion_content,count\nA,1\nC,2\nG,3\nT,4\n",
	"jf_insertion_content.csv": "jf_insertion_content,count\nA,4\nC,3\nG,2\nT,1\n",
	"mute-freqs/IGHJ4_star_02.csv": `position,mute_freq,lo_err,hi_err
3,0.2,0.1,0.3
`,
}

func newParamDir(t *testing.T) *params.Dir {
	t.Helper()
	tmp := t.TempDir()
	for name, contents := range parameterFiles {
		path := filepath.Join(tmp, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	}
	return params.NewDir(tmp)
}

func build(t *testing.T, gene, germline string, options WriterOptions) *HMM {
	t.Helper()
	w, err := NewWriter(newParamDir(t), gene, germline, options)
	require.NoError(t, err)
	hmm, err := w.Build()
	require.NoError(t, err)
	for _, state := range hmm.States {
		require.NoError(t, state.Check(), state.Name)
	}
	return hmm
}

func stateNames(hmm *HMM) (names []string) {
	for _, state := range hmm.States {
		names = append(names, state.Name)
	}
	return names
}

func TestBuildDGene(t *testing.T) {
	hmm := build(t, dGene, dGermline, DefaultWriterOptions())
	assert.Equal(t, "IGHD1-1_star_01", hmm.Name)
	assert.InDelta(t, 50.0/52, hmm.Extras["gene_prob"], 1e-12)
	assert.Equal(t, []string{
		"init", "insert_left_A", "insert_left_C", "insert_left_G", "insert_left_T",
		"IGHD1-1_star_01_0", "IGHD1-1_star_01_1", "IGHD1-1_star_01_2",
		"IGHD1-1_star_01_3", "IGHD1-1_star_01_4", "IGHD1-1_star_01_5",
	}, stateNames(hmm))

	// vd insertions after smoothing: 20 10 10 7.5 5
	zeroInsertion := 20.0 / 52.5
	start := hmm.State(InitState)
	assert.Nil(t, start.Emissions)
	assert.InDelta(t, (1-zeroInsertion)*0.25, start.Transitions["insert_left_G"], 1e-12)
	// d 5' erosions after smoothing: 30 10 5 2.5
	assert.InDelta(t, zeroInsertion*30/47.5, start.Transitions["IGHD1-1_star_01_0"], 1e-12)
	assert.InDelta(t, zeroInsertion*2.5/47.5, start.Transitions["IGHD1-1_star_01_3"], 1e-12)
	assert.NotContains(t, start.Transitions, "IGHD1-1_star_01_4")

	// mean insertion length 72.5/52.5
	selfProb := 1 - 52.5/72.5
	insert := hmm.State("insert_left_C")
	assert.InDelta(t, selfProb*0.25, insert.Transitions["insert_left_C"], 1e-12)
	assert.InDelta(t, (1-selfProb)*10/47.5, insert.Transitions["IGHD1-1_star_01_1"], 1e-12)
	assert.InDelta(t, 1-insert.Emissions.Probs["C"], 3*insert.Emissions.Probs["A"], 1e-12)

	// d 3' erosions after smoothing: 30 10 7.5 5 10/3 5/3
	first := hmm.State("IGHD1-1_star_01_0")
	assert.Equal(t, "A", first.Extras["germline"])
	exit := (5.0 / 3) / 57.5
	assert.InDelta(t, 1-exit, first.Transitions["IGHD1-1_star_01_1"], 1e-12)
	assert.InDelta(t, exit, first.Transitions[EndState], 1e-12)
	assert.InDelta(t, 0.9, first.Emissions.Probs["A"], 1e-12)
	assert.InDelta(t, 0.1/3, first.Emissions.Probs["T"], 1e-12)

	// a zero frequency is raised to a minimal one
	second := hmm.State("IGHD1-1_star_01_1")
	assert.Less(t, second.Emissions.Probs["C"], 1.0)
	assert.Greater(t, second.Emissions.Probs["A"], 0.0)

	last := hmm.State("IGHD1-1_star_01_5")
	assert.Equal(t, map[string]float64{EndState: 1}, last.Transitions)
}

func TestBuildNaive(t *testing.T) {
	options := DefaultWriterOptions()
	options.Naive = true
	hmm := build(t, dGene, dGermline, options)
	state := hmm.State("IGHD1-1_star_01_2")
	assert.InDelta(t, 1, state.Emissions.Probs["G"], 1e-5)
}

func TestBuildUniformInsertionContent(t *testing.T) {
	options := DefaultWriterOptions()
	options.InsertionBaseContent = false
	hmm := build(t, jGene, jGermline, options)
	start := hmm.State(InitState)
	assert.InDelta(t, start.Transitions["insert_left_A"], start.Transitions["insert_left_T"], 1e-15)
}

func TestBuildJointEmission(t *testing.T) {
	options := DefaultWriterOptions()
	options.JointEmission = true
	hmm := build(t, dGene, dGermline, options)
	for _, state := range hmm.States[1:] {
		assert.Equal(t, PairedEmission, state.Kind(), state.Name)
	}
	first := hmm.State("IGHD1-1_star_01_0")
	f := 0.1
	cryptic := (2 - f) / (6*f + 9)
	assert.InDelta(t, (1-f)*(1-f), first.PairEmissions.Probs["A"]["A"], 1e-12)
	assert.InDelta(t, f*cryptic, first.PairEmissions.Probs["C"]["C"], 1e-12)
	assert.InDelta(t, f*cryptic, first.PairEmissions.Probs["A"]["G"], 1e-12)
	assert.InDelta(t, f*f*cryptic, first.PairEmissions.Probs["G"]["T"], 1e-12)
}

func TestBuildUnphysicalInsertions(t *testing.T) {
	options := DefaultWriterOptions()
	options.AllowUnphysicalInsertions = true
	hmm := build(t, jGene, jGermline, options)
	names := stateNames(hmm)
	assert.Equal(t, InsertRightState, names[len(names)-1])

	// jf insertions after pseudocounts: 0 and 1 with equal weight
	right := hmm.State(InsertRightState)
	assert.InDelta(t, 0.5, right.Transitions[InsertRightState], 1e-12)
	assert.InDelta(t, 0.5, right.Transitions[EndState], 1e-12)
	assert.InDelta(t, 0.4, right.Emissions.Probs["A"], 1e-12)
	assert.InDelta(t, 0.1, right.Emissions.Probs["T"], 1e-12)

	last := hmm.State("IGHJ4_star_02_13")
	assert.InDelta(t, 0.5, last.Transitions[InsertRightState], 1e-12)
	assert.InDelta(t, 0.5, last.Transitions[EndState], 1e-12)
}

func TestBuildReachability(t *testing.T) {
	hmm := build(t, jGene, jGermline, DefaultWriterOptions())
	// every transition target is a state of the model or end
	for _, state := range hmm.States {
		for to := range state.Transitions {
			if to != EndState {
				assert.NotNil(t, hmm.State(to), "%v -> %v", state.Name, to)
			}
		}
	}
	// j 5' erosions of 0, 1 and 2 make the chain start at 0
	assert.NotNil(t, hmm.State("IGHJ4_star_02_0"))
	assert.Nil(t, hmm.State(InsertRightState))
}

func TestBuildRareGene(t *testing.T) {
	hmm := build(t, "IGHD1-1*02", dGermline, DefaultWriterOptions())
	assert.Equal(t, "IGHD1-1_star_02", hmm.Name)
	assert.InDelta(t, 2.0/52, hmm.Extras["gene_prob"], 1e-12)
	first := hmm.State("IGHD1-1_star_02_0")
	assert.InDelta(t, 0.9, first.Emissions.Probs["A"], 1e-12)
}

func TestBuildAmbiguousGermline(t *testing.T) {
	hmm := build(t, dGene, "ANGTAY", DefaultWriterOptions())
	assert.Equal(t, "A", hmm.State("IGHD1-1_star_01_1").Extras["germline"])
	assert.Equal(t, "A", hmm.State("IGHD1-1_star_01_5").Extras["germline"])

	w, err := NewWriter(newParamDir(t), dGene, "ARGTAC", DefaultWriterOptions())
	require.NoError(t, err)
	_, err = w.Build()
	assert.ErrorIs(t, err, ErrBadEmission)
}

func TestNewWriterErrors(t *testing.T) {
	dir := newParamDir(t)
	_, err := NewWriter(dir, "IGHZ1*01", dGermline, DefaultWriterOptions())
	assert.ErrorIs(t, err, params.ErrBadGeneName)
	_, err = NewWriter(dir, dGene, "", DefaultWriterOptions())
	assert.Error(t, err)
	// v parameters are missing
	_, err = NewWriter(dir, "IGHV3-23*04", "ACGT", DefaultWriterOptions())
	assert.Error(t, err)
}

func TestInsertionPseudocounts(t *testing.T) {
	tmp := t.TempDir()
	for name, contents := range parameterFiles {
		path := filepath.Join(tmp, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
		if name == "d_gene-vd_insertion-probs.csv" {
			contents = "vd_insertion,d_gene,count\n1,IGHD1-1*01,20\n2,IGHD1-1*01,20\n"
		}
		require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	}
	w, err := NewWriter(params.NewDir(tmp), dGene, dGermline, DefaultWriterOptions())
	require.NoError(t, err)
	// bins 0 and 1 get a count of 1 next to the count of 20 in bin 2
	assert.InDelta(t, 1.0/22, w.insertionProbs["vd"][0], 1e-12)
}

func TestInsertionsWithoutTail(t *testing.T) {
	w, err := NewWriter(newParamDir(t), dGene, dGermline, DefaultWriterOptions())
	require.NoError(t, err)
	vd := w.insertionProbs["vd"]
	// only the observed bins and the gap at 3, although bin 4 is sparse
	assert.Equal(t, []int{0, 1, 2, 3, 4}, vd.Bins())
	assert.InDelta(t, 7.5/52.5, vd[3], 1e-12)
	assert.InDelta(t, 5/52.5, vd[4], 1e-12)

	// erosions still get a tail, capped at the germline length
	assert.Equal(t, []int{0, 1, 2, 3}, w.erosionProbs["d_5p"].Bins())
}

func TestWriteAll(t *testing.T) {
	dir := newParamDir(t)
	outdir := filepath.Join(t.TempDir(), "hmms")
	germlines := map[string]string{dGene: dGermline, jGene: jGermline}
	require.NoError(t, WriteAll(dir, germlines, []string{dGene, jGene}, outdir, DefaultWriterOptions()))

	entries, err := os.ReadDir(outdir)
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{"IGHD1-1_star_01.yaml", "IGHJ4_star_02.yaml"}, names)

	hmm, err := ReadHMM(filepath.Join(outdir, "IGHJ4_star_02.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "IGHJ4_star_02", hmm.Name)
}

func TestWriteAllModelNames(t *testing.T) {
	outdir := filepath.Join(t.TempDir(), "hmms")
	germlines := map[string]string{dGene: dGermline}
	require.NoError(t, WriteAll(newParamDir(t), germlines, []string{"IGHD1-1_star_01"}, outdir, DefaultWriterOptions()))
	hmm, err := ReadHMM(filepath.Join(outdir, "IGHD1-1_star_01.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "IGHD1-1_star_01", hmm.Name)
}

func TestWriteAllFailure(t *testing.T) {
	dir := newParamDir(t)
	outdir := filepath.Join(t.TempDir(), "hmms")
	germlines := map[string]string{dGene: dGermline}
	err := WriteAll(dir, germlines, []string{dGene, jGene}, outdir, DefaultWriterOptions())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), jGene))

	entries, err := os.ReadDir(outdir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
