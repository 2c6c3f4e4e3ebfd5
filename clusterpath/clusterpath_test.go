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
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) Partition {
	t.Helper()
	partition, err := ParsePartition(s)
	require.NoError(t, err)
	return partition
}

func TestParsePartition(t *testing.T) {
	partition := mustParse(t, "a:b;c;d:e:f")
	assert.Equal(t, Partition{{"a", "b"}, {"c"}, {"d", "e", "f"}}, partition)
	assert.Equal(t, "a:b;c;d:e:f", partition.String())
	assert.Equal(t, 6, partition.NIDs())
	assert.Equal(t, []int{2, 1, 3}, partition.Sizes())

	_, err := ParsePartition("")
	assert.ErrorIs(t, err, ErrEmptyPartition)
}

func TestClone(t *testing.T) {
	partition := mustParse(t, "a:b;c")
	clone := partition.Clone()
	clone[0][0] = "x"
	assert.Equal(t, "a", partition[0][0])
}

func TestValidate(t *testing.T) {
	assert.NoError(t, mustParse(t, "a:b;c").Validate())
	assert.ErrorIs(t, mustParse(t, "a:b;a").Validate(), ErrDuplicateID)
	assert.ErrorIs(t, mustParse(t, "a:a;b").Validate(), ErrDuplicateID)
	assert.ErrorIs(t, mustParse(t, "a:b;;c").Validate(), ErrEmptyPartition)
	assert.ErrorIs(t, mustParse(t, "a::b").Validate(), ErrEmptyPartition)
	assert.ErrorIs(t, Partition{}.Validate(), ErrEmptyPartition)
	assert.ErrorIs(t, Partition{{}}.Validate(), ErrEmptyPartition)
}

func TestCheckCovers(t *testing.T) {
	partition := mustParse(t, "a:b;c")
	assert.NoError(t, partition.CheckCovers([]string{"c", "b", "a"}))
	assert.ErrorIs(t, partition.CheckCovers([]string{"a", "b"}), ErrMissingID)
	assert.ErrorIs(t, partition.CheckCovers([]string{"a", "b", "c", "d"}), ErrMissingID)
	assert.ErrorIs(t, mustParse(t, "a:b;b").CheckCovers([]string{"a", "b"}), ErrDuplicateID)
}

func TestIndexConsecutive(t *testing.T) {
	indices, err := mustParse(t, "c:a;b").index()
	require.NoError(t, err)
	assert.Equal(t, map[string]uint{"c": 0, "a": 1, "b": 2}, indices)
}

func TestAddRemovePartition(t *testing.T) {
	path := New(3)
	assert.ErrorIs(t, path.RemoveFirstPartition(), ErrEmptyPath)
	path.AddPartition(mustParse(t, "a;b;c"), -10, 1, 0, NoAdjMI)
	path.AddPartition(mustParse(t, "a:b;c"), -7, 1, 0, NoAdjMI)
	path.AddPartition(mustParse(t, "a:b:c"), -9, 2, 0, 0.5)
	assert.Equal(t, 3, path.Len())
	assert.Equal(t, 1, path.BestIndex())
	assert.Equal(t, "a:b;c", path.Best().String())

	require.NoError(t, path.RemoveFirstPartition())
	assert.Equal(t, 2, path.Len())
	assert.Equal(t, []float64{-7, -9}, path.Logprobs)
	assert.Equal(t, []int{1, 2}, path.NProcs)
	assert.Equal(t, []float64{NoAdjMI, 0.5}, path.AdjMIs)
	assert.Len(t, path.Logweights, 2)
	assert.Equal(t, 3, path.InitialPathIndex)

	assert.Equal(t, -1, New(0).BestIndex())
	assert.Nil(t, New(0).Best())
}

func TestConcatenate(t *testing.T) {
	prev := New(0)
	prev.AddPartition(mustParse(t, "a;b;c"), -10, 1, -1, NoAdjMI)
	cur := New(0)
	cur.AddPartition(mustParse(t, "a:b;c"), -8, 2, -2, NoAdjMI)
	path := Concatenate(prev, cur)
	assert.Equal(t, NoInitialPathIndex, path.InitialPathIndex)
	assert.Equal(t, []float64{-10, -8}, path.Logprobs)
	assert.Equal(t, []int{1, 2}, path.NProcs)
	assert.Equal(t, []float64{-1, -2}, path.Logweights)
	path.Partitions[0][0][0] = "x"
	assert.Equal(t, "a", prev.Partitions[0][0][0])
}

func TestSyntheticLogweightHistory(t *testing.T) {
	path := New(0)
	path.AddPartition(mustParse(t, "a;b;c;d"), -10, 1, 5, NoAdjMI)
	path.AddPartition(mustParse(t, "a:b;c;d"), -9, 1, 5, NoAdjMI)
	path.AddPartition(mustParse(t, "a:b;c:d"), -8, 1, 5, NoAdjMI)
	path.AddPartition(mustParse(t, "a:b:c:d"), -7, 1, 5, NoAdjMI)
	path.SetSyntheticLogweightHistory()
	// factors: 1, 1, 1 + 1, 2^3 - 1
	assert.InDelta(t, 0, path.Logweights[0], 1e-12)
	assert.InDelta(t, 0, path.Logweights[1], 1e-12)
	assert.InDelta(t, -math.Log(2), path.Logweights[2], 1e-12)
	assert.InDelta(t, -math.Log(2)-math.Log(7), path.Logweights[3], 1e-12)
}

func TestSyntheticLogweightLargeClusters(t *testing.T) {
	ids := make([]string, 2000)
	for i := range ids {
		ids[i] = string(rune('a'+i%26)) + strings.Repeat("x", i/26)
	}
	path := New(0)
	path.AddPartition(Partition{ids}, 0, 1, 0, NoAdjMI)
	path.SetSyntheticLogweightHistory()
	assert.InDelta(t, -1999*math.Ln2, path.Logweights[0], 1e-9)
}

func TestPrint(t *testing.T) {
	path := New(0)
	path.AddPartition(mustParse(t, "a;b"), -10, 1, 0, NoAdjMI)
	path.AddPartition(mustParse(t, "a:b"), -5, 1, 0, 1)
	var buf bytes.Buffer
	require.NoError(t, path.Print(&buf, "  "))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "*")
	assert.Contains(t, lines[2], "1: a:b")
	assert.Contains(t, lines[1], "2: a;b")
}

func TestWriteCSV(t *testing.T) {
	path := New(NoInitialPathIndex)
	path.AddPartition(mustParse(t, "a;b"), -10.5, 2, -0.25, NoAdjMI)
	path.AddPartition(mustParse(t, "a:b"), -5, 2, 0, 0.75)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []*ClusterPath{path}))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		Header,
		{"0", "-1", "-10.5", "2", "-0.25", "-1", "a;b"},
		{"0", "-1", "-5", "2", "0", "0.75", "a:b"},
	}, records)
}

func TestTruth(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "truth.csv")
	require.NoError(t, os.WriteFile(filename, []byte("unique_id,reco_id,other\nb,2,x\na,1,x\nc,2,x\n"), 0600))
	truth, err := ReadTruth(filename)
	require.NoError(t, err)
	assert.Equal(t, Truth{"a": "1", "b": "2", "c": "2"}, truth)
	assert.Equal(t, "a;b:c", truth.Partition().String())

	require.NoError(t, os.WriteFile(filename, []byte("unique_id,event\na,1\n"), 0600))
	_, err = ReadTruth(filename)
	assert.Error(t, err)
}

func TestAdjustedMutualInformation(t *testing.T) {
	truth := Truth{"a": "1", "b": "1", "c": "1", "d": "2", "e": "2", "f": "2"}

	ami, err := AdjustedMutualInformation(mustParse(t, "a:b:c;d:e:f"), truth)
	require.NoError(t, err)
	assert.InDelta(t, 1, ami, 1e-9)

	ami, err = AdjustedMutualInformation(mustParse(t, "c:b:a;f:e:d"), truth)
	require.NoError(t, err)
	assert.InDelta(t, 1, ami, 1e-9)

	ami, err = AdjustedMutualInformation(mustParse(t, "a:b:c:d:e:f"), truth)
	require.NoError(t, err)
	assert.InDelta(t, 0, ami, 1e-9)

	ami, err = AdjustedMutualInformation(mustParse(t, "a;b;c;d;e;f"), Truth{"a": "1", "b": "2", "c": "3", "d": "4", "e": "5", "f": "6"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, ami)

	ami, err = AdjustedMutualInformation(mustParse(t, "a:b;c:d;e:f"), truth)
	require.NoError(t, err)
	assert.Greater(t, ami, 0.0)
	assert.Less(t, ami, 1.0)

	_, err = AdjustedMutualInformation(mustParse(t, "a:b:x"), truth)
	assert.ErrorIs(t, err, ErrMissingID)
}
