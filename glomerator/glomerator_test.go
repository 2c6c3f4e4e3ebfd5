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
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/vdjprep/clusterpath"
)

func path(t *testing.T, initialPathIndex int, steps ...interface{}) *clusterpath.ClusterPath {
	t.Helper()
	result := clusterpath.New(initialPathIndex)
	for i := 0; i < len(steps); i += 2 {
		partition, err := clusterpath.ParsePartition(steps[i].(string))
		require.NoError(t, err)
		result.AddPartition(partition, steps[i+1].(float64), 1, 0, clusterpath.NoAdjMI)
	}
	return result
}

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(filename, []byte(contents), 0600))
	return filename
}

func TestMergeOneStep(t *testing.T) {
	a := path(t, 0, "a;b", -10.0, "a:b", -5.0)
	b := path(t, 0, "c:d", -8.0)
	g := new(Glomerator)
	paths, err := g.MergeFileInfos([][]*clusterpath.ClusterPath{{a}, {b}}, 1, false, nil)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	merged := paths[0]
	assert.Equal(t, 2, merged.Len())
	assert.Equal(t, "a;b;c:d", merged.Partitions[0].String())
	assert.Equal(t, "a:b;c:d", merged.Partitions[1].String())
	assert.Equal(t, []float64{-18, -13}, merged.Logprobs)
	assert.Equal(t, []int{2, 2}, merged.NProcs)
	assert.Equal(t, []float64{0, 0}, merged.Logweights)
	assert.Equal(t, clusterpath.NoInitialPathIndex, merged.InitialPathIndex)
	assert.Equal(t, paths, g.Paths)
}

func TestMergeAdvancesLargestGain(t *testing.T) {
	a := path(t, 0, "a;b;c", -30.0, "a:b;c", -28.0, "a:b:c", -27.0)
	b := path(t, 0, "d;e", -20.0, "d:e", -15.0)
	paths, err := new(Glomerator).MergeFileInfos([][]*clusterpath.ClusterPath{{a}, {b}}, 1, false, nil)
	require.NoError(t, err)
	var partitions []string
	for _, partition := range paths[0].Partitions {
		partitions = append(partitions, partition.String())
	}
	// b gains 5, a gains 2 and then 1
	assert.Equal(t, []string{"a;b;c;d;e", "a;b;c;d:e", "a:b;c;d:e", "a:b:c;d:e"}, partitions)
	assert.Equal(t, []float64{-50, -45, -43, -42}, paths[0].Logprobs)
}

func TestMergeEqualGainsFirstWins(t *testing.T) {
	a := path(t, 0, "a;b", -10.0, "a:b", -8.0)
	b := path(t, 0, "c;d", -10.0, "c:d", -8.0)
	paths, err := new(Glomerator).MergeFileInfos([][]*clusterpath.ClusterPath{{a}, {b}}, 1, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "a:b;c;d", paths[0].Partitions[1].String())
}

func TestMergeParticles(t *testing.T) {
	fileinfos := [][]*clusterpath.ClusterPath{
		{path(t, 0, "a;b", -10.0, "a:b", -5.0), path(t, 1, "a;b", -11.0)},
		{path(t, 0, "c;d", -10.0), path(t, 1, "c;d", -12.0, "c:d", -9.0)},
	}
	paths, err := new(Glomerator).MergeFileInfos(fileinfos, 2, false, nil)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, []float64{-20, -15}, paths[0].Logprobs)
	assert.Equal(t, []float64{-23, -20}, paths[1].Logprobs)
	assert.InDelta(t, 0, paths[0].Logweights[0], 1e-12)
	assert.InDelta(t, 0, paths[0].Logweights[1], 1e-12)
}

func TestMergePreviousHistoryParticles(t *testing.T) {
	previous := &History{Processes: [][]*clusterpath.ClusterPath{
		{path(t, 0, "a;b;c", -20.0), path(t, 0, "a;b;c", -21.0)},
	}}
	fileinfos := [][]*clusterpath.ClusterPath{
		{path(t, 1, "a:b;c", -15.0, "a:b:c", -12.0), path(t, 0, "a;b:c", -16.0)},
	}
	paths, err := new(Glomerator).MergeFileInfos(fileinfos, 2, false, previous)
	require.NoError(t, err)
	assert.Equal(t, []float64{-21, -15, -12}, paths[0].Logprobs)
	assert.Equal(t, []float64{-20, -16}, paths[1].Logprobs)
	// a cluster of three can be reached from three pairs of clusters
	assert.InDelta(t, -math.Log(3), paths[0].Logweights[2], 1e-12)

	fileinfos = [][]*clusterpath.ClusterPath{{path(t, 2, "a:b;c", -15.0), path(t, 0, "a;b:c", -16.0)}}
	_, err = new(Glomerator).MergeFileInfos(fileinfos, 2, false, previous)
	assert.ErrorIs(t, err, ErrInitialPathMismatch)

	_, err = new(Glomerator).MergeFileInfos(append(fileinfos, fileinfos[0]), 2, false, previous)
	assert.ErrorIs(t, err, ErrProcessCount)
}

func TestMergePreviousHistorySingleParticle(t *testing.T) {
	previous := &History{Merged: path(t, clusterpath.NoInitialPathIndex, "a;b;c;d", -40.0)}
	fileinfos := [][]*clusterpath.ClusterPath{
		{path(t, 0, "a:b", -10.0)},
		{path(t, 0, "c;d", -12.0, "c:d", -9.0)},
	}
	paths, err := new(Glomerator).MergeFileInfos(fileinfos, 1, false, previous)
	require.NoError(t, err)
	assert.Equal(t, []float64{-40, -22, -19}, paths[0].Logprobs)
	assert.Equal(t, "a;b;c;d", paths[0].Partitions[0].String())
}

func TestMergeAdjMI(t *testing.T) {
	g := &Glomerator{Truth: clusterpath.Truth{"a": "1", "b": "1", "c": "2", "d": "2"}}
	fileinfos := [][]*clusterpath.ClusterPath{
		{path(t, 0, "a;b", -10.0, "a:b", -8.0)},
		{path(t, 0, "c:d", -12.0)},
	}
	paths, err := g.MergeFileInfos(fileinfos, 1, true, nil)
	require.NoError(t, err)
	assert.Less(t, paths[0].AdjMIs[0], 1.0)
	assert.InDelta(t, 1, paths[0].AdjMIs[1], 1e-9)
}

func TestMergeErrors(t *testing.T) {
	g := new(Glomerator)
	_, err := g.MergeFileInfos(nil, 1, false, nil)
	assert.ErrorIs(t, err, ErrProcessCount)
	_, err = g.MergeFileInfos([][]*clusterpath.ClusterPath{{path(t, 0, "a", -1.0)}}, 2, false, nil)
	assert.ErrorIs(t, err, ErrMissingPath)
	_, err = g.MergeFileInfos([][]*clusterpath.ClusterPath{{clusterpath.New(0)}}, 1, false, nil)
	assert.ErrorIs(t, err, clusterpath.ErrEmptyPath)
}

const fileInfo = `path_index,initial_path_index,logprob,n_procs,logweight,partition
0,0,-10,1,-0.5,a;b;c
0,0,-8,1,-0.5,a:b;c
1,1,-11,2,,a;b;c
1,1,-9,2,,a;b:c
`

func TestReadFileInfo(t *testing.T) {
	g := &Glomerator{Truth: clusterpath.Truth{"a": "1", "b": "1", "c": "2"}}
	paths, err := g.ReadFileInfo(writeFile(t, "partitions.csv", fileInfo), 2, true)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, 0, paths[0].InitialPathIndex)
	assert.Equal(t, []float64{-10, -8}, paths[0].Logprobs)
	assert.Equal(t, []float64{-0.5, -0.5}, paths[0].Logweights)
	assert.Equal(t, []int{2, 2}, paths[1].NProcs)
	assert.Equal(t, []float64{0, 0}, paths[1].Logweights)
	assert.InDelta(t, 1, paths[0].AdjMIs[1], 1e-9)

	paths, err = new(Glomerator).ReadFileInfo(writeFile(t, "partitions.csv", fileInfo), 2, true)
	require.NoError(t, err)
	assert.Equal(t, clusterpath.NoAdjMI, paths[0].AdjMIs[0])
}

func TestReadFileInfoOptionalColumns(t *testing.T) {
	filename := writeFile(t, "partitions.csv", "partition,logprob,path_index,initial_path_index\na:b,-3,0,4\n")
	paths, err := new(Glomerator).ReadFileInfo(filename, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 4, paths[0].InitialPathIndex)
	assert.Equal(t, []int{1}, paths[0].NProcs)
	assert.Equal(t, []float64{0}, paths[0].Logweights)
}

func TestReadFileInfoErrors(t *testing.T) {
	g := new(Glomerator)
	for _, test := range []struct {
		contents string
		nPaths   int
		err      error
	}{
		{fileInfo, 3, ErrMissingPath},
		{fileInfo, 1, ErrBadPathIndex},
		{"path_index,initial_path_index,logprob,partition\n0,0,-1,a\n0,1,-1,a\n", 1, ErrInitialPathMismatch},
		{"path_index,initial_path_index,logprob,partition\n0,0,-1,\n", 1, clusterpath.ErrEmptyPartition},
		{"path_index,initial_path_index,logprob,partition\n0,0,-1,a:a\n", 1, clusterpath.ErrDuplicateID},
	} {
		_, err := g.ReadFileInfo(writeFile(t, "partitions.csv", test.contents), test.nPaths, false)
		assert.ErrorIs(t, err, test.err, test.contents)
	}
	_, err := g.ReadFileInfo(writeFile(t, "partitions.csv", "path_index,logprob,partition\n0,-1,a\n"), 1, false)
	assert.Error(t, err)
	_, err = g.ReadFileInfo(writeFile(t, "partitions.csv", "path_index,initial_path_index,logprob,partition\n0,0,x,a\n"), 1, false)
	assert.Error(t, err)
}

func TestReadCachedAgglomeration(t *testing.T) {
	files := []string{
		writeFile(t, "a.csv", "path_index,initial_path_index,logprob,partition\n0,0,-10,a;b\n0,0,-5,a:b\n"),
		writeFile(t, "b.csv", "path_index,initial_path_index,logprob,partition\n0,0,-8,c:d\n"),
	}
	g := new(Glomerator)
	paths, err := g.ReadCachedAgglomeration(files, 1, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{-18, -13}, paths[0].Logprobs)

	var buf bytes.Buffer
	require.NoError(t, clusterpath.WriteCSV(&buf, paths))
	reread, err := g.ReadFileInfo(writeFile(t, "merged.csv", buf.String()), 1, false)
	require.NoError(t, err)
	assert.Equal(t, paths[0].Logprobs, reread[0].Logprobs)
	assert.Equal(t, paths[0].NProcs, reread[0].NProcs)
	assert.Equal(t, paths[0].Partitions, reread[0].Partitions)

	history, err := g.ReadHistory([]string{writeFile(t, "merged.csv", buf.String())}, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 2, history.Merged.Len())
	_, err = g.ReadHistory(files, 1, false)
	assert.ErrorIs(t, err, ErrProcessCount)

	history, err = g.ReadHistory(files, 2, false)
	assert.ErrorIs(t, err, ErrMissingPath)
	assert.Nil(t, history)
}

func TestPrintTruePartition(t *testing.T) {
	g := &Glomerator{Truth: clusterpath.Truth{"c": "2", "a": "1", "d": "2", "b": "1"}}
	var buf bytes.Buffer
	require.NoError(t, g.PrintTruePartition(&buf))
	assert.Equal(t, "  true partition\n     a:b\n     c:d\n", buf.String())
}
