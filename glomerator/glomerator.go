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
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/exascience/pargo/parallel"

	"github.com/exascience/vdjprep/clusterpath"
	"github.com/exascience/vdjprep/internal"
)

var (
	// ErrMissingPath is returned when a partition file lacks rows for
	// one of the expected paths, or a process lacks a path.
	ErrMissingPath = errors.New("glomerator: missing path")

	// ErrBadPathIndex is returned for a path index outside the
	// expected range.
	ErrBadPathIndex = errors.New("glomerator: path index out of range")

	// ErrInitialPathMismatch is returned when the rows of one path
	// disagree about its initial path index, or when no previous path
	// has that index.
	ErrInitialPathMismatch = errors.New("glomerator: initial path index mismatch")

	// ErrProcessCount is returned when the previous history does not
	// have one entry per process.
	ErrProcessCount = errors.New("glomerator: process count mismatch")
)

// A Glomerator reads and merges agglomeration paths.
type Glomerator struct {
	// Truth is the reference partition used for adjusted mutual
	// information, if known.
	Truth clusterpath.Truth

	// Paths holds the result of the last merge, one path per
	// particle.
	Paths []*clusterpath.ClusterPath

	Debug bool
}

// History is the outcome of a previous iteration, to which newly
// merged paths are appended.
type History struct {
	// Processes holds the paths of every process by path index. It is
	// used when there is more than one particle.
	Processes [][]*clusterpath.ClusterPath

	// Merged is the merged path. It is used when there is a single
	// particle.
	Merged *clusterpath.ClusterPath
}

func (g *Glomerator) adjMI(partition clusterpath.Partition, calcAdjMI bool) (float64, error) {
	if !calcAdjMI || g.Truth == nil {
		return clusterpath.NoAdjMI, nil
	}
	return clusterpath.AdjustedMutualInformation(partition, g.Truth)
}

// PrintTruePartition writes the clusters of the true partition to w,
// one line per cluster.
func (g *Glomerator) PrintTruePartition(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "  true partition"); err != nil {
		return err
	}
	for _, cluster := range g.Truth.Partition() {
		if _, err := fmt.Fprintf(w, "     %v\n", strings.Join(cluster, ":")); err != nil {
			return err
		}
	}
	return nil
}

type fileInfoRow struct {
	pathIndex, initialPathIndex int
	logprob                     float64
	nProcs                      int
	logweight                   float64
	partition                   clusterpath.Partition
}

func parseFileInfoRow(columns map[string]int, record []string) (row fileInfoRow, err error) {
	field := func(name string) string {
		if i, ok := columns[name]; ok {
			return record[i]
		}
		return ""
	}
	if row.partition, err = clusterpath.ParsePartition(field(clusterpath.PartitionColumn)); err != nil {
		return row, err
	}
	if err = row.partition.Validate(); err != nil {
		return row, err
	}
	if row.pathIndex, err = internal.ParseInt(clusterpath.PathIndexColumn, field(clusterpath.PathIndexColumn)); err != nil {
		return row, err
	}
	if row.initialPathIndex, err = internal.ParseInt(clusterpath.InitialPathIndexColumn, field(clusterpath.InitialPathIndexColumn)); err != nil {
		return row, err
	}
	if row.logprob, err = internal.ParseFloat(clusterpath.LogprobColumn, field(clusterpath.LogprobColumn)); err != nil {
		return row, err
	}
	row.nProcs = 1
	if s := field(clusterpath.NProcsColumn); s != "" {
		if row.nProcs, err = internal.ParseInt(clusterpath.NProcsColumn, s); err != nil {
			return row, err
		}
	}
	if s := field(clusterpath.LogweightColumn); s != "" {
		if row.logweight, err = internal.ParseFloat(clusterpath.LogweightColumn, s); err != nil {
			return row, err
		}
	}
	return row, nil
}

// ReadFileInfo reads the agglomeration paths in a partition file,
// which must contain rows for path indices 0 to nPaths - 1.
func (g *Glomerator) ReadFileInfo(filename string, nPaths int, calcAdjMI bool) (paths []*clusterpath.ClusterPath, err error) {
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
	columns := make(map[string]int, len(header))
	for i, column := range header {
		columns[column] = i
	}
	for _, column := range []string{clusterpath.PartitionColumn, clusterpath.PathIndexColumn, clusterpath.InitialPathIndexColumn, clusterpath.LogprobColumn} {
		if _, ok := columns[column]; !ok {
			return nil, fmt.Errorf("%v lacks column %v", filename, column)
		}
	}

	paths = make([]*clusterpath.ClusterPath, nPaths)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("error reading %v: %w", filename, err)
		}
		row, err := parseFileInfoRow(columns, record)
		if err != nil {
			return nil, fmt.Errorf("%v line %v: %w", filename, line, err)
		}
		if row.pathIndex < 0 || row.pathIndex >= nPaths {
			return nil, fmt.Errorf("%w: %v line %v has path index %v, expected fewer than %v", ErrBadPathIndex, filename, line, row.pathIndex, nPaths)
		}
		path := paths[row.pathIndex]
		if path == nil {
			path = clusterpath.New(row.initialPathIndex)
			paths[row.pathIndex] = path
		} else if path.InitialPathIndex != row.initialPathIndex {
			return nil, fmt.Errorf("%w: %v line %v has initial path index %v for path %v, expected %v",
				ErrInitialPathMismatch, filename, line, row.initialPathIndex, row.pathIndex, path.InitialPathIndex)
		}
		adjMI, err := g.adjMI(row.partition, calcAdjMI)
		if err != nil {
			return nil, fmt.Errorf("%v line %v: %w", filename, line, err)
		}
		path.AddPartition(row.partition, row.logprob, row.nProcs, row.logweight, adjMI)
	}
	for i, path := range paths {
		if path == nil {
			return nil, fmt.Errorf("%w %v in %v", ErrMissingPath, i, filename)
		}
	}
	return paths, nil
}

func checkFileInfos(fileinfos [][]*clusterpath.ClusterPath, smcParticles int) error {
	if len(fileinfos) == 0 {
		return fmt.Errorf("%w: no processes", ErrProcessCount)
	}
	for ifile, paths := range fileinfos {
		if len(paths) != smcParticles {
			return fmt.Errorf("%w: process %v has %v paths, expected %v", ErrMissingPath, ifile, len(paths), smcParticles)
		}
		for ipath, path := range paths {
			if path == nil || path.Len() == 0 {
				return fmt.Errorf("%w: path %v of process %v", clusterpath.ErrEmptyPath, ipath, ifile)
			}
		}
	}
	return nil
}

// prependHistories extends every path of every process with the
// previous path it started from, and recomputes the log weights.
func prependHistories(fileinfos, previous [][]*clusterpath.ClusterPath) error {
	if len(previous) != len(fileinfos) {
		return fmt.Errorf("%w: %v processes, but history for %v", ErrProcessCount, len(fileinfos), len(previous))
	}
	for ifile, paths := range fileinfos {
		for ipath, current := range paths {
			index := current.InitialPathIndex
			if index < 0 || index >= len(previous[ifile]) || previous[ifile][index] == nil {
				return fmt.Errorf("%w: path %v of process %v starts from unknown path %v", ErrInitialPathMismatch, ipath, ifile, index)
			}
			extended := clusterpath.Concatenate(previous[ifile][index], current)
			extended.SetSyntheticLogweightHistory()
			paths[ipath] = extended
		}
	}
	return nil
}

func lastOne(fileinfos [][]*clusterpath.ClusterPath, ipath int) bool {
	for _, paths := range fileinfos {
		if paths[ipath].Len() != 1 {
			return false
		}
	}
	return true
}

// removeOneOfTheFirstPartitions advances the process whose next step
// has the largest gain in log probability.
func removeOneOfTheFirstPartitions(fileinfos [][]*clusterpath.ClusterPath, ipath int) error {
	best := -1
	var maxDelta float64
	for ifile, paths := range fileinfos {
		path := paths[ipath]
		if path.Len() == 1 {
			continue
		}
		if delta := path.Logprobs[1] - path.Logprobs[0]; best < 0 || delta > maxDelta {
			best, maxDelta = ifile, delta
		}
	}
	return fileinfos[best][ipath].RemoveFirstPartition()
}

func (g *Glomerator) addNextGlobalPartition(merged *clusterpath.ClusterPath, fileinfos [][]*clusterpath.ClusterPath, ipath int, calcAdjMI bool) error {
	var partition clusterpath.Partition
	var logprob float64
	for _, paths := range fileinfos {
		path := paths[ipath]
		partition = append(partition, path.Partitions[0].Clone()...)
		logprob += path.Logprobs[0]
	}
	adjMI, err := g.adjMI(partition, calcAdjMI)
	if err != nil {
		return err
	}
	merged.AddPartition(partition, logprob, len(fileinfos), 0, adjMI)
	return nil
}

func (g *Glomerator) mergePath(fileinfos [][]*clusterpath.ClusterPath, ipath, smcParticles int, calcAdjMI bool) (*clusterpath.ClusterPath, error) {
	if g.Debug {
		log.Printf("merge path %v from %v processes:\n", ipath, len(fileinfos))
		for ifile, paths := range fileinfos {
			if err := paths[ipath].Print(log.Writer(), fmt.Sprint(ifile)); err != nil {
				return nil, err
			}
		}
	}
	merged := clusterpath.New(clusterpath.NoInitialPathIndex)
	for !lastOne(fileinfos, ipath) {
		if err := g.addNextGlobalPartition(merged, fileinfos, ipath, calcAdjMI); err != nil {
			return nil, err
		}
		if err := removeOneOfTheFirstPartitions(fileinfos, ipath); err != nil {
			return nil, err
		}
	}
	if err := g.addNextGlobalPartition(merged, fileinfos, ipath, calcAdjMI); err != nil {
		return nil, err
	}
	if smcParticles > 1 {
		merged.SetSyntheticLogweightHistory()
	}
	if g.Debug {
		log.Println("  merged path:")
		if err := merged.Print(log.Writer(), ""); err != nil {
			return nil, err
		}
	} else {
		log.Printf("  merged path %v with %v glomeration steps and %v final clusters\n",
			ipath, merged.Len(), len(merged.Partitions[merged.Len()-1]))
	}
	return merged, nil
}

/*
MergeFileInfos merges the agglomeration paths of several processes,
given as fileinfos[process][particle], into one path per particle.

Each merged step is the union of the current partitions of all
processes, with the sum of their log probabilities. After each step,
the process whose next step gains the most log probability advances,
until every process is at its last step.

With more than one particle, the paths of each process are first
appended to the previous path they started from. With a single
particle, the merged path is appended to the previous merged path
instead.

MergeFileInfos consumes the paths in fileinfos. The result is also
stored in g.Paths.
*/
func (g *Glomerator) MergeFileInfos(fileinfos [][]*clusterpath.ClusterPath, smcParticles int, calcAdjMI bool, previous *History) ([]*clusterpath.ClusterPath, error) {
	if err := checkFileInfos(fileinfos, smcParticles); err != nil {
		return nil, err
	}
	if previous != nil && previous.Processes != nil && smcParticles > 1 {
		if g.Debug {
			log.Println("prepend previous history")
		}
		if err := prependHistories(fileinfos, previous.Processes); err != nil {
			return nil, err
		}
	}

	paths := make([]*clusterpath.ClusterPath, smcParticles)
	errs := make([]error, smcParticles)
	parallel.Range(0, smcParticles, 0, func(low, high int) {
		for ipath := low; ipath < high; ipath++ {
			paths[ipath], errs[ipath] = g.mergePath(fileinfos, ipath, smcParticles, calcAdjMI)
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	if smcParticles == 1 && previous != nil && previous.Merged != nil {
		if g.Debug {
			log.Println("prepend previous history")
		}
		paths[0] = clusterpath.Concatenate(previous.Merged, paths[0])
	}
	g.Paths = paths
	return paths, nil
}

func (g *Glomerator) readFileInfos(filenames []string, nPaths int, calcAdjMI bool) ([][]*clusterpath.ClusterPath, error) {
	fileinfos := make([][]*clusterpath.ClusterPath, len(filenames))
	errs := make([]error, len(filenames))
	parallel.Range(0, len(filenames), 0, func(low, high int) {
		for i := low; i < high; i++ {
			fileinfos[i], errs[i] = g.ReadFileInfo(filenames[i], nPaths, calcAdjMI)
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return fileinfos, nil
}

// ReadCachedAgglomeration reads the partition file of every process and
// merges their paths.
func (g *Glomerator) ReadCachedAgglomeration(filenames []string, smcParticles int, previous *History, calcAdjMI bool) ([]*clusterpath.ClusterPath, error) {
	start := time.Now()
	fileinfos, err := g.readFileInfos(filenames, smcParticles, calcAdjMI)
	if err != nil {
		return nil, err
	}
	paths, err := g.MergeFileInfos(fileinfos, smcParticles, calcAdjMI, previous)
	if err != nil {
		return nil, err
	}
	if g.Debug {
		log.Printf("        read cached glomeration time: %.3f\n", time.Since(start).Seconds())
	}
	return paths, nil
}

// ReadHistory reads the outcome of a previous iteration. With more
// than one particle, it reads the paths of one process per file.
// Otherwise, it reads a single merged path from a single file.
func (g *Glomerator) ReadHistory(filenames []string, smcParticles int, calcAdjMI bool) (*History, error) {
	if smcParticles > 1 {
		processes, err := g.readFileInfos(filenames, smcParticles, calcAdjMI)
		if err != nil {
			return nil, err
		}
		return &History{Processes: processes}, nil
	}
	if len(filenames) != 1 {
		return nil, fmt.Errorf("%w: expected one merged history file, got %v", ErrProcessCount, len(filenames))
	}
	paths, err := g.ReadFileInfo(filenames[0], 1, calcAdjMI)
	if err != nil {
		return nil, err
	}
	return &History{Merged: paths[0]}, nil
}
