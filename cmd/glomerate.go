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

package cmd

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/exascience/vdjprep/clusterpath"
	"github.com/exascience/vdjprep/glomerator"
	"github.com/exascience/vdjprep/internal"
)

// GlomerateHelp is the help string for this command.
const GlomerateHelp = "glomerate parameters:\n" +
	"vdjprep glomerate naive-seqs-file partition-file --n-clusters nr\n" +
	"[--true-partition file]\n" +
	"[--debug]\n" +
	"[--nr-of-threads nr]\n" +
	"[--timed]\n" +
	"[--log-path path]\n"

func writePaths(filename string, paths []*clusterpath.ClusterPath) (err error) {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer internal.Close(f, &err)
	return clusterpath.WriteCSV(f, paths)
}

// Glomerate implements the vdjprep glomerate command.
func Glomerate() error {
	var (
		nClusters, nrOfThreads int
		debug, timed           bool
		truePartition, logPath string
	)

	var flags flag.FlagSet

	flags.IntVar(&nClusters, "n-clusters", 0, "number of clusters to agglomerate into")
	flags.StringVar(&truePartition, "true-partition", "", "csv file with the true clustering, to compute the adjusted mutual information")
	flags.BoolVar(&debug, "debug", false, "print diagnostics")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, GlomerateHelp)

	input := getFilename(os.Args[2], GlomerateHelp)
	output := getFilename(os.Args[3], GlomerateHelp)

	if err := setLogOutput(logPath); err != nil {
		return err
	}

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output) {
		sanityChecksFailed = true
	}
	if nClusters < 1 {
		log.Println("Error: Invalid n-clusters: ", nClusters)
		sanityChecksFailed = true
	}
	if truePartition != "" && !checkExist("--true-partition", truePartition) {
		sanityChecksFailed = true
	}
	if !checkThreads(nrOfThreads) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, GlomerateHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " glomerate ", input, " ", output, " --n-clusters ", nClusters)
	if truePartition != "" {
		fmt.Fprint(&command, " --true-partition ", truePartition)
	}
	if debug {
		fmt.Fprint(&command, " --debug")
	}
	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
		fmt.Fprint(&command, " --nr-of-threads ", nrOfThreads)
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	g := &glomerator.Glomerator{Debug: debug}
	if truePartition != "" {
		truth, err := clusterpath.ReadTruth(truePartition)
		if err != nil {
			return err
		}
		g.Truth = truth
		if debug {
			if err = g.PrintTruePartition(log.Writer()); err != nil {
				return err
			}
		}
	}

	naiveSeqs, err := glomerator.ReadNaiveSeqs(input)
	if err != nil {
		return err
	}

	var partition clusterpath.Partition
	err = timedRun(timed, "", "Agglomerating naive sequences.", 1, func() (err error) {
		partition, err = g.NaiveSeqGlomerate(naiveSeqs, nClusters)
		return err
	})
	if err != nil {
		return err
	}

	adjMI := clusterpath.NoAdjMI
	if g.Truth != nil {
		if adjMI, err = clusterpath.AdjustedMutualInformation(partition, g.Truth); err != nil {
			return err
		}
		log.Printf("Adjusted mutual information: %.4f\n", adjMI)
	}

	// naive agglomeration has no likelihood, the logprob column is 0
	path := clusterpath.New(clusterpath.NoInitialPathIndex)
	path.AddPartition(partition, 0, 1, 0, adjMI)
	return writePaths(output, []*clusterpath.ClusterPath{path})
}
