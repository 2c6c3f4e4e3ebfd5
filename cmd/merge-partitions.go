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

// MergePartitionsHelp is the help string for this command.
const MergePartitionsHelp = "merge-partitions parameters:\n" +
	"vdjprep merge-partitions input-dir-or-file partition-file\n" +
	"[--smc-particles nr]\n" +
	"[--previous file[:file]...]\n" +
	"[--true-partition file]\n" +
	"[--calc-adj-mi]\n" +
	"[--debug]\n" +
	"[--nr-of-threads nr]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// MergePartitions implements the vdjprep merge-partitions command.
func MergePartitions() error {
	var (
		smcParticles, nrOfThreads int
		previous, truePartition   string
		calcAdjMI, debug, timed   bool
		profile, logPath          string
	)

	var flags flag.FlagSet

	flags.IntVar(&smcParticles, "smc-particles", 1, "number of particles per process")
	flags.StringVar(&previous, "previous", "", "colon-separated partition files of the previous iteration")
	flags.StringVar(&truePartition, "true-partition", "", "csv file with the true clustering")
	flags.BoolVar(&calcAdjMI, "calc-adj-mi", false, "compute the adjusted mutual information of every step")
	flags.BoolVar(&debug, "debug", false, "print diagnostics")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, MergePartitionsHelp)

	input := getFilename(os.Args[2], MergePartitionsHelp)
	output := getFilename(os.Args[3], MergePartitionsHelp)

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

	fullInputPath, err := internal.FullPathname(input)
	if err != nil {
		return err
	}
	fullOutputPath, err := internal.FullPathname(output)
	if err != nil {
		return err
	}
	filesToMerge, err := internal.Directory(fullInputPath, ".csv")
	if err != nil {
		log.Printf("Given input %v causes error %v.\n", input, err)
		sanityChecksFailed = true
	} else if filesToMerge = internal.Without(filesToMerge, fullOutputPath); len(filesToMerge) == 0 {
		log.Printf("Given directory %v does not contain any partition files.\n", input)
		sanityChecksFailed = true
	}

	if smcParticles < 1 {
		log.Println("Error: Invalid smc-particles: ", smcParticles)
		sanityChecksFailed = true
	}
	previousFiles := splitList(previous)
	for _, file := range previousFiles {
		if !checkExist("--previous", file) {
			sanityChecksFailed = true
		}
	}
	if truePartition != "" && !checkExist("--true-partition", truePartition) {
		sanityChecksFailed = true
	}
	if calcAdjMI && truePartition == "" {
		log.Println("Warning: The --calc-adj-mi flag is set without --true-partition. The flag is ignored.")
		calcAdjMI = false
	}
	if !checkThreads(nrOfThreads) {
		sanityChecksFailed = true
	}
	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, MergePartitionsHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " merge-partitions ", input, " ", output, " --smc-particles ", smcParticles)
	if previous != "" {
		fmt.Fprint(&command, " --previous ", previous)
	}
	if truePartition != "" {
		fmt.Fprint(&command, " --true-partition ", truePartition)
	}
	if calcAdjMI {
		fmt.Fprint(&command, " --calc-adj-mi")
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
	if profile != "" {
		fmt.Fprint(&command, " --profile ", profile)
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	g := &glomerator.Glomerator{Debug: debug}
	if truePartition != "" {
		if g.Truth, err = clusterpath.ReadTruth(truePartition); err != nil {
			return err
		}
		if debug {
			if err = g.PrintTruePartition(log.Writer()); err != nil {
				return err
			}
		}
	}

	var history *glomerator.History
	if len(previousFiles) > 0 {
		err = timedRun(timed, profile, "Reading previous partitions.", 1, func() (err error) {
			history, err = g.ReadHistory(previousFiles, smcParticles, calcAdjMI)
			return err
		})
		if err != nil {
			return err
		}
	}

	var paths []*clusterpath.ClusterPath
	err = timedRun(timed, profile, fmt.Sprintf("Merging partitions of %v processes.", len(filesToMerge)), 2, func() (err error) {
		paths, err = g.ReadCachedAgglomeration(filesToMerge, smcParticles, history, calcAdjMI)
		return err
	})
	if err != nil {
		return err
	}

	for i, path := range paths {
		if best := path.BestIndex(); best >= 0 {
			log.Printf("Path %v: best partition has %v clusters with logprob %v.\n", i, len(path.Partitions[best]), path.Logprobs[best])
		}
	}

	return timedRun(timed, profile, "Write to file.", 3, func() error {
		return writePaths(fullOutputPath, paths)
	})
}
