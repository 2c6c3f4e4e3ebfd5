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
	"path/filepath"
	"runtime"
	"strings"

	"github.com/exascience/vdjprep/fasta"
	"github.com/exascience/vdjprep/hmm"
	"github.com/exascience/vdjprep/params"
)

// BuildHmmsHelp is the help string for this command.
const BuildHmmsHelp = "build-hmms parameters:\n" +
	"vdjprep build-hmms --parameter-dir path --germline-dir path\n" +
	"[--outdir path]\n" +
	"[--only-genes gene[:gene]...]\n" +
	"[--min-observations nr]\n" +
	"[--allow-unphysical-insertions]\n" +
	"[--no-insertion-base-content]\n" +
	"[--joint-emission]\n" +
	"[--naive]\n" +
	"[--debug]\n" +
	"[--nr-of-threads nr]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// parameterGenes returns the genes that occur in the gene-occurrence
// tables of the parameter directory and have a germline sequence.
func parameterGenes(dir *params.Dir, germlines *fasta.Germlines) ([]string, error) {
	var genes []string
	for _, region := range params.Regions {
		counts, err := dir.GeneCounts(region)
		if err != nil {
			return nil, err
		}
		for _, gene := range counts.Genes {
			if _, ok := germlines.Seqs[gene]; ok {
				genes = append(genes, gene)
			} else {
				log.Printf("Warning: no germline sequence for %v, skipping it.\n", gene)
			}
		}
	}
	return genes, nil
}

// BuildHmms implements the vdjprep build-hmms command.
func BuildHmms() error {
	var (
		parameterDir, germlineDir, outdir, onlyGenes string
		minObservations, nrOfThreads                 int
		allowUnphysicalInsertions, noBaseContent     bool
		jointEmission, naive, debug, timed           bool
		profile, logPath                             string
	)

	var flags flag.FlagSet

	flags.StringVar(&parameterDir, "parameter-dir", "", "directory with the parameter tables")
	flags.StringVar(&germlineDir, "germline-dir", "", "directory with the germline fasta files")
	flags.StringVar(&outdir, "outdir", "", "directory for the models (default <parameter-dir>/hmms)")
	flags.StringVar(&onlyGenes, "only-genes", "", "colon-separated list of genes or model names to build models for")
	flags.IntVar(&minObservations, "min-observations", hmm.DefaultMinObservations, "minimum number of observations before falling back to similar genes")
	flags.BoolVar(&allowUnphysicalInsertions, "allow-unphysical-insertions", false, "add insertions before the v gene and after the j gene")
	flags.BoolVar(&noBaseContent, "no-insertion-base-content", false, "use uniform base content for insertions")
	flags.BoolVar(&jointEmission, "joint-emission", false, "emit the joint probability of paired sequences")
	flags.BoolVar(&naive, "naive", false, "build models without mutations")
	flags.BoolVar(&debug, "debug", false, "print diagnostics")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 2, BuildHmmsHelp)

	if err := setLogOutput(logPath); err != nil {
		return err
	}

	// sanity checks

	var sanityChecksFailed bool

	if !checkDirectory("--parameter-dir", parameterDir) {
		sanityChecksFailed = true
	}
	if !checkDirectory("--germline-dir", germlineDir) {
		sanityChecksFailed = true
	}
	if outdir == "" && parameterDir != "" {
		outdir = filepath.Join(parameterDir, "hmms")
	}
	if !checkCreate("--outdir", filepath.Join(outdir, "check")) {
		sanityChecksFailed = true
	}
	if minObservations < 1 {
		log.Println("Error: Invalid min-observations: ", minObservations)
		sanityChecksFailed = true
	}
	if !checkThreads(nrOfThreads) {
		sanityChecksFailed = true
	}
	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, BuildHmmsHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " build-hmms --parameter-dir ", parameterDir, " --germline-dir ", germlineDir, " --outdir ", outdir)
	if onlyGenes != "" {
		fmt.Fprint(&command, " --only-genes ", onlyGenes)
	}
	fmt.Fprint(&command, " --min-observations ", minObservations)
	if allowUnphysicalInsertions {
		fmt.Fprint(&command, " --allow-unphysical-insertions")
	}
	if noBaseContent {
		fmt.Fprint(&command, " --no-insertion-base-content")
	}
	if jointEmission {
		fmt.Fprint(&command, " --joint-emission")
	}
	if naive {
		fmt.Fprint(&command, " --naive")
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

	options := hmm.DefaultWriterOptions()
	options.AllowUnphysicalInsertions = allowUnphysicalInsertions
	options.MinObservations = minObservations
	options.InsertionBaseContent = !noBaseContent
	options.JointEmission = jointEmission
	options.Naive = naive
	options.Debug = debug

	dir := params.NewDir(parameterDir)

	var germlines *fasta.Germlines
	err := timedRun(timed, profile, "Reading germline sequences.", 1, func() (err error) {
		germlines, err = fasta.ReadGermlines(germlineDir)
		return err
	})
	if err != nil {
		return err
	}

	var genes []string
	if onlyGenes != "" {
		genes = splitList(onlyGenes)
	} else if genes, err = parameterGenes(dir, germlines); err != nil {
		return err
	}

	return timedRun(timed, profile, fmt.Sprintf("Writing models of %v genes.", len(genes)), 2, func() error {
		if err := hmm.WriteAll(dir, germlines.Seqs, genes, outdir, options); err != nil {
			return err
		}
		log.Printf("Wrote %v models to %v.\n", len(genes), strings.TrimSuffix(outdir, "/"))
		return nil
	})
}
