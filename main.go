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

// vdjprep builds the per-gene hidden Markov models used to annotate
// B-cell receptor sequences, and agglomerates and merges clonal
// partitions of those sequences.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/exascience/vdjprep/cmd"
	"github.com/exascience/vdjprep/utils"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: build-hmms, glomerate, merge-partitions, version")
	fmt.Fprint(os.Stderr, "\n", cmd.BuildHmmsHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.GlomerateHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.MergePartitionsHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprintln(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "build-hmms":
		err = cmd.BuildHmms()
	case "glomerate":
		err = cmd.Glomerate()
	case "merge-partitions":
		err = cmd.MergePartitions()
	case "version", "-version", "--version":
		fmt.Println(utils.ProgramName, utils.ProgramVersion)
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}
