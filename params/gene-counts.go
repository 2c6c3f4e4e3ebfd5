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
	"log"

	"github.com/exascience/vdjprep/internal"
)

var (
	// ErrZeroGeneCount is returned when a gene-occurrence table has
	// no counts at all.
	ErrZeroGeneCount = errors.New("params: zero total gene count")

	// ErrNoReplacementGenes is returned when no set of replacement
	// genes has enough observations.
	ErrNoReplacementGenes = errors.New("params: no replacement genes")
)

// GeneCounts holds how often each gene of one region was observed.
type GeneCounts struct {
	Filename string
	// Genes in the order of the table.
	Genes  []string
	Counts map[string]int
	Total  int
}

// GeneCountsFilename returns the name of the gene-occurrence table of
// the given region.
func GeneCountsFilename(region Region) string {
	return string(region) + "_gene-probs.csv"
}

func parseGeneCounts(region Region) func(string) (interface{}, error) {
	return func(filename string) (interface{}, error) {
		table, err := readCSV(filename)
		if err != nil {
			return nil, err
		}
		geneIndex, err := table.column(region.GeneColumn())
		if err != nil {
			return nil, err
		}
		countIndex, err := table.column("count")
		if err != nil {
			return nil, err
		}
		result := &GeneCounts{Filename: filename, Counts: make(map[string]int)}
		for line, record := range table.records {
			count, err := internal.ParseInt("count", record[countIndex])
			if err != nil {
				return nil, fmt.Errorf("%v line %v: %w", filename, line+2, err)
			}
			gene := record[geneIndex]
			if _, ok := result.Counts[gene]; !ok {
				result.Genes = append(result.Genes, gene)
			}
			result.Counts[gene] += count
			result.Total += count
		}
		if result.Total < 1 {
			return nil, fmt.Errorf("%w in %v", ErrZeroGeneCount, filename)
		}
		return result, nil
	}
}

// GeneCounts returns the gene-occurrence counts of the given region.
func (dir *Dir) GeneCounts(region Region) (*GeneCounts, error) {
	counts, err := dir.cached(GeneCountsFilename(region), parseGeneCounts(region))
	if err != nil {
		return nil, err
	}
	return counts.(*GeneCounts), nil
}

// GeneCount returns how often the given gene was observed. A gene
// that is missing from the table was observed zero times.
func (dir *Dir) GeneCount(gene string) (int, error) {
	region, err := GeneRegion(gene)
	if err != nil {
		return 0, err
	}
	counts, err := dir.GeneCounts(region)
	if err != nil {
		return 0, err
	}
	count, ok := counts.Counts[gene]
	if !ok {
		log.Printf("Warning: %v not found in overall gene probs, returning zero.\n", gene)
	}
	return count, nil
}

// GeneProb returns the observed probability of choosing the given
// gene among the genes of its region.
func (dir *Dir) GeneProb(gene string) (float64, error) {
	region, err := GeneRegion(gene)
	if err != nil {
		return 0, err
	}
	counts, err := dir.GeneCounts(region)
	if err != nil {
		return 0, err
	}
	count, ok := counts.Counts[gene]
	if !ok {
		log.Printf("Warning: %v not found in overall gene probs, returning zero.\n", gene)
		return 0, nil
	}
	return float64(count) / float64(counts.Total), nil
}

type geneGroup struct {
	kind  string
	genes []string
}

func (dir *Dir) replacementGroups(gene string) ([]geneGroup, *GeneCounts, error) {
	region, err := GeneRegion(gene)
	if err != nil {
		return nil, nil, err
	}
	counts, err := dir.GeneCounts(region)
	if err != nil {
		return nil, nil, err
	}
	groups := []geneGroup{{kind: "allele"}, {kind: "primary version"}, {kind: "all"}}
	for _, g := range counts.Genes {
		if AreAlleles(g, gene) {
			groups[0].genes = append(groups[0].genes, g)
		}
		if SamePrimaryVersion(g, gene) {
			groups[1].genes = append(groups[1].genes, g)
		}
		groups[2].genes = append(groups[2].genes, g)
	}
	return groups, counts, nil
}

// ReplacementGenes returns the genes whose statistics are pooled in
// place of those of a gene that was observed fewer than minCounts
// times. It tries, in order, the alleles of the gene, the genes of the
// same primary version, and all genes of the region, and returns the
// first group whose counts sum to at least minCounts. The gene itself
// is included if it was observed at all.
func (dir *Dir) ReplacementGenes(gene string, minCounts int, debug bool) ([]string, error) {
	groups, counts, err := dir.replacementGroups(gene)
	if err != nil {
		return nil, err
	}
	for _, group := range groups {
		var total int
		for _, g := range group.genes {
			total += counts.Counts[g]
		}
		if total >= minCounts {
			if debug {
				log.Printf("returning all %vs for %v (%v genes, %v total counts)\n", group.kind, gene, len(group.genes), total)
			}
			return group.genes, nil
		}
		if debug {
			log.Printf("not enough counts in %vs for %v\n", group.kind, gene)
		}
	}
	return nil, fmt.Errorf("%w for %v with at least %v counts in %v", ErrNoReplacementGenes, gene, minCounts, dir.Path)
}
