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
	"strings"
)

// A Region is one of the three germline segment types.
type Region string

// The segment types, from left to right.
const (
	V Region = "v"
	D Region = "d"
	J Region = "j"
)

// Regions lists the segment types from left to right.
var Regions = []Region{V, D, J}

// Nukes are the symbols of the nucleotide alphabet.
var Nukes = []string{"A", "C", "G", "T"}

// Erosions whose lengths are observed directly.
var RealErosions = []string{"v_3p", "d_5p", "d_3p", "j_5p"}

// Effective erosions account for reads that do not extend to the
// outer ends of the v or j gene.
var EffectiveErosions = []string{"v_5p", "j_3p"}

// IsRealErosion checks whether erosion is one of RealErosions.
func IsRealErosion(erosion string) bool {
	for _, e := range RealErosions {
		if e == erosion {
			return true
		}
	}
	return false
}

// ErrBadGeneName is returned for gene names that do not identify a
// region.
var ErrBadGeneName = errors.New("params: faulty gene name")

// GeneRegion returns the region of the given gene, such as V for
// IGHV3-23*04.
func GeneRegion(gene string) (Region, error) {
	if !strings.HasPrefix(gene, "IGH") || len(gene) < 4 {
		return "", fmt.Errorf("%w %v", ErrBadGeneName, gene)
	}
	switch region := Region(strings.ToLower(gene[3:4])); region {
	case V, D, J:
		return region, nil
	default:
		return "", fmt.Errorf("%w %v", ErrBadGeneName, gene)
	}
}

// GeneColumn returns the name of the gene column for region.
func (region Region) GeneColumn() string {
	return string(region) + "_gene"
}

var (
	sanitizer   = strings.NewReplacer("*", "_star_", "/", "_slash_")
	unsanitizer = strings.NewReplacer("_star_", "*", "_slash_", "/")
)

// SanitizeName replaces characters in gene names that cannot be used
// in file names.
func SanitizeName(gene string) string {
	return sanitizer.Replace(gene)
}

// UnsanitizeName reverses SanitizeName.
func UnsanitizeName(name string) string {
	return unsanitizer.Replace(name)
}

// AreAlleles checks whether two genes are alleles of the same gene
// version: everything left of the asterisk is the same, and
// everything more than two characters right of it is the same.
func AreAlleles(gene1, gene2 string) bool {
	star := strings.Index(gene1, "*")
	if star < 0 {
		return gene1 == gene2
	}
	left := func(g string) string {
		if star > len(g) {
			return g
		}
		return g[:star]
	}
	right := func(g string) string {
		if star+3 > len(g) {
			return ""
		}
		return g[star+3:]
	}
	return left(gene1) == left(gene2) && right(gene1) == right(gene2)
}

// SamePrimaryVersion checks whether two genes agree up to the first
// dash.
func SamePrimaryVersion(gene1, gene2 string) bool {
	primary := func(g string) string {
		if i := strings.Index(g, "-"); i >= 0 {
			return g[:i]
		}
		return g
	}
	return primary(gene1) == primary(gene2)
}

var columnDependencies = map[string][]string{
	"v_gene":       nil,
	"v_5p_del":     {"v_gene"},
	"v_3p_del":     {"v_gene"},
	"d_gene":       nil,
	"d_5p_del":     {"d_gene"},
	"d_3p_del":     {"d_gene"},
	"j_gene":       nil,
	"j_5p_del":     {"j_gene"},
	"j_3p_del":     {"j_gene"},
	"fv_insertion": nil,
	"vd_insertion": {"d_gene"},
	"dj_insertion": {"j_gene"},
	"jf_insertion": nil,
}

// ColumnDependencies returns the columns the given column is assumed
// to depend on.
func ColumnDependencies(column string) []string {
	return columnDependencies[column]
}

// ParameterFilename returns the name of the file holding the counts
// for column, given the columns it depends on. For example,
// v_3p_del depending on v_gene is stored in v_gene-v_3p_del-probs.csv.
func ParameterFilename(column string, deps []string) string {
	name := column + "-probs.csv"
	for _, dep := range deps {
		name = dep + "-" + name
	}
	return name
}
