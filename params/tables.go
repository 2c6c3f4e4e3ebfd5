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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/exascience/pargo/sync"

	"github.com/exascience/vdjprep/bins"
	"github.com/exascience/vdjprep/internal"
)

var (
	// ErrEmptyTable is returned when a parameter table has no usable
	// rows.
	ErrEmptyTable = errors.New("params: empty parameter table")

	// ErrMissingColumn is returned when a parameter table lacks a
	// required column.
	ErrMissingColumn = errors.New("params: missing column")
)

// A Dir is a parameter directory.
//
// It is safe for multiple goroutines to use the same Dir concurrently.
type Dir struct {
	Path   string
	tables *sync.Map
}

// NewDir returns a Dir for the given path.
func NewDir(path string) *Dir {
	return &Dir{
		Path:   path,
		tables: sync.NewMap(4 * runtime.GOMAXPROCS(0)),
	}
}

type tableKey string

func (key tableKey) Hash() uint64 {
	return internal.StringHash(string(key))
}

// A CountRow is one row of a count table.
type CountRow struct {
	// Gene is empty if the table does not depend on a gene.
	Gene  string
	Value int
	Count float64
}

// A CountTable holds the rows of one count table.
type CountTable struct {
	Filename string
	HasGene  bool
	Rows     []CountRow
}

// A csvTable is a parsed CSV file with a header line.
type csvTable struct {
	filename string
	columns  map[string]int
	records  [][]string
}

func readCSV(filename string) (table *csvTable, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer internal.Close(f, &err)
	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %v has no header", ErrEmptyTable, filename)
	} else if err != nil {
		return nil, fmt.Errorf("error reading %v: %w", filename, err)
	}
	table = &csvTable{filename: filename, columns: make(map[string]int, len(header))}
	for i, column := range header {
		table.columns[column] = i
	}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("error reading %v: %w", filename, err)
		}
		table.records = append(table.records, record)
	}
	return table, nil
}

func (table *csvTable) column(name string) (int, error) {
	if i, ok := table.columns[name]; ok {
		return i, nil
	}
	return -1, fmt.Errorf("%w %v in %v", ErrMissingColumn, name, table.filename)
}

func (dir *Dir) cached(filename string, parse func(string) (interface{}, error)) (interface{}, error) {
	key := tableKey(filename)
	if table, ok := dir.tables.Load(key); ok {
		return table, nil
	}
	table, err := parse(filepath.Join(dir.Path, filename))
	if err != nil {
		return nil, err
	}
	table, _ = dir.tables.LoadOrStore(key, table)
	return table, nil
}

func parseCountTable(column, geneColumn string) func(string) (interface{}, error) {
	return func(filename string) (interface{}, error) {
		table, err := readCSV(filename)
		if err != nil {
			return nil, err
		}
		valueIndex, err := table.column(column)
		if err != nil {
			return nil, err
		}
		countIndex, err := table.column("count")
		if err != nil {
			return nil, err
		}
		geneIndex, hasGene := table.columns[geneColumn]
		result := &CountTable{Filename: filename, HasGene: hasGene, Rows: make([]CountRow, 0, len(table.records))}
		for line, record := range table.records {
			value, err := internal.ParseInt(column, record[valueIndex])
			if err != nil {
				return nil, fmt.Errorf("%v line %v: %w", filename, line+2, err)
			}
			count, err := internal.ParseFloat("count", record[countIndex])
			if err != nil {
				return nil, fmt.Errorf("%v line %v: %w", filename, line+2, err)
			}
			row := CountRow{Value: value, Count: count}
			if hasGene {
				row.Gene = record[geneIndex]
			}
			result.Rows = append(result.Rows, row)
		}
		return result, nil
	}
}

// CountTable returns the count table for the given erosion (such as
// "v_3p_del") or insertion (such as "vd_insertion") column. Rows are
// labelled with the gene of the given region when the table depends
// on it.
func (dir *Dir) CountTable(column string, region Region) (*CountTable, error) {
	filename := ParameterFilename(column, ColumnDependencies(column))
	table, err := dir.cached(filename, parseCountTable(column, region.GeneColumn()))
	if err != nil {
		return nil, err
	}
	return table.(*CountTable), nil
}

// Counts sums the counts of the given column over the rows of the
// approved genes. Rows of tables that do not depend on a gene are
// always used. Rows whose value is limit or more are skipped, unless
// limit is negative. It also returns the set of genes whose rows were
// used.
func (dir *Dir) Counts(column string, region Region, approvedGenes []string, limit int) (bins.Distribution, map[string]bool, error) {
	table, err := dir.CountTable(column, region)
	if err != nil {
		return nil, nil, err
	}
	approved := make(map[string]bool, len(approvedGenes))
	for _, gene := range approvedGenes {
		approved[gene] = true
	}
	result := make(bins.Distribution)
	genesUsed := make(map[string]bool)
	for _, row := range table.Rows {
		if table.HasGene && !approved[row.Gene] {
			continue
		}
		if limit >= 0 && row.Value >= limit {
			continue
		}
		result.Add(row.Value, row.Count)
		if table.HasGene {
			genesUsed[row.Gene] = true
		}
	}
	if len(result) == 0 {
		return nil, nil, fmt.Errorf("%w: no %v counts for %v in %v", ErrEmptyTable, column, approvedGenes, table.Filename)
	}
	return result, genesUsed, nil
}
