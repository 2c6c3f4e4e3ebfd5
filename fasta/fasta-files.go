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

package fasta

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/exascience/vdjprep/internal"
	"github.com/exascience/vdjprep/params"
)

// ErrInvalidFasta is returned for files that are not in FASTA format.
var ErrInvalidFasta = errors.New("fasta: invalid fasta file")

// Germlines holds germline sequences by gene name, and the gene names
// in file order.
type Germlines struct {
	Genes []string
	Seqs  map[string]string
}

func (germlines *Germlines) add(name string, seq []byte) {
	if _, ok := germlines.Seqs[name]; !ok {
		germlines.Genes = append(germlines.Genes, name)
	}
	germlines.Seqs[name] = string(seq)
}

func nameFromHeader(b []byte) string {
	i := 1
	for ; i < len(b); i++ {
		if c := b[i]; c >= '!' && c <= '~' {
			break
		}
	}
	j := i + 1
	for ; j < len(b); j++ {
		if c := b[j]; c < '!' || c > '~' {
			break
		}
	}
	if i >= len(b) {
		return ""
	}
	return string(b[i:j])
}

func openFasta(f *os.File) (io.Reader, error) {
	buf := bufio.NewReader(f)
	magic, err := buf.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		return gzip.NewReader(buf)
	}
	return buf, nil
}

// ParseFasta sequentially parses a FASTA file, which may be gzipped,
// and adds its sequences in upper case to germlines. The name of a
// sequence is the first word of its header.
func (germlines *Germlines) ParseFasta(filename string) (err error) {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer internal.Close(f, &err)
	r, err := openFasta(f)
	if err != nil {
		return fmt.Errorf("error reading %v: %w", filename, err)
	}
	scanner := bufio.NewScanner(r)

	var name string
	seq := internal.ReserveByteBuffer()
	defer func() {
		internal.ReleaseByteBuffer(seq)
	}()
	for scanner.Scan() {
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		if b[0] == '>' {
			if name != "" {
				germlines.add(name, seq)
			}
			if name = nameFromHeader(b); name == "" {
				return fmt.Errorf("%w %v - empty header", ErrInvalidFasta, filename)
			}
			seq = seq[:0]
			continue
		}
		if name == "" {
			return fmt.Errorf("%w %v - missing first header", ErrInvalidFasta, filename)
		}
		seq = append(seq, bytes.ToUpper(b)...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading %v: %w", filename, err)
	}
	if name == "" {
		return fmt.Errorf("%w %v - no sequences", ErrInvalidFasta, filename)
	}
	germlines.add(name, seq)
	return nil
}

// GermlineFilename returns the name of the FASTA file with the
// germline genes of a region.
func GermlineFilename(region params.Region) string {
	return "igh" + string(region) + ".fasta"
}

// ReadGermlines reads the germline genes of all regions from dir.
func ReadGermlines(dir string) (*Germlines, error) {
	germlines := &Germlines{Seqs: make(map[string]string)}
	for _, region := range params.Regions {
		if err := germlines.ParseFasta(filepath.Join(dir, GermlineFilename(region))); err != nil {
			return nil, err
		}
	}
	return germlines, nil
}
