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

package hmm

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/exascience/pargo/parallel"
	"github.com/google/uuid"

	"github.com/exascience/vdjprep/params"
)

// WriteAll builds the models of the given genes in parallel and
// stores them in outdir. Models are first written to a staging
// directory inside outdir, and only moved into outdir when all of them
// were built successfully, so that a failed run never leaves a partial
// set of models behind. Genes may also be given by the sanitized names
// of their models.
func WriteAll(dir *params.Dir, germlines map[string]string, genes []string, outdir string, options WriterOptions) (err error) {
	if err = os.MkdirAll(outdir, 0700); err != nil {
		return err
	}
	staging := filepath.Join(outdir, ".staging-"+uuid.New().String())
	if err = os.Mkdir(staging, 0700); err != nil {
		return err
	}
	defer func() {
		if nerr := os.RemoveAll(staging); err == nil {
			err = nerr
		}
	}()

	errs := make([]error, len(genes))
	filenames := make([]string, len(genes))
	parallel.Range(0, len(genes), 0, func(low, high int) {
		for i := low; i < high; i++ {
			gene := params.UnsanitizeName(genes[i])
			germline, ok := germlines[gene]
			if !ok {
				errs[i] = fmt.Errorf("no germline sequence for %v", gene)
				continue
			}
			w, err := NewWriter(dir, gene, germline, options)
			if err != nil {
				errs[i] = err
				continue
			}
			hmm, err := w.Build()
			if err != nil {
				errs[i] = err
				continue
			}
			if errs[i] = hmm.Write(staging); errs[i] == nil {
				filenames[i] = hmm.Filename()
			}
		}
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	for _, filename := range filenames {
		if err = os.Rename(filepath.Join(staging, filename), filepath.Join(outdir, filename)); err != nil {
			return err
		}
	}
	if options.Debug {
		log.Printf("wrote %v models to %v\n", len(filenames), outdir)
	}
	return nil
}
