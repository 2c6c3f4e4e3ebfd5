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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadNaiveSeqs(t *testing.T) {
	filename := writeFile(t, "naive.csv", "naive_seq,unique_id\nacgt,a\nACGA,b\n")
	naiveSeqs, err := ReadNaiveSeqs(filename)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "ACGT", "b": "ACGA"}, naiveSeqs)

	_, err = ReadNaiveSeqs(writeFile(t, "naive.csv", "unique_id,naive_seq\na,ACGT\na,ACGA\n"))
	assert.Error(t, err)
	_, err = ReadNaiveSeqs(writeFile(t, "naive.csv", "unique_id,seq\na,ACGT\n"))
	assert.Error(t, err)
	_, err = ReadNaiveSeqs(filename + ".missing")
	assert.Error(t, err)
}
