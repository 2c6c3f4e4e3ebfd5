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

/*
Package glomerator clusters sequences into clonal families and merges
the agglomeration histories computed by independent processes.

NaiveSeqGlomerate performs a fast single-linkage agglomeration on the
Hamming distance between inferred naive sequences, typically to divide
the sequences among processes. ReadCachedAgglomeration reads the
per-process agglomeration paths written by the decoder and merges them
into one path per sequential Monte Carlo particle.
*/
package glomerator
