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

// Package params reads the empirical parameter tables from which gene
// HMMs are built: gene-occurrence counts, erosion and insertion length
// counts, insertion base content, and per-position mutation
// frequencies.
//
// All tables live in one parameter directory, represented by a Dir.
// Parsed count tables are cached in the Dir, so that many gene HMMs
// can be built in parallel from the same Dir without reparsing the
// same files.
package params
