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

// Package bins implements the sparse histograms from which HMM
// transition probabilities are derived.
//
// A Distribution maps integer bin indices (erosion or insertion
// lengths) to non-negative weights. Distributions are filled from
// empirical counts, smoothed with Interpolate, and normalized once
// with Normalize, after which they are treated as immutable.
package bins
