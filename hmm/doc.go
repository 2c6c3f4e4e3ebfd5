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
Package hmm builds the per-gene hidden Markov models used to annotate
and cluster B-cell receptor sequences.

A model for one germline gene consists of an init state, optional
left-hand insertion states (one per nucleotide), a linear chain of
internal states (one per germline position, starting at the first
position that can be entered) and, for j genes with unphysical
insertions, a self-looping right-hand insertion state. The terminal
state "end" is only ever named as a transition target.

Transition probabilities are derived from smoothed erosion and
insertion length distributions, and emission probabilities from
per-position mutation frequencies (see package params). Every state is
checked for normalization before it is added to a model, so a model
that is written out is always well-formed.

Models are serialized as YAML documents, one per gene, named after the
sanitized gene name.
*/
package hmm
