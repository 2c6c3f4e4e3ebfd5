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
Package clusterpath represents partitions of sequence identifiers into
clonal families, and the sequences of partitions that an agglomerative
clustering passes through.

A Partition is written as clusters separated by semicolons, with the
identifiers of a cluster separated by colons, for example "a:b;c".

A ClusterPath holds one agglomeration history: for every step the
partition, its log probability, the number of processes that produced
it, its log weight (for sequential Monte Carlo) and, optionally, its
adjusted mutual information with a reference partition.
*/
package clusterpath
