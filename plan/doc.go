// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package plan models the query plans users submit against datasets.
//
// A plan is an ordered list of nodes. Each node names its inputs by
// index, and an input index must be strictly less than the node's own
// position. Acyclicity is therefore structural: a well-formed plan
// cannot express a cycle, and validation never needs a graph traversal
// to prove it.
//
// Validation checks shape only (indices, arity, per-kind fields). It
// does not resolve dataset names; that happens at submission, where the
// datastore is consulted.
//
// Annotation computes the minimum source-row contribution flowing into
// each node: how many raw dataset rows, at minimum, are folded into one
// output row at that point in the plan. The policy evaluator compares
// the contribution arriving at each sink against the dataset's
// aggregation floor.
package plan
