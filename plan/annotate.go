// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package plan

// Contribution is the minimum number of raw source rows folded into a
// single output row at each node. Index-aligned with Plan.Nodes.
type Contribution []int

// Annotate computes the per-node contribution for a validated plan.
//
// The rules are deliberately conservative: the number is a floor the
// engine is guaranteed to respect, never an estimate.
//
//   - source: each output row is one raw row, contribution 1.
//   - select, filter, groupby, sink: rows pass through unchanged or are
//     dropped, the per-row contribution of the input is preserved.
//   - aggregate: each output row folds at least MinGroupSize input
//     rows; contribution resets to MinGroupSize.
//   - join: a joined row is backed by one row from each side; the floor
//     is the smaller side's contribution, since a single under-
//     aggregated side is enough to expose its rows.
//
// Annotate assumes Validate has passed and panics on out-of-range
// inputs.
func (p *Plan) Annotate() Contribution {
	contribution := make(Contribution, len(p.Nodes))
	for index, node := range p.Nodes {
		switch node.Kind {
		case KindSource:
			contribution[index] = 1
		case KindSelect, KindFilter, KindGroupBy, KindSink:
			contribution[index] = contribution[node.Inputs[0]]
		case KindAggregate:
			contribution[index] = node.MinGroupSize
		case KindJoin:
			left := contribution[node.Inputs[0]]
			right := contribution[node.Inputs[1]]
			contribution[index] = min(left, right)
		}
	}
	return contribution
}
