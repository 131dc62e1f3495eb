// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import "fmt"

var nodeArity = map[Kind]int{
	KindSource:    0,
	KindSelect:    1,
	KindFilter:    1,
	KindGroupBy:   1,
	KindAggregate: 1,
	KindJoin:      2,
	KindSink:      1,
}

// Validate checks the plan's structure. Every violation is reported as
// ErrMalformedPlan with the offending node named. Dataset names are not
// resolved here.
func (p *Plan) Validate() error {
	if len(p.Nodes) == 0 {
		return fmt.Errorf("%w: plan has no nodes", ErrMalformedPlan)
	}

	consumed := make([]bool, len(p.Nodes))

	for index, node := range p.Nodes {
		arity, known := nodeArity[node.Kind]
		if !known {
			return fmt.Errorf("%w: node %d has unknown kind %q", ErrMalformedPlan, index, node.Kind)
		}
		if len(node.Inputs) != arity {
			return fmt.Errorf("%w: node %d (%s) has %d inputs, want %d", ErrMalformedPlan, index, node.Kind, len(node.Inputs), arity)
		}
		for _, input := range node.Inputs {
			if input < 0 || input >= index {
				return fmt.Errorf("%w: node %d (%s) references node %d, inputs must be earlier nodes", ErrMalformedPlan, index, node.Kind, input)
			}
			if p.Nodes[input].Kind == KindSink {
				return fmt.Errorf("%w: node %d (%s) reads from sink node %d", ErrMalformedPlan, index, node.Kind, input)
			}
			consumed[input] = true
		}

		if err := validateFields(index, node); err != nil {
			return err
		}
		if node.Kind == KindAggregate && p.Nodes[node.Inputs[0]].Kind != KindGroupBy {
			return fmt.Errorf("%w: node %d aggregates over %s node %d, want groupby", ErrMalformedPlan, index, p.Nodes[node.Inputs[0]].Kind, node.Inputs[0])
		}
	}

	sinks := p.Sinks()
	if len(sinks) == 0 {
		return fmt.Errorf("%w: plan has no sink", ErrMalformedPlan)
	}
	// A non-sink node that feeds nothing sits outside every sink's
	// input cone, so no contribution accounting covers it. Such nodes
	// are rejected rather than ignored.
	for index, node := range p.Nodes {
		if node.Kind != KindSink && !consumed[index] {
			return fmt.Errorf("%w: node %d (%s) is not consumed by any later node", ErrMalformedPlan, index, node.Kind)
		}
	}
	return nil
}

func validateFields(index int, node Node) error {
	switch node.Kind {
	case KindSource:
		if node.Dataset == "" {
			return fmt.Errorf("%w: source node %d names no dataset", ErrMalformedPlan, index)
		}
	case KindSelect, KindGroupBy:
		if len(node.Columns) == 0 {
			return fmt.Errorf("%w: %s node %d names no columns", ErrMalformedPlan, node.Kind, index)
		}
	case KindFilter:
		if node.Predicate == "" {
			return fmt.Errorf("%w: filter node %d has no predicate", ErrMalformedPlan, index)
		}
	case KindAggregate:
		if node.Function == "" {
			return fmt.Errorf("%w: aggregate node %d names no function", ErrMalformedPlan, index)
		}
		if node.MinGroupSize < 1 {
			return fmt.Errorf("%w: aggregate node %d has min group size %d, want at least 1", ErrMalformedPlan, index, node.MinGroupSize)
		}
	case KindJoin:
		if len(node.Columns) == 0 {
			return fmt.Errorf("%w: join node %d names no key columns", ErrMalformedPlan, index)
		}
	case KindSink:
		if node.Name == "" {
			return fmt.Errorf("%w: sink node %d has no name", ErrMalformedPlan, index)
		}
	}
	return nil
}
