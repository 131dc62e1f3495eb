// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/cloister-systems/cloister/lib/codec"
)

var (
	// ErrMalformedPlan means the plan's structure is invalid: bad
	// indices, wrong arity, missing per-kind fields, or no sink.
	ErrMalformedPlan = errors.New("malformed plan")

	// ErrUnknownDataset means a source node references a dataset the
	// server does not hold.
	ErrUnknownDataset = errors.New("unknown dataset")
)

// Kind identifies a plan node variant.
type Kind string

const (
	// KindSource reads a named dataset. No inputs.
	KindSource Kind = "source"
	// KindSelect projects a subset of columns. One input.
	KindSelect Kind = "select"
	// KindFilter keeps rows matching a predicate. One input.
	KindFilter Kind = "filter"
	// KindGroupBy partitions rows by key columns. One input.
	KindGroupBy Kind = "groupby"
	// KindAggregate folds each group to one row. One input, which must
	// be a groupby node.
	KindAggregate Kind = "aggregate"
	// KindJoin matches rows across two inputs on key columns.
	KindJoin Kind = "join"
	// KindSink marks a result the user wants released. One input.
	KindSink Kind = "sink"
)

// Node is one step of a plan. Which fields are meaningful depends on
// Kind; Validate enforces the per-kind shape. The JSON tags serve plan
// files authored by hand and submitted through the CLI; CBOR is the
// wire and hashing encoding.
type Node struct {
	Kind Kind `cbor:"kind" json:"kind"`

	// Inputs are indices of earlier nodes feeding this one.
	Inputs []int `cbor:"inputs,omitempty" json:"inputs,omitempty"`

	// Dataset names the dataset a source node reads.
	Dataset string `cbor:"dataset,omitempty" json:"dataset,omitempty"`

	// Columns are the projected columns of a select, the keys of a
	// groupby, or the join keys of a join.
	Columns []string `cbor:"columns,omitempty" json:"columns,omitempty"`

	// Predicate is a filter's row condition, an opaque expression
	// evaluated by the engine.
	Predicate string `cbor:"predicate,omitempty" json:"predicate,omitempty"`

	// Function is the aggregate's fold (count, sum, mean, ...).
	Function string `cbor:"function,omitempty" json:"function,omitempty"`

	// MinGroupSize is the smallest group cardinality the aggregate
	// will fold; the engine drops smaller groups. Must be at least 1.
	MinGroupSize int `cbor:"min_group_size,omitempty" json:"min_group_size,omitempty"`

	// Name labels a sink's released result.
	Name string `cbor:"name,omitempty" json:"name,omitempty"`
}

// Plan is an ordered node list forming a DAG by construction.
type Plan struct {
	Nodes []Node `cbor:"nodes" json:"nodes"`
}

// Sinks returns the indices of the plan's sink nodes in order.
func (p *Plan) Sinks() []int {
	var sinks []int
	for index, node := range p.Nodes {
		if node.Kind == KindSink {
			sinks = append(sinks, index)
		}
	}
	return sinks
}

// Datasets returns the dataset names the plan reads, deduplicated, in
// first-reference order.
func (p *Plan) Datasets() []string {
	seen := make(map[string]bool)
	var names []string
	for _, node := range p.Nodes {
		if node.Kind != KindSource || seen[node.Dataset] {
			continue
		}
		seen[node.Dataset] = true
		names = append(names, node.Dataset)
	}
	return names
}

// ID returns the plan's content address: the lowercase hex BLAKE3 hash
// of its deterministic CBOR encoding. Structurally identical plans get
// identical IDs regardless of who submits them.
func (p *Plan) ID() (string, error) {
	encoded, err := codec.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding plan: %w", err)
	}
	digest := blake3.Sum256(encoded)
	return hex.EncodeToString(digest[:]), nil
}
