// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// ErrInvalidPolicy means the policy document is structurally invalid.
var ErrInvalidPolicy = errors.New("invalid policy")

// Handling says what happens to a release request the safe zone does
// not cover.
type Handling string

const (
	// HandlingReject refuses unsafe requests outright.
	HandlingReject Handling = "reject"
	// HandlingReview parks unsafe requests for an owner verdict.
	HandlingReview Handling = "review"
)

// Policy is the access rule attached to a dataset. It is bound at
// upload and immutable for the dataset's lifetime.
type Policy struct {
	// SafeZone is the rule under which results release automatically.
	SafeZone Rule `json:"safe_zone" cbor:"safe_zone"`

	// Unsafe is the fate of requests outside the safe zone.
	Unsafe Handling `json:"unsafe" cbor:"unsafe"`
}

// Rule is one node of the policy rule language. Exactly one field must
// be set; Validate enforces this.
type Rule struct {
	// Aggregation matches when every sink of the plan folds at least
	// MinSize source rows into each output row.
	Aggregation *AggregationRule `json:"aggregation,omitempty" cbor:"aggregation,omitempty"`

	// UserID matches when the requester's key ID equals this value.
	UserID string `json:"user_id,omitempty" cbor:"user_id,omitempty"`

	// AtLeastNOf matches when at least N of its sub-rules match.
	AtLeastNOf *AtLeastNOfRule `json:"at_least_n_of,omitempty" cbor:"at_least_n_of,omitempty"`

	// Always, when set, matches unconditionally (true) or never
	// (false). An always-false safe zone routes everything to the
	// unsafe handling.
	Always *bool `json:"always,omitempty" cbor:"always,omitempty"`
}

// AggregationRule is the aggregation floor.
type AggregationRule struct {
	// MinSize is the smallest acceptable per-output-row source
	// contribution at any sink.
	MinSize int `json:"min_size" cbor:"min_size"`
}

// AtLeastNOfRule is the threshold combinator.
type AtLeastNOfRule struct {
	N  int    `json:"n" cbor:"n"`
	Of []Rule `json:"of" cbor:"of"`
}

// Parse decodes a JSONC policy document and validates it.
func Parse(document []byte) (*Policy, error) {
	var parsed Policy
	if err := json.Unmarshal(jsonc.ToJSON(document), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := parsed.Validate(); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// ParseFile reads and parses a JSONC policy file.
func ParseFile(path string) (*Policy, error) {
	document, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	parsed, err := Parse(document)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return parsed, nil
}

// Validate checks the policy's structure.
func (p *Policy) Validate() error {
	if p.Unsafe != HandlingReject && p.Unsafe != HandlingReview {
		return fmt.Errorf("%w: unsafe handling %q, want %q or %q", ErrInvalidPolicy, p.Unsafe, HandlingReject, HandlingReview)
	}
	return p.SafeZone.validate("safe_zone")
}

func (r *Rule) validate(path string) error {
	set := 0
	if r.Aggregation != nil {
		set++
	}
	if r.UserID != "" {
		set++
	}
	if r.AtLeastNOf != nil {
		set++
	}
	if r.Always != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: %s sets %d rule variants, want exactly 1", ErrInvalidPolicy, path, set)
	}

	switch {
	case r.Aggregation != nil:
		if r.Aggregation.MinSize < 1 {
			return fmt.Errorf("%w: %s.aggregation.min_size is %d, want at least 1", ErrInvalidPolicy, path, r.Aggregation.MinSize)
		}
	case r.AtLeastNOf != nil:
		combinator := r.AtLeastNOf
		if len(combinator.Of) == 0 {
			return fmt.Errorf("%w: %s.at_least_n_of has no sub-rules", ErrInvalidPolicy, path)
		}
		if combinator.N < 1 || combinator.N > len(combinator.Of) {
			return fmt.Errorf("%w: %s.at_least_n_of.n is %d, want between 1 and %d", ErrInvalidPolicy, path, combinator.N, len(combinator.Of))
		}
		for index := range combinator.Of {
			sub := fmt.Sprintf("%s.at_least_n_of.of[%d]", path, index)
			if err := combinator.Of[index].validate(sub); err != nil {
				return err
			}
		}
	}
	return nil
}
