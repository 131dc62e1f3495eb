// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func boolPtr(value bool) *bool { return &value }

func TestParseJSONCWithComments(t *testing.T) {
	document := []byte(`{
		// Results release automatically above the k-anonymity floor,
		// or to the resident statistician regardless of aggregation.
		"safe_zone": {
			"at_least_n_of": {
				"n": 1,
				"of": [
					{"aggregation": {"min_size": 10}},
					{"user_id": "aabbcc"}, // trailing comma below is fine
				],
			},
		},
		"unsafe": "review",
	}`)

	parsed, err := Parse(document)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Unsafe != HandlingReview {
		t.Errorf("Unsafe = %q, want review", parsed.Unsafe)
	}
	combinator := parsed.SafeZone.AtLeastNOf
	if combinator == nil || combinator.N != 1 || len(combinator.Of) != 2 {
		t.Fatalf("SafeZone = %+v, want at_least_n_of with 2 sub-rules", parsed.SafeZone)
	}
	if combinator.Of[0].Aggregation == nil || combinator.Of[0].Aggregation.MinSize != 10 {
		t.Errorf("first sub-rule = %+v, want aggregation min 10", combinator.Of[0])
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.jsonc")
	contents := `{
		"safe_zone": {"aggregation": {"min_size": 5}}, // five-row floor
		"unsafe": "reject"
	}`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	parsed, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if parsed.Unsafe != HandlingReject {
		t.Errorf("Unsafe = %q, want reject", parsed.Unsafe)
	}
}

func TestValidateRejectsBadDocuments(t *testing.T) {
	cases := map[string]*Policy{
		"unknown handling": {
			SafeZone: Rule{Always: boolPtr(true)},
			Unsafe:   "escalate",
		},
		"empty rule": {
			SafeZone: Rule{},
			Unsafe:   HandlingReject,
		},
		"two variants set": {
			SafeZone: Rule{UserID: "aabbcc", Always: boolPtr(true)},
			Unsafe:   HandlingReject,
		},
		"zero aggregation floor": {
			SafeZone: Rule{Aggregation: &AggregationRule{MinSize: 0}},
			Unsafe:   HandlingReject,
		},
		"threshold above sub-rule count": {
			SafeZone: Rule{AtLeastNOf: &AtLeastNOfRule{
				N:  3,
				Of: []Rule{{Always: boolPtr(true)}, {Always: boolPtr(false)}},
			}},
			Unsafe: HandlingReject,
		},
		"invalid nested sub-rule": {
			SafeZone: Rule{AtLeastNOf: &AtLeastNOfRule{
				N:  1,
				Of: []Rule{{}},
			}},
			Unsafe: HandlingReject,
		},
	}
	for name, p := range cases {
		if err := p.Validate(); !errors.Is(err, ErrInvalidPolicy) {
			t.Errorf("%s: Validate = %v, want ErrInvalidPolicy", name, err)
		}
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	if _, err := Parse([]byte(`{"safe_zone":`)); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("Parse of truncated document = %v, want ErrInvalidPolicy", err)
	}
}
