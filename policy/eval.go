// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"

	"github.com/cloister-systems/cloister/plan"
)

// Request is the input to evaluation: a validated plan, its
// contribution annotation, and who is asking.
type Request struct {
	Plan         *plan.Plan
	Contribution plan.Contribution
	RequesterID  string
}

// Verdict is the evaluator's decision.
type Verdict struct {
	// Safe is true when the safe zone rule matched and the results may
	// release without owner involvement.
	Safe bool

	// Failures explains, rule by rule, why the request fell outside
	// the safe zone. Empty when Safe.
	Failures []string
}

// Evaluate decides whether the request falls inside the policy's safe
// zone. It is pure; the caller applies the policy's unsafe handling
// when the verdict is not safe.
func (p *Policy) Evaluate(request Request) Verdict {
	matched, failures := evalRule(&p.SafeZone, request)
	if matched {
		return Verdict{Safe: true}
	}
	return Verdict{Failures: failures}
}

func evalRule(rule *Rule, request Request) (bool, []string) {
	switch {
	case rule.Always != nil:
		if *rule.Always {
			return true, nil
		}
		return false, []string{"policy never releases automatically"}

	case rule.UserID != "":
		if request.RequesterID == rule.UserID {
			return true, nil
		}
		return false, []string{fmt.Sprintf("requester %s is not the permitted user %s", request.RequesterID, rule.UserID)}

	case rule.Aggregation != nil:
		return evalAggregation(rule.Aggregation, request)

	case rule.AtLeastNOf != nil:
		return evalAtLeastNOf(rule.AtLeastNOf, request)
	}
	// Validate rejects empty rules; treat one defensively as no match.
	return false, []string{"empty rule"}
}

func evalAggregation(rule *AggregationRule, request Request) (bool, []string) {
	var failures []string
	for _, sink := range request.Plan.Sinks() {
		folded := request.Contribution[sink]
		if folded >= rule.MinSize {
			continue
		}
		failures = append(failures, fmt.Sprintf(
			"sink %q folds %d source rows per output row, policy requires at least %d",
			request.Plan.Nodes[sink].Name, folded, rule.MinSize))
	}
	return len(failures) == 0, failures
}

func evalAtLeastNOf(rule *AtLeastNOfRule, request Request) (bool, []string) {
	matched := 0
	var failures []string
	for index := range rule.Of {
		ok, subFailures := evalRule(&rule.Of[index], request)
		if ok {
			matched++
			continue
		}
		failures = append(failures, subFailures...)
	}
	if matched >= rule.N {
		return true, nil
	}
	summary := fmt.Sprintf("%d of %d sub-rules matched, policy requires %d", matched, len(rule.Of), rule.N)
	return false, append([]string{summary}, failures...)
}
