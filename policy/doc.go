// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy defines the access rules a data owner attaches to a
// dataset and the evaluator that decides whether a plan's results may
// be released.
//
// A policy has two parts: a safe zone rule, and what to do when a
// release request falls outside it. Rules form a small combinator
// language: an aggregation floor, a permitted user, an at-least-n-of
// combinator over sub-rules, and the two constants. Owners write
// policies as JSONC files (JSON with comments and trailing commas), so
// a policy can document its own reasoning inline.
//
// Evaluation is pure: a policy, an annotated plan, and the requesting
// identity go in, a verdict comes out. The evaluator never mutates
// state and never blocks; acting on an unsafe verdict (rejecting, or
// parking the request for owner review) is the caller's job.
package policy
