// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single chokepoint for CBOR encoding in Cloister.
//
// Everything that crosses a trust boundary — socket protocol envelopes,
// composite plans, policies, stored dataset records — is encoded here
// with Core Deterministic Encoding (RFC 8949 §4.2). Determinism matters
// because plan identifiers are content hashes of the encoded plan: the
// same logical plan must always produce identical bytes.
//
// Consumers import only this package, never fxamacker/cbor directly.
package codec
