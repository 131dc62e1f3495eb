// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity holds the registry of public keys permitted to talk
// to a Cloister server, split into two disjoint roles: owners, who
// upload datasets and rule on release reviews, and users, who submit
// query plans against them.
//
// Registration is an offline act. Keys are Ed25519 public keys in PKIX
// PEM files placed under the configured key directory (owners/*.pem and
// users/*.pem) and loaded once at startup; there is no runtime
// registration endpoint.
//
// A key's identity is its key ID: the lowercase hex SHA-256 of the PKIX
// DER encoding of the public key. Key IDs are stable across restarts
// and safe to log.
package identity
