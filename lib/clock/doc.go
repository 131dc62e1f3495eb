// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability.
//
// Session expiry, challenge expiry, and the review-wait timeout are all
// time-driven, and all of their tests need to move time deterministically.
// Production code injects [Real]; tests inject [Fake] and call Advance.
//
// Any function that would call time.Now or time.After takes a Clock (or
// is a method on a struct carrying one) instead of calling the time
// package directly.
package clock
