// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data: the
// server's at-rest sealing identity and private signing keys handled by
// the CLI.
//
// Buffer allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped.
//
// Because the memory lives outside the Go heap, the garbage collector
// never copies or relocates it — the only way to guarantee secret
// material does not linger in memory after it is no longer needed.
package secret
