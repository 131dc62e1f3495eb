// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine defines the execution collaborator the gate hands
// validated plans to. Cloister does not implement a dataframe engine;
// it decides whether results may leave. The Runner interface is the
// seam where a real engine plugs in.
//
// The Echo runner is the built-in implementation: it "executes" a plan
// by resolving its source datasets and materializes the stored frames
// themselves. It exists for integration flows and tests, where the
// interesting behavior is the release decision, not the computation.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/cloister-systems/cloister/datastore"
	"github.com/cloister-systems/cloister/lib/secret"
	"github.com/cloister-systems/cloister/plan"
)

// ErrNoSuchHandle means the handle does not refer to a live execution.
var ErrNoSuchHandle = errors.New("no such execution handle")

// Handle refers to an executed plan whose results are held by the
// runner until released or materialized.
type Handle struct {
	// ID is the runner's reference for this execution.
	ID string `cbor:"id"`

	// PlanID is the content address of the executed plan.
	PlanID string `cbor:"plan_id"`
}

// Runner executes plans and materializes their results.
type Runner interface {
	// Execute runs a validated plan and returns a handle to its
	// results. Execution must not release anything: the results stay
	// inside the runner until Materialize.
	Execute(ctx context.Context, p *plan.Plan) (Handle, error)

	// Materialize returns the result bytes for a handle.
	Materialize(ctx context.Context, handle Handle) ([]byte, error)

	// Release frees the results behind a handle without materializing
	// them. Called when a release request is rejected or times out.
	Release(handle Handle)
}

// Echo is the datastore-backed reference runner: Materialize returns
// the plan's source frames, concatenated in first-reference order.
type Echo struct {
	store    *datastore.Store
	identity *secret.Buffer

	mu      sync.Mutex
	pending map[string]*plan.Plan
}

// NewEcho returns an Echo runner reading frames from store with the
// given age identity. The identity is borrowed for the runner's
// lifetime and not closed.
func NewEcho(store *datastore.Store, identity *secret.Buffer) *Echo {
	return &Echo{
		store:    store,
		identity: identity,
		pending:  make(map[string]*plan.Plan),
	}
}

// Execute verifies the plan's datasets exist and parks the plan under a
// fresh handle.
func (e *Echo) Execute(ctx context.Context, p *plan.Plan) (Handle, error) {
	for _, dataset := range p.Datasets() {
		if _, err := e.store.Get(ctx, dataset); err != nil {
			return Handle{}, fmt.Errorf("resolving dataset %q: %w", dataset, err)
		}
	}

	planID, err := p.ID()
	if err != nil {
		return Handle{}, err
	}

	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return Handle{}, fmt.Errorf("generating handle: %w", err)
	}
	handle := Handle{ID: hex.EncodeToString(raw[:]), PlanID: planID}

	e.mu.Lock()
	e.pending[handle.ID] = p
	e.mu.Unlock()
	return handle, nil
}

// Materialize reads the source frames of the handle's plan and returns
// them concatenated. The handle stays live; Release frees it.
func (e *Echo) Materialize(ctx context.Context, handle Handle) ([]byte, error) {
	e.mu.Lock()
	p, ok := e.pending[handle.ID]
	e.mu.Unlock()
	if !ok {
		return nil, ErrNoSuchHandle
	}

	var result []byte
	for _, dataset := range p.Datasets() {
		frame, err := e.store.Frame(ctx, dataset, e.identity)
		if err != nil {
			return nil, fmt.Errorf("materializing dataset %q: %w", dataset, err)
		}
		result = append(result, frame.Bytes()...)
		frame.Close()
	}
	return result, nil
}

// Release forgets the handle. Idempotent.
func (e *Echo) Release(handle Handle) {
	e.mu.Lock()
	delete(e.pending, handle.ID)
	e.mu.Unlock()
}
