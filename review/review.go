// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package review coordinates release requests that fell outside a
// policy's safe zone and are waiting for a data owner's verdict.
//
// The requester's call blocks in Await while the ticket sits in the
// pending set for owners to list. Exactly one resolution wins: an
// owner's accept or deny, the decision timeout, or cancellation of the
// requester's context. Late resolutions fail with ErrAlreadyResolved
// rather than silently overriding the recorded outcome.
package review

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloister-systems/cloister/lib/clock"
)

var (
	// ErrNoSuchReview means the ticket ID matches no pending review.
	ErrNoSuchReview = errors.New("no such review")

	// ErrAlreadyResolved means the review already has an outcome.
	ErrAlreadyResolved = errors.New("review already resolved")
)

// Outcome is a review's final state.
type Outcome string

const (
	// OutcomeAccepted releases the results despite the policy verdict.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeDenied refuses the release.
	OutcomeDenied Outcome = "denied"
	// OutcomeTimedOut means no owner ruled within the decision window.
	OutcomeTimedOut Outcome = "timed_out"
)

// Ticket describes a pending review to the owners deciding it.
type Ticket struct {
	// ID is the handle owners pass to Resolve.
	ID string `cbor:"id"`

	// Dataset is the dataset whose policy flagged the request.
	Dataset string `cbor:"dataset"`

	// PlanID is the content address of the submitted plan.
	PlanID string `cbor:"plan_id"`

	// RequesterID is the key ID of the user asking for release.
	RequesterID string `cbor:"requester_id"`

	// Failures are the policy evaluator's reasons the request was not
	// safe, verbatim.
	Failures []string `cbor:"failures"`

	// Submitted is when the request entered review.
	Submitted time.Time `cbor:"submitted"`
}

// Resolution is a review's recorded outcome.
type Resolution struct {
	Outcome Outcome `cbor:"outcome"`

	// ResolverID is the owner key ID that ruled, empty for timeouts
	// and cancellations.
	ResolverID string `cbor:"resolver_id,omitempty"`

	// At is when the outcome was recorded.
	At time.Time `cbor:"at"`
}

type pendingReview struct {
	ticket Ticket
	// resolved carries the single winning resolution to Await. It is
	// buffered so Resolve never blocks on the waiter.
	resolved chan Resolution
	done     bool
	// winner duplicates the resolution for racers that lost the claim,
	// so nobody has to read (and steal) from the channel.
	winner Resolution
	// resolvedAt is when the winning resolution was recorded. Decided
	// entries stay in the map as tombstones so a late Resolve gets
	// ErrAlreadyResolved, and are evicted one decision window later.
	resolvedAt time.Time
}

// Coordinator tracks pending reviews. Safe for concurrent use.
type Coordinator struct {
	mu      sync.Mutex
	clk     clock.Clock
	timeout time.Duration
	pending map[string]*pendingReview
}

// NewCoordinator returns a coordinator whose reviews time out after
// timeout if no owner rules.
func NewCoordinator(clk clock.Clock, timeout time.Duration) *Coordinator {
	return &Coordinator{
		clk:     clk,
		timeout: timeout,
		pending: make(map[string]*pendingReview),
	}
}

// Open registers a new pending review and returns its ticket. The
// caller then blocks in Await; the ticket stays listed in Pending until
// a resolution wins.
func (c *Coordinator) Open(dataset, planID, requesterID string, failures []string) (Ticket, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return Ticket{}, fmt.Errorf("generating review ID: %w", err)
	}

	ticket := Ticket{
		ID:          hex.EncodeToString(raw[:]),
		Dataset:     dataset,
		PlanID:      planID,
		RequesterID: requesterID,
		Failures:    failures,
		Submitted:   c.clk.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictTombstonesLocked()
	c.pending[ticket.ID] = &pendingReview{
		ticket:   ticket,
		resolved: make(chan Resolution, 1),
	}
	return ticket, nil
}

// evictTombstonesLocked drops decided entries that have been tombstoned
// for longer than a full decision window. After that a late Resolve
// falls back to ErrNoSuchReview.
func (c *Coordinator) evictTombstonesLocked() {
	now := c.clk.Now()
	for id, entry := range c.pending {
		if entry.done && now.Sub(entry.resolvedAt) > c.timeout {
			delete(c.pending, id)
		}
	}
}

// Await blocks until the review resolves, times out, or ctx is
// cancelled. On cancellation the ticket is withdrawn and ctx's error
// returned; an owner ruling on it afterwards gets ErrNoSuchReview.
func (c *Coordinator) Await(ctx context.Context, ticketID string) (Resolution, error) {
	c.mu.Lock()
	entry, ok := c.pending[ticketID]
	c.mu.Unlock()
	if !ok {
		return Resolution{}, ErrNoSuchReview
	}

	select {
	case resolution := <-entry.resolved:
		// The decided entry stays behind as a tombstone; a second
		// Resolve must see ErrAlreadyResolved, not ErrNoSuchReview.
		return resolution, nil

	case <-c.clk.After(c.timeout):
		// An owner's verdict may land between the timer firing and the
		// claim; if so, claim returns it and we honor it.
		resolution, _ := c.claim(entry, Resolution{Outcome: OutcomeTimedOut, At: c.clk.Now()})
		return resolution, nil

	case <-ctx.Done():
		c.claim(entry, Resolution{Outcome: OutcomeDenied, At: c.clk.Now()})
		c.remove(ticketID)
		return Resolution{}, ctx.Err()
	}
}

// Resolve records an owner's verdict. Exactly one resolution wins:
// ruling on an already-decided review fails with ErrAlreadyResolved,
// and on an unknown or withdrawn one with ErrNoSuchReview.
func (c *Coordinator) Resolve(ticketID string, outcome Outcome, resolverID string) error {
	if outcome != OutcomeAccepted && outcome != OutcomeDenied {
		return fmt.Errorf("cannot resolve to %q, want %q or %q", outcome, OutcomeAccepted, OutcomeDenied)
	}

	c.mu.Lock()
	entry, ok := c.pending[ticketID]
	c.mu.Unlock()
	if !ok {
		return ErrNoSuchReview
	}

	resolution := Resolution{Outcome: outcome, ResolverID: resolverID, At: c.clk.Now()}
	if _, raced := c.claim(entry, resolution); raced {
		return ErrAlreadyResolved
	}
	return nil
}

// Pending lists open reviews, oldest first.
func (c *Coordinator) Pending() []Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()

	tickets := make([]Ticket, 0, len(c.pending))
	for _, entry := range c.pending {
		if !entry.done {
			tickets = append(tickets, entry.ticket)
		}
	}
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].Submitted.Equal(tickets[j].Submitted) {
			return tickets[i].ID < tickets[j].ID
		}
		return tickets[i].Submitted.Before(tickets[j].Submitted)
	})
	return tickets
}

// claim attempts to record resolution as the review's outcome. If the
// review was already decided, it returns the winning resolution and
// raced=true without touching the channel.
func (c *Coordinator) claim(entry *pendingReview, resolution Resolution) (Resolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.done {
		return entry.winner, true
	}
	entry.done = true
	entry.winner = resolution
	entry.resolvedAt = resolution.At
	entry.resolved <- resolution
	return resolution, false
}

func (c *Coordinator) remove(ticketID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, ticketID)
}
