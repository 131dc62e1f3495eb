// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package review

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloister-systems/cloister/lib/clock"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func openTicket(t *testing.T, c *Coordinator) Ticket {
	t.Helper()
	ticket, err := c.Open("census", "plan-1", "user-key", []string{"too raw"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return ticket
}

func TestResolveAcceptedReachesAwaiter(t *testing.T) {
	clk := clock.Fake(epoch)
	coordinator := NewCoordinator(clk, 5*time.Minute)
	ticket := openTicket(t, coordinator)

	type result struct {
		resolution Resolution
		err        error
	}
	results := make(chan result, 1)
	go func() {
		resolution, err := coordinator.Await(context.Background(), ticket.ID)
		results <- result{resolution, err}
	}()

	// Wait for Await to park on the timeout timer before resolving.
	clk.WaitForWaiters(1)
	if err := coordinator.Resolve(ticket.ID, OutcomeAccepted, "owner-key"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	got := <-results
	if got.err != nil {
		t.Fatalf("Await: %v", got.err)
	}
	if got.resolution.Outcome != OutcomeAccepted || got.resolution.ResolverID != "owner-key" {
		t.Errorf("resolution = %+v, want accepted by owner-key", got.resolution)
	}
}

func TestSecondResolveFails(t *testing.T) {
	clk := clock.Fake(epoch)
	coordinator := NewCoordinator(clk, 5*time.Minute)
	ticket := openTicket(t, coordinator)

	done := make(chan struct{})
	go func() {
		coordinator.Await(context.Background(), ticket.ID)
		close(done)
	}()
	clk.WaitForWaiters(1)

	if err := coordinator.Resolve(ticket.ID, OutcomeDenied, "first-owner"); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	// Before and after the awaiter consumes the verdict, a second
	// ruling fails the same way.
	err := coordinator.Resolve(ticket.ID, OutcomeAccepted, "second-owner")
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("second Resolve = %v, want ErrAlreadyResolved", err)
	}
	<-done
	err = coordinator.Resolve(ticket.ID, OutcomeAccepted, "second-owner")
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("Resolve after Await returned = %v, want ErrAlreadyResolved", err)
	}
}

func TestConcurrentResolversSingleWinner(t *testing.T) {
	clk := clock.Fake(epoch)
	coordinator := NewCoordinator(clk, 5*time.Minute)
	ticket := openTicket(t, coordinator)

	resolutions := make(chan Resolution, 1)
	go func() {
		resolution, err := coordinator.Await(context.Background(), ticket.ID)
		if err != nil {
			t.Errorf("Await: %v", err)
		}
		resolutions <- resolution
	}()
	clk.WaitForWaiters(1)

	var wg sync.WaitGroup
	wins := make(chan Outcome, 8)
	for _, outcome := range []Outcome{
		OutcomeAccepted, OutcomeDenied, OutcomeAccepted, OutcomeDenied,
	} {
		outcome := outcome
		wg.Add(1)
		go func() {
			defer wg.Done()
			if coordinator.Resolve(ticket.ID, outcome, "racer") == nil {
				wins <- outcome
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []Outcome
	for outcome := range wins {
		winners = append(winners, outcome)
	}
	if len(winners) != 1 {
		t.Fatalf("%d resolvers succeeded, want exactly 1", len(winners))
	}
	resolution := <-resolutions
	if resolution.Outcome != winners[0] {
		t.Errorf("awaiter saw %q, winner recorded %q", resolution.Outcome, winners[0])
	}
}

func TestAwaitTimesOut(t *testing.T) {
	clk := clock.Fake(epoch)
	coordinator := NewCoordinator(clk, 5*time.Minute)
	ticket := openTicket(t, coordinator)

	results := make(chan Resolution, 1)
	go func() {
		resolution, err := coordinator.Await(context.Background(), ticket.ID)
		if err != nil {
			t.Errorf("Await: %v", err)
		}
		results <- resolution
	}()

	clk.WaitForWaiters(1)
	clk.Advance(5 * time.Minute)

	resolution := <-results
	if resolution.Outcome != OutcomeTimedOut {
		t.Errorf("Outcome = %q, want timed_out", resolution.Outcome)
	}

	// The timeout already decided the review; a late ruling cannot
	// override it.
	if err := coordinator.Resolve(ticket.ID, OutcomeAccepted, "late-owner"); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("late Resolve = %v, want ErrAlreadyResolved", err)
	}
	// Nor does a decided ticket linger in the owners' queue.
	if pending := coordinator.Pending(); len(pending) != 0 {
		t.Errorf("Pending after timeout = %d tickets, want 0", len(pending))
	}
}

func TestTombstonesEvictAfterRetentionWindow(t *testing.T) {
	clk := clock.Fake(epoch)
	coordinator := NewCoordinator(clk, time.Minute)
	ticket := openTicket(t, coordinator)

	done := make(chan struct{})
	go func() {
		coordinator.Await(context.Background(), ticket.ID)
		close(done)
	}()
	clk.WaitForWaiters(1)
	clk.Advance(time.Minute)
	<-done

	// Within the retention window the tombstone still answers.
	if err := coordinator.Resolve(ticket.ID, OutcomeAccepted, "owner"); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("Resolve inside retention = %v, want ErrAlreadyResolved", err)
	}

	// A full window later, opening a new review sweeps the tombstone.
	clk.Advance(time.Minute + time.Second)
	openTicket(t, coordinator)
	if err := coordinator.Resolve(ticket.ID, OutcomeAccepted, "owner"); !errors.Is(err, ErrNoSuchReview) {
		t.Errorf("Resolve after eviction = %v, want ErrNoSuchReview", err)
	}
}

func TestAwaitCancelledWithdrawsTicket(t *testing.T) {
	clk := clock.Fake(epoch)
	coordinator := NewCoordinator(clk, 5*time.Minute)
	ticket := openTicket(t, coordinator)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := coordinator.Await(ctx, ticket.ID)
		errs <- err
	}()

	clk.WaitForWaiters(1)
	cancel()

	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Errorf("Await = %v, want context.Canceled", err)
	}
	if err := coordinator.Resolve(ticket.ID, OutcomeAccepted, "owner"); !errors.Is(err, ErrNoSuchReview) {
		t.Errorf("Resolve after withdrawal = %v, want ErrNoSuchReview", err)
	}
}

func TestAwaitUnknownTicket(t *testing.T) {
	coordinator := NewCoordinator(clock.Fake(epoch), time.Minute)
	if _, err := coordinator.Await(context.Background(), "missing"); !errors.Is(err, ErrNoSuchReview) {
		t.Errorf("Await = %v, want ErrNoSuchReview", err)
	}
}

func TestResolveRejectsNonVerdictOutcomes(t *testing.T) {
	coordinator := NewCoordinator(clock.Fake(epoch), time.Minute)
	ticket := openTicket(t, coordinator)

	if err := coordinator.Resolve(ticket.ID, OutcomeTimedOut, "owner"); err == nil {
		t.Error("Resolve to timed_out succeeded, want error")
	}
}

func TestPendingListsOldestFirst(t *testing.T) {
	clk := clock.Fake(epoch)
	coordinator := NewCoordinator(clk, time.Hour)

	first := openTicket(t, coordinator)
	clk.Advance(time.Minute)
	second, err := coordinator.Open("payroll", "plan-2", "other-key", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	pending := coordinator.Pending()
	if len(pending) != 2 {
		t.Fatalf("Pending has %d tickets, want 2", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Errorf("Pending order = [%s %s], want oldest first", pending[0].ID, pending[1].ID)
	}
	if pending[0].Failures[0] != "too raw" {
		t.Errorf("ticket failures = %v", pending[0].Failures)
	}
}
