// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestFakeNowStandsStill(t *testing.T) {
	c := Fake(epoch)
	if got := c.Now(); !got.Equal(epoch) {
		t.Errorf("Now() = %v, want %v", got, epoch)
	}
	if got := c.Now(); !got.Equal(epoch) {
		t.Errorf("second Now() = %v, want %v", got, epoch)
	}
}

func TestFakeAdvanceMovesNow(t *testing.T) {
	c := Fake(epoch)
	c.Advance(90 * time.Second)
	want := epoch.Add(90 * time.Second)
	if got := c.Now(); !got.Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(time.Minute)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	c.Advance(time.Minute)
	select {
	case fired := <-ch:
		if !fired.Equal(epoch.Add(time.Minute)) {
			t.Errorf("fired at %v, want %v", fired, epoch.Add(time.Minute))
		}
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	c := Fake(epoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeAfterPartialAdvanceDoesNotFire(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(10 * time.Second)
	c.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}
	c.Advance(time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeWaitForWaiters(t *testing.T) {
	c := Fake(epoch)
	fired := make(chan struct{})
	go func() {
		<-c.After(5 * time.Second)
		close(fired)
	}()

	c.WaitForWaiters(1)
	c.Advance(5 * time.Second)

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter goroutine never observed the advance")
	}
}

func TestFakePendingCount(t *testing.T) {
	c := Fake(epoch)
	c.After(time.Second)
	c.After(2 * time.Second)
	if got := c.PendingCount(); got != 2 {
		t.Errorf("PendingCount() = %d, want 2", got)
	}
	c.Advance(time.Second)
	if got := c.PendingCount(); got != 1 {
		t.Errorf("PendingCount() after partial advance = %d, want 1", got)
	}
}
