// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package datastore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloister-systems/cloister/lib/clock"
	"github.com/cloister-systems/cloister/lib/sealed"
	"github.com/cloister-systems/cloister/policy"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func boolPtr(value bool) *bool { return &value }

func testPolicy() *policy.Policy {
	return &policy.Policy{
		SafeZone: policy.Rule{Aggregation: &policy.AggregationRule{MinSize: 10}},
		Unsafe:   policy.HandlingReview,
	}
}

func openTestStore(t *testing.T) (*Store, *sealed.Keypair) {
	t.Helper()
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })

	store, err := Open(Config{
		Path:              filepath.Join(t.TempDir(), "datasets.db"),
		PoolSize:          2,
		SealingRecipients: []string{keypair.PublicKey},
		Clock:             clock.Fake(epoch),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, keypair
}

// compressible frame: repeated CSV-ish text.
var testFrame = bytes.Repeat([]byte("region,age,income\nnorth,34,51000\n"), 64)

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	if err := store.Put(ctx, "census", "owner-key", testPolicy(), testFrame); err != nil {
		t.Fatalf("Put: %v", err)
	}

	dataset, err := store.Get(ctx, "census")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if dataset.OwnerKeyID != "owner-key" {
		t.Errorf("OwnerKeyID = %q, want owner-key", dataset.OwnerKeyID)
	}
	if !dataset.CreatedAt.Equal(epoch) {
		t.Errorf("CreatedAt = %v, want %v", dataset.CreatedAt, epoch)
	}
	if dataset.Policy.Unsafe != policy.HandlingReview {
		t.Errorf("policy handling = %q, want review", dataset.Policy.Unsafe)
	}
	if got := dataset.Policy.SafeZone.Aggregation; got == nil || got.MinSize != 10 {
		t.Errorf("policy safe zone = %+v, want aggregation floor 10", dataset.Policy.SafeZone)
	}
}

func TestPutRefusesOverwrite(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	if err := store.Put(ctx, "census", "owner-key", testPolicy(), testFrame); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Even the same owner with a looser policy cannot replace the
	// dataset; policies are bound for life.
	looser := &policy.Policy{
		SafeZone: policy.Rule{Always: boolPtr(true)},
		Unsafe:   policy.HandlingReject,
	}
	if err := store.Put(ctx, "census", "owner-key", looser, testFrame); !errors.Is(err, ErrExists) {
		t.Errorf("second Put = %v, want ErrExists", err)
	}

	dataset, err := store.Get(ctx, "census")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if dataset.Policy.SafeZone.Aggregation == nil {
		t.Error("original policy was replaced")
	}
}

func TestGetUnknownDataset(t *testing.T) {
	store, _ := openTestStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, keypair := openTestStore(t)

	if err := store.Put(ctx, "census", "owner-key", testPolicy(), testFrame); err != nil {
		t.Fatalf("Put: %v", err)
	}

	frame, err := store.Frame(ctx, "census", keypair.PrivateKey)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	defer frame.Close()

	if !bytes.Equal(frame.Bytes(), testFrame) {
		t.Error("recovered frame differs from upload")
	}
}

func TestFrameNeedsMatchingIdentity(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	if err := store.Put(ctx, "census", "owner-key", testPolicy(), testFrame); err != nil {
		t.Fatalf("Put: %v", err)
	}

	stranger, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer stranger.Close()

	if _, err := store.Frame(ctx, "census", stranger.PrivateKey); err == nil {
		t.Error("Frame with wrong identity succeeded, want error")
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	for _, name := range []string{"zoning", "census", "payroll"} {
		if err := store.Put(ctx, name, "owner-key", testPolicy(), testFrame); err != nil {
			t.Fatalf("Put %s: %v", name, err)
		}
	}

	datasets, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(datasets) != 3 {
		t.Fatalf("List returned %d datasets, want 3", len(datasets))
	}
	want := []string{"census", "payroll", "zoning"}
	for index, dataset := range datasets {
		if dataset.Name != want[index] {
			t.Errorf("datasets[%d] = %q, want %q", index, dataset.Name, want[index])
		}
	}
}

func TestCompressFrameRoundTrip(t *testing.T) {
	cases := map[string][]byte{
		"text":           bytes.Repeat([]byte("abcdefgh"), 512),
		"empty":          {},
		"incompressible": randomishBytes(4096),
	}
	for name, data := range cases {
		stored, tag := compressFrame(data)
		recovered, err := decompressFrame(stored, tag, len(data))
		if err != nil {
			t.Errorf("%s: decompressFrame(%s): %v", name, tag, err)
			continue
		}
		if !bytes.Equal(recovered, data) {
			t.Errorf("%s: round trip through %s corrupted data", name, tag)
		}
	}
}

func TestCompressFrameSkipsIncompressible(t *testing.T) {
	_, tag := compressFrame(randomishBytes(4096))
	if tag != CompressionNone {
		t.Errorf("tag = %s, want none for incompressible data", tag)
	}
}

// randomishBytes produces deterministic high-entropy data without
// pulling in crypto/rand (keeps the test reproducible).
func randomishBytes(length int) []byte {
	data := make([]byte, length)
	state := uint64(0x9e3779b97f4a7c15)
	for index := range data {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		data[index] = byte(state)
	}
	return data
}
