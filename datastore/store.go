// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package datastore persists uploaded datasets: the raw data frame,
// sealed and compressed at rest, together with the policy the owner
// bound to it at upload.
//
// The policy is immutable for the dataset's lifetime. There is no
// update path: re-governing data means uploading it as a new dataset
// under a new name.
//
// Frames are compressed (probed per frame), then sealed to the
// configured age recipients before they touch SQLite. Reading a frame
// back requires one of the matching age identities; dataset metadata
// and policies read without it.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/cloister-systems/cloister/lib/clock"
	"github.com/cloister-systems/cloister/lib/codec"
	"github.com/cloister-systems/cloister/lib/sealed"
	"github.com/cloister-systems/cloister/lib/secret"
	"github.com/cloister-systems/cloister/policy"
)

var (
	// ErrNotFound means no dataset has the requested name.
	ErrNotFound = errors.New("dataset not found")

	// ErrExists means the name is taken. Datasets and their policies
	// are immutable, so an upload never overwrites.
	ErrExists = errors.New("dataset already exists")
)

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	name              TEXT PRIMARY KEY,
	owner_key_id      TEXT NOT NULL,
	policy            BLOB NOT NULL,
	frame             BLOB NOT NULL,
	compression       INTEGER NOT NULL,
	uncompressed_size INTEGER NOT NULL,
	created_at        INTEGER NOT NULL
) STRICT;
`

// Dataset is a stored dataset's metadata. The frame itself is only
// reachable through Frame, which requires the sealing identity.
type Dataset struct {
	Name       string
	OwnerKeyID string
	Policy     *policy.Policy
	CreatedAt  time.Time
}

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the SQLite database file. Created if absent; the parent
	// directory must exist.
	Path string

	// PoolSize is the number of pooled connections. Must be positive.
	PoolSize int

	// SealingRecipients are the age public keys frames are sealed to.
	// At least one is required.
	SealingRecipients []string

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger

	// Clock supplies upload timestamps. Nil means the real clock.
	Clock clock.Clock
}

// Store is the dataset store. Safe for concurrent use.
type Store struct {
	pool       *sqlitex.Pool
	recipients []string
	clk        clock.Clock
	logger     *slog.Logger
	path       string
}

// Open opens (creating if needed) the dataset database and prepares
// the connection pool. The caller must Close the store.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("datastore: Path is required")
	}
	if cfg.PoolSize <= 0 {
		return nil, fmt.Errorf("datastore: PoolSize must be positive, got %d", cfg.PoolSize)
	}
	if len(cfg.SealingRecipients) == 0 {
		return nil, fmt.Errorf("datastore: at least one sealing recipient is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    cfg.PoolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("datastore: opening %s: %w", cfg.Path, err)
	}

	logger.Info("datastore opened", "path", cfg.Path, "pool_size", cfg.PoolSize)

	return &Store{
		pool:       pool,
		recipients: cfg.SealingRecipients,
		clk:        clk,
		logger:     logger,
		path:       cfg.Path,
	}, nil
}

// prepareConnection applies the standard pragmas and the schema. Runs
// once per pooled connection, on first use.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("datastore: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("datastore: applying schema: %w", err)
	}
	return nil
}

// Close closes the pool, blocking until borrowed connections return.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("datastore: closing %s: %w", s.path, err)
	}
	return nil
}

// Put stores a new dataset: the policy as deterministic CBOR, the
// frame compressed and sealed. Fails with ErrExists if the name is
// taken.
func (s *Store) Put(ctx context.Context, name, ownerKeyID string, pol *policy.Policy, frame []byte) error {
	if name == "" {
		return fmt.Errorf("datastore: dataset name is required")
	}
	if err := pol.Validate(); err != nil {
		return err
	}

	policyBytes, err := codec.Marshal(pol)
	if err != nil {
		return fmt.Errorf("datastore: encoding policy: %w", err)
	}

	compressed, tag := compressFrame(frame)
	sealedFrame, err := sealed.Seal(compressed, s.recipients)
	if err != nil {
		return fmt.Errorf("datastore: sealing frame: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("datastore: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO datasets (name, owner_key_id, policy, frame, compression, uncompressed_size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				name, ownerKeyID, policyBytes, sealedFrame,
				int64(tag), int64(len(frame)), s.clk.Now().Unix(),
			},
		})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintPrimaryKey {
			return fmt.Errorf("%w: %s", ErrExists, name)
		}
		return fmt.Errorf("datastore: inserting %s: %w", name, err)
	}

	s.logger.Info("dataset stored",
		"dataset", name,
		"owner", ownerKeyID,
		"compression", tag.String(),
		"frame_bytes", len(frame),
	)
	return nil
}

// Get returns a dataset's metadata and policy.
func (s *Store) Get(ctx context.Context, name string) (Dataset, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Dataset{}, fmt.Errorf("datastore: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var dataset Dataset
	found := false
	err = sqlitex.Execute(conn,
		`SELECT owner_key_id, policy, created_at FROM datasets WHERE name = ?`,
		&sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				dataset.Name = name
				dataset.OwnerKeyID = stmt.ColumnText(0)

				policyBytes := make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, policyBytes)
				var pol policy.Policy
				if err := codec.Unmarshal(policyBytes, &pol); err != nil {
					return fmt.Errorf("decoding policy for %s: %w", name, err)
				}
				dataset.Policy = &pol

				dataset.CreatedAt = time.Unix(stmt.ColumnInt64(2), 0).UTC()
				return nil
			},
		})
	if err != nil {
		return Dataset{}, fmt.Errorf("datastore: reading %s: %w", name, err)
	}
	if !found {
		return Dataset{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return dataset, nil
}

// Frame unseals and decompresses a dataset's frame using the given age
// identity. The identity is borrowed and not closed. The returned
// buffer holds the raw frame and must be closed by the caller.
func (s *Store) Frame(ctx context.Context, name string, identity *secret.Buffer) (*secret.Buffer, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("datastore: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var sealedFrame []byte
	var tag CompressionTag
	var uncompressedSize int
	found := false
	err = sqlitex.Execute(conn,
		`SELECT frame, compression, uncompressed_size FROM datasets WHERE name = ?`,
		&sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				sealedFrame = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, sealedFrame)
				tag = CompressionTag(stmt.ColumnInt64(1))
				uncompressedSize = int(stmt.ColumnInt64(2))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("datastore: reading frame of %s: %w", name, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	compressed, err := sealed.Unseal(sealedFrame, identity)
	if err != nil {
		return nil, fmt.Errorf("datastore: unsealing frame of %s: %w", name, err)
	}
	defer compressed.Close()

	frame, err := decompressFrame(compressed.Bytes(), tag, uncompressedSize)
	if err != nil {
		return nil, fmt.Errorf("datastore: frame of %s: %w", name, err)
	}

	buffer, err := secret.NewFromBytes(frame)
	if err != nil {
		return nil, fmt.Errorf("datastore: protecting frame of %s: %w", name, err)
	}
	return buffer, nil
}

// List returns all datasets' metadata, name order.
func (s *Store) List(ctx context.Context) ([]Dataset, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("datastore: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var datasets []Dataset
	err = sqlitex.Execute(conn,
		`SELECT name, owner_key_id, policy, created_at FROM datasets ORDER BY name`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				name := stmt.ColumnText(0)
				policyBytes := make([]byte, stmt.ColumnLen(2))
				stmt.ColumnBytes(2, policyBytes)
				var pol policy.Policy
				if err := codec.Unmarshal(policyBytes, &pol); err != nil {
					return fmt.Errorf("decoding policy for %s: %w", name, err)
				}
				datasets = append(datasets, Dataset{
					Name:       name,
					OwnerKeyID: stmt.ColumnText(1),
					Policy:     &pol,
					CreatedAt:  time.Unix(stmt.ColumnInt64(3), 0).UTC(),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("datastore: listing datasets: %w", err)
	}
	return datasets, nil
}
