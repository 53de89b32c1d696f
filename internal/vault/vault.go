// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package vault declares the contract for the encrypted SQLite security
// vault: an out-of-scope external collaborator (spec.md §1) that wraps a
// device-bound key around a SQLite database file. This package owns only
// the Go interface a vault implementation must satisfy plus the option
// shape the runtime passes it at construction; the AES-GCM/HKDF wrapping,
// device fingerprinting, and SQLite driver binding are the collaborator's
// business logic and are not implemented here.
package vault

import "context"

// Options configures how a vault implementation locates and unlocks its
// backing store. WrapPath holds the encrypted master-key blob; DBPath is
// the SQLite file the unwrapped key decrypts.
type Options struct {
	WrapPath string
	DBPath   string
}

// Row is one query result row, keyed by column name. A vault
// implementation decides its own column typing; callers type-assert.
type Row map[string]interface{}

// Vault is the fixed interface a security-vault collaborator exposes to
// the runtime. Open is idempotent: calling it again with the same
// Options after a successful Open is a no-op.
type Vault interface {
	// Open unwraps the master key and opens the database at opts.DBPath.
	Open(ctx context.Context, opts Options) error
	// Query runs a read query and returns its rows.
	Query(ctx context.Context, query string, args ...interface{}) ([]Row, error)
	// Exec runs a write statement and returns the number of rows affected.
	Exec(ctx context.Context, query string, args ...interface{}) (int64, error)
	// Close releases the database handle. Idempotent.
	Close() error
}

// ErrNotOpen is returned by an implementation when a Query/Exec call is
// made before a successful Open.
var ErrNotOpen = vaultError("vault: not open")

type vaultError string

func (e vaultError) Error() string { return string(e) }
