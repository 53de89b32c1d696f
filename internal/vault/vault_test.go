// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package vault

import (
	"context"
	"testing"
)

// fakeVault is an in-memory stand-in used only to prove Vault's interface
// shape is implementable and wired correctly; it is not the encrypted
// SQLite collaborator itself.
type fakeVault struct {
	opened bool
	rows   map[string][]Row
}

func newFakeVault() *fakeVault {
	return &fakeVault{rows: make(map[string][]Row)}
}

func (f *fakeVault) Open(ctx context.Context, opts Options) error {
	f.opened = true
	return nil
}

func (f *fakeVault) Query(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	if !f.opened {
		return nil, ErrNotOpen
	}
	return f.rows[query], nil
}

func (f *fakeVault) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	if !f.opened {
		return 0, ErrNotOpen
	}
	f.rows[query] = append(f.rows[query], Row{"args": args})
	return 1, nil
}

func (f *fakeVault) Close() error {
	f.opened = false
	return nil
}

func TestVaultContractRoundTrip(t *testing.T) {
	var v Vault = newFakeVault()

	if _, err := v.Query(context.Background(), "select 1"); err != ErrNotOpen {
		t.Fatalf("expected ErrNotOpen before Open, got %v", err)
	}

	if err := v.Open(context.Background(), Options{WrapPath: "/tmp/wrap", DBPath: "/tmp/vault.db"}); err != nil {
		t.Fatalf("Open: %v", err)
	}

	n, err := v.Exec(context.Background(), "insert into t values (?)", 42)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row affected, got %d", n)
	}

	rows, err := v.Query(context.Background(), "insert into t values (?)")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	if err := v.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
