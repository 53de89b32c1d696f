// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDumpOnlyWritesDumpAndExitsClean(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(cfgPath, []byte("process_name: demo\n"), 0o644); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	code := run([]string{
		"--cfg_file_path", cfgPath,
		"--dump_only",
		"--register_signal=false",
	})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}

	dumpPath := cfgPath + ".dump"
	if _, err := os.Stat(dumpPath); err != nil {
		t.Fatalf("expected dump file at %s: %v", dumpPath, err)
	}
}

func TestNoDumpCfgFileSuppressesDump(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(cfgPath, []byte("process_name: demo\n"), 0o644); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	code := run([]string{
		"--cfg_file_path", cfgPath,
		"--dump_only",
		"--no_dump_cfg_file",
		"--register_signal=false",
	})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}

	dumpPath := cfgPath + ".dump"
	if _, err := os.Stat(dumpPath); !os.IsNotExist(err) {
		t.Fatalf("expected no dump file, stat err: %v", err)
	}
}

func TestUnknownBackendTypeFailsWithNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cfg.yaml")
	yaml := "channel:\n  backends:\n    - type: bogus\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	code := run([]string{
		"--cfg_file_path", cfgPath,
		"--ignore_predefined_cfg",
		"--no_dump_cfg_file",
		"--register_signal=false",
	})
	if code == 0 {
		t.Fatal("expected non-zero exit for unknown backend type")
	}
}
