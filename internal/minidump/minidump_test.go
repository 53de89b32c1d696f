// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package minidump

import "testing"

// noopWriter is a Writer that installs no crash handler; used where no
// real breakpad-backed collaborator is wired in (e.g. non-Linux builds
// or tests), and to prove the interface is implementable.
type noopWriter struct {
	opts Options
	init bool
}

func (w *noopWriter) Initialize(opts Options) error {
	if w.init {
		return nil
	}
	w.opts = opts
	w.init = true
	return nil
}

func (w *noopWriter) MaxDumpCount() int {
	return w.opts.MaxDumpCount
}

func TestOptionsFromEnvDefaults(t *testing.T) {
	t.Setenv(EnvEnabled, "")
	t.Setenv(EnvMaxDumpCount, "")
	t.Setenv(EnvMaxDumpSizeKB, "")
	t.Setenv(EnvEnableRotation, "")

	opts := OptionsFromEnv()
	if !opts.Enabled {
		t.Fatal("expected minidump enabled by default")
	}
	if opts.MaxDumpCount != defaultMaxDumpCount {
		t.Fatalf("expected default max dump count %d, got %d", defaultMaxDumpCount, opts.MaxDumpCount)
	}
	if opts.MaxDumpSizeKB != defaultMaxDumpSizeKB {
		t.Fatalf("expected default max dump size %d, got %d", defaultMaxDumpSizeKB, opts.MaxDumpSizeKB)
	}
	if !opts.EnableRotation {
		t.Fatal("expected rotation enabled by default")
	}
}

func TestOptionsFromEnvFloorsDumpSize(t *testing.T) {
	t.Setenv(EnvMaxDumpSizeKB, "100")

	opts := OptionsFromEnv()
	if opts.MaxDumpSizeKB != minDumpSizeKB {
		t.Fatalf("expected dump size floored to %d, got %d", minDumpSizeKB, opts.MaxDumpSizeKB)
	}
}

func TestOptionsFromEnvOverrides(t *testing.T) {
	t.Setenv(EnvMaxDumpCount, "5")
	t.Setenv(EnvMaxDumpSizeKB, "2048")
	t.Setenv(EnvEnableRotation, "false")

	opts := OptionsFromEnv()
	if opts.MaxDumpCount != 5 {
		t.Fatalf("expected max dump count 5, got %d", opts.MaxDumpCount)
	}
	if opts.MaxDumpSizeKB != 2048 {
		t.Fatalf("expected max dump size 2048, got %d", opts.MaxDumpSizeKB)
	}
	if opts.EnableRotation {
		t.Fatal("expected rotation disabled")
	}
}

func TestWriterContractIsIdempotent(t *testing.T) {
	var w Writer = &noopWriter{}
	if err := w.Initialize(Options{MaxDumpCount: 3}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := w.Initialize(Options{MaxDumpCount: 99}); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if w.MaxDumpCount() != 3 {
		t.Fatalf("expected first Initialize's count to stick, got %d", w.MaxDumpCount())
	}
}
