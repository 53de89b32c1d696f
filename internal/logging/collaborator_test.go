// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestCallerLocationCapturesThisFile(t *testing.T) {
	loc := CallerLocation(0)
	if loc.File == "" {
		t.Fatal("expected non-empty file")
	}
	if !strings.HasSuffix(loc.File, "collaborator_test.go") {
		t.Fatalf("expected caller file to be this test file, got %s", loc.File)
	}
}

func TestLocationStringUnknown(t *testing.T) {
	var loc Location
	if loc.String() != "unknown" {
		t.Fatalf("expected \"unknown\", got %q", loc.String())
	}
}

func TestCollaboratorLoggerWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "trace", Format: "json", Output: &buf})

	l := NewCollaboratorLogger()
	l.Log("warn", CallerLocation(0), "disk usage high")

	out := buf.String()
	if !strings.Contains(out, "disk usage high") {
		t.Fatalf("expected message in output, got %s", out)
	}
	if !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("expected warn level in output, got %s", out)
	}
}
