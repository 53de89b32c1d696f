// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package minidump declares the contract for the crash-dump writer: an
// out-of-scope external collaborator (spec.md §1) that installs a
// process-wide exception handler and writes bounded, rotated minidump
// files on crash. The breakpad-style handler installation and dump
// format are the collaborator's business logic; this package owns only
// the Go interface and the AIMRTE_MINIDUMP_* environment contract that
// OptionsFromEnv reads. Nothing in cmd/agibotrt calls OptionsFromEnv or
// constructs a Writer.
package minidump

import (
	"os"
	"strconv"
)

// Environment variable names OptionsFromEnv reads to configure a Writer
// implementation, per spec.md §6.2.
const (
	EnvEnabled           = "AIMRTE_MINIDUMP_ENABLED"
	EnvMaxDumpCount      = "AIMRTE_MINIDUMP_COUNT"
	EnvMaxDumpSizeKB     = "AIMRTE_MINIDUMP_MAX_DUMP_SIZE_KB"
	EnvEnableRotation    = "AIMRTE_MINIDUMP_ENABLE_ROTATION"
	defaultMaxDumpCount  = 3
	defaultMaxDumpSizeKB = 500
	minDumpSizeKB        = 500
)

// Options configures a Writer. Zero values mean "use the collaborator's
// own default".
type Options struct {
	Enabled        bool
	MaxDumpCount   int
	MaxDumpSizeKB  int
	EnableRotation bool
}

// OptionsFromEnv reads Options from the AIMRTE_MINIDUMP_* environment
// variables, falling back to spec.md §6.2's defaults when a variable is
// absent or unparsable. MaxDumpSizeKB is floored at 500 per spec.
func OptionsFromEnv() Options {
	size := envInt(EnvMaxDumpSizeKB, defaultMaxDumpSizeKB)
	if size < minDumpSizeKB {
		size = minDumpSizeKB
	}
	return Options{
		Enabled:        envBool(EnvEnabled, true),
		MaxDumpCount:   envInt(EnvMaxDumpCount, defaultMaxDumpCount),
		MaxDumpSizeKB:  size,
		EnableRotation: envBool(EnvEnableRotation, true),
	}
}

func envInt(name string, fallback int) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(name string, fallback bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Writer is the fixed interface a minidump collaborator exposes. A
// process installs exactly one Writer during PreInit and never calls
// Initialize again.
type Writer interface {
	// Initialize installs the process-wide crash handler. Calling it a
	// second time on an already-initialized Writer is a no-op returning
	// nil, matching the original manager's idempotent Initialize.
	Initialize(opts Options) error
	// MaxDumpCount reports the configured dump retention count.
	MaxDumpCount() int
}
