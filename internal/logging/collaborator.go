// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package logging

import (
	"fmt"
	"runtime"
)

// Location identifies where a log call originated, the minimal shape the
// vault/minidump/bagrecorder/monitorplugin collaborators are allowed to
// depend on instead of importing zerolog directly.
type Location struct {
	File string
	Line int
	Func string
}

// CallerLocation captures the caller skip frames up the stack from its own
// call site; skip 0 names CallerLocation's own caller.
func CallerLocation(skip int) Location {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Location{}
	}
	fn := runtime.FuncForPC(pc)
	name := ""
	if fn != nil {
		name = fn.Name()
	}
	return Location{File: file, Line: line, Func: name}
}

func (l Location) String() string {
	if l.File == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// CollaboratorLogger is the fixed three-argument logging contract spec.md
// §1 grants every external collaborator: a level, a call location, and a
// message, with no dependency on this package's richer structured API.
type CollaboratorLogger interface {
	Log(level string, loc Location, text string)
}

// collaboratorAdapter routes CollaboratorLogger calls onto the package
// global zerolog logger.
type collaboratorAdapter struct{}

// NewCollaboratorLogger returns the adapter every external collaborator
// (vault, minidump, bagrecorder, monitorplugin) is given at construction
// time.
func NewCollaboratorLogger() CollaboratorLogger {
	return collaboratorAdapter{}
}

func (collaboratorAdapter) Log(level string, loc Location, text string) {
	Logger().WithLevel(parseLevel(level)).Str("caller", loc.String()).Str("func", loc.Func).Msg(text)
}
