// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package logging is the zerolog-based structured logging layer agibotrt
// builds on: a process-wide sink configured once at startup (Init), the
// component loggers the runtime's event machinery derives from it
// (WithComponent, EventLogger in event.go), correlation/request id
// propagation through context.Context (context.go), the fixed
// three-argument contract collaborators that must stay zerolog-free log
// through (CollaboratorLogger, collaborator.go), and an slog.Handler
// (slog_adapter.go) so github.com/thejerf/sutureslog's supervisor-tree
// event hooks land in the same sink as everything else.
//
// # Quick start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("component", "router").Msg("started")
//
// Component loggers carry a "component" field on every event:
//
//	log := logging.WithComponent("router")
//	log.Info().Msg("started")
//
// # Output formats
//
// "json" (production, machine-parseable):
//
//	{"level":"info","time":"2026-07-31T10:30:00Z","message":"started","component":"router"}
//
// "console" (development, human-readable):
//
//	10:30:00 INF started component=router
//
// See internal/middleware's RequestID middleware for how request ids
// reach context.go, and collaborator.go for the CollaboratorLogger
// contract handed to code this package can't let depend on zerolog.
package logging
