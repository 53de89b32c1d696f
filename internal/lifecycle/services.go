// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/agibot-rt/agibotrt/internal/backend"
	"github.com/agibot-rt/agibotrt/internal/module"
	"github.com/agibot-rt/agibotrt/internal/modulectx"
)

// serviceShutdownTimeout bounds the fresh context each wrapper gives its
// Shutdown/OnShutdown call once the supervisor tree cancels its serve
// context, matching services.NewNATSComponentsService's default.
const serviceShutdownTimeout = 10 * time.Second

// backendService adapts backend.Backend's Start/Shutdown lifecycle to
// suture.Service's Serve contract, the way
// internal/supervisor/services/nats_service.go adapts NATSComponentsRunner:
// Start, block on context cancellation, then Shutdown with a fresh context.
type backendService struct {
	b backend.Backend
}

func newBackendService(b backend.Backend) *backendService {
	return &backendService{b: b}
}

func (s *backendService) Serve(ctx context.Context) error {
	if err := s.b.Start(ctx); err != nil {
		return fmt.Errorf("backend %s start failed: %w", s.b.Name(), err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serviceShutdownTimeout)
	defer cancel()
	if err := s.b.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("backend %s shutdown failed: %w", s.b.Name(), err)
	}
	return ctx.Err()
}

func (s *backendService) String() string { return "backend:" + s.b.Name() }

// moduleService adapts a module.Module's OnStart/OnShutdown lifecycle,
// bound to its already-initialized modulectx.Context, to suture.Service's
// Serve contract.
type moduleService struct {
	m    module.Module
	mctx *modulectx.Context
}

func newModuleService(m module.Module, mctx *modulectx.Context) *moduleService {
	return &moduleService{m: m, mctx: mctx}
}

func (s *moduleService) Serve(ctx context.Context) error {
	s.mctx.SetPhase(modulectx.PhaseStarted)
	if err := s.m.OnStart(ctx); err != nil {
		return fmt.Errorf("module %s OnStart failed: %w", s.m.Info().Name, err)
	}

	<-ctx.Done()

	s.mctx.SetPhase(modulectx.PhaseShuttingDown)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serviceShutdownTimeout)
	defer cancel()
	if err := s.m.OnShutdown(shutdownCtx); err != nil {
		return fmt.Errorf("module %s OnShutdown failed: %w", s.m.Info().Name, err)
	}
	return ctx.Err()
}

func (s *moduleService) String() string { return "module:" + s.m.Info().Name }
