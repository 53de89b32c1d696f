// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package bagrecorder declares the contract for the bag recorder: an
// out-of-scope external collaborator (spec.md §1) that records subscribed
// topics to disk and exposes a start/stop/list RPC surface, grounded on
// the original record_playback module's GetActionList / GetBagList /
// StartRecord / StopRecord / GetUploadAllowed / UpdateRecordAction
// service methods. This package owns the request/response shapes and the
// Go interface a recorder implementation satisfies, not the on-disk bag
// format or upload pipeline.
package bagrecorder

import "context"

// ActionState is one configured recording action's current state.
type ActionState string

const (
	ActionIdle      ActionState = "idle"
	ActionRecording ActionState = "recording"
	ActionStopped   ActionState = "stopped"
	ActionError     ActionState = "error"
)

// Action describes one recordable set of topics.
type Action struct {
	Name   string
	Topics []string
	State  ActionState
}

// BagInfo describes one completed recording on disk.
type BagInfo struct {
	Name      string
	Path      string
	SizeBytes int64
	ActionID  string
}

// StartRecordRequest names the action to begin recording.
type StartRecordRequest struct {
	ActionName string
}

// StopRecordRequest names the action to stop recording.
type StopRecordRequest struct {
	ActionName string
}

// UpdateRecordActionRequest replaces the topic list an action records.
type UpdateRecordActionRequest struct {
	ActionName string
	Topics     []string
}

// Recorder is the fixed interface a bag-recorder collaborator exposes to
// the runtime's RPC registry (C6); a concrete implementation registers
// each method as a service function the way any other RPC server does.
type Recorder interface {
	// GetActionList lists every configured recording action.
	GetActionList(ctx context.Context) ([]Action, error)
	// GetBagList lists completed recordings, most recent first.
	GetBagList(ctx context.Context) ([]BagInfo, error)
	// StartRecord begins recording the named action's topics.
	StartRecord(ctx context.Context, req StartRecordRequest) error
	// StopRecord stops the named action's recording, finalizing its bag.
	StopRecord(ctx context.Context, req StopRecordRequest) error
	// GetUploadAllowed reports whether uploading finished bags is
	// currently permitted (e.g. gated on network type).
	GetUploadAllowed(ctx context.Context) (bool, error)
	// UpdateRecordAction replaces the topic set a configured action
	// records; it is an error to call this while the action is recording.
	UpdateRecordAction(ctx context.Context, req UpdateRecordActionRequest) error
}
