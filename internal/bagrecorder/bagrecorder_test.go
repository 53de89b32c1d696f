// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package bagrecorder

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

// fakeRecorder is an in-memory stand-in proving Recorder's interface
// shape is implementable; it is not the on-disk bag recorder itself.
type fakeRecorder struct {
	mu      sync.Mutex
	actions map[string]*Action
	bags    []BagInfo
	allowed bool
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		actions: map[string]*Action{
			"default": {Name: "default", Topics: []string{"/odom"}, State: ActionIdle},
		},
		allowed: true,
	}
}

func (f *fakeRecorder) GetActionList(ctx context.Context) ([]Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Action, 0, len(f.actions))
	for _, a := range f.actions {
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeRecorder) GetBagList(ctx context.Context) ([]BagInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]BagInfo(nil), f.bags...), nil
}

func (f *fakeRecorder) StartRecord(ctx context.Context, req StartRecordRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[req.ActionName]
	if !ok {
		return fmt.Errorf("unknown action %q", req.ActionName)
	}
	a.State = ActionRecording
	return nil
}

func (f *fakeRecorder) StopRecord(ctx context.Context, req StopRecordRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[req.ActionName]
	if !ok {
		return fmt.Errorf("unknown action %q", req.ActionName)
	}
	a.State = ActionStopped
	f.bags = append(f.bags, BagInfo{Name: req.ActionName + "-0", ActionID: req.ActionName})
	return nil
}

func (f *fakeRecorder) GetUploadAllowed(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowed, nil
}

func (f *fakeRecorder) UpdateRecordAction(ctx context.Context, req UpdateRecordActionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[req.ActionName]
	if !ok {
		return fmt.Errorf("unknown action %q", req.ActionName)
	}
	if a.State == ActionRecording {
		return fmt.Errorf("cannot update action %q while recording", req.ActionName)
	}
	a.Topics = req.Topics
	return nil
}

func TestRecorderContractLifecycle(t *testing.T) {
	var r Recorder = newFakeRecorder()
	ctx := context.Background()

	if err := r.StartRecord(ctx, StartRecordRequest{ActionName: "default"}); err != nil {
		t.Fatalf("StartRecord: %v", err)
	}

	if err := r.UpdateRecordAction(ctx, UpdateRecordActionRequest{ActionName: "default", Topics: []string{"/scan"}}); err == nil {
		t.Fatal("expected error updating a recording action")
	}

	if err := r.StopRecord(ctx, StopRecordRequest{ActionName: "default"}); err != nil {
		t.Fatalf("StopRecord: %v", err)
	}

	bags, err := r.GetBagList(ctx)
	if err != nil {
		t.Fatalf("GetBagList: %v", err)
	}
	if len(bags) != 1 {
		t.Fatalf("expected 1 bag, got %d", len(bags))
	}

	allowed, err := r.GetUploadAllowed(ctx)
	if err != nil {
		t.Fatalf("GetUploadAllowed: %v", err)
	}
	if !allowed {
		t.Fatal("expected upload allowed")
	}

	actions, err := r.GetActionList(ctx)
	if err != nil {
		t.Fatalf("GetActionList: %v", err)
	}
	if len(actions) != 1 || actions[0].State != ActionStopped {
		t.Fatalf("unexpected action list: %+v", actions)
	}
}
