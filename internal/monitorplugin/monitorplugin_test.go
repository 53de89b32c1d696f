// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package monitorplugin

import (
	"testing"
	"time"
)

func TestCalculateInactiveBeforeAnyFeed(t *testing.T) {
	calc := NewSlidingWindow()
	topic := TopicInfo{ProcessName: "p1", TopicName: "/odom", MsgType: "pb.Odometry"}
	calc.Initialize([]TopicInfo{topic}, 10)

	stats := calc.Calculate(topic)
	if stats.IsActive {
		t.Fatal("expected inactive before any feed")
	}
}

func TestFeedTopicProducesRate(t *testing.T) {
	calc := NewSlidingWindow()
	topic := TopicInfo{ProcessName: "p1", TopicName: "/odom", MsgType: "pb.Odometry"}
	calc.Initialize([]TopicInfo{topic}, 10)

	calc.FeedTopic(topic)
	time.Sleep(10 * time.Millisecond)
	calc.FeedTopic(topic)
	time.Sleep(10 * time.Millisecond)
	calc.FeedTopic(topic)

	stats := calc.Calculate(topic)
	if !stats.IsActive {
		t.Fatal("expected active after feeding")
	}
	if stats.WindowSize != 2 {
		t.Fatalf("expected 2 deltas recorded, got %d", stats.WindowSize)
	}
	if stats.Rate <= 0 {
		t.Fatalf("expected positive rate, got %f", stats.Rate)
	}
	if stats.MinDelta <= 0 || stats.MaxDelta <= 0 {
		t.Fatalf("expected positive deltas, got min=%v max=%v", stats.MinDelta, stats.MaxDelta)
	}
}

func TestCalculateAllCoversEveryFedTopic(t *testing.T) {
	calc := NewSlidingWindow()
	a := TopicInfo{ProcessName: "p1", TopicName: "/odom", MsgType: "pb.Odometry"}
	b := TopicInfo{ProcessName: "p1", TopicName: "/scan", MsgType: "pb.LaserScan"}

	calc.FeedTopic(a)
	calc.FeedTopic(b)

	all := calc.CalculateAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 tracked topics, got %d", len(all))
	}
	if _, ok := all[a]; !ok {
		t.Fatal("expected topic a in snapshot")
	}
	if _, ok := all[b]; !ok {
		t.Fatal("expected topic b in snapshot")
	}
}

func TestWindowSizeBounded(t *testing.T) {
	calc := NewSlidingWindow()
	topic := TopicInfo{ProcessName: "p1", TopicName: "/odom", MsgType: "pb.Odometry"}
	calc.Initialize(nil, 3)

	for i := 0; i < 10; i++ {
		calc.FeedTopic(topic)
	}

	stats := calc.Calculate(topic)
	if stats.WindowSize > 3 {
		t.Fatalf("expected window bounded to 3, got %d", stats.WindowSize)
	}
}

func TestTopicHzCalculatorInterfaceSatisfied(t *testing.T) {
	var _ TopicHzCalculator = NewSlidingWindow()
}
