// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package monitorplugin declares the TopicHzCalculator contract: an
// out-of-scope external collaborator (spec.md §1) that tracks per-topic
// publish-rate statistics across the whole process tree, grounded on
// the original monitor plugin's TopicHzCalculator/TopicInfo/
// TopicFrequencyStats shapes. A SlidingWindow implementation is provided
// since the calculation itself (a bounded time-delta window) is simple
// enough to carry in full, unlike the vault/minidump/bagrecorder
// collaborators whose business logic stays external.
package monitorplugin

import (
	"math"
	"sync"
	"time"
)

// TopicInfo identifies one (process, topic, message type) triple the
// calculator tracks independently.
type TopicInfo struct {
	ProcessName string
	TopicName   string
	MsgType     string
}

// TopicFrequencyStats is a calculator's point-in-time read for one topic.
type TopicFrequencyStats struct {
	Rate             float64
	MinDelta         time.Duration
	MaxDelta         time.Duration
	StdDev           time.Duration
	WindowSize       int
	MaxWindow        int
	TimeoutThreshold time.Duration
	IsActive         bool
}

// HzInfoMap is a calculator's full snapshot, one entry per tracked topic.
type HzInfoMap map[TopicInfo]TopicFrequencyStats

// TopicHzCalculator is the fixed interface the monitor plugin collaborator
// exposes. In this runtime only the monitortap backend uses it: it calls
// FeedTopic on every publish it observes and CalculateAll when its
// statistics are read.
type TopicHzCalculator interface {
	// Initialize declares which topics to track and the sliding window
	// size (in sample count) used for rate/jitter statistics.
	Initialize(topics []TopicInfo, windowSize int)
	// FeedTopic records one message arrival for topic.
	FeedTopic(topic TopicInfo)
	// Calculate returns topic's current statistics.
	Calculate(topic TopicInfo) TopicFrequencyStats
	// CalculateAll returns a snapshot of every tracked topic.
	CalculateAll() HzInfoMap
}

const defaultWindowSize = 400

// SlidingWindow is a TopicHzCalculator that keeps, per topic, the last
// windowSize inter-arrival deltas and derives rate/min/max/stddev from
// them, matching the original calculator's windowed-average approach.
type SlidingWindow struct {
	mu         sync.Mutex
	windowSize int
	topics     map[TopicInfo]*windowState
}

type windowState struct {
	last   time.Time
	deltas []time.Duration
}

// NewSlidingWindow returns a calculator with no topics tracked yet; call
// Initialize or rely on FeedTopic's auto-registration for ad hoc topics.
func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{
		windowSize: defaultWindowSize,
		topics:     make(map[TopicInfo]*windowState),
	}
}

func (s *SlidingWindow) Initialize(topics []TopicInfo, windowSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if windowSize > 0 {
		s.windowSize = windowSize
	}
	for _, t := range topics {
		if _, ok := s.topics[t]; !ok {
			s.topics[t] = &windowState{}
		}
	}
}

// FeedTopic is reentrant from any number of concurrent backends; each
// topic's own windowState is appended to under the shared lock, matching
// the original implementation's per-topic mutex intent at far lower
// contention cost than one calculator per topic would need here.
func (s *SlidingWindow) FeedTopic(topic TopicInfo) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.topics[topic]
	if !ok {
		st = &windowState{}
		s.topics[topic] = st
	}
	if !st.last.IsZero() {
		st.deltas = append(st.deltas, now.Sub(st.last))
		if len(st.deltas) > s.windowSize {
			st.deltas = st.deltas[len(st.deltas)-s.windowSize:]
		}
	}
	st.last = now
}

func (s *SlidingWindow) now() time.Time { return time.Now() }

func (s *SlidingWindow) Calculate(topic TopicInfo) TopicFrequencyStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.topics[topic]
	if !ok {
		return TopicFrequencyStats{}
	}
	return computeStats(st, s.windowSize)
}

func (s *SlidingWindow) CalculateAll() HzInfoMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(HzInfoMap, len(s.topics))
	for topic, st := range s.topics {
		out[topic] = computeStats(st, s.windowSize)
	}
	return out
}

func computeStats(st *windowState, maxWindow int) TopicFrequencyStats {
	n := len(st.deltas)
	if n == 0 {
		return TopicFrequencyStats{MaxWindow: maxWindow, IsActive: !st.last.IsZero()}
	}

	var sum time.Duration
	min, max := st.deltas[0], st.deltas[0]
	for _, d := range st.deltas {
		sum += d
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	mean := sum / time.Duration(n)

	var varianceSum float64
	for _, d := range st.deltas {
		diff := float64(d - mean)
		varianceSum += diff * diff
	}
	stdDev := time.Duration(math.Sqrt(varianceSum / float64(n)))

	rate := 0.0
	if mean > 0 {
		rate = float64(time.Second) / float64(mean)
	}

	return TopicFrequencyStats{
		Rate:             rate,
		MinDelta:         min,
		MaxDelta:         max,
		StdDev:           stdDev,
		WindowSize:       n,
		MaxWindow:        maxWindow,
		TimeoutThreshold: max * 2,
		IsActive:         true,
	}
}
