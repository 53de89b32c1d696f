// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package channel implements the C5 channel registry: two parallel
// ordered rule lists (publish, subscribe) mapping a topic regex to a set
// of backend names, plus the per-topic filter chain hook.
package channel

import (
	"fmt"
	"regexp"
	"sync"
)

// rule is one (topic_regex, backend_set) entry of an ordered registry.
type rule struct {
	pattern  *regexp.Regexp
	raw      string
	backends []string
}

// Registry holds the publish-side and subscribe-side rule lists. Rules are
// built during Init and are read-only from Start through PreShutdown;
// lookups take only the read lock, so they never block one another.
type Registry struct {
	mu      sync.RWMutex
	publish []rule
	sub     []rule
}

// NewRegistry returns an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// CompileRule turns a topic pattern into a regexp. A literal topic string
// (no regex metacharacters the caller intends) should be passed through
// QuoteLiteral first so it is anchored as an exact match.
func CompileRule(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("channel: invalid topic pattern %q: %w", pattern, err)
	}
	return re, nil
}

// QuoteLiteral anchors an exact topic string as the special regex
// "^literal$", the tie-break rule spec.md mandates for non-regex topic
// names.
func QuoteLiteral(topic string) string {
	return "^" + regexp.QuoteMeta(topic) + "$"
}

// AddPublishRule appends a publish-side rule. Rules are matched in append
// order; the first whose pattern matches a topic wins.
func (r *Registry) AddPublishRule(pattern string, backends []string) error {
	re, err := CompileRule(pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publish = append(r.publish, rule{pattern: re, raw: pattern, backends: backends})
	return nil
}

// AddSubscribeRule appends a subscribe-side rule with the same ordered,
// first-match semantics as AddPublishRule.
func (r *Registry) AddSubscribeRule(pattern string, backends []string) error {
	re, err := CompileRule(pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sub = append(r.sub, rule{pattern: re, raw: pattern, backends: backends})
	return nil
}

// PublishBackends returns the backend set the first matching publish rule
// names for topic, or (nil, false) if no rule matches — meaning the topic
// has no configured destination and a publish on it is a no-op, logged at
// warn by the caller.
func (r *Registry) PublishBackends(topic string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return firstMatch(r.publish, topic)
}

// SubscribeBackends returns the full backend set a subscription on topic
// must register with: every backend named by the first matching subscribe
// rule, since subscriptions register with every backend in the matched
// set so deliveries can arrive through any path.
func (r *Registry) SubscribeBackends(topic string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return firstMatch(r.sub, topic)
}

func firstMatch(rules []rule, topic string) ([]string, bool) {
	for _, rl := range rules {
		if rl.pattern.MatchString(topic) {
			return rl.backends, true
		}
	}
	return nil, false
}
