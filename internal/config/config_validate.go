// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package config

import (
	"fmt"
	"regexp"
)

var validExecutorTypes = map[string]bool{
	"thread_pool":    true,
	"strand":         true,
	"single_thread":  true,
	"time_wheel":     true,
}

var validBackendTypes = map[string]bool{
	"local": true, "mqtt": true, "nats": true, "grpc": true,
	"http": true, "tcp": true, "udp": true, "shm": true, "monitor": true,
}

// Validate checks that the merged configuration is internally consistent:
// unique executor names, known backend/executor types, and topic patterns
// that compile as regular expressions.
func (c *Config) Validate() error {
	if err := c.validateExecutors(); err != nil {
		return err
	}
	if err := c.validateChannel(); err != nil {
		return err
	}
	return c.validateRpc()
}

func (c *Config) validateExecutors() error {
	seen := make(map[string]bool, len(c.Executor.Executors))
	for _, e := range c.Executor.Executors {
		if e.Name == "" {
			return fmt.Errorf("executor.executors: entry missing name")
		}
		if seen[e.Name] {
			return fmt.Errorf("executor.executors: duplicate name %q", e.Name)
		}
		seen[e.Name] = true
		if !validExecutorTypes[e.Type] {
			return fmt.Errorf("executor.executors[%s]: unknown type %q", e.Name, e.Type)
		}
	}
	return nil
}

func (c *Config) validateChannel() error {
	for _, b := range c.Channel.Backends {
		if !validBackendTypes[b.Type] {
			return fmt.Errorf("channel.backends: unknown type %q", b.Type)
		}
	}
	if err := validateTopicPatterns(c.Channel.PubTopicsOptions, "channel.pub_topics_options"); err != nil {
		return err
	}
	return validateTopicPatterns(c.Channel.SubTopicsOptions, "channel.sub_topics_options")
}

func validateTopicPatterns(topics []TopicOption, field string) error {
	for _, t := range topics {
		if t.TopicName == "" {
			return fmt.Errorf("%s: entry missing topic_name", field)
		}
		if _, err := regexp.Compile(t.TopicName); err != nil {
			return fmt.Errorf("%s[%s]: invalid topic pattern: %w", field, t.TopicName, err)
		}
	}
	return nil
}

func (c *Config) validateRpc() error {
	for _, b := range c.Rpc.Backends {
		if !validBackendTypes[b.Type] {
			return fmt.Errorf("rpc.backends: unknown type %q", b.Type)
		}
	}
	for _, m := range c.Rpc.ClientsOptions {
		if m.FuncName == "" {
			return fmt.Errorf("rpc.clients_options: entry missing func_name")
		}
	}
	for _, m := range c.Rpc.ServersOptions {
		if m.FuncName == "" {
			return fmt.Errorf("rpc.servers_options: entry missing func_name")
		}
	}
	return nil
}
