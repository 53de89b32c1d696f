// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

// Package config implements the four-layer configuration engine: code
// defaults, code-injected defaults, a user YAML file, and comma-separated
// CLI patch files, each of the last two subject to the per-node patch tag
// rules in patch.go.
package config

import "time"

// Config is the root of the effective configuration tree, the single
// YAML document a running process can dump to "<cfg>.dump".
type Config struct {
	ProcessName string `koanf:"process_name"`

	Executor ExecutorConfig `koanf:"executor"`
	Log      LogConfig      `koanf:"log"`
	Plugin   PluginConfig   `koanf:"plugin"`
	Channel  ChannelConfig  `koanf:"channel"`
	Rpc      RpcConfig      `koanf:"rpc"`
	Module   ModuleConfig   `koanf:"module"`
}

// ExecutorConfig declares the named executors (thread-pool, strand,
// single-thread, time-wheel) that module contexts look up via InitExecutor.
type ExecutorConfig struct {
	Executors []ExecutorOption `koanf:"executors"`
}

// ExecutorOption describes one named executor instance.
type ExecutorOption struct {
	Name string `koanf:"name"`
	// Type is one of "thread_pool", "strand", "single_thread", "time_wheel".
	Type string `koanf:"type"`
	// ThreadNum applies to thread_pool; ignored by other types.
	ThreadNum int `koanf:"thread_num"`
	// TimeoutAlarmIntervalMs applies to time_wheel, the deadline-check tick.
	TimeoutAlarmIntervalMs int64                  `koanf:"timeout_alarm_interval_ms"`
	Options                map[string]interface{} `koanf:"options"`
}

// LogConfig declares the log backends a module's log() call fans out to.
type LogConfig struct {
	Backends []LogBackendOption `koanf:"backends"`
}

// LogBackendOption configures one log sink.
type LogBackendOption struct {
	// Type is one of "console", "rotate_file", "monitor".
	Type    string                 `koanf:"type"`
	Level   string                 `koanf:"level"`
	Options map[string]interface{} `koanf:"options"`
}

// PluginConfig declares the external collaborator plugins loaded at PreInit.
type PluginConfig struct {
	Plugins []PluginOption `koanf:"plugins"`
}

// PluginOption names a monitor/trace/viz plugin and its load-time options.
type PluginOption struct {
	Name    string                 `koanf:"name"`
	Path    string                 `koanf:"path"`
	Options map[string]interface{} `koanf:"options"`
}

// ChannelConfig is the C5 channel registry configuration: backend set plus
// per-topic publish/subscribe rule lists matched in declaration order.
type ChannelConfig struct {
	Backends         []ChannelBackendOption `koanf:"backends"`
	PubTopicsOptions []TopicOption          `koanf:"pub_topics_options"`
	SubTopicsOptions []TopicOption          `koanf:"sub_topics_options"`
}

// ChannelBackendOption configures one wire backend usable by the channel registry.
type ChannelBackendOption struct {
	// Type is one of "local", "mqtt", "nats", "grpc", "http", "tcp", "udp", "shm", "monitor".
	Type    string                 `koanf:"type"`
	Options map[string]interface{} `koanf:"options"`
}

// TopicOption binds a topic regex (or literal topic name, an implicit
// ^literal$) to an ordered backend set and an enabled filter chain.
type TopicOption struct {
	TopicName      string   `koanf:"topic_name"`
	EnableBackends []string `koanf:"enable_backends"`
	EnableFilters  []string `koanf:"enable_filters"`
}

// RpcConfig is the C6 RPC registry configuration: backend set plus
// per-method client/server rule lists.
type RpcConfig struct {
	Backends       []RpcBackendOption `koanf:"backends"`
	ClientsOptions []MethodOption     `koanf:"clients_options"`
	ServersOptions []MethodOption     `koanf:"servers_options"`
}

// RpcBackendOption configures one RPC-capable wire backend.
type RpcBackendOption struct {
	Type    string                 `koanf:"type"`
	Options map[string]interface{} `koanf:"options"`
}

// MethodOption binds an RPC method name (carrying its "pb:"/"ros2:" prefix)
// to an ordered backend set and an enabled filter chain.
type MethodOption struct {
	FuncName       string   `koanf:"func_name"`
	EnableBackends []string `koanf:"enable_backends"`
	EnableFilters  []string `koanf:"enable_filters"`
}

// ModuleConfig declares per-module options and the package search paths
// used to discover module implementations at PreInit.
type ModuleConfig struct {
	Modules []ModuleOption `koanf:"modules"`
	Pkgs    []PkgOption    `koanf:"pkgs"`
}

// ModuleOption carries per-module options read during OnConfigure.
type ModuleOption struct {
	Name    string                 `koanf:"name"`
	Options map[string]interface{} `koanf:"options"`
}

// PkgOption names a module package and which modules within it load.
type PkgOption struct {
	Path          string   `koanf:"path"`
	EnableModules []string `koanf:"enable_modules"`
}

// defaultConfig returns the code-defaults layer of §4.8: a default local
// backend, a time-wheel executor for RPC deadlines, and a default console
// log backend.
func defaultConfig() *Config {
	return &Config{
		Executor: ExecutorConfig{
			Executors: []ExecutorOption{
				{
					Name:                   "time_wheel_executor",
					Type:                   "time_wheel",
					TimeoutAlarmIntervalMs: 100,
				},
			},
		},
		Log: LogConfig{
			Backends: []LogBackendOption{
				{Type: "console", Level: "info"},
			},
		},
		Channel: ChannelConfig{
			Backends: []ChannelBackendOption{
				{Type: "local"},
			},
		},
		Rpc: RpcConfig{
			Backends: []RpcBackendOption{
				{Type: "local"},
			},
		},
	}
}

// heartbeatInterval returns the duration between heartbeat publishes, per
// AIMRTE_HEARTBEAT_INTERVAL (ms, default 1000).
func heartbeatInterval() time.Duration {
	return time.Duration(getInt64Env("AIMRTE_HEARTBEAT_INTERVAL", 1000)) * time.Millisecond
}
