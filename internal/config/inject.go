// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package config

// applyCodeInjectedDefaults implements §4.8 layer 2: depending on
// AGIBOT_ENABLE_* toggles, inject a heart-beat publish topic, an HDS
// exception topic, the monitor plugin and backend, and the trace,
// log-control and topic-logger plugins; AGIBOT_DEFAULT_EXECUTOR_TYPE adds
// one executor. No topic or method gets entries in enable_filters here.
func applyCodeInjectedDefaults(cfg *Config) {
	if getBoolEnv("AGIBOT_ENABLE_HEARTBEAT", false) {
		cfg.Channel.PubTopicsOptions = appendTopicOnce(cfg.Channel.PubTopicsOptions, TopicOption{
			TopicName:      "heartbeat",
			EnableBackends: defaultBackendList("AGIBOT_DEFAULT_CHANNEL_BACKENDS", "local"),
		})
	}

	if getBoolEnv("AGIBOT_ENABLE_HDS", false) {
		cfg.Channel.PubTopicsOptions = appendTopicOnce(cfg.Channel.PubTopicsOptions, TopicOption{
			TopicName:      "hds_exception",
			EnableBackends: defaultBackendList("AGIBOT_DEFAULT_CHANNEL_BACKENDS", "local"),
		})
	}

	if getBoolEnv("AGIBOT_ENABLE_MONITOR", false) {
		cfg.Plugin.Plugins = appendPluginOnce(cfg.Plugin.Plugins, PluginOption{Name: "monitor"})
		cfg.Channel.Backends = appendBackendOnce(cfg.Channel.Backends, ChannelBackendOption{Type: "monitor"})
	}

	if getBoolEnv("AGIBOT_ENABLE_TRACE", false) {
		cfg.Plugin.Plugins = appendPluginOnce(cfg.Plugin.Plugins, PluginOption{Name: "trace"})
	}

	if getBoolEnv("AGIBOT_ENABLE_LOG_CONTROL", false) {
		cfg.Plugin.Plugins = appendPluginOnce(cfg.Plugin.Plugins, PluginOption{Name: "log_control"})
	}

	if getBoolEnv("AGIBOT_ENABLE_TOPIC_LOGGER", false) {
		cfg.Plugin.Plugins = appendPluginOnce(cfg.Plugin.Plugins, PluginOption{Name: "topic_logger"})
	}

	if et := getEnv("AGIBOT_DEFAULT_EXECUTOR_TYPE", ""); et != "" {
		cfg.Executor.Executors = appendExecutorOnce(cfg.Executor.Executors, ExecutorOption{
			Name: "default_" + et,
			Type: et,
		})
	}
}

func defaultBackendList(envKey, fallback string) []string {
	return getPipeSliceEnv(envKey, []string{fallback})
}

func appendTopicOnce(list []TopicOption, t TopicOption) []TopicOption {
	for _, existing := range list {
		if existing.TopicName == t.TopicName {
			return list
		}
	}
	return append(list, t)
}

func appendPluginOnce(list []PluginOption, p PluginOption) []PluginOption {
	for _, existing := range list {
		if existing.Name == p.Name {
			return list
		}
	}
	return append(list, p)
}

func appendBackendOnce(list []ChannelBackendOption, b ChannelBackendOption) []ChannelBackendOption {
	for _, existing := range list {
		if existing.Type == b.Type {
			return list
		}
	}
	return append(list, b)
}

func appendExecutorOnce(list []ExecutorOption, e ExecutorOption) []ExecutorOption {
	for _, existing := range list {
		if existing.Name == e.Name {
			return list
		}
	}
	return append(list, e)
}
