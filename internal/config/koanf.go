// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package config

import (
	"fmt"
	"os"
	"strings"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"go.yaml.in/yaml/v3"
)

// envOverridePrefix is the escape-hatch prefix recognized by the final
// environment override layer, e.g. AGIBOTRT_CFG_LOG_LEVEL -> log.level.
// This is distinct from ExpandEnv's $VAR/${VAR} expansion of values
// embedded inside YAML scalars: this layer overrides whole config keys.
const envOverridePrefix = "AGIBOTRT_CFG_"

// LoadOptions carries the §6.1 CLI flags that drive configuration assembly.
type LoadOptions struct {
	// CfgFilePath is the user YAML file, merged after code-injected defaults.
	CfgFilePath string
	// PatchCfgFilePaths are applied, in order, after CfgFilePath.
	PatchCfgFilePaths []string
	// IgnorePredefinedCfg skips the code-defaults layer entirely.
	IgnorePredefinedCfg bool
}

// Load assembles the effective configuration from the four §4.8 layers and
// returns the merged, validated Config plus the raw merged YAML document
// (for "--dump_only"/".dump" support).
func Load(opts LoadOptions) (*Config, []byte, error) {
	var root *yaml.Node

	if !opts.IgnorePredefinedCfg {
		defaults := defaultConfig()
		applyCodeInjectedDefaults(defaults)
		node, err := marshalToNode(defaults)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal code defaults: %w", err)
		}
		root = node
	} else {
		root = &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{
			{Kind: yaml.MappingNode, Tag: "!!map"},
		}}
	}

	if opts.CfgFilePath != "" {
		patchDoc, err := loadYAMLFile(opts.CfgFilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("load cfg file %s: %w", opts.CfgFilePath, err)
		}
		if err := ApplyPatch(opts.CfgFilePath, root, patchDoc); err != nil {
			return nil, nil, err
		}
	}

	for _, p := range splitCommaPaths(opts.PatchCfgFilePaths) {
		patchDoc, err := loadYAMLFile(p)
		if err != nil {
			return nil, nil, fmt.Errorf("load patch file %s: %w", p, err)
		}
		if err := ApplyPatch(p, root, patchDoc); err != nil {
			return nil, nil, err
		}
	}

	ExpandEnv(root, os.Getenv)

	merged, err := yaml.Marshal(root)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal merged config: %w", err)
	}

	cfg := &Config{}
	k := koanf.New(".")
	if !opts.IgnorePredefinedCfg {
		if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
			return nil, nil, fmt.Errorf("load base defaults into koanf: %w", err)
		}
	}
	if err := k.Load(rawbytes.Provider(merged), koanfyaml.Parser()); err != nil {
		return nil, nil, fmt.Errorf("load merged yaml into koanf: %w", err)
	}
	envProvider := env.Provider(envOverridePrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, nil, fmt.Errorf("load environment overrides into koanf: %w", err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal merged configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, merged, nil
}

func splitCommaPaths(paths []string) []string {
	var out []string
	for _, p := range paths {
		for _, part := range strings.Split(p, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func loadYAMLFile(path string) (*yaml.Node, error) {
	data, err := file.Provider(path).ReadBytes()
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// envTransformFunc maps an environment variable name under envOverridePrefix
// to a dotted koanf path, e.g. AGIBOTRT_CFG_LOG_LEVEL -> log.level.
func envTransformFunc(s string) string {
	trimmed := strings.TrimPrefix(s, envOverridePrefix)
	return strings.ReplaceAll(strings.ToLower(trimmed), "_", ".")
}

func marshalToNode(v interface{}) (*yaml.Node, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DumpPath returns the sidecar dump path for a given config file, e.g.
// "config.yaml" -> "config.yaml.dump".
func DumpPath(cfgFilePath string) string {
	if cfgFilePath == "" {
		return "agibotrt.dump"
	}
	return cfgFilePath + ".dump"
}
