// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

/*
Package config assembles the runtime's effective configuration from four
layers, producing one merged YAML document that can optionally be written
to "<cfg>.dump":

 1. Code defaults: a default local channel/RPC backend, a time-wheel
    executor, and a default console log backend (defaultConfig).
 2. Code-injected defaults: depending on AGIBOT_ENABLE_* environment
    toggles, a heartbeat publish topic, an HDS exception topic, the
    monitor plugin, the trace plugin, and so on (applyCodeInjectedDefaults).
    No filters are injected.
 3. A user YAML file, loaded with github.com/knadh/koanf/v2 and merged
    onto the prior layers via the patch-tag rules in patch.go.
 4. Comma-separated CLI patch files, applied in order after the user file.

# Patch tags

A YAML tag on a sequence element (or, for scalars, the default behavior)
controls how that element is merged against the prior layer:

  - !!override (default) — replace the matching element, keyed by the
    field named in listKeyByPath for that list's path.
  - !!override.front / !!override.back — replace, then move to the front
    or back of the list.
  - !!new / !!new.front / !!new.back — append only if no element with a
    matching key exists yet.
  - !!new.never — override if a matching element exists, otherwise skip.
  - !!skip — leave the element as-is.
  - !!delete — remove the matching element.
  - !!merge — recursively union with the matching element (nested maps
    merge key-by-key; nested lists union by scalar equality).

Modes combine with "+", e.g. "!!new+override". An unrecognized mode is a
*PatchError naming the offending file, line, and column.

$VAR and ${VAR} inside any scalar are expanded via os.Expand before the
merged document is handed to koanf; unknown variables expand to empty.

# Usage

	cfg, dumped, err := config.Load(config.LoadOptions{
	    CfgFilePath:       "config.yaml",
	    PatchCfgFilePaths: []string{"/etc/agibotrt/patches/site.yaml"},
	})
*/
package config
