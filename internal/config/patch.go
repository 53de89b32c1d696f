// agibotrt - Robotics middleware runtime core
// Copyright 2026 The agibotrt Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/agibot-rt/agibotrt

package config

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

// listKeyByPath maps a dot-joined config path to the field used to match
// elements of that list across base and patch documents, per §4.8's list
// of "List keys used for matching".
var listKeyByPath = map[string]string{
	"log.backends":                "type",
	"plugin.plugins":              "name",
	"channel.backends":            "type",
	"channel.pub_topics_options":  "topic_name",
	"channel.sub_topics_options":  "topic_name",
	"rpc.backends":                "type",
	"rpc.clients_options":         "func_name",
	"rpc.servers_options":         "func_name",
	"executor.executors":         "name",
	"module.modules":              "name",
	"module.pkgs":                 "path",
}

// PatchError reports a malformed patch tag with the offending file position.
type PatchError struct {
	File   string
	Line   int
	Column int
	Tag    string
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("%s:%d:%d: unrecognized patch mode %q", e.File, e.Line, e.Column, e.Tag)
}

var knownModes = map[string]bool{
	"override": true, "override.front": true, "override.back": true,
	"new": true, "new.front": true, "new.back": true, "new.never": true,
	"skip": true, "delete": true, "merge": true,
}

// parseModes splits a YAML tag like "!!new+override" into its component
// mode names, validating each against knownModes.
func parseModes(file string, node *yaml.Node) ([]string, error) {
	tag := strings.TrimPrefix(node.Tag, "!!")
	if tag == "" || tag == "str" || tag == "map" || tag == "seq" || tag == "bool" ||
		tag == "int" || tag == "float" || tag == "null" {
		return []string{"override"}, nil
	}
	parts := strings.Split(tag, "+")
	for _, p := range parts {
		if !knownModes[p] {
			return nil, &PatchError{File: file, Line: node.Line, Column: node.Column, Tag: tag}
		}
	}
	return parts, nil
}

func hasMode(modes []string, name string) bool {
	for _, m := range modes {
		if m == name {
			return true
		}
	}
	return false
}

// ApplyPatch merges patch onto base in place, following the §4.8 patch-tag
// rules. file names the patch source for error reporting.
func ApplyPatch(file string, base, patch *yaml.Node) error {
	return mergeNode("", unwrapDoc(base), unwrapDoc(patch), file)
}

func unwrapDoc(n *yaml.Node) *yaml.Node {
	if n != nil && n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		return n.Content[0]
	}
	return n
}

// mergeNode merges patch into base at the given dot-joined path, mutating
// base's Content slice. base and patch must both be mapping nodes at the
// root; nested mapping keys recurse, nested sequence keys apply the list
// patch algorithm when path has a registered list key, union by scalar
// equality inside a !!merge element, otherwise replace wholesale.
func mergeNode(path string, base, patch *yaml.Node, file string) error {
	if base == nil || patch == nil {
		return nil
	}
	if base.Kind != yaml.MappingNode || patch.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i+1 < len(patch.Content); i += 2 {
		keyNode := patch.Content[i]
		valNode := patch.Content[i+1]
		key := keyNode.Value
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}

		baseIdx := findMapKey(base, key)

		switch valNode.Kind {
		case yaml.MappingNode:
			if baseIdx >= 0 {
				if err := mergeNode(childPath, base.Content[baseIdx+1], valNode, file); err != nil {
					return err
				}
			} else {
				appendMapEntry(base, keyNode, valNode)
			}
		case yaml.SequenceNode:
			if keyField, ok := listKeyByPath[childPath]; ok {
				var baseSeq *yaml.Node
				if baseIdx >= 0 {
					baseSeq = base.Content[baseIdx+1]
				} else {
					baseSeq = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
					appendMapEntry(base, keyNode, baseSeq)
				}
				if err := mergeList(childPath, baseSeq, valNode, keyField, file); err != nil {
					return err
				}
			} else if baseIdx >= 0 && strings.Contains(childPath, "[]") && base.Content[baseIdx+1].Kind == yaml.SequenceNode {
				// Inside a !!merge element: union by scalar equality.
				baseSeq := base.Content[baseIdx+1]
				for _, pe := range valNode.Content {
					dup := false
					for _, be := range baseSeq.Content {
						if pe.Kind == yaml.ScalarNode && be.Kind == yaml.ScalarNode && pe.Value == be.Value {
							dup = true
							break
						}
					}
					if !dup {
						baseSeq.Content = append(baseSeq.Content, pe)
					}
				}
			} else if baseIdx >= 0 {
				base.Content[baseIdx+1] = valNode
			} else {
				appendMapEntry(base, keyNode, valNode)
			}
		default:
			// Scalar: default mode is override-in-place, or append if absent.
			if baseIdx >= 0 {
				base.Content[baseIdx+1] = valNode
			} else {
				appendMapEntry(base, keyNode, valNode)
			}
		}
	}
	return nil
}

func findMapKey(m *yaml.Node, key string) int {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return i
		}
	}
	return -1
}

func appendMapEntry(m *yaml.Node, key, val *yaml.Node) {
	m.Content = append(m.Content, key, val)
}

// mergeList applies the per-element patch tag to the base sequence,
// matching elements by keyField per §4.8.
func mergeList(path string, baseSeq, patchSeq *yaml.Node, keyField, file string) error {
	for _, elem := range patchSeq.Content {
		modes, err := parseModes(file, elem)
		if err != nil {
			return err
		}
		elemKey := mapFieldValue(elem, keyField)
		existingIdx := findListElem(baseSeq, keyField, elemKey)

		switch {
		case hasMode(modes, "delete"):
			if existingIdx >= 0 {
				baseSeq.Content = append(baseSeq.Content[:existingIdx], baseSeq.Content[existingIdx+1:]...)
			}
		case hasMode(modes, "skip"):
			// leave as-is
		case hasMode(modes, "merge"):
			if existingIdx >= 0 {
				if err := mergeNode(path+"[]", baseSeq.Content[existingIdx], elem, file); err != nil {
					return err
				}
			} else {
				baseSeq.Content = append(baseSeq.Content, elem)
			}
		case hasMode(modes, "new.never"):
			if existingIdx >= 0 {
				baseSeq.Content[existingIdx] = elem
			}
			// else: skip, never created
		case hasMode(modes, "new"), hasMode(modes, "new.front"), hasMode(modes, "new.back"):
			if existingIdx >= 0 {
				continue // present already: new* never overrides
			}
			baseSeq.Content = insertSeq(baseSeq.Content, elem, hasMode(modes, "new.front"))
		default:
			// override, override.front, override.back
			front := hasMode(modes, "override.front")
			back := hasMode(modes, "override.back")
			if existingIdx >= 0 {
				if front || back {
					baseSeq.Content = append(baseSeq.Content[:existingIdx], baseSeq.Content[existingIdx+1:]...)
					baseSeq.Content = insertSeq(baseSeq.Content, elem, front)
				} else {
					baseSeq.Content[existingIdx] = elem
				}
			} else {
				baseSeq.Content = insertSeq(baseSeq.Content, elem, front)
			}
		}
	}
	return nil
}

func insertSeq(content []*yaml.Node, elem *yaml.Node, front bool) []*yaml.Node {
	if front {
		out := make([]*yaml.Node, 0, len(content)+1)
		out = append(out, elem)
		out = append(out, content...)
		return out
	}
	return append(content, elem)
}

func findListElem(seq *yaml.Node, keyField, key string) int {
	if key == "" {
		return -1
	}
	for i, elem := range seq.Content {
		if mapFieldValue(elem, keyField) == key {
			return i
		}
	}
	return -1
}

func mapFieldValue(n *yaml.Node, field string) string {
	if n.Kind != yaml.MappingNode {
		return ""
	}
	if idx := findMapKey(n, field); idx >= 0 {
		return n.Content[idx+1].Value
	}
	return ""
}

// ExpandEnv substitutes "$VAR" and "${VAR}" occurrences in all scalar nodes
// of the tree, per §4.8's environment expansion rule. Unknown variables
// expand to the empty string.
func ExpandEnv(n *yaml.Node, lookup func(string) string) {
	if n == nil {
		return
	}
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		n.Value = expandVars(n.Value, lookup)
	}
	for _, c := range n.Content {
		ExpandEnv(c, lookup)
	}
}

func expandVars(s string, lookup func(string) string) string {
	return os.Expand(s, lookup)
}
