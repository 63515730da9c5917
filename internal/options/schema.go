package options

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind is the shape a configuration value must have to be accepted.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindDuration
	KindBoolMap
	KindTargets
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindDuration:
		return "duration"
	case KindBoolMap:
		return "mapping of booleans"
	case KindTargets:
		return "mapping of targets"
	default:
		return "unknown"
	}
}

// field describes one top-level key: the kind it must decode as, an optional
// extra check and how an accepted value is stored.
type field struct {
	key   string
	kind  Kind
	check func(v any) error
	set   func(c *Config, v any)
}

var schema = []field{
	{
		key:  "verbose",
		kind: KindBool,
		set:  func(c *Config, v any) { c.Verbose = v.(bool) },
	},
	{
		key:  "outDir",
		kind: KindString,
		set:  func(c *Config, v any) { c.OutDir = NormalizeOutDir(v.(string)) },
	},
	{
		key:  "minify",
		kind: KindBool,
		set:  func(c *Config, v any) { c.Minify = v.(bool) },
	},
	{
		key:  "minifyImport",
		kind: KindBool,
		set:  func(c *Config, v any) { c.MinifyImport = v.(bool) },
	},
	{
		key:  "minifyOptions",
		kind: KindBoolMap,
		set: func(c *Config, v any) {
			for k, b := range v.(map[string]bool) {
				c.MinifyOptions[k] = b
			}
		},
	},
	{
		key:  "targets",
		kind: KindTargets,
		set:  func(c *Config, v any) { c.Targets = v.([]Target) },
	},
	{
		key:  "copyRawWhenMinifyDisabled",
		kind: KindBool,
		set:  func(c *Config, v any) { c.CopyRaw = v.(bool) },
	},
	{
		key:  "concurrency",
		kind: KindInt,
		check: func(v any) error {
			if v.(int) < 1 {
				return errors.New("must be at least 1")
			}
			return nil
		},
		set: func(c *Config, v any) { c.Concurrency = v.(int) },
	},
	{
		key:  "fileTimeout",
		kind: KindDuration,
		check: func(v any) error {
			if v.(time.Duration) < 0 {
				return errors.New("must not be negative")
			}
			return nil
		},
		set: func(c *Config, v any) { c.FileTimeout = v.(time.Duration) },
	},
}

// decode converts n into the Go value for the field's kind. Issues are
// returned for entries that were dropped while the value as a whole was
// accepted (unknown minify options, for instance).
func (f field) decode(n *yaml.Node) (any, []Issue, error) {
	n = unalias(n)

	switch f.kind {
	case KindString:
		if !isScalar(n, "!!str") {
			return nil, nil, mismatch(f.kind, n)
		}
		return n.Value, nil, nil

	case KindBool:
		if !isScalar(n, "!!bool") {
			return nil, nil, mismatch(f.kind, n)
		}
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, nil, err
		}
		return b, nil, nil

	case KindInt:
		if !isScalar(n, "!!int") {
			return nil, nil, mismatch(f.kind, n)
		}
		var i int
		if err := n.Decode(&i); err != nil {
			return nil, nil, err
		}
		return i, nil, nil

	case KindDuration:
		if !isScalar(n, "!!str") {
			return nil, nil, mismatch(f.kind, n)
		}
		d, err := time.ParseDuration(n.Value)
		if err != nil {
			return nil, nil, err
		}
		return d, nil, nil

	case KindBoolMap:
		if n.Kind != yaml.MappingNode {
			return nil, nil, mismatch(f.kind, n)
		}
		known := DefaultMinifyOptions()
		out := make(map[string]bool)
		var issues []Issue
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i].Value, unalias(n.Content[i+1])
			path := f.key + "." + key
			if _, ok := known[key]; !ok {
				issues = append(issues, Issue{Key: path, Reason: "not a recognised minifier option, expected one of " + strings.Join(MinifyOptionKeys(), ", "), Err: ErrUnknownOption})
				continue
			}
			if !isScalar(val, "!!bool") {
				issues = append(issues, Issue{Key: path, Reason: mismatch(KindBool, val).Error(), Err: ErrInvalidOption})
				continue
			}
			var b bool
			if err := val.Decode(&b); err != nil {
				issues = append(issues, Issue{Key: path, Reason: err.Error(), Err: ErrInvalidOption})
				continue
			}
			out[key] = b
		}
		return out, issues, nil

	case KindTargets:
		if n.Kind != yaml.MappingNode {
			return nil, nil, mismatch(f.kind, n)
		}
		targets := make([]Target, 0, len(n.Content)/2)
		seen := make(map[string]int)
		var issues []Issue
		for i := 0; i+1 < len(n.Content); i += 2 {
			dest := n.Content[i].Value
			var src any
			if err := unalias(n.Content[i+1]).Decode(&src); err != nil {
				return nil, nil, err
			}
			// a repeated destination keeps its first position and its last source
			if at, ok := seen[dest]; ok {
				targets[at].Src = src
				issues = append(issues, Issue{Key: f.key + "." + dest, Reason: "duplicate destination, the last source wins", Err: ErrInvalidOption})
				continue
			}
			seen[dest] = len(targets)
			targets = append(targets, Target{Dest: dest, Src: src})
		}
		return targets, issues, nil
	}

	return nil, nil, fmt.Errorf("unsupported kind %d", f.kind)
}

func unalias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func isScalar(n *yaml.Node, tag string) bool {
	return n != nil && n.Kind == yaml.ScalarNode && n.ShortTag() == tag
}

func mismatch(want Kind, n *yaml.Node) error {
	return fmt.Errorf("expected %s, got %s", want, describe(n))
}

func describe(n *yaml.Node) string {
	if n == nil {
		return "nothing"
	}
	switch n.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return strings.TrimPrefix(n.ShortTag(), "!!")
	default:
		return "unknown"
	}
}
