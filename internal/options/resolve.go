package options

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Issue records a user supplied value that was rejected or ignored.
type Issue struct {
	Key    string
	Reason string
	Err    error
}

func (i Issue) Error() string {
	if i.Key == "" {
		return fmt.Sprintf("%v: %s", i.Err, i.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", i.Err, i.Key, i.Reason)
}

func (i Issue) Unwrap() error { return i.Err }

// Resolution is the outcome of merging user options over the defaults. Config
// is always usable; Issues lists everything that was not taken from the input.
type Resolution struct {
	Config Config
	Issues []Issue
}

// OK reports whether every user supplied value was accepted.
func (r Resolution) OK() bool {
	return len(r.Issues) == 0
}

// Err joins the issues into a single error, nil when there are none.
func (r Resolution) Err() error {
	errs := make([]error, 0, len(r.Issues))
	for _, issue := range r.Issues {
		errs = append(errs, issue)
	}
	return errors.Join(errs...)
}

// Resolve merges the options held in node over Defaults. Values of the wrong
// kind keep their default and are reported as issues. It never fails.
func Resolve(node *yaml.Node) Resolution {
	res := Resolution{Config: Defaults()}

	if node != nil && node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return res
		}
		node = node.Content[0]
	}
	node = unalias(node)
	if node == nil || node.Kind == 0 || isScalar(node, "!!null") {
		return res
	}
	if node.Kind != yaml.MappingNode {
		res.Issues = append(res.Issues, Issue{Reason: "options must be a mapping, got " + describe(node), Err: ErrInvalidOption})
		return res
	}

	values := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		values[node.Content[i].Value] = node.Content[i+1]
	}

	known := make(map[string]bool, len(schema))
	for _, f := range schema {
		known[f.key] = true

		n, ok := values[f.key]
		if !ok {
			continue
		}

		v, issues, err := f.decode(n)
		res.Issues = append(res.Issues, issues...)
		if err == nil && f.check != nil {
			err = f.check(v)
		}
		if err != nil {
			res.Issues = append(res.Issues, Issue{Key: f.key, Reason: err.Error(), Err: ErrInvalidOption})
			continue
		}

		f.set(&res.Config, v)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if !known[key] {
			res.Issues = append(res.Issues, Issue{Key: key, Reason: "not a recognised option", Err: ErrUnknownOption})
		}
	}

	return res
}

// ResolveValue resolves options supplied as Go values, typically a
// map[string]any. Map keys are ordered by the yaml encoder, so callers that
// care about target order should use Resolve or Load instead.
func ResolveValue(v any) Resolution {
	if v == nil {
		return Resolution{Config: Defaults()}
	}

	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return Resolution{
			Config: Defaults(),
			Issues: []Issue{{Reason: err.Error(), Err: ErrInvalidOption}},
		}
	}

	return Resolve(&node)
}

// Parse resolves options from YAML or JSON text.
func Parse(data []byte) (Resolution, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return Resolution{}, fmt.Errorf("failed to parse options: %w", err)
	}
	return Resolve(&node), nil
}

// Load reads and resolves an options file. Errors are returned only when the
// file cannot be read or parsed.
func Load(path string) (Resolution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to read options file: %w", err)
	}
	return Parse(data)
}
