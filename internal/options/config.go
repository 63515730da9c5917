package options

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Separator is the path separator used by outDir and target keys. Options are
// written with forward slashes on every platform.
const Separator = "/"

// Config is the resolved plugin configuration. It is built once per plugin
// instance and treated as read-only afterwards.
type Config struct {
	// Print progress, the size report and the elapsed time
	Verbose bool
	// Output directory relative to the build root, "" or ending in exactly one "/"
	OutDir string
	// Run the HTML minifier over target files
	Minify bool
	// Minify HTML pulled into bundles through "*.html?raw" imports
	MinifyImport bool
	// Minifier switches, restricted to the keys of DefaultMinifyOptions
	MinifyOptions map[string]bool
	// Files to produce, in declaration order
	Targets []Target
	// Copy sources verbatim when Minify is off, otherwise write empty files
	CopyRaw bool
	// Number of targets processed at once
	Concurrency int
	// Per-target deadline, zero disables it
	FileTimeout time.Duration
}

// Target maps a destination path (relative to OutDir) to a source file.
//
// Src keeps the value exactly as supplied so a malformed entry can be reported
// when the targets are processed rather than silently dropped.
type Target struct {
	Dest string
	Src  any
}

// Source returns the source path and whether it is a string.
func (t Target) Source() (string, bool) {
	s, ok := t.Src.(string)
	return s, ok
}

// DefaultMinifyOptions returns a fresh copy of the default minifier switches.
func DefaultMinifyOptions() map[string]bool {
	return map[string]bool{
		"collapseWhitespace":            true,
		"html5":                         true,
		"keepClosingSlash":              true,
		"minifyCSS":                     true,
		"minifyJS":                      true,
		"removeAttributeQuotes":         true,
		"removeComments":                true,
		"removeRedundantAttributes":     true,
		"removeScriptTypeAttributes":    true,
		"removeStyleLinkTypeAttributes": true,
		"useShortDoctype":               true,
	}
}

// MinifyOptionKeys returns the recognised minifier switches in sorted order.
func MinifyOptionKeys() []string {
	return slices.Sorted(maps.Keys(DefaultMinifyOptions()))
}

// Defaults returns the default configuration. Every call returns new maps and
// slices, so callers may modify the result.
func Defaults() Config {
	return Config{
		Verbose:       true,
		OutDir:        "",
		Minify:        true,
		MinifyImport:  true,
		MinifyOptions: DefaultMinifyOptions(),
		Targets:       []Target{},
		CopyRaw:       true,
		Concurrency:   1,
	}
}

// NormalizeOutDir strips leading separators and makes sure a non-empty value
// ends in exactly one separator. A value made only of separators becomes "".
func NormalizeOutDir(dir string) string {
	dir = strings.TrimLeft(dir, Separator)
	dir = strings.TrimRight(dir, Separator)
	if dir == "" {
		return ""
	}
	return dir + Separator
}
