// Package rawimport minifies HTML that bundles import as raw text through the
// "file.html?raw" convention.
package rawimport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfeidau/htmlmila/internal/minifier"
)

// Suffix marks an import whose value is the raw text of an HTML file.
const Suffix = ".html?raw"

const modulePrefix = "export default "

var (
	// ErrMalformedModule indicates a raw import module body is not a single exported string literal
	ErrMalformedModule = errors.New("malformed raw import module")
	// ErrTransform indicates the HTML inside a raw import could not be minified
	ErrTransform = errors.New("raw import transform failed")
)

// IsRawHTML reports whether id follows the raw HTML import convention.
func IsRawHTML(id string) bool {
	return strings.HasSuffix(id, Suffix)
}

// Module renders the body of a raw text module exporting text.
func Module(text string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// strings always encode
	_ = enc.Encode(text)

	return modulePrefix + strings.TrimSuffix(buf.String(), "\n") + ";"
}

// Text extracts the exported string from a raw text module body.
func Text(code string) (string, error) {
	body := strings.TrimSpace(code)
	if !strings.HasPrefix(body, modulePrefix) {
		return "", fmt.Errorf("%w: missing %q prefix", ErrMalformedModule, modulePrefix)
	}

	literal := strings.TrimSpace(strings.TrimSuffix(body[len(modulePrefix):], ";"))

	var text string
	if err := json.Unmarshal([]byte(literal), &text); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedModule, err)
	}

	return text, nil
}

// Interceptor replaces raw HTML import modules with minified copies.
type Interceptor struct {
	Enabled  bool
	Minifier minifier.Minifier
}

// Transform returns the replacement body for the module identified by id.
// The boolean is false when the module should pass through unchanged.
func (i *Interceptor) Transform(code, id string) (string, bool, error) {
	if !i.Enabled || !IsRawHTML(id) {
		return "", false, nil
	}

	text, err := Text(code)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", id, err)
	}

	minified, err := i.Minifier.Minify(text)
	if err != nil {
		return "", false, fmt.Errorf("%w: %s: %v", ErrTransform, id, err)
	}

	return Module(minified), true, nil
}
