// Package minifier adapts tdewolff/minify to the option names used in
// htmlmila configuration files.
package minifier

import (
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
)

const htmlMimeType = "text/html"

var jsMimeTypes = regexp.MustCompile(`^(application|text)/(x-)?(java|ecma)script$`)

// Minifier minifies an HTML document or fragment.
type Minifier interface {
	Minify(text string) (string, error)
}

// HTML is a Minifier backed by tdewolff/minify.
type HTML struct {
	m *minify.M
}

// New builds an HTML minifier from option switches. Missing keys count as
// false. Document and end tags are always kept.
func New(opts map[string]bool) *HTML {
	m := minify.New()
	m.Add(htmlMimeType, &html.Minifier{
		KeepComments:        !opts["removeComments"],
		KeepDefaultAttrVals: !opts["removeRedundantAttributes"],
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          !opts["removeAttributeQuotes"],
		KeepWhitespace:      !opts["collapseWhitespace"],
	})

	if opts["minifyCSS"] {
		m.AddFunc("text/css", css.Minify)
	}
	if opts["minifyJS"] {
		m.AddFuncRegexp(jsMimeTypes, js.Minify)
	}

	return &HTML{m: m}
}

func (h *HTML) Minify(text string) (string, error) {
	return h.m.String(htmlMimeType, text)
}

// Func adapts a plain function to the Minifier interface.
type Func func(text string) (string, error)

func (f Func) Minify(text string) (string, error) {
	return f(text)
}
