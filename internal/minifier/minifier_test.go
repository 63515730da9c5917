package minifier

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/htmlmila/internal/options"
)

func TestMinifyShrinksMarkup(t *testing.T) {
	m := New(options.DefaultMinifyOptions())

	src := `<div   class="x">  </div>`
	out, err := m.Minify(src)
	require.NoError(t, err)
	require.Less(t, len(out), len(src))

	again, err := m.Minify(out)
	require.NoError(t, err)
	require.Equal(t, out, again)
}

func TestMinifyInlineAssets(t *testing.T) {
	src := "<style>\n  body {\n    color: #ff0000;\n  }\n</style>\n<script>\n  var answer = 1 + 1;\n</script>"

	withAssets, err := New(options.DefaultMinifyOptions()).Minify(src)
	require.NoError(t, err)

	opts := options.DefaultMinifyOptions()
	opts["minifyCSS"] = false
	opts["minifyJS"] = false
	withoutAssets, err := New(opts).Minify(src)
	require.NoError(t, err)

	require.Less(t, len(withAssets), len(withoutAssets))
	require.Contains(t, withAssets, "color:red")
}

func TestMinifyComments(t *testing.T) {
	src := `<p>hello</p><!-- note -->`

	out, err := New(options.DefaultMinifyOptions()).Minify(src)
	require.NoError(t, err)
	require.NotContains(t, out, "note")

	opts := options.DefaultMinifyOptions()
	opts["removeComments"] = false
	out, err = New(opts).Minify(src)
	require.NoError(t, err)
	require.Contains(t, out, "<!-- note -->")
}

func TestMinifyAttributeQuotes(t *testing.T) {
	src := `<a href="page.html" class="link">x</a>`

	out, err := New(options.DefaultMinifyOptions()).Minify(src)
	require.NoError(t, err)
	require.Contains(t, out, "class=link")

	opts := options.DefaultMinifyOptions()
	opts["removeAttributeQuotes"] = false
	out, err = New(opts).Minify(src)
	require.NoError(t, err)
	require.Contains(t, out, `class="link"`)
}

func TestMinifyKeepsDocumentAndEndTags(t *testing.T) {
	src := "<!DOCTYPE html><html><head><title>x</title></head><body><ul><li>a</li></ul><p>b</p></body></html>"

	out, err := New(options.DefaultMinifyOptions()).Minify(src)
	require.NoError(t, err)

	for _, tag := range []string{"<html>", "<head>", "</head>", "<body>", "</li>", "</ul>", "<p>b</p>", "</body>", "</html>"} {
		require.Contains(t, out, tag)
	}
}

func TestFunc(t *testing.T) {
	var m Minifier = Func(func(text string) (string, error) { return "<" + text + ">", nil })

	out, err := m.Minify("x")
	require.NoError(t, err)
	require.Equal(t, "<x>", out)
}
