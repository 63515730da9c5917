package rawimport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/htmlmila/internal/minifier"
	"github.com/wolfeidau/htmlmila/internal/options"
)

func TestIsRawHTML(t *testing.T) {
	tests := []struct {
		id       string
		expected bool
	}{
		{id: "/src/partial.html?raw", expected: true},
		{id: "partial.html?raw", expected: true},
		{id: "/src/partial.html", expected: false},
		{id: "/src/partial.htm?raw", expected: false},
		{id: "/src/data.json?raw", expected: false},
		{id: "/src/partial.html?raw&v=1", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			require.Equal(t, tt.expected, IsRawHTML(tt.id))
		})
	}
}

func TestModuleText(t *testing.T) {
	text := "<p class=\"a\">\n  it's <b>bold</b>\n</p>\n"

	code := Module(text)
	require.Equal(t, `export default "<p class=\"a\">\n  it's <b>bold</b>\n</p>\n";`, code)

	decoded, err := Text(code)
	require.NoError(t, err)
	require.Equal(t, text, decoded)
}

func TestTextMalformed(t *testing.T) {
	for _, code := range []string{
		`module.exports = "x"`,
		`export default 'x'`,
		`export default "unterminated`,
	} {
		_, err := Text(code)
		require.ErrorIs(t, err, ErrMalformedModule, code)
	}
}

func TestTransform(t *testing.T) {
	i := &Interceptor{Enabled: true, Minifier: minifier.New(options.DefaultMinifyOptions())}

	code := Module("<div   class=\"x\">\n  <span>hi</span>\n</div>\n")
	out, ok, err := i.Transform(code, "/src/box.html?raw")
	require.NoError(t, err)
	require.True(t, ok)

	text, err := Text(out)
	require.NoError(t, err)
	assert.Contains(t, text, "class=x")
	assert.Contains(t, text, "<span>hi</span>")
	assert.NotContains(t, text, "\n")
	assert.Less(t, len(out), len(code))
}

func TestTransformPassThrough(t *testing.T) {
	called := false
	m := minifier.Func(func(text string) (string, error) {
		called = true
		return text, nil
	})

	code := Module("<p>x</p>")

	out, ok, err := (&Interceptor{Enabled: true, Minifier: m}).Transform(code, "/src/box.html")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, out)

	out, ok, err = (&Interceptor{Enabled: false, Minifier: m}).Transform(code, "/src/box.html?raw")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, out)

	require.False(t, called)
}

func TestTransformMinifyError(t *testing.T) {
	boom := errors.New("boom")
	i := &Interceptor{Enabled: true, Minifier: minifier.Func(func(string) (string, error) { return "", boom })}

	_, ok, err := i.Transform(Module("<p>"), "/src/box.html?raw")
	require.False(t, ok)
	require.ErrorIs(t, err, ErrTransform)
	require.Contains(t, err.Error(), "boom")
}
