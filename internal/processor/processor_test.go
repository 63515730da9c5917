package processor

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/htmlmila/internal/minifier"
	"github.com/wolfeidau/htmlmila/internal/options"
	"github.com/wolfeidau/htmlmila/internal/report"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestProcessor(cfg options.Config, out *bytes.Buffer, opts ...Option) *Processor {
	opts = append([]Option{
		WithPrinter(report.NewPrinter(out)),
		WithLogger(zerolog.Nop()),
	}, opts...)
	return New(cfg, opts...)
}

func TestProcessMissingSource(t *testing.T) {
	srcDir, buildRoot := t.TempDir(), t.TempDir()
	good := writeSource(t, srcDir, "b.html", "<p>b</p>")

	cfg := options.Defaults()
	cfg.Targets = []options.Target{
		{Dest: "a.html", Src: filepath.Join(srcDir, "missing.html")},
		{Dest: "b.html", Src: good},
	}

	var out bytes.Buffer
	summary, err := newTestProcessor(cfg, &out).Process(context.Background(), buildRoot)
	require.NoError(t, err)

	require.Equal(t, 2, summary.Total)
	require.Len(t, summary.Failures, 1)
	require.Equal(t, "a.html", summary.Failures[0].Name)
	require.ErrorIs(t, summary.Failures[0].Err, fs.ErrNotExist)

	require.Len(t, summary.Results, 1)
	require.Equal(t, "b.html", summary.Results[0].Name)

	require.NoFileExists(t, filepath.Join(buildRoot, "a.html"))
	require.FileExists(t, filepath.Join(buildRoot, "b.html"))

	printed := out.String()
	assert.Contains(t, printed, "a.html FAIL")
	assert.Contains(t, printed, "1 of 2 files transformed.")
	assert.NotContains(t, printed, "a.html  ", "failed targets have no report row")
}

func TestProcessMinifies(t *testing.T) {
	srcDir, buildRoot := t.TempDir(), t.TempDir()
	src := writeSource(t, srcDir, "box.html", `<div   class="x">  </div>`)

	cfg := options.Defaults()
	cfg.OutDir = "assets/"
	cfg.Targets = []options.Target{{Dest: "nested/box.html", Src: src}}

	var out bytes.Buffer
	summary, err := newTestProcessor(cfg, &out).Process(context.Background(), buildRoot)
	require.NoError(t, err)
	require.Empty(t, summary.Failures)
	require.Len(t, summary.Results, 1)

	res := summary.Results[0]
	require.Less(t, res.OutputSize, res.SourceSize)
	require.Positive(t, res.GzipSize)

	written, err := os.ReadFile(filepath.Join(buildRoot, "assets", "nested", "box.html"))
	require.NoError(t, err)
	require.Len(t, written, res.OutputSize)

	again, err := minifier.New(cfg.MinifyOptions).Minify(string(written))
	require.NoError(t, err)
	require.Equal(t, string(written), again)

	assert.Contains(t, out.String(), "assets/nested/box.html")
}

func TestProcessByteSizes(t *testing.T) {
	srcDir, buildRoot := t.TempDir(), t.TempDir()
	src := writeSource(t, srcDir, "u.html", "héllo")

	cfg := options.Defaults()
	cfg.Minify = false
	cfg.Targets = []options.Target{{Dest: "u.html", Src: src}}

	var out bytes.Buffer
	summary, err := newTestProcessor(cfg, &out).Process(context.Background(), buildRoot)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	require.Equal(t, 6, summary.Results[0].SourceSize)
	require.Equal(t, 6, summary.Results[0].OutputSize)
}

func TestProcessMinifyDisabled(t *testing.T) {
	tests := []struct {
		name     string
		copyRaw  bool
		expected string
	}{
		{name: "copy verbatim", copyRaw: true, expected: "<p>  keep   me  </p>"},
		{name: "write empty", copyRaw: false, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srcDir, buildRoot := t.TempDir(), t.TempDir()
			src := writeSource(t, srcDir, "p.html", "<p>  keep   me  </p>")

			cfg := options.Defaults()
			cfg.Minify = false
			cfg.CopyRaw = tt.copyRaw
			cfg.Targets = []options.Target{{Dest: "p.html", Src: src}}

			var out bytes.Buffer
			summary, err := newTestProcessor(cfg, &out).Process(context.Background(), buildRoot)
			require.NoError(t, err)
			require.Len(t, summary.Results, 1)

			written, err := os.ReadFile(filepath.Join(buildRoot, "p.html"))
			require.NoError(t, err)
			require.Equal(t, tt.expected, string(written))
			require.Equal(t, len(tt.expected), summary.Results[0].OutputSize)
		})
	}
}

func TestProcessReplacesExistingFile(t *testing.T) {
	srcDir, buildRoot := t.TempDir(), t.TempDir()
	src := writeSource(t, srcDir, "i.html", "<p>new</p>")
	writeSource(t, buildRoot, "i.html", "<p>an older and much longer version of the page</p>")

	cfg := options.Defaults()
	cfg.Targets = []options.Target{{Dest: "i.html", Src: src}}

	var out bytes.Buffer
	_, err := newTestProcessor(cfg, &out).Process(context.Background(), buildRoot)
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(buildRoot, "i.html"))
	require.NoError(t, err)
	require.Equal(t, "<p>new</p>", string(written))
}

func TestProcessInvalidConfig(t *testing.T) {
	srcDir := t.TempDir()
	src := writeSource(t, srcDir, "a.html", "<p>a</p>")

	tests := []struct {
		name   string
		mutate func(cfg *options.Config)
	}{
		{
			name:   "no targets",
			mutate: func(cfg *options.Config) { cfg.Targets = nil },
		},
		{
			name: "non string source",
			mutate: func(cfg *options.Config) {
				cfg.Targets = []options.Target{{Dest: "a.html", Src: src}, {Dest: "b.html", Src: 12}}
			},
		},
		{
			name: "empty destination",
			mutate: func(cfg *options.Config) {
				cfg.Targets = []options.Target{{Dest: "", Src: src}}
			},
		},
		{
			name: "unnormalised outDir",
			mutate: func(cfg *options.Config) {
				cfg.OutDir = "/abs"
				cfg.Targets = []options.Target{{Dest: "a.html", Src: src}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildRoot := t.TempDir()
			cfg := options.Defaults()
			tt.mutate(&cfg)

			var out bytes.Buffer
			summary, err := newTestProcessor(cfg, &out).Process(context.Background(), buildRoot)
			require.ErrorIs(t, err, ErrInvalidConfig)
			require.Empty(t, summary.Results)
			require.Empty(t, out.String())

			entries, err := os.ReadDir(buildRoot)
			require.NoError(t, err)
			require.Empty(t, entries, "nothing is written for an invalid configuration")
		})
	}
}

func TestProcessQuiet(t *testing.T) {
	srcDir, buildRoot := t.TempDir(), t.TempDir()
	src := writeSource(t, srcDir, "a.html", "<p>a</p>")

	cfg := options.Defaults()
	cfg.Verbose = false
	cfg.Targets = []options.Target{
		{Dest: "a.html", Src: src},
		{Dest: "b.html", Src: filepath.Join(srcDir, "missing.html")},
	}

	var out bytes.Buffer
	summary, err := newTestProcessor(cfg, &out).Process(context.Background(), buildRoot)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	require.Len(t, summary.Failures, 1)
	require.Equal(t, "1 of 2 files transformed.\n", out.String())
}

func TestProcessConcurrentKeepsOrder(t *testing.T) {
	srcDir, buildRoot := t.TempDir(), t.TempDir()

	cfg := options.Defaults()
	cfg.Concurrency = 4
	var expected []string
	for i := range 12 {
		name := fmt.Sprintf("page-%02d.html", i)
		if i%3 == 0 {
			cfg.Targets = append(cfg.Targets, options.Target{Dest: name, Src: filepath.Join(srcDir, "missing", name)})
			continue
		}
		src := writeSource(t, srcDir, name, fmt.Sprintf("<p>  page %d  </p>", i))
		cfg.Targets = append(cfg.Targets, options.Target{Dest: name, Src: src})
		expected = append(expected, name)
	}

	var out bytes.Buffer
	summary, err := newTestProcessor(cfg, &out).Process(context.Background(), buildRoot)
	require.NoError(t, err)
	require.Len(t, summary.Failures, 4)

	names := make([]string, 0, len(summary.Results))
	for _, r := range summary.Results {
		names = append(names, r.Name)
	}
	require.Equal(t, expected, names)

	rows := report.Format(summary.Rows(), "")
	for i, row := range rows {
		require.Contains(t, row, expected[i])
	}
}

type blockingFS struct {
	OSFS
	release chan struct{}
}

func (b blockingFS) ReadFile(name string) ([]byte, error) {
	<-b.release
	return nil, fmt.Errorf("read of %s released", name)
}

func TestProcessFileTimeout(t *testing.T) {
	srcDir, buildRoot := t.TempDir(), t.TempDir()
	src := writeSource(t, srcDir, "slow.html", "<p>slow</p>")

	cfg := options.Defaults()
	cfg.FileTimeout = 20 * time.Millisecond
	cfg.Targets = []options.Target{{Dest: "slow.html", Src: src}}

	release := make(chan struct{})
	defer close(release)

	var out bytes.Buffer
	summary, err := newTestProcessor(cfg, &out, WithFS(blockingFS{release: release})).Process(context.Background(), buildRoot)
	require.NoError(t, err)
	require.Empty(t, summary.Results)
	require.Len(t, summary.Failures, 1)
	require.ErrorIs(t, summary.Failures[0].Err, ErrTargetTimeout)
}

func TestProcessCancelledContext(t *testing.T) {
	srcDir, buildRoot := t.TempDir(), t.TempDir()
	src := writeSource(t, srcDir, "a.html", "<p>a</p>")

	cfg := options.Defaults()
	cfg.Targets = []options.Target{{Dest: "a.html", Src: src}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	summary, err := newTestProcessor(cfg, &out).Process(ctx, buildRoot)
	require.NoError(t, err)
	require.Len(t, summary.Failures, 1)
	require.ErrorIs(t, summary.Failures[0].Err, context.Canceled)
	require.NoFileExists(t, filepath.Join(buildRoot, "a.html"))
}

func TestProcessMinifierError(t *testing.T) {
	srcDir, buildRoot := t.TempDir(), t.TempDir()
	src := writeSource(t, srcDir, "a.html", "<p>a</p>")

	cfg := options.Defaults()
	cfg.Targets = []options.Target{{Dest: "a.html", Src: src}}

	failing := minifier.Func(func(string) (string, error) { return "", fmt.Errorf("unbalanced markup") })

	var out bytes.Buffer
	summary, err := newTestProcessor(cfg, &out, WithMinifier(failing)).Process(context.Background(), buildRoot)
	require.NoError(t, err)
	require.Len(t, summary.Failures, 1)
	require.Contains(t, summary.Failures[0].Err.Error(), "unbalanced markup")
	require.NoFileExists(t, filepath.Join(buildRoot, "a.html"))
}
