package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/htmlmila/internal/assets"
	"github.com/wolfeidau/htmlmila/internal/logger"
	"github.com/wolfeidau/htmlmila/internal/options"
	"github.com/wolfeidau/htmlmila/internal/plugin"
	"github.com/wolfeidau/htmlmila/internal/report"
	"github.com/wolfeidau/htmlmila/internal/telemetry"
	"github.com/wolfeidau/htmlmila/internal/watch"
	"golang.org/x/sync/errgroup"
)

var ErrTargetsFailed = errors.New("html-mila targets failed")

type BuildCmd struct {
	// html-mila options
	Config string `help:"path to a yaml or json html-mila options file" type:"existingfile" env:"HTMLMILA_CONFIG"`

	// esbuild configuration
	Entry        []string `help:"bundle entry points, overrides --entry-glob" env:"HTMLMILA_ENTRY"`
	EntryGlob    string   `help:"glob matching the bundle entry points" default:"src/*.js" env:"HTMLMILA_ENTRY_GLOB"`
	Outdir       string   `help:"bundle output directory" default:"dist" env:"HTMLMILA_OUTDIR"`
	Root         string   `help:"build root, defaults to the current directory" type:"path" env:"HTMLMILA_ROOT"`
	MinifyBundle bool     `help:"minify the javascript bundle" default:"true" negatable:"" env:"HTMLMILA_MINIFY_BUNDLE"`
	Sourcemap    bool     `help:"write linked source maps" default:"false" env:"HTMLMILA_SOURCEMAP"`
	Metafile     string   `help:"path of the esbuild metafile, empty disables it" default:"dist/meta.json" env:"HTMLMILA_METAFILE"`

	// Operational modes
	Watch   bool `help:"rebuild when entry points or target sources change" default:"false" env:"HTMLMILA_WATCH"`
	Tracing bool `help:"enable tracing" default:"false" env:"HTMLMILA_TRACING"`
	Verbose bool `help:"print progress and the size report" short:"v" xor:"verbosity"`
	Quiet   bool `help:"only log warnings and errors" short:"q" xor:"verbosity"`

	out io.Writer
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	if c.Quiet {
		log = logger.Quiet(log)
	}

	log.Debug().Str("version", globals.Version).Msg("Starting html-mila build")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "htmlmila", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without tracing")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	return c.run(ctx, log)
}

func (c *BuildCmd) run(ctx context.Context, log zerolog.Logger) error {
	root, err := c.buildRoot()
	if err != nil {
		return err
	}

	cfg, err := c.options(log)
	if err != nil {
		return err
	}

	out := c.out
	if out == nil {
		out = os.Stdout
	}

	mila := plugin.New(cfg,
		plugin.WithContext(ctx),
		plugin.WithLogger(log),
		plugin.WithPrinter(report.NewPrinter(out)),
		plugin.WithBuildRoot(root),
	)

	pipeline := assets.New(assets.Config{
		EntryPoints:    c.Entry,
		EntryPointGlob: c.EntryGlob,
		OutputDir:      c.Outdir,
		AbsWorkingDir:  root,
		MetafilePath:   c.Metafile,
		Minify:         c.MinifyBundle,
		SourceMap:      c.Sourcemap,
	}, assets.WithPlugins(mila.ESBuild()), assets.WithLogger(log))

	if c.Watch {
		return c.watch(ctx, log, cfg, pipeline)
	}

	if err := pipeline.Build(); err != nil {
		return fmt.Errorf("failed to build assets: %w", err)
	}

	summary := mila.LastSummary()
	if len(summary.Failures) > 0 {
		return fmt.Errorf("%w: %d of %d", ErrTargetsFailed, len(summary.Failures), summary.Total)
	}

	return nil
}

func (c *BuildCmd) watch(ctx context.Context, log zerolog.Logger, cfg options.Config, pipeline *assets.Pipeline) error {
	watcher, err := watch.New(func(changed []string) {
		log.Info().Strs("files", changed).Msg("Target sources changed, rebuilding")
		if err := pipeline.Rebuild(); err != nil {
			log.Error().Err(err).Msg("Rebuild failed")
		}
	}, watch.WithLogger(log))
	if err != nil {
		return err
	}

	for _, src := range watch.Sources(cfg) {
		if err := watcher.AddFile(src); err != nil {
			log.Warn().Err(err).Str("src", src).Msg("Not watching target source")
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pipeline.Watch(ctx) })
	g.Go(func() error { return watcher.Run(ctx) })

	return g.Wait()
}

func (c *BuildCmd) buildRoot() (string, error) {
	if c.Root != "" {
		return c.Root, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to determine working directory: %w", err)
	}
	return wd, nil
}

// options resolves the html-mila options file. Rejected values are logged and
// replaced by their defaults.
func (c *BuildCmd) options(log zerolog.Logger) (options.Config, error) {
	res := options.Resolve(nil)
	if c.Config != "" {
		var err error
		res, err = options.Load(c.Config)
		if err != nil {
			return options.Config{}, err
		}
	}

	for _, issue := range res.Issues {
		log.Warn().Str("key", issue.Key).Str("reason", issue.Reason).Err(issue.Err).Msg("Ignoring html-mila option")
	}

	cfg := res.Config
	switch {
	case c.Verbose:
		cfg.Verbose = true
	case c.Quiet:
		cfg.Verbose = false
	}

	return cfg, nil
}
