// Package plugin exposes html-mila as an esbuild plugin.
//
// The plugin hooks three points of an esbuild build:
//   - Setup, where the build root is taken from the initial build options
//   - OnResolve/OnLoad for "*.html?raw" imports, which become string modules
//     and are minified when MinifyImport is set
//   - OnEnd, where every declared target is processed once the bundle has
//     been written without errors
package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/htmlmila/internal/minifier"
	"github.com/wolfeidau/htmlmila/internal/options"
	"github.com/wolfeidau/htmlmila/internal/processor"
	"github.com/wolfeidau/htmlmila/internal/rawimport"
	"github.com/wolfeidau/htmlmila/internal/report"
	"github.com/wolfeidau/htmlmila/internal/telemetry"
)

const (
	// Name is the plugin name reported to esbuild
	Name = "html-mila"

	rawNamespace = "html-mila-raw"
	rawFilter    = `\.html\?raw$`
)

// Plugin holds the state of one plugin instance.
type Plugin struct {
	cfg         options.Config
	ctx         context.Context
	logger      zerolog.Logger
	metrics     *telemetry.Metrics
	interceptor *rawimport.Interceptor
	processor   *processor.Processor

	mu           sync.Mutex
	rootOverride string
	buildRoot    string
	last         processor.Summary
}

// Option configures a Plugin.
type Option func(*pluginOptions)

type pluginOptions struct {
	ctx       context.Context
	logger    zerolog.Logger
	printer   *report.Printer
	minifier  minifier.Minifier
	buildRoot string
}

// WithContext sets the context finalize passes run under.
func WithContext(ctx context.Context) Option {
	return func(o *pluginOptions) { o.ctx = ctx }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *pluginOptions) { o.logger = logger }
}

// WithPrinter sets where progress and the size report are written.
func WithPrinter(printer *report.Printer) Option {
	return func(o *pluginOptions) { o.printer = printer }
}

// WithMinifier replaces the minifier built from cfg.MinifyOptions. It is used
// for raw imports and targets alike.
func WithMinifier(m minifier.Minifier) Option {
	return func(o *pluginOptions) { o.minifier = m }
}

// WithBuildRoot fixes the build root instead of taking it from the build's
// working directory.
func WithBuildRoot(root string) Option {
	return func(o *pluginOptions) { o.buildRoot = root }
}

// New creates a plugin instance for cfg.
func New(cfg options.Config, opts ...Option) *Plugin {
	o := &pluginOptions{
		ctx:    context.Background(),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.minifier == nil {
		o.minifier = minifier.New(cfg.MinifyOptions)
	}
	if o.printer == nil {
		o.printer = report.NewPrinter(os.Stdout)
	}

	logger := o.logger.With().Str("plugin", Name).Logger()
	metrics := telemetry.NewMetrics()

	return &Plugin{
		cfg:     cfg,
		ctx:     o.ctx,
		logger:  logger,
		metrics: metrics,
		interceptor: &rawimport.Interceptor{
			Enabled:  cfg.MinifyImport,
			Minifier: o.minifier,
		},
		processor: processor.New(cfg,
			processor.WithMinifier(o.minifier),
			processor.WithPrinter(o.printer),
			processor.WithLogger(logger),
			processor.WithMetrics(metrics),
		),
		rootOverride: o.buildRoot,
	}
}

// ESBuild returns the esbuild plugin definition for this instance.
func (p *Plugin) ESBuild() api.Plugin {
	return api.Plugin{
		Name:  Name,
		Setup: p.setup,
	}
}

// BuildRoot returns the root resolved when the plugin was set up.
func (p *Plugin) BuildRoot() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buildRoot
}

// LastSummary returns the outcome of the most recent finalize pass.
func (p *Plugin) LastSummary() processor.Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Plugin) setup(build api.PluginBuild) {
	p.configResolved(build.InitialOptions)

	build.OnResolve(api.OnResolveOptions{Filter: rawFilter}, p.resolveRaw)
	build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: rawNamespace}, p.loadRaw)
	build.OnEnd(p.finalize)
}

func (p *Plugin) configResolved(opts *api.BuildOptions) {
	root := p.rootOverride
	if root == "" && opts != nil {
		root = opts.AbsWorkingDir
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			p.logger.Warn().Err(err).Msg("Failed to determine working directory, using relative build root")
			wd = "."
		}
		root = wd
	}

	p.mu.Lock()
	p.buildRoot = root
	p.mu.Unlock()

	p.logger.Debug().Str("build_root", root).Msg("Plugin configured")
}

func (p *Plugin) resolveRaw(args api.OnResolveArgs) (api.OnResolveResult, error) {
	path := strings.TrimSuffix(args.Path, "?raw")
	if !filepath.IsAbs(path) {
		path = filepath.Join(args.ResolveDir, path)
	}

	return api.OnResolveResult{
		Path:      path,
		Namespace: rawNamespace,
	}, nil
}

func (p *Plugin) loadRaw(args api.OnLoadArgs) (api.OnLoadResult, error) {
	data, err := os.ReadFile(args.Path)
	if err != nil {
		return api.OnLoadResult{}, fmt.Errorf("failed to read raw import: %w", err)
	}

	code := rawimport.Module(string(data))

	replaced, ok, err := p.interceptor.Transform(code, args.Path+"?raw")
	if err != nil {
		return api.OnLoadResult{}, err
	}
	if ok {
		code = replaced
		p.metrics.ImportsMinified.Add(p.ctx, 1)
		p.logger.Debug().Str("module", args.Path).Int("source_size", len(data)).Msg("Minified raw import")
	}

	return api.OnLoadResult{
		Contents:   &code,
		Loader:     api.LoaderJS,
		ResolveDir: filepath.Dir(args.Path),
		WatchFiles: []string{args.Path},
	}, nil
}

func (p *Plugin) finalize(result *api.BuildResult) (api.OnEndResult, error) {
	if len(result.Errors) > 0 {
		p.logger.Debug().Int("errors", len(result.Errors)).Msg("Build failed, skipping targets")
		return api.OnEndResult{}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	summary, err := p.processor.Process(p.ctx, p.buildRoot)
	p.last = summary
	if err != nil {
		return api.OnEndResult{
			Warnings: []api.Message{{PluginName: Name, Text: err.Error()}},
		}, nil
	}

	return api.OnEndResult{}, nil
}
