// Package assets drives esbuild for the bundle that html-mila hooks into.
package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoEntryPoints = errors.New("no entry points found")
	ErrBuildFailed   = errors.New("esbuild failed with errors")
	ErrNotBuilt      = errors.New("assets not built yet, call Build() first")
)

type BuildMetadata struct {
	Outputs map[string]OutputInfo `json:"outputs"`
}

type OutputInfo struct {
	EntryPoint string       `json:"entryPoint"`
	Imports    []ImportInfo `json:"imports"`
	Bytes      int          `json:"bytes"`
}

type ImportInfo struct {
	Path string `json:"path"`
}

// Pipeline runs esbuild builds with a fixed set of plugins
type Pipeline struct {
	config   Config
	plugins  []api.Plugin
	logger   zerolog.Logger
	metadata *BuildMetadata
	watching api.BuildContext
	mu       sync.RWMutex
}

type Option func(*Pipeline)

// WithPlugins appends esbuild plugins to every build
func WithPlugins(plugins ...api.Plugin) Option {
	return func(p *Pipeline) { p.plugins = append(p.plugins, plugins...) }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// New creates a new asset pipeline with the given configuration
func New(config Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		config: config,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Build runs esbuild once with the configured settings and loads metadata
func (p *Pipeline) Build() error {
	opts, err := p.buildOptions()
	if err != nil {
		return err
	}

	p.logger.Info().Strs("entrypoints", opts.EntryPoints).Msg("Building assets")

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return ErrBuildFailed
	}

	for _, file := range result.OutputFiles {
		p.logger.Info().Str("file", file.Path).Msg("Built file")
	}

	return nil
}

// Watch builds and then rebuilds on every change esbuild sees until ctx is done.
func (p *Pipeline) Watch(ctx context.Context) error {
	opts, err := p.buildOptions()
	if err != nil {
		return err
	}

	buildCtx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		for _, msg := range ctxErr.Errors {
			p.logger.Error().Str("error", msg.Text).Msg("Build error")
		}
		return ErrBuildFailed
	}
	defer buildCtx.Dispose()

	if err := buildCtx.Watch(api.WatchOptions{}); err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}

	p.mu.Lock()
	p.watching = buildCtx
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.watching = nil
		p.mu.Unlock()
	}()

	p.logger.Info().Strs("entrypoints", opts.EntryPoints).Msg("Watching assets")

	<-ctx.Done()

	p.logger.Info().Msg("Stopped watching assets")
	return nil
}

// Rebuild runs one more build, reusing the Watch context when one is active.
// It is used when files outside the module graph change.
func (p *Pipeline) Rebuild() error {
	p.mu.RLock()
	buildCtx := p.watching
	p.mu.RUnlock()

	if buildCtx == nil {
		return p.Build()
	}

	if result := buildCtx.Rebuild(); len(result.Errors) > 0 {
		return ErrBuildFailed
	}
	return nil
}

// Scripts returns the ordered list of output paths needed for the given
// entrypoint, the entrypoint output first.
func (p *Pipeline) Scripts(entryPointPath string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.metadata == nil {
		return nil, ErrNotBuilt
	}

	for outputPath, info := range p.metadata.Outputs {
		if info.EntryPoint != entryPointPath {
			continue
		}
		scripts := []string{outputPath}
		visited := map[string]bool{outputPath: true}
		p.addDependencies(info, &scripts, visited)
		return scripts, nil
	}

	return nil, fmt.Errorf("entrypoint %q not found in metadata", entryPointPath)
}

// EntryPoints returns the entry points recorded by the last build, sorted.
func (p *Pipeline) EntryPoints() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.metadata == nil {
		return nil
	}

	var entries []string
	for _, info := range p.metadata.Outputs {
		if info.EntryPoint != "" && !slices.Contains(entries, info.EntryPoint) {
			entries = append(entries, info.EntryPoint)
		}
	}
	slices.Sort(entries)
	return entries
}

func (p *Pipeline) logOutputs() {
	for _, entry := range p.EntryPoints() {
		scripts, err := p.Scripts(entry)
		if err != nil {
			p.logger.Warn().Err(err).Str("entrypoint", entry).Msg("Failed to load entry point outputs")
			continue
		}
		p.logger.Debug().Str("entrypoint", entry).Strs("scripts", scripts).Msg("Entry point outputs")
	}
}

func (p *Pipeline) addDependencies(output OutputInfo, scripts *[]string, visited map[string]bool) {
	for _, imp := range output.Imports {
		if !visited[imp.Path] {
			visited[imp.Path] = true
			*scripts = append(*scripts, imp.Path)

			if chunkInfo, exists := p.metadata.Outputs[imp.Path]; exists {
				p.addDependencies(chunkInfo, scripts, visited)
			}
		}
	}
}

func (p *Pipeline) buildOptions() (api.BuildOptions, error) {
	entryPoints, err := p.entryPoints()
	if err != nil {
		return api.BuildOptions{}, err
	}

	plugins := make([]api.Plugin, 0, len(p.plugins)+1)
	plugins = append(plugins, p.plugins...)
	plugins = append(plugins, p.metafilePlugin())

	return api.BuildOptions{
		EntryPoints:       entryPoints,
		AbsWorkingDir:     p.config.AbsWorkingDir,
		Bundle:            true,
		Splitting:         true,
		Write:             true,
		Outdir:            p.config.OutputDir,
		Format:            api.FormatESModule,
		MinifyWhitespace:  p.config.Minify,
		MinifyIdentifiers: p.config.Minify,
		MinifySyntax:      p.config.Minify,
		TreeShaking:       api.TreeShakingTrue,
		Sourcemap:         cond(p.config.SourceMap, api.SourceMapLinked, api.SourceMapNone),
		Metafile:          true,
		LogLevel:          api.LogLevelSilent,
		Plugins:           plugins,
	}, nil
}

func (p *Pipeline) entryPoints() ([]string, error) {
	if len(p.config.EntryPoints) > 0 {
		return p.config.EntryPoints, nil
	}

	pattern := p.config.EntryPointGlob
	if !filepath.IsAbs(pattern) && p.config.AbsWorkingDir != "" {
		pattern = filepath.Join(p.config.AbsWorkingDir, pattern)
	}

	entryPoints, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	if len(entryPoints) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEntryPoints, pattern)
	}

	return entryPoints, nil
}

// metafilePlugin logs errors and stores metadata after every build, including
// the rebuilds of a watch context.
func (p *Pipeline) metafilePlugin() api.Plugin {
	return api.Plugin{
		Name: "metafile",
		Setup: func(build api.PluginBuild) {
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				for _, msg := range result.Errors {
					p.logger.Error().Str("error", msg.Text).Msg("Build error")
				}
				for _, msg := range result.Warnings {
					p.logger.Warn().Str("plugin", msg.PluginName).Str("warning", msg.Text).Msg("Build warning")
				}
				if len(result.Errors) > 0 || result.Metafile == "" {
					return api.OnEndResult{}, nil
				}

				if err := p.storeMetadata(result.Metafile); err != nil {
					p.logger.Error().Err(err).Msg("Failed to store metafile")
					return api.OnEndResult{}, nil
				}
				p.logOutputs()
				return api.OnEndResult{}, nil
			})
		},
	}
}

func (p *Pipeline) storeMetadata(metafile string) error {
	var metadata BuildMetadata
	if err := json.Unmarshal([]byte(metafile), &metadata); err != nil {
		return err
	}

	p.mu.Lock()
	p.metadata = &metadata
	p.mu.Unlock()

	if p.config.MetafilePath == "" {
		return nil
	}

	path := p.config.MetafilePath
	if !filepath.IsAbs(path) && p.config.AbsWorkingDir != "" {
		path = filepath.Join(p.config.AbsWorkingDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(metafile), 0o600)
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
