// Package processor runs the finalize pass: every declared target is read,
// optionally minified and written below the build root.
package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/htmlmila/internal/minifier"
	"github.com/wolfeidau/htmlmila/internal/options"
	"github.com/wolfeidau/htmlmila/internal/report"
	"github.com/wolfeidau/htmlmila/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// TargetResult describes a target that was written.
type TargetResult struct {
	Name       string
	SourceSize int
	OutputSize int
	GzipSize   int
}

// TargetFailure describes a target that could not be produced.
type TargetFailure struct {
	Name string
	Err  error
}

// Summary is the outcome of one finalize pass. Results and Failures are in
// declaration order.
type Summary struct {
	RunID    string
	Total    int
	Results  []TargetResult
	Failures []TargetFailure
	Elapsed  time.Duration
}

// Rows converts the results for the report formatter.
func (s Summary) Rows() []report.Row {
	rows := make([]report.Row, 0, len(s.Results))
	for _, r := range s.Results {
		rows = append(rows, report.Row{
			Name:       r.Name,
			SourceSize: r.SourceSize,
			OutputSize: r.OutputSize,
			GzipSize:   r.GzipSize,
		})
	}
	return rows
}

// Processor produces the targets of one configuration.
type Processor struct {
	cfg      options.Config
	fs       FS
	minifier minifier.Minifier
	printer  *report.Printer
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
}

// Option configures a Processor.
type Option func(*Processor)

// WithFS replaces the operating system filesystem.
func WithFS(fs FS) Option {
	return func(p *Processor) { p.fs = fs }
}

// WithMinifier replaces the minifier built from the configured options.
func WithMinifier(m minifier.Minifier) Option {
	return func(p *Processor) { p.minifier = m }
}

// WithPrinter sets where progress and the report are written.
func WithPrinter(printer *report.Printer) Option {
	return func(p *Processor) { p.printer = printer }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// New creates a Processor for cfg. By default it uses the host filesystem, a
// tdewolff minifier configured from cfg.MinifyOptions and prints to stdout.
func New(cfg options.Config, opts ...Option) *Processor {
	p := &Processor{
		cfg:    cfg,
		fs:     OSFS{},
		logger: log.Logger,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.minifier == nil {
		p.minifier = minifier.New(cfg.MinifyOptions)
	}
	if p.printer == nil {
		p.printer = report.NewPrinter(os.Stdout)
	}
	if p.metrics == nil {
		p.metrics = telemetry.NewMetrics()
	}
	p.tracer = telemetry.Tracer()

	return p
}

// Validate checks the preconditions of a finalize pass.
func Validate(cfg options.Config) error {
	if cfg.OutDir != options.NormalizeOutDir(cfg.OutDir) {
		return fmt.Errorf("%w: outDir %q must be empty or a relative path ending in a single %q", ErrInvalidConfig, cfg.OutDir, options.Separator)
	}

	if len(cfg.Targets) == 0 {
		return fmt.Errorf("%w: no targets declared", ErrInvalidConfig)
	}

	for _, t := range cfg.Targets {
		if t.Dest == "" {
			return fmt.Errorf("%w: target with an empty destination", ErrInvalidConfig)
		}
		if _, ok := t.Source(); !ok {
			return fmt.Errorf("%w: target %q source must be a string, got %T", ErrInvalidConfig, t.Dest, t.Src)
		}
	}

	return nil
}

type outcome struct {
	result TargetResult
	err    error
}

// Process runs one finalize pass against buildRoot. A configuration error is
// returned before anything is written; failures of individual targets are
// logged and collected in the Summary instead.
func (p *Processor) Process(ctx context.Context, buildRoot string) (Summary, error) {
	started := time.Now()

	summary := Summary{
		RunID: uuid.NewString(),
		Total: len(p.cfg.Targets),
	}
	logger := p.logger.With().Str("run_id", summary.RunID).Logger()

	ctx, span := p.tracer.Start(ctx, "htmlmila.process", trace.WithAttributes(
		attribute.String("run_id", summary.RunID),
		attribute.Int("targets", summary.Total),
	))
	defer span.End()

	if err := Validate(p.cfg); err != nil {
		logger.Error().Err(err).Msg("Skipping html-mila targets")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return summary, err
	}

	if p.cfg.Verbose {
		p.printer.Start()
	}

	outcomes := make([]outcome, len(p.cfg.Targets))

	var g errgroup.Group
	g.SetLimit(max(1, p.cfg.Concurrency))
	for i, t := range p.cfg.Targets {
		g.Go(func() error {
			outcomes[i] = p.run(ctx, logger, buildRoot, t)
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		if o.err != nil {
			summary.Failures = append(summary.Failures, TargetFailure{Name: p.cfg.Targets[i].Dest, Err: o.err})
			continue
		}
		summary.Results = append(summary.Results, o.result)
	}

	summary.Elapsed = time.Since(started)

	p.printer.Count(len(summary.Results), summary.Total)
	if p.cfg.Verbose {
		p.printer.Report(p.cfg.OutDir, summary.Rows())
		p.printer.Elapsed(summary.Elapsed)
	}

	logger.Debug().
		Int("transformed", len(summary.Results)).
		Int("failed", len(summary.Failures)).
		Dur("duration", summary.Elapsed).
		Msg("html-mila targets processed")

	return summary, nil
}

func (p *Processor) run(ctx context.Context, logger zerolog.Logger, buildRoot string, t options.Target) outcome {
	if p.cfg.Verbose {
		p.printer.Progress(p.cfg.OutDir, t.Dest)
	}

	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "htmlmila.target", trace.WithAttributes(attribute.String("target", t.Dest)))
	defer span.End()

	res, err := p.processWithTimeout(ctx, buildRoot, t)
	p.metrics.TargetDuration.Record(ctx, float64(time.Since(started))/float64(time.Millisecond))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.TargetsFailed.Add(ctx, 1)

		logger.Error().Err(err).Str("target", t.Dest).Msg("Failed to transform target")
		if p.cfg.Verbose {
			p.printer.Fail(p.cfg.OutDir, t.Dest, err)
		}
		return outcome{err: err}
	}

	p.metrics.TargetsProcessed.Add(ctx, 1)
	p.metrics.BytesSaved.Add(ctx, int64(max(0, res.SourceSize-res.OutputSize)))

	return outcome{result: res}
}

// processWithTimeout bounds processTarget by cfg.FileTimeout. A target that
// times out may still finish writing in the background.
func (p *Processor) processWithTimeout(ctx context.Context, buildRoot string, t options.Target) (TargetResult, error) {
	if err := ctx.Err(); err != nil {
		return TargetResult{}, err
	}

	if p.cfg.FileTimeout <= 0 {
		return p.processTarget(buildRoot, t)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.FileTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		res, err := p.processTarget(buildRoot, t)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return TargetResult{}, fmt.Errorf("%w after %s", ErrTargetTimeout, p.cfg.FileTimeout)
		}
		return TargetResult{}, ctx.Err()
	}
}

func (p *Processor) processTarget(buildRoot string, t options.Target) (TargetResult, error) {
	srcPath, _ := t.Source()

	src, err := filepath.Abs(srcPath)
	if err != nil {
		return TargetResult{}, fmt.Errorf("failed to resolve source: %w", err)
	}

	dest := filepath.Join(buildRoot, filepath.FromSlash(p.cfg.OutDir), filepath.FromSlash(t.Dest))

	if err := p.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return TargetResult{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := p.fs.ReadFile(src)
	if err != nil {
		return TargetResult{}, fmt.Errorf("failed to read source: %w", err)
	}

	out, err := p.render(string(data))
	if err != nil {
		return TargetResult{}, fmt.Errorf("failed to minify: %w", err)
	}

	gz, err := gzipSize(out)
	if err != nil {
		return TargetResult{}, fmt.Errorf("failed to measure gzip size: %w", err)
	}

	if err := p.fs.WriteFile(dest, []byte(out), 0o644); err != nil {
		return TargetResult{}, fmt.Errorf("failed to write output: %w", err)
	}

	return TargetResult{
		Name:       t.Dest,
		SourceSize: len(data),
		OutputSize: len(out),
		GzipSize:   gz,
	}, nil
}

func (p *Processor) render(text string) (string, error) {
	switch {
	case p.cfg.Minify:
		return p.minifier.Minify(text)
	case p.cfg.CopyRaw:
		return text, nil
	default:
		return "", nil
	}
}

type countingWriter struct {
	n int
}

func (c *countingWriter) Write(b []byte) (int, error) {
	c.n += len(b)
	return len(b), nil
}

func gzipSize(s string) (int, error) {
	var cw countingWriter

	zw, err := gzip.NewWriterLevel(&cw, gzip.BestCompression)
	if err != nil {
		return 0, err
	}
	if _, err := zw.Write([]byte(s)); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}

	return cw.n, nil
}
