package assets

type Config struct {
	// Explicit entry points, takes precedence over EntryPointGlob
	EntryPoints []string
	// Entry point glob pattern (e.g., "src/*.js"), relative to AbsWorkingDir
	EntryPointGlob string
	// Output directory for built files
	OutputDir string
	// Working directory of the build, also the build root targets are written below
	AbsWorkingDir string
	// Path to metafile, empty disables it
	MetafilePath string
	// Whether to minify the bundle
	Minify bool
	// Whether to enable source maps
	SourceMap bool
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		EntryPointGlob: "src/*.js",
		OutputDir:      "dist",
		MetafilePath:   "dist/meta.json",
		Minify:         true,
		SourceMap:      true,
	}
}
