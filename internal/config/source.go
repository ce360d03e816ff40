package config

import (
	"context"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/yamadera/torii/internal/engine"
	"github.com/yamadera/torii/internal/srs"
)

// configRoot is the optional top-level struct configuration may nest
// under, so a config file can share a CUE package with other data.
const configRoot = "gating"

var _ engine.ConfigSource = (*FileSource)(nil)

// FileSource loads gating configuration from a CUE file. It re-reads
// the file on every call, which is what the engine's per-pass config
// contract wants: edits take effect on the next pass, no restart.
type FileSource struct {
	Path string
}

// NewFileSource returns a source reading from path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// GatingConfig implements engine.ConfigSource: read, compile, validate.
func (s *FileSource) GatingConfig(ctx context.Context) (*srs.Config, error) {
	src, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}
	return cfg, nil
}

// CompileSource compiles CUE source text without validating it.
// The configuration may sit at the top level or nest under "gating".
func CompileSource(source string) (*srs.Config, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(source)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if gv := v.LookupPath(cue.ParsePath(configRoot)); gv.Exists() {
		v = gv
	}
	return Compile(v)
}

// Parse compiles and validates CUE source text. Validation failures
// come back as a single ValidationErrors value holding every violation.
func Parse(source string) (*srs.Config, error) {
	cfg, err := CompileSource(source)
	if err != nil {
		return nil, err
	}
	if errs := Validate(cfg); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return cfg, nil
}
