package export

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gofrs/flock"

	"github.com/roach88/rtigen/internal/emitter"
	"github.com/roach88/rtigen/internal/ir"
)

//go:embed templates
var templateFS embed.FS

// LockName is the advisory lock file created in the output directory.
const LockName = ".rtigen.lock"

// shimConstraints pins the interface shim versions each template must
// satisfy. The generated solver call depends on the shim's argument order.
var shimConstraints = map[string]string{
	"hpmpc_interface.c.tmpl": "^1.0.0",
}

var shimVersionRe = regexp.MustCompile(`shim-version:\s*(\S+)`)

// File is one written file.
type File struct {
	Path string `json:"path"` // relative to the output directory
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// Manifest lists what one export wrote.
type Manifest struct {
	Dir         string `json:"dir"`
	ProgramHash string `json:"program_hash"`
	Files       []File `json:"files"`
}

// Exporter writes emitted programs into one directory.
type Exporter struct {
	dir        string
	prefix     string
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithPrefix sets the symbol prefix substituted into shim templates.
func WithPrefix(prefix string) Option {
	return func(x *Exporter) {
		x.prefix = prefix
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(x *Exporter) {
		x.logger = logger
	}
}

// WithRetryDelay sets how often a busy lock is retried.
func WithRetryDelay(d time.Duration) Option {
	return func(x *Exporter) {
		x.retryDelay = d
	}
}

// New creates an Exporter for dir.
func New(dir string, opts ...Option) *Exporter {
	x := &Exporter{
		dir:        dir,
		prefix:     emitter.DefaultPrefix,
		retryDelay: 50 * time.Millisecond,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// ProgramHash is the content hash of an emitted program.
func ProgramHash(out *emitter.Output) string {
	return ir.SourceHash(out.Header, out.Source)
}

// Write writes the header, the source and every requested asset. It
// blocks until the directory lock is free or ctx is done.
func (x *Exporter) Write(ctx context.Context, out *emitter.Output, assets []ir.Asset) (*Manifest, error) {
	if out == nil {
		return nil, fmt.Errorf("export: nil output")
	}
	// Render shims first: a version mismatch must not leave a half-written directory.
	files := []struct {
		path string
		data []byte
	}{
		{out.HeaderName, out.Header},
		{out.SourceName, out.Source},
	}
	for _, a := range assets {
		data, err := x.renderShim(a.Template)
		if err != nil {
			return nil, err
		}
		files = append(files, struct {
			path string
			data []byte
		}{a.Path, data})
	}

	if err := os.MkdirAll(x.dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	lock := flock.New(filepath.Join(x.dir, LockName))
	locked, err := lock.TryLockContext(ctx, x.retryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquire output lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("acquire output lock: %s is busy", x.dir)
	}
	defer lock.Unlock()

	m := &Manifest{Dir: x.dir, ProgramHash: ProgramHash(out)}
	for _, f := range files {
		if err := writeFile(filepath.Join(x.dir, f.path), f.data); err != nil {
			return nil, err
		}
		m.Files = append(m.Files, File{Path: f.path, Hash: ir.SourceHash(f.data), Size: int64(len(f.data))})
		x.logger.Debug("wrote file", "path", f.path, "bytes", len(f.data))
	}
	x.logger.Info("export complete", "dir", x.dir, "files", len(m.Files))
	return m, nil
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// renderShim checks the template's shim version and expands it.
func (x *Exporter) renderShim(name string) ([]byte, error) {
	src, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("unknown interface template %q: %w", name, err)
	}
	if err := checkShimVersion(name, string(src)); err != nil {
		return nil, err
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	data := map[string]string{
		"Prefix": x.prefix,
		"Upper":  strings.ToUpper(x.prefix),
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// ShimVersionError reports a template whose shim version falls outside
// the supported range.
type ShimVersionError struct {
	Template   string
	Version    string
	Constraint string
}

func (e *ShimVersionError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("template %s: missing shim-version header", e.Template)
	}
	return fmt.Sprintf("template %s: shim version %s does not satisfy %s", e.Template, e.Version, e.Constraint)
}

func checkShimVersion(name, src string) error {
	expr, ok := shimConstraints[name]
	if !ok {
		return nil
	}
	c, err := semver.NewConstraint(expr)
	if err != nil {
		return fmt.Errorf("shim constraint for %s: %w", name, err)
	}
	match := shimVersionRe.FindStringSubmatch(src)
	if match == nil {
		return &ShimVersionError{Template: name, Constraint: expr}
	}
	v, err := semver.NewVersion(match[1])
	if err != nil || !c.Check(v) {
		return &ShimVersionError{Template: name, Version: match[1], Constraint: expr}
	}
	return nil
}
