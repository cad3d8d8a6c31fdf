package render

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atessari/diaforge/pkg/schema"
)

const (
	defaultRenderTimeout = 30 * time.Second
	defaultMaxOutputSize = 1 * 1024 * 1024 // 1MB of captured diagnostics
)

// PlantUMLConfig configures the external PlantUML invocation.
type PlantUMLConfig struct {
	JarPath       string
	JavaBin       string
	OutputDir     string
	Timeout       time.Duration
	MaxOutputSize int64
}

// PlantUMLRenderer renders diagram source by invoking a local plantuml.jar.
// Each invocation is independent; the renderer holds no per-call state and
// is safe for concurrent use.
type PlantUMLRenderer struct {
	cfg PlantUMLConfig
}

// NewPlantUMLRenderer creates a renderer with defaults applied.
func NewPlantUMLRenderer(cfg PlantUMLConfig) *PlantUMLRenderer {
	if cfg.JavaBin == "" {
		cfg.JavaBin = "java"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRenderTimeout
	}
	if cfg.MaxOutputSize <= 0 {
		cfg.MaxOutputSize = defaultMaxOutputSize
	}
	return &PlantUMLRenderer{cfg: cfg}
}

// Render writes the source to a .puml file and runs PlantUML against it.
// A non-zero exit becomes a failure Result carrying the exit status and the
// verbatim stdout+stderr; PlantUML is never run in a throwing/strict mode
// that would swallow those diagnostics. A missing java binary or jar also
// comes back as a failure Result (classified as non-syntax downstream).
func (r *PlantUMLRenderer) Render(ctx context.Context, source string) (*Result, error) {
	if strings.TrimSpace(source) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "render: empty diagram source")
	}
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeRenderFailed, "render: create output dir: %v", err).WithCause(err)
	}

	base := uuid.New().String()
	pumlPath := filepath.Join(r.cfg.OutputDir, base+".puml")
	if err := os.WriteFile(pumlPath, []byte(source), 0o644); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeRenderFailed, "render: write source: %v", err).WithCause(err)
	}

	execCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, r.cfg.JavaBin,
		"-jar", r.cfg.JarPath, "-tpng", "-charset", "UTF-8",
		"-o", r.cfg.OutputDir, pumlPath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: r.cfg.MaxOutputSize}
	cmd.Stderr = &limitedWriter{w: &stderr, limit: r.cfg.MaxOutputSize}

	runErr := cmd.Run()
	diagnostic := joinStreams(stdout.String(), stderr.String())

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return &Result{ExitStatus: exitErr.ExitCode(), Diagnostic: diagnostic}, nil
		}
		// Not an exit: command never ran (missing binary) or was killed by
		// the timeout context. Surface it as a failure with the cause text so
		// the classifier treats it as non-retryable.
		return &Result{ExitStatus: -1, Diagnostic: joinStreams(diagnostic, runErr.Error())}, nil
	}

	pngPath := filepath.Join(r.cfg.OutputDir, base+".png")
	if _, err := os.Stat(pngPath); err != nil {
		// PlantUML sometimes names output after the diagram instead of the
		// input file; fall back to a glob on the base name.
		matches, _ := filepath.Glob(filepath.Join(r.cfg.OutputDir, base+"*.png"))
		if len(matches) == 0 {
			return &Result{ExitStatus: -1, Diagnostic: joinStreams(diagnostic, "renderer exited 0 but produced no image")}, nil
		}
		pngPath = matches[0]
	}

	return &Result{ImagePath: pngPath}, nil
}

func joinStreams(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, strings.TrimRight(p, "\n"))
		}
	}
	return strings.Join(nonEmpty, "\n")
}

// limitedWriter wraps a writer and silently discards bytes beyond the limit.
// Write always reports the full len(p) consumed to prevent the subprocess
// from blocking on a full pipe.
type limitedWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	total := len(p)
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return total, nil
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	if err != nil {
		return total, err
	}
	return total, nil
}
