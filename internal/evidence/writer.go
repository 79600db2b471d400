// Package evidence writes evidence kits: pretty-printed report files kept for later review.
package evidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"cloneguard-lab/pkg/logger"
)

const unknownPackage = "unknown"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Kit describes a written evidence file
type Kit struct {
	File string `json:"file"`
	Path string `json:"path"`
}

// Writer stores evidence kits under a directory
type Writer struct {
	dir    string
	now    func() time.Time
	logger *logger.Logger
}

// NewWriter creates a writer rooted at dir
func NewWriter(dir string, log *logger.Logger) *Writer {
	return &Writer{
		dir:    dir,
		now:    time.Now,
		logger: log.WithComponent("evidence"),
	}
}

// Write stores report as evidence_<package>_<yyyymmdd_hhmmss>.json.
// The package is read from the report's "package" field.
func (w *Writer) Write(report map[string]any) (*Kit, error) {
	if report == nil {
		return nil, errors.New("empty report")
	}

	pkg, _ := report["package"].(string)
	name := fmt.Sprintf("evidence_%s_%s.json", safePackage(pkg), w.now().UTC().Format("20060102_150405"))

	data, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create evidence dir: %w", err)
	}

	path := filepath.Join(w.dir, name)
	tmp, err := os.CreateTemp(w.dir, ".evidence-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create evidence file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write evidence file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write evidence file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("failed to finalize evidence file: %w", err)
	}

	w.logger.Info().Str("file", name).Str("package", pkg).Msg("evidence kit written")

	return &Kit{File: name, Path: path}, nil
}

func safePackage(pkg string) string {
	s := unsafeName.ReplaceAllString(pkg, "_")
	if s == "" || s == "." || s == ".." {
		return unknownPackage
	}
	return s
}
