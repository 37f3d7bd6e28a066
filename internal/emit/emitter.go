// Package emit writes the run's single output document. The document is
// built fully in memory and committed with a rename, so a crash mid-write
// can never leave a half-written artifact behind.
package emit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/registrar-data/entityproc/internal/registry"
)

// Emitter serializes the outcome of one run.
type Emitter struct {
	outputDir string
	logger    *zap.Logger
}

// New validates the output directory and returns an Emitter.
func New(outputDir string, logger *zap.Logger) (*Emitter, error) {
	if outputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", outputDir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{outputDir: outputDir, logger: logger}, nil
}

// Emit writes exactly one document for the run: the record document when the
// outcome succeeded, the failure document otherwise. It returns the final
// path of the artifact.
func (e *Emitter) Emit(req registry.Request, outcome registry.Outcome) (string, error) {
	var (
		payload any
		kind    string
	)
	if outcome.Succeeded() {
		payload = registry.ResultDocument{
			RequestID:     req.RequestID,
			ControlNumber: req.ControlNumber,
			Attempts:      outcome.Attempts,
			Data:          outcome.Record,
		}
		kind = "record"
	} else {
		diagnostics := outcome.Diagnostics
		if diagnostics == nil {
			diagnostics = []string{}
		}
		payload = registry.FailureDocument{
			RequestID:     req.RequestID,
			ControlNumber: req.ControlNumber,
			Attempts:      outcome.Attempts,
			LastError:     string(outcome.LastKind),
			Diagnostics:   diagnostics,
		}
		kind = "failure"
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s document: %w", kind, err)
	}
	data = append(data, '\n')

	target := filepath.Join(e.outputDir, fmt.Sprintf("processed_data_%s.json", req.RequestID))
	if err := e.commit(target, data); err != nil {
		return "", err
	}

	e.logger.Info("Output document written",
		zap.String("kind", kind),
		zap.String("path", target),
		zap.Int("bytes", len(data)))
	return target, nil
}

// commit writes to a temp file in the target's directory and renames it into
// place. Rename within one directory is atomic on POSIX filesystems; readers
// see either no document or the whole document.
func (e *Emitter) commit(target string, data []byte) error {
	tmp, err := os.CreateTemp(e.outputDir, ".processed_data-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// Best-effort cleanup when the rename never happened.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp output: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp output: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("commit output %s: %w", target, err)
	}
	return nil
}
