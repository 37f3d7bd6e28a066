package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/registrar-data/entityproc/internal/hash/sha256"
)

// LocalConfig configures the filesystem provider.
type LocalConfig struct {
	// Dir is the root every artifact lands under.
	Dir string
}

// indexEntry records one saved artifact in the run's index.json, so a
// collected diagnostics bundle can be verified against what the run wrote.
type indexEntry struct {
	Name   string `json:"name"`
	Bytes  int    `json:"bytes"`
	SHA256 string `json:"sha256"`
}

// Local writes artifacts under a root directory and maintains a per-run
// index.json next to them.
type Local struct {
	root   string
	hasher *sha256.Hasher
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string][]indexEntry // run dir -> entries
}

// NewLocal validates the root directory up front so a misconfigured sink
// fails at startup, not at the first failure capture.
func NewLocal(cfg LocalConfig, logger *zap.Logger) (*Local, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir %s: %w", cfg.Dir, err)
	}
	probe := filepath.Join(cfg.Dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("artifact dir %s is not writable: %w", cfg.Dir, err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up writability probe: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		root:    cfg.Dir,
		hasher:  sha256.New(),
		logger:  logger,
		entries: make(map[string][]indexEntry),
	}, nil
}

// Save writes one artifact and refreshes the run's index.
func (l *Local) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context finished before save: %w", err)
	}
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("artifact name is required")
	}

	target := filepath.Join(l.root, filepath.FromSlash(name))
	cleanRoot := filepath.Clean(l.root)
	cleanTarget := filepath.Clean(target)
	if !strings.HasPrefix(cleanTarget, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact name %q escapes the artifact root", name)
	}

	if err := os.MkdirAll(filepath.Dir(cleanTarget), 0o750); err != nil {
		return "", fmt.Errorf("create artifact parent dir: %w", err)
	}
	if err := os.WriteFile(cleanTarget, data, 0o600); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", cleanTarget, err)
	}

	if err := l.indexArtifact(cleanTarget, name, data); err != nil {
		// The artifact itself landed; a broken index is worth a warning,
		// not a failed capture.
		l.logger.Warn("Artifact index update failed",
			zap.String("artifact", name), zap.Error(err))
	}

	l.logger.Debug("Artifact saved",
		zap.String("artifact", name), zap.Int("bytes", len(data)))
	return cleanTarget, nil
}

func (l *Local) indexArtifact(target, name string, data []byte) error {
	digest, err := l.hasher.Hash(data)
	if err != nil {
		return fmt.Errorf("hash artifact: %w", err)
	}

	runDir := filepath.Dir(target)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[runDir] = append(l.entries[runDir], indexEntry{
		Name:   name,
		Bytes:  len(data),
		SHA256: digest,
	})
	entries := append([]indexEntry(nil), l.entries[runDir]...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	indexPath := filepath.Join(runDir, "index.json")
	if err := os.WriteFile(indexPath, append(payload, '\n'), 0o600); err != nil {
		return fmt.Errorf("write index %s: %w", indexPath, err)
	}
	return nil
}

var _ Store = (*Local)(nil)
