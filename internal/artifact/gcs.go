package artifact

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCSConfig configures the bucket provider.
type GCSConfig struct {
	Bucket string
	// Prefix is prepended to every object path, e.g. "entityproc".
	Prefix string
}

// GCS uploads artifacts to a Google Cloud Storage bucket. Authentication
// rides on Application Default Credentials.
type GCS struct {
	client *storage.Client
	cfg    GCSConfig
	logger *zap.Logger
}

// NewGCS creates the client and verifies bucket access so a wrong bucket
// name fails at startup rather than at the first failure capture.
func NewGCS(ctx context.Context, cfg GCSConfig, logger *zap.Logger) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("Failed to close GCS client after attrs check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check gcs bucket %q: %w", cfg.Bucket, err)
	}
	return &GCS{client: client, cfg: cfg, logger: logger}, nil
}

// Save uploads one artifact and returns its gs:// URI.
func (g *GCS) Save(ctx context.Context, name string, data []byte) (string, error) {
	if name == "" {
		return "", fmt.Errorf("artifact name is required")
	}
	object := name
	if g.cfg.Prefix != "" {
		object = g.cfg.Prefix + "/" + name
	}

	w := g.client.Bucket(g.cfg.Bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentTypeFor(name)
	if _, err := w.Write(data); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			g.logger.Warn("Failed to close GCS writer after write failure", zap.Error(closeErr))
		}
		return "", fmt.Errorf("write gcs object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize gcs object %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", g.cfg.Bucket, object), nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func contentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".png"):
		return "image/png"
	case strings.HasSuffix(name, ".html"):
		return "text/html; charset=utf-8"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

var _ Store = (*GCS)(nil)
