// Package browser owns the DevTools browser and mints one session per
// attempt. Sessions are isolated tabs; tearing one down leaks nothing into
// the next.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/registrar-data/entityproc/internal/registry"
)

// Config controls the browser allocator and per-action bounds.
type Config struct {
	// RemoteURL attaches to an already-running browser's DevTools endpoint
	// instead of launching one. Empty means exec a local browser.
	RemoteURL    string
	Headless     bool
	NoSandbox    bool
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	// NavTimeout bounds each navigation, including the initial render wait.
	NavTimeout time.Duration
}

// Browser wraps a chromedp allocator.
type Browser struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New builds the allocator. The browser process itself starts lazily with
// the first session.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = 1920
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = 1080
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		logger.Info("Attaching to remote browser", zap.String("devtools_url", cfg.RemoteURL))
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("enable-automation", false),
			chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		)
		if cfg.NoSandbox {
			opts = append(opts, chromedp.NoSandbox)
		}
		if cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	return &Browser{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// NewSession opens a fresh tab and verifies the target is alive.
func (b *Browser) NewSession(ctx context.Context) (registry.Session, error) {
	taskCtx, taskCancel := chromedp.NewContext(b.allocator)

	s := &session{
		ctx:        taskCtx,
		cancel:     taskCancel,
		navTimeout: b.cfg.NavTimeout,
		logger:     b.logger,
	}
	// An empty Run forces allocation so a dead browser fails here, not in
	// the middle of an attempt.
	if err := s.run(ctx, 0, chromedp.ActionFunc(func(context.Context) error { return nil })); err != nil {
		taskCancel()
		return nil, fmt.Errorf("open browser session: %w", err)
	}
	return s, nil
}

// Close shuts down the allocator and every session minted from it.
func (b *Browser) Close(_ context.Context) error {
	b.allocCancel()
	return nil
}

var _ registry.Browser = (*Browser)(nil)
