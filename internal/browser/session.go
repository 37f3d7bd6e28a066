package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// session is one DevTools tab implementing registry.Session. All methods
// honor the caller's context for cancellation while running actions on the
// tab's own chromedp context.
type session struct {
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	logger     *zap.Logger
}

// run executes chromedp actions on the tab, bounded by timeout (zero means
// the caller's context alone) and cancelable through the caller's context.
func (s *session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Navigate loads the URL and waits for the document body to exist. Anything
// beyond that (challenge walls, async grids) is judged by the callers that
// own those semantics.
func (s *session) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx, s.navTimeout,
		chromedp.ActionFunc(func(actx context.Context) error {
			if err := network.Enable().Do(actx); err != nil {
				return fmt.Errorf("enable network domain: %w", err)
			}
			return nil
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	s.logger.Debug("Navigation settled", zap.String("url", url))
	return nil
}

// Present reports whether the selector currently matches, without waiting.
func (s *session) Present(ctx context.Context, selector string) (bool, error) {
	var present bool
	expr := fmt.Sprintf("document.querySelector(%q) !== null", selector)
	if err := s.run(ctx, 0, chromedp.Evaluate(expr, &present)); err != nil {
		return false, fmt.Errorf("query %q: %w", selector, err)
	}
	return present, nil
}

// SendKeys focuses the element and types the value.
func (s *session) SendKeys(ctx context.Context, selector string, value string) error {
	err := s.run(ctx, s.navTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("type into %q: %w", selector, err)
	}
	return nil
}

// Click clicks the first visible element matching the selector.
func (s *session) Click(ctx context.Context, selector string) error {
	err := s.run(ctx, s.navTimeout,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
	if err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// ClickAt dispatches a raw mouse click at viewport coordinates. The challenge
// widget renders inside a cross-origin frame no selector can address, so the
// gate aims by geometry.
func (s *session) ClickAt(ctx context.Context, x, y float64) error {
	if err := s.run(ctx, 0, chromedp.MouseClickXY(x, y)); err != nil {
		return fmt.Errorf("click at (%.0f, %.0f): %w", x, y, err)
	}
	return nil
}

// HTML snapshots the full rendered document.
func (s *session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("snapshot dom: %w", err)
	}
	return html, nil
}

// Screenshot captures the full page as PNG.
func (s *session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, 0, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Location returns the tab's current URL.
func (s *session) Location(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, 0, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return u, nil
}

// Close tears the tab down. Safe to call once per session; the orchestrator
// calls it unconditionally at attempt end.
func (s *session) Close(_ context.Context) error {
	s.cancel()
	return nil
}
