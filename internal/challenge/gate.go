package challenge

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/registrar-data/entityproc/internal/registry"
)

// GateConfig bounds one readiness wait.
type GateConfig struct {
	// Timeout is the wall-clock bound per Await call.
	Timeout time.Duration
	// PollInterval paces the readiness checks.
	PollInterval time.Duration
	// ClickX/ClickY locate the challenge widget's checkbox in the viewport.
	// The widget lives in a cross-origin frame, so no selector can reach it;
	// a raw coordinate click is the only nudge available.
	ClickX float64
	ClickY float64
}

// Gate clears the anti-bot interstitial by polling the rendered DOM against
// a readiness predicate with a hard wall-clock bound. It never sleeps a
// fixed aggregate; the challenge decides how long the wait takes, the bound
// decides when to give up.
type Gate struct {
	cfg      GateConfig
	detector *Detector
	logger   *zap.Logger
}

// NewGate builds a Gate. The detector supplies the challenge verdicts.
func NewGate(cfg GateConfig, detector *Detector, logger *zap.Logger) (*Gate, error) {
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("gate timeout must be > 0")
	}
	if cfg.PollInterval <= 0 || cfg.PollInterval >= cfg.Timeout {
		return nil, fmt.Errorf("gate poll interval must be > 0 and shorter than the timeout")
	}
	if detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{cfg: cfg, detector: detector, logger: logger}, nil
}

// Await blocks until the session's current page shows readySelector with no
// challenge markers left, or the bound expires with ErrChallengeTimeout.
// The challenge may re-interpose on any navigation, so Await is callable per
// page with that page's own ready selector.
func (g *Gate) Await(ctx context.Context, sess registry.Session, readySelector string) error {
	if readySelector == "" {
		return fmt.Errorf("ready selector is required")
	}

	start := time.Now()
	gateCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(g.cfg.PollInterval), 1)
	var lastMarker string
	for poll := 0; ; poll++ {
		html, err := sess.HTML(gateCtx)
		if err != nil {
			return g.expiryOr(ctx, gateCtx, fmt.Errorf("read page during challenge wait: %w", err))
		}

		ready, marker := g.judge(html, readySelector)
		if ready {
			g.logger.Info("Challenge gate cleared",
				zap.String("ready_selector", readySelector),
				zap.Int("polls", poll+1),
				zap.Duration("waited", time.Since(start)))
			return nil
		}
		if marker != "" && marker != lastMarker {
			g.logger.Debug("Challenge still interposed", zap.String("marker", marker))
			lastMarker = marker
		}

		// Best-effort nudge at the widget checkbox; some interstitials only
		// proceed after an interaction. Failures here are not terminal, the
		// next poll re-judges the page either way.
		if err := sess.ClickAt(gateCtx, g.cfg.ClickX, g.cfg.ClickY); err != nil {
			g.logger.Debug("Challenge widget click failed", zap.Error(err))
		}

		if err := limiter.Wait(gateCtx); err != nil {
			return g.expiryOr(ctx, gateCtx, err)
		}
	}
}

// judge declares readiness only when the content selector is present and no
// challenge markers remain; either signal alone is not enough.
func (g *Gate) judge(html string, readySelector string) (bool, string) {
	challenged, marker := g.detector.ChallengedHTML(html, readySelector)
	if challenged {
		return false, marker
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		return false, "unparseable document"
	}
	if doc.Find(readySelector).Length() == 0 {
		return false, ""
	}
	return true, ""
}

// expiryOr maps the gate's own deadline to ErrChallengeTimeout while letting
// the caller's cancellation (run budget, shutdown) pass through untouched.
func (g *Gate) expiryOr(parent, gateCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if gateCtx.Err() != nil {
		return fmt.Errorf("%w after %s", registry.ErrChallengeTimeout, g.cfg.Timeout)
	}
	return err
}
