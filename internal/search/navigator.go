// Package search drives the portal's search form from a challenge-cleared
// session to the single matching detail page.
package search

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/registrar-data/entityproc/internal/registry"
)

// Config holds the selectors and bounds for one search interaction.
type Config struct {
	BaseURL             string
	InputSelector       string
	ButtonSelector      string
	ResultLinkSelector  string
	NoResultsText       string
	DetailReadySelector string
	// ResultTimeout bounds the wait for the results grid to reach a terminal
	// state after submitting the form.
	ResultTimeout time.Duration
	PollInterval  time.Duration
}

// Navigator submits a control number and lands the session on the record's
// detail page. The results grid fills in asynchronously, so the match count
// is only judged once the page shows a terminal signal: result links or the
// explicit no-results marker. A count taken before either signal would be a
// premature read of a half-rendered page.
type Navigator struct {
	cfg    Config
	gate   registry.ChallengeGate
	logger *zap.Logger
}

// New constructs a Navigator. The gate is re-run on the detail page because
// the challenge may interpose again on any navigation.
func New(cfg Config, gate registry.ChallengeGate, logger *zap.Logger) (*Navigator, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.InputSelector == "" || cfg.ButtonSelector == "" || cfg.ResultLinkSelector == "" {
		return nil, fmt.Errorf("search selectors are required")
	}
	if cfg.DetailReadySelector == "" {
		return nil, fmt.Errorf("detail ready selector is required")
	}
	if cfg.ResultTimeout <= 0 || cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("result timeout and poll interval must be > 0")
	}
	if gate == nil {
		return nil, fmt.Errorf("challenge gate is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{cfg: cfg, gate: gate, logger: logger}, nil
}

// Search types the control number, submits, waits for a terminal results
// signal, and navigates to the single match. Zero matches and ambiguous
// multi-match both return ErrNoResults; this tool contracts to retrieve
// exactly one identified record.
func (n *Navigator) Search(ctx context.Context, sess registry.Session, controlNumber string) error {
	controlNumber = strings.TrimSpace(controlNumber)
	if controlNumber == "" {
		return fmt.Errorf("control number is required")
	}

	if err := sess.SendKeys(ctx, n.cfg.InputSelector, controlNumber); err != nil {
		return fmt.Errorf("fill search form: %w", err)
	}
	if err := sess.Click(ctx, n.cfg.ButtonSelector); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}

	href, err := n.awaitResults(ctx, sess, controlNumber)
	if err != nil {
		return err
	}

	detailURL, err := n.resolve(href)
	if err != nil {
		return fmt.Errorf("resolve result link %q: %w", href, err)
	}

	n.logger.Info("Single match found",
		zap.String("control_number", controlNumber),
		zap.String("detail_url", detailURL))

	if err := sess.Navigate(ctx, detailURL); err != nil {
		return fmt.Errorf("open detail page: %w", err)
	}
	if err := n.gate.Await(ctx, sess, n.cfg.DetailReadySelector); err != nil {
		return fmt.Errorf("detail page readiness: %w", err)
	}
	return nil
}

// awaitResults polls for the terminal results signal and returns the single
// match's href.
func (n *Navigator) awaitResults(ctx context.Context, sess registry.Session, controlNumber string) (string, error) {
	pollCtx, cancel := context.WithTimeout(ctx, n.cfg.ResultTimeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(n.cfg.PollInterval), 1)
	for {
		html, err := sess.HTML(pollCtx)
		if err != nil {
			return "", n.expiryOr(ctx, pollCtx, fmt.Errorf("read results page: %w", err))
		}

		hrefs, noResults, err := n.judge(html)
		if err != nil {
			return "", err
		}
		switch {
		case noResults:
			return "", fmt.Errorf("control number %s: %w", controlNumber, registry.ErrNoResults)
		case len(hrefs) == 1:
			return hrefs[0], nil
		case len(hrefs) > 1:
			n.logger.Warn("Ambiguous result grid",
				zap.String("control_number", controlNumber),
				zap.Int("matches", len(hrefs)))
			return "", fmt.Errorf("control number %s matched %d records: %w",
				controlNumber, len(hrefs), registry.ErrNoResults)
		}

		if err := limiter.Wait(pollCtx); err != nil {
			return "", n.expiryOr(ctx, pollCtx, err)
		}
	}
}

// judge inspects one snapshot for a terminal signal. It returns the distinct
// result hrefs, or noResults when the explicit marker is present.
func (n *Navigator) judge(html string) ([]string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		return nil, false, fmt.Errorf("parse results page: %w", err)
	}

	if n.cfg.NoResultsText != "" &&
		strings.Contains(strings.ToLower(html), strings.ToLower(n.cfg.NoResultsText)) {
		return nil, true, nil
	}

	seen := make(map[string]struct{})
	var hrefs []string
	doc.Find(n.cfg.ResultLinkSelector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || strings.HasPrefix(href, "javascript:") {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		hrefs = append(hrefs, href)
	})
	return hrefs, false, nil
}

func (n *Navigator) resolve(href string) (string, error) {
	base, err := url.Parse(n.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// expiryOr maps the poll's own deadline to a render-stall error while the
// caller's cancellation passes through untouched.
func (n *Navigator) expiryOr(parent, pollCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if pollCtx.Err() != nil {
		return fmt.Errorf("results page never reached a terminal state within %s", n.cfg.ResultTimeout)
	}
	return err
}

var _ registry.Navigator = (*Navigator)(nil)
