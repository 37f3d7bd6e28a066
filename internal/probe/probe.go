// Package probe takes one cheap HTTP look at the portal before a browser
// attempt is paid for. A dead portal fails fast here; a challenge verdict is
// expected and simply confirms the browser is needed.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/registrar-data/entityproc/internal/challenge"
	"github.com/registrar-data/entityproc/internal/registry"
)

// Config controls the preflight request.
type Config struct {
	// URL is the portal search entry point.
	URL string
	// UserAgent is sent on the probe request; it should match the browser's.
	UserAgent string
	// Timeout bounds the whole request.
	Timeout time.Duration
	// FormSelector is the element that proves the search page arrived clean.
	FormSelector string
}

// Probe fetches the search URL once over plain HTTP. Its transport carries
// browser-shaped headers so the portal's edge does not hand out challenge
// verdicts merely for looking like a script.
type Probe struct {
	cfg       Config
	collector *colly.Collector
	detector  *challenge.Detector
	logger    *zap.Logger
}

// New constructs a Probe.
func New(cfg Config, detector *challenge.Detector, logger *zap.Logger) (*Probe, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("probe url is required")
	}
	if cfg.FormSelector == "" {
		return nil, fmt.Errorf("probe form selector is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []colly.CollectorOption{
		colly.UserAgent(cfg.UserAgent),
		// The portal's robots policy has no bearing on a diagnostic probe of
		// a page the browser is about to load anyway.
		colly.IgnoreRobotsTxt(),
	}
	base := colly.NewCollector(opts...)
	base.AllowURLRevisit = true
	base.WithTransport(cloudflarebp.AddCloudFlareByPass(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          4,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	}))
	base.SetRequestTimeout(cfg.Timeout)

	return &Probe{
		cfg:       cfg,
		collector: base,
		detector:  detector,
		logger:    logger,
	}, nil
}

// Check issues the probe request and classifies the answer. The error path
// covers transport failures and server errors without challenge fingerprints;
// a challenge verdict is reported in the ProbeVerdict, not as an error.
func (p *Probe) Check(ctx context.Context) (registry.ProbeVerdict, error) {
	start := time.Now()
	resp, err := p.fetch(ctx)
	if err != nil {
		return registry.ProbeVerdict{}, fmt.Errorf("probe %s: %w", p.cfg.URL, err)
	}

	verdict := registry.ProbeVerdict{
		StatusCode: resp.status,
		FinalURL:   resp.finalURL,
		Duration:   time.Since(start),
	}

	challenged, marker := p.detector.ChallengedResponse(resp.status, resp.header, resp.body)
	if challenged {
		verdict.Challenge = true
		verdict.Marker = marker
		p.logger.Info("Probe hit the challenge wall as expected",
			zap.Int("status", resp.status),
			zap.String("marker", marker))
		return verdict, nil
	}

	if resp.status >= http.StatusInternalServerError {
		return verdict, fmt.Errorf("portal answered %d without a challenge", resp.status)
	}
	if !selectorInBody(resp.body, p.cfg.FormSelector) {
		// Not a challenge, not the search form: some other page is being
		// served. The browser attempt still proceeds; the gate will judge it.
		p.logger.Warn("Probe response lacks the search form",
			zap.Int("status", resp.status),
			zap.String("form_selector", p.cfg.FormSelector))
		return verdict, nil
	}

	p.logger.Info("Probe reached the search form without a challenge",
		zap.Int("status", resp.status),
		zap.Duration("dur", verdict.Duration))
	return verdict, nil
}

type probeResponse struct {
	status   int
	finalURL string
	header   http.Header
	body     []byte
}

func (p *Probe) fetch(ctx context.Context) (probeResponse, error) {
	collector := p.collector.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() { resultCh <- res })
	}

	collector.OnResponse(func(r *colly.Response) {
		header := http.Header{}
		if r.Headers != nil {
			for k, v := range *r.Headers {
				cp := make([]string, len(v))
				copy(cp, v)
				header[k] = cp
			}
		}
		send(fetchResult{resp: probeResponse{
			status:   r.StatusCode,
			finalURL: r.Request.URL.String(),
			header:   header,
			body:     append([]byte{}, r.Body...),
		}})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown transport error")
		}
		// Challenge interstitials arrive as 403/503, which colly surfaces
		// through OnError; keep the response so the detector can classify it.
		if r != nil && r.StatusCode != 0 {
			header := http.Header{}
			if r.Headers != nil {
				for k, v := range *r.Headers {
					cp := make([]string, len(v))
					copy(cp, v)
					header[k] = cp
				}
			}
			send(fetchResult{resp: probeResponse{
				status:   r.StatusCode,
				finalURL: r.Request.URL.String(),
				header:   header,
				body:     append([]byte{}, r.Body...),
			}})
			return
		}
		send(fetchResult{err: err})
	})

	if err := collector.Visit(p.cfg.URL); err != nil {
		return probeResponse{}, err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return probeResponse{}, err
		}
		return res.resp, res.err
	default:
		return probeResponse{}, errors.New("probe produced no result")
	}
}

type fetchResult struct {
	resp probeResponse
	err  error
}

func selectorInBody(body []byte, selector string) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}
