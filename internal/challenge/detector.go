// Package challenge recognizes and clears the portal's anti-bot gate.
package challenge

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Default body markers of an interstitial challenge page. Matching is
// case-insensitive substring search.
var defaultMarkers = []string{
	"checking your browser",
	"cf-browser-verification",
	"cf-challenge",
	"just a moment",
	"turnstile",
	"verify you are human",
	"captcha",
}

// DetectorConfig tunes the challenge heuristics.
type DetectorConfig struct {
	// MinHTMLBytes treats smaller bodies that also lack the expected content
	// selector as a JS challenge shell. Zero disables the size floor.
	MinHTMLBytes int
	// Markers overrides the default body marker list when non-empty.
	Markers []string
}

// Detector classifies pages and HTTP responses as challenge interstitials.
// It is heuristic on purpose: the gate never needs to know which vendor the
// portal fronts with, only whether real content has arrived yet.
type Detector struct {
	minHTMLBytes int
	markers      [][]byte
}

// NewDetector constructs a Detector with the configured thresholds.
func NewDetector(cfg DetectorConfig) *Detector {
	markers := cfg.Markers
	if len(markers) == 0 {
		markers = defaultMarkers
	}
	lowered := make([][]byte, 0, len(markers))
	for _, m := range markers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(m)))
	}
	return &Detector{
		minHTMLBytes: cfg.MinHTMLBytes,
		markers:      lowered,
	}
}

// ChallengedResponse inspects a raw HTTP response for challenge signals:
// a 403/503 carrying Cloudflare headers, or challenge markers in the body.
// The returned string names the first signal that fired.
func (d *Detector) ChallengedResponse(statusCode int, header http.Header, body []byte) (bool, string) {
	if statusCode == http.StatusForbidden || statusCode == http.StatusServiceUnavailable {
		switch {
		case header.Get("cf-ray") != "":
			return true, "cf-ray header"
		case header.Get("cf-cache-status") != "":
			return true, "cf-cache-status header"
		case strings.EqualFold(header.Get("server"), "cloudflare"):
			return true, "cloudflare server header"
		}
	}
	if marker := d.bodyMarker(body); marker != "" {
		return true, marker
	}
	return false, ""
}

// ChallengedHTML inspects a rendered DOM snapshot. contentSelector is the
// element that proves real content arrived; a small body missing it counts
// as a challenge shell even without a marker.
func (d *Detector) ChallengedHTML(html string, contentSelector string) (bool, string) {
	body := []byte(html)
	if marker := d.bodyMarker(body); marker != "" {
		return true, marker
	}
	if d.minHTMLBytes > 0 && len(body) < d.minHTMLBytes && !selectorPresent(body, contentSelector) {
		return true, "undersized shell body"
	}
	return false, ""
}

func (d *Detector) bodyMarker(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	lower := bytes.ToLower(body)
	for _, m := range d.markers {
		if bytes.Contains(lower, m) {
			return string(m)
		}
	}
	return ""
}

func selectorPresent(body []byte, selector string) bool {
	if selector == "" {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}
