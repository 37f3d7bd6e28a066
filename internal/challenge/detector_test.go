package challenge

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorChallengedResponse(t *testing.T) {
	t.Parallel()

	d := NewDetector(DetectorConfig{MinHTMLBytes: 2048})

	tests := []struct {
		name       string
		status     int
		header     http.Header
		body       string
		challenged bool
	}{
		{
			name:       "forbidden with cf-ray header",
			status:     http.StatusForbidden,
			header:     http.Header{"Cf-Ray": []string{"8f00ba-ATL"}},
			challenged: true,
		},
		{
			name:       "service unavailable from cloudflare",
			status:     http.StatusServiceUnavailable,
			header:     http.Header{"Server": []string{"cloudflare"}},
			challenged: true,
		},
		{
			name:       "ok with interstitial body",
			status:     http.StatusOK,
			header:     http.Header{},
			body:       "<html><body>Just a moment...</body></html>",
			challenged: true,
		},
		{
			name:       "forbidden without cloudflare fingerprints",
			status:     http.StatusForbidden,
			header:     http.Header{"Server": []string{"nginx"}},
			body:       "<html><body>Access denied by policy</body></html>",
			challenged: false,
		},
		{
			name:       "clean search page",
			status:     http.StatusOK,
			header:     http.Header{},
			body:       `<html><body><input id="txtControlNo"/></body></html>`,
			challenged: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, marker := d.ChallengedResponse(tc.status, tc.header, []byte(tc.body))
			assert.Equal(t, tc.challenged, got)
			if tc.challenged {
				assert.NotEmpty(t, marker)
			}
		})
	}
}

func TestDetectorChallengedHTML(t *testing.T) {
	t.Parallel()

	d := NewDetector(DetectorConfig{MinHTMLBytes: 2048})

	t.Run("marker beats size", func(t *testing.T) {
		t.Parallel()
		big := "<html><body>Checking your browser before accessing" + strings.Repeat(" x", 4096) + "</body></html>"
		challenged, marker := d.ChallengedHTML(big, "#txtControlNo")
		require.True(t, challenged)
		assert.Equal(t, "checking your browser", marker)
	})

	t.Run("small shell without content selector", func(t *testing.T) {
		t.Parallel()
		challenged, marker := d.ChallengedHTML("<html><body><script>spin()</script></body></html>", "#txtControlNo")
		require.True(t, challenged)
		assert.Equal(t, "undersized shell body", marker)
	})

	t.Run("small page with content selector is clean", func(t *testing.T) {
		t.Parallel()
		challenged, _ := d.ChallengedHTML(`<html><body><input id="txtControlNo"/></body></html>`, "#txtControlNo")
		assert.False(t, challenged)
	})

	t.Run("large clean page", func(t *testing.T) {
		t.Parallel()
		big := "<html><body><table><tr><td>Business Name</td></tr></table>" + strings.Repeat("<p>row</p>", 512) + "</body></html>"
		challenged, _ := d.ChallengedHTML(big, "table")
		assert.False(t, challenged)
	})

	t.Run("custom markers replace defaults", func(t *testing.T) {
		t.Parallel()
		custom := NewDetector(DetectorConfig{Markers: []string{"portal maintenance wall"}})
		challenged, _ := custom.ChallengedHTML("<html><body>Just a moment...</body></html>", "")
		assert.False(t, challenged)
		challenged, marker := custom.ChallengedHTML("<html><body>PORTAL MAINTENANCE WALL</body></html>", "")
		require.True(t, challenged)
		assert.Equal(t, "portal maintenance wall", marker)
	})
}
