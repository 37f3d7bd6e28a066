//go:build e2e

package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Requires a local Chrome/Chromium. Run with: go test -tags e2e ./internal/browser/
func TestSessionAgainstLocalServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<html><body>
<form action="/results" method="get">
<input id="txtControlNo" name="q" type="text"/>
<button id="btnSearch" type="submit">Search</button>
</form></body></html>`)
		case "/results":
			fmt.Fprintf(w, `<html><body><table><tr><td><a href="/detail">%s</a></td></tr></table></body></html>`, r.URL.Query().Get("q"))
		default:
			fmt.Fprint(w, `<html><body><table><tr><td>Business Name</td><td>ACME LLC</td></tr></table></body></html>`)
		}
	}))
	defer srv.Close()

	b, err := New(Config{Headless: true, NoSandbox: true, NavTimeout: 30 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	defer b.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sess, err := b.NewSession(ctx)
	require.NoError(t, err)
	defer sess.Close(ctx)

	t.Run("navigate and inspect", func(t *testing.T) {
		require.NoError(t, sess.Navigate(ctx, srv.URL))
		present, err := sess.Present(ctx, "#txtControlNo")
		require.NoError(t, err)
		assert.True(t, present)

		html, err := sess.HTML(ctx)
		require.NoError(t, err)
		assert.Contains(t, html, "btnSearch")
	})

	t.Run("type click and follow", func(t *testing.T) {
		require.NoError(t, sess.SendKeys(ctx, "#txtControlNo", "K805670"))
		require.NoError(t, sess.Click(ctx, "#btnSearch"))

		loc, err := sess.Location(ctx)
		require.NoError(t, err)
		assert.Contains(t, loc, "/results")
	})

	t.Run("screenshot", func(t *testing.T) {
		png, err := sess.Screenshot(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, png)
	})
}
