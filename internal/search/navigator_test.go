package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/registrar-data/entityproc/internal/registry"
)

const (
	loadingHTML = `<html><body><div id="spinner">Loading...</div></body></html>`
	oneMatchHTML = `<html><body><table id="grid_businessList">
<tr><th>Business Name</th><th>Control Number</th></tr>
<tr><td><a href="/BusinessSearch/BusinessInformation?businessId=2025861">ACME HOLDINGS LLC</a></td><td>K805670</td></tr>
</table></body></html>`
	multiMatchHTML = `<html><body><table id="grid_businessList">
<tr><td><a href="/BusinessSearch/BusinessInformation?businessId=1">ACME ONE</a></td></tr>
<tr><td><a href="/BusinessSearch/BusinessInformation?businessId=2">ACME TWO</a></td></tr>
</table></body></html>`
	noMatchHTML = `<html><body><table id="grid_businessList"><tr><td>No data found</td></tr></table></body></html>`
	detailHTML  = `<html><body><div id="printDiv"><table><tr><td>Business Name</td><td>ACME HOLDINGS LLC</td></tr></table></div></body></html>`
)

// fakeSession scripts the HTML snapshots the poll sees and records the
// interactions the navigator performs.
type fakeSession struct {
	pages     []string
	htmlCall  int
	typed     map[string]string
	clicked   []string
	navigated []string
}

func newFakeSession(pages ...string) *fakeSession {
	return &fakeSession{pages: pages, typed: make(map[string]string)}
}

func (s *fakeSession) HTML(context.Context) (string, error) {
	idx := s.htmlCall
	if idx >= len(s.pages) {
		idx = len(s.pages) - 1
	}
	s.htmlCall++
	return s.pages[idx], nil
}

func (s *fakeSession) SendKeys(_ context.Context, selector, value string) error {
	s.typed[selector] = value
	return nil
}

func (s *fakeSession) Click(_ context.Context, selector string) error {
	s.clicked = append(s.clicked, selector)
	return nil
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.navigated = append(s.navigated, url)
	// Navigation replaces the page the next snapshot sees.
	s.pages = []string{detailHTML}
	s.htmlCall = 0
	return nil
}

func (s *fakeSession) Present(context.Context, string) (bool, error)  { return true, nil }
func (s *fakeSession) ClickAt(context.Context, float64, float64) error { return nil }
func (s *fakeSession) Screenshot(context.Context) ([]byte, error)      { return nil, nil }
func (s *fakeSession) Location(context.Context) (string, error)        { return "", nil }
func (s *fakeSession) Close(context.Context) error                     { return nil }

var _ registry.Session = (*fakeSession)(nil)

// passGate approves every page immediately and counts invocations.
type passGate struct{ calls int }

func (g *passGate) Await(context.Context, registry.Session, string) error {
	g.calls++
	return nil
}

func newTestNavigator(t *testing.T, gate registry.ChallengeGate) *Navigator {
	t.Helper()
	nav, err := New(Config{
		BaseURL:             "https://ecorp.sos.ga.gov",
		InputSelector:       "#txtControlNo",
		ButtonSelector:      "#btnSearch",
		ResultLinkSelector:  "td > a",
		NoResultsText:       "No data found",
		DetailReadySelector: "#printDiv table",
		ResultTimeout:       time.Second,
		PollInterval:        10 * time.Millisecond,
	}, gate, zap.NewNop())
	require.NoError(t, err)
	return nav
}

func TestSearchSingleMatch(t *testing.T) {
	t.Parallel()

	gate := &passGate{}
	nav := newTestNavigator(t, gate)
	sess := newFakeSession(loadingHTML, loadingHTML, oneMatchHTML)

	err := nav.Search(context.Background(), sess, "K805670")
	require.NoError(t, err)

	assert.Equal(t, "K805670", sess.typed["#txtControlNo"])
	assert.Equal(t, []string{"#btnSearch"}, sess.clicked)
	require.Len(t, sess.navigated, 1)
	assert.Equal(t,
		"https://ecorp.sos.ga.gov/BusinessSearch/BusinessInformation?businessId=2025861",
		sess.navigated[0])
	assert.Equal(t, 1, gate.calls, "detail page must pass the challenge gate")
}

func TestSearchNoResults(t *testing.T) {
	t.Parallel()

	nav := newTestNavigator(t, &passGate{})
	sess := newFakeSession(loadingHTML, noMatchHTML)

	err := nav.Search(context.Background(), sess, "A000000")
	require.ErrorIs(t, err, registry.ErrNoResults)
	assert.Empty(t, sess.navigated, "no-results must not navigate anywhere")
}

func TestSearchAmbiguousMultiMatch(t *testing.T) {
	t.Parallel()

	nav := newTestNavigator(t, &passGate{})
	sess := newFakeSession(multiMatchHTML)

	err := nav.Search(context.Background(), sess, "ACME")
	require.ErrorIs(t, err, registry.ErrNoResults)
	assert.Contains(t, err.Error(), "matched 2 records")
	assert.Empty(t, sess.navigated)
}

func TestSearchRenderStallIsNotNoResults(t *testing.T) {
	t.Parallel()

	nav, err := New(Config{
		BaseURL:             "https://ecorp.sos.ga.gov",
		InputSelector:       "#txtControlNo",
		ButtonSelector:      "#btnSearch",
		ResultLinkSelector:  "td > a",
		NoResultsText:       "No data found",
		DetailReadySelector: "table",
		ResultTimeout:       60 * time.Millisecond,
		PollInterval:        10 * time.Millisecond,
	}, &passGate{}, zap.NewNop())
	require.NoError(t, err)

	sess := newFakeSession(loadingHTML)
	err = nav.Search(context.Background(), sess, "K805670")
	require.Error(t, err)
	assert.NotErrorIs(t, err, registry.ErrNoResults,
		"a page that never settles is a transport failure, not a verdict")
	assert.Contains(t, err.Error(), "terminal state")
}

func TestSearchEmptyControlNumber(t *testing.T) {
	t.Parallel()

	nav := newTestNavigator(t, &passGate{})
	err := nav.Search(context.Background(), newFakeSession(loadingHTML), "   ")
	require.Error(t, err)
}

func TestSearchDuplicateHrefsCountOnce(t *testing.T) {
	t.Parallel()

	// Grids sometimes render the same record link in two cells of one row.
	page := `<html><body><table id="grid_businessList">
<tr><td><a href="/BusinessSearch/BusinessInformation?businessId=7">ACME</a></td>
<td><a href="/BusinessSearch/BusinessInformation?businessId=7">K805670</a></td></tr>
</table></body></html>`
	gate := &passGate{}
	nav := newTestNavigator(t, gate)
	sess := newFakeSession(page)

	require.NoError(t, nav.Search(context.Background(), sess, "K805670"))
	require.Len(t, sess.navigated, 1)
}
