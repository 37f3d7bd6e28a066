package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	b, err := New(Config{Headless: true}, nil)
	require.NoError(t, err)
	defer b.allocCancel()

	assert.Equal(t, 45*time.Second, b.cfg.NavTimeout)
	assert.Equal(t, 1920, b.cfg.WindowWidth)
	assert.Equal(t, 1080, b.cfg.WindowHeight)
	assert.NotNil(t, b.allocator)
}

func TestNewRemoteAllocator(t *testing.T) {
	t.Parallel()

	b, err := New(Config{RemoteURL: "ws://127.0.0.1:9222/devtools/browser/dead-beef"}, nil)
	require.NoError(t, err)
	defer b.allocCancel()

	// The remote endpoint is not contacted until a session starts.
	assert.NotNil(t, b.allocator)
}
