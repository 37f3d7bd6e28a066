// Package artifact stores diagnostic artifacts — failure screenshots, raw
// DOM snapshots, step traces — keyed by request id and attempt. Providers
// share one interface so a CI run can write locally while a hosted run
// uploads to a bucket.
package artifact

import (
	"context"
	"fmt"
)

// Store persists one named artifact and returns a stable reference to it
// (a filesystem path or an object URI) for the failure document.
type Store interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// Name builds the canonical artifact name for one capture. Artifacts group
// under the run's request id so a collected bundle separates cleanly from
// other runs on the same sink.
func Name(requestID string, attempt int, stage, ext string) string {
	return fmt.Sprintf("%s/attempt_%d_%s.%s", requestID, attempt, stage, ext)
}
