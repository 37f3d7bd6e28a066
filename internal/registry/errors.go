package registry

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind is the closed classification recorded for a failed attempt.
type FailureKind string

// Failure kinds. Every attempt failure maps to exactly one of these; the
// retry policy and the failure document both key off the kind, never off
// error strings.
const (
	KindChallengeTimeout FailureKind = "challenge_timeout"
	KindNetwork          FailureKind = "network_error"
	KindNoResults        FailureKind = "no_results_found"
	KindParse            FailureKind = "parse_error"
)

// ErrChallengeTimeout is returned when the anti-bot gate never cleared
// within its wall-clock bound.
var ErrChallengeTimeout = errors.New("challenge not cleared within bound")

// ErrNoResults is returned when a search terminates without exactly one
// match: an explicit no-results marker, or an ambiguous multi-row grid.
var ErrNoResults = errors.New("search returned no usable match")

// ParseError reports a structural mismatch between the detail page and the
// expected filing layout. Section is always set; Label only when a specific
// row lookup failed.
type ParseError struct {
	Section string
	Label   string
	Reason  string
}

func (e *ParseError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("parse %s: label %q: %s", e.Section, e.Label, e.Reason)
	}
	return fmt.Sprintf("parse %s: %s", e.Section, e.Reason)
}

// Classify maps any attempt error to its failure kind. Unknown errors,
// transport failures and context expiry all count as network failures: the
// session died rather than the portal answering something unexpected.
func Classify(err error) FailureKind {
	var parseErr *ParseError
	switch {
	case errors.Is(err, ErrChallengeTimeout):
		return KindChallengeTimeout
	case errors.Is(err, ErrNoResults):
		return KindNoResults
	case errors.As(err, &parseErr):
		return KindParse
	default:
		return KindNetwork
	}
}

// Retryable reports whether another attempt may change the outcome. The
// policy is deliberately permissive: a challenge stall, a dropped session,
// an empty grid and a malformed page can all be transient portal moods.
// Cancellation is final; the orchestrator gates the run budget itself.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
