package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"challenge timeout", ErrChallengeTimeout, KindChallengeTimeout},
		{"wrapped challenge timeout", fmt.Errorf("attempt 2: %w", ErrChallengeTimeout), KindChallengeTimeout},
		{"no results", ErrNoResults, KindNoResults},
		{"wrapped no results", fmt.Errorf("search K805670: %w", ErrNoResults), KindNoResults},
		{"parse error", &ParseError{Section: "Business Information", Reason: "section missing"}, KindParse},
		{"wrapped parse error", fmt.Errorf("extract: %w", &ParseError{Section: "Officer Information", Reason: "grid missing"}), KindParse},
		{"plain error", errors.New("connection reset"), KindNetwork},
		{"deadline", context.DeadlineExceeded, KindNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestParseErrorMessage(t *testing.T) {
	t.Parallel()

	withLabel := &ParseError{Section: "Business Information", Label: "Business Name", Reason: "label not found"}
	if got, want := withLabel.Error(), `parse Business Information: label "Business Name": label not found`; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	noLabel := &ParseError{Section: "Registered Agent Information", Reason: "section missing"}
	if got, want := noLabel.Error(), "parse Registered Agent Information: section missing"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	if Retryable(nil) {
		t.Fatalf("nil error must not be retryable")
	}
	if Retryable(context.Canceled) {
		t.Fatalf("cancellation must be final")
	}
	if Retryable(fmt.Errorf("run: %w", context.Canceled)) {
		t.Fatalf("wrapped cancellation must be final")
	}
	for _, err := range []error{
		ErrChallengeTimeout,
		ErrNoResults,
		&ParseError{Section: "Business Information", Reason: "section missing"},
		errors.New("tab crashed"),
		context.DeadlineExceeded,
	} {
		if !Retryable(err) {
			t.Fatalf("expected %v to be retryable", err)
		}
	}
}

func TestOutcomeSucceeded(t *testing.T) {
	t.Parallel()

	ok := Outcome{State: StateSucceeded, Record: &BusinessRecord{}}
	if !ok.Succeeded() {
		t.Fatalf("expected succeeded outcome")
	}
	if (Outcome{State: StateSucceeded}).Succeeded() {
		t.Fatalf("succeeded state without a record must not count")
	}
	if (Outcome{State: StateExhausted, Record: &BusinessRecord{}}).Succeeded() {
		t.Fatalf("exhausted outcome must not count")
	}
}
