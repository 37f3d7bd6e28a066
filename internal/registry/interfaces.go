package registry

import (
	"context"
	"time"
)

// Session is one live browser tab. Every attempt gets a fresh one and tears
// it down unconditionally; no session state crosses attempts.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// Present reports whether the selector currently matches, without waiting.
	Present(ctx context.Context, selector string) (bool, error)
	SendKeys(ctx context.Context, selector string, value string) error
	Click(ctx context.Context, selector string) error
	// ClickAt dispatches a raw click at viewport coordinates; the challenge
	// widget lives in a cross-origin frame no selector can reach.
	ClickAt(ctx context.Context, x, y float64) error
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Location(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// Browser owns the underlying allocator and mints sessions.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
	Close(ctx context.Context) error
}

// ChallengeGate blocks until the page behind the anti-bot layer is ready,
// within a wall-clock bound.
type ChallengeGate interface {
	Await(ctx context.Context, sess Session, readySelector string) error
}

// Prober takes one cheap HTTP look at the portal before a browser attempt.
type Prober interface {
	Check(ctx context.Context) (ProbeVerdict, error)
}

// Navigator drives a challenge-cleared session from the search form to the
// single matching detail page.
type Navigator interface {
	Search(ctx context.Context, sess Session, controlNumber string) error
}

// Extractor turns a detail-page DOM snapshot into a normalized record.
type Extractor interface {
	Extract(html string) (*BusinessRecord, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces request IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
