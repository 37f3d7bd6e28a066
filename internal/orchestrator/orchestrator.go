// Package orchestrator owns the retry state machine around one retrieval
// run. Components below it never retry internally; every bound, backoff and
// failure classification decision lives here.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/registrar-data/entityproc/internal/artifact"
	"github.com/registrar-data/entityproc/internal/progress"
	"github.com/registrar-data/entityproc/internal/registry"
)

// Stage names used for logs and artifact keys.
const (
	stageBypass  = "bypass"
	stageSearch  = "search"
	stageExtract = "extract"
)

// Config is the attempt policy for one run.
type Config struct {
	// SearchURL is the portal entry point each attempt starts from.
	SearchURL string
	// SearchReadySelector proves the search page outlived the challenge.
	SearchReadySelector string
	MaxAttempts         int
	// AttemptTimeout bounds one full bypass→search→extract pass.
	AttemptTimeout time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	// TraceSteps captures a screenshot at every successful stage boundary,
	// and the detail page HTML on success, mirroring a CI debugging trail.
	TraceSteps bool
}

// Deps are the ports an Orchestrator drives. Prober is optional; everything
// else is required.
type Deps struct {
	Browser   registry.Browser
	Prober    registry.Prober
	Gate      registry.ChallengeGate
	Navigator registry.Navigator
	Extractor registry.Extractor
	Artifacts artifact.Store
	Events    progress.Emitter
	Clock     registry.Clock
	Logger    *zap.Logger
}

// Orchestrator runs the attempt state machine.
type Orchestrator struct {
	cfg     Config
	deps    Deps
	backoff *backoff
}

// New validates the wiring.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if cfg.SearchURL == "" {
		return nil, fmt.Errorf("search url is required")
	}
	if cfg.SearchReadySelector == "" {
		return nil, fmt.Errorf("search ready selector is required")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be > 0")
	}
	if cfg.AttemptTimeout <= 0 {
		return nil, fmt.Errorf("attempt timeout must be > 0")
	}
	if cfg.BackoffBase <= 0 || cfg.BackoffMax < cfg.BackoffBase {
		return nil, fmt.Errorf("backoff base must be > 0 and backoff max must be >= base")
	}
	if deps.Browser == nil || deps.Gate == nil || deps.Navigator == nil ||
		deps.Extractor == nil || deps.Artifacts == nil {
		return nil, fmt.Errorf("browser, gate, navigator, extractor and artifacts are required")
	}
	if deps.Events == nil {
		deps.Events = progress.Discard{}
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		backoff: newBackoff(cfg.BackoffBase, cfg.BackoffMax),
	}, nil
}

// Run executes up to MaxAttempts sequential attempts and always returns a
// terminal outcome: Succeeded with a record, or Exhausted with the last
// failure. The caller bounds the whole run through ctx (the wall-clock
// budget); once ctx is done no further attempt starts and in-flight work is
// abandoned.
func (o *Orchestrator) Run(ctx context.Context, req registry.Request) registry.Outcome {
	start := o.deps.Clock.Now()
	log := o.deps.Logger.With(
		zap.String("request_id", req.RequestID),
		zap.String("control_number", req.ControlNumber),
	)

	o.deps.Events.Emit(progress.Event{
		RequestID:     req.RequestID,
		ControlNumber: req.ControlNumber,
		TS:            start,
		Stage:         progress.StageRunStart,
	})

	outcome := registry.Outcome{Diagnostics: []string{}}
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		attemptLog := log.With(zap.Int("attempt", attempt))
		o.enterState(req, attempt, registry.StateIdle, attemptLog)

		attemptStart := o.deps.Clock.Now()
		record, refs, err := o.attempt(ctx, req, attempt, attemptLog)
		outcome.Attempts = attempt
		outcome.Diagnostics = append(outcome.Diagnostics, refs...)

		if err == nil {
			o.enterState(req, attempt, registry.StateSucceeded, attemptLog)
			o.emitAttemptDone(req, attempt, progress.ResultSuccess, attemptStart)
			o.emitRunDone(req, progress.ResultSuccess, start)
			outcome.State = registry.StateSucceeded
			outcome.Record = record
			if record.Info.BusinessName == "" {
				attemptLog.Warn("Extraction succeeded with an empty business name; verify the record manually")
			}
			return outcome
		}

		kind := registry.Classify(err)
		outcome.LastKind = kind
		outcome.LastErr = err
		o.enterState(req, attempt, registry.StateFailed, attemptLog,
			zap.String("reason", string(kind)), zap.Error(err))
		o.emitAttemptDone(req, attempt, string(kind), attemptStart)

		if attempt == o.cfg.MaxAttempts || !registry.Retryable(err) || ctx.Err() != nil {
			break
		}

		o.enterState(req, attempt, registry.StateRetrying, attemptLog)
		if !o.waitBackoff(ctx, attempt, attemptLog) {
			break
		}
	}

	o.enterState(req, outcome.Attempts, registry.StateExhausted, log,
		zap.String("last_error", string(outcome.LastKind)))
	o.emitRunDone(req, progress.ResultExhausted, start)
	outcome.State = registry.StateExhausted
	return outcome
}

// attempt runs one full bypass→search→extract pass on a fresh session. The
// returned refs list the diagnostic artifacts captured for this attempt.
func (o *Orchestrator) attempt(
	ctx context.Context,
	req registry.Request,
	attempt int,
	log *zap.Logger,
) (record *registry.BusinessRecord, refs []string, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	defer cancel()

	var sess registry.Session
	defer func() {
		if err != nil {
			refs = append(refs, o.captureDiagnostics(ctx, req, attempt, currentStage(err), sess, log)...)
		}
		if sess != nil {
			// Unconditional teardown; nothing from this session survives
			// into the next attempt.
			if closeErr := sess.Close(context.WithoutCancel(ctx)); closeErr != nil {
				log.Warn("Session teardown failed", zap.Error(closeErr))
			}
		}
	}()

	// Bypassing: probe, fresh session, search page, challenge gate.
	o.enterState(req, attempt, registry.StateBypassing, log)
	if o.deps.Prober != nil {
		verdict, probeErr := o.deps.Prober.Check(attemptCtx)
		if probeErr != nil {
			return nil, nil, stageErr(stageBypass, probeErr)
		}
		log.Debug("Preflight probe done",
			zap.Int("status", verdict.StatusCode),
			zap.Bool("challenge", verdict.Challenge),
			zap.String("marker", verdict.Marker))
	}

	sess, err = o.deps.Browser.NewSession(attemptCtx)
	if err != nil {
		return nil, nil, stageErr(stageBypass, err)
	}
	if err = sess.Navigate(attemptCtx, o.cfg.SearchURL); err != nil {
		return nil, nil, stageErr(stageBypass, err)
	}
	if err = o.deps.Gate.Await(attemptCtx, sess, o.cfg.SearchReadySelector); err != nil {
		return nil, nil, stageErr(stageBypass, err)
	}
	o.traceStep(ctx, req, attempt, stageBypass, sess, log)

	// Navigating: submit the control number, land on the detail page.
	o.enterState(req, attempt, registry.StateNavigating, log)
	if err = o.deps.Navigator.Search(attemptCtx, sess, req.ControlNumber); err != nil {
		return nil, nil, stageErr(stageSearch, err)
	}
	o.traceStep(ctx, req, attempt, stageSearch, sess, log)

	// Extracting: snapshot the DOM and parse it.
	o.enterState(req, attempt, registry.StateExtracting, log)
	html, err := sess.HTML(attemptCtx)
	if err != nil {
		return nil, nil, stageErr(stageExtract, err)
	}
	record, err = o.deps.Extractor.Extract(html)
	if err != nil {
		return nil, nil, stageErr(stageExtract, err)
	}
	if o.cfg.TraceSteps {
		if ref, saveErr := o.deps.Artifacts.Save(ctx,
			artifact.Name(req.RequestID, attempt, "detail", "html"), []byte(html)); saveErr != nil {
			log.Warn("Detail snapshot save failed", zap.Error(saveErr))
		} else {
			log.Debug("Detail snapshot saved", zap.String("ref", ref))
		}
	}
	return record, nil, nil
}

// captureDiagnostics saves a screenshot and raw DOM snapshot from the
// still-open session. It runs on its own short deadline detached from the
// failed attempt's context, so an expired attempt can still leave evidence.
func (o *Orchestrator) captureDiagnostics(
	ctx context.Context,
	req registry.Request,
	attempt int,
	stage string,
	sess registry.Session,
	log *zap.Logger,
) []string {
	if sess == nil {
		return nil
	}
	diagCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	var refs []string
	if shot, err := sess.Screenshot(diagCtx); err != nil {
		log.Warn("Failure screenshot capture failed", zap.Error(err))
	} else if ref, err := o.deps.Artifacts.Save(diagCtx,
		artifact.Name(req.RequestID, attempt, stage, "png"), shot); err != nil {
		log.Warn("Failure screenshot save failed", zap.Error(err))
	} else {
		refs = append(refs, ref)
	}

	if html, err := sess.HTML(diagCtx); err != nil {
		log.Warn("Failure DOM snapshot capture failed", zap.Error(err))
	} else if ref, err := o.deps.Artifacts.Save(diagCtx,
		artifact.Name(req.RequestID, attempt, stage, "html"), []byte(html)); err != nil {
		log.Warn("Failure DOM snapshot save failed", zap.Error(err))
	} else {
		refs = append(refs, ref)
	}
	return refs
}

// traceStep optionally records a screenshot at a successful stage boundary.
func (o *Orchestrator) traceStep(
	ctx context.Context,
	req registry.Request,
	attempt int,
	stage string,
	sess registry.Session,
	log *zap.Logger,
) {
	if !o.cfg.TraceSteps || sess == nil {
		return
	}
	shot, err := sess.Screenshot(ctx)
	if err != nil {
		log.Warn("Step trace screenshot failed", zap.String("stage", stage), zap.Error(err))
		return
	}
	name := fmt.Sprintf("%s/attempt_%d_step_%s.png", req.RequestID, attempt, stage)
	if _, err := o.deps.Artifacts.Save(ctx, name, shot); err != nil {
		log.Warn("Step trace save failed", zap.String("stage", stage), zap.Error(err))
	}
}

// waitBackoff sleeps the jittered delay before the next attempt; false means
// the run budget expired during the wait.
func (o *Orchestrator) waitBackoff(ctx context.Context, attempt int, log *zap.Logger) bool {
	delay := o.backoff.delay(attempt)
	log.Info("Backing off before next attempt", zap.Duration("delay", delay))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		log.Warn("Run budget expired during backoff")
		return false
	}
}

func (o *Orchestrator) enterState(
	req registry.Request,
	attempt int,
	state registry.State,
	log *zap.Logger,
	fields ...zap.Field,
) {
	log.Info("State transition", append([]zap.Field{zap.String("state", string(state))}, fields...)...)
	o.deps.Events.Emit(progress.Event{
		RequestID:     req.RequestID,
		ControlNumber: req.ControlNumber,
		TS:            o.deps.Clock.Now(),
		Stage:         progress.StageStateEnter,
		State:         string(state),
		Attempt:       attempt,
	})
}

func (o *Orchestrator) emitAttemptDone(req registry.Request, attempt int, result string, started time.Time) {
	o.deps.Events.Emit(progress.Event{
		RequestID:     req.RequestID,
		ControlNumber: req.ControlNumber,
		TS:            o.deps.Clock.Now(),
		Stage:         progress.StageAttemptDone,
		Attempt:       attempt,
		Result:        result,
		Dur:           o.deps.Clock.Now().Sub(started),
	})
}

func (o *Orchestrator) emitRunDone(req registry.Request, result string, started time.Time) {
	o.deps.Events.Emit(progress.Event{
		RequestID:     req.RequestID,
		ControlNumber: req.ControlNumber,
		TS:            o.deps.Clock.Now(),
		Stage:         progress.StageRunDone,
		Result:        result,
		Dur:           o.deps.Clock.Now().Sub(started),
	})
}

// stagedError carries the stage a failure happened in, for artifact naming.
type stagedError struct {
	stage string
	err   error
}

func (e *stagedError) Error() string { return fmt.Sprintf("%s stage: %v", e.stage, e.err) }
func (e *stagedError) Unwrap() error { return e.err }

func stageErr(stage string, err error) error {
	return &stagedError{stage: stage, err: err}
}

func currentStage(err error) string {
	var staged *stagedError
	if errors.As(err, &staged) {
		return staged.stage
	}
	return "run"
}
