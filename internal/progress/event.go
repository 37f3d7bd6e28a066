package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	// StageRunStart marks the beginning of a retrieval run.
	StageRunStart Stage = "RUN_START"
	// StageStateEnter marks each state-machine transition.
	StageStateEnter Stage = "STATE_ENTER"
	// StageAttemptDone marks the end of one attempt, success or failure.
	StageAttemptDone Stage = "ATTEMPT_DONE"
	// StageRunDone marks the terminal outcome of the whole run.
	StageRunDone Stage = "RUN_DONE"
)

// Results attached to attempt and run completions. Attempt results use
// "success" or one of the failure kinds; run results are success/exhausted.
const (
	ResultSuccess   = "success"
	ResultExhausted = "exhausted"
)

// Event captures a single milestone of a retrieval run.
type Event struct {
	// RequestID correlates the event with the run's logs and artifacts.
	RequestID string `json:"request_id"`
	// ControlNumber is the entity being retrieved.
	ControlNumber string `json:"control_number"`
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time `json:"ts"`
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage `json:"stage"`
	// State is the state-machine state being entered, or the terminal state.
	State string `json:"state,omitempty"`
	// Attempt is the 1-based attempt index for attempt-scoped events.
	Attempt int `json:"attempt,omitempty"`
	// Result carries "success", a failure kind, or "exhausted".
	Result string `json:"result,omitempty"`
	// Dur captures wall time for attempt and run completions.
	Dur time.Duration `json:"dur,omitempty"`
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RequestID == "" {
		return errors.New("request id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart:
	case StageStateEnter:
		if e.State == "" {
			return errors.New("state enter requires state")
		}
	case StageAttemptDone:
		if e.Attempt < 1 {
			return errors.New("attempt done requires attempt >= 1")
		}
		if e.Result == "" {
			return errors.New("attempt done requires result")
		}
	case StageRunDone:
		if e.Result == "" {
			return errors.New("run done requires result")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
