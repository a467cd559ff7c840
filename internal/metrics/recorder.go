package metrics

import "time"

// Outcome labels a finished compilation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeWarning Outcome = "warning"
	OutcomeFailed  Outcome = "failed"
)

// OutcomeFor classifies a compilation by its diagnostic counts.
func OutcomeFor(errors, warnings int) Outcome {
	switch {
	case errors > 0:
		return OutcomeFailed
	case warnings > 0:
		return OutcomeWarning
	default:
		return OutcomeSuccess
	}
}

// Recorder defines observability hooks for the development server.
type Recorder interface {
	ObserveCompileDuration(d time.Duration)
	IncCompileOutcome(outcome Outcome)
	// SetBuildStatus reports whether the last compilation has settled.
	SetBuildStatus(done bool)
	SetLiveReloadClients(n int)
	IncLiveReloadBroadcast()
}

// NoopRecorder is a Recorder that does nothing (default when metrics are disabled).
type NoopRecorder struct{}

func (NoopRecorder) ObserveCompileDuration(time.Duration) {}
func (NoopRecorder) IncCompileOutcome(Outcome)            {}
func (NoopRecorder) SetBuildStatus(bool)                  {}
func (NoopRecorder) SetLiveReloadClients(int)             {}
func (NoopRecorder) IncLiveReloadBroadcast()              {}
