package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// PublishOutcome labels a single record transmission.
type PublishOutcome string

const (
	PublishAccepted  PublishOutcome = "accepted"
	PublishDuplicate PublishOutcome = "duplicate"
	PublishFailed    PublishOutcome = "failed"
	PublishRejected  PublishOutcome = "rejected"
)

// Recorder defines observability hooks for compile, publish and reconcile
// runs. All methods must be safe to call on the NoopRecorder.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncRecordPublish(kind int, outcome PublishOutcome)
	IncPublishRetry()
	ObserveRelayRoundTrip(op string, d time.Duration)
	SetReconcileGap(missing, outdated, stillMissing int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)  {}
func (NoopRecorder) IncStageResult(string, ResultLabel)          {}
func (NoopRecorder) IncRecordPublish(int, PublishOutcome)        {}
func (NoopRecorder) IncPublishRetry()                            {}
func (NoopRecorder) ObserveRelayRoundTrip(string, time.Duration) {}
func (NoopRecorder) SetReconcileGap(int, int, int)               {}
