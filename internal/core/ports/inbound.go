package ports

import (
	"context"

	"github.com/avolkov/docpipe/internal/core/domain"
)

// ClassificationStage is the inbound contract of the synchronous
// classification step: one label decision per trigger event.
type ClassificationStage interface {
	ClassifyFirstPage(ctx context.Context, ev domain.TriggerEvent) (domain.Classification, error)
}

// DispatchStage is the inbound contract of the asynchronous dispatch step.
// The returned job id is informational only; continuation happens through
// suspension and the correlation store, never through this return value.
type DispatchStage interface {
	Dispatch(ctx context.Context, cmd domain.DispatchCommand) (string, error)
}

// CompletionCorrelator consumes completion envelopes and settles the
// suspended instances they belong to. An error return makes the transport
// retry the envelope with backoff before giving up; per-event correlation
// failures never produce one.
type CompletionCorrelator interface {
	HandleEnvelope(ctx context.Context, env domain.CompletionEnvelope) error
}

// WorkflowEngine drives one workflow instance per trigger event through
// classify, branch, dispatch and suspension.
type WorkflowEngine interface {
	HandleTrigger(ctx context.Context, ev domain.TriggerEvent) error
	// SweepTimeouts force-aborts instances suspended longer than the
	// configured ceiling, returning how many it settled.
	SweepTimeouts(ctx context.Context) (int64, error)
}
