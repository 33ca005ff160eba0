package ports

import (
	"context"
	"time"

	"github.com/avolkov/docpipe/internal/core/domain"
)

// ObjectStore is the durable byte store holding source documents and
// extraction outputs. Writes are visible to any subsequent reader once Put
// returns; the pipeline tolerates no read-after-write staleness.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
	// Get fetches one object; version "" means latest. A missing object
	// yields domain.ErrNotFound.
	Get(ctx context.Context, bucket, key, version string) ([]byte, error)
}

// CorrelationStore persists the resumption handle for an in-flight
// extraction job, keyed by document key. Written only by the dispatch stage,
// read only by the completion correlator.
type CorrelationStore interface {
	PutHandle(ctx context.Context, documentKey string, handle []byte) error
	// GetHandle yields domain.ErrCorrelationNotFound when no handle was
	// ever stored for the key.
	GetHandle(ctx context.Context, documentKey string) ([]byte, error)
}

// PageRenderer turns the first page of a paginated document into a raster
// image suitable for text detection.
type PageRenderer interface {
	RenderFirstPage(ctx context.Context, pdf []byte) ([]byte, error)
}

// TextDetector is the black-box OCR service.
type TextDetector interface {
	DetectText(ctx context.Context, image []byte) ([]domain.TextBlock, error)
}

// DocumentClassifier is the black-box scoring service. Results come ranked
// best match first.
type DocumentClassifier interface {
	Classify(ctx context.Context, text string) ([]domain.LabelScore, error)
}

// ExtractionService starts long-running extraction jobs. StartJob is
// idempotent on the request's IdempotencyKey: repeating a start returns the
// original job rather than creating a second one.
type ExtractionService interface {
	StartJob(ctx context.Context, req domain.ExtractionRequest) (string, error)
}

// InstanceRepository is the durable substrate holding workflow instances and
// their suspend/resume/abort transitions.
type InstanceRepository interface {
	// Create inserts the instance; when an instance with the same name
	// already exists it returns created=false and leaves the stored
	// instance untouched.
	Create(ctx context.Context, inst *domain.Instance) (created bool, err error)
	GetByName(ctx context.Context, name string) (*domain.Instance, error)
	SetState(ctx context.Context, id string, state domain.InstanceState) error
	SaveClassification(ctx context.Context, id string, cls domain.Classification) error
	// Suspend transitions the instance to the suspended state, mints a
	// fresh resumption handle and returns it.
	Suspend(ctx context.Context, id string, feature domain.FeatureSet) (string, error)
	// Resume completes a suspended instance, attaching the job result.
	// Yields domain.ErrAlreadyResolved for settled instances and
	// domain.ErrNotFound for unknown handles.
	Resume(ctx context.Context, handle string, result []byte) error
	// Abort fails a suspended instance with an error code and diagnostic
	// cause. Same error semantics as Resume.
	Abort(ctx context.Context, handle string, code, cause string) error
	// Fail force-settles a live instance by id with an error code and
	// cause, so no stage failure strands an instance in a non-terminal
	// state. Failing an already-terminal instance is a no-op.
	Fail(ctx context.Context, id string, code, cause string) error
	// SweepExpired force-aborts instances suspended since before cutoff,
	// returning how many it settled.
	SweepExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// TriggerStream carries document-creation trigger events.
type TriggerStream interface {
	PublishTrigger(ctx context.Context, ev domain.TriggerEvent) error
	SubscribeTriggers(ctx context.Context, handler func(context.Context, domain.TriggerEvent) error) error
}

// CompletionStream carries extraction completion notifications. Delivery is
// at least once and may batch several events per envelope.
type CompletionStream interface {
	PublishCompletion(ctx context.Context, ev domain.CompletionEvent) error
	SubscribeCompletions(ctx context.Context, handler func(context.Context, domain.CompletionEnvelope) error) error
}
