package domain

// TokenPath derives the correlation-store path for a document key. This
// function is the single contract shared by the dispatch writer and the
// completion reader; the two sides never exchange the path directly, they
// both compute it. Callers must decode event-encoded keys first
// (DecodeEventKey) so that both sides derive from the same bytes.
const tokenNamespace = "_tasks"

func TokenPath(documentKey string) string {
	return tokenNamespace + "/" + documentKey + ".token"
}

// JobStatus is the terminal status reported by the extraction service.
type JobStatus string

const (
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
)

// DocumentLocation points back at the original document from a completion
// notification. The extraction service reports bucket and key only.
type DocumentLocation struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// CompletionEvent describes the outcome of exactly one extraction job. Raw
// holds the undecoded notification message; it is handed verbatim to the
// resumed instance as the job result, or attached as diagnostic cause on
// abort.
type CompletionEvent struct {
	JobID    string           `json:"job_id"`
	Status   JobStatus        `json:"status"`
	API      string           `json:"api,omitempty"`
	JobTag   string           `json:"job_tag,omitempty"`
	Document DocumentLocation `json:"document"`
	Raw      []byte           `json:"-"`
}

// CompletionEnvelope is the transport-level batch wrapper around completion
// events. The transport may deliver several events in one envelope.
type CompletionEnvelope struct {
	Events []CompletionEvent
}

// ExtractionRequest carries everything needed to start one extraction job.
type ExtractionRequest struct {
	Document       DocumentRef
	Feature        FeatureSet
	IdempotencyKey string
	Output         OutputTarget
	Notification   NotificationTarget
}

// OutputTarget is where the extraction service writes job results.
type OutputTarget struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
}

// NotificationTarget is where the extraction service publishes completion
// events, and the role it assumes to do so.
type NotificationTarget struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

// DispatchCommand is the input of the async dispatch stage: the feature to
// extract, the resumption handle generated at suspension, and the trigger
// batch being dispatched.
type DispatchCommand struct {
	Feature FeatureSet
	Handle  string
	Trigger TriggerEvent
}
