package domain

import "strings"

// Label is a document-type decision produced by the classifier endpoint.
// The first three values mirror the labels the classifier was trained on;
// the remaining two are synthesized by the classification stage itself.
type Label string

const (
	LabelApplication Label = "APPLICATION"
	LabelPayslip     Label = "PAYSLIP"
	LabelBank        Label = "BANK"
	LabelUnknown     Label = "UNKNOWN"
	LabelUnsupported Label = "UNSUPPORTED"
)

// FeatureSet selects which extraction capability a job performs.
type FeatureSet string

const (
	FeatureText   FeatureSet = "TEXT"
	FeatureForms  FeatureSet = "FORMS"
	FeatureTables FeatureSet = "TABLES"
)

// FeatureForLabel is the branch table of the workflow: which extraction
// feature a classified document flows into. The second return is false for
// labels that end the workflow without extraction.
func FeatureForLabel(label Label) (FeatureSet, bool) {
	switch label {
	case LabelApplication:
		return FeatureForms, true
	case LabelBank, LabelPayslip:
		return FeatureTables, true
	case LabelUnknown:
		return FeatureText, true
	default:
		return "", false
	}
}

// DocumentRef names one immutable byte object in the object store.
type DocumentRef struct {
	Bucket  string `json:"bucket"`
	Key     string `json:"key"`
	Version string `json:"version,omitempty"`
}

// TriggerRecord is one document-creation record inside a trigger event.
// RequestID is the upstream store's unique request identifier for the upload;
// it is reused verbatim on event redelivery, which is what makes it usable as
// an idempotency key downstream.
type TriggerRecord struct {
	RequestID string      `json:"request_id"`
	Document  DocumentRef `json:"document"`
}

// TriggerEvent is the inbound batch of document-creation records that starts
// one workflow instance. DeliveryID identifies the delivery itself and names
// the instance, so a redelivered event lands on the same instance.
type TriggerEvent struct {
	DeliveryID string          `json:"delivery_id"`
	Records    []TriggerRecord `json:"records"`
}

// Classification is the single label decision emitted per trigger event.
type Classification struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// LabelScore is one entry of the classifier's ranked result, best match first.
type LabelScore struct {
	Label Label   `json:"label"`
	Score float64 `json:"score"`
}

// TextBlock is one fragment returned by the text-detection service.
type TextBlock struct {
	BlockType string `json:"block_type"`
	Text      string `json:"text"`
}

const BlockTypeLine = "LINE"

// PlainText concatenates LINE blocks in the order the detector returned them,
// one line per block. Detectors emit lines in reading order.
func PlainText(blocks []TextBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.BlockType != BlockTypeLine {
			continue
		}
		sb.WriteString(b.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

var supportedExtensions = map[string]struct{}{
	"pdf":  {},
	"png":  {},
	"jpg":  {},
	"jpeg": {},
}

// FileExtension returns the lowercased extension of name without the dot, or
// "" when name has none.
func FileExtension(name string) string {
	pos := strings.LastIndexByte(name, '.')
	if pos <= 0 || pos == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[pos+1:])
}

// SupportedFile reports whether the pipeline can process a document key,
// judged by extension only.
func SupportedFile(name string) bool {
	_, ok := supportedExtensions[FileExtension(name)]
	return ok
}

// DecodeEventKey undoes the upstream store's event encoding: spaces in object
// keys arrive as '+'.
func DecodeEventKey(key string) string {
	return strings.ReplaceAll(key, "+", " ")
}
