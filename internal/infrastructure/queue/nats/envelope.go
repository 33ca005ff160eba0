package nats

import (
	"encoding/json"
	"fmt"

	"github.com/avolkov/docpipe/internal/core/domain"
)

// wireEnvelope is the on-the-wire batch shape. Events stay raw so each one's
// undecoded bytes can travel along as the job result.
type wireEnvelope struct {
	Events []json.RawMessage `json:"events"`
}

func encodeEnvelope(events ...domain.CompletionEvent) ([]byte, error) {
	wire := wireEnvelope{Events: make([]json.RawMessage, 0, len(events))}
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		wire.Events = append(wire.Events, raw)
	}
	return json.Marshal(wire)
}

func decodeEnvelope(data []byte) (domain.CompletionEnvelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return domain.CompletionEnvelope{}, fmt.Errorf("decode completion envelope: %w", err)
	}

	envelope := domain.CompletionEnvelope{Events: make([]domain.CompletionEvent, 0, len(wire.Events))}
	for i, raw := range wire.Events {
		var ev domain.CompletionEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return domain.CompletionEnvelope{}, fmt.Errorf("decode completion event %d: %w", i, err)
		}
		ev.Raw = raw
		envelope.Events = append(envelope.Events, ev)
	}
	return envelope, nil
}
