package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/avolkov/docpipe/internal/core/domain"
	"github.com/avolkov/docpipe/internal/core/ports"
)

type CorrelateCompletionUseCase struct {
	correlation ports.CorrelationStore
	instances   ports.InstanceRepository
}

func NewCorrelateCompletionUseCase(
	correlation ports.CorrelationStore,
	instances ports.InstanceRepository,
) *CorrelateCompletionUseCase {
	return &CorrelateCompletionUseCase{
		correlation: correlation,
		instances:   instances,
	}
}

// HandleEnvelope settles the suspended instance behind every completion
// event in the envelope. Correlation-level failures (missing handle,
// duplicate notification) are reported and the batch continues; only
// infrastructure failures ask the transport for redelivery, otherwise a
// single bad event would poison the whole envelope forever.
func (uc *CorrelateCompletionUseCase) HandleEnvelope(ctx context.Context, env domain.CompletionEnvelope) error {
	var redeliver error
	for _, ev := range env.Events {
		err := uc.handleEvent(ctx, ev)
		if err == nil {
			continue
		}
		if domain.IsKind(err, domain.ErrTemporary) {
			redeliver = err
			continue
		}
		slog.Error("completion event failed to correlate",
			"job_id", ev.JobID,
			"key", ev.Document.Key,
			"status", ev.Status,
			"error", err,
		)
	}
	return redeliver
}

func (uc *CorrelateCompletionUseCase) handleEvent(ctx context.Context, ev domain.CompletionEvent) error {
	// Same derivation as the dispatch side, starting from the same decoded
	// key bytes.
	key := domain.DecodeEventKey(ev.Document.Key)

	handle, err := uc.correlation.GetHandle(ctx, key)
	if err != nil {
		return fmt.Errorf("look up resumption handle: %w", err)
	}

	if ev.Status == domain.JobSucceeded {
		err = uc.instances.Resume(ctx, string(handle), ev.Raw)
	} else {
		err = uc.instances.Abort(ctx, string(handle), string(ev.Status), string(ev.Raw))
	}
	if err != nil {
		if domain.IsKind(err, domain.ErrAlreadyResolved) {
			// Redelivered notification for a settled instance.
			slog.Info("duplicate completion for resolved instance", "job_id", ev.JobID, "key", key)
			return nil
		}
		return fmt.Errorf("settle instance: %w", err)
	}

	slog.Info("settled instance for completed job", "job_id", ev.JobID, "key", key, "status", ev.Status)
	return nil
}
