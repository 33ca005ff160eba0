package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/avolkov/docpipe/internal/core/domain"
	"github.com/avolkov/docpipe/internal/core/ports"
)

type StartExtractionUseCase struct {
	correlation  ports.CorrelationStore
	extraction   ports.ExtractionService
	output       domain.OutputTarget
	notification domain.NotificationTarget
}

func NewStartExtractionUseCase(
	correlation ports.CorrelationStore,
	extraction ports.ExtractionService,
	output domain.OutputTarget,
	notification domain.NotificationTarget,
) *StartExtractionUseCase {
	return &StartExtractionUseCase{
		correlation:  correlation,
		extraction:   extraction,
		output:       output,
		notification: notification,
	}
}

// Dispatch starts one extraction job per supported record in the trigger
// batch. The resumption handle is written to the correlation store before
// each job start: a job must never exist without its handle already durable,
// or a fast completion could arrive with nothing to correlate against. The
// record's request id is the job's idempotency key, so a redelivered trigger
// re-starts no jobs. Returns the first started job id, for logging only.
func (uc *StartExtractionUseCase) Dispatch(ctx context.Context, cmd domain.DispatchCommand) (string, error) {
	var jobID string
	for _, rec := range cmd.Trigger.Records {
		key := domain.DecodeEventKey(rec.Document.Key)
		if !domain.SupportedFile(key) {
			slog.Warn("skipping unsupported file type", "key", key)
			continue
		}

		if err := uc.correlation.PutHandle(ctx, key, []byte(cmd.Handle)); err != nil {
			return "", fmt.Errorf("persist resumption handle for %s: %w", key, err)
		}

		started, err := uc.extraction.StartJob(ctx, domain.ExtractionRequest{
			Document: domain.DocumentRef{
				Bucket:  rec.Document.Bucket,
				Key:     key,
				Version: rec.Document.Version,
			},
			Feature:        cmd.Feature,
			IdempotencyKey: rec.RequestID,
			Output:         uc.output,
			Notification:   uc.notification,
		})
		if err != nil {
			return "", fmt.Errorf("start %s extraction job for %s: %w", cmd.Feature, key, err)
		}

		slog.Info("started extraction job", "job_id", started, "key", key, "feature", cmd.Feature)
		if jobID == "" {
			jobID = started
		}
	}
	return jobID, nil
}
