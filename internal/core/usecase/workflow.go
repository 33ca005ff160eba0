package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/avolkov/docpipe/internal/core/domain"
	"github.com/avolkov/docpipe/internal/core/ports"
)

// WorkflowConfig bounds the engine's fan-out to rate-limited external
// services. Excess triggers queue on the semaphores, they are never dropped.
type WorkflowConfig struct {
	ClassifyConcurrency int64
	DispatchConcurrency int64
	// SuspendTTL is the ceiling on how long an instance may stay
	// suspended before the sweeper force-aborts it.
	SuspendTTL time.Duration
}

type WorkflowEngineUseCase struct {
	instances  ports.InstanceRepository
	classifier ports.ClassificationStage
	dispatcher ports.DispatchStage
	cfg        WorkflowConfig

	classifySem *semaphore.Weighted
	dispatchSem *semaphore.Weighted
}

func NewWorkflowEngineUseCase(
	instances ports.InstanceRepository,
	classifier ports.ClassificationStage,
	dispatcher ports.DispatchStage,
	cfg WorkflowConfig,
) *WorkflowEngineUseCase {
	if cfg.ClassifyConcurrency <= 0 {
		cfg.ClassifyConcurrency = 10
	}
	if cfg.DispatchConcurrency <= 0 {
		cfg.DispatchConcurrency = 10
	}
	if cfg.SuspendTTL <= 0 {
		cfg.SuspendTTL = 24 * time.Hour
	}
	return &WorkflowEngineUseCase{
		instances:   instances,
		classifier:  classifier,
		dispatcher:  dispatcher,
		cfg:         cfg,
		classifySem: semaphore.NewWeighted(cfg.ClassifyConcurrency),
		dispatchSem: semaphore.NewWeighted(cfg.DispatchConcurrency),
	}
}

// HandleTrigger runs one instance from trigger to suspension (or a terminal
// skip). A stage failure settles the instance as aborted with the failure
// recorded, then propagates; no failure leaves an instance stranded in a
// non-terminal state. Redelivered triggers resolve to the existing instance
// by name: settled or suspended instances treat redelivery as a benign
// duplicate, while an instance caught mid-flight is re-run from
// classification, which is safe because classification is pure and dispatch
// is idempotent on the request id.
func (e *WorkflowEngineUseCase) HandleTrigger(ctx context.Context, ev domain.TriggerEvent) error {
	inst := domain.NewInstance(ev)
	created, err := e.instances.Create(ctx, inst)
	if err != nil {
		return fmt.Errorf("create workflow instance: %w", err)
	}
	if !created {
		existing, err := e.instances.GetByName(ctx, ev.DeliveryID)
		if err != nil {
			return fmt.Errorf("load existing instance %s: %w", ev.DeliveryID, err)
		}
		if existing.State.Terminal() || existing.State == domain.StateSuspended {
			slog.Info("duplicate trigger for settled instance",
				"instance", existing.ID, "state", existing.State)
			return nil
		}
		inst = existing
	}

	if err := e.instances.SetState(ctx, inst.ID, domain.StateClassifying); err != nil {
		return fmt.Errorf("enter classifying state: %w", err)
	}
	cls, err := e.classifyBounded(ctx, ev)
	if err != nil {
		e.failInstance(ctx, inst.ID, domain.AbortCodeClassification, err)
		return fmt.Errorf("classification stage: %w", err)
	}
	if err := e.instances.SaveClassification(ctx, inst.ID, cls); err != nil {
		return fmt.Errorf("save classification: %w", err)
	}

	if err := e.instances.SetState(ctx, inst.ID, domain.StateBranching); err != nil {
		return fmt.Errorf("enter branching state: %w", err)
	}
	feature, ok := domain.FeatureForLabel(cls.Label)
	if !ok {
		if err := e.instances.SetState(ctx, inst.ID, domain.StateSkipped); err != nil {
			return fmt.Errorf("enter skipped state: %w", err)
		}
		slog.Info("no extraction for label", "instance", inst.ID, "label", cls.Label)
		return nil
	}

	if err := e.instances.SetState(ctx, inst.ID, domain.StateDispatching); err != nil {
		return fmt.Errorf("enter dispatching state: %w", err)
	}
	// The substrate mints the handle before the dispatch call sees it; the
	// instance is resumable from the moment the handle hits the
	// correlation store.
	handle, err := e.instances.Suspend(ctx, inst.ID, feature)
	if err != nil {
		return fmt.Errorf("suspend instance: %w", err)
	}

	jobID, err := e.dispatchBounded(ctx, domain.DispatchCommand{
		Feature: feature,
		Handle:  handle,
		Trigger: ev,
	})
	if err != nil {
		// The instance is already suspended on the minted handle, so it
		// gets settled through the same path a FAILED notification takes.
		if abortErr := e.instances.Abort(ctx, handle, domain.AbortCodeDispatch, err.Error()); abortErr != nil {
			slog.Error("failed to abort instance after dispatch failure",
				"instance", inst.ID, "error", abortErr)
		}
		return fmt.Errorf("dispatch stage: %w", err)
	}

	slog.Info("instance suspended awaiting extraction",
		"instance", inst.ID, "feature", feature, "job_id", jobID)
	return nil
}

// SweepTimeouts settles instances that have exceeded the suspension ceiling,
// protecting against jobs whose completion notification is lost entirely.
func (e *WorkflowEngineUseCase) SweepTimeouts(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-e.cfg.SuspendTTL)
	n, err := e.instances.SweepExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep expired suspensions: %w", err)
	}
	if n > 0 {
		slog.Warn("force-aborted timed out instances", "count", n, "ceiling", e.cfg.SuspendTTL)
	}
	return n, nil
}

// failInstance records a stage failure as a terminal abort. The stage error
// itself still propagates to the caller; this only guarantees the failure is
// visible on the instance.
func (e *WorkflowEngineUseCase) failInstance(ctx context.Context, id, code string, cause error) {
	if err := e.instances.Fail(ctx, id, code, cause.Error()); err != nil {
		slog.Error("failed to record stage failure", "instance", id, "code", code, "error", err)
	}
}

func (e *WorkflowEngineUseCase) classifyBounded(ctx context.Context, ev domain.TriggerEvent) (domain.Classification, error) {
	if err := e.classifySem.Acquire(ctx, 1); err != nil {
		return domain.Classification{}, err
	}
	defer e.classifySem.Release(1)
	return e.classifier.ClassifyFirstPage(ctx, ev)
}

func (e *WorkflowEngineUseCase) dispatchBounded(ctx context.Context, cmd domain.DispatchCommand) (string, error) {
	if err := e.dispatchSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer e.dispatchSem.Release(1)
	return e.dispatcher.Dispatch(ctx, cmd)
}
