package bootstrap

import (
	"context"
	"fmt"

	"github.com/avolkov/docpipe/internal/config"
	"github.com/avolkov/docpipe/internal/core/domain"
	"github.com/avolkov/docpipe/internal/core/ports"
	"github.com/avolkov/docpipe/internal/core/usecase"
	"github.com/avolkov/docpipe/internal/infrastructure/correlation"
	"github.com/avolkov/docpipe/internal/infrastructure/docai"
	"github.com/avolkov/docpipe/internal/infrastructure/extraction"
	natsqueue "github.com/avolkov/docpipe/internal/infrastructure/queue/nats"
	"github.com/avolkov/docpipe/internal/infrastructure/render"
	"github.com/avolkov/docpipe/internal/infrastructure/repository/postgres"
	"github.com/avolkov/docpipe/internal/infrastructure/resilience"
	"github.com/avolkov/docpipe/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config

	Queue      *natsqueue.Queue
	Objects    ports.ObjectStore
	Instances  ports.InstanceRepository
	Engine     ports.WorkflowEngine
	Correlator ports.CompletionCorrelator

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	instances := postgres.NewInstanceRepository(db)
	if err := instances.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	objects, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.TriggerSubject, cfg.CompletionSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	docaiClient := docai.New(cfg.DocAIURL, executor)
	detector := docai.NewDetector(docaiClient)
	classifier := docai.NewClassifier(docaiClient)
	renderer := render.New(cfg.RenderURL, executor)
	extractor := extraction.New(cfg.ExtractionURL, cfg.JobStartsPerSecond, executor)
	handles := correlation.New(objects, cfg.DestinationBucket)

	classifyUC := usecase.NewClassifyFirstPageUseCase(objects, renderer, detector, classifier)
	dispatchUC := usecase.NewStartExtractionUseCase(
		handles,
		extractor,
		domain.OutputTarget{Bucket: cfg.DestinationBucket, Prefix: cfg.OutputPrefix},
		domain.NotificationTarget{Subject: cfg.CompletionSubject, Role: cfg.NotificationRole},
	)
	engine := usecase.NewWorkflowEngineUseCase(instances, classifyUC, dispatchUC, usecase.WorkflowConfig{
		ClassifyConcurrency: cfg.ClassifyConcurrency,
		DispatchConcurrency: cfg.DispatchConcurrency,
		SuspendTTL:          cfg.SuspendTTL,
	})
	correlator := usecase.NewCorrelateCompletionUseCase(handles, instances)

	return &App{
		Config: cfg,

		Queue:      queue,
		Objects:    objects,
		Instances:  instances,
		Engine:     engine,
		Correlator: correlator,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
