package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/docpipe/internal/bootstrap"
	"github.com/avolkov/docpipe/internal/config"
	"github.com/avolkov/docpipe/internal/core/domain"
	"github.com/avolkov/docpipe/internal/observability/logging"
	"github.com/avolkov/docpipe/internal/observability/metrics"
)

const service = "orchestrator"

func main() {
	cfg := config.Load()
	logger := logging.Setup(service, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	m := metrics.NewPipelineMetrics(service)
	go serveMetrics(cfg.MetricsPort, m)
	go runSweeper(ctx, app, m)

	logger.Info("subscribed to triggers", "subject", cfg.TriggerSubject)
	err = app.Queue.SubscribeTriggers(ctx, func(handlerCtx context.Context, ev domain.TriggerEvent) error {
		triggerCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		m.StartTrigger()
		started := time.Now()
		handleErr := app.Engine.HandleTrigger(triggerCtx, ev)
		m.FinishTrigger(service, time.Since(started), handleErr)
		return handleErr
	})
	if err != nil {
		log.Fatalf("trigger subscribe error: %v", err)
	}
}

func serveMetrics(port string, m *metrics.PipelineMetrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Printf("metrics server error: %v", err)
	}
}

// runSweeper periodically force-aborts instances stuck past the suspension
// ceiling. Every orchestrator replica runs one; the sweep is a single UPDATE
// so overlapping runs settle each instance once.
func runSweeper(ctx context.Context, app *bootstrap.App, m *metrics.PipelineMetrics) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := app.Engine.SweepTimeouts(ctx)
			if err != nil {
				log.Printf("timeout sweep error: %v", err)
				continue
			}
			m.AddTimeoutAborts(service, swept)
		}
	}
}
