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

const service = "correlator"

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

	logger.Info("subscribed to completions", "subject", cfg.CompletionSubject)
	err = app.Queue.SubscribeCompletions(ctx, func(handlerCtx context.Context, env domain.CompletionEnvelope) error {
		envelopeCtx, cancel := context.WithTimeout(handlerCtx, time.Minute)
		defer cancel()

		handleErr := app.Correlator.HandleEnvelope(envelopeCtx, env)
		m.ObserveEnvelope(service, len(env.Events), handleErr)
		return handleErr
	})
	if err != nil {
		log.Fatalf("completion subscribe error: %v", err)
	}
}

func serveMetrics(port string, m *metrics.PipelineMetrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Printf("metrics server error: %v", err)
	}
}
