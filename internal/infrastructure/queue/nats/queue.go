package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/avolkov/docpipe/internal/core/domain"
	"github.com/avolkov/docpipe/internal/infrastructure/resilience"
)

// Queue carries trigger events and completion notifications over NATS core.
// Orchestrators and correlators each join a queue group, so a horizontally
// scaled deployment delivers every message to exactly one member per group.
type Queue struct {
	conn              *nats.Conn
	triggerSubject    string
	completionSubject string
	executor          *resilience.Executor
	logger            *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, triggerSubject, completionSubject string) (*Queue, error) {
	return NewWithOptions(url, triggerSubject, completionSubject, Options{})
}

func NewWithOptions(url, triggerSubject, completionSubject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("docpipe"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:              conn,
		triggerSubject:    triggerSubject,
		completionSubject: completionSubject,
		executor:          options.ResilienceExecutor,
		logger:            logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishTrigger(ctx context.Context, ev domain.TriggerEvent) error {
	if ev.DeliveryID == "" {
		ev.DeliveryID = uuid.NewString()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal trigger event: %w", err)
	}
	return q.publish(ctx, q.triggerSubject, payload)
}

func (q *Queue) PublishCompletion(ctx context.Context, ev domain.CompletionEvent) error {
	payload, err := encodeEnvelope(ev)
	if err != nil {
		return fmt.Errorf("marshal completion envelope: %w", err)
	}
	return q.publish(ctx, q.completionSubject, payload)
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func (q *Queue) SubscribeTriggers(ctx context.Context, handler func(context.Context, domain.TriggerEvent) error) error {
	return q.subscribe(ctx, q.triggerSubject, "orchestrators", func(handlerCtx context.Context, msg *nats.Msg) error {
		var ev domain.TriggerEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return fmt.Errorf("decode trigger event: %w", err)
		}
		return handler(handlerCtx, ev)
	})
}

func (q *Queue) SubscribeCompletions(ctx context.Context, handler func(context.Context, domain.CompletionEnvelope) error) error {
	return q.subscribe(ctx, q.completionSubject, "correlators", func(handlerCtx context.Context, msg *nats.Msg) error {
		envelope, err := decodeEnvelope(msg.Data)
		if err != nil {
			return err
		}
		return handler(handlerCtx, envelope)
	})
}

func (q *Queue) subscribe(ctx context.Context, subject, group string, handle func(context.Context, *nats.Msg) error) error {
	sub, err := q.conn.QueueSubscribe(subject, group, func(msg *nats.Msg) {
		if shuttingDown(ctx) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		err := q.consume(handlerCtx, subject, func(consumeCtx context.Context) error {
			return handle(consumeCtx, msg)
		})
		if err != nil {
			q.logger.Error("message handler failed after retries", "subject", subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// consume runs one message handler. Core NATS redelivers nothing, so an
// error return from a handler only means "try again" if the transport retries
// it here: temporary failures are re-run with backoff through the resilience
// executor before the message is given up on.
func (q *Queue) consume(ctx context.Context, subject string, handle func(context.Context) error) error {
	if q.executor == nil {
		return handle(ctx)
	}
	return q.executor.Execute(ctx, "nats.consume."+subject, handle, classifyHandlerError)
}

// shuttingDown reports whether the subscription context has ended, whether
// by cancellation or by deadline.
func shuttingDown(ctx context.Context) bool {
	return ctx.Err() != nil
}
