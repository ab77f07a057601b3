package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/infrastructure/resilience"
)

const (
	DefaultSubject = "retrieval.completed"
	eventType      = "retrieval.completed"
)

// RunEvent is the wire payload of a finished retrieval run.
type RunEvent struct {
	Type       string              `json:"type"`
	OccurredAt time.Time           `json:"occurred_at"`
	Run        domain.RetrievalRun `json:"run"`
}

// Publishes fail fast while the connection is down or reconnecting.
var classifyPublishError = resilience.Classifier(
	resilience.RetryOn(nats.ErrNoServers, nats.ErrTimeout, nats.ErrConnectionClosed, nats.ErrDisconnected),
)

type Publisher struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func NewPublisher(url, subject string, options Options) (*Publisher, error) {
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
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(
		url,
		nats.Name("safety-report-retrieval"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func (p *Publisher) PublishRetrievalCompleted(ctx context.Context, run domain.RetrievalRun) error {
	payload, err := encodeRunEvent(run, time.Now())
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := p.conn.Publish(p.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if p.executor != nil {
		err = p.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	return resilience.Temporary("nats publish", err, classifyPublishError)
}

// SubscribeRetrievalCompleted blocks until ctx is done, then drains.
// Malformed messages are logged and skipped.
func (p *Publisher) SubscribeRetrievalCompleted(ctx context.Context, handler func(context.Context, RunEvent) error) error {
	sub, err := p.conn.Subscribe(p.subject, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		event, err := decodeRunEvent(msg.Data)
		if err != nil {
			p.logger.Warn("nats_event_decode_failed", "error", err)
			return
		}
		if err := handler(ctx, event); err != nil {
			p.logger.Error("nats_event_handler_failed", "run_id", event.Run.ID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := p.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	return nil
}

func encodeRunEvent(run domain.RetrievalRun, at time.Time) ([]byte, error) {
	payload, err := json.Marshal(RunEvent{Type: eventType, OccurredAt: at.UTC(), Run: run})
	if err != nil {
		return nil, fmt.Errorf("marshal retrieval event: %w", err)
	}
	return payload, nil
}

func decodeRunEvent(data []byte) (RunEvent, error) {
	var event RunEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return RunEvent{}, fmt.Errorf("unmarshal retrieval event: %w", err)
	}
	if event.Type != eventType || event.Run.ID == "" {
		return RunEvent{}, fmt.Errorf("unexpected retrieval event type=%q run_id=%q", event.Type, event.Run.ID)
	}
	return event, nil
}
