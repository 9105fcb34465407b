package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/resilience"
)

const (
	DefaultSubject     = "evidence.uploaded"
	DefaultConcurrency = 4

	workerQueueGroup = "evidence-workers"
)

// Queue publishes evidence lifecycle events and feeds them to workers.
type Queue struct {
	conn        *nats.Conn
	subject     string
	concurrency int
	executor    *resilience.Executor
	logger      *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	// HandlerConcurrency bounds how many events one subscriber handles at once.
	HandlerConcurrency int
	ResilienceExecutor *resilience.Executor
	Logger               *slog.Logger
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
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
	if subject == "" {
		subject = DefaultSubject
	}
	concurrency := options.HandlerConcurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("evidence-vault"),
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
	return &Queue{
		conn:        conn,
		subject:     subject,
		concurrency: concurrency,
		executor:    options.ResilienceExecutor,
		logger:      logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishEvidenceUploaded(ctx context.Context, event domain.UploadedEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		return q.conn.Publish(q.subject, payload)
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish."+q.subject, call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return publishError(q.subject, event, err)
	}
	return nil
}

// SubscribeEvidenceUploaded blocks until ctx ends. Events are handed to a
// bounded pool of handlers; when every slot is busy the NATS dispatcher waits,
// so the rest of the queue group picks up the backlog. Workers share one queue
// group so every event is handled once.
func (q *Queue) SubscribeEvidenceUploaded(ctx context.Context, handler func(context.Context, domain.UploadedEvent) error) error {
	pool := newHandlerPool(ctx, q.concurrency, handler, q.logger)
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		pool.dispatch(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	drainErr := sub.Drain()
	pool.wait()
	if drainErr != nil {
		return fmt.Errorf("nats drain subscription: %w", drainErr)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

type handlerPool struct {
	ctx     context.Context
	slots   chan struct{}
	handler func(context.Context, domain.UploadedEvent) error
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func newHandlerPool(ctx context.Context, size int, handler func(context.Context, domain.UploadedEvent) error, logger *slog.Logger) *handlerPool {
	return &handlerPool{
		ctx:     ctx,
		slots:   make(chan struct{}, max(size, 1)),
		handler: handler,
		logger:  logger,
	}
}

// dispatch decodes one message and runs the handler on a free slot. It blocks
// while all slots are taken and drops the message once ctx is done.
func (p *handlerPool) dispatch(data []byte) {
	event, err := decodeEvent(data)
	if err != nil {
		p.logger.Warn("nats_event_decode_failed", "error", err)
		return
	}
	select {
	case p.slots <- struct{}{}:
	case <-p.ctx.Done():
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.slots }()
		if err := p.handler(p.ctx, event); err != nil {
			p.logger.Error("worker_handler_failed", "vault_id", event.VaultID, "evidence_id", event.EvidenceID, "error", err)
		}
	}()
}

func (p *handlerPool) wait() {
	p.wg.Wait()
}

// classifyPublishError separates broker outages, which are retried and count
// against the breaker, from malformed publishes, which never succeed on retry
// and say nothing about broker health.
func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case errors.Is(err, nats.ErrMaxPayload), errors.Is(err, nats.ErrBadSubject), errors.Is(err, nats.ErrInvalidMsg):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, nats.ErrReconnectBufExceeded),
		errors.Is(err, nats.ErrDisconnected):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// publishError names the event that could not be announced. Broker outages
// become ErrTemporary so callers can treat the event as deferred.
func publishError(subject string, event domain.UploadedEvent, err error) error {
	err = fmt.Errorf("publish %s for evidence %s in vault %s: %w", subject, event.EvidenceID, event.VaultID, err)
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyPublishError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	}
	return err
}

func encodeEvent(event domain.UploadedEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal uploaded event: %w", err)
	}
	return payload, nil
}

func decodeEvent(data []byte) (domain.UploadedEvent, error) {
	var event domain.UploadedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.UploadedEvent{}, fmt.Errorf("unmarshal uploaded event: %w", err)
	}
	if event.VaultID == "" || event.EvidenceID == "" {
		return domain.UploadedEvent{}, fmt.Errorf("uploaded event without vault or evidence id")
	}
	return event, nil
}
