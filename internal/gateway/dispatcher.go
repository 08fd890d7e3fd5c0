package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nulzo/llm-gateway/internal/analytics"
	"github.com/nulzo/llm-gateway/internal/httpclient"
	"github.com/nulzo/llm-gateway/internal/llm"
	"github.com/nulzo/llm-gateway/internal/store/model"
	"github.com/nulzo/llm-gateway/pkg/api"
)

const (
	maxAttempts    = 3
	initialBackoff = 1 * time.Second
	backoffCeiling = 8 * time.Second
)

// Dispatcher routes one caller invocation to the right client handle,
// applying bounded retry with exponential backoff and, for non-streaming
// calls only, ordered backup failover.
type Dispatcher struct {
	pool     *ClientPool
	logger   *zap.Logger
	ingestor analytics.Ingestor // nil disables persistence
	limits   *modelLimiters
	tracer   trace.Tracer

	// sleep is a seam so tests do not wait out real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(pool *ClientPool, ingestor analytics.Ingestor, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		pool:     pool,
		logger:   logger,
		ingestor: ingestor,
		limits:   newModelLimiters(pool.models),
		tracer:   otel.Tracer("llm-gateway"),
		sleep:    sleepCtx,
	}
}

func nextBackoff(wait time.Duration) time.Duration {
	wait *= 2
	if wait > backoffCeiling {
		wait = backoffCeiling
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// payload builds the unified request for one invocation: the prompt as a
// single user message plus the model's generation parameters. Family
// adapters do the wire-level shaping from here.
func (d *Dispatcher) payload(req *api.DispatchRequest) *api.ChatRequest {
	cfg, _ := d.pool.Config(req.Model)
	return &api.ChatRequest{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Messages: []api.ChatMessage{
			{Role: string(api.User), Content: req.Prompt},
		},
	}
}

// Chat performs one non-streaming invocation: up to maxAttempts tries
// against the primary with exponential backoff on transient failures, then
// one try per backup endpoint in order. Every attempt is logged and
// recorded.
func (d *Dispatcher) Chat(ctx context.Context, req *api.DispatchRequest) (string, error) {
	ctx, span := d.tracer.Start(ctx, "gateway.chat",
		trace.WithAttributes(attribute.String("gateway.model", req.Model)))
	defer span.End()

	client, err := d.pool.GetOrCreate(req.Model)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	cfg, _ := d.pool.Config(req.Model)
	creq := d.payload(req)
	invocation := uuid.NewString()

	var lastErr error
	wait := initialBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := d.limits.wait(ctx, req.Model); err != nil {
			return "", err
		}

		start := time.Now()
		text, err := d.try(ctx, client, creq, cfg.Timeout)
		d.observe(invocation, req.Model, attempt, "primary", false, start, err)
		if err == nil {
			span.SetAttributes(attribute.Int("gateway.attempts", attempt))
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !transient(err) {
			// terminal on this endpoint; go straight to failover
			break
		}
		if attempt < maxAttempts {
			if err := d.sleep(ctx, wait); err != nil {
				return "", err
			}
			wait = nextBackoff(wait)
		}
	}

	// Ordered failover, one attempt per backup: nested retry here would
	// multiply worst-case latency by the backup count.
	for index := 0; ; index++ {
		backup, err := d.pool.CreateBackup(req.Model, index)
		if err != nil {
			if api.IsKind(err, api.KindNoBackupAvailable) {
				break
			}
			lastErr = err
			continue
		}

		if err := d.limits.wait(ctx, req.Model); err != nil {
			return "", err
		}

		class := fmt.Sprintf("backup-%d", index)
		start := time.Now()
		text, err := d.try(ctx, backup, creq, cfg.Timeout)
		d.observe(invocation, req.Model, 1, class, false, start, err)
		if err == nil {
			span.SetAttributes(attribute.String("gateway.endpoint", class))
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	final := api.E(api.KindAllEndpointsExhausted, req.Model, lastErr)
	span.RecordError(final)
	return "", final
}

func (d *Dispatcher) try(ctx context.Context, client llm.Provider, creq *api.ChatRequest, timeout time.Duration) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.Chat(cctx, creq)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// observe emits the required per-attempt record: structured log line plus,
// when persistence is wired, an analytics row.
func (d *Dispatcher) observe(invocation, modelName string, attempt int, class string, streamed bool, start time.Time, err error) {
	elapsed := time.Since(start)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}

	fields := []zap.Field{
		zap.String("invocation_id", invocation),
		zap.String("model", modelName),
		zap.Int("attempt", attempt),
		zap.String("endpoint", class),
		zap.Bool("streamed", streamed),
		zap.Duration("elapsed", elapsed),
		zap.String("outcome", outcome),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
		d.logger.Warn("Upstream attempt failed", fields...)
	} else {
		d.logger.Info("Upstream attempt succeeded", fields...)
	}

	if d.ingestor == nil {
		return
	}
	record := &model.Attempt{
		ID:            uuid.NewString(),
		InvocationID:  invocation,
		Model:         modelName,
		Attempt:       attempt,
		EndpointClass: class,
		Streamed:      streamed,
		Outcome:       outcome,
		ElapsedMS:     elapsed.Milliseconds(),
		CreatedAt:     time.Now(),
	}
	if err != nil {
		record.ErrorKind = string(api.KindOf(err))
		record.Detail = err.Error()
	}
	d.ingestor.Record(record)
}

// transient reports whether a failure is worth another attempt: timeouts,
// connection-level drops, and 5xx/429 upstream responses. Caller
// cancellation and 4xx-class responses are not.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var up *httpclient.UpstreamError
	if errors.As(err, &up) {
		return up.Transient()
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET)
}
