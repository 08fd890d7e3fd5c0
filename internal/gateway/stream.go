package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nulzo/llm-gateway/pkg/api"
)

// Stream performs one streaming invocation. Streaming is never retried and
// never fails over to a backup: once fragments may have reached the caller,
// switching upstream source would silently duplicate or corrupt output. A
// failure before the first fragment surfaces immediately; a later failure
// terminates the sequence with an error signal the consumer can observe.
func (d *Dispatcher) Stream(ctx context.Context, req *api.DispatchRequest) (*api.FragmentSequence, error) {
	ctx, span := d.tracer.Start(ctx, "gateway.stream",
		trace.WithAttributes(attribute.String("gateway.model", req.Model)))

	client, err := d.pool.GetOrCreate(req.Model)
	if err != nil {
		span.RecordError(err)
		span.End()
		return nil, err
	}
	if err := d.limits.wait(ctx, req.Model); err != nil {
		span.End()
		return nil, err
	}

	creq := d.payload(req)
	creq.Stream = true

	sctx, cancel := context.WithCancel(ctx)
	invocation := uuid.NewString()
	start := time.Now()

	src, err := client.Stream(sctx, creq)
	if err != nil {
		cancel()
		wrapped := api.E(api.KindUpstreamStreamFailed, req.Model, err)
		d.observe(invocation, req.Model, 1, "primary", true, start, wrapped)
		span.RecordError(wrapped)
		span.End()
		return nil, wrapped
	}

	return d.normalize(sctx, req.Model, src, cancel, func(fragments int, err error) {
		d.observe(invocation, req.Model, 1, "primary", true, start, err)
		if err != nil {
			span.RecordError(err)
		}
		span.SetAttributes(attribute.Int("gateway.fragments", fragments))
		span.End()
	}), nil
}

// normalize converts an adapter's native stream into the uniform fragment
// sequence: non-empty delta text in upstream order, channel close for
// exhaustion, a final error fragment for failure. done runs exactly once
// when the sequence terminates or is abandoned.
func (d *Dispatcher) normalize(ctx context.Context, modelName string, src <-chan api.StreamResult, cancel func(), done func(fragments int, err error)) *api.FragmentSequence {
	out := make(chan api.Fragment)

	go func() {
		defer close(out)
		count := 0
		var termErr error

	loop:
		for res := range src {
			if res.Err != nil {
				termErr = api.E(api.KindUpstreamStreamFailed, modelName, res.Err)
				select {
				case out <- api.Fragment{Err: termErr}:
				case <-ctx.Done():
				}
				break loop
			}

			var text string
			if res.Response != nil {
				text = res.Response.DeltaText()
			}
			if text == "" {
				// structural frames (usage, finish markers) carry no text
				continue
			}

			select {
			case out <- api.Fragment{Text: text}:
				count++
			case <-ctx.Done():
				break loop
			}
		}
		done(count, termErr)
	}()

	return api.NewFragmentSequence(out, cancel)
}
