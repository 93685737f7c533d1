package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/StacklokLabs/mkc/pkg/llm"
	"github.com/StacklokLabs/mkc/pkg/session"
)

const instrumentationName = "github.com/StacklokLabs/mkc/pkg/otel"

// ToolMiddleware returns a tool middleware that adds OpenTelemetry tracing
// and metrics around MCP tool invocations
func ToolMiddleware() session.ToolMiddleware {
	tracer := otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)

	requestCounter, _ := meter.Int64Counter("mkc.tool.requests",
		metric.WithDescription("Number of tool invocations"),
		metric.WithUnit("1"),
	)

	requestDuration, _ := meter.Float64Histogram("mkc.tool.duration",
		metric.WithDescription("Duration of tool invocations"),
		metric.WithUnit("ms"),
	)

	return func(next session.ToolInvoker) session.ToolInvoker {
		return func(ctx context.Context, name string, args map[string]any) (string, error) {
			start := time.Now()

			ctx, span := tracer.Start(ctx, "tool."+name,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("mcp.tool.name", name),
				),
			)
			defer span.End()

			result, err := next(ctx, name, args)

			duration := float64(time.Since(start).Milliseconds())
			attrs := []attribute.KeyValue{
				attribute.String("tool", name),
			}

			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				span.RecordError(err)
				attrs = append(attrs, attribute.Bool("error", true))
			} else {
				span.SetStatus(codes.Ok, "")
				attrs = append(attrs, attribute.Bool("error", false))
			}

			requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
			requestDuration.Record(ctx, duration, metric.WithAttributes(attrs...))

			return result, err
		}
	}
}

// instrumentedBackend wraps an LLM backend with tracing
type instrumentedBackend struct {
	backend llm.Backend
	model   string
	tracer  trace.Tracer
}

// InstrumentBackend wraps the backend so every completion request is traced
func InstrumentBackend(backend llm.Backend, model string) llm.Backend {
	return &instrumentedBackend{
		backend: backend,
		model:   model,
		tracer:  otel.Tracer(instrumentationName),
	}
}

func (b *instrumentedBackend) Name() string {
	return b.backend.Name()
}

func (b *instrumentedBackend) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) (*llm.Completion, error) {
	ctx, span := b.tracer.Start(ctx, "llm.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.backend", b.backend.Name()),
			attribute.String("llm.model", b.model),
			attribute.Int("llm.messages", len(messages)),
			attribute.Int("llm.tools", len(tools)),
		),
	)
	defer span.End()

	completion, err := b.backend.Complete(ctx, messages, tools)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.Int("llm.tool_calls", len(completion.ToolCalls)))
	return completion, nil
}
