// Package otel provides OpenTelemetry tracing for workflow stages and
// generator calls.
package otel

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-kratos/caseflow"
	"github.com/go-kratos/caseflow/graph"
)

const (
	traceScope = "caseflow"
)

var (
	stageKey  = attribute.Key("caseflow.stage")
	branchKey = attribute.Key("caseflow.branch")
	fieldsKey = attribute.Key("caseflow.fields")
)

// TraceOption defines options for the tracing middlewares.
type TraceOption func(*tracing)

// tracing holds configuration for the tracing middlewares
type tracing struct {
	system string // e.g., "openai", "anthropic", "gemini"
	tracer trace.Tracer
}

// WithSystem sets the AI system name recorded on generator spans.
func WithSystem(system string) TraceOption {
	return func(t *tracing) {
		t.system = system
	}
}

// WithTracerProvider sets a custom TracerProvider for the tracing middleware
func WithTracerProvider(tr trace.TracerProvider) TraceOption {
	return func(t *tracing) {
		t.tracer = tr.Tracer(traceScope)
	}
}

func newTracing(opts []TraceOption) *tracing {
	t := &tracing{
		system: "_OTHER",
		tracer: otel.GetTracerProvider().Tracer(traceScope),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Tracing returns a stage middleware that opens one span per stage run,
// fan-out branches included.
func Tracing(opts ...TraceOption) graph.Middleware {
	t := newTracing(opts)
	return func(next graph.Handler) graph.Handler {
		return func(ctx context.Context, view graph.View) (graph.Update, error) {
			sc, ok := graph.FromStageContext(ctx)
			if !ok {
				return next(ctx, view)
			}
			ctx, span := t.tracer.Start(ctx, fmt.Sprintf("stage %s", sc.Name),
				trace.WithAttributes(
					stageKey.String(sc.Name),
					semconv.GenAIConversationID(sc.CaseID),
				),
			)
			if sc.Branch != "" {
				span.SetAttributes(branchKey.String(sc.Branch))
			}
			update, err := next(ctx, view)
			if err == nil {
				fields := make([]string, 0, len(update))
				for field := range update {
					fields = append(fields, field)
				}
				sort.Strings(fields)
				span.SetAttributes(fieldsKey.StringSlice(fields))
			}
			t.end(span, err)
			return update, err
		}
	}
}

// GeneratorTracing returns a generator middleware that records one client
// span per call.
func GeneratorTracing(opts ...TraceOption) caseflow.Middleware {
	t := newTracing(opts)
	return func(next caseflow.Generator) caseflow.Generator {
		return &caseflow.HandleFunc{
			ModelName: next.Name(),
			Handle: func(ctx context.Context, prompt *caseflow.Prompt) (string, error) {
				ctx, span := t.tracer.Start(ctx, fmt.Sprintf("chat %s", next.Name()),
					trace.WithSpanKind(trace.SpanKindClient),
					trace.WithAttributes(
						semconv.GenAIOperationNameChat,
						semconv.GenAISystemKey.String(t.system),
						semconv.GenAIRequestModel(next.Name()),
					),
				)
				// if a stage is running, link the span to the case
				if sc, ok := graph.FromStageContext(ctx); ok {
					span.SetAttributes(
						semconv.GenAIConversationID(sc.CaseID),
						stageKey.String(sc.Name),
					)
				}
				text, err := next.Generate(ctx, prompt)
				t.end(span, err)
				return text, err
			},
		}
	}
}

func (t *tracing) end(span trace.Span, err error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
}
