package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-kratos/kit/retry"
	openaiopt "github.com/openai/openai-go/v2/option"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"

	"github.com/go-kratos/caseflow"
	"github.com/go-kratos/caseflow/complaint"
	"github.com/go-kratos/caseflow/contrib/anthropic"
	"github.com/go-kratos/caseflow/contrib/gemini"
	"github.com/go-kratos/caseflow/contrib/openai"
	tracing "github.com/go-kratos/caseflow/contrib/otel"
	s3store "github.com/go-kratos/caseflow/contrib/s3"
	"github.com/go-kratos/caseflow/graph"
	"github.com/go-kratos/caseflow/middleware"
	"github.com/go-kratos/caseflow/store"
)

// configKey maps a flag name to its viper key, so --s3-bucket is read from
// CASEFLOW_S3_BUCKET.
func configKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// newLogger creates a logger writing to w at the given level and format.
func newLogger(levelStr, formatStr string, w io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler

	if formatStr == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return slog.New(handler)
}

func newGenerator(ctx context.Context) (caseflow.Generator, error) {
	model := viper.GetString("model")
	apiKey := viper.GetString("api_key")
	baseURL := viper.GetString("base_url")
	switch provider := viper.GetString("provider"); provider {
	case "openai":
		var opts []openaiopt.RequestOption
		if apiKey != "" {
			opts = append(opts, openaiopt.WithAPIKey(apiKey))
		}
		if baseURL != "" {
			opts = append(opts, openaiopt.WithBaseURL(baseURL))
		}
		return openai.NewGenerator(model, openai.WithTemperature(0), openai.WithRequestOptions(opts...)), nil
	case "anthropic":
		var opts []anthropicopt.RequestOption
		if apiKey != "" {
			opts = append(opts, anthropicopt.WithAPIKey(apiKey))
		}
		if baseURL != "" {
			opts = append(opts, anthropicopt.WithBaseURL(baseURL))
		}
		return anthropic.NewGenerator(model, anthropic.WithTemperature(0), anthropic.WithRequestOptions(opts...)), nil
	case "gemini":
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		var zero float32
		return gemini.NewGenerator(ctx, model, gemini.Config{APIKey: apiKey, BaseURL: baseURL, Temperature: &zero})
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// stores holds the persistence chosen by --store.
type stores struct {
	cases       caseflow.CaseStore
	checkpoints graph.CheckpointSink
}

func newStores(ctx context.Context) (*stores, error) {
	switch kind := viper.GetString("store"); kind {
	case "memory":
		s := &stores{cases: store.NewMemory()}
		if viper.GetBool("checkpoints") {
			s.checkpoints = store.NewCheckpoints()
		}
		return s, nil
	case "s3":
		bucket := viper.GetString("s3_bucket")
		if bucket == "" {
			return nil, errors.New("--s3-bucket is required with --store=s3")
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		prefix := s3store.WithPrefix(viper.GetString("s3_prefix"))
		s := &stores{cases: s3store.NewCaseStoreFromConfig(bucket, cfg, prefix)}
		if viper.GetBool("checkpoints") {
			s.checkpoints = s3store.NewCheckpointSinkFromConfig(bucket, cfg, prefix)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}

// retryable reports whether a failed call may be attempted again.
func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// stageOptions returns the graph options for the workflow. Stage retries
// re-run a whole stage, on top of the per-call generator retries.
func stageOptions(maxConcurrency, stageRetries int, checkpoints graph.CheckpointSink) []graph.Option {
	opts := []graph.Option{graph.WithMaxConcurrency(maxConcurrency)}
	if checkpoints != nil {
		opts = append(opts, graph.WithCheckpointSink(checkpoints))
	}
	if stageRetries > 1 {
		opts = append(opts, graph.WithMiddleware(graph.Retry(stageRetries, retry.WithRetryable(retryable))))
	}
	return opts
}

// app is everything a command needs to run cases.
type app struct {
	logger   *slog.Logger
	stores   *stores
	executor *graph.Executor
	shutdown func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	logger := newLogger(viper.GetString("log_level"), viper.GetString("log_format"), os.Stderr)
	gen, err := newGenerator(ctx)
	if err != nil {
		return nil, err
	}
	s, err := newStores(ctx)
	if err != nil {
		return nil, err
	}
	a := &app{
		logger:   logger,
		stores:   s,
		shutdown: func(context.Context) error { return nil },
	}
	graphOpts := stageOptions(viper.GetInt("max_concurrency"), viper.GetInt("stage_retries"), s.checkpoints)
	middlewares := []caseflow.Middleware{
		middleware.Logging(logger),
		middleware.Retry(viper.GetInt("retries"), retry.WithRetryable(retryable)),
	}
	if viper.GetBool("trace") {
		tp, err := newTracerProvider(ctx)
		if err != nil {
			return nil, err
		}
		a.shutdown = tp.Shutdown
		graphOpts = append(graphOpts, graph.WithMiddleware(tracing.Tracing(tracing.WithTracerProvider(tp))))
		middlewares = append([]caseflow.Middleware{
			tracing.GeneratorTracing(tracing.WithTracerProvider(tp), tracing.WithSystem(viper.GetString("provider"))),
		}, middlewares...)
	}
	a.executor, err = complaint.NewWorkflow(gen,
		complaint.WithLogger(logger),
		complaint.WithMiddleware(middlewares...),
		complaint.WithGraphOptions(graphOpts...),
	)
	if err != nil {
		return nil, fmt.Errorf("compile workflow: %w", err)
	}
	return a, nil
}

func newTracerProvider(ctx context.Context) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String("caseflow"),
			semconv.ServiceVersionKey.String(caseflow.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}
