package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultTaskTimeout bounds a single upstream call.
const DefaultTaskTimeout = 90 * time.Second

// Generator performs one upstream image generation call.
// It returns *UpstreamError for non-success statuses and *NoImageError when the
// response carried no image part.
type Generator interface {
	Generate(ctx context.Context, task Task, creds Credentials) (*Image, error)
}

// Orchestrator runs tasks against a Generator one at a time.
type Orchestrator struct {
	gen     Generator
	timeout time.Duration
	logger  *zap.Logger
	tracer  trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTaskTimeout sets the per-task upstream timeout. Non-positive values are ignored.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an orchestrator over gen.
func NewOrchestrator(gen Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:     gen,
		timeout: DefaultTaskTimeout,
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("github.com/benvon/product-studio/internal/generation"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run validates creds and then executes tasks sequentially in order. A failed task is
// recorded in its Result and does not stop the batch. The returned error is non-nil only
// when the credential check fails, in which case no upstream call is made.
func (o *Orchestrator) Run(ctx context.Context, tasks []Task, creds Credentials) ([]Result, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "generation.batch",
		trace.WithAttributes(attribute.Int("generation.tasks", len(tasks))),
	)
	defer span.End()

	results := make([]Result, len(tasks))
	failed := 0
	for i, task := range tasks {
		results[i] = o.runTask(ctx, i, task, creds)
		if results[i].Status == StatusFailed {
			failed++
		}
	}

	span.SetAttributes(attribute.Int("generation.failed", failed))
	if failed > 0 {
		o.logger.Info("generation_batch_partial_failure",
			zap.Int("tasks", len(tasks)),
			zap.Int("failed", failed),
		)
	}
	return results, nil
}

// RunOne is Run for a single task.
func (o *Orchestrator) RunOne(ctx context.Context, task Task, creds Credentials) (Result, error) {
	results, err := o.Run(ctx, []Task{task}, creds)
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

func (o *Orchestrator) runTask(ctx context.Context, index int, task Task, creds Credentials) Result {
	ctx, span := o.tracer.Start(ctx, "generation.task",
		trace.WithAttributes(
			attribute.Int("generation.index", index),
			attribute.String("generation.label", task.Label),
			attribute.Int("generation.images", len(task.Images)),
			attribute.String("generation.size", task.Size.String()),
		),
	)
	defer span.End()

	result := Result{Label: task.Label, Status: StatusPending}

	taskCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	img, err := o.gen.Generate(taskCtx, task, creds)
	if err == nil && (img == nil || len(img.Data) == 0) {
		text := ""
		if img != nil {
			text = img.Text
		}
		err = &NoImageError{Text: text}
	}
	if err != nil {
		// the parent context's cancellation wins over our own deadline
		if ctx.Err() != nil {
			err = ctx.Err()
		} else if taskCtx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		gerr := Classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(gerr.Code))
		o.logger.Warn("generation_task_failed",
			zap.String("label", task.Label),
			zap.Int("index", index),
			zap.String("code", string(gerr.Code)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		result.Status = StatusFailed
		result.Error = gerr.Code
		result.Message = gerr.Message
		result.Debug = gerr.Debug
		return result
	}

	o.logger.Debug("generation_task_succeeded",
		zap.String("label", task.Label),
		zap.Int("index", index),
		zap.Int("bytes", len(img.Data)),
		zap.Duration("duration", time.Since(start)),
	)
	result.Status = StatusSucceeded
	result.Success = true
	result.ImageURL = img.DataURI()
	return result
}
