package imagegen

import (
	"context"
	"fmt"
	"net/http"

	"github.com/benvon/product-studio/internal/generation"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	TransportREST = "rest"
	TransportSDK  = "sdk"
)

// Options selects and configures a transport.
type Options struct {
	Transport  string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	// RequestsPerSecond paces upstream calls process-wide; zero disables pacing.
	RequestsPerSecond float64
	Debug             bool
}

// New returns the generator for opts.Transport, wrapped in a pacer when configured.
func New(opts Options, logger *zap.Logger) (generation.Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var gen generation.Generator
	switch opts.Transport {
	case "", TransportREST:
		gen = NewRESTGenerator(opts.BaseURL, opts.Model, opts.HTTPClient, logger, opts.Debug)
	case TransportSDK:
		gen = NewSDKGenerator(opts.BaseURL, opts.Model, opts.HTTPClient, logger)
	default:
		return nil, fmt.Errorf("unsupported image transport %q", opts.Transport)
	}

	if opts.RequestsPerSecond > 0 {
		gen = NewPaced(gen, opts.RequestsPerSecond)
	}
	logger.Info("image_generator_initialized",
		zap.String("transport", opts.Transport),
		zap.String("model", opts.Model),
		zap.Float64("upstream_rps", opts.RequestsPerSecond),
	)
	return gen, nil
}

// Paced waits on a shared token bucket before each upstream call.
type Paced struct {
	next    generation.Generator
	limiter *rate.Limiter
}

// NewPaced wraps next with a limiter of rps calls per second and a burst of one.
func NewPaced(next generation.Generator, rps float64) *Paced {
	return &Paced{next: next, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

// Generate implements generation.Generator.
func (p *Paced) Generate(ctx context.Context, task generation.Task, creds generation.Credentials) (*generation.Image, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("upstream pacing: %w", err)
	}
	return p.next.Generate(ctx, task, creds)
}
