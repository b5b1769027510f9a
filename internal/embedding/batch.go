package embedding

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/feichai0017/document-monitor/config"
	"github.com/feichai0017/document-monitor/internal/metrics"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

// MaxBatchSize is the largest number of texts sent in one remote call.
const MaxBatchSize = 100

// BatchFunc embeds one batch of texts with a remote backend.
type BatchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Batcher splits input into paced batches for a remote backend. Any failed
// or malformed batch fails the whole call.
type Batcher struct {
	name       string
	call       BatchFunc
	batchSize  int
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	retryable  func(error) bool
	logger     logger.Logger
}

func NewBatcher(name string, call BatchFunc, cfg config.EmbeddingConfig, log logger.Logger) *Batcher {
	size := cfg.BatchSize
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	limit := rate.Inf
	if cfg.Pace > 0 {
		limit = rate.Every(cfg.Pace)
	}
	backoff := cfg.Pace
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Batcher{
		name:       name,
		call:       call,
		batchSize:  size,
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: cfg.MaxRetries,
		backoff:    backoff,
		retryable:  func(error) bool { return false },
		logger:     log.Named(name),
	}
}

// WithRetry retries batches whose error satisfies fn, up to the configured
// number of attempts with doubling backoff.
func (b *Batcher) WithRetry(fn func(error) bool) *Batcher {
	b.retryable = fn
	return b
}

func (b *Batcher) Name() string { return b.name }

func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	dim := 0

	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		batch := texts[start:end]

		vecs, err := b.callWithRetry(ctx, batch)
		if err == nil {
			err = validateBatch(vecs, len(batch), &dim)
		}
		metrics.EmbeddingBatch(b.name, err == nil)
		if err != nil {
			b.logger.Error("Embedding batch failed",
				logger.Int("from", start),
				logger.Int("to", end),
				logger.Error(err),
			)
			return nil, errors.Mark(errors.Wrapf(err, "%s batch %d-%d", b.name, start, end), errors.ErrEmbeddingFailed)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (b *Batcher) callWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	for attempt := 0; ; attempt++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		vecs, err := b.call(ctx, batch)
		if err == nil || attempt >= b.maxRetries || !b.retryable(err) {
			return vecs, err
		}

		wait := b.backoff << attempt
		b.logger.Warn("Rate limited, retrying batch",
			logger.Int("attempt", attempt+1),
			logger.Duration("wait", wait),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// validateBatch checks the response carries one vector per input and that
// every vector has the width seen so far.
func validateBatch(vecs [][]float32, want int, dim *int) error {
	if len(vecs) != want {
		return errors.Newf("expected %d vectors, got %d", want, len(vecs))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return errors.Newf("empty vector at index %d", i)
		}
		if *dim == 0 {
			*dim = len(v)
		}
		if len(v) != *dim {
			return errors.Newf("vector %d has dimension %d, expected %d", i, len(v), *dim)
		}
	}
	return nil
}
