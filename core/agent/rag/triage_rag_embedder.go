package rag

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tanay2104/Smart-Email/core/port/out"
)

// EmbeddingCache stores vectors keyed by a hash of the embedded text.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, key string, vec []float32) error
}

// Embedder bounds every embedding call with a timeout and optionally
// serves repeated texts from a cache.
type Embedder struct {
	inner   out.Embedder
	cache   EmbeddingCache
	keyFn   func(parts ...string) string
	model   string
	timeout time.Duration
	log     zerolog.Logger
}

// NewEmbedder wraps inner. A zero timeout leaves the caller's context alone.
func NewEmbedder(inner out.Embedder, timeout time.Duration, log zerolog.Logger) *Embedder {
	return &Embedder{
		inner:   inner,
		timeout: timeout,
		log:     log.With().Str("component", "embedder").Logger(),
	}
}

// WithCache enables the embedding cache. Keys are keyFn(model, text).
func (e *Embedder) WithCache(cache EmbeddingCache, model string, keyFn func(parts ...string) string) *Embedder {
	e.cache = cache
	e.model = model
	e.keyFn = keyFn
	return e
}

// Embed implements out.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var key string
	if e.cache != nil {
		key = e.keyFn(e.model, text)
		if vec, ok, err := e.cache.GetEmbedding(ctx, key); err != nil {
			e.log.Debug().Err(err).Msg("embedding cache read failed")
		} else if ok {
			return vec, nil
		}
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	vec, err := e.inner.Embed(callCtx, text)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.SetEmbedding(ctx, key, vec); err != nil {
			e.log.Debug().Err(err).Msg("embedding cache write failed")
		}
	}
	return vec, nil
}
