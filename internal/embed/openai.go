package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ragmill/ragmill/internal/config"
	ragerr "github.com/ragmill/ragmill/internal/errors"
)

// embeddingAPI is the slice of the OpenAI client we use; narrowed for tests.
type embeddingAPI interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAI embeds text through any OpenAI-compatible endpoint.
type OpenAI struct {
	api   embeddingAPI
	model openai.EmbeddingModel
	dims  int
	batch int
	retry ragerr.RetryConfig
}

// NewOpenAI creates the embedder from config.
func NewOpenAI(cfg config.EmbeddingConfig) *OpenAI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	retry := ragerr.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = config.DefaultEmbeddingBatch
	}

	return &OpenAI{
		api:   openai.NewClientWithConfig(oc),
		model: openai.EmbeddingModel(cfg.Model),
		dims:  cfg.Dimensions,
		batch: batch,
		retry: retry,
	}
}

// Dimensions implements Embedder.
func (o *OpenAI) Dimensions() int { return o.dims }

// Embed implements Embedder. The only returned error is context
// cancellation; upstream failures degrade to zero vectors.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += o.batch {
		end := start + o.batch
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := o.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// embedBatch embeds one batch, falling back to per-item requests when the
// batch keeps failing.
func (o *OpenAI) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := ragerr.RetryWithResult(ctx, o.retry, func() ([][]float32, error) {
		return o.request(ctx, texts)
	})
	if err == nil {
		return vecs, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	slog.Warn("batch embedding failed, falling back to per-item requests",
		slog.Int("batch_size", len(texts)),
		slog.String("error", err.Error()))

	out := make([][]float32, len(texts))
	for i, text := range texts {
		itemRetry := o.retry
		itemRetry.MaxRetries = 1
		itemRetry.InitialDelay = 200 * time.Millisecond

		item, ierr := ragerr.RetryWithResult(ctx, itemRetry, func() ([][]float32, error) {
			return o.request(ctx, []string{text})
		})
		if ierr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Error("embedding failed for item, storing zero vector",
				slog.Int("item", i),
				slog.String("error", ierr.Error()))
			out[i] = ZeroVector(o.dims)
			continue
		}
		out[i] = item[0]
	}
	return out, nil
}

func (o *OpenAI) request(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: o.model,
	})
	if err != nil {
		return nil, ragerr.Wrap(ragerr.ErrCodeEmbeddingFailed, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, ragerr.New(ragerr.ErrCodeEmbeddingFailed,
			fmt.Sprintf("provider returned %d embeddings for %d inputs", len(resp.Data), len(texts)), nil)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, ragerr.New(ragerr.ErrCodeEmbeddingFailed,
				fmt.Sprintf("provider returned out-of-range index %d", d.Index), nil)
		}
		if o.dims > 0 && len(d.Embedding) != o.dims {
			return nil, ragerr.New(ragerr.ErrCodeDimensionMismatch,
				fmt.Sprintf("expected %d dims, got %d", o.dims, len(d.Embedding)), nil)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
