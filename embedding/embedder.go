package embedding

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/medicode-agent/schema"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

const DefaultModel = "qwen3-embedding:0.6b"

// Embedder converts free text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ModelAPI is the slice of the Ollama client the embedder needs.
type ModelAPI interface {
	Show(ctx context.Context, req *api.ShowRequest) (*api.ShowResponse, error)
	Embeddings(ctx context.Context, req *api.EmbeddingRequest) (*api.EmbeddingResponse, error)
}

type Config struct {
	Model      string
	Dimensions int // 0 accepts whatever the model returns
	KeepAlive  time.Duration
	Timeout    time.Duration
}

// OllamaEmbedder is shared by every retrieval call in the process. The model
// is checked once, on first use, and a load failure is remembered so later
// calls fail fast instead of retrying the load.
type OllamaEmbedder struct {
	client ModelAPI
	cfg    Config

	initMu  sync.Mutex
	ready   bool
	initErr error

	mu       sync.RWMutex
	memCache map[string][]float32
	dims     int
}

func NewOllamaEmbedder(client ModelAPI, cfg Config) *OllamaEmbedder {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60 * time.Minute
	}
	return &OllamaEmbedder{
		client:   client,
		cfg:      cfg,
		memCache: make(map[string][]float32),
		dims:     cfg.Dimensions,
	}
}

func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := o.ensureModel(ctx); err != nil {
		return nil, err
	}

	normalized := normalizeText(text)
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty text", schema.ErrInput)
	}

	key := o.cacheKey(normalized)
	if vec, ok := o.getFromCache(key); ok {
		return vec, nil
	}

	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	resp, err := o.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:     o.cfg.Model,
		Prompt:    normalized,
		KeepAlive: &api.Duration{Duration: o.cfg.KeepAlive},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %v", schema.ErrRetrieval, err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: model %s returned an empty embedding", schema.ErrRetrieval, o.cfg.Model)
	}

	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}

	if err := o.checkDimensions(len(vec)); err != nil {
		return nil, err
	}

	o.storeInMemory(key, vec)
	return cloneVector(vec), nil
}

// ensureModel runs exactly one load check even under concurrent first use.
func (o *OllamaEmbedder) ensureModel(ctx context.Context) error {
	o.initMu.Lock()
	defer o.initMu.Unlock()

	if o.ready {
		return nil
	}
	if o.initErr != nil {
		return o.initErr
	}

	if _, err := o.client.Show(ctx, &api.ShowRequest{Model: o.cfg.Model}); err != nil {
		// a cancelled caller says nothing about the model
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", schema.ErrRetrieval, ctx.Err())
		}
		o.initErr = fmt.Errorf("%w: embedding model %s: %v", schema.ErrModelUnavailable, o.cfg.Model, err)
		logger.Error("Embedding model unavailable", zap.String("model", o.cfg.Model), zap.Error(err))
		return o.initErr
	}

	o.ready = true
	logger.Info("Embedding model ready", zap.String("model", o.cfg.Model))
	return nil
}

func (o *OllamaEmbedder) checkDimensions(n int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dims == 0 {
		o.dims = n
		return nil
	}
	if o.dims != n {
		return fmt.Errorf("%w: model %s returned %d dimensions, want %d", schema.ErrRetrieval, o.cfg.Model, n, o.dims)
	}
	return nil
}

func (o *OllamaEmbedder) cacheKey(text string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, o.cfg.Model)
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

func (o *OllamaEmbedder) getFromCache(key string) ([]float32, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	vec, ok := o.memCache[key]
	if !ok {
		return nil, false
	}
	return cloneVector(vec), true
}

func (o *OllamaEmbedder) storeInMemory(key string, vec []float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.memCache[key] = cloneVector(vec)
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

func normalizeText(text string) string {
	return strings.TrimSpace(norm.NFKC.String(text))
}
