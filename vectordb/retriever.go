package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/medicode-agent/embedding"
	"github.com/SaiNageswarS/medicode-agent/retry"
	"github.com/SaiNageswarS/medicode-agent/schema"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

const DefaultTopK = 5

// SearchBlock is the outcome of one tool invocation: the model-readable text
// plus the structured results it was rendered from.
type SearchBlock struct {
	Text    string
	Results []schema.RetrievalResult
}

type RetrieverOption func(*Retriever)

func WithTopK(k int) RetrieverOption {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithQueryTimeout bounds every embed+query attempt.
func WithQueryTimeout(d time.Duration) RetrieverOption {
	return func(r *Retriever) { r.timeout = d }
}

func WithRetryPolicy(p retry.Policy) RetrieverOption {
	return func(r *Retriever) { r.policy = p }
}

// Retriever embeds terms and queries the matching code index.
type Retriever struct {
	embedder embedding.Embedder
	indexes  map[Index]VectorIndex
	topK     int
	timeout  time.Duration
	policy   retry.Policy
}

func NewRetriever(embedder embedding.Embedder, indexes map[Index]VectorIndex, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder: embedder,
		indexes:  indexes,
		topK:     DefaultTopK,
		timeout:  30 * time.Second,
		policy:   retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search returns at most topK candidates for term, in the index's own order.
func (r *Retriever) Search(ctx context.Context, index Index, term string, topK int) (schema.RetrievalResult, error) {
	result := schema.RetrievalResult{Term: term, Candidates: []schema.CodeCandidate{}}

	vi, ok := r.indexes[index]
	if !ok {
		return result, fmt.Errorf("%w: index %q is not configured", schema.ErrRetrieval, index)
	}
	if topK <= 0 {
		topK = r.topK
	}

	vector, err := r.embedWithRetry(ctx, term)
	if err != nil {
		return result, err
	}

	var matches []Match
	err = retry.Do(ctx, r.policy, func(ctx context.Context) error {
		qctx, cancel := r.withTimeout(ctx)
		defer cancel()

		var qerr error
		matches, qerr = vi.Query(qctx, vector, topK)
		if qerr != nil && ctx.Err() != nil {
			return retry.Permanent(qerr)
		}
		return qerr
	})
	if err != nil {
		return result, fmt.Errorf("%w: %s query for %q: %v", schema.ErrRetrieval, index, term, err)
	}

	if len(matches) > topK {
		matches = matches[:topK]
	}
	for _, m := range matches {
		result.Candidates = append(result.Candidates, m.toCandidate())
	}
	return result, nil
}

func (r *Retriever) embedWithRetry(ctx context.Context, term string) ([]float32, error) {
	var vector []float32
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		ectx, cancel := r.withTimeout(ctx)
		defer cancel()

		var err error
		vector, err = r.embedder.Embed(ectx, term)
		if errors.Is(err, schema.ErrModelUnavailable) || errors.Is(err, schema.ErrInput) || ctx.Err() != nil {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, schema.ErrRetrieval) || errors.Is(err, schema.ErrModelUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: embed %q: %v", schema.ErrRetrieval, term, err)
	}
	return vector, nil
}

func (r *Retriever) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// SearchTerms queries each term independently and in order, and renders one
// "<term>: <matches>" line per term. An empty term list yields an empty block.
func (r *Retriever) SearchTerms(ctx context.Context, index Index, terms []string) (SearchBlock, error) {
	var block SearchBlock
	var lines []string

	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}

		res, err := r.Search(ctx, index, term, r.topK)
		if err != nil {
			logger.Error("Vector search failed", zap.String("index", string(index)), zap.String("term", term), zap.Error(err))
			return SearchBlock{}, err
		}

		line, err := renderResult(res)
		if err != nil {
			return SearchBlock{}, err
		}
		lines = append(lines, line)
		block.Results = append(block.Results, res)
	}

	block.Text = strings.Join(lines, "\n")
	return block, nil
}

func (r *Retriever) SearchICD10(ctx context.Context, terms []string) (SearchBlock, error) {
	return r.searchSystem(ctx, schema.ICD10CM, terms)
}

func (r *Retriever) SearchCPT(ctx context.Context, terms []string) (SearchBlock, error) {
	return r.searchSystem(ctx, schema.CPT4, terms)
}

func (r *Retriever) SearchHCPCS(ctx context.Context, terms []string) (SearchBlock, error) {
	return r.searchSystem(ctx, schema.HCPCS, terms)
}

func (r *Retriever) searchSystem(ctx context.Context, system schema.CodingSystem, terms []string) (SearchBlock, error) {
	index, err := IndexFor(system)
	if err != nil {
		return SearchBlock{}, fmt.Errorf("%w: %v", schema.ErrRetrieval, err)
	}
	return r.SearchTerms(ctx, index, terms)
}

func renderResult(res schema.RetrievalResult) (string, error) {
	out, err := yaml.MarshalWithOptions(res.Candidates, yaml.Flow(true))
	if err != nil {
		return "", fmt.Errorf("encode matches for %q: %w", res.Term, err)
	}
	return res.Term + ": " + strings.TrimSpace(string(out)), nil
}
