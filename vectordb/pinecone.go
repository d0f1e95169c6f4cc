package vectordb

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/medicode-agent/schema"
	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeIndex queries one Pinecone index over its data plane connection.
type PineconeIndex struct {
	name string
	conn *pinecone.IndexConnection
}

func (p *PineconeIndex) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	resp, err := p.conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone %s: query: %w", p.name, err)
	}

	matches := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		matches = append(matches, Match{ID: m.Vector.Id, Score: m.Score, Metadata: metadataMap(m.Vector.Metadata)})
	}
	return matches, nil
}

func metadataMap(md *structpb.Struct) map[string]any {
	if md == nil {
		return nil
	}
	return md.AsMap()
}

// PineconeStore holds one connection per corpus. Connections are opened once
// at startup and shared read-only by every request.
type PineconeStore struct {
	indexes map[Index]*PineconeIndex
}

func NewPineconeStore(ctx context.Context, apiKey string, names map[Index]string, timeout time.Duration) (*PineconeStore, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: PINECONE_API_KEY is not set", schema.ErrConfiguration)
	}

	pc, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey:     apiKey,
		RestClient: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: pinecone client: %v", schema.ErrConfiguration, err)
	}

	store := &PineconeStore{indexes: make(map[Index]*PineconeIndex, len(names))}
	for idx, name := range names {
		desc, err := pc.DescribeIndex(ctx, name)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("%w: describe index %s: %v", schema.ErrRetrieval, name, err)
		}

		conn, err := pc.Index(pinecone.NewIndexConnParams{Host: desc.Host})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("%w: connect index %s: %v", schema.ErrRetrieval, name, err)
		}

		store.indexes[idx] = &PineconeIndex{name: name, conn: conn}
		logger.Info("Connected to Pinecone index", zap.String("index", name), zap.String("host", desc.Host))
	}

	return store, nil
}

// Indexes exposes the connections as the retriever's VectorIndex map.
func (s *PineconeStore) Indexes() map[Index]VectorIndex {
	out := make(map[Index]VectorIndex, len(s.indexes))
	for k, v := range s.indexes {
		out[k] = v
	}
	return out
}

func (s *PineconeStore) Close() {
	for _, idx := range s.indexes {
		if err := idx.conn.Close(); err != nil {
			logger.Error("Failed to close Pinecone connection", zap.String("index", idx.name), zap.Error(err))
		}
	}
}
