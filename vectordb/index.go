package vectordb

import (
	"context"
	"fmt"

	"github.com/SaiNageswarS/medicode-agent/schema"
)

// Index names one of the three code corpora.
type Index string

const (
	IndexDiagnostic Index = "diagnostic"
	IndexProcedural Index = "procedural"
	IndexSupply     Index = "supply"
)

// DefaultIndexNames maps each corpus to its Pinecone index.
var DefaultIndexNames = map[Index]string{
	IndexDiagnostic: "icd10",
	IndexProcedural: "cpt",
	IndexSupply:     "hcpcs",
}

// IndexFor returns the corpus holding codes of the given system.
func IndexFor(system schema.CodingSystem) (Index, error) {
	switch system {
	case schema.ICD10CM:
		return IndexDiagnostic, nil
	case schema.CPT4:
		return IndexProcedural, nil
	case schema.HCPCS:
		return IndexSupply, nil
	}
	return "", fmt.Errorf("no index for coding system %q", system)
}

// Match is a single scored hit, in the order the index returned it.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// VectorIndex is a similarity index queried by vector.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
}

var codeKeys = []string{"code", "icd10_code", "cpt_code", "hcpcs_code"}
var descriptionKeys = []string{"description", "long_description", "short_description", "desc", "text"}

func (m Match) toCandidate() schema.CodeCandidate {
	return schema.CodeCandidate{
		Code:        firstString(m.Metadata, codeKeys, m.ID),
		Description: firstString(m.Metadata, descriptionKeys, ""),
		Score:       m.Score,
		Metadata:    m.Metadata,
	}
}

func firstString(meta map[string]any, keys []string, fallback string) string {
	for _, k := range keys {
		if v, ok := meta[k]; ok {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return fallback
}
