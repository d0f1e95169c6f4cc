package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/SaiNageswarS/medicode-agent/agents"
	"github.com/SaiNageswarS/medicode-agent/embedding"
	"github.com/SaiNageswarS/medicode-agent/extract"
	"github.com/SaiNageswarS/medicode-agent/judge"
	"github.com/SaiNageswarS/medicode-agent/llm"
	"github.com/SaiNageswarS/medicode-agent/pipeline"
	"github.com/SaiNageswarS/medicode-agent/prompts"
	"github.com/SaiNageswarS/medicode-agent/schema"
	"github.com/SaiNageswarS/medicode-agent/vectordb"
	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel answers each call with the next reply and keeps every
// prompt it was sent.
type scriptedModel struct {
	mu      sync.Mutex
	replies []scriptedReply
	prompts []string
}

type scriptedReply struct {
	search  string // tool to call instead of answering
	terms   []string
	content string
}

func (m *scriptedModel) GenerateInference(ctx context.Context, messages []llm.Message, callback func(string) error, opts ...llm.LLMOption) error {
	return m.GenerateInferenceWithTools(ctx, messages, callback, nil, opts...)
}

func (m *scriptedModel) GenerateInferenceWithTools(ctx context.Context, messages []llm.Message, contentCallback func(string) error, toolCallback func([]api.ToolCall) error, opts ...llm.LLMOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range messages {
		m.prompts = append(m.prompts, msg.Content)
	}
	if len(m.replies) == 0 {
		return errors.New("no reply scripted")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]

	if reply.search != "" && toolCallback != nil {
		terms := make([]any, len(reply.terms))
		for i, term := range reply.terms {
			terms[i] = term
		}
		return toolCallback([]api.ToolCall{{Function: api.ToolCallFunction{
			Name:      reply.search,
			Arguments: map[string]any{"terms": terms},
		}}})
	}
	return contentCallback(reply.content)
}

func (m *scriptedModel) Capabilities() llm.Capability { return llm.NativeToolCalling | llm.JSONMode }
func (m *scriptedModel) GetModel() string             { return "scripted" }

func (m *scriptedModel) allPrompts() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.prompts, "\n")
}

type stubEmbeddingAPI struct{}

func (stubEmbeddingAPI) Show(ctx context.Context, req *api.ShowRequest) (*api.ShowResponse, error) {
	return &api.ShowResponse{}, nil
}

func (stubEmbeddingAPI) Embeddings(ctx context.Context, req *api.EmbeddingRequest) (*api.EmbeddingResponse, error) {
	return &api.EmbeddingResponse{Embedding: []float64{0.1, 0.2, 0.3}}, nil
}

// stubIndex returns the same hits for any vector.
type stubIndex []vectordb.Match

func (s stubIndex) Query(ctx context.Context, vector []float32, topK int) ([]vectordb.Match, error) {
	if topK < len(s) {
		return s[:topK], nil
	}
	return s, nil
}

func hit(code, description string) vectordb.Match {
	return vectordb.Match{ID: code, Score: 0.9, Metadata: map[string]any{"code": code, "description": description}}
}

func TestCodeDropsFailedCodingAgentEndToEnd(t *testing.T) {
	personas, err := prompts.LoadPersonas()
	require.NoError(t, err)
	validator, err := schema.NewValidator()
	require.NoError(t, err)

	retriever := vectordb.NewRetriever(
		embedding.NewOllamaEmbedder(stubEmbeddingAPI{}, embedding.Config{Dimensions: 3}),
		map[vectordb.Index]vectordb.VectorIndex{
			vectordb.IndexDiagnostic: stubIndex{hit("E11.9", "Type 2 diabetes mellitus without complications")},
			vectordb.IndexSupply:     stubIndex{hit("J1815", "Injection, insulin, per 5 units")},
			vectordb.IndexProcedural: stubIndex{hit("96372", "Therapeutic injection, subcutaneous or intramuscular")},
		})

	structuringModel := &scriptedModel{replies: []scriptedReply{
		{content: `{"icd_terms": ["type 2 diabetes mellitus"], "cpt_terms": ["subcutaneous injection"], "hcpcs_terms": ["insulin"]}`},
	}}
	icdModel := &scriptedModel{replies: []scriptedReply{
		{search: "search_icd10_codes", terms: []string{"type 2 diabetes mellitus"}},
		{content: `{"codes": ["E11.9"], "rationale": "Documented type 2 diabetes"}`},
	}}
	hcpcsModel := &scriptedModel{replies: []scriptedReply{
		{search: "search_hcpcs_codes", terms: []string{"insulin"}},
		{content: `{"codes": ["J1815"], "rationale": "Insulin supplied"}`},
	}}
	cptModel := &scriptedModel{replies: []scriptedReply{
		{search: "search_cpt_codes", terms: []string{"subcutaneous injection"}},
		{content: `{"codes": ["96372"], "rationale": `},
	}}
	judgeModel := &scriptedModel{replies: []scriptedReply{
		{content: `{"overall_verdict": "pass", "overall_score": 0.9, "compliance_risk": "low", "summary": "Supported by the note."}`},
	}}

	var coders []pipeline.Coder
	for _, c := range []struct {
		system  schema.CodingSystem
		persona string
		model   llm.LLMClient
	}{
		{schema.ICD10CM, prompts.ICDCoding, icdModel},
		{schema.HCPCS, prompts.HCPCSCoding, hcpcsModel},
		{schema.CPT4, prompts.CPTCoding, cptModel},
	} {
		coder, err := agents.NewCodingAgent(c.system, personas[c.persona], c.model, retriever, validator)
		require.NoError(t, err)
		coders = append(coders, coder)
	}

	orchestrator := pipeline.NewOrchestrator(
		agents.NewEntityStructurer(structuringModel, personas[prompts.EntityStructuring], validator),
		coders)
	svc := ProvideMedicalCodingService(orchestrator, judge.NewJudge(judgeModel, validator), extract.NewPDFExtractor(nil), 0)

	report, err := svc.Code(context.Background(), "Patient with type 2 diabetes given a subcutaneous insulin injection in clinic.")
	require.NoError(t, err)

	require.Len(t, report.CodingOutput, 2)
	assert.Equal(t, schema.ICD10CM, report.CodingOutput[0].CodingSystem)
	assert.Equal(t, []string{"E11.9"}, report.CodingOutput[0].Codes)
	assert.Empty(t, report.CodingOutput[0].Ungrounded)
	assert.Equal(t, schema.HCPCS, report.CodingOutput[1].CodingSystem)
	assert.Equal(t, []string{"J1815"}, report.CodingOutput[1].Codes)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, schema.StageCoding, report.Failures[0].Stage)
	assert.Equal(t, schema.CPT4, report.Failures[0].CodingSystem)

	require.NotNil(t, report.JudgeOutput)
	assert.Equal(t, schema.VerdictPass, report.JudgeOutput.OverallVerdict)

	judged := judgeModel.allPrompts()
	assert.Contains(t, judged, "E11.9")
	assert.Contains(t, judged, "J1815")
	assert.NotContains(t, judged, "96372")

	assert.Contains(t, icdModel.allPrompts(), "E11.9")
	assert.Contains(t, cptModel.allPrompts(), "96372")
}
