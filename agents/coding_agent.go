package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/go-collection-boot/linq"
	"github.com/SaiNageswarS/medicode-agent/agentboot"
	"github.com/SaiNageswarS/medicode-agent/llm"
	"github.com/SaiNageswarS/medicode-agent/prompts"
	"github.com/SaiNageswarS/medicode-agent/schema"
	"github.com/SaiNageswarS/medicode-agent/vectordb"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// RetrievalTool searches the reference index of each coding system.
type RetrievalTool interface {
	SearchICD10(ctx context.Context, terms []string) (vectordb.SearchBlock, error)
	SearchCPT(ctx context.Context, terms []string) (vectordb.SearchBlock, error)
	SearchHCPCS(ctx context.Context, terms []string) (vectordb.SearchBlock, error)
}

type searchFunc func(ctx context.Context, terms []string) (vectordb.SearchBlock, error)

type toolBinding struct {
	name        string
	description string
	search      searchFunc
}

func bindRetrieval(system schema.CodingSystem, retrieval RetrievalTool) (toolBinding, error) {
	switch system {
	case schema.ICD10CM:
		return toolBinding{"search_icd10_codes", "Search the ICD-10-CM diagnosis code index. Returns the top candidate codes for each term.", retrieval.SearchICD10}, nil
	case schema.CPT4:
		return toolBinding{"search_cpt_codes", "Search the CPT-4 procedure code index. Returns the top candidate codes for each term.", retrieval.SearchCPT}, nil
	case schema.HCPCS:
		return toolBinding{"search_hcpcs_codes", "Search the HCPCS Level II supply and service code index. Returns the top candidate codes for each term.", retrieval.SearchHCPCS}, nil
	}
	return toolBinding{}, fmt.Errorf("%w: unsupported coding system %q", schema.ErrConfiguration, system)
}

// CodingAgent assigns codes of one system, grounded in its retrieval tool.
type CodingAgent struct {
	system    schema.CodingSystem
	persona   prompts.Persona
	model     llm.LLMClient
	binding   toolBinding
	validator *schema.Validator
	maxTurns  int
	maxTokens int
}

type CodingAgentOption func(*CodingAgent)

func WithMaxTurns(n int) CodingAgentOption {
	return func(c *CodingAgent) {
		if n > 0 {
			c.maxTurns = n
		}
	}
}

func NewCodingAgent(system schema.CodingSystem, persona prompts.Persona, model llm.LLMClient, retrieval RetrievalTool, validator *schema.Validator, opts ...CodingAgentOption) (*CodingAgent, error) {
	binding, err := bindRetrieval(system, retrieval)
	if err != nil {
		return nil, err
	}
	if model.Capabilities()&llm.NativeToolCalling == 0 {
		return nil, fmt.Errorf("%w: model %s cannot call tools", schema.ErrConfiguration, model.GetModel())
	}

	c := &CodingAgent{
		system:    system,
		persona:   persona,
		model:     model,
		binding:   binding,
		validator: validator,
		maxTurns:  3,
		maxTokens: 2000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *CodingAgent) System() schema.CodingSystem { return c.system }

// Code assigns codes for the document's terms of this agent's system. An
// empty term list yields an empty assignment without any model call.
func (c *CodingAgent) Code(ctx context.Context, reporter agentboot.ProgressReporter, doc schema.ClinicalDocument, entities schema.StructuredEntities) (schema.CodeAssignment, error) {
	assignment := schema.CodeAssignment{CodingSystem: c.system, Codes: []string{}}

	terms := entities.TermsFor(c.system)
	if len(terms) == 0 {
		logger.Info("No terms to code", zap.String("codingSystem", c.system.String()))
		return assignment, nil
	}

	systemPrompt, userPrompt, err := prompts.RenderCodingPrompt(c.persona, prompts.CodingPromptData{
		CodingSystem: c.system.String(),
		ToolName:     c.binding.name,
		Terms:        terms,
		ClinicalText: doc.Text,
	})
	if err != nil {
		return assignment, fmt.Errorf("render coding prompt: %w", err)
	}
	finalPrompt, err := prompts.RenderCodingFinalPrompt()
	if err != nil {
		return assignment, fmt.Errorf("render final prompt: %w", err)
	}

	retrieved := &candidateSet{codes: map[string]struct{}{}}

	agent := agentboot.NewAgentBuilder().
		WithName(c.persona.Role).
		WithModel(c.model).
		WithSystemPrompt(systemPrompt).
		WithMaxTurns(c.maxTurns).
		WithMaxTokens(c.maxTokens).
		WithTemperature(0).
		WithJSONOutput().
		WithFinalPrompt(finalPrompt).
		AddTool(c.searchTool(retrieved)).
		Build()

	result, err := agent.Execute(ctx, reporter, userPrompt)
	if err != nil {
		return assignment, err
	}

	answer, err := schema.DecodeCodingAnswer(c.validator, result.Answer)
	if err != nil {
		return assignment, err
	}

	assignment.Codes = normalizeCodes(answer.Codes)
	assignment.Rationale = strings.TrimSpace(answer.Rationale)
	for _, code := range assignment.Codes {
		if !retrieved.has(code) {
			assignment.Ungrounded = append(assignment.Ungrounded, code)
		}
	}

	if len(assignment.Ungrounded) > 0 {
		logger.Info("Codes assigned without retrieved evidence",
			zap.String("codingSystem", c.system.String()),
			zap.Strings("codes", assignment.Ungrounded))
	}
	return assignment, nil
}

func (c *CodingAgent) searchTool(retrieved *candidateSet) agentboot.Tool {
	return agentboot.NewToolBuilder(c.binding.name, c.binding.description).
		StringSliceParam("terms", "Clinical terms to look up, one entry per term", true).
		WithHandler(func(ctx context.Context, params api.ToolCallFunctionArguments) (string, error) {
			block, err := c.binding.search(ctx, agentboot.StringSliceArg(params, "terms"))
			if err != nil {
				return "", err
			}
			retrieved.add(block.Results)
			if block.Text == "" {
				return "No candidates found.", nil
			}
			return block.Text, nil
		}).
		Build()
}

// normalizeCodes trims and upper-cases codes, dropping blanks and repeats.
func normalizeCodes(codes []string) []string {
	cleaned, _ := linq.Pipe2(
		linq.FromSlice(context.Background(), codes),
		linq.Select(func(code string) string {
			return strings.ToUpper(strings.TrimSpace(code))
		}),
		linq.ToSlice[string](),
	)
	nonEmpty := make([]string, 0, len(cleaned))
	for _, code := range cleaned {
		if code != "" {
			nonEmpty = append(nonEmpty, code)
		}
	}
	distinct, _ := linq.Pipe2(
		linq.FromSlice(context.Background(), nonEmpty),
		linq.Distinct(func(code string) string { return code }),
		linq.ToSlice[string](),
	)
	return distinct
}

// candidateSet collects codes seen by one agent run.
type candidateSet struct {
	mu    sync.Mutex
	codes map[string]struct{}
}

func (s *candidateSet) add(results []schema.RetrievalResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		for _, c := range r.Candidates {
			s.codes[strings.ToUpper(strings.TrimSpace(c.Code))] = struct{}{}
		}
	}
}

func (s *candidateSet) has(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.codes[code]
	return ok
}
