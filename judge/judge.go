package judge

import (
	"context"
	"fmt"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/medicode-agent/agentboot"
	"github.com/SaiNageswarS/medicode-agent/llm"
	"github.com/SaiNageswarS/medicode-agent/prompts"
	"github.com/SaiNageswarS/medicode-agent/schema"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

// Judge scores a full coding output against the clinical note. It makes one
// tool-free call at temperature 0.
type Judge struct {
	model     llm.LLMClient
	validator *schema.Validator
	maxTokens int
}

func NewJudge(model llm.LLMClient, validator *schema.Validator) *Judge {
	return &Judge{model: model, validator: validator, maxTokens: 1024}
}

func (j *Judge) Evaluate(ctx context.Context, clinicalText string, assignments []schema.CodeAssignment) (schema.JudgeVerdict, error) {
	encoded, err := EncodeAssignments(assignments)
	if err != nil {
		return schema.JudgeVerdict{}, schema.NewStageError(schema.StageJudge, err)
	}

	systemPrompt, userPrompt, err := prompts.RenderJudgePrompt(clinicalText, encoded)
	if err != nil {
		return schema.JudgeVerdict{}, schema.NewStageError(schema.StageJudge, fmt.Errorf("render judge prompt: %w", err))
	}

	agent := agentboot.NewAgentBuilder().
		WithName("Judge").
		WithModel(j.model).
		WithSystemPrompt(systemPrompt).
		WithMaxTokens(j.maxTokens).
		WithTemperature(0).
		WithJSONOutput().
		Build()

	result, err := agent.Execute(ctx, nil, userPrompt)
	if err != nil {
		return schema.JudgeVerdict{}, schema.NewStageError(schema.StageJudge, err)
	}

	verdict, err := schema.DecodeJudgeVerdict(j.validator, result.Answer)
	if err != nil {
		return schema.JudgeVerdict{}, schema.NewStageError(schema.StageJudge, err)
	}

	logger.Info("Judge verdict",
		zap.String("verdict", string(verdict.OverallVerdict)),
		zap.Float64("score", verdict.OverallScore),
		zap.String("risk", string(verdict.ComplianceRisk)))
	return verdict, nil
}

type judgedAssignment struct {
	CodingSystem schema.CodingSystem `yaml:"coding_system"`
	Codes        []string            `yaml:"codes,flow"`
	Rationale    string              `yaml:"rationale,omitempty"`
}

// EncodeAssignments renders the coding output as compact YAML for the
// judge prompt. Retrieval provenance is left out so the judge scores the
// codes on the note alone.
func EncodeAssignments(assignments []schema.CodeAssignment) (string, error) {
	view := make([]judgedAssignment, len(assignments))
	for i, a := range assignments {
		codes := a.Codes
		if codes == nil {
			codes = []string{}
		}
		view[i] = judgedAssignment{CodingSystem: a.CodingSystem, Codes: codes, Rationale: a.Rationale}
	}

	out, err := yaml.Marshal(view)
	if err != nil {
		return "", fmt.Errorf("encode coding output: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
