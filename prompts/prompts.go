package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/goccy/go-yaml"
)

//go:embed templates/*
var templatesFS embed.FS

// Persona keys in agents.yaml.
const (
	EntityStructuring = "entity_structuring"
	ICDCoding         = "icd_coding"
	HCPCSCoding       = "hcpcs_coding"
	CPTCoding         = "cpt_coding"
	Judge             = "judge"
)

// Persona describes one agent and the model it runs on.
type Persona struct {
	Role      string `yaml:"role"`
	Goal      string `yaml:"goal"`
	Backstory string `yaml:"backstory"`
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
}

// LoadPersonas reads the embedded agents.yaml.
func LoadPersonas() (map[string]Persona, error) {
	raw, err := templatesFS.ReadFile("templates/agents.yaml")
	if err != nil {
		return nil, err
	}

	personas := map[string]Persona{}
	if err := yaml.Unmarshal(raw, &personas); err != nil {
		return nil, fmt.Errorf("parse agents.yaml: %w", err)
	}

	for _, key := range []string{EntityStructuring, ICDCoding, HCPCSCoding, CPTCoding, Judge} {
		if _, ok := personas[key]; !ok {
			return nil, fmt.Errorf("agents.yaml: missing persona %q", key)
		}
	}
	return personas, nil
}

// RenderAgentSystemPrompt renders the role/goal/backstory preamble.
func RenderAgentSystemPrompt(p Persona) (string, error) {
	return render("templates/agent_system.md", p)
}

// RenderEntityStructuringPrompt renders the structuring agent's prompts.
func RenderEntityStructuringPrompt(p Persona, clinicalText string) (systemPrompt, userPrompt string, err error) {
	systemPrompt, err = RenderAgentSystemPrompt(p)
	if err != nil {
		return "", "", err
	}

	userPrompt, err = render("templates/entity_structuring_user.md", struct{ ClinicalText string }{clinicalText})
	if err != nil {
		return "", "", err
	}
	return systemPrompt, userPrompt, nil
}

type CodingPromptData struct {
	CodingSystem string
	ToolName     string
	Terms        []string
	ClinicalText string
}

// RenderCodingPrompt renders a coding agent's prompts.
func RenderCodingPrompt(p Persona, data CodingPromptData) (systemPrompt, userPrompt string, err error) {
	systemPrompt, err = RenderAgentSystemPrompt(p)
	if err != nil {
		return "", "", err
	}

	userPrompt, err = render("templates/coding_user.md", data)
	if err != nil {
		return "", "", err
	}
	return systemPrompt, userPrompt, nil
}

// RenderCodingFinalPrompt asks for the answer once the tool budget is spent.
func RenderCodingFinalPrompt() (string, error) {
	return render("templates/coding_final.md", nil)
}

// RenderJudgePrompt renders the judge's prompts with the encoded coding output.
func RenderJudgePrompt(clinicalNote, codingOutput string) (systemPrompt, userPrompt string, err error) {
	systemPrompt, err = render("templates/judge_system.md", nil)
	if err != nil {
		return "", "", err
	}

	data := struct {
		ClinicalNote string
		CodingOutput string
	}{
		ClinicalNote: clinicalNote,
		CodingOutput: codingOutput,
	}

	userPrompt, err = render("templates/judge_user.md", data)
	if err != nil {
		return "", "", err
	}
	return systemPrompt, userPrompt, nil
}

func render(path string, data any) (string, error) {
	content, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(path).Parse(string(content))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
