package prompts

import (
	"strings"
	"testing"
)

func TestLoadPersonas(t *testing.T) {
	personas, err := LoadPersonas()
	if err != nil {
		t.Fatalf("Failed to load personas: %v", err)
	}

	icd := personas[ICDCoding]
	if icd.Role != "ICD Coding Agent" {
		t.Errorf("unexpected ICD role %q", icd.Role)
	}
	if icd.Provider != "groq" || icd.Model != "moonshotai/kimi-k2-instruct-0905" {
		t.Errorf("unexpected ICD model %s/%s", icd.Provider, icd.Model)
	}
	if personas[Judge].Model != "gemini-3-flash-preview" {
		t.Errorf("unexpected judge model %q", personas[Judge].Model)
	}
	if strings.Contains(personas[EntityStructuring].Backstory, "\n") {
		t.Error("folded backstory should not contain newlines")
	}
}

func TestRenderEntityStructuringPrompt(t *testing.T) {
	personas, err := LoadPersonas()
	if err != nil {
		t.Fatal(err)
	}

	systemPrompt, userPrompt, err := RenderEntityStructuringPrompt(personas[EntityStructuring], "Patient presents with Type 2 diabetes mellitus.")
	if err != nil {
		t.Fatalf("Failed to render structuring prompt: %v", err)
	}

	for _, expected := range []string{"Medical Entity Structuring Agent", "Extract ICD-10, CPT-4, and HCPCS Level II relevant terms"} {
		if !strings.Contains(systemPrompt, expected) {
			t.Errorf("System prompt should contain '%s'", expected)
		}
	}

	for _, expected := range []string{"icd_terms", "cpt_terms", "hcpcs_terms", "Type 2 diabetes mellitus"} {
		if !strings.Contains(userPrompt, expected) {
			t.Errorf("User prompt should contain '%s'", expected)
		}
	}
}

func TestRenderCodingPrompt(t *testing.T) {
	personas, err := LoadPersonas()
	if err != nil {
		t.Fatal(err)
	}

	_, userPrompt, err := RenderCodingPrompt(personas[CPTCoding], CodingPromptData{
		CodingSystem: "CPT-4",
		ToolName:     "search_cpt_codes",
		Terms:        []string{"insulin injection", "office visit"},
		ClinicalText: "administered insulin injection",
	})
	if err != nil {
		t.Fatalf("Failed to render coding prompt: %v", err)
	}

	for _, expected := range []string{"CPT-4", "`search_cpt_codes`", "- insulin injection", "- office visit", `"codes"`} {
		if !strings.Contains(userPrompt, expected) {
			t.Errorf("User prompt should contain '%s'", expected)
		}
	}

	final, err := RenderCodingFinalPrompt()
	if err != nil || !strings.Contains(final, "without calling any tool") {
		t.Errorf("unexpected final prompt %q (%v)", final, err)
	}
}

func TestRenderJudgePrompt(t *testing.T) {
	systemPrompt, userPrompt, err := RenderJudgePrompt("Patient has asthma.", "- coding_system: ICD-10-CM\n  codes: [J45.909]")
	if err != nil {
		t.Fatalf("Failed to render judge prompt: %v", err)
	}

	if !strings.Contains(systemPrompt, "strict medical coding auditor") {
		t.Error("System prompt should describe the auditor")
	}
	if !strings.Contains(userPrompt, "Clinical Note:\nPatient has asthma.") {
		t.Error("User prompt should contain the clinical note")
	}
	if !strings.Contains(userPrompt, "J45.909") {
		t.Error("User prompt should contain the coding output")
	}
}
