package schema

import "strings"

// CodingSystem identifies one of the three billing/diagnosis code sets.
type CodingSystem string

const (
	ICD10CM CodingSystem = "ICD-10-CM"
	CPT4    CodingSystem = "CPT-4"
	HCPCS   CodingSystem = "HCPCS"
)

// CodingSystems lists the systems in pipeline order.
var CodingSystems = []CodingSystem{ICD10CM, HCPCS, CPT4}

func (c CodingSystem) String() string { return string(c) }

// ClinicalDocument is the extracted report text shared by every stage.
type ClinicalDocument struct {
	Text string `json:"text"`
}

// StructuredEntities holds the terms extracted from a clinical document,
// grouped by the coding system they target.
type StructuredEntities struct {
	ICDTerms   []string `json:"icd_terms"`
	CPTTerms   []string `json:"cpt_terms"`
	HCPCSTerms []string `json:"hcpcs_terms"`
}

// Normalize replaces nil lists with empty ones and drops blank terms.
func (e StructuredEntities) Normalize() StructuredEntities {
	return StructuredEntities{
		ICDTerms:   cleanTerms(e.ICDTerms),
		CPTTerms:   cleanTerms(e.CPTTerms),
		HCPCSTerms: cleanTerms(e.HCPCSTerms),
	}
}

// TermsFor returns the term list consumed by the agent for the given system.
func (e StructuredEntities) TermsFor(system CodingSystem) []string {
	switch system {
	case ICD10CM:
		return e.ICDTerms
	case CPT4:
		return e.CPTTerms
	case HCPCS:
		return e.HCPCSTerms
	}
	return nil
}

func cleanTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// CodeCandidate is one match returned by a vector index.
type CodeCandidate struct {
	Code        string         `json:"code" yaml:"code"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Score       float32        `json:"score" yaml:"score"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"-"`
}

// RetrievalResult is the ordered candidate list for a single query term.
type RetrievalResult struct {
	Term       string          `json:"term"`
	Candidates []CodeCandidate `json:"candidates"`
}

// CodeAssignment is the set of codes one coding agent asserts for a document.
type CodeAssignment struct {
	CodingSystem CodingSystem `json:"coding_system" yaml:"coding_system"`
	Codes        []string     `json:"codes" yaml:"codes"`
	Rationale    string       `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	// Ungrounded lists codes that did not appear among the retrieved candidates.
	Ungrounded []string `json:"ungrounded,omitempty" yaml:"ungrounded,omitempty"`
}

// CodingAnswer is the raw structured answer a coding agent returns.
type CodingAnswer struct {
	Codes     []string `json:"codes"`
	Rationale string   `json:"rationale"`
}

type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// JudgeVerdict is the compliance assessment of a full coding output.
type JudgeVerdict struct {
	OverallVerdict Verdict   `json:"overall_verdict"`
	OverallScore   float64   `json:"overall_score"`
	ComplianceRisk RiskLevel `json:"compliance_risk"`
	Summary        string    `json:"summary"`
}
