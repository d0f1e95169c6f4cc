package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

// Definitions declared in schema.cue.
const (
	DefStructuredEntities = "#StructuredEntities"
	DefCodingAnswer       = "#CodingAnswer"
	DefJudgeVerdict       = "#JudgeVerdict"
)

// Validator checks model output against the CUE definitions in schema.cue.
// A cue.Context is not safe for concurrent use, so every call holds mu.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{ctx: ctx, schema: v}, nil
}

// Decode extracts the JSON object from raw model text, validates it against
// the named definition and unmarshals it into out.
func (v *Validator) Decode(def, raw string, out any) error {
	body, err := ExtractJSONObject(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidation, def, err)
	}

	if err := v.validate(def, body); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidation, def, err)
	}

	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidation, def, err)
	}
	return nil
}

func (v *Validator) validate(def, body string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	schemaDef := v.schema.LookupPath(cue.ParsePath(def))
	if !schemaDef.Exists() {
		return fmt.Errorf("unknown definition %s", def)
	}

	data := v.ctx.CompileBytes([]byte(body), cue.Filename("output.json"))
	if err := data.Err(); err != nil {
		return err
	}

	return schemaDef.Unify(data).Validate(cue.Concrete(true))
}

// ExtractJSONObject returns the outermost {...} span of a model response,
// tolerating markdown fences and surrounding prose.
func ExtractJSONObject(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || start >= end {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return raw[start : end+1], nil
}

func DecodeStructuredEntities(v *Validator, raw string) (StructuredEntities, error) {
	var out StructuredEntities
	if err := v.Decode(DefStructuredEntities, raw, &out); err != nil {
		return StructuredEntities{}, err
	}
	return out.Normalize(), nil
}

func DecodeCodingAnswer(v *Validator, raw string) (CodingAnswer, error) {
	var out CodingAnswer
	if err := v.Decode(DefCodingAnswer, raw, &out); err != nil {
		return CodingAnswer{}, err
	}
	if out.Codes == nil {
		out.Codes = []string{}
	}
	return out, nil
}

func DecodeJudgeVerdict(v *Validator, raw string) (JudgeVerdict, error) {
	var out JudgeVerdict
	if err := v.Decode(DefJudgeVerdict, raw, &out); err != nil {
		return JudgeVerdict{}, err
	}
	return out, nil
}
