package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks structured model output that does not match its schema.
	ErrValidation = errors.New("structured output validation failed")
	// ErrRetrieval marks embedding or vector index failures.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrInput marks requests without usable clinical text.
	ErrInput = errors.New("invalid input")
	// ErrConfiguration marks missing credentials or settings at startup.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrModelUnavailable marks an embedding model that could not be loaded.
	ErrModelUnavailable = errors.New("model unavailable")
)

// Pipeline stage names used in errors, spans and failure records.
const (
	StageEntityStructuring = "entity_structuring"
	StageCoding            = "coding"
	StageJudge             = "judge"
)

// StageError tags an error with the pipeline stage it came from.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func NewStageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
