package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/go-collection-boot/async"
	"github.com/SaiNageswarS/medicode-agent/agentboot"
	"github.com/SaiNageswarS/medicode-agent/schema"
	"github.com/SaiNageswarS/medicode-agent/tracing"
	"go.uber.org/zap"
)

const SpanName = "MEDICAL CODING PIPELINE"

// Structurer extracts the term lists from clinical text.
type Structurer interface {
	Structure(ctx context.Context, reporter agentboot.ProgressReporter, clinicalText string) (schema.StructuredEntities, error)
}

// Coder assigns the codes of one coding system.
type Coder interface {
	System() schema.CodingSystem
	Code(ctx context.Context, reporter agentboot.ProgressReporter, doc schema.ClinicalDocument, entities schema.StructuredEntities) (schema.CodeAssignment, error)
}

// StageFailure records a stage whose output was dropped from the run.
type StageFailure struct {
	Stage        string              `json:"stage"`
	CodingSystem schema.CodingSystem `json:"coding_system,omitempty"`
	Error        string              `json:"error"`
}

// PipelineRun is the aggregate of one request. It is never persisted.
type PipelineRun struct {
	TraceID     string                    `json:"trace_id"`
	Document    schema.ClinicalDocument   `json:"document"`
	Entities    schema.StructuredEntities `json:"entities"`
	Assignments []schema.CodeAssignment   `json:"coding_output"`
	Failures    []StageFailure            `json:"failures"`
}

type Option func(*Orchestrator)

func WithTracer(t tracing.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithSequentialCoding runs the coding agents one after another, for
// providers that rate-limit concurrent calls.
func WithSequentialCoding(sequential bool) Option {
	return func(o *Orchestrator) { o.sequential = sequential }
}

// Orchestrator runs structuring, then every coding agent, for one document.
type Orchestrator struct {
	structurer Structurer
	coders     []Coder
	tracer     tracing.Tracer
	sequential bool
}

func NewOrchestrator(structurer Structurer, coders []Coder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		structurer: structurer,
		coders:     coders,
		tracer:     tracing.LogTracer{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Run(ctx context.Context, clinicalText string) (*PipelineRun, error) {
	return o.RunWithTraceID(ctx, tracing.NewTraceID(), clinicalText)
}

// RunWithTraceID is Run under a caller-supplied trace id. Only a structuring
// failure or missing text aborts; a failed coding agent is recorded in
// Failures and its system is left out of Assignments.
func (o *Orchestrator) RunWithTraceID(ctx context.Context, traceID, clinicalText string) (run *PipelineRun, err error) {
	span := tracing.StartSpan(traceID, SpanName)
	defer func() {
		if run != nil {
			span.SetAttribute("assignments", strconv.Itoa(len(run.Assignments)))
			span.SetAttribute("failures", strconv.Itoa(len(run.Failures)))
		}
		span.Finish(err)
		if terr := o.tracer.Record(ctx, span); terr != nil {
			logger.Error("Failed to record span", zap.String("traceId", traceID), zap.Error(terr))
		}
	}()

	if strings.TrimSpace(clinicalText) == "" {
		return nil, fmt.Errorf("%w: clinical text is empty", schema.ErrInput)
	}

	reporter := &agentboot.LogProgressReporter{TraceID: traceID}
	doc := schema.ClinicalDocument{Text: clinicalText}

	entities, err := o.structurer.Structure(ctx, reporter, doc.Text)
	if err != nil {
		logger.Error("Entity structuring failed", zap.String("traceId", traceID), zap.Error(err))
		return nil, schema.NewStageError(schema.StageEntityStructuring, err)
	}

	outcomes := o.runCoders(ctx, reporter, doc, entities)

	run = &PipelineRun{
		TraceID:     traceID,
		Document:    doc,
		Entities:    entities,
		Assignments: []schema.CodeAssignment{},
		Failures:    []StageFailure{},
	}
	fold(run, outcomes)

	logger.Info("Medical coding pipeline finished",
		zap.String("traceId", traceID),
		zap.Int("assignments", len(run.Assignments)),
		zap.Int("failures", len(run.Failures)))
	return run, nil
}

// outcome is the tagged result of one coding agent.
type outcome struct {
	system     schema.CodingSystem
	assignment schema.CodeAssignment
	err        error
}

func (o *Orchestrator) runCoders(ctx context.Context, reporter agentboot.ProgressReporter, doc schema.ClinicalDocument, entities schema.StructuredEntities) []outcome {
	runOne := func(c Coder) outcome {
		assignment, err := c.Code(ctx, reporter, doc, entities)
		return outcome{system: c.System(), assignment: assignment, err: err}
	}

	if o.sequential {
		outcomes := make([]outcome, 0, len(o.coders))
		for _, c := range o.coders {
			outcomes = append(outcomes, runOne(c))
		}
		return outcomes
	}

	// every task reports its own failure in the outcome, so AwaitAll never
	// short-circuits on a sibling's error
	tasks := make([]<-chan async.Result[outcome], 0, len(o.coders))
	for _, c := range o.coders {
		c := c
		tasks = append(tasks, async.Go(func() (outcome, error) {
			return runOne(c), nil
		}))
	}

	outcomes, err := async.AwaitAll(tasks...)
	if err != nil {
		// unreachable with nil task errors
		logger.Error("Coding agents did not complete", zap.Error(err))
	}
	return outcomes
}

// fold keeps successful assignments in ICD, HCPCS, CPT order and turns
// failures into StageFailure records.
func fold(run *PipelineRun, outcomes []outcome) {
	bySystem := make(map[schema.CodingSystem]outcome, len(outcomes))
	for _, oc := range outcomes {
		bySystem[oc.system] = oc
	}

	for _, system := range schema.CodingSystems {
		oc, ok := bySystem[system]
		if !ok {
			continue
		}
		if oc.err != nil {
			logger.Error("Coding agent failed, dropping its output",
				zap.String("traceId", run.TraceID),
				zap.String("codingSystem", system.String()),
				zap.Error(oc.err))
			run.Failures = append(run.Failures, StageFailure{
				Stage:        schema.StageCoding,
				CodingSystem: system,
				Error:        oc.err.Error(),
			})
			continue
		}
		run.Assignments = append(run.Assignments, oc.assignment)
	}
}
