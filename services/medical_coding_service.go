package services

import (
	"context"
	"errors"
	"time"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/medicode-agent/pipeline"
	"github.com/SaiNageswarS/medicode-agent/schema"
	"github.com/SaiNageswarS/medicode-agent/tracing"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Pipeline interface {
	RunWithTraceID(ctx context.Context, traceID, clinicalText string) (*pipeline.PipelineRun, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, clinicalText string, assignments []schema.CodeAssignment) (schema.JudgeVerdict, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// CodingReport is the response of one medical coding request.
type CodingReport struct {
	TraceID      string                    `json:"trace_id"`
	ClinicalText string                    `json:"clinical_text"`
	Entities     schema.StructuredEntities `json:"entities"`
	CodingOutput []schema.CodeAssignment   `json:"coding_output"`
	JudgeOutput  *schema.JudgeVerdict      `json:"judge_output"`
	Failures     []pipeline.StageFailure   `json:"failures"`
}

type MedicalCodingService struct {
	pipeline  Pipeline
	judge     Evaluator
	extractor TextExtractor
	timeout   time.Duration
}

// ProvideMedicalCodingService wires the pipeline, judge and extractor. A
// zero timeout leaves request deadlines to the caller.
func ProvideMedicalCodingService(p Pipeline, judge Evaluator, extractor TextExtractor, timeout time.Duration) *MedicalCodingService {
	return &MedicalCodingService{
		pipeline:  p,
		judge:     judge,
		extractor: extractor,
		timeout:   timeout,
	}
}

// Code runs the coding pipeline and the judge over clinical text. A judge
// failure leaves JudgeOutput nil and is listed in Failures.
func (s *MedicalCodingService) Code(ctx context.Context, clinicalText string) (*CodingReport, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	traceID := tracing.NewTraceID()
	run, err := s.pipeline.RunWithTraceID(ctx, traceID, clinicalText)
	if err != nil {
		logger.Error("Medical coding failed", zap.String("traceId", traceID), zap.Error(err))
		return nil, toStatus(err)
	}

	report := &CodingReport{
		TraceID:      run.TraceID,
		ClinicalText: run.Document.Text,
		Entities:     run.Entities,
		CodingOutput: run.Assignments,
		Failures:     run.Failures,
	}

	verdict, err := s.judge.Evaluate(ctx, run.Document.Text, run.Assignments)
	if err != nil {
		logger.Error("Judge failed, returning coding output without verdict",
			zap.String("traceId", traceID), zap.Error(err))
		report.Failures = append(report.Failures, pipeline.StageFailure{
			Stage: schema.StageJudge,
			Error: err.Error(),
		})
		return report, nil
	}

	report.JudgeOutput = &verdict
	return report, nil
}

// CodePDF extracts the text of a PDF and codes it. Extraction failures are
// reported before any agent runs.
func (s *MedicalCodingService) CodePDF(ctx context.Context, path string) (*CodingReport, error) {
	text, err := s.extractor.Extract(ctx, path)
	if err != nil {
		logger.Error("PDF extraction failed", zap.Error(err))
		return nil, toStatus(err)
	}
	return s.Code(ctx, text)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, schema.ErrInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, schema.ErrConfiguration):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "medical coding timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
