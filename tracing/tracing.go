package tracing

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Span is one named, timed unit of work within a trace.
type Span struct {
	TraceID    string
	Name       string
	Start      time.Time
	End        time.Time
	Status     string
	Error      string
	Attributes map[string]string
}

// NewTraceID returns a random per-request trace identifier.
func NewTraceID() string {
	return uuid.New().String()
}

func StartSpan(traceID, name string) *Span {
	return &Span{
		TraceID:    traceID,
		Name:       name,
		Start:      time.Now().UTC(),
		Attributes: map[string]string{},
	}
}

func (s *Span) SetAttribute(key, value string) {
	s.Attributes[key] = value
}

// Finish closes the span, marking it failed when err is non-nil.
func (s *Span) Finish(err error) {
	s.End = time.Now().UTC()
	s.Status = StatusOK
	if err != nil {
		s.Status = StatusError
		s.Error = err.Error()
	}
}

func (s *Span) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Tracer receives finished spans.
type Tracer interface {
	Record(ctx context.Context, span *Span) error
}

// LogTracer writes spans to the structured log.
type LogTracer struct{}

func (LogTracer) Record(ctx context.Context, span *Span) error {
	keys := make([]string, 0, len(span.Attributes))
	for k := range span.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := []zap.Field{
		zap.String("traceId", span.TraceID),
		zap.String("span", span.Name),
		zap.String("status", span.Status),
		zap.Duration("duration", span.Duration()),
	}
	for _, k := range keys {
		fields = append(fields, zap.String(k, span.Attributes[k]))
	}

	if span.Status == StatusError {
		logger.Error("Span finished with error", append(fields, zap.String("error", span.Error))...)
		return nil
	}
	logger.Info("Span finished", fields...)
	return nil
}

// MultiTracer fans a span out to every tracer and joins their errors.
type MultiTracer []Tracer

func (m MultiTracer) Record(ctx context.Context, span *Span) error {
	var errs []error
	for _, t := range m {
		if err := t.Record(ctx, span); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
