package agentboot

import (
	"time"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"go.uber.org/zap"
)

type Stage string

const (
	StageTaskStarted            Stage = "task_started"
	StageToolExecutionStarting  Stage = "tool_execution_starting"
	StageToolExecutionCompleted Stage = "tool_execution_completed"
	StageAnswerGenerating       Stage = "answer_generating"
	StageTaskCompleted          Stage = "task_completed"
	StageTaskFailed             Stage = "task_failed"
)

// ProgressEvent is one step of an agent task.
type ProgressEvent struct {
	Agent     string `json:"agent"`
	Stage     Stage  `json:"stage"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ProgressReporter is an interface for reporting agent execution progress
type ProgressReporter interface {
	Send(event *ProgressEvent) error
}

// NoOpProgressReporter implements ProgressReporter with no-op operations
type NoOpProgressReporter struct{}

func (r *NoOpProgressReporter) Send(event *ProgressEvent) error {
	return nil
}

// LogProgressReporter writes every event to the structured log.
type LogProgressReporter struct {
	TraceID string
}

func (r *LogProgressReporter) Send(event *ProgressEvent) error {
	fields := []zap.Field{
		zap.String("traceId", r.TraceID),
		zap.String("agent", event.Agent),
		zap.String("stage", string(event.Stage)),
	}
	if event.Stage == StageTaskFailed {
		logger.Error(event.Message, fields...)
		return nil
	}
	logger.Info(event.Message, fields...)
	return nil
}

// NewProgressUpdate creates a ProgressEvent stamped with the current time.
func NewProgressUpdate(agent string, stage Stage, message string) *ProgressEvent {
	return &ProgressEvent{
		Agent:     agent,
		Stage:     stage,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
}
