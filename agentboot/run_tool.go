package agentboot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// RunTool executes one tool call. Unknown tools and handler failures are
// returned as errors and end the task.
func (a *Agent) RunTool(ctx context.Context, reporter ProgressReporter, selection *api.ToolCall) (string, error) {
	toolInputsMD := formatToolInputsToMarkdown(selection.Function.Name, selection.Function.Arguments)
	reporter.Send(NewProgressUpdate(a.config.Name, StageToolExecutionStarting, toolInputsMD))

	tool := findToolByName(a.config.Tools, selection.Function.Name)
	if tool == nil {
		return "", fmt.Errorf("model requested unknown tool %q", selection.Function.Name)
	}

	result, err := tool.Handler(ctx, selection.Function.Arguments)
	if err != nil {
		logger.Error("Tool execution failed",
			zap.String("agent", a.config.Name),
			zap.String("tool", selection.Function.Name),
			zap.Error(err))
		return "", fmt.Errorf("tool %s: %w", selection.Function.Name, err)
	}

	reporter.Send(NewProgressUpdate(a.config.Name, StageToolExecutionCompleted,
		fmt.Sprintf("Tool %s completed successfully", selection.Function.Name)))
	return result, nil
}

// formatToolInputsToMarkdown formats tool inputs as markdown for progress messages
func formatToolInputsToMarkdown(toolName string, params api.ToolCallFunctionArguments) string {
	if len(params) == 0 {
		return fmt.Sprintf("Tool: `%s` (no parameters)", mdEscape(toolName))
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Tool: `%s`\n\n", mdEscape(toolName)))

	// Sort parameters for deterministic output
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("Parameters:\n")
	for _, k := range keys {
		var valueStr string
		switch v := params[k].(type) {
		case string:
			valueStr = v
		case []string:
			valueStr = strings.Join(v, ", ")
		case []any:
			strs := make([]string, len(v))
			for i, item := range v {
				strs[i] = fmt.Sprintf("%v", item)
			}
			valueStr = strings.Join(strs, ", ")
		default:
			valueStr = fmt.Sprintf("%v", v)
		}

		b.WriteString(fmt.Sprintf("- **%s**: %s\n", mdEscape(k), mdEscape(valueStr)))
	}

	return b.String()
}

// Minimal Markdown escaper for inline code and list items.
var mdReplacer = strings.NewReplacer(
	`\`, `\\`,
	"|", `\|`,
	"*", `\*`,
	"_", `\_`,
	"~", `\~`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"#", `\#`,
	"<", "&lt;",
	">", "&gt;",
)

func mdEscape(s string) string {
	return mdReplacer.Replace(s)
}
