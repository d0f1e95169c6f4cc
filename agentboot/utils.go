package agentboot

import (
	"time"

	"github.com/ollama/ollama/api"
)

func getCurrentTimeMs() int64 {
	return time.Now().UnixMilli()
}

// findToolByName finds a Tool by its function name
func findToolByName(tools []Tool, name string) *Tool {
	for i := range tools {
		if tools[i].Function.Name == name {
			return &tools[i]
		}
	}
	return nil
}

// toAPITools converts Tools to api.Tools for native tool calling
func toAPITools(tools []Tool) []api.Tool {
	apiTools := make([]api.Tool, len(tools))
	for i, tool := range tools {
		apiTools[i] = tool.Tool
	}
	return apiTools
}
