package memory

import (
	"fmt"
	"strings"

	"github.com/SaiNageswarS/medicode-agent/llm"
	"github.com/ollama/ollama/api"
)

// Conversation is the message history of one agent task. It lives only for
// the duration of the task.
type Conversation struct {
	ID       string
	Messages []llm.Message
}

func NewConversation(id string) *Conversation {
	return &Conversation{ID: id}
}

func (m *Conversation) AddUserMessage(content string) {
	m.Messages = append(m.Messages, llm.Message{Role: "user", Content: content})
}

func (m *Conversation) AddAssistantMessage(content string) {
	m.Messages = append(m.Messages, llm.Message{Role: "assistant", Content: content})
}

// AddToolCalls records which tools the assistant asked for, so the next turn
// sees its own request next to the results.
func (m *Conversation) AddToolCalls(calls []api.ToolCall) {
	if len(calls) == 0 {
		return
	}
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = fmt.Sprintf("%s(%v)", c.Function.Name, c.Function.Arguments)
	}
	m.AddAssistantMessage("Calling " + strings.Join(names, ", "))
}

func (m *Conversation) AddToolResult(content string) {
	m.Messages = append(m.Messages, llm.Message{Role: "user", Content: content, IsToolResult: true})
}
