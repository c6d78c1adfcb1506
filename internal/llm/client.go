// Package llm generates the funnel's persuasive replies through an ordered
// chain of language-model providers.
package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Request struct {
	Model       string
	System      []string
	Messages    []Message
	MaxTokens   int32
	Temperature float32
}

// Client completes a chat request. Implementations wrap
// types.ErrModelUnavailable when the requested model cannot be served.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
