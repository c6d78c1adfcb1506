package llm

import (
	"context"

	"github.com/BatmanBruc/hub-sales-bot/internal/funnel"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

const (
	defaultMaxTokens   = 1024
	defaultTemperature = 0.7
)

// Responder adapts a Client to the funnel's Generator.
type Responder struct {
	client      Client
	maxTokens   int32
	temperature float32
}

var _ funnel.Generator = (*Responder)(nil)

func NewResponder(client Client) *Responder {
	return &Responder{client: client, maxTokens: defaultMaxTokens, temperature: defaultTemperature}
}

func (r *Responder) Generate(ctx context.Context, req funnel.GenerationRequest) (string, error) {
	return r.client.Complete(ctx, Request{
		System:      []string{SystemPrompt(req.Stage, req.Scratch)},
		Messages:    conversation(req.History, req.Message),
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
}

// conversation maps the stored log to chat messages ending with the
// current lead message. Providers expect the first turn to be the user's
// and roles to alternate, so leading assistant turns are dropped and
// consecutive turns of one role are merged.
func conversation(history []types.ConversationEntry, message string) []Message {
	out := make([]Message, 0, len(history)+1)
	add := func(role, text string) {
		if text == "" {
			return
		}
		if len(out) == 0 && role != RoleUser {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n" + text
			return
		}
		out = append(out, Message{Role: role, Content: text})
	}
	for _, e := range history {
		switch e.Role {
		case types.RoleLead:
			add(RoleUser, e.Text)
		case types.RoleAssistant:
			add(RoleAssistant, e.Text)
		}
	}
	if message == "" {
		message = "..."
	}
	add(RoleUser, message)
	return out
}
