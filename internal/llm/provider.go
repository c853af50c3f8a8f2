// Package llm abstracts model providers behind one conversation interface
// and normalizes their heterogeneous tool-calling protocols (structured
// function calls, quoted pseudo-code, JSON embedded in free text) into the
// canonical models.ToolCall. The dispatcher never branches on provider
// identity.
package llm

import (
	"context"

	"github.com/jdelaney/brokerbot/internal/models"
	"github.com/jdelaney/brokerbot/internal/thread"
)

// ToolSpec is one entry of the declarative tool catalog sent to the model:
// a name, a description, and a JSON-schema-like parameter spec.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Reply is one model turn: free text, structured tool calls, or both.
type Reply struct {
	Text      string
	ToolCalls []models.ToolCall
}

// Provider is a model provider able to continue a conversation given the
// thread so far and the tool catalog.
type Provider interface {
	// Name identifies the provider/model for logs and reports.
	Name() string
	// Complete sends the conversation and returns the model's next turn.
	Complete(ctx context.Context, items []thread.Item, tools []ToolSpec) (*Reply, error)
	// Validate performs a lightweight call to fail fast on bad credentials.
	Validate(ctx context.Context) error
}

// Calls returns the reply's tool calls, falling back to parsing the free
// text for embedded JSON or pseudo-code invocations when the provider did
// not use native function calling.
func (r *Reply) Calls() []models.ToolCall {
	if len(r.ToolCalls) > 0 {
		return r.ToolCalls
	}
	return ParseFreeText(r.Text)
}
