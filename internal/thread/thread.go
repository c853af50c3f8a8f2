// Package thread persists the bounded conversation history for a profile.
// The on-disk format is a JSON array of items; structurally broken files are
// quarantined alongside the original and replaced with an empty thread.
package thread

import "fmt"

// Role tags a plain message item.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ItemType discriminates thread items.
type ItemType string

// Thread item types.
const (
	ItemMessage        ItemType = "message"
	ItemFunctionCall   ItemType = "function_call"
	ItemFunctionResult ItemType = "function_call_output"
	ItemReasoning      ItemType = "reasoning"
)

// Item is one entry of a conversation thread: a role-tagged message, a
// function call/result pair correlated by CallID, or a reasoning record for
// providers that mandate reasoning-before-action.
type Item struct {
	Type    ItemType `json:"type"`
	Role    Role     `json:"role,omitempty"`
	Content string   `json:"content,omitempty"`

	// Function call fields.
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// Message builds a plain message item.
func Message(role Role, content string) Item {
	return Item{Type: ItemMessage, Role: role, Content: content}
}

// FunctionCall builds a function-call item.
func FunctionCall(callID, name, arguments string) Item {
	return Item{Type: ItemFunctionCall, CallID: callID, Name: name, Arguments: arguments}
}

// FunctionResult builds the result item satisfying the call with callID.
func FunctionResult(callID, output string) Item {
	return Item{Type: ItemFunctionResult, CallID: callID, Output: output}
}

// validate checks the structural invariants of a loaded thread: every
// function call has a satisfying result, every result has its call, and
// (when required) a reasoning item precedes the first call. It returns a
// short reason slug usable in a quarantine filename.
func validate(items []Item, requireReasoning bool) (string, error) {
	callIDs := make(map[string]bool)
	resultIDs := make(map[string]bool)
	sawReasoning := false
	for _, item := range items {
		switch item.Type {
		case ItemReasoning:
			sawReasoning = true
		case ItemFunctionCall:
			callIDs[item.CallID] = true
			if requireReasoning && !sawReasoning {
				return "missing-reasoning", fmt.Errorf(
					"function call %s (%s) has no preceding reasoning item", item.CallID, item.Name)
			}
		case ItemFunctionResult:
			resultIDs[item.CallID] = true
		}
	}
	for id := range resultIDs {
		if !callIDs[id] {
			return "corrupted", fmt.Errorf("function result %s has no matching function call", id)
		}
	}
	for id := range callIDs {
		if !resultIDs[id] {
			return "corrupted", fmt.Errorf("function call %s has no satisfying function result", id)
		}
	}
	return "", nil
}
