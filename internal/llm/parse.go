package llm

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/jdelaney/brokerbot/internal/models"
)

// pseudoCallPattern matches quoted pseudo-code invocations such as
// print(buy(ticker='AAPL', shares=5)) or a bare fn(arg='value').
var pseudoCallPattern = regexp.MustCompile(`(?:print\(\s*)?([A-Za-z_][A-Za-z0-9_]*)\s*\(([^()]*)\)`)

// ParseFreeText extracts tool calls embedded in free-form model output. It
// recognizes JSON objects/arrays ({"tool":...,"parameters":...} shapes and
// tool_code arrays) and pseudo-code invocations of known tools. Text with no
// recognizable call yields nil, which callers treat as "no action taken".
func ParseFreeText(text string) []models.ToolCall {
	if text == "" {
		return nil
	}

	calls := parseEmbeddedJSON(text)
	if len(calls) > 0 {
		return calls
	}
	return parsePseudoCode(text)
}

func parseEmbeddedJSON(text string) []models.ToolCall {
	var calls []models.ToolCall
	for _, block := range extractJSONBlocks(text) {
		var obj any
		if err := json.Unmarshal([]byte(block), &obj); err != nil {
			continue
		}
		calls = append(calls, callsFromValue(obj)...)
	}
	return calls
}

// callsFromValue converts a decoded JSON value to tool calls: a single call
// object, a tool_code wrapper, or an array of either.
func callsFromValue(v any) []models.ToolCall {
	switch val := v.(type) {
	case map[string]any:
		if wrapped, ok := val["tool_code"].([]any); ok {
			var calls []models.ToolCall
			for _, entry := range wrapped {
				calls = append(calls, callsFromValue(entry)...)
			}
			return calls
		}
		if call, ok := callFromMap(val); ok {
			return []models.ToolCall{call}
		}
	case []any:
		var calls []models.ToolCall
		for _, entry := range val {
			calls = append(calls, callsFromValue(entry)...)
		}
		return calls
	}
	return nil
}

func callFromMap(m map[string]any) (models.ToolCall, bool) {
	name, _ := m["tool"].(string)
	if name == "" {
		// A bare "name" key also appears in ordinary JSON the model quotes
		// back at us, so only treat it as a call for known tools.
		if candidate, _ := m["name"].(string); models.IsKnownTool(candidate) {
			name = candidate
		}
	}
	if name == "" {
		return models.ToolCall{}, false
	}

	args := map[string]any{}
	for _, key := range []string{"parameters", "args", "arguments", "input"} {
		if raw, ok := m[key]; ok {
			if asMap, ok := raw.(map[string]any); ok {
				args = asMap
			}
			break
		}
	}
	return models.ToolCall{Name: name, Args: args}, true
}

// extractJSONBlocks returns each balanced {...} or [...] block in text,
// tracking string state so braces inside quoted values do not confuse the
// scanner.
func extractJSONBlocks(text string) []string {
	var blocks []string
	for i := 0; i < len(text); i++ {
		open := text[i]
		if open != '{' && open != '[' {
			continue
		}
		var close byte = '}'
		if open == '[' {
			close = ']'
		}

		depth := 0
		inString := false
		escaped := false
		for j := i; j < len(text); j++ {
			c := text[j]
			if escaped {
				escaped = false
				continue
			}
			switch {
			case c == '\\' && inString:
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == open:
				depth++
			case c == close:
				depth--
				if depth == 0 {
					blocks = append(blocks, text[i:j+1])
					i = j
					j = len(text)
				}
			}
		}
	}
	return blocks
}

// parsePseudoCode recognizes quoted invocations of known tools only, so
// ordinary prose with parentheses is never mistaken for an action.
func parsePseudoCode(text string) []models.ToolCall {
	var calls []models.ToolCall
	for _, match := range pseudoCallPattern.FindAllStringSubmatch(text, -1) {
		name := match[1]
		if !models.IsKnownTool(name) {
			continue
		}
		calls = append(calls, models.ToolCall{Name: name, Args: parseCallArgs(match[2])})
	}
	return calls
}

// parseCallArgs tokenizes "ticker='AAPL', shares=5" by quote-aware comma
// splitting.
func parseCallArgs(raw string) map[string]any {
	args := map[string]any{}
	for _, part := range splitArgs(raw) {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		args[key] = parseArgValue(strings.TrimSpace(value))
	}
	return args
}

// splitArgs splits on commas that are not inside single or double quotes.
func splitArgs(raw string) []string {
	var parts []string
	var current strings.Builder
	var quote byte
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			current.WriteByte(c)
		case c == '\'' || c == '"':
			quote = c
			current.WriteByte(c)
		case c == ',':
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

func parseArgValue(value string) any {
	if len(value) >= 2 {
		if (value[0] == '\'' && value[len(value)-1] == '\'') ||
			(value[0] == '"' && value[len(value)-1] == '"') {
			return value[1 : len(value)-1]
		}
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}
