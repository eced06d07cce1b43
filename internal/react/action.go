// Package react implements the ReAct reasoning loop: a bounded,
// step-limited, token-budgeted state machine that interleaves LLM calls
// with tool invocations via the resolver.
package react

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Action is the parsed result of one LLM turn: exactly one of a tool call
// or a final answer.
type Action struct {
	Thought     string
	ToolName    string
	ToolInput   json.RawMessage
	FinalAnswer string
	IsFinal     bool
}

var (
	thoughtRe     = regexp.MustCompile(`(?is)Thought:\s*(.*?)(?:\nAction:|\nFinal Answer:|$)`)
	actionRe      = regexp.MustCompile(`(?im)^Action:[ \t]*(.*)$`)
	actionInputRe = regexp.MustCompile(`(?is)Action Input:\s*(.*?)(?:\n(?:Thought|Action|Final Answer):|$)`)
	finalAnswerRe = regexp.MustCompile(`(?is)Final Answer:\s*(.*)$`)
)

// ParseAction recognizes the Thought:/Action:/Action Input:/Final Answer:
// textual action grammar. If both a final answer and a tool call are
// present, the final answer wins. If multiple "Action:" blocks are
// present, only the first is parsed; subsequent occurrences are ignored
// for this step. Output that contains neither is a parse error.
func ParseAction(text string) (*Action, error) {
	action := &Action{}
	if m := thoughtRe.FindStringSubmatch(text); m != nil {
		action.Thought = strings.TrimSpace(m[1])
	}

	// Final Answer wins over any tool call present in the same output.
	if m := finalAnswerRe.FindStringSubmatch(text); m != nil {
		action.IsFinal = true
		action.FinalAnswer = strings.TrimSpace(m[1])
		return action, nil
	}

	nameMatch := actionRe.FindStringSubmatch(text)
	inputMatch := actionInputRe.FindStringSubmatch(text)
	if nameMatch == nil || inputMatch == nil {
		return nil, fmt.Errorf("react: output contains neither a parseable tool call nor a final answer")
	}

	name := strings.TrimSpace(nameMatch[1])
	if name == "" {
		return nil, fmt.Errorf("react: Action: line is empty")
	}
	raw := strings.TrimSpace(inputMatch[1])
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("react: Action Input is not valid JSON: %w", err)
	}

	action.ToolName = name
	action.ToolInput = json.RawMessage(raw)
	return action, nil
}
