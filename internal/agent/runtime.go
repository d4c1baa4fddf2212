// Package agent runs the health coach conversation: it drives a streaming
// model runtime, executes tool calls the model requests, and feeds the
// resulting events into the caller's stream queue.
package agent

import (
	"context"
	"encoding/json"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Stop reasons reported by the runtime.
const (
	StopEndTurn = "end_turn"
	StopToolUse = "tool_use"
)

// ToolCall is a completed tool invocation request from the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is the textual outcome of one tool call.
type ToolResult struct {
	ToolCallID string
	Content    string
}

// Message is one conversation message in runtime form.
type Message struct {
	Role        string
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// StreamEvent is a raw generation event. Exactly one of Text, ToolCall, or
// Done is meaningful per event; Err terminates the stream.
type StreamEvent struct {
	Text       string
	ToolCall   *ToolCall
	Done       bool
	StopReason string
	Err        error
}

// Request is one streaming model turn.
type Request struct {
	Model    string
	System   string
	Messages []Message
	Tools    []ToolSpec
}

// ToolSpec describes a tool to the runtime.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Runtime streams one model turn. The returned channel is closed after the
// terminal event (Done or Err).
type Runtime interface {
	Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error)
}
