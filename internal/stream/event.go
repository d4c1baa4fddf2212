// Package stream implements the caller-facing event stream: a typed event
// union with its wire encoding, a bounded FIFO queue, and the multiplexer
// that interleaves a background producer's output with progress notices.
package stream

import (
	"encoding/json"
	"fmt"
)

// Progress stages carried on subAgentProgress events.
const (
	StageStart    = "start"
	StageToolUse  = "tool_use"
	StageComplete = "complete"
	StageError    = "error"
)

// Event is one item of the outbound stream. Concrete types marshal to the
// AgentCore event envelope consumed by callers.
type Event interface {
	json.Marshaler
	isEvent()
}

// Wire envelope: {"event": {...}} with exactly one of the inner members set.
type envelope struct {
	Event eventBody `json:"event"`
}

type eventBody struct {
	ContentBlockDelta *contentBlockDelta `json:"contentBlockDelta,omitempty"`
	SubAgentProgress  *subAgentProgress  `json:"subAgentProgress,omitempty"`
}

type contentBlockDelta struct {
	Delta textDelta `json:"delta"`
}

type textDelta struct {
	Text string `json:"text"`
}

type subAgentProgress struct {
	Message  string `json:"message"`
	Stage    string `json:"stage"`
	ToolName string `json:"tool_name,omitempty"`
}

// TextDelta is an incremental chunk of generated text.
type TextDelta struct {
	Text string
}

func (TextDelta) isEvent() {}

func (e TextDelta) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{eventBody{
		ContentBlockDelta: &contentBlockDelta{Delta: textDelta{Text: e.Text}},
	}})
}

// ToolUseStarted signals that the model began invoking a tool.
type ToolUseStarted struct {
	ToolName string
}

func (ToolUseStarted) isEvent() {}

func (e ToolUseStarted) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{eventBody{
		SubAgentProgress: &subAgentProgress{
			Message:  fmt.Sprintf("健康データを%sで処理中", e.ToolName),
			Stage:    StageToolUse,
			ToolName: e.ToolName,
		},
	}})
}

// ProgressNotice is a human-readable status update.
type ProgressNotice struct {
	Message  string
	Stage    string
	ToolName string
}

func (ProgressNotice) isEvent() {}

func (e ProgressNotice) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{eventBody{
		SubAgentProgress: &subAgentProgress{
			Message:  e.Message,
			Stage:    e.Stage,
			ToolName: e.ToolName,
		},
	}})
}

// ErrorNotice reports a fatal producer failure as a status update. The
// terminal text event follows separately.
type ErrorNotice struct {
	Message string
}

func (ErrorNotice) isEvent() {}

func (e ErrorNotice) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{eventBody{
		SubAgentProgress: &subAgentProgress{
			Message: e.Message,
			Stage:   StageError,
		},
	}})
}

// Complete marks a normal end of generation.
type Complete struct{}

func (Complete) isEvent() {}

func (e Complete) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{eventBody{
		SubAgentProgress: &subAgentProgress{
			Message: "Healthmate-CoachAIが応答を完了",
			Stage:   StageComplete,
		},
	}})
}
