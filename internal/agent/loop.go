package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/healthmate/coachai/internal/auth"
	"github.com/healthmate/coachai/internal/memory"
	"github.com/healthmate/coachai/internal/stream"
	"github.com/healthmate/coachai/internal/tools"
)

// maxToolIterations bounds the generate/execute-tools cycle so a model stuck
// requesting tools cannot loop forever.
const maxToolIterations = 8

// ToolExecutor is the tool surface the loop drives. tools.Registry
// implements it.
type ToolExecutor interface {
	Definitions() []tools.Definition
	Execute(ctx context.Context, name string, args map[string]any) string
}

// Coach runs one health coach conversation turn end to end: history load,
// model streaming, tool execution, and history append.
type Coach struct {
	runtime       Runtime
	executor      ToolExecutor
	store         memory.Store
	modelID       string
	historyWindow int
	logger        *slog.Logger
}

// NewCoach wires the conversation loop.
func NewCoach(runtime Runtime, executor ToolExecutor, store memory.Store, modelID string, historyWindow int, logger *slog.Logger) *Coach {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coach{
		runtime:       runtime,
		executor:      executor,
		store:         store,
		modelID:       modelID,
		historyWindow: historyWindow,
		logger:        logger.With("component", "coach"),
	}
}

// Respond streams the model's answer to prompt into q and returns the full
// accumulated text. Tool calls requested by the model are executed between
// streaming turns; their failures come back as result strings, never as
// errors. Errors returned here are fatal to the request.
func (c *Coach) Respond(ctx context.Context, scope memory.Scope, system, prompt string, q *stream.Queue) (string, error) {
	logger := c.requestLogger(ctx)

	history, err := c.store.Recent(ctx, scope, c.historyWindow)
	if err != nil {
		return "", fmt.Errorf("load conversation history: %w", err)
	}

	messages := make([]Message, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, Message{Role: string(turn.Role), Text: turn.Content})
	}
	messages = append(messages, Message{Role: RoleUser, Text: prompt})

	specs := c.toolSpecs()
	var total string

	for iteration := 0; ; iteration++ {
		if iteration >= maxToolIterations {
			logger.Warn("tool iteration cap reached", "iterations", iteration)
			break
		}

		events, err := c.runtime.Stream(ctx, &Request{
			Model:    c.modelID,
			System:   system,
			Messages: messages,
			Tools:    specs,
		})
		if err != nil {
			return "", err
		}

		var turnText string
		var calls []ToolCall
		var stopReason string
		for ev := range events {
			switch {
			case ev.Err != nil:
				return "", ev.Err
			case ev.Text != "":
				turnText += ev.Text
				total += ev.Text
				if err := q.Publish(ctx, stream.TextDelta{Text: ev.Text}); err != nil {
					return "", err
				}
			case ev.ToolCall != nil:
				if err := q.Publish(ctx, stream.ToolUseStarted{ToolName: ev.ToolCall.Name}); err != nil {
					return "", err
				}
				calls = append(calls, *ev.ToolCall)
			case ev.Done:
				stopReason = ev.StopReason
			}
		}

		if len(calls) == 0 || stopReason == StopEndTurn {
			break
		}

		assistant := Message{Role: RoleAssistant, Text: turnText, ToolCalls: calls}
		results := Message{Role: RoleUser}
		for _, call := range calls {
			logger.Info("executing tool", "tool", call.Name)
			results.ToolResults = append(results.ToolResults, ToolResult{
				ToolCallID: call.ID,
				Content:    c.executor.Execute(ctx, call.Name, decodeArgs(call.Input)),
			})
		}
		messages = append(messages, assistant, results)
	}

	c.appendTurns(ctx, scope, prompt, total)
	return total, nil
}

// requestLogger attributes loop logs to the caller the server resolved for
// this request.
func (c *Coach) requestLogger(ctx context.Context) *slog.Logger {
	if id, ok := auth.IdentityFromContext(ctx); ok {
		return c.logger.With("actor", id.Subject, "language", id.Language)
	}
	return c.logger
}

// appendTurns records the exchange. The response has already streamed to
// the caller, so a write failure is logged rather than surfaced.
func (c *Coach) appendTurns(ctx context.Context, scope memory.Scope, prompt, response string) {
	if err := c.store.Append(ctx, scope, memory.Turn{Role: memory.RoleUser, Content: prompt}); err != nil {
		c.logger.Warn("record user turn", "error", err)
		return
	}
	if response == "" {
		return
	}
	if err := c.store.Append(ctx, scope, memory.Turn{Role: memory.RoleAssistant, Content: response}); err != nil {
		c.logger.Warn("record assistant turn", "error", err)
	}
}

func (c *Coach) toolSpecs() []ToolSpec {
	defs := c.executor.Definitions()
	specs := make([]ToolSpec, len(defs))
	for i, def := range defs {
		specs[i] = ToolSpec{Name: def.Name, Description: def.Description, InputSchema: def.InputSchema}
	}
	return specs
}

func decodeArgs(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{}
	}
	return args
}
