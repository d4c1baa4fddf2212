package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func collectingEmit(events *[]Event) func(Event) error {
	return func(e Event) error {
		*events = append(*events, e)
		return nil
	}
}

func newTestMux() *Multiplexer {
	m := NewMultiplexer(slog.New(slog.NewTextHandler(testWriter{}, nil)))
	m.pollInterval = 5 * time.Millisecond
	return m
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRunOrdering(t *testing.T) {
	mux := newTestMux()
	var got []Event

	text, err := mux.Run(t.Context(), func(ctx context.Context, q *Queue) (string, error) {
		for _, ev := range []Event{
			TextDelta{Text: "a"},
			ToolUseStarted{ToolName: "x"},
			TextDelta{Text: "b"},
		} {
			if err := q.Publish(ctx, ev); err != nil {
				return "", err
			}
		}
		return "ab", nil
	}, collectingEmit(&got))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if text != "ab" {
		t.Errorf("accumulated text = %q, want %q", text, "ab")
	}

	want := []Event{
		ProgressNotice{Message: "Healthmate-CoachAIが起動中", Stage: StageStart},
		TextDelta{Text: "a"},
		ToolUseStarted{ToolName: "x"},
		TextDelta{Text: "b"},
		Complete{},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %#v, want %#v", i, got[i], want[i])
		}
	}
}

func TestRunDrainsAfterCompletion(t *testing.T) {
	mux := newTestMux()
	var got []Event

	// Enqueue everything at once and return immediately so the poll loop
	// only notices completion after the last event was enqueued.
	_, err := mux.Run(t.Context(), func(ctx context.Context, q *Queue) (string, error) {
		for i := 0; i < 5; i++ {
			if err := q.Publish(ctx, TextDelta{Text: "chunk"}); err != nil {
				return "", err
			}
		}
		return "", nil
	}, collectingEmit(&got))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var deltas int
	for _, ev := range got {
		if _, ok := ev.(TextDelta); ok {
			deltas++
		}
	}
	if deltas != 5 {
		t.Errorf("got %d text deltas, want 5 (no event loss on drain)", deltas)
	}
	if _, ok := got[len(got)-1].(Complete); !ok {
		t.Errorf("last event = %#v, want Complete", got[len(got)-1])
	}
}

func TestRunProducerError(t *testing.T) {
	mux := newTestMux()
	var got []Event

	boom := errors.New("memory store unavailable")
	_, err := mux.Run(t.Context(), func(ctx context.Context, q *Queue) (string, error) {
		if err := q.Publish(ctx, TextDelta{Text: "partial"}); err != nil {
			return "", err
		}
		return "", boom
	}, collectingEmit(&got))
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}

	var sawErrorNotice bool
	for _, ev := range got {
		if _, ok := ev.(ErrorNotice); ok {
			sawErrorNotice = true
		}
	}
	if !sawErrorNotice {
		t.Error("no ErrorNotice in stream")
	}

	last, ok := got[len(got)-1].(TextDelta)
	if !ok {
		t.Fatalf("last event = %#v, want terminal TextDelta", got[len(got)-1])
	}
	if !strings.Contains(last.Text, "申し訳ございません") || !strings.Contains(last.Text, "memory store unavailable") {
		t.Errorf("terminal text = %q, want apology with cause", last.Text)
	}
}

func TestRunContextCanceled(t *testing.T) {
	mux := newTestMux()
	ctx, cancel := context.WithCancel(t.Context())

	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	_, err := mux.Run(ctx, func(ctx context.Context, q *Queue) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}, func(Event) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
}

func TestEventWireShapes(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			"text delta",
			TextDelta{Text: "こんにちは"},
			`{"event":{"contentBlockDelta":{"delta":{"text":"こんにちは"}}}}`,
		},
		{
			"tool use started",
			ToolUseStarted{ToolName: "health_manager_mcp"},
			`{"event":{"subAgentProgress":{"message":"健康データをhealth_manager_mcpで処理中","stage":"tool_use","tool_name":"health_manager_mcp"}}}`,
		},
		{
			"progress without tool name",
			ProgressNotice{Message: "起動中", Stage: StageStart},
			`{"event":{"subAgentProgress":{"message":"起動中","stage":"start"}}}`,
		},
		{
			"error notice",
			ErrorNotice{Message: "失敗"},
			`{"event":{"subAgentProgress":{"message":"失敗","stage":"error"}}}`,
		},
		{
			"complete",
			Complete{},
			`{"event":{"subAgentProgress":{"message":"Healthmate-CoachAIが応答を完了","stage":"complete"}}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(b) != tt.want {
				t.Errorf("marshal = %s, want %s", b, tt.want)
			}
		})
	}
}

func TestQueueBackpressure(t *testing.T) {
	q := NewQueue(1)
	ctx := t.Context()

	if err := q.Publish(ctx, TextDelta{Text: "a"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// Queue full: a second publish must block until canceled.
	full, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := q.Publish(full, TextDelta{Text: "b"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Publish on full queue = %v, want deadline exceeded", err)
	}
}
