package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultPollInterval is the bounded wait per dequeue attempt. It is the
// latency floor for noticing producer completion.
const DefaultPollInterval = 100 * time.Millisecond

// Producer runs the model invocation, publishing events to the queue as
// they occur, and returns the full accumulated response text.
type Producer func(ctx context.Context, q *Queue) (string, error)

// Multiplexer interleaves a producer's queued events with progress notices
// into one ordered outbound stream, guaranteeing full queue drainage after
// the producer finishes or fails.
type Multiplexer struct {
	logger       *slog.Logger
	pollInterval time.Duration
	queueDepth   int
}

// NewMultiplexer creates a multiplexer with default poll interval and
// queue depth.
func NewMultiplexer(logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multiplexer{
		logger:       logger.With("component", "stream"),
		pollInterval: DefaultPollInterval,
		queueDepth:   DefaultQueueDepth,
	}
}

type producerResult struct {
	text string
	err  error
}

// Run launches the producer as a background task and forwards queued events
// to emit in enqueue order. After the producer completes, any remaining
// queued events are drained without waiting. On producer failure a single
// error notice is enqueued and a terminal text event closes the stream.
// The accumulated response text is returned either way.
func (m *Multiplexer) Run(ctx context.Context, produce Producer, emit func(Event) error) (string, error) {
	q := NewQueue(m.queueDepth)

	if err := q.Publish(ctx, ProgressNotice{Message: "Healthmate-CoachAIが起動中", Stage: StageStart}); err != nil {
		return "", err
	}

	done := make(chan producerResult, 1)
	go func() {
		text, err := produce(ctx, q)
		if err != nil {
			m.logger.Error("producer failed", "error", err)
			_ = q.Publish(ctx, ErrorNotice{Message: "処理中にエラーが発生しました"})
		} else {
			_ = q.Publish(ctx, Complete{})
		}
		done <- producerResult{text: text, err: err}
	}()

	for {
		select {
		case ev := <-q.ch:
			if err := emit(ev); err != nil {
				return "", fmt.Errorf("emit event: %w", err)
			}
		case <-time.After(m.pollInterval):
			select {
			case res := <-done:
				return m.finish(q, res, emit)
			default:
				// Producer still running.
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// finish drains remaining queued events non-blockingly, then emits the
// terminal text event if the producer failed.
func (m *Multiplexer) finish(q *Queue, res producerResult, emit func(Event) error) (string, error) {
	for {
		ev, ok := q.TryRecv()
		if !ok {
			break
		}
		if err := emit(ev); err != nil {
			return "", fmt.Errorf("emit event: %w", err)
		}
	}
	if res.err != nil {
		terminal := TextDelta{Text: fmt.Sprintf("申し訳ございません。処理中にエラーが発生しました: %v", res.err)}
		if err := emit(terminal); err != nil {
			return "", fmt.Errorf("emit event: %w", err)
		}
		return res.text, res.err
	}
	m.logger.Debug("stream complete", "response_chars", len(res.text))
	return res.text, nil
}
