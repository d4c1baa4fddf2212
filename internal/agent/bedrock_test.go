package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

func noStreamErr() error { return nil }

func TestForwardStreamTranslatesEvents(t *testing.T) {
	src := make(chan types.ConverseStreamOutput, 8)
	src <- &types.ConverseStreamOutputMemberContentBlockDelta{
		Value: types.ContentBlockDeltaEvent{
			Delta: &types.ContentBlockDeltaMemberText{Value: "了解しました。"},
		},
	}
	src <- &types.ConverseStreamOutputMemberContentBlockStart{
		Value: types.ContentBlockStartEvent{
			Start: &types.ContentBlockStartMemberToolUse{
				Value: types.ToolUseBlockStart{
					ToolUseId: aws.String("call-1"),
					Name:      aws.String("health_manager_mcp"),
				},
			},
		},
	}
	src <- &types.ConverseStreamOutputMemberContentBlockDelta{
		Value: types.ContentBlockDeltaEvent{
			Delta: &types.ContentBlockDeltaMemberToolUse{
				Value: types.ToolUseBlockDelta{Input: aws.String(`{"tool_name":`)},
			},
		},
	}
	src <- &types.ConverseStreamOutputMemberContentBlockDelta{
		Value: types.ContentBlockDeltaEvent{
			Delta: &types.ContentBlockDeltaMemberToolUse{
				Value: types.ToolUseBlockDelta{Input: aws.String(`"get_weight"}`)},
			},
		},
	}
	src <- &types.ConverseStreamOutputMemberContentBlockStop{
		Value: types.ContentBlockStopEvent{},
	}
	src <- &types.ConverseStreamOutputMemberMessageStop{
		Value: types.MessageStopEvent{StopReason: types.StopReasonToolUse},
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		forwardStream(context.Background(), src, noStreamErr, events)
	}()

	var got []StreamEvent
	for ev := range events {
		got = append(got, ev)
	}

	if len(got) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(got), got)
	}
	if got[0].Text != "了解しました。" {
		t.Errorf("text = %q", got[0].Text)
	}
	call := got[1].ToolCall
	if call == nil {
		t.Fatal("second event is not a tool call")
	}
	if call.ID != "call-1" || call.Name != "health_manager_mcp" {
		t.Errorf("tool call = %+v", call)
	}
	if string(call.Input) != `{"tool_name":"get_weight"}` {
		t.Errorf("tool input = %q", call.Input)
	}
	if !got[2].Done || got[2].StopReason != StopToolUse {
		t.Errorf("final event = %+v, want done with stop reason %q", got[2], StopToolUse)
	}
}

func TestForwardStreamReportsStreamError(t *testing.T) {
	src := make(chan types.ConverseStreamOutput)
	close(src)
	streamErr := func() error { return errors.New("connection reset") }

	events := make(chan StreamEvent, 1)
	forwardStream(context.Background(), src, streamErr, events)

	ev := <-events
	if ev.Err == nil || ev.Err.Error() != "model stream: connection reset" {
		t.Fatalf("err = %v", ev.Err)
	}
}

// A caller that disconnects mid-stream stops receiving; the forwarder must
// still return so the SDK stream gets closed instead of leaking.
func TestForwardStreamReturnsWhenConsumerAbandons(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := make(chan types.ConverseStreamOutput, 1)
	src <- &types.ConverseStreamOutputMemberContentBlockDelta{
		Value: types.ContentBlockDeltaEvent{
			Delta: &types.ContentBlockDeltaMemberText{Value: "途中経過"},
		},
	}

	events := make(chan StreamEvent) // nobody ever reads
	returned := make(chan struct{})
	go func() {
		forwardStream(ctx, src, noStreamErr, events)
		close(returned)
	}()

	// Let the forwarder block on the unread send, then disconnect.
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder did not return after caller disconnect")
	}
}
