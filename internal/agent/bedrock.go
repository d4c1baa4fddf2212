package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/healthmate/coachai/internal/retry"
)

// BedrockRuntime implements Runtime on the Bedrock ConverseStream API.
// Safe for concurrent use.
type BedrockRuntime struct {
	client *bedrockruntime.Client
	retry  retry.Config
	logger *slog.Logger
}

// BedrockConfig configures the runtime. Explicit credentials are optional;
// the default chain applies when they are empty.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// NewBedrockRuntime creates a runtime for the given region.
func NewBedrockRuntime(ctx context.Context, cfg BedrockConfig, logger *slog.Logger) (*BedrockRuntime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &BedrockRuntime{
		client: bedrockruntime.NewFromConfig(awsCfg),
		retry:  retry.DefaultConfig(),
		logger: logger.With("component", "bedrock"),
	}, nil
}

// Stream opens a ConverseStream call, retrying transient failures, and
// translates the SDK event stream into StreamEvents.
func (r *BedrockRuntime) Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(req.Model),
		Messages: convertMessages(req.Messages),
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = convertTools(req.Tools)
	}

	var out *bedrockruntime.ConverseStreamOutput
	err := retry.Do(ctx, r.retry, func() error {
		var callErr error
		out, callErr = r.client.ConverseStream(ctx, input)
		if callErr == nil {
			return nil
		}
		if !retryableModelError(callErr) {
			return retry.Permanent(callErr)
		}
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("converse stream: %w", err)
	}

	events := make(chan StreamEvent)
	go r.pump(ctx, out, events)
	return events, nil
}

// pump reads SDK stream events, assembling tool input deltas until the
// block closes, and forwards normalized events.
func (r *BedrockRuntime) pump(ctx context.Context, out *bedrockruntime.ConverseStreamOutput, events chan<- StreamEvent) {
	defer close(events)

	sdkStream := out.GetStream()
	defer sdkStream.Close()

	forwardStream(ctx, sdkStream.Events(), sdkStream.Err, events)
}

// forwardStream translates SDK stream events onto events. Every send races
// ctx so an abandoned consumer cannot strand the goroutine or hold the SDK
// HTTP stream open past caller disconnect.
func forwardStream(ctx context.Context, src <-chan types.ConverseStreamOutput, streamErr func() error, events chan<- StreamEvent) {
	emit := func(ev StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var pending *ToolCall
	var inputBuf strings.Builder

	for {
		select {
		case <-ctx.Done():
			emit(StreamEvent{Err: ctx.Err()})
			return
		case ev, ok := <-src:
			if !ok {
				if err := streamErr(); err != nil {
					emit(StreamEvent{Err: fmt.Errorf("model stream: %w", err)})
				} else {
					emit(StreamEvent{Done: true, StopReason: StopEndTurn})
				}
				return
			}

			switch ev := ev.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					pending = &ToolCall{
						ID:   aws.ToString(toolUse.Value.ToolUseId),
						Name: aws.ToString(toolUse.Value.Name),
					}
					inputBuf.Reset()
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						if !emit(StreamEvent{Text: delta.Value}) {
							return
						}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						inputBuf.WriteString(*delta.Value.Input)
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if pending != nil && pending.ID != "" {
					pending.Input = json.RawMessage(inputBuf.String())
					if !emit(StreamEvent{ToolCall: pending}) {
						return
					}
					pending = nil
					inputBuf.Reset()
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				emit(StreamEvent{Done: true, StopReason: string(ev.Value.StopReason)})
				return
			}
		}
	}
}

func convertMessages(messages []Message) []types.Message {
	result := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		var content []types.ContentBlock
		if msg.Text != "" {
			content = append(content, &types.ContentBlockMemberText{Value: msg.Text})
		}
		for _, tc := range msg.ToolCalls {
			var input any
			if err := json.Unmarshal(tc.Input, &input); err != nil {
				input = map[string]any{}
			}
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(input),
				},
			})
		}
		for _, tr := range msg.ToolResults {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(tr.ToolCallID),
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: tr.Content},
					},
				},
			})
		}
		if len(content) == 0 {
			continue
		}
		role := types.ConversationRoleUser
		if msg.Role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: content})
	}
	return result
}

func convertTools(specs []ToolSpec) *types.ToolConfiguration {
	bedrockTools := make([]types.Tool, len(specs))
	for i, spec := range specs {
		schema := spec.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		bedrockTools[i] = &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(spec.Name),
				Description: aws.String(spec.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		}
	}
	return &types.ToolConfiguration{Tools: bedrockTools}
}

// retryableModelError reports whether a ConverseStream failure is worth
// retrying: throttling, model warm-up, and 5xx transport errors.
func retryableModelError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailableException", "ModelNotReadyException", "InternalServerException":
			return true
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		return status == 429 || status >= 500
	}
	return false
}
