// Package tools defines the two tools exposed to the health coach model:
// a catalog listing of the remote HealthManager MCP gateway and a generic
// proxy that invokes a named gateway tool. Tool failures are absorbed into
// descriptive result strings so the model can react in conversation; they
// never abort the stream.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/healthmate/coachai/internal/mcp"
	"github.com/healthmate/coachai/internal/observability"
)

// Gateway is the subset of the MCP client the tools depend on.
type Gateway interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (json.RawMessage, error)
}

// Handler executes one tool call. Handlers always return a result string;
// errors are folded into the string.
type Handler func(ctx context.Context, args map[string]any) string

// Definition describes a tool to the model runtime.
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Registry holds the tool definitions and their handlers.
type Registry struct {
	defs     []Definition
	handlers map[string]Handler
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	logger   *slog.Logger
}

// NewRegistry builds the registry with both health tools wired to the
// gateway. metrics and tracer may be nil.
func NewRegistry(gw Gateway, metrics *observability.Metrics, tracer *observability.Tracer, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		handlers: make(map[string]Handler),
		metrics:  metrics,
		tracer:   tracer,
		logger:   logger.With("component", "tools"),
	}
	r.register(Definition{
		Name:        "list_health_tools",
		Description: "HealthManagerMCPで利用可能なツールのリストを取得（ページング対応）",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}, r.listHealthTools(gw))
	r.register(Definition{
		Name:        "health_manager_mcp",
		Description: "HealthManagerMCPサーバーのツールを呼び出す汎用ツール",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tool_name": map[string]any{
					"type":        "string",
					"description": "呼び出すHealthManagerMCPツールの名前",
				},
				"arguments": map[string]any{
					"type":        "object",
					"description": "ツールに渡す引数",
				},
			},
			"required": []any{"tool_name"},
		},
	}, r.healthManagerMCP(gw))
	return r
}

func (r *Registry) register(def Definition, h Handler) {
	r.defs = append(r.defs, def)
	r.handlers[def.Name] = h
}

// Definitions returns the tool definitions in registration order.
func (r *Registry) Definitions() []Definition {
	return r.defs
}

// Execute runs the named tool. An unknown name is absorbed like any other
// tool failure.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	ctx, end := r.startSpan(ctx, name)
	defer end()

	h, ok := r.handlers[name]
	if !ok {
		r.observe(ctx, name, fmt.Errorf("unknown tool %q", name))
		return fmt.Sprintf("不明なツールです: %s", name)
	}
	return h(ctx, args)
}

func (r *Registry) startSpan(ctx context.Context, name string) (context.Context, func()) {
	if r.tracer == nil {
		return ctx, func() {}
	}
	ctx, span := r.tracer.StartToolExecution(ctx, name)
	return ctx, func() { span.End() }
}

// observe records one execution outcome; a nil err counts as success.
func (r *Registry) observe(ctx context.Context, name string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	if r.metrics != nil {
		r.metrics.ToolExecutionCounter.WithLabelValues(name, status).Inc()
		if err != nil {
			r.metrics.ErrorCounter.WithLabelValues("tools", name).Inc()
		}
	}
	if r.tracer != nil && err != nil {
		r.tracer.RecordError(trace.SpanFromContext(ctx), err)
	}
}

func (r *Registry) listHealthTools(gw Gateway) Handler {
	return func(ctx context.Context, _ map[string]any) string {
		catalog, err := gw.ListTools(ctx)
		if err != nil {
			r.logger.Error("tool catalog fetch failed", "error", err)
			r.observe(ctx, "list_health_tools", err)
			return fmt.Sprintf("ツールリスト取得エラー: %v", err)
		}
		r.observe(ctx, "list_health_tools", nil)
		if len(catalog) == 0 {
			return "利用可能なツールが見つかりませんでした。"
		}
		return formatCatalog(catalog)
	}
}

func formatCatalog(catalog []mcp.Tool) string {
	blocks := make([]string, 0, len(catalog))
	for _, tool := range catalog {
		var b strings.Builder
		name := tool.Name
		if name == "" {
			name = "Unknown"
		}
		desc := tool.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(&b, "**%s**\n説明: %s\n", name, desc)

		if len(tool.InputSchema.Properties) > 0 {
			b.WriteString("パラメータ:\n")
			required := make(map[string]bool, len(tool.InputSchema.Required))
			for _, name := range tool.InputSchema.Required {
				required[name] = true
			}
			names := make([]string, 0, len(tool.InputSchema.Properties))
			for propName := range tool.InputSchema.Properties {
				names = append(names, propName)
			}
			sort.Strings(names)
			for _, propName := range names {
				prop := tool.InputSchema.Properties[propName]
				propType := prop.Type
				if propType == "" {
					propType = "unknown"
				}
				mark := " (任意)"
				if required[propName] {
					mark = " (必須)"
				}
				fmt.Fprintf(&b, "  - %s (%s)%s: %s\n", propName, propType, mark, prop.Description)
			}
		}
		blocks = append(blocks, b.String())
	}
	return fmt.Sprintf("利用可能なHealthManagerMCPツール (%d個):\n\n", len(catalog)) + strings.Join(blocks, "\n")
}

func (r *Registry) healthManagerMCP(gw Gateway) Handler {
	return func(ctx context.Context, args map[string]any) string {
		toolName, _ := args["tool_name"].(string)
		if toolName == "" {
			r.observe(ctx, "health_manager_mcp", fmt.Errorf("tool_name missing"))
			return "HealthManagerMCP呼び出しエラー: tool_name が指定されていません。"
		}
		arguments, _ := args["arguments"].(map[string]any)

		raw, err := gw.CallTool(ctx, toolName, arguments)
		if err != nil {
			r.logger.Error("gateway tool call failed", "tool", toolName, "error", err)
			r.observe(ctx, "health_manager_mcp", err)
			return fmt.Sprintf("HealthManagerMCP呼び出しエラー: %v", err)
		}
		r.observe(ctx, "health_manager_mcp", nil)
		res := mcp.NormalizeResult(raw)
		if res.Text == "" {
			return "ツールの実行結果が空でした。"
		}
		return res.Text
	}
}
