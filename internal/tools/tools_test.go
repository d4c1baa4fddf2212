package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/healthmate/coachai/internal/mcp"
	"github.com/healthmate/coachai/internal/observability"
)

type fakeGateway struct {
	tools    []mcp.Tool
	listErr  error
	result   json.RawMessage
	callErr  error
	lastName string
	lastArgs map[string]any
}

func (f *fakeGateway) ListTools(context.Context) ([]mcp.Tool, error) {
	return f.tools, f.listErr
}

func (f *fakeGateway) CallTool(_ context.Context, name string, arguments map[string]any) (json.RawMessage, error) {
	f.lastName = name
	f.lastArgs = arguments
	return f.result, f.callErr
}

func newTestRegistry(gw Gateway) *Registry {
	return NewRegistry(gw, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistryDefinitions(t *testing.T) {
	r := newTestRegistry(&fakeGateway{})
	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("got %d definitions, want 2", len(defs))
	}
	if defs[0].Name != "list_health_tools" || defs[1].Name != "health_manager_mcp" {
		t.Errorf("definition names = %q, %q", defs[0].Name, defs[1].Name)
	}
}

func TestListHealthToolsFormatting(t *testing.T) {
	gw := &fakeGateway{tools: []mcp.Tool{
		{
			Name:        "get_weight",
			Description: "体重記録を取得",
			InputSchema: mcp.InputSchema{
				Type: "object",
				Properties: map[string]mcp.Property{
					"date":  {Type: "string", Description: "取得する日付"},
					"limit": {Type: "integer", Description: "件数"},
				},
				Required: []string{"date"},
			},
		},
		{Name: "log_meal", Description: "食事を記録"},
	}}
	out := newTestRegistry(gw).Execute(t.Context(), "list_health_tools", nil)

	checks := []string{
		"利用可能なHealthManagerMCPツール (2個):",
		"**get_weight**",
		"説明: 体重記録を取得",
		"- date (string) (必須): 取得する日付",
		"- limit (integer) (任意): 件数",
		"**log_meal**",
	}
	for _, want := range checks {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\noutput:\n%s", want, out)
		}
	}
}

func TestListHealthToolsEmpty(t *testing.T) {
	out := newTestRegistry(&fakeGateway{}).Execute(t.Context(), "list_health_tools", nil)
	if out != "利用可能なツールが見つかりませんでした。" {
		t.Errorf("output = %q", out)
	}
}

func TestListHealthToolsErrorAbsorbed(t *testing.T) {
	gw := &fakeGateway{listErr: errors.New("gateway unreachable")}
	out := newTestRegistry(gw).Execute(t.Context(), "list_health_tools", nil)
	if !strings.HasPrefix(out, "ツールリスト取得エラー:") || !strings.Contains(out, "gateway unreachable") {
		t.Errorf("output = %q, want absorbed error string", out)
	}
}

func TestHealthManagerMCPPassesThrough(t *testing.T) {
	gw := &fakeGateway{result: json.RawMessage(`{"content":[{"text":"血圧: 120/80"}]}`)}
	r := newTestRegistry(gw)

	out := r.Execute(t.Context(), "health_manager_mcp", map[string]any{
		"tool_name": "get_blood_pressure",
		"arguments": map[string]any{"date": "2026-08-25"},
	})
	if out != "血圧: 120/80" {
		t.Errorf("output = %q", out)
	}
	if gw.lastName != "get_blood_pressure" {
		t.Errorf("gateway called with %q", gw.lastName)
	}
	if gw.lastArgs["date"] != "2026-08-25" {
		t.Errorf("gateway args = %v", gw.lastArgs)
	}
}

func TestHealthManagerMCPEmptyResult(t *testing.T) {
	gw := &fakeGateway{result: nil}
	out := newTestRegistry(gw).Execute(t.Context(), "health_manager_mcp", map[string]any{"tool_name": "x"})
	if out != "ツールの実行結果が空でした。" {
		t.Errorf("output = %q", out)
	}
}

func TestHealthManagerMCPErrorAbsorbed(t *testing.T) {
	gw := &fakeGateway{callErr: &mcp.GatewayError{Kind: mcp.KindAuthorization, Status: 403, Message: "MCP Gateway認可エラー: 必要な権限がありません。"}}
	out := newTestRegistry(gw).Execute(t.Context(), "health_manager_mcp", map[string]any{"tool_name": "x"})
	if !strings.HasPrefix(out, "HealthManagerMCP呼び出しエラー:") {
		t.Errorf("output = %q, want absorbed error string", out)
	}
}

func TestHealthManagerMCPMissingToolName(t *testing.T) {
	out := newTestRegistry(&fakeGateway{}).Execute(t.Context(), "health_manager_mcp", nil)
	if !strings.Contains(out, "tool_name") {
		t.Errorf("output = %q, want tool_name error", out)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	out := newTestRegistry(&fakeGateway{}).Execute(t.Context(), "nope", nil)
	if !strings.Contains(out, "不明なツール") {
		t.Errorf("output = %q", out)
	}
}

func TestExecuteRecordsToolMetrics(t *testing.T) {
	m := observability.NewMetricsWithRegistry(prometheus.NewRegistry())
	gw := &fakeGateway{
		result:  json.RawMessage(`{"content":[{"text":"ok"}]}`),
		listErr: errors.New("gateway unreachable"),
	}
	r := NewRegistry(gw, m, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r.Execute(t.Context(), "health_manager_mcp", map[string]any{"tool_name": "get_weight"})
	r.Execute(t.Context(), "list_health_tools", nil)
	r.Execute(t.Context(), "nope", nil)

	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("health_manager_mcp", "success")); got != 1 {
		t.Errorf("health_manager_mcp success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("list_health_tools", "error")); got != 1 {
		t.Errorf("list_health_tools error count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("nope", "error")); got != 1 {
		t.Errorf("unknown tool error count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ErrorCounter.WithLabelValues("tools", "list_health_tools")); got != 1 {
		t.Errorf("tools error count = %v, want 1", got)
	}
}
