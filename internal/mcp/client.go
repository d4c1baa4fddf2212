package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/healthmate/coachai/internal/auth"
	"github.com/healthmate/coachai/internal/observability"
)

const (
	// callTimeout is the fixed per-call budget for every gateway request.
	callTimeout = 30 * time.Second

	// maxToolPages bounds tools/list pagination against a misbehaving
	// gateway. Hitting the cap returns partial results, not an error.
	maxToolPages = 10

	// maxErrorBody limits how much of an error response body is kept.
	maxErrorBody = 8192
)

// Client calls the HealthManager tool gateway over JSON-RPC 2.0.
type Client struct {
	endpoint string
	creds    auth.CredentialSource
	httpc    *http.Client
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	logger   *slog.Logger
}

// NewClient builds a gateway client. Credentials are fetched from the source
// before each outbound request so refreshes stay transparent. metrics and
// tracer may be nil.
func NewClient(endpoint string, creds auth.CredentialSource, metrics *observability.Metrics, tracer *observability.Tracer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		creds:    creds,
		httpc:    &http.Client{Timeout: callTimeout},
		metrics:  metrics,
		tracer:   tracer,
		logger:   logger.With("component", "gateway_client"),
	}
}

// Call performs one JSON-RPC request and returns the result member.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, span := c.startSpan(ctx, method)
	defer span.End()

	token, err := c.creds.Token(ctx)
	if err != nil {
		err = fmt.Errorf("gateway credentials: %w", err)
		c.observeCall(span, method, "credentials", err)
		return nil, err
	}

	payload := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		err = fmt.Errorf("gateway request: %w", err)
		c.observeCall(span, method, "transport", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		gerr := classifyStatus(resp.StatusCode, strings.TrimSpace(string(excerpt)))
		c.logger.Warn("gateway call failed", "method", method, "status", resp.StatusCode, "kind", gerr.Kind.String())
		c.observeCall(span, method, gerr.Kind.String(), gerr)
		return nil, gerr
	}

	var rpcResp JSONRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		err = fmt.Errorf("decode response: %w", err)
		c.observeCall(span, method, "decode", err)
		return nil, err
	}
	if rpcResp.Error != nil {
		gerr := &GatewayError{Kind: KindProtocol, Message: rpcResp.Error.Message}
		c.observeCall(span, method, gerr.Kind.String(), gerr)
		return nil, gerr
	}
	c.observeCall(span, method, "ok", nil)
	return rpcResp.Result, nil
}

func (c *Client) startSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	if c.tracer == nil {
		return ctx, noop.Span{}
	}
	return c.tracer.Start(ctx, "gateway_call", attribute.String("rpc.method", method))
}

// observeCall records one call outcome on the counter and, for failures,
// the error counter and span.
func (c *Client) observeCall(span trace.Span, method, status string, err error) {
	if c.metrics != nil {
		c.metrics.GatewayCallCounter.WithLabelValues(method, status).Inc()
		if err != nil {
			c.metrics.ErrorCounter.WithLabelValues("gateway", status).Inc()
		}
	}
	if c.tracer != nil && err != nil {
		c.tracer.RecordError(span, err)
	}
}

// ListTools fetches the full tool catalog, following the cursor/nextCursor
// pagination protocol until the gateway stops returning a cursor or the page
// cap is reached.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var all []Tool
	cursor := ""
	pages := 0

	for {
		pages++
		c.logger.Debug("listing tools", "page", pages, "cursor", cursor)

		var params any
		if cursor != "" {
			params = listToolsParams{Cursor: cursor}
		}
		raw, err := c.Call(ctx, "tools/list", params)
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			c.logger.Warn("empty tools/list result from gateway")
			break
		}

		var page ListToolsResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("parse tools/list result: %w", err)
		}
		all = append(all, page.Tools...)

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor

		if pages >= maxToolPages {
			c.logger.Warn("tool pagination cap reached, returning partial catalog", "pages", pages, "tools", len(all))
			break
		}
	}

	c.logger.Info("tool catalog fetched", "tools", len(all), "pages", pages)
	return all, nil
}

// CallTool invokes a named gateway tool and returns its raw result.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (json.RawMessage, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	return c.Call(ctx, "tools/call", callToolParams{Name: name, Arguments: arguments})
}
