package mcp

import (
	"encoding/json"
)

// ResultKind tags the normalized form of a tools/call result. The gateway's
// response shape is not contractually guaranteed, so normalization is an
// explicit sum instead of duck-typed probing.
type ResultKind int

const (
	// KindPlainText: the result carried usable text.
	KindPlainText ResultKind = iota
	// KindContentBlocks: a content-block list without a leading text block;
	// Text holds the stringified first block or list.
	KindContentBlocks
	// KindOpaque: arbitrary JSON with no recognized content member.
	KindOpaque
)

// NormalizedResult is the outcome of normalizing a tools/call result.
type NormalizedResult struct {
	Kind ResultKind
	Text string
}

// NormalizeResult reduces a raw tools/call result to text for the model:
// the first textual content block when present, a stringified fallback
// otherwise. Nothing beyond an optional "content" array of objects with an
// optional "text" field is assumed.
func NormalizeResult(raw json.RawMessage) NormalizedResult {
	if len(raw) == 0 {
		return NormalizedResult{Kind: KindOpaque, Text: ""}
	}

	// A bare JSON string is already text.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return NormalizedResult{Kind: KindPlainText, Text: s}
	}

	var result map[string]json.RawMessage
	if err := json.Unmarshal(raw, &result); err != nil {
		return NormalizedResult{Kind: KindOpaque, Text: stringify(raw)}
	}

	content, ok := result["content"]
	if !ok {
		return NormalizedResult{Kind: KindOpaque, Text: stringify(raw)}
	}

	var blocks []json.RawMessage
	if err := json.Unmarshal(content, &blocks); err != nil || len(blocks) == 0 {
		// Non-list or empty content: stringify the content member itself.
		return NormalizedResult{Kind: KindContentBlocks, Text: stringify(content)}
	}

	var first struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(blocks[0], &first); err == nil && first.Text != nil {
		return NormalizedResult{Kind: KindPlainText, Text: *first.Text}
	}
	return NormalizedResult{Kind: KindContentBlocks, Text: stringify(blocks[0])}
}

// stringify renders raw JSON compactly; invalid JSON is passed through.
func stringify(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(out)
}
