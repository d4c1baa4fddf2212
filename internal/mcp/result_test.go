package mcp

import (
	"encoding/json"
	"testing"
)

func TestNormalizeResult(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind ResultKind
		text string
	}{
		{
			name: "first text block",
			raw:  `{"content":[{"type":"text","text":"hello"},{"type":"text","text":"ignored"}]}`,
			kind: KindPlainText,
			text: "hello",
		},
		{
			name: "first block without text",
			raw:  `{"content":[{"type":"image","data":"abc"}]}`,
			kind: KindContentBlocks,
			text: `{"data":"abc","type":"image"}`,
		},
		{
			name: "empty content array",
			raw:  `{"content":[]}`,
			kind: KindContentBlocks,
			text: `[]`,
		},
		{
			name: "non-list content",
			raw:  `{"content":"just text"}`,
			kind: KindContentBlocks,
			text: `"just text"`,
		},
		{
			name: "no content member",
			raw:  `{"status":"ok","count":3}`,
			kind: KindOpaque,
			text: `{"count":3,"status":"ok"}`,
		},
		{
			name: "bare string result",
			raw:  `"done"`,
			kind: KindPlainText,
			text: "done",
		},
		{
			name: "empty result",
			raw:  ``,
			kind: KindOpaque,
			text: "",
		},
		{
			name: "non-object result",
			raw:  `[1,2,3]`,
			kind: KindOpaque,
			text: `[1,2,3]`,
		},
		{
			name: "block with non-string text",
			raw:  `{"content":[{"text":42}]}`,
			kind: KindContentBlocks,
			text: `{"text":42}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeResult(json.RawMessage(tt.raw))
			if got.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Text != tt.text {
				t.Errorf("text = %q, want %q", got.Text, tt.text)
			}
		})
	}
}
