package prompt

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// LanguageName converts a BCP-47 language code into its native display name
// (ja → 日本語, en → English). Unrecognized codes pass through unchanged so
// the prompt still carries whatever the caller declared.
func LanguageName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return code
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return code
	}
	if name := display.Self.Name(tag); name != "" {
		return name
	}
	return code
}
