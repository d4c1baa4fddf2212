package prompt

import (
	"strings"
	"testing"
	"time"
)

func TestLocalizedNowFallsBackOnBadZone(t *testing.T) {
	got := LocalizedNow("Not/AZone")
	if name, _ := got.Zone(); name != "JST" {
		t.Errorf("zone = %q, want JST fallback", name)
	}
}

func TestLocalizedNowHonorsZone(t *testing.T) {
	got := LocalizedNow("America/New_York")
	if got.Location().String() != "America/New_York" {
		t.Errorf("location = %v", got.Location())
	}
}

func TestWeekdayNameMondayFirst(t *testing.T) {
	// 2026-08-24 is a Monday.
	monday := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		offset int
		want   string
	}{
		{0, "月"}, {1, "火"}, {2, "水"}, {3, "木"}, {4, "金"}, {5, "土"}, {6, "日"},
	}
	for _, tt := range tests {
		day := monday.AddDate(0, 0, tt.offset)
		if got := WeekdayName(day); got != tt.want {
			t.Errorf("WeekdayName(%s) = %q, want %q", day.Weekday(), got, tt.want)
		}
	}
}

func TestBuildSystemPromptContext(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	text := BuildSystemPrompt(Context{
		Now:      time.Date(2026, 8, 26, 9, 5, 0, 0, loc), // Wednesday
		Timezone: "Asia/Tokyo",
		Language: "ja",
		Subject:  "user-abc-123",
	})

	for _, want := range []string{
		"<current_date>2026年08月26日</current_date>",
		"<current_weekday>水曜日</current_weekday>",
		"<current_time>09時05分</current_time>",
		"<timezone>Asia/Tokyo</timezone>",
		"<language>日本語</language>",
		"<userId>user-abc-123</userId>",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildSystemPromptInvariants(t *testing.T) {
	text := BuildSystemPrompt(Context{Now: time.Now(), Timezone: "Asia/Tokyo", Language: "ja", Subject: "u"})

	// Tool-result timestamps are never "now".
	if !strings.Contains(text, "決して現在時刻として扱ってはいけません") {
		t.Error("prompt must state that tool-result timestamps are historical, never the current instant")
	}
	// Internal identifiers stay internal.
	if !strings.Contains(text, "内部ID") || !strings.Contains(text, "出力してはいけません") {
		t.Error("prompt must forbid revealing internal identifiers")
	}
}

func TestLanguageName(t *testing.T) {
	tests := []struct {
		code, want string
	}{
		{"ja", "日本語"},
		{"en", "English"},
		{"ko", "한국어"},
		{"", ""},
		{"!!!", "!!!"},
	}
	for _, tt := range tests {
		if got := LanguageName(tt.code); got != tt.want {
			t.Errorf("LanguageName(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
