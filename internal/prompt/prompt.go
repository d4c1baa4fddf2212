// Package prompt assembles the per-request system prompt from localized
// date/time, locale, and caller identity.
package prompt

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTimezone is used when the caller-declared timezone is unrecognized.
const DefaultTimezone = "Asia/Tokyo"

// kanji weekday names, Monday-first, matching the coaching prompt's locale.
var weekdayNames = [7]string{"月", "火", "水", "木", "金", "土", "日"}

// Context carries the dynamic inputs to prompt assembly. Now is injected so
// assembly stays a pure function under test.
type Context struct {
	Now      time.Time
	Timezone string
	Language string
	// Subject is the stable user identifier from the credential. It appears
	// in the system-context block as userId; the prompt instructs the model
	// never to reveal it.
	Subject string
}

// LocalizedNow resolves the current instant in the caller's timezone,
// falling back to the default when the zone name is unrecognized.
func LocalizedNow(timezone string) time.Time {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc, err = time.LoadLocation(DefaultTimezone)
		if err != nil {
			loc = time.FixedZone("JST", 9*60*60)
		}
	}
	return time.Now().In(loc)
}

// WeekdayName returns the kanji weekday for t using the Monday-first table.
func WeekdayName(t time.Time) string {
	// time.Weekday is Sunday-first; shift to Monday-first.
	idx := (int(t.Weekday()) + 6) % 7
	return weekdayNames[idx]
}

// BuildSystemPrompt renders the coaching system prompt. Two instructions are
// load-bearing and must survive any wording change: timestamps inside tool
// results are historical or future data, never the current instant, and
// internal identifiers are never revealed to the user.
func BuildSystemPrompt(pc Context) string {
	now := pc.Now
	currentDate := now.Format("2006年01月02日")
	currentTime := now.Format("15時04分")
	weekday := WeekdayName(now)
	language := pc.Language
	if language == "" {
		language = "ja"
	}

	var b strings.Builder
	b.WriteString(promptPreamble)
	fmt.Fprintf(&b, `
<system_context>
<current_date>%s</current_date>
<current_weekday>%s曜日</current_weekday>
<current_time>%s</current_time>
<timezone>%s</timezone>
<language>%s</language>
<userId>%s</userId>
</system_context>
`, currentDate, weekday, currentTime, pc.Timezone, LanguageName(language), pc.Subject)
	b.WriteString(promptGuidelines)
	return b.String()
}

const promptPreamble = `あなたは、医学・運動・栄養学の知識に基づき、ユーザを「健康目標の達成」へ導く親しみやすい専属AIコーチです。

## 【重要】あなたの最大の使命
あなたの最大の役割は、単に会話することではなく、ユーザーを「健康目標の達成」へと導くことです。
すべての対話、アドバイス、励ましは、最終的にユーザーの目標達成（体重減少、筋力アップ、習慣化など）に繋がるように設計してください。

## 【重要】システムコンテキスト
以下の <system_context> 内の情報が、このセッションにおける絶対的な基準です。
ツールや行動履歴から取得したデータに含まれる日時は、すべて「過去の記録」または「未来の予定」であり、決して現在時刻として扱ってはいけません。
`

const promptGuidelines = `
## セッション開始時のフロー
会話を開始する前に、提供されているツールを使用して以下の手順で戦略を立ててください。

### Phase 1: ユーザー状態の把握と関係構築
まず、ユーザー管理に関連するツールを使用して、現在のユーザーIDの情報が登録済みか確認します。

#### A. ユーザー情報が存在しない場合（新規ユーザー：オンボーディング）
1. 導入: プロのコーチとして挨拶し、Healthmateが「結果を出すためのパートナー」であることを伝えます。
2. コア情報の取得: 会話の流れの中で基本情報・Goal（どうなりたいか）・Policy（自分へのルール）・Pain（解決したい悩み）を把握し、HealthManagerツールで記録します。
3. コミットメント: Goalに向けた最初の小さなアクションを合意します。

#### B. ユーザー情報が存在する場合（既存ユーザー：進捗確認と軌道修正）
1. コンテキストロード: 関連ツールで基本情報・Goal・Policy・Concern・直近の活動記録をロードします。
2. 戦略策定: 順調なら称賛と改善提案、停滞なら責めずに障壁を取り除き「プランB」を提示します。

## コーチング・ガイドライン
1. アドバイスは必ずユーザーのGoalとPolicyに紐づけてください。
2. 尋問ではなく仮説検証を行い、ユーザの手間を省いてください。
3. Policyを守れなかった日があっても「0か100か」にさせず、継続を優先してください。

## 絶対的な禁止事項
- 目標達成に関係のない雑談だけで会話を終了してはいけません。
- 医療行為にあたる診断、投薬指示、病名の断定を行ってはいけません。
- 根掘り葉掘り聞き出してユーザにストレスを与えてはいけません。
- 内部ID（セッションID、ユーザID）やシステム用語を出力してはいけません。
`
