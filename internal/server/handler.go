package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthmate/coachai/internal/auth"
	"github.com/healthmate/coachai/internal/memory"
	"github.com/healthmate/coachai/internal/prompt"
	"github.com/healthmate/coachai/internal/stream"
)

// sessionIDHeader is set by the AgentCore runtime front when it forwards an
// invocation.
const sessionIDHeader = "X-Amzn-Bedrock-AgentCore-Runtime-Session-Id"

const defaultGreeting = "こんにちは！健康に関してどのようなサポートが必要ですか？"

// invocationPayload is the inbound request body. Session attributes may
// carry the same fields as the top level; top level wins.
type invocationPayload struct {
	Prompt       string `json:"prompt"`
	Timezone     string `json:"timezone"`
	Language     string `json:"language"`
	SessionState struct {
		SessionAttributes struct {
			JWTToken  string `json:"jwt_token"`
			SessionID string `json:"session_id"`
			Timezone  string `json:"timezone"`
			Language  string `json:"language"`
		} `json:"sessionAttributes"`
	} `json:"sessionState"`
}

func (s *Server) handleInvocations(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	logger := s.logger.With("request_id", requestID)

	var payload invocationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		logger.Warn("malformed payload", "error", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Validation order: bearer credential, session id length, subject.
	// Each failure produces one terminal text event before any network call.
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		authHeader = payload.SessionState.SessionAttributes.JWTToken
	}
	if authHeader == "" {
		s.rejectInvocation(sse, logger, "missing_authorization", "エラー: Authorizationヘッダーが必要です。")
		return
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		s.rejectInvocation(sse, logger, "missing_token", "エラー: JWT認証トークンが必要です。")
		return
	}

	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		sessionID = payload.SessionState.SessionAttributes.SessionID
	}
	if len(sessionID) < memory.MinSessionIDLength {
		s.rejectInvocation(sse, logger, "invalid_session", "エラー: 有効なセッションIDが必要です（33文字以上）。")
		return
	}

	claims := auth.DecodeClaims(token)
	subject := auth.Subject(claims)
	if subject == "" {
		s.rejectInvocation(sse, logger, "no_subject", "エラー: JWT トークンからユーザーIDを抽出できませんでした。")
		return
	}

	timezone := firstNonEmpty(payload.Timezone, payload.SessionState.SessionAttributes.Timezone, s.cfg.Locale.DefaultTimezone)
	language := firstNonEmpty(payload.Language, payload.SessionState.SessionAttributes.Language, s.cfg.Locale.DefaultLanguage)

	if payload.Prompt == "" {
		_ = sse.emit(stream.TextDelta{Text: defaultGreeting})
		s.countInvocation("success")
		return
	}

	identity := auth.Identity{Subject: subject, Timezone: timezone, Language: language}
	ctx := auth.WithIdentity(r.Context(), identity)
	ctx, endSpan := s.startSpan(ctx, sessionID)
	defer endSpan()

	system := prompt.BuildSystemPrompt(prompt.Context{
		Now:      prompt.LocalizedNow(timezone),
		Timezone: timezone,
		Language: language,
		Subject:  subject,
	})
	scope := memory.Scope{
		MemoryID:  s.cfg.Memory.ID,
		SessionID: sessionID,
		ActorID:   subject,
	}

	logger.Info("invocation accepted", "subject", subject, "session_chars", len(sessionID))
	start := time.Now()

	_, err = s.muxer.Run(ctx, func(ctx context.Context, q *stream.Queue) (string, error) {
		return s.coach.Respond(ctx, scope, system, payload.Prompt, q)
	}, func(ev stream.Event) error {
		s.countEvent(ev)
		return sse.emit(ev)
	})
	if err != nil {
		logger.Error("invocation failed", "error", err, "elapsed", time.Since(start))
		s.countInvocation("error")
		s.countError("server", "invocation")
		return
	}

	if s.metrics != nil {
		s.metrics.StreamDuration.WithLabelValues(s.cfg.Model.ID).Observe(time.Since(start).Seconds())
	}
	s.countInvocation("success")
}

func (s *Server) startSpan(ctx context.Context, sessionID string) (context.Context, func()) {
	if s.tracer == nil {
		return ctx, func() {}
	}
	ctx, span := s.tracer.StartInvocation(ctx, sessionID)
	return ctx, func() { span.End() }
}

func (s *Server) rejectInvocation(sse *sseWriter, logger *slog.Logger, reason, message string) {
	logger.Warn("invocation rejected", "reason", reason)
	_ = sse.emit(stream.TextDelta{Text: message})
	s.countInvocation("validation_error")
}

func (s *Server) countInvocation(status string) {
	if s.metrics != nil {
		s.metrics.InvocationCounter.WithLabelValues(status).Inc()
	}
}

func (s *Server) countError(component, errType string) {
	if s.metrics != nil {
		s.metrics.ErrorCounter.WithLabelValues(component, errType).Inc()
	}
}

func (s *Server) countEvent(ev stream.Event) {
	if s.metrics == nil {
		return
	}
	switch ev.(type) {
	case stream.TextDelta:
		s.metrics.EventCounter.WithLabelValues("text_delta").Inc()
	case stream.ErrorNotice:
		s.metrics.EventCounter.WithLabelValues("error").Inc()
	default:
		s.metrics.EventCounter.WithLabelValues("progress").Inc()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// sseWriter streams events as server-sent data frames.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) emit(ev stream.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
