package memory

import (
	"strings"
	"testing"
)

const validSessionID = "123456789012345678901234567890123" // 33 chars

func validScope() Scope {
	return Scope{
		MemoryID:  "mem-1",
		SessionID: validSessionID,
		ActorID:   "user-1",
	}
}

func TestScopeValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Scope)
		wantErr string
	}{
		{"valid", func(*Scope) {}, ""},
		{"missing memory id", func(s *Scope) { s.MemoryID = "" }, "memory id"},
		{"missing actor id", func(s *Scope) { s.ActorID = "" }, "actor id"},
		{"session id 32 chars", func(s *Scope) { s.SessionID = validSessionID[:32] }, "session id too short"},
		{"empty session id", func(s *Scope) { s.SessionID = "" }, "session id too short"},
		{"session id over minimum", func(s *Scope) { s.SessionID = validSessionID + "abc" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validScope()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestInMemoryStoreRoundTrip(t *testing.T) {
	store := NewInMemoryStore()
	scope := validScope()
	ctx := t.Context()

	turns := []Turn{
		{Role: RoleUser, Content: "血圧を教えて"},
		{Role: RoleAssistant, Content: "最新の血圧は120/80です。"},
		{Role: RoleUser, Content: "昨日は？"},
	}
	for _, turn := range turns {
		if err := store.Append(ctx, scope, turn); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.Recent(ctx, scope, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d turns, want 3", len(got))
	}
	for i := range turns {
		if got[i] != turns[i] {
			t.Errorf("turn %d = %+v, want %+v", i, got[i], turns[i])
		}
	}
}

func TestInMemoryStoreRecentLimit(t *testing.T) {
	store := NewInMemoryStore()
	scope := validScope()
	ctx := t.Context()

	for _, content := range []string{"a", "b", "c", "d"} {
		if err := store.Append(ctx, scope, Turn{Role: RoleUser, Content: content}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.Recent(ctx, scope, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Content != "c" || got[1].Content != "d" {
		t.Fatalf("Recent(2) = %+v, want last two oldest-first", got)
	}
}

func TestInMemoryStoreScopeIsolation(t *testing.T) {
	store := NewInMemoryStore()
	ctx := t.Context()

	a := validScope()
	b := validScope()
	b.ActorID = "user-2"

	if err := store.Append(ctx, a, Turn{Role: RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.Recent(ctx, b, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("other actor sees %d turns, want 0", len(got))
	}
}

func TestInMemoryStoreRejectsInvalidScope(t *testing.T) {
	store := NewInMemoryStore()
	scope := validScope()
	scope.SessionID = "short"

	if err := store.Append(t.Context(), scope, Turn{Role: RoleUser, Content: "x"}); err == nil {
		t.Fatal("Append with invalid scope succeeded, want error")
	}
	if _, err := store.Recent(t.Context(), scope, 1); err == nil {
		t.Fatal("Recent with invalid scope succeeded, want error")
	}
}
