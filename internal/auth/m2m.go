package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/healthmate/coachai/internal/retry"
)

// ErrNoCredentials is returned when a credential source cannot produce a
// token for an outbound call.
var ErrNoCredentials = errors.New("no machine credentials available")

// CredentialSource supplies a bearer token for outbound gateway requests.
// Implementations own their caching and refresh policy; callers fetch a
// token per request and never hold one across requests.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// M2MConfig configures the client-credentials flow against the identity
// provider backing the tool gateway.
type M2MConfig struct {
	ProviderName string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
}

// M2MSource implements CredentialSource with the OAuth client-credentials
// grant. Tokens are cached and refreshed by the underlying token source;
// transient token-endpoint failures are retried with backoff.
type M2MSource struct {
	provider string
	source   oauth2.TokenSource
	retry    retry.Config
	logger   *slog.Logger
}

// NewM2MSource builds an M2M credential source. The token source is created
// once and reused so refreshes are shared across requests.
func NewM2MSource(cfg M2MConfig, logger *slog.Logger) (*M2MSource, error) {
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("m2m provider %q: token URL is required", cfg.ProviderName)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("m2m provider %q: client id is required", cfg.ProviderName)
	}
	if logger == nil {
		logger = slog.Default()
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	if cfg.Scope != "" {
		cc.Scopes = []string{cfg.Scope}
	}

	return &M2MSource{
		provider: cfg.ProviderName,
		source:   cc.TokenSource(context.Background()),
		retry:    retry.DefaultConfig(),
		logger:   logger.With("m2m_provider", cfg.ProviderName),
	}, nil
}

// Token returns a valid access token, fetching or refreshing as needed.
func (s *M2MSource) Token(ctx context.Context) (string, error) {
	var token *oauth2.Token
	err := retry.Do(ctx, s.retry, func() error {
		t, err := s.source.Token()
		if err != nil {
			var rerr *oauth2.RetrieveError
			if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode < 500 {
				return retry.Permanent(err)
			}
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		s.logger.Error("m2m token fetch failed", "error", err)
		return "", fmt.Errorf("fetch m2m token: %w", err)
	}
	if token == nil || token.AccessToken == "" {
		return "", ErrNoCredentials
	}
	return token.AccessToken, nil
}

// StaticSource is a CredentialSource backed by a fixed token, used in tests
// and local development against unauthenticated gateways.
type StaticSource string

func (s StaticSource) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredentials
	}
	return string(s), nil
}
