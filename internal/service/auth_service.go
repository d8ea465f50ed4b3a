package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tubeinsight/dashboard/internal/config"
	"tubeinsight/dashboard/internal/cookies"
	"tubeinsight/dashboard/internal/identity"
	"tubeinsight/dashboard/internal/metrics"
	"tubeinsight/dashboard/internal/session"
)

const (
	CodeMissingAuthCode    = "missing_auth_code"
	CodeAuthCallbackFailed = "auth_callback_failed"
	defaultFailureMessage  = "Could not complete sign-in. Please try again."
	stateTTL               = 10 * time.Minute
)

var (
	ErrMissingCode   = errors.New("no authorization code in callback")
	ErrStateMismatch = errors.New("state parameter does not match")
)

// ExchangeError is a failed callback. Code and Description are safe to show
// on the login page; Err keeps the underlying cause for logs.
type ExchangeError struct {
	Code        string
	Description string
	Err         error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// SessionStore persists and tears down sessions.
type SessionStore interface {
	Establish(ctx context.Context, jar cookies.Jar, tokens identity.Tokens) (session.Session, error)
	SignOut(ctx context.Context, jar cookies.Jar, s session.Session) error
}

type AuthService struct {
	provider identity.Provider
	sessions SessionStore
	cookies  config.CookieConfig
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewAuthService(
	provider identity.Provider,
	sessions SessionStore,
	cfg *config.AppConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		provider: provider,
		sessions: sessions,
		cookies:  cfg.Cookies,
		metrics:  m,
		log:      log,
	}
}

// ExchangeInput is what the provider sent back to the callback.
type ExchangeInput struct {
	Code             string
	Next             string
	State            string
	ProviderError    string
	ProviderErrorMsg string
}

type ExchangeResult struct {
	Session session.Session
	Next    string
}

// Exchange turns an authorization code into a persisted session. No session
// cookie is written unless the whole exchange succeeds.
func (s *AuthService) Exchange(ctx context.Context, jar cookies.Jar, in ExchangeInput) (ExchangeResult, error) {
	next := SanitizeNext(in.Next)
	code := strings.TrimSpace(in.Code)

	if code == "" {
		if in.ProviderError != "" {
			desc := in.ProviderErrorMsg
			if desc == "" {
				desc = in.ProviderError
			}
			s.log.Warn().Str("provider_error", in.ProviderError).Str("description", in.ProviderErrorMsg).Msg("identity provider rejected sign-in")
			s.metrics.ObserveExchange("provider_error")
			return ExchangeResult{Next: next}, &ExchangeError{Code: CodeAuthCallbackFailed, Description: desc}
		}
		s.metrics.ObserveExchange("missing_code")
		return ExchangeResult{Next: next}, ErrMissingCode
	}

	if err := s.checkState(ctx, jar, in.State); err != nil {
		s.log.Warn().Err(err).Msg("sign-in state mismatch")
		s.metrics.ObserveExchange("state_mismatch")
		return ExchangeResult{Next: next}, &ExchangeError{Code: CodeAuthCallbackFailed, Description: "Sign-in request expired. Please try again.", Err: err}
	}

	tokens, err := s.provider.Exchange(ctx, code, next)
	if err != nil {
		s.log.Error().Err(err).Msg("authorization code exchange failed")
		s.metrics.ObserveExchange("failure")
		return ExchangeResult{Next: next}, &ExchangeError{Code: CodeAuthCallbackFailed, Description: defaultFailureMessage, Err: err}
	}

	sess, err := s.sessions.Establish(ctx, jar, tokens)
	if err != nil {
		s.log.Error().Err(err).Msg("establish session failed")
		s.metrics.ObserveExchange("failure")
		return ExchangeResult{Next: next}, &ExchangeError{Code: CodeAuthCallbackFailed, Description: defaultFailureMessage, Err: err}
	}

	s.log.Info().Str("user_id", sess.UserID).Msg("user signed in")
	s.metrics.ObserveExchange("success")
	return ExchangeResult{Session: sess, Next: next}, nil
}

// BeginSignIn returns the provider authorize URL for next and remembers the
// state parameter in a short-lived cookie.
func (s *AuthService) BeginSignIn(ctx context.Context, jar cookies.Jar, next string) string {
	state := uuid.NewString()
	_ = jar.Set(ctx, s.stateCookieName(), state, cookies.Options{
		Path:     "/",
		Domain:   s.cookies.Domain,
		MaxAge:   stateTTL,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cookies.Secure,
		HTTPOnly: true,
	})
	return s.provider.AuthCodeURL(state, SanitizeNext(next))
}

func (s *AuthService) SignOut(ctx context.Context, jar cookies.Jar, sess session.Session) error {
	if err := s.sessions.SignOut(ctx, jar, sess); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	if sess.UserID != "" {
		s.log.Info().Str("user_id", sess.UserID).Msg("user signed out")
	}
	return nil
}

func (s *AuthService) stateCookieName() string {
	return s.cookies.Prefix + "-auth-state"
}

// checkState compares the callback state with the one issued by
// BeginSignIn. Once a state cookie exists the callback must echo it; only
// callbacks the dashboard did not start (no cookie) may omit it.
func (s *AuthService) checkState(ctx context.Context, jar cookies.Jar, state string) error {
	expected, ok := jar.Get(ctx, s.stateCookieName())
	if !ok {
		return nil
	}
	_ = jar.Remove(ctx, s.stateCookieName(), cookies.Options{Path: "/", Domain: s.cookies.Domain})
	if state == "" || expected != state {
		return ErrStateMismatch
	}
	return nil
}

// SanitizeNext returns next when it is a same-site relative path and "/"
// otherwise.
func SanitizeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") {
		return "/"
	}
	if strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return next
}

// LoginURL is the login page path carrying an error for display.
func LoginURL(code, description string) string {
	q := url.Values{}
	q.Set("error", code)
	if description != "" {
		q.Set("error_description", description)
	}
	return "/login?" + q.Encode()
}

// ErrorCodeAndDescription maps an Exchange error onto the login page
// parameters.
func ErrorCodeAndDescription(err error) (string, string) {
	if errors.Is(err, ErrMissingCode) {
		return CodeMissingAuthCode, "No authorization code was received from the identity provider."
	}
	var xerr *ExchangeError
	if errors.As(err, &xerr) {
		return xerr.Code, xerr.Description
	}
	return CodeAuthCallbackFailed, defaultFailureMessage
}
