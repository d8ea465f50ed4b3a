package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"tubeinsight/dashboard/internal/config"
	"tubeinsight/dashboard/internal/cookies"
	"tubeinsight/dashboard/internal/identity"
	"tubeinsight/dashboard/internal/watcher"
)

// Refresher trades a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (identity.Tokens, error)
}

// EventPublisher receives session lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, eventType watcher.EventType, userID string) error
}

type Manager struct {
	decoder    *TokenDecoder
	refresher  Refresher
	events     EventPublisher
	cookies    config.CookieConfig
	refreshTTL time.Duration
	leeway     time.Duration
	log        zerolog.Logger
	now        func() time.Time
	onRefresh  func(outcome string)
}

func NewManager(
	decoder *TokenDecoder,
	refresher Refresher,
	events EventPublisher,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *Manager {
	return &Manager{
		decoder:    decoder,
		refresher:  refresher,
		events:     events,
		cookies:    cfg.Cookies,
		refreshTTL: cfg.Identity.RefreshTTL,
		leeway:     cfg.Identity.RefreshLeeway,
		log:        log,
		now:        time.Now,
	}
}

// OnRefresh registers a callback told the outcome ("success" or "failure")
// of every silent refresh.
func (m *Manager) OnRefresh(fn func(outcome string)) {
	m.onRefresh = fn
}

func (m *Manager) AccessCookieName() string {
	return m.cookies.Prefix + "-access-token"
}

func (m *Manager) RefreshCookieName() string {
	return m.cookies.Prefix + "-refresh-token"
}

// Load decodes the session held in the jar without refreshing it.
func (m *Manager) Load(ctx context.Context, jar cookies.Jar) (Session, error) {
	access, ok := jar.Get(ctx, m.AccessCookieName())
	if !ok {
		return Session{}, ErrSessionAbsent
	}
	refresh, _ := jar.Get(ctx, m.RefreshCookieName())

	s, err := m.decoder.FromTokens(access, refresh)
	if err != nil {
		m.log.Debug().Err(err).Msg("discarding undecodable access token")
		return Session{}, ErrSessionAbsent
	}
	return s, nil
}

// Current returns a usable session, refreshing it at most once when the
// access token has expired or is missing while a refresh token remains.
func (m *Manager) Current(ctx context.Context, jar cookies.Jar) (Session, error) {
	s, err := m.Load(ctx, jar)
	if err == nil && !s.Expired(m.now(), m.leeway) {
		return s, nil
	}

	refresh := s.RefreshToken
	if refresh == "" {
		refresh, _ = jar.Get(ctx, m.RefreshCookieName())
	}
	if refresh == "" {
		return Session{}, ErrSessionAbsent
	}

	refreshed, err := m.refresh(ctx, jar, refresh)
	if err != nil {
		m.observeRefresh("failure")
		if transientRefreshError(err) {
			m.log.Warn().Err(err).Str("user_id", s.UserID).Msg("silent refresh failed, keeping cookies")
			return Session{}, ErrSessionAbsent
		}
		m.log.Info().Err(err).Str("user_id", s.UserID).Msg("silent refresh rejected")
		_ = m.Clear(ctx, jar)
		return Session{}, ErrSessionAbsent
	}
	m.observeRefresh("success")
	return refreshed, nil
}

// Establish persists a freshly issued token pair and announces the sign-in.
func (m *Manager) Establish(ctx context.Context, jar cookies.Jar, tokens identity.Tokens) (Session, error) {
	s, err := m.decoder.FromTokens(tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		return Session{}, fmt.Errorf("decode issued token: %w", err)
	}
	if err := m.Save(ctx, jar, s); err != nil {
		return Session{}, err
	}
	m.publish(ctx, watcher.EventSignedIn, s.UserID)
	return s, nil
}

func (m *Manager) Save(ctx context.Context, jar cookies.Jar, s Session) error {
	accessTTL := s.ExpiresAt.Sub(m.now())
	if accessTTL <= 0 {
		return fmt.Errorf("save session: %w", ErrTokenInvalid)
	}

	if err := jar.Set(ctx, m.AccessCookieName(), s.AccessToken, m.options(accessTTL)); err != nil {
		return fmt.Errorf("write access cookie: %w", err)
	}
	if s.RefreshToken != "" {
		if err := jar.Set(ctx, m.RefreshCookieName(), s.RefreshToken, m.options(m.refreshTTL)); err != nil {
			return fmt.Errorf("write refresh cookie: %w", err)
		}
	}
	return nil
}

// Clear removes both session cookies.
func (m *Manager) Clear(ctx context.Context, jar cookies.Jar) error {
	var errs []error
	for _, name := range []string{m.AccessCookieName(), m.RefreshCookieName()} {
		if err := jar.Remove(ctx, name, m.options(0)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignOut clears the session and announces it.
func (m *Manager) SignOut(ctx context.Context, jar cookies.Jar, s Session) error {
	if err := m.Clear(ctx, jar); err != nil {
		return err
	}
	if s.UserID != "" {
		m.publish(ctx, watcher.EventSignedOut, s.UserID)
	}
	return nil
}

func (m *Manager) refresh(ctx context.Context, jar cookies.Jar, refreshToken string) (Session, error) {
	tokens, err := m.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return Session{}, err
	}
	s, err := m.decoder.FromTokens(tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		return Session{}, err
	}
	if err := m.Save(ctx, jar, s); err != nil {
		return Session{}, err
	}
	m.publish(ctx, watcher.EventTokenRefreshed, s.UserID)
	return s, nil
}

// transientRefreshError is true for failures that say nothing about the
// refresh token itself, so the cookies stay for the next request.
func transientRefreshError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var perr *identity.Error
	return errors.As(err, &perr) && !perr.Rejected()
}

func (m *Manager) publish(ctx context.Context, t watcher.EventType, userID string) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, t, userID); err != nil {
		m.log.Warn().Err(err).Str("event", string(t)).Str("user_id", userID).Msg("publish session event failed")
	}
}

func (m *Manager) observeRefresh(outcome string) {
	if m.onRefresh != nil {
		m.onRefresh(outcome)
	}
}

func (m *Manager) options(maxAge time.Duration) cookies.Options {
	return cookies.Options{
		Path:     "/",
		Domain:   m.cookies.Domain,
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.cookies.Secure,
		HTTPOnly: true,
	}
}
