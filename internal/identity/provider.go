// Package identity talks to the external OAuth2 identity provider: it builds
// the authorize redirect, exchanges authorization codes and refreshes tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"tubeinsight/dashboard/internal/config"
)

// Tokens is the credential pair issued by the provider.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Provider is the subset of the identity provider the dashboard relies on.
type Provider interface {
	AuthCodeURL(state, next string) string
	Exchange(ctx context.Context, code, next string) (Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// Error carries the provider's diagnostic for a failed token request.
type Error struct {
	Code        string
	Description string
	Err         error
}

func (e *Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("identity provider: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("identity provider: %s", e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Rejected reports whether the provider refused the grant itself. An
// unreachable provider or a 5xx answer is not a rejection.
func (e *Error) Rejected() bool {
	if e.Code == "" || e.Code == CodeProviderUnreachable {
		return false
	}
	return !strings.HasPrefix(e.Code, "http_5")
}

const CodeProviderUnreachable = "provider_unreachable"

var ErrNoRefreshToken = errors.New("no refresh token")

// OAuth2Provider implements Provider with golang.org/x/oauth2.
type OAuth2Provider struct {
	oauth *oauth2.Config
}

func NewOAuth2Provider(cfg config.IdentityConfig) *OAuth2Provider {
	return &OAuth2Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// AuthCodeURL returns the provider's authorize URL. The return path rides on
// the redirect URI so the callback receives it as the next parameter.
func (p *OAuth2Provider) AuthCodeURL(state, next string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("redirect_uri", p.redirectURI(next)))
}

func (p *OAuth2Provider) Exchange(ctx context.Context, code, next string) (Tokens, error) {
	tok, err := p.oauth.Exchange(ctx, code, oauth2.SetAuthURLParam("redirect_uri", p.redirectURI(next)))
	if err != nil {
		return Tokens{}, wrapTokenError("exchange", err)
	}
	return fromOAuth2(tok), nil
}

func (p *OAuth2Provider) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if refreshToken == "" {
		return Tokens{}, ErrNoRefreshToken
	}

	src := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return Tokens{}, wrapTokenError("refresh", err)
	}

	out := fromOAuth2(tok)
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}

func (p *OAuth2Provider) redirectURI(next string) string {
	if next == "" || next == "/" {
		return p.oauth.RedirectURL
	}
	u, err := url.Parse(p.oauth.RedirectURL)
	if err != nil {
		return p.oauth.RedirectURL
	}
	q := u.Query()
	q.Set("next", next)
	u.RawQuery = q.Encode()
	return u.String()
}

func fromOAuth2(tok *oauth2.Token) Tokens {
	return Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}

func wrapTokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		code := re.ErrorCode
		if code == "" {
			code = fmt.Sprintf("http_%d", re.Response.StatusCode)
		}
		return &Error{Code: code, Description: re.ErrorDescription, Err: fmt.Errorf("%s: %w", op, err)}
	}
	return &Error{Code: CodeProviderUnreachable, Err: fmt.Errorf("%s: %w", op, err)}
}
