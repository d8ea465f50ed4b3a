// Package backend calls the analysis pipeline's REST API on behalf of the
// signed-in user. Responses are handed back verbatim; the dashboard never
// reinterprets backend status codes.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tubeinsight/dashboard/internal/config"
)

const maxResponseSize = 10 << 20

var (
	// ErrUnavailable reports a transport failure talking to the backend.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrRequest reports a request that could not be built.
	ErrRequest = errors.New("backend request invalid")
)

// Request describes one passthrough call. Path is relative to the backend
// root, for example /v1/admin/users.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        io.Reader
	ContentType string
	BearerToken string
}

type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(cfg config.BackendConfig, log zerolog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log.With().Str("component", "backend").Logger(),
	}, nil
}

// Do forwards req and returns whatever status and body the backend produced.
// Only a failure to reach the backend is an error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	target := *c.baseURL
	target.Path = c.baseURL.Path + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), req.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Error().Err(err).Str("method", method).Str("path", target.Path).Msg("backend request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", target.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("backend request")

	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Health probes the backend's unauthenticated health route.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/health"})
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("%w: health returned %d", ErrUnavailable, resp.Status)
	}
	return nil
}
