package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"tubeinsight/dashboard/internal/backend"
	"tubeinsight/dashboard/internal/middleware"
)

const maxForwardBody = 1 << 20

// forward relays one call to the backend with the caller's access token and
// writes the backend's status and body back unchanged.
func (h HandlerSet) forward(c *gin.Context, method, path string, query url.Values, body []byte) (*backend.Response, bool) {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication_required"})
		return nil, false
	}

	req := backend.Request{
		Method:      method,
		Path:        path,
		Query:       query,
		BearerToken: s.AccessToken,
	}
	if body != nil {
		req.Body = bytes.NewReader(body)
		req.ContentType = "application/json"
	}

	resp, err := h.backend.Do(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, backend.ErrRequest) {
			h.log.Error().Err(err).Str("path", path).Msg("could not build backend request")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
			return nil, false
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "backend_unavailable"})
		return nil, false
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.Status, contentType, resp.Body)
	return resp, true
}

// proxy forwards the request to backendPath(c), keeping query and body.
func (h HandlerSet) proxy(backendPath func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body []byte
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			raw, ok := readBody(c)
			if !ok {
				return
			}
			body = raw
		}
		h.forward(c, c.Request.Method, backendPath(c), c.Request.URL.Query(), body)
	}
}

func readBody(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxForwardBody)
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return nil, false
	}
	return raw, true
}
