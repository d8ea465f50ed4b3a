package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

func (h HandlerSet) ListAnalyses(c *gin.Context) {
	h.forward(c, http.MethodGet, "/api/analyses", c.Request.URL.Query(), nil)
}

func (h HandlerSet) GetAnalysis(c *gin.Context) {
	h.forward(c, http.MethodGet, "/api/analyses/"+url.PathEscape(c.Param("id")), nil, nil)
}

func (h HandlerSet) AnalyzeVideo(c *gin.Context) {
	raw, ok := readBody(c)
	if !ok {
		return
	}
	h.forward(c, http.MethodPost, "/api/analyze-video", nil, raw)
}
