package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tubeinsight/dashboard/internal/identity"
	"tubeinsight/dashboard/internal/middleware"
	"tubeinsight/dashboard/internal/service"
	"tubeinsight/dashboard/internal/web"
)

type exchangeRequest struct {
	Code  string `json:"code" form:"code"`
	Next  string `json:"next" form:"next"`
	State string `json:"state" form:"state"`
}

func (h HandlerSet) LoginPage(c *gin.Context) {
	next := service.SanitizeNext(c.Query("next"))
	if _, ok := middleware.CurrentSession(c); ok && c.Query("error") == "" {
		c.Redirect(http.StatusFound, next)
		return
	}

	c.HTML(http.StatusOK, web.LoginPage, gin.H{
		"Error":            c.Query("error"),
		"ErrorDescription": c.Query("error_description"),
		"Next":             next,
	})
}

// Callback completes the authorization code flow started at the provider.
func (h HandlerSet) Callback(c *gin.Context) {
	in := service.ExchangeInput{
		Code:             c.Query("code"),
		Next:             c.Query("next"),
		State:            c.Query("state"),
		ProviderError:    c.Query("error"),
		ProviderErrorMsg: c.Query("error_description"),
	}

	if in.Code == "" && in.ProviderError == "" && h.cfg.Identity.FragmentRecovery {
		code, desc := service.ErrorCodeAndDescription(service.ErrMissingCode)
		c.HTML(http.StatusOK, web.CallbackPage, gin.H{
			"MissingURL": h.absoluteURL(c, service.LoginURL(code, desc)),
			"FailedURL":  h.absoluteURL(c, service.LoginURL(service.CodeAuthCallbackFailed, "")),
		})
		return
	}

	result, err := h.auth.Exchange(c.Request.Context(), middleware.Jar(c), in)
	if err != nil {
		code, desc := service.ErrorCodeAndDescription(err)
		c.Redirect(http.StatusFound, h.absoluteURL(c, service.LoginURL(code, desc)))
		return
	}

	middleware.SetSession(c, result.Session)
	c.Redirect(http.StatusFound, h.absoluteURL(c, result.Next))
}

// ExchangeCode is the POST form of Callback used by the recovery page.
func (h HandlerSet) ExchangeCode(c *gin.Context) {
	var req exchangeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
		return
	}

	result, err := h.auth.Exchange(c.Request.Context(), middleware.Jar(c), service.ExchangeInput{
		Code:  req.Code,
		Next:  req.Next,
		State: req.State,
	})
	if err != nil {
		code, desc := service.ErrorCodeAndDescription(err)
		c.JSON(exchangeStatus(err), gin.H{
			"error":             code,
			"error_description": desc,
			"redirect":          h.absoluteURL(c, service.LoginURL(code, desc)),
		})
		return
	}

	middleware.SetSession(c, result.Session)
	c.JSON(http.StatusOK, gin.H{"redirect": h.absoluteURL(c, result.Next)})
}

func (h HandlerSet) SignIn(c *gin.Context) {
	target := h.auth.BeginSignIn(c.Request.Context(), middleware.Jar(c), c.Query("next"))
	c.Redirect(http.StatusFound, target)
}

func (h HandlerSet) SignOut(c *gin.Context) {
	s, _ := middleware.CurrentSession(c)
	if err := h.auth.SignOut(c.Request.Context(), middleware.Jar(c), s); err != nil {
		h.log.Error().Err(err).Msg("sign out failed")
	}
	middleware.ClearSession(c)
	c.Redirect(http.StatusFound, h.absoluteURL(c, "/login"))
}

// exchangeStatus separates caller mistakes (400) from provider or storage
// faults (502).
func exchangeStatus(err error) int {
	if errors.Is(err, service.ErrMissingCode) || errors.Is(err, service.ErrStateMismatch) {
		return http.StatusBadRequest
	}
	var perr *identity.Error
	if errors.As(err, &perr) {
		if perr.Rejected() {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	}
	var xerr *service.ExchangeError
	if errors.As(err, &xerr) && xerr.Err == nil {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

// absoluteURL resolves an application path against the public URL, or the
// request's own origin when none is configured.
func (h HandlerSet) absoluteURL(c *gin.Context, path string) string {
	base := strings.TrimRight(h.cfg.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
			scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + path
}
