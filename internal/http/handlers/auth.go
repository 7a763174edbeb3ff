package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parlorchat/parlor-backend/internal/http/response"
	"github.com/parlorchat/parlor-backend/internal/pkg/ctxutil"
	"github.com/parlorchat/parlor-backend/internal/pkg/dbctx"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
	"github.com/parlorchat/parlor-backend/internal/platform/apierr"
	"github.com/parlorchat/parlor-backend/internal/platform/envutil"
	"github.com/parlorchat/parlor-backend/internal/services"
)

type AuthHandler struct {
	log  *logger.Logger
	auth services.AuthService
}

func NewAuthHandler(log *logger.Logger, auth services.AuthService) *AuthHandler {
	return &AuthHandler{log: log.With("handler", "AuthHandler"), auth: auth}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.BadRequest("invalid_body", err))
		return
	}
	user, token, err := h.auth.Register(dbctx.New(c.Request.Context()), req.Name, req.Email, req.Password)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	h.setAuthCookie(c, token)
	response.RespondOK(c, http.StatusCreated, gin.H{"user": user.Public()})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.BadRequest("invalid_body", err))
		return
	}
	user, token, err := h.auth.Login(dbctx.New(c.Request.Context()), req.Email, req.Password)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	h.setAuthCookie(c, token)
	response.RespondOK(c, http.StatusOK, gin.H{"user": user.Public()})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(services.AuthCookieName, "", -1, "/", envutil.Get("COOKIE_DOMAIN", ""), h.secureCookies(), true)
	response.RespondOK(c, http.StatusOK, gin.H{"ok": true})
}

// Me returns the authenticated user's fresh profile.
func (h *AuthHandler) Me(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, apierr.Unauthorized("missing_token", fmt.Errorf("no identity in context")))
		return
	}
	user, err := h.auth.CurrentUser(dbctx.New(c.Request.Context()), rd.UserID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, gin.H{"user": user.Public()})
}

func (h *AuthHandler) setAuthCookie(c *gin.Context, token string) {
	maxAge := int(h.auth.TokenTTL().Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(services.AuthCookieName, token, maxAge, "/", envutil.Get("COOKIE_DOMAIN", ""), h.secureCookies(), true)
}

func (h *AuthHandler) secureCookies() bool {
	return envutil.Get("APP_ENV", "development") == "production"
}
