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
	"github.com/parlorchat/parlor-backend/internal/services"
)

type ProfileHandler struct {
	log   *logger.Logger
	users services.UserService
}

func NewProfileHandler(log *logger.Logger, users services.UserService) *ProfileHandler {
	return &ProfileHandler{log: log.With("handler", "ProfileHandler"), users: users}
}

type profilePatchRequest struct {
	Name         *string `json:"name"`
	ProfileImage *string `json:"profileImage"`
}

func (h *ProfileHandler) Get(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, apierr.Unauthorized("missing_token", fmt.Errorf("no identity in context")))
		return
	}
	user, err := h.users.Get(dbctx.New(c.Request.Context()), rd.UserID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, gin.H{"user": user.Public()})
}

func (h *ProfileHandler) Update(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, apierr.Unauthorized("missing_token", fmt.Errorf("no identity in context")))
		return
	}
	var req profilePatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.BadRequest("invalid_body", err))
		return
	}
	user, err := h.users.Update(dbctx.New(c.Request.Context()), rd.UserID, services.ProfileUpdate{
		Name:         req.Name,
		ProfileImage: req.ProfileImage,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, gin.H{"user": user.Public()})
}
