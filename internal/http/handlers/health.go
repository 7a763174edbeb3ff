package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parlorchat/parlor-backend/internal/http/response"
)

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

func (h *HealthHandler) Check(c *gin.Context) {
	response.RespondOK(c, http.StatusOK, gin.H{"status": "ok"})
}
