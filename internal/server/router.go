package server

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/parlorchat/parlor-backend/internal/http/handlers"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	Health        *handlers.HealthHandler
	Auth          *handlers.AuthHandler
	Profile       *handlers.ProfileHandler
	Conversations *handlers.ConversationHandler
	AI            *handlers.AIHandler

	CORS          gin.HandlerFunc
	RequestLog    gin.HandlerFunc
	RequireAuth   gin.HandlerFunc
	ResponseCache gin.HandlerFunc
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("parlor-backend"))
	if cfg.RequestLog != nil {
		router.Use(cfg.RequestLog)
	}
	if cfg.CORS != nil {
		router.Use(cfg.CORS)
	}

	router.GET("/health", cfg.Health.Check)

	api := router.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/register", cfg.Auth.Register)
		auth.POST("/login", cfg.Auth.Login)
		auth.POST("/logout", cfg.Auth.Logout)
		me := []gin.HandlerFunc{cfg.RequireAuth}
		if cfg.ResponseCache != nil {
			me = append(me, cfg.ResponseCache)
		}
		auth.GET("/me", append(me, cfg.Auth.Me)...)
	}

	protected := api.Group("")
	protected.Use(cfg.RequireAuth)
	if cfg.ResponseCache != nil {
		protected.Use(cfg.ResponseCache)
	}
	{
		protected.GET("/profile", cfg.Profile.Get)
		protected.PATCH("/profile", cfg.Profile.Update)

		protected.GET("/conversations", cfg.Conversations.List)
		protected.POST("/conversations", cfg.Conversations.Create)
		protected.PUT("/conversations", cfg.Conversations.Upsert)
		protected.GET("/conversations/:id", cfg.Conversations.Get)
		protected.PUT("/conversations/:id", cfg.Conversations.UpdateTitle)

		protected.POST("/ai/text-stream", cfg.AI.TextStream)
	}

	return router
}
