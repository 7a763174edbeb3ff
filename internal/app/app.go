package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/parlorchat/parlor-backend/internal/clients/openai"
	"github.com/parlorchat/parlor-backend/internal/clients/redis"
	"github.com/parlorchat/parlor-backend/internal/data/repos"
	"github.com/parlorchat/parlor-backend/internal/db"
	"github.com/parlorchat/parlor-backend/internal/http/handlers"
	"github.com/parlorchat/parlor-backend/internal/http/middleware"
	"github.com/parlorchat/parlor-backend/internal/pkg/logger"
	"github.com/parlorchat/parlor-backend/internal/platform/envutil"
	"github.com/parlorchat/parlor-backend/internal/platform/observability"
	"github.com/parlorchat/parlor-backend/internal/server"
	"github.com/parlorchat/parlor-backend/internal/services"
	"github.com/parlorchat/parlor-backend/internal/tools"
)

// App owns every long-lived component and the HTTP server.
type App struct {
	Log     *logger.Logger
	DB      *db.PostgresService
	Cache   redis.Cache
	Tracing *observability.Tracing

	srv *http.Server
}

type repoSet struct {
	users    repos.UserRepo
	chats    repos.ChatRepo
	messages repos.MessageRepo
}

type serviceSet struct {
	auth          services.AuthService
	users         services.UserService
	conversations services.ConversationService
	stream        services.StreamService
}

func New() (*App, error) {
	mode := envutil.Get("APP_ENV", "development")
	log, err := logger.New(mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	tracing, err := observability.NewTracing("parlor-backend")
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// The response cache is an optimization; the API works without it.
	cache, err := redis.NewCache(log)
	if err != nil {
		log.Warn("response cache disabled", "err", err)
		cache = nil
	}

	llm, err := openai.NewClient(log)
	if err != nil {
		return nil, fmt.Errorf("init model client: %w", err)
	}

	registry := tools.NewRegistry(log)

	r := wireRepos(pg.DB(), log)
	svc, err := wireServices(pg.DB(), log, r, llm, registry)
	if err != nil {
		return nil, err
	}

	router := server.NewRouter(server.RouterConfig{
		Log:           log,
		Health:        handlers.NewHealthHandler(),
		Auth:          handlers.NewAuthHandler(log, svc.auth),
		Profile:       handlers.NewProfileHandler(log, svc.users),
		Conversations: handlers.NewConversationHandler(log, svc.conversations),
		AI:            handlers.NewAIHandler(log, svc.stream),
		CORS:          middleware.CORS(),
		RequestLog:    middleware.RequestLog(log),
		RequireAuth:   middleware.Auth(svc.auth),
		ResponseCache: middleware.ResponseCache(cache, log),
	})

	addr := fmt.Sprintf(":%d", envutil.Int("PORT", 8080))
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Log:     log,
		DB:      pg,
		Cache:   cache,
		Tracing: tracing,
		srv:     srv,
	}, nil
}

func wireRepos(gdb *gorm.DB, log *logger.Logger) repoSet {
	return repoSet{
		users:    repos.NewUserRepo(gdb, log),
		chats:    repos.NewChatRepo(gdb, log),
		messages: repos.NewMessageRepo(gdb, log),
	}
}

func wireServices(gdb *gorm.DB, log *logger.Logger, r repoSet, llm openai.Client, registry *tools.Registry) (serviceSet, error) {
	auth, err := services.NewAuthService(gdb, log, r.users)
	if err != nil {
		return serviceSet{}, fmt.Errorf("init auth service: %w", err)
	}
	conversations := services.NewConversationService(gdb, log, r.chats, r.messages)
	return serviceSet{
		auth:          auth,
		users:         services.NewUserService(gdb, log, r.users),
		conversations: conversations,
		stream:        services.NewStreamService(gdb, log, llm, registry, conversations, r.chats),
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("http server listening", "addr", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Log.Warn("close cache", "err", err)
		}
	}
	if err := a.Tracing.Shutdown(ctx); err != nil {
		a.Log.Warn("shutdown tracing", "err", err)
	}
	a.Log.Sync()
}
