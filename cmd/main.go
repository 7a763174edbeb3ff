package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/parlorchat/parlor-backend/internal/app"
)

func main() {
	_ = godotenv.Load()

	a, err := app.New()
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		a.Log.Error("server exited", "err", err)
	}
}
