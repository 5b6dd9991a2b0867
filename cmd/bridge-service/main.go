package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"polybridge.com/internal/bridgesvc/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("bridge-service exited: %v", err)
	}
}
