package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/veedubyou/stemsplit/src/worker/application"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.NewApp(ctx, application.ConfigFromEnv())
	if err != nil {
		panic(err)
	}

	if err := app.Start(ctx); err != nil {
		panic(err)
	}

	<-ctx.Done()
	log.Info("Shutting down worker")
	app.Stop()
}
