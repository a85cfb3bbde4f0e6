package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"

	"github.com/apex/log"
	"github.com/veedubyou/stemsplit/src/server/application"
	"github.com/veedubyou/stemsplit/src/server/google_id"
	"github.com/veedubyou/stemsplit/src/shared/config"
	"github.com/veedubyou/stemsplit/src/shared/config/envvar"
	"github.com/veedubyou/stemsplit/src/shared/config/prod"
	"github.com/veedubyou/stemsplit/src/shared/lib/env"
	worker_app "github.com/veedubyou/stemsplit/src/worker/application"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var appConfig application.Config

	switch env.Get() {
	case env.Production:
		commaSeparatedOrigins := envvar.MustGet(envvar.ALLOWED_FE_ORIGINS)
		allowedOrigins := strings.Split(commaSeparatedOrigins, ",")

		appConfig = application.Config{
			WorkerConfig:       worker_app.ConfigFromEnv(),
			CORSAllowedOrigins: allowedOrigins,
			UserValidator:      userValidator(ctx),
			Port:               envvar.GetOr(envvar.PORT, prod.Port),
			Log:                true,
		}
	case env.Development:
		appConfig = application.Config{
			WorkerConfig:       worker_app.ConfigFromEnv(),
			CORSAllowedOrigins: []string{"*"},
			UserValidator:      userValidator(ctx),
			Port:               envvar.GetOr(envvar.PORT, prod.Port),
			Log:                true,
		}

	default:
		panic("Unexpected environment")
	}

	app, err := application.NewApp(ctx, appConfig)
	if err != nil {
		panic(err)
	}

	go func() {
		<-ctx.Done()
		log.Info("Shutting down server")
		if err := app.Stop(); err != nil {
			log.WithError(err).Error("Failed to stop server cleanly")
		}
	}()

	if err := app.Start(ctx); err != nil {
		panic(err)
	}
}

func userValidator(ctx context.Context) google_id.Validator {
	var identity config.Identity

	switch provider := envvar.GetOr(envvar.AUTH_PROVIDER, "google"); provider {
	case "google":
		identity = config.GoogleIdentity{ClientID: envvar.MustGet(envvar.GOOGLE_CLIENT_ID)}
	case "firebase":
		identity = config.FirebaseIdentity{
			ProjectID: envvar.MustGet(envvar.FIREBASE_PROJECT_ID),
			JWKSURL:   prod.FirebaseJWKSURL,
		}
	default:
		panic("Unexpected auth provider " + provider)
	}

	validator, err := google_id.NewValidator(ctx, identity)
	if err != nil {
		panic(err)
	}

	return validator
}
