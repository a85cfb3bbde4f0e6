package application

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/veedubyou/stemsplit/src/server/google_id"
	"github.com/veedubyou/stemsplit/src/server/internal/job/gateway"
	"github.com/veedubyou/stemsplit/src/server/internal/job/usecase"
	"github.com/veedubyou/stemsplit/src/server/internal/user/usecase"
	worker_app "github.com/veedubyou/stemsplit/src/worker/application"
)

type HTTPMethod string

const (
	GET    HTTPMethod = "GET"
	POST   HTTPMethod = "POST"
	PUT    HTTPMethod = "PUT"
	PATCH  HTTPMethod = "PATCH"
	DELETE HTTPMethod = "DELETE"
)

// the multipart limit plus room for the form envelope
const bodyLimit = "51M"

type App struct {
	echo  *echo.Echo
	stack *worker_app.App
	port  string
}

type Config struct {
	WorkerConfig       worker_app.Config
	CORSAllowedOrigins []string
	UserValidator      google_id.Validator
	Port               string
	Log                bool
}

func NewApp(ctx context.Context, config Config) (*App, error) {
	stack, err := worker_app.NewApp(ctx, config.WorkerConfig)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to build separation stack")
	}

	e := echo.New()
	e.HideBanner = true

	if config.Log {
		e.Use(middleware.Logger())
	}

	corsMiddleware := makeCorsMiddleware(config)

	handleRoute := func(method HTTPMethod, path string, handlerFunc echo.HandlerFunc, middlewares ...echo.MiddlewareFunc) {
		middlewares = append([]echo.MiddlewareFunc{corsMiddleware}, middlewares...)

		e.OPTIONS(path, handlerFunc, corsMiddleware)

		switch method {
		case GET:
			e.GET(path, handlerFunc, middlewares...)
		case POST:
			e.POST(path, handlerFunc, middlewares...)
		case PUT:
			e.PUT(path, handlerFunc, middlewares...)
		case PATCH:
			e.PATCH(path, handlerFunc, middlewares...)
		case DELETE:
			e.DELETE(path, handlerFunc, middlewares...)
		default:
			panic("unhandled http method!")
		}
	}

	jobGateway := makeJobGateway(config, stack)

	// health check
	handleRoute(GET, "/health-check", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	// model route
	handleRoute(GET, "/model", jobGateway.GetModel)

	// job routes
	handleRoute(POST, "/jobs", jobGateway.SubmitJob, middleware.BodyLimit(bodyLimit))
	handleRoute(GET, "/jobs", jobGateway.ListJobs)
	handleRoute(GET, "/jobs/:id", func(c echo.Context) error {
		jobID := c.Param("id")
		return jobGateway.GetJob(c, jobID)
	})
	handleRoute(POST, "/jobs/:id/cancel", func(c echo.Context) error {
		jobID := c.Param("id")
		return jobGateway.CancelJob(c, jobID)
	})
	handleRoute(PATCH, "/jobs/:id", func(c echo.Context) error {
		jobID := c.Param("id")
		return jobGateway.RenameJob(c, jobID)
	})
	handleRoute(DELETE, "/jobs/:id", func(c echo.Context) error {
		jobID := c.Param("id")
		return jobGateway.DeleteJob(c, jobID)
	})

	return &App{
		echo:  e,
		stack: stack,
		port:  config.Port,
	}, nil
}

// Start runs the separation stack and serves HTTP until Stop.
func (a *App) Start(ctx context.Context) error {
	if err := a.stack.Start(ctx); err != nil {
		return errors.Wrap(err, "Couldn't start separation stack")
	}

	err := a.echo.Start(a.port)
	if err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "Couldn't start echo server")
	}

	return nil
}

func (a *App) Stop() error {
	err := a.echo.Close()
	a.stack.Stop()
	if err != nil {
		return errors.Wrap(err, "Failed to stop echo server")
	}

	return nil
}

func makeJobGateway(config Config, stack *worker_app.App) jobgateway.Gateway {
	userUsecase := userusecase.NewUsecase(config.UserValidator)
	jobUsecase := jobusecase.NewUsecase(
		stack.Orchestrator(),
		stack.Gateway(),
		userUsecase,
		stack.Engine().Model(),
	)

	return jobgateway.NewGateway(jobUsecase)
}

func makeCorsMiddleware(config Config) echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: config.CORSAllowedOrigins,
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	})
}
