package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kpcloud/kpcloud/internal/account"
	"github.com/kpcloud/kpcloud/internal/activity"
	"github.com/kpcloud/kpcloud/internal/auth"
	"github.com/kpcloud/kpcloud/internal/billing"
	"github.com/kpcloud/kpcloud/internal/config"
	"github.com/kpcloud/kpcloud/internal/file"
	"github.com/kpcloud/kpcloud/internal/logger"
	"github.com/kpcloud/kpcloud/internal/metrics"
	"github.com/kpcloud/kpcloud/internal/objectstore"
	"github.com/kpcloud/kpcloud/internal/presigned"
	"github.com/kpcloud/kpcloud/internal/quota"
	"github.com/kpcloud/kpcloud/internal/trash"
	"github.com/kpcloud/kpcloud/internal/usage"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config      config.Config
	Log         *zap.Logger
	Database    Pinger
	ObjectStore objectstore.Store
	Verifier    auth.Verifier
	Accounts    *account.Service
	Billing     *billing.Service
	Usage       *usage.Accountant
	Files       *file.Service
	Trash       *trash.Service
	Grants      *presigned.Service
	Activity    *activity.Service
}

// NewRouter builds the gin engine with its middleware and routes, wrapped in CORS handling.
func NewRouter(deps Dependencies) http.Handler {
	return corsHandler(deps.Config.Server).Handler(newEngine(deps))
}

func newEngine(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware())
	if deps.Config.Metrics.Enabled {
		router.Use(metrics.Middleware())
		metrics.Register(router, deps.Config.Metrics.Path)
	}

	registerHealthRoutes(router, deps)

	api := router.Group("/v1")
	api.Use(auth.AuthMiddleware(deps.Verifier), account.Middleware(deps.Accounts))

	destructive := api.Group("", quota.RequireClass(quota.Destructive))
	write := api.Group("", quota.RequireClass(quota.Write))

	account.RegisterRoutes(api, deps.Accounts)
	activity.RegisterRoutes(api, deps.Activity)
	billing.RegisterRoutes(api, deps.Billing, deps.Usage)

	file.RegisterReadRoutes(api, deps.Files)
	file.RegisterDestructiveRoutes(destructive, deps.Files)
	file.RegisterWriteRoutes(write, deps.Files)

	grants := presigned.NewHandler(deps.Grants, deps.Log)
	grants.RegisterReadRoutes(destructive)
	grants.RegisterWriteRoutes(write)

	trash.RegisterRoutes(api, deps.Trash)
	trash.RegisterMutatingRoutes(destructive, deps.Trash)

	return router
}

func corsHandler(cfg config.ServerConfig) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", logger.CorrelationIDHeader},
		ExposedHeaders:   []string{logger.CorrelationIDHeader, "Content-Disposition"},
		AllowCredentials: true,
	})
}
