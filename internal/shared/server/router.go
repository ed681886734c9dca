package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clientdocs-backend/internal/documents"
	"clientdocs-backend/internal/shared/config"
	"clientdocs-backend/internal/shared/metrics"
	"clientdocs-backend/internal/shared/server/middleware"
	"clientdocs-backend/internal/shared/server/respond"
)

// RouterDeps carries everything the router needs to register routes.
type RouterDeps struct {
	Config           config.Config
	DocumentsHandler *documents.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/healthz", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(middleware.Tenant())
	if deps.DocumentsHandler != nil {
		deps.DocumentsHandler.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
