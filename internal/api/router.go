package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/marina/internal/api/handlers"
	"github.com/your-org/marina/internal/api/ws"
	"github.com/your-org/marina/internal/auth"
	"github.com/your-org/marina/internal/dashboard"
	"github.com/your-org/marina/internal/ingest"
	"github.com/your-org/marina/internal/queue"
	"github.com/your-org/marina/internal/recon"
	"github.com/your-org/marina/internal/storage"
)

type RouterConfig struct {
	DB         *storage.PostgresStore
	MinIO      *storage.MinIOStore
	Producer   *queue.Producer
	Hub        *ws.Hub
	Tokens     *auth.TokenService
	Ingest     *ingest.Service
	Reconciler *recon.Reconciler
	Aggregator *dashboard.Aggregator
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	userH := handlers.NewUserHandler(cfg.DB, cfg.Tokens)

	v1 := r.Group("/api/v1")

	// Login and websocket do their own credential handling: login issues
	// the token, the hub authenticates its first control message.
	v1.POST("/login/access-token", userH.Login)
	v1.GET("/ws", cfg.Hub.HandleWS)

	authed := v1.Group("")
	authed.Use(auth.Middleware(cfg.Tokens, cfg.DB))

	authed.GET("/login/current-user", userH.CurrentUser)
	authed.GET("/users", userH.List)

	// Boat passes
	passH := handlers.NewPassHandler(cfg.Ingest, cfg.Reconciler, cfg.DB, cfg.MinIO)
	authed.POST("/boat-passes", passH.Create)
	authed.GET("/boat-passes", passH.List)
	authed.GET("/boat-passes/:id", passH.Get)
	authed.GET("/boat-passes/:id/image", passH.Image)

	// States
	stateH := handlers.NewStateHandler(cfg.DB, cfg.Reconciler)
	authed.POST("/states", stateH.Create)
	authed.GET("/states", stateH.List)
	authed.GET("/states/:id", stateH.Get)
	authed.PATCH("/states/:id/payment", stateH.UpdatePayment)
	authed.PATCH("/states/:id/identifier", stateH.UpdateIdentifier)
	authed.PUT("/states/:id", stateH.Update)

	// Dashboard
	dashH := handlers.NewDashboardHandler(cfg.Aggregator)
	authed.GET("/dashboard", dashH.Get)

	return r
}
