package server

import (
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/thesisdesk/thesisdesk-backend/internal/http/handlers"
	"github.com/thesisdesk/thesisdesk-backend/internal/http/middleware"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log                  *logger.Logger
	HealthHandler        *handlers.HealthHandler
	ProjectHandler       *handlers.ProjectHandler
	ProgressHandler      *handlers.ProgressHandler
	PaymentHandler       *handlers.PaymentHandler
	SwitchRequestHandler *handlers.SwitchRequestHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("LOG_MODE")), "production") {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("thesisdesk-backend"))
	router.Use(cors.New(corsConfig()))

	router.GET("/healthcheck", cfg.HealthHandler.Check)

	// Gateway-to-server; authenticated by signature, not by caller identity.
	router.POST("/api/payments/webhook", cfg.PaymentHandler.Webhook)

	api := router.Group("/api")
	api.Use(middleware.Identity(cfg.Log))
	{
		projects := api.Group("/projects")
		projects.Use(middleware.RequireOwner())
		{
			projects.POST("", cfg.ProjectHandler.Create)
			projects.GET("", cfg.ProjectHandler.List)
			projects.GET("/:id", cfg.ProjectHandler.Get)
			projects.POST("/:id/claim", middleware.RequireUser(), cfg.ProjectHandler.Claim)

			projects.POST("/:id/progress", cfg.ProgressHandler.Update)
			projects.GET("/:id/progress", cfg.ProgressHandler.Get)

			projects.POST("/:id/switch-requests", middleware.RequireUser(), cfg.SwitchRequestHandler.Create)
		}

		api.POST("/switch-requests/:id/review", middleware.RequireUser(), cfg.SwitchRequestHandler.Review)
		api.GET("/payments/:reference", middleware.RequireUser(), cfg.PaymentHandler.Get)
	}

	return router
}

func corsConfig() cors.Config {
	origins := strings.TrimSpace(os.Getenv("CORS_ALLOW_ORIGINS"))
	conf := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Anonymous-Id"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if origins == "" {
		conf.AllowAllOrigins = true
		conf.AllowCredentials = false
	} else {
		conf.AllowOrigins = strings.Split(origins, ",")
	}
	return conf
}
