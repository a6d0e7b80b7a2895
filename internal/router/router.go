package router

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	Development    bool
	BodyLimit      int64
	RateLimit      rate.Limit
	RateBurst      int
	AuthPerMinute  int
	AllowedOrigins []string
}

type Router struct {
	engine  *gin.Engine
	config  Config
	metrics *middleware.HTTPMetrics
}

func NewRouter(config Config, metrics *middleware.HTTPMetrics) *Router {
	if config.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		metrics.Middleware(),
		middleware.ErrorHandler(config.Development),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig(!config.Development)),
		cors.New(corsConfig(config.AllowedOrigins)),
		middleware.BodyLimit(config.BodyLimit),
	)
	if config.RateLimit > 0 {
		engine.Use(middleware.NewRateLimiter(config.RateLimit, config.RateBurst).RateLimit())
	}

	return &Router{engine: engine, config: config, metrics: metrics}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderXRequestID},
		ExposeHeaders:    []string{middleware.HeaderXRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Setup mounts every handler under /api/v1. Health routes sit outside the
// auth limiter.
func (r *Router) Setup(health Handler, handlers ...Handler) {
	r.engine.NoRoute(middleware.NotFound())
	r.engine.NoMethod(middleware.NotFound())

	api := r.engine.Group("/api/v1")
	health.RegisterRoutes(api)

	if r.config.AuthPerMinute > 0 {
		api.Use(limitPrefix("/api/v1/auth", middleware.PerMinute(r.config.AuthPerMinute)))
	}
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
}

// limitPrefix applies rl only to requests under prefix.
func limitPrefix(prefix string, rl *middleware.RateLimiter) gin.HandlerFunc {
	limit := rl.RateLimit()
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, prefix) {
			limit(c)
			return
		}
		c.Next()
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
