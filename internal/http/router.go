// Package httpapi wires the HTTP transport (Gin) to the ingest and digest
// services. It owns middleware ordering and route registration.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-location-digest/docs" // registers the OpenAPI document
	"github.com/tbourn/go-location-digest/internal/config"
	"github.com/tbourn/go-location-digest/internal/http/handlers"
	"github.com/tbourn/go-location-digest/internal/http/middleware"
	"github.com/tbourn/go-location-digest/internal/observability"
	"github.com/tbourn/go-location-digest/internal/repo"
	"github.com/tbourn/go-location-digest/internal/services"
)

// ScopeRunDigest must be granted to trigger an aggregation run over HTTP.
const ScopeRunDigest = "digests:run"

const maxBodyBytes = 1 << 20

var (
	corsMethods       = []string{"GET", "POST", "OPTIONS"}
	corsAllowHeaders  = []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	corsExposeHeaders = []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", "Idempotency-Replayed"}
)

// RegisterRoutes attaches middleware and endpoints to r. digestSvc is shared
// with the scheduler so HTTP-triggered and periodic runs serialize on the
// same lock.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//  7. gzip, CORS, security headers
//
// The API group additionally requires a bearer token when AUTH_JWT_SECRET
// is set. The rate limiter is attached per route, after auth, so buckets
// are keyed by subject where there is one. POST /events runs the
// idempotency check ahead of the limiter so genuine replays bypass it; no
// other route pays for the lookup.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, digestSvc *services.DigestService, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(observability.ServiceName(cfg.OTEL)))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ingestSvc := &services.IngestService{DB: db}
	idem := middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, ingestSvc.Exists)
	limit := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler()

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		CacheControl: "private, no-cache",
		EnablePolicy: true,
	}))

	r.NoRoute(limit, func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(limit, func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(ingestSvc, digestSvc, func(ctx context.Context) error {
		return repo.Ping(ctx, db)
	})
	r.GET("/health", limit, h.Health)

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", limit, ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.Auth(middleware.AuthOptions{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.JWTIssuer,
	}))
	{
		api.POST("/events", idem, limit, h.IngestEvent)
		api.POST("/events/batch", limit, h.IngestBatch)

		api.GET("/digests", limit, h.ListDigests)
		api.GET("/digests/:id", limit, h.GetDigest)
		api.POST("/digests/run", middleware.RequireScope(ScopeRunDigest), limit, h.RunDigest)
	}
}

// corsMiddleware allows any origin when none are configured; otherwise it
// echoes allowlisted origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// ACAO: * even without an Origin header, for simple checks.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     corsMethods,
				AllowHeaders:     corsAllowHeaders,
				ExposeHeaders:    corsExposeHeaders,
				AllowCredentials: false,
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsAllowHeaders,
			ExposeHeaders:    corsExposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody caps request bodies at maxBytes; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
