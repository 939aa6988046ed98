// Package app wires the HTTP routes
package app

import (
	"strings"
	"time"

	"bitwise74/tmpfile-api/app/admin"
	"bitwise74/tmpfile-api/app/file"
	"bitwise74/tmpfile-api/app/root"
	"bitwise74/tmpfile-api/internal"
	"bitwise74/tmpfile-api/pkg/middleware"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Multipart overhead allowed on top of the largest file size
const multipartSlack = 1 << 20

func NewRouter(d *internal.Deps) *gin.Engine {
	router := gin.New()

	router.Use(
		cors.New(corsConfig(viper.GetString("host.cors_origins"))),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true

	rateLimit := viper.GetInt("security.rate_limit")
	d.Limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: rateLimit,
		Burst:             rateLimit * 2,
	})

	turnstile := middleware.NewTurnstileMiddleware()
	adminKey := middleware.NewAdminKeyMiddleware(viper.GetString("admin.api_key"))
	maxBody := max(d.Settings.Service.Limits.Temporary, d.Settings.Service.Limits.Permanent) + multipartSlack
	responses := newCacheStore(viper.GetString("cache.redis_addr"))

	m := router.Group("/api")
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		m.HEAD("/heartbeat", func(c *gin.Context) { root.Heartbeat(c, d) })

		// GET /api/usage		-> Bucket usage against the quota
		m.GET("/usage", cache.CacheByRequestURI(responses, 30*time.Second), func(c *gin.Context) { root.Usage(c, d) })
	}

	f := m.Group("/files")
	{
		// POST /api/files         	-> Uploads a new file
		f.POST("", d.Limiter.Middleware(), turnstile, middleware.BodySizeLimiter(maxBody), func(c *gin.Context) { file.FileUpload(c, d) })

		// GET /api/files/:id		-> Public metadata of a file
		f.GET("/:id", func(c *gin.Context) { file.FileInfo(c, d) })
	}

	a := m.Group("/admin", adminKey)
	{
		// GET /api/admin/files		-> Lists files with filters and pagination
		a.GET("/files", func(c *gin.Context) { admin.FileList(c, d) })

		// DELETE /api/admin/files/:id	-> Deletes a file, the object only once unreferenced
		a.DELETE("/files/:id", func(c *gin.Context) { admin.FileDelete(c, d) })

		// POST /api/admin/files/:id/expire	-> Expires a file right away
		a.POST("/files/:id/expire", func(c *gin.Context) { admin.FileExpire(c, d) })

		// GET /api/admin/stats/*	-> Upload and download analytics
		a.GET("/stats/overview", cache.CacheByRequestURI(responses, 15*time.Second), func(c *gin.Context) { admin.StatsOverview(c, d) })
		a.GET("/stats/uploads", cache.CacheByRequestURI(responses, time.Minute), func(c *gin.Context) { admin.StatsUploads(c, d) })
		a.GET("/stats/downloads", cache.CacheByRequestURI(responses, time.Minute), func(c *gin.Context) { admin.StatsDownloads(c, d) })
		a.GET("/stats/top", cache.CacheByRequestURI(responses, time.Minute), func(c *gin.Context) { admin.StatsTop(c, d) })
	}

	// GET /f/:id			-> Serves a file, the id may carry its extension
	router.GET("/f/:id", func(c *gin.Context) { file.FileDownload(c, d) })

	return router
}

func corsConfig(origins string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "TurnstileToken", middleware.AdminKeyHeader},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	if origins == "" || origins == "*" {
		cfg.AllowAllOrigins = true
		return cfg
	}

	for _, o := range strings.Split(origins, ",") {
		cfg.AllowOrigins = append(cfg.AllowOrigins, strings.TrimSpace(o))
	}
	cfg.AllowCredentials = true

	return cfg
}

// newCacheStore backs response caching with redis when an address is set
func newCacheStore(redisAddr string) persist.CacheStore {
	if redisAddr == "" {
		return persist.NewMemoryStore(time.Minute)
	}

	zap.L().Debug("Using redis response cache", zap.String("addr", redisAddr))
	return persist.NewRedisStore(redis.NewClient(&redis.Options{
		Addr: redisAddr,
	}))
}
