// Package httpapi exposes the inbound operation surface over HTTP. It is a
// thin adapter: subject identity arrives in the request body or path, and
// verifying it is the job of the authentication layer in front of this
// service.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/littlewriters/credits-service/internal/cache"
	"github.com/littlewriters/credits-service/internal/domain/credits"
	"github.com/littlewriters/credits-service/internal/ledger"
	"github.com/littlewriters/credits-service/internal/redemption"
	"github.com/littlewriters/credits-service/internal/storage"
	"github.com/littlewriters/credits-service/pkg/logger"
)

// Server wires the engines to HTTP routes.
type Server struct {
	ledger   *ledger.Engine
	redeemer *redemption.Engine
	reporter *redemption.Reporter
	logs     storage.UsageLogStore
	cache    *cache.Cache
	log      *logger.Logger
}

// NewServer creates the HTTP adapter.
func NewServer(l *ledger.Engine, r *redemption.Engine, rep *redemption.Reporter, logs storage.UsageLogStore, c *cache.Cache, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Server{ledger: l, redeemer: r, reporter: rep, logs: logs, cache: c, log: log}
}

// requestIDHeader carries the correlation id; inbound values are honored so
// the caller can trace a request across services.
const requestIDHeader = "X-Request-ID"

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestID())
	router.Use(s.accessLog())

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/credits/adjust", s.adjustCredits)
		api.POST("/redeem", s.redeem)
		api.POST("/redeem/validate", s.validateCode)
		api.GET("/user/:id/redemption-history", s.redemptionHistory)
		api.GET("/user/:id/usage-history", s.usageHistory)

		admin := api.Group("/admin")
		{
			admin.POST("/generate-code", s.generateCode)
			admin.GET("/statistics", s.statistics)
			admin.GET("/cache/stats", s.cacheStats)
			admin.POST("/cache/clear", s.cacheClear)
		}
	}

	return router
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Set("request_id", id)
		ctx.Header(requestIDHeader, id)
		ctx.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		s.log.WithFields(map[string]interface{}{
			"request_id": ctx.GetString("request_id"),
			"method":     ctx.Request.Method,
			"path":       ctx.FullPath(),
			"status":     ctx.Writer.Status(),
			"duration":   time.Since(start).String(),
		}).Debug("request completed")
	}
}

type adjustRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	Delta      int    `json:"delta"`
	ActionType string `json:"action_type"`
}

func (s *Server) adjustCredits(ctx *gin.Context) {
	var req adjustRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, credits.NewError(credits.KindInvalidInput, "invalid request body"))
		return
	}

	newBalance, err := s.ledger.AdjustCredits(ctx.Request.Context(), req.UserID, req.Delta, req.ActionType)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, "credits updated", gin.H{"credits_remaining": newBalance})
}

type redeemRequest struct {
	Code   string `json:"code" binding:"required"`
	UserID string `json:"user_id" binding:"required"`
}

func (s *Server) redeem(ctx *gin.Context) {
	var req redeemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, credits.NewError(credits.KindInvalidInput, "code and user_id are required"))
		return
	}

	gained, err := s.redeemer.Redeem(ctx.Request.Context(), req.Code, req.UserID)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, "redemption successful", gin.H{"credits_gained": gained})
}

type validateRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) validateCode(ctx *gin.Context) {
	var req validateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, credits.NewError(credits.KindInvalidInput, "code is required"))
		return
	}

	record, err := s.redeemer.ValidateCode(ctx.Request.Context(), req.Code)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, "code is valid", gin.H{
		"credits_value": record.CreditsValue,
		"expires_at":    record.ExpiresAt,
		"is_valid":      true,
	})
}

func (s *Server) redemptionHistory(ctx *gin.Context) {
	history, err := s.redeemer.RedemptionHistory(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, "history retrieved", history)
}

func (s *Server) usageHistory(ctx *gin.Context) {
	userID := ctx.Param("id")
	key := cache.Key(cache.NamespaceUserData, "usage_history", userID)

	// TTL comes from the cache's configured default.
	logs, err := cache.Fetch(s.cache, key, 0, func() ([]credits.UsageLogEntry, error) {
		return s.logs.ListUsageLogs(ctx.Request.Context(), userID, 50)
	})
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, "history retrieved", logs)
}

type generateRequest struct {
	CreditsValue int    `json:"credits_value"`
	ExpiresDays  int    `json:"expires_days"`
	CreatorID    string `json:"creator_id"`
}

func (s *Server) generateCode(ctx *gin.Context) {
	var req generateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, credits.NewError(credits.KindInvalidInput, "invalid request body"))
		return
	}

	record, err := s.redeemer.GenerateCode(ctx.Request.Context(), req.CreditsValue, req.ExpiresDays, req.CreatorID)
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, "code generated", record)
}

func (s *Server) statistics(ctx *gin.Context) {
	stats, err := s.reporter.UsageStatistics(ctx.Request.Context())
	if err != nil {
		fail(ctx, err)
		return
	}
	ok(ctx, "statistics retrieved", stats)
}

func (s *Server) cacheStats(ctx *gin.Context) {
	ok(ctx, "cache statistics", s.cache.GetStats())
}

func (s *Server) cacheClear(ctx *gin.Context) {
	s.cache.Clear()
	ok(ctx, "cache cleared", nil)
}
