package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/config"
)

// RateLimiter 简单的内存速率限制器
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int           // 最大请求数
	window   time.Duration // 时间窗口
}

// NewRateLimiter 创建速率限制器
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	// 清理过期请求
	var valid []time.Time
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	// 检查是否超过限制
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	// 记录新请求
	rl.requests[key] = append(valid, now)
	return true
}

// RateLimitMiddleware 速率限制中间件
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 使用用户 ID 或 IP 作为限制 key
		key := c.GetString("userID")
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

type Server struct {
	router  *gin.Engine
	handler *Handler
	cfg     *config.Config
}

// 全局速率限制器: 每用户每分钟最多 60 次请求
var userRateLimiter = NewRateLimiter(60, time.Minute)

// 支付发起速率限制器: 每用户每小时最多 10 次
// 说明: STK push 有真实成本，10 次足够覆盖重试场景
var paymentRateLimiter = NewRateLimiter(10, time.Hour)

// 认证接口速率限制器: 每 IP 每小时最多 20 次（防止 PIN 爆破）
var authRateLimiter = NewRateLimiter(20, time.Hour)

func NewServer(cfg *config.Config, handler *Handler) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:  router,
		handler: handler,
		cfg:     cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "wifi-billing-service",
		})
	})

	// Public API - no authentication required
	public := s.router.Group("/api/v1")
	{
		public.POST("/users/register", RateLimitMiddleware(authRateLimiter), s.handler.Register)
		public.POST("/users/login", RateLimitMiddleware(authRateLimiter), s.handler.Login)
		public.GET("/packages", s.handler.ListPackages)
		public.GET("/packages/:id", s.handler.GetPackage)
	}

	// User API - requires JWT authentication
	user := s.router.Group("/api/v1")
	user.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	user.Use(RateLimitMiddleware(userRateLimiter)) // 用户 API 速率限制
	{
		user.GET("/users/me", s.handler.GetMe)

		// Session accounting
		user.POST("/sessions", s.handler.StartSession)
		user.GET("/sessions/:id", s.handler.GetSession)
		user.POST("/sessions/:id/stop", s.handler.StopSession)
		user.GET("/sessions/:id/usage", s.handler.GetSessionUsage)
		user.GET("/my/sessions", s.handler.GetMySessions)

		// Payments - 发起支付使用更严格的速率限制
		user.POST("/payments/initiate", RateLimitMiddleware(paymentRateLimiter), s.handler.InitiatePayment)
		user.GET("/payments/:transaction_id", s.handler.GetPayment)
		user.POST("/payments/:transaction_id/poll", s.handler.PollPayment)
		user.GET("/my/transactions", s.handler.GetMyTransactions)
	}

	// Internal API - called by the hotspot gateway and operator tooling
	internal := s.router.Group("/api/internal")
	internal.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		// Metering events
		internal.POST("/sessions/:id/packets", s.handler.RecordUsage)
		internal.GET("/sessions/:id/packets", s.handler.ListSessionPackets)

		// Subscriber lookup for the hotspot gateway
		internal.GET("/users/by-phone/:phone", s.handler.GetUserByPhone)

		// Package management (admin)
		internal.POST("/packages", s.handler.CreatePackage)
		internal.PUT("/packages/:id", s.handler.UpdatePackage)
		internal.DELETE("/packages/:id", s.handler.DeletePackage)

		// Reconciliation tooling (admin)
		internal.GET("/admin/pending-transactions", s.handler.ListPendingTransactions)
		internal.POST("/admin/reconcile", s.handler.TriggerReconcile)
	}

	// Payment gateway callback API
	callback := s.router.Group("/api/callback")
	callback.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		callback.POST("/payment", s.handler.PaymentCallback)
	}
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
