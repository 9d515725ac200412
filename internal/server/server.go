package server

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"fieldops/internal/config"
	"fieldops/internal/handler"
	"fieldops/internal/middleware"
	"fieldops/internal/service"
	"fieldops/internal/store"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Server represents the HTTP server
type Server struct {
	router     *gin.Engine
	config     *config.Config
	db         *gorm.DB
	redis      *redis.Client
	nats       *nats.Conn
	wsHub      *handler.WSHub
	wsHandler  *handler.WSHandler
	webhookSub *nats.Subscription
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) *Server {
	return &Server{
		config: cfg,
		db:     db,
		redis:  redisClient,
		nats:   natsConn,
	}
}

// Setup initializes routes and handlers
func (s *Server) Setup() {
	// Initialize WebSocket hub first so live tracking is up before traffic
	s.wsHub = handler.NewWSHub(s.nats)
	s.wsHandler = handler.NewWSHandler(s.wsHub)

	// Initialize services
	st := store.NewGorm(s.db)
	authService := service.NewAuthService(s.db)
	customerService := service.NewCustomerService(st, s.redis)
	visitService := service.NewVisitService(st, s.redis, s.nats, customerService, s.config.Geofence, s.config.Rates)
	trailService := service.NewTrailService(st, s.redis, s.nats)
	commissionService := service.NewCommissionService(st)
	webhookService := service.NewWebhookService(s.db)

	// Webhook fan-out feeds on the engine's NATS events
	if s.nats != nil {
		sub, err := webhookService.Subscribe(s.nats)
		if err != nil {
			log.Printf("[Server] Failed to subscribe webhook dispatcher: %v", err)
		} else {
			s.webhookSub = sub
		}
	}

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService, s.config)
	visitHandler := handler.NewVisitHandler(visitService)
	gpsHandler := handler.NewGPSHandler(trailService, customerService, s.config.Geofence)
	customerHandler := handler.NewCustomerHandler(customerService, s.config.Geofence)
	commissionHandler := handler.NewCommissionHandler(commissionService)
	webhookHandler := handler.NewWebhookHandler(webhookService)

	// Start WebSocket hub in background
	go s.wsHub.Run()
	log.Println("[Server] WebSocket hub started")

	// Setup Gin router
	s.router = gin.Default()

	// CORS middleware
	s.router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Rate limiting. Installed after auth on the protected group so the
	// agent-keyed rules see the authenticated agent id; the login rule is
	// IP-keyed and applies before auth.
	rateLimit := gin.HandlerFunc(func(c *gin.Context) { c.Next() })
	if s.config.RateLimit.Enabled && s.redis != nil {
		limiter := middleware.NewRedisRateLimiter(s.redis)
		group := middleware.NewRateLimitGroup(limiter, s.config.RateLimit.DefaultRule.ToMiddlewareConfig())
		for i := range s.config.RateLimit.SpecificRules {
			rule := &s.config.RateLimit.SpecificRules[i]
			group.AddSpecificConfig(rule.Path, rule.ToMiddlewareConfig())
		}
		rateLimit = group.Middleware()
		log.Println("[Server] Rate limiting enabled")
	}

	// Swagger UI
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Public routes
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	s.router.POST("/api/v1/auth/login", rateLimit, authHandler.Login)

	// WebSocket routes; tenant scoping comes from the token
	ws := s.router.Group("/ws")
	ws.Use(authHandler.AuthMiddleware())
	{
		ws.GET("/track", s.wsHandler.HandleTrack)
		ws.GET("/stats", s.wsHandler.GetStats)
	}

	// Protected routes
	api := s.router.Group("/api/v1")
	api.Use(authHandler.AuthMiddleware(), rateLimit)
	{
		// Auth
		api.GET("/auth/me", authHandler.GetMe)

		// Field visit workflow
		api.POST("/field/check-in", visitHandler.CheckIn)
		api.POST("/field/check-out", visitHandler.CheckOut)
		api.GET("/field/visits/:visit_id/tasks", visitHandler.GetTasks)
		api.POST("/field/visit-task/complete", visitHandler.CompleteTask)
		api.POST("/field/visit-task/skip", visitHandler.SkipTask)
		api.POST("/field/visits", visitHandler.Schedule)
		api.POST("/field/visits/:visit_id/cancel", visitHandler.Cancel)
		api.GET("/field/my-visits", visitHandler.MyVisits)
		api.GET("/field/dashboard", visitHandler.Dashboard)

		// GPS trail and proximity
		api.POST("/gps/log", gpsHandler.LogSample)
		api.GET("/gps/agents/:agent_id/track", gpsHandler.GetTrack)
		api.GET("/gps/agents/:agent_id/shadow", gpsHandler.GetShadow)
		api.POST("/gps/validate-proximity", gpsHandler.ValidateProximity)
		api.PUT("/gps/customer-location", gpsHandler.UpdateCustomerLocation)
		api.GET("/gps/customer-location/:customer_id", gpsHandler.GetCustomerLocation)

		// Customers
		api.GET("/customers/nearby", customerHandler.Nearby)
		api.GET("/customers/:id", customerHandler.Get)

		// Commissions
		api.GET("/commissions", commissionHandler.ListMine)
		api.GET("/commissions/summary", commissionHandler.Summary)
		api.GET("/commissions/export", commissionHandler.Export)
		api.GET("/commissions/all", handler.RequireRole("admin", "manager"), commissionHandler.ListTenant)
		api.POST("/commissions/:id/status", handler.RequireRole("admin", "manager"), commissionHandler.UpdateStatus)

		// Webhooks
		webhookHandler.RegisterRoutes(api)
	}
}

// Run starts the HTTP server
func (s *Server) Run(addr string) error {
	log.Printf("[Server] HTTP server listening on %s", addr)
	return s.router.Run(addr)
}

// GetRouter returns the gin router for testing
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() {
	if s.webhookSub != nil {
		s.webhookSub.Unsubscribe()
		log.Println("[Server] Webhook dispatcher stopped")
	}
	if s.wsHub != nil {
		s.wsHub.Stop()
		log.Println("[Server] WebSocket hub stopped")
	}
}
