// main.go
package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/Runetap54/edit-stream-manager-sub000/apperrors"
	"github.com/Runetap54/edit-stream-manager-sub000/auth"
	"github.com/Runetap54/edit-stream-manager-sub000/internal/platform"
	"github.com/Runetap54/edit-stream-manager-sub000/processing"
	"github.com/Runetap54/edit-stream-manager-sub000/projects"
	"github.com/Runetap54/edit-stream-manager-sub000/provider"
	"github.com/Runetap54/edit-stream-manager-sub000/ratelimit"
	"github.com/Runetap54/edit-stream-manager-sub000/scenes"
	"github.com/Runetap54/edit-stream-manager-sub000/storage"
	"github.com/Runetap54/edit-stream-manager-sub000/webhooks"
)

type Server struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Router *gin.Engine
}

func NewServer() (*Server, error) {
	// Use the shared connection initializers
	db := platform.NewDBConnection()
	rdb := platform.NewRedisClient()

	if err := platform.Migrate(db); err != nil {
		return nil, err
	}

	// Create Gin router with CORS middleware
	router := gin.Default()

	// Add database to context middleware
	router.Use(func(c *gin.Context) {
		c.Set("db", db)
		c.Next()
	})

	// Add CORS middleware for the frontend
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", os.Getenv("FRONTEND_URL"))
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Correlation-Id")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.Use(apperrors.CorrelationMiddleware())

	server := &Server{
		DB:     db,
		Redis:  rdb,
		Router: router,
	}

	// Setup routes
	server.setupRoutes()

	return server, nil
}

func (s *Server) setupRoutes() {
	// Health check (no auth required)
	s.Router.GET("/health", func(c *gin.Context) {
		// Check database connection
		sqlDB, err := s.DB.DB()
		if err != nil {
			c.JSON(500, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}

		if err := sqlDB.Ping(); err != nil {
			c.JSON(500, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}

		c.JSON(200, gin.H{
			"status":   "healthy",
			"database": "connected",
		})
	})

	// Shared collaborators
	storageClient := storage.NewClient()
	signer := storage.NewSigner(storageClient, s.DB)
	providerClient := provider.NewClient()

	var enhance scenes.EnhanceFunc
	if processing.Enabled() {
		enhance = processing.EnhancePrompt
		log.Println("Prompt enhancement enabled")
	}

	submitter := &scenes.Submitter{DB: s.DB, Provider: providerClient, Signer: signer, Enhance: enhance}
	poller := &scenes.Poller{DB: s.DB, Provider: providerClient, Storage: storageClient}

	// Create handlers
	authHandler := auth.NewHandler(s.DB)
	projectHandler := projects.NewHandler(s.DB, s.Redis, storageClient)
	sceneHandler := scenes.NewHandler(s.DB, submitter, poller, signer)
	webhookHandler := webhooks.NewHandler(s.DB, poller)

	submitLimit, err := strconv.Atoi(platform.Env("SUBMIT_RATE_LIMIT", "10"))
	if err != nil || submitLimit <= 0 {
		submitLimit = 10
	}
	limiter := ratelimit.NewRedis(s.Redis, submitLimit, time.Minute)

	// Public routes
	// Root route - no auth needed
	s.Router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "Edit Stream Manager API v1"})
	})

	// Webhook routes (public - no auth, but signature verified in handler)
	webhookRoutes := s.Router.Group("/webhooks")
	{
		webhookRoutes.POST("/render", webhookHandler.HandleRenderWebhook)
	}

	// Auth routes (public - no auth middleware)
	authRoutes := s.Router.Group("/auth")
	{
		authRoutes.GET("/google", authHandler.InitiateGoogleLogin)
		authRoutes.GET("/google/callback", authHandler.GoogleCallback)
		authRoutes.POST("/logout", authHandler.Logout)

		// Protected auth routes - require auth middleware
		authRoutes.GET("/me", auth.AuthMiddleware(), authHandler.GetCurrentUser)
		authRoutes.POST("/token", auth.AuthMiddleware(), authHandler.CreateAPIToken)
	}

	// Protected routes that require authentication
	protected := s.Router.Group("")
	protected.Use(auth.AuthMiddleware())
	{
		// Project endpoints
		projectRoutes := protected.Group("/projects")
		{
			projectRoutes.POST("", projectHandler.CreateProject)
			projectRoutes.GET("", projectHandler.ListProjects)
			projectRoutes.DELETE("/:id", projectHandler.DeleteProject)
		}

		// Scene endpoints; submission paths are rate limited
		sceneRoutes := protected.Group("/scenes")
		{
			sceneRoutes.POST("", ratelimit.Middleware(limiter), sceneHandler.CreateScene)
			sceneRoutes.GET("", sceneHandler.ListScenes)
			sceneRoutes.GET("/:id", sceneHandler.GetScene)
			sceneRoutes.POST("/:id/regenerate", ratelimit.Middleware(limiter), sceneHandler.Regenerate)
			sceneRoutes.POST("/:id/refresh-urls", sceneHandler.RefreshURLs)
			sceneRoutes.DELETE("/:id", sceneHandler.DeleteScene)
		}

		protected.GET("/generations/:id/poll", sceneHandler.PollGeneration)
		protected.GET("/shot-types", sceneHandler.ListShotTypes)
	}
}

func (s *Server) Run() error {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	return s.Router.Run(":" + port)
}

func main() {
	server, err := NewServer()
	if err != nil {
		log.Fatal("Failed to create server:", err)
	}

	if err := server.Run(); err != nil {
		log.Fatal("Failed to run server:", err)
	}
}
