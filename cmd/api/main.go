package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/auth-api/internal/config"
	"github.com/yourusername/auth-api/internal/handler"
	"github.com/yourusername/auth-api/internal/middleware"
	pgRepo "github.com/yourusername/auth-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/auth-api/internal/repository/redis"
	"github.com/yourusername/auth-api/internal/service"
	"github.com/yourusername/auth-api/pkg/auth"
	"github.com/yourusername/auth-api/pkg/database"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	userRepo := pgRepo.NewUserRepo(db)
	codeRunner := pgRepo.NewAuthCodeTxRunner(db, cfg.Auth.LockTimeout())

	sessionRepo, err := redisRepo.NewSessionRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize SessionRepo: %v", err)
		os.Exit(1)
	}

	jwtService, err := auth.NewJWTService(cfg.JWT.Secret)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	var emailService service.EmailService
	if cfg.Email.ResendAPIKey != "" {
		emailService, err = service.NewResendEmailService(cfg.Email.ResendAPIKey, cfg.Email.From)
		if err != nil {
			log.Printf("Failed to initialize email service: %v", err)
			os.Exit(1)
		}
	} else {
		log.Println("No Resend API key configured, using noop email sender")
		emailService = &service.NoopEmailService{}
	}

	otpService, err := service.NewOtpService(codeRunner)
	if err != nil {
		log.Printf("Failed to initialize OtpService: %v", err)
		os.Exit(1)
	}

	authService, err := service.NewAuthService(userRepo, otpService, emailService, jwtService, sessionRepo)
	if err != nil {
		log.Printf("Failed to initialize AuthService: %v", err)
		os.Exit(1)
	}

	isProduction := gin.Mode() == gin.ReleaseMode
	authHandler := handler.NewAuthHandler(authService, isProduction)
	authMiddleware := middleware.NewAuthMiddleware(jwtService)

	router := gin.Default()

	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/pre-login", authHandler.PreLogin)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authHandler.Logout)
		}

		users := api.Group("/users")
		users.Use(authMiddleware.RequireAuth())
		{
			users.GET("/me", authHandler.Me)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}

	log.Println("Server exited properly")
}
