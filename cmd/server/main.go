package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/u-wave/u-wave-core-sub000/internal/acl"
	"github.com/u-wave/u-wave-core-sub000/internal/auth"
	"github.com/u-wave/u-wave-core-sub000/internal/booth"
	"github.com/u-wave/u-wave-core-sub000/internal/config"
	"github.com/u-wave/u-wave-core-sub000/internal/playlist"
	"github.com/u-wave/u-wave-core-sub000/internal/room"
	"github.com/u-wave/u-wave-core-sub000/internal/waitlist"
	"github.com/u-wave/u-wave-core-sub000/internal/ws"
	"github.com/u-wave/u-wave-core-sub000/pkg/database"
	"github.com/u-wave/u-wave-core-sub000/pkg/events"
	"github.com/u-wave/u-wave-core-sub000/pkg/jwt"
	"github.com/u-wave/u-wave-core-sub000/pkg/lock"
	"github.com/u-wave/u-wave-core-sub000/pkg/redis"
)

const sessionTTL = 7 * 24 * time.Hour

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg := config.Load(logger)

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if cfg.JWTSecret == "" {
		if cfg.Production() {
			logger.Fatal().Msg("JWT_SECRET must be set in production")
		}
		cfg.JWTSecret = uuid.NewString()
		logger.Warn().Msg("JWT_SECRET not set, sessions will not survive a restart")
	}

	db, err := database.Open(database.Options{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
	}

	var bus events.Bus
	switch cfg.EventsTransport {
	case "kafka":
		bus = events.NewKafkaBus(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger)
	default:
		bus = events.NewRedisBus(redisClient, events.DefaultChannel, logger)
	}
	defer bus.Close()

	// Initialize services
	state := redis.NewRoomState(redisClient)
	sessions := redis.NewSessionStore(redisClient)
	settings := config.NewStore(db)
	permissions := acl.New(acl.DefaultRoles())
	playlists := playlist.NewService(db, logger)
	signer := jwt.NewSigner(cfg.JWTSecret, sessionTTL)

	boothService := booth.New(booth.Deps{
		State:     state,
		Locker:    lock.NewLocker(redisClient),
		Playlists: playlists,
		History:   db,
		Users:     db,
		ACL:       permissions,
		Settings:  settings,
		Publisher: bus,
	}, logger)

	waitlistService := waitlist.NewService(waitlist.Deps{
		State:     state,
		Booth:     boothService,
		Playlists: playlists,
		Users:     db,
		ACL:       permissions,
		Settings:  settings,
		Publisher: bus,
	}, logger)

	roomService := room.NewService(room.Deps{
		Booth:    boothService,
		Waitlist: waitlistService,
		Settings: settings,
		History:  db,
		Cache:    redisClient,
	}, logger)

	hub := ws.NewHub(boothService, cfg.CORSOrigins, logger)

	go func() {
		err := bus.Subscribe(ctx, func(d events.Delivery) error {
			roomService.OnEvent(d)
			return hub.Relay(d)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("event subscription ended")
		}
	}()

	if err := boothService.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to resume booth")
	}

	// Initialize handlers
	authHandler := auth.NewHandler(db, sessions, signer, cfg.Production(), logger)
	boothHandler := booth.NewHandler(boothService)
	waitlistHandler := waitlist.NewHandler(waitlistService)
	playlistHandler := playlist.NewHandler(playlists)
	roomHandler := room.NewHandler(roomService)

	// Initialize Gin router
	router := gin.Default()

	// CORS middleware
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	v1 := router.Group("/api/v1")

	// Public routes
	authHandler.RegisterRoutes(v1)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(auth.AuthMiddleware(signer, sessions))
	{
		roomHandler.RegisterRoutes(protected)
		boothHandler.RegisterRoutes(protected)
		waitlistHandler.RegisterRoutes(protected)
		playlistHandler.RegisterRoutes(protected)

		// WebSocket endpoint
		protected.GET("/ws", hub.HandleWebSocket)
	}

	// Serve frontend static files and SPA fallback
	router.NoRoute(func(c *gin.Context) {
		// Prevent directory traversal
		cleanPath := filepath.Clean(c.Request.URL.Path)
		filePath := filepath.Join("frontend/dist", cleanPath)
		if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
			c.File(filePath)
		} else {
			// Fallback to index.html for client-side routing
			c.File("frontend/dist/index.html")
		}
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("events", cfg.EventsTransport).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	boothService.Stop()
	hub.Close()
}
