package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/princekumarofficial/gallery-service/docs"
	"github.com/princekumarofficial/gallery-service/internal/cache"
	"github.com/princekumarofficial/gallery-service/internal/config"
	"github.com/princekumarofficial/gallery-service/internal/events"
	"github.com/princekumarofficial/gallery-service/internal/http/handlers/images"
	wsHandler "github.com/princekumarofficial/gallery-service/internal/http/handlers/websocket"
	"github.com/princekumarofficial/gallery-service/internal/http/middleware"
	"github.com/princekumarofficial/gallery-service/internal/idgen"
	"github.com/princekumarofficial/gallery-service/internal/ingest"
	"github.com/princekumarofficial/gallery-service/internal/logger"
	"github.com/princekumarofficial/gallery-service/internal/ratelimit"
	"github.com/princekumarofficial/gallery-service/internal/services/media"
	"github.com/princekumarofficial/gallery-service/internal/storage"
	"github.com/princekumarofficial/gallery-service/internal/storage/memory"
	"github.com/princekumarofficial/gallery-service/internal/storage/postgres"
	"github.com/princekumarofficial/gallery-service/internal/transcode"
	"github.com/princekumarofficial/gallery-service/internal/utils/response"
	"github.com/princekumarofficial/gallery-service/internal/websocket"
)

// @title Gallery Service API
// @version 1.0
// @description Image ingestion for the gallery: upload, deduplication and renditions.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT token.
func main() {
	// load config
	cfg := config.MustLoad()
	logger.Setup(cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// record store
	var records storage.Storage
	switch cfg.Storage.Records {
	case "memory":
		records = memory.New()
		slog.Warn("Using in-memory record store, records are lost on restart")
	default:
		pg, err := postgres.NewPostgres(cfg)
		if err != nil {
			log.Fatal("Failed to initialize database:", err)
		}
		defer pg.Close()
		records = pg
	}

	// object store
	var objects media.ObjectStore
	switch cfg.Storage.Objects {
	case "s3":
		store, err := media.NewMinioStore(ctx, cfg)
		if err != nil {
			log.Fatal("Failed to initialize object storage:", err)
		}
		objects = store
	default:
		store, err := media.NewFSStore(cfg.Storage.FSRoot)
		if err != nil {
			log.Fatal("Failed to initialize object storage:", err)
		}
		objects = store
	}

	// rate limit windows and dedup cache live in Redis when it is configured
	var (
		windows     ratelimit.WindowStore
		index       ingest.Index
		redisClient *redis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("Failed to connect to Redis:", err)
		}
		slog.Info("Connected to Redis", slog.String("addr", cfg.Redis.Addr))

		windows = ratelimit.NewRedisStore(redisClient)
		index = cache.NewDedupCache(records, redisClient, cfg.Redis.CacheTTL)
	} else {
		memStore := ratelimit.NewMemoryStore()
		go pruneWindows(ctx, memStore, cfg.RateLimit.Window)

		windows = memStore
		index = ingest.NewStoreIndex(records)
	}

	limiter := ratelimit.NewLimiter(windows, "images", cfg.RateLimit.Max, cfg.RateLimit.Window)

	ids, err := idgen.New(cfg.IDSalt)
	if err != nil {
		log.Fatal("Failed to initialize id generator:", err)
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	svc := ingest.NewService(ingest.Deps{
		Rules:         ingest.RulesFromConfig(cfg.Media),
		PublicBaseURL: cfg.Media.PublicBaseURL,
		Limiter:       limiter,
		Index:         index,
		Transcoder: transcode.NewTranscoder(transcode.Options{
			MainBox:          transcode.Box{Width: cfg.Media.ImageMaxWidth, Height: cfg.Media.ImageMaxHeight},
			ImageQuality:     cfg.Media.ImageQuality,
			ThumbnailQuality: cfg.Media.ThumbnailQuality,
		}),
		Objects:   objects,
		Images:    records,
		IDs:       ids,
		Publisher: events.NewEventPublisher(hub),
	})

	imageHandlers := images.NewImageHandlers(svc, cfg.Media.MaxUploadBytes)

	trustedProxies, err := middleware.ParseTrustedProxies(cfg.HTTPServer.TrustedProxies)
	if err != nil {
		log.Fatal("Failed to parse trusted proxies:", err)
	}

	// setup router
	router := http.NewServeMux()

	router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, http.StatusOK, response.RequestOK("ok", nil))
	})
	router.Handle("POST /images", middleware.RateLimitMiddleware(limiter, middleware.ClientIP(trustedProxies))(
		middleware.AuthMiddleware(cfg.JWTSecret)(imageHandlers.Upload())))
	router.HandleFunc("GET /ws", wsHandler.WebSocketHandler(hub, cfg.JWTSecret))
	router.Handle("GET /swagger/", httpSwagger.WrapHandler)
	if redisClient != nil {
		router.Handle("GET /cache/stats", middleware.AuthMiddleware(cfg.JWTSecret)(cache.GetCacheStats(redisClient)))
	}

	server := http.Server{
		Addr:              cfg.HTTPServer.Address,
		Handler:           middleware.RequestID(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("server started", slog.String("address", cfg.HTTPServer.Address))

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %s", err)
		}
	}()

	<-done

	slog.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	err = server.Shutdown(shutdownCtx)
	cancel()
	if err != nil {
		slog.Error("failed to gracefully shutdown server", slog.String("error", err.Error()))
		return
	}

	slog.Info("Server stopped")
}

// pruneWindows drops expired in-process rate limit windows
func pruneWindows(ctx context.Context, store *ratelimit.MemoryStore, window time.Duration) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Prune(); n > 0 {
				slog.Debug("Pruned rate limit windows", slog.Int("count", n))
			}
		}
	}
}
