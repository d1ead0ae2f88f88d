// Package server contains the HTTP and WebSocket handlers behind the browser routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"nexora/internal/cache"
	"nexora/internal/config"
	"nexora/internal/database"
	"nexora/internal/middleware"
	"nexora/internal/observability"
	"nexora/internal/query"
	"nexora/internal/remote"
	"nexora/internal/repository"
	"nexora/internal/service"
	"nexora/internal/session"
)

// Deps are the already-initialized dependencies a Server is built from.
type Deps struct {
	Remote *remote.Client
	// Redis is optional; without it the query cache and sessions stay in memory.
	Redis *redis.Client
	// DB selects the direct database backend when set.
	DB *gorm.DB
	// Auth and Store default to Remote.Auth() and a store matching Redis.
	Auth  session.Authenticator
	Store session.Store
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	remote         *remote.Client
	redis          *redis.Client
	db             *gorm.DB
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	limiter        *middleware.RateLimiter
	logger         *slog.Logger
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	queries  *query.Client
	store    session.Store
	sessions *session.Registry

	postService      *service.PostService
	communityService *service.CommunityService
	commentService   *service.CommentService
	likeService      *service.LikeService
}

// NewServer connects to the remote service, Redis and, for a direct data
// backend, the database, then builds the server.
func NewServer(cfg *config.Config) (*Server, error) {
	client, err := remote.NewClient(remote.Options{
		BaseURL: cfg.SupabaseURL,
		APIKey:  cfg.SupabaseAnonKey,
		Timeout: cfg.RemoteTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("remote client: %w", err)
	}

	deps := Deps{Remote: client, Redis: cache.Connect(cfg.RedisURL)}

	if cfg.DataBackend != config.BackendREST {
		db, err := database.Connect(cfg)
		if err != nil {
			if deps.Redis != nil {
				_ = deps.Redis.Close()
			}
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		deps.DB = db
	}

	return NewServerWithDeps(cfg, deps)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
func NewServerWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Remote == nil {
		return nil, errors.New("server: remote client is required")
	}

	repos := repository.NewRESTSet(deps.Remote)
	if deps.DB != nil {
		repos = repository.NewGormSet(deps.DB)
	}

	auth := deps.Auth
	if auth == nil {
		auth = deps.Remote.Auth()
	}
	store := deps.Store
	if store == nil {
		if deps.Redis != nil {
			store = session.NewRedisStore(deps.Redis)
		} else {
			store = session.NewMemoryStore()
		}
	}

	queries := query.New(
		query.WithStaleTime(cfg.QueryStaleTime()),
		query.WithRedis(deps.Redis, cfg.QueryCacheTTL()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:         cfg,
		remote:         deps.Remote,
		redis:          deps.Redis,
		db:             deps.DB,
		promMiddleware: middleware.InitMetrics("nexora"),
		limiter:        middleware.NewRateLimiter(deps.Redis, cfg.Env),
		logger:         observability.Component("server"),
		shutdownCtx:    ctx,
		shutdownFn:     cancel,
		queries:        queries,
		store:          store,
		sessions: session.NewRegistry(session.Deps{
			Store:       store,
			Auth:        auth,
			Verifier:    session.NewTokenVerifier(cfg.SupabaseJWTSecret),
			Provider:    cfg.OAuthProvider,
			RedirectURL: cfg.OAuthRedirectURL(),
		}, cfg.SessionIdleTimeout()),
	}

	s.postService = service.NewPostService(repos.Posts, deps.Remote.Storage(cfg.StorageBucket), queries,
		service.NewImageValidator(cfg.UploadMaxSizeMB))
	s.communityService = service.NewCommunityService(repos.Communities, queries)
	s.commentService = service.NewCommentService(repos.Comments, queries)
	s.likeService = service.NewLikeService(repos.Likes, queries)

	go s.sessions.Run(ctx)

	return s, nil
}

// NewApp creates the Fiber app with the server's error handling and limits.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Nexora",
		BodyLimit:    (s.config.UploadMaxSizeMB + 1) << 20,
		ErrorHandler: s.errorHandler,
	})
	s.app = app
	return app
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	s.logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || s.config.Env == "test"
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := fiber.Map{"data_backend": s.config.DataBackend}
	healthy := true

	if s.db != nil {
		dbStatus := "healthy"
		if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "unhealthy"
			healthy = false
		}
		checks["database"] = dbStatus
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
			healthy = false
		}
	}
	checks["redis"] = redisStatus
	checks["sessions"] = s.sessions.Len()

	status, overall := fiber.StatusOK, "healthy"
	if !healthy {
		status, overall = fiber.StatusServiceUnavailable, "unhealthy"
	}
	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": checks,
		"time":   time.Now(),
	})
}

// Shutdown releases everything the server owns. The Fiber app is shut down
// first so no request observes a closed session registry.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			s.logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.shutdownFn != nil {
		s.shutdownFn()
	}
	s.sessions.Close()
	if closer, ok := s.store.(interface{ Close() }); ok {
		closer.Close()
	}
	s.queries.Wait()

	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("error closing database", slog.String("error", err.Error()))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("error closing redis", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}
