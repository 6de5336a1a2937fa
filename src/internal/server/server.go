package server

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	apiMiddleware "github.com/casapps/caslinks/src/internal/api/middleware"
	"github.com/casapps/caslinks/src/internal/auth"
	"github.com/casapps/caslinks/src/internal/cache"
	"github.com/casapps/caslinks/src/internal/domains"
	"github.com/casapps/caslinks/src/internal/email"
	apperrors "github.com/casapps/caslinks/src/internal/errors"
	"github.com/casapps/caslinks/src/internal/profiles"
	"github.com/casapps/caslinks/src/internal/routing"
)

// Server wires the HTTP surface together with the domain services.
type Server struct {
	echo           *echo.Echo
	config         *viper.Viper
	db             *gorm.DB
	cache          *cache.CacheManager
	authService    *auth.AuthService
	domainService  *domains.Service
	profileService *profiles.Service
	scheduler      *domains.Scheduler
	routingMW      *routing.Middleware
	policy         *routing.Policy
}

// New builds a fully wired server on the given Echo instance.
func New(e *echo.Echo, cfg *viper.Viper, db *gorm.DB) *Server {
	cacheManager := cache.NewCacheManager(cfg)
	emailService := email.NewService(db, cfg)
	authService := auth.NewAuthService(cfg)

	verifier := domains.NewVerifier(cfg)
	domainService := domains.NewService(db, cfg, verifier, emailService)
	profileService := profiles.NewService(db, cfg)
	scheduler := domains.NewScheduler(domainService, cfg)

	classifier := routing.NewClassifier(cfg, domainService, cacheManager)
	policy := routing.NewPolicy(cfg)
	routingMW := routing.NewMiddleware(classifier, policy, db)

	s := &Server{
		echo:           e,
		config:         cfg,
		db:             db,
		cache:          cacheManager,
		authService:    authService,
		domainService:  domainService,
		profileService: profileService,
		scheduler:      scheduler,
		routingMW:      routingMW,
		policy:         policy,
	}

	e.Validator = NewEchoValidator()
	e.HTTPErrorHandler = apperrors.NewHandler(cfg).HandleError

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Start runs the HTTP listener and the verification scheduler until the
// context is cancelled.
func (s *Server) Start(ctx context.Context, address string) error {
	go s.scheduler.Start(ctx)
	return s.echo.Start(address)
}

// Shutdown drains in-flight requests and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return err
	}
	return s.cache.Close()
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "  ${time_rfc3339} | ${status} | ${latency_human} | ${method} ${host}${uri}\n",
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())

	s.echo.Use(apiMiddleware.CORS(s.config))
	s.echo.Use(apiMiddleware.Security(s.config))

	// Host classification runs before routing so every handler can rely
	// on knowing which surface it is serving.
	s.echo.Use(s.routingMW.ClassifyHost())
}
