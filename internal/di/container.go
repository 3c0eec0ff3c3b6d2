package di

import (
	"github.com/marinapark/booking-backend/internal/captcha"
	"github.com/marinapark/booking-backend/internal/clock"
	"github.com/marinapark/booking-backend/internal/config"
	"github.com/marinapark/booking-backend/internal/database"
	"github.com/marinapark/booking-backend/internal/handler"
	"github.com/marinapark/booking-backend/internal/provider"
	"github.com/marinapark/booking-backend/internal/ratelimit"
	"github.com/marinapark/booking-backend/internal/redisx"
	"github.com/marinapark/booking-backend/internal/repository"
	"github.com/marinapark/booking-backend/internal/service"
)

// Container holds all dependencies for the booking backend
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redisx.Client
	Clock clock.Clock

	// Repositories
	UnitRepo  repository.UnitRepository
	HoldRepo  repository.HoldRepository
	OrderRepo repository.OrderRepository

	// Outbound clients
	Provider provider.Client
	Captcha  captcha.Verifier
	Limiter  ratelimit.Limiter

	// Publishers
	EventPublisher service.EventPublisher

	// Services
	BookingService   service.BookingService
	ReconcileService service.ReconcileService

	// Handlers
	HealthHandler  *handler.HealthHandler
	BookingHandler *handler.BookingHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Config         *config.Config
	DB             *database.PostgresDB
	Redis          *redisx.Client
	Clock          clock.Clock
	EventPublisher service.EventPublisher
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:             cfg.DB,
		Redis:          cfg.Redis,
		Clock:          cfg.Clock,
		EventPublisher: cfg.EventPublisher,
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.EventPublisher == nil {
		c.EventPublisher = service.NoOpEventPublisher{}
	}

	// Initialize repositories
	c.UnitRepo = repository.NewPostgresUnitRepository(c.DB.Pool())
	c.HoldRepo = repository.NewPostgresHoldRepository(c.DB.Pool())
	c.OrderRepo = repository.NewPostgresOrderRepository(c.DB.Pool())

	// Initialize outbound clients
	c.Provider = provider.NewHTTPClient(provider.Config{
		BaseURL:    cfg.Config.Provider.BaseURL,
		HMACSecret: cfg.Config.Provider.HMACSecret,
		Timeout:    cfg.Config.Provider.Timeout,
	}, c.Clock)

	if cfg.Config.Captcha.Enabled {
		c.Captcha = captcha.NewHTTPVerifier(captcha.Config{
			VerifyURL: cfg.Config.Captcha.VerifyURL,
			Secret:    cfg.Config.Captcha.Secret,
			MinScore:  cfg.Config.Captcha.MinScore,
		})
	} else {
		c.Captcha = captcha.NoopVerifier{}
	}

	c.Limiter = ratelimit.NewRedisLimiter(c.Redis, "bk:rl", c.Clock)

	// Initialize services
	c.BookingService = service.NewBookingService(
		c.UnitRepo,
		c.HoldRepo,
		c.OrderRepo,
		c.Provider,
		c.Limiter,
		c.Captcha,
		c.EventPublisher,
		c.Clock,
		cfg.Config,
	)
	c.ReconcileService = service.NewReconcileService(
		c.OrderRepo,
		c.EventPublisher,
		c.Clock,
		cfg.Config.Reconcile.RetryBudget,
	)

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(c.DB, c.Redis)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService)

	return c
}
