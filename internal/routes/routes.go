package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/middleware"
	"github.com/congo-pay/walletledger/internal/money"
	"github.com/congo-pay/walletledger/internal/notification"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Notifier notification.Notifier
	Logger   *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	// Services and handlers
	var (
		book         ledger.Book
		identityRepo identity.Repository
	)
	if d.DB != nil {
		book = ledger.NewPostgresBook(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		book = ledger.NewInMemory()
		identityRepo = identity.NewMemoryRepository()
	}

	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	engine := ledger.NewEngine(book,
		ledger.WithLockTimeout(d.Cfg.LockTimeout),
		ledger.WithLogger(d.Logger),
	)
	walletSvc := wallet.NewService(engine, notifier, d.Logger, wallet.Limits{
		HistoryDefault: d.Cfg.HistoryDefaultLimit,
		HistoryMax:     d.Cfg.HistoryMaxLimit,
	})
	identitySvc := identity.NewService(identityRepo)
	walletHandler := wallet.NewHandler(walletSvc, identitySvc)

	if d.Cfg.SeedDemoAccounts {
		if err := SeedDemoAccounts(context.Background(), walletSvc, identitySvc, d.Logger); err != nil {
			return err
		}
	}

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(middleware.RequestIDHeader).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	idempotent := func(c *fiber.Ctx) error { return c.Next() }
	if d.Cache != nil {
		idempotent = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}

	// Public routes
	api.Post("/accounts", idempotent, walletHandler.Register)

	// Protected routes
	protected := api.Group("/wallet",
		middleware.CredentialRateLimit(d.Cache, 5),
		middleware.Authenticate(identitySvc, d.Logger),
		idempotent,
	)
	RegisterWalletRoutes(protected, walletHandler)

	return nil
}

// DemoSecret is the secret enrolled for seeded demo accounts.
const DemoSecret = "password123"

// SeedDemoAccounts provisions the demo accounts. It is safe to run on every
// start: existing accounts are completed, never credited twice.
func SeedDemoAccounts(ctx context.Context, wallets *wallet.Service, ids *identity.Service, logger *slog.Logger) error {
	demo := []struct {
		address, name, opening string
	}{
		{"alice@example.com", "Alice", "1000.00"},
		{"bob@example.com", "Bob", "500.00"},
	}
	for _, a := range demo {
		opening, err := money.Parse(a.opening)
		if err != nil {
			return err
		}
		acct, err := wallets.Provision(ctx, a.address, a.name, opening)
		if wallet.CodeOf(err) == wallet.CodeAddressTaken {
			// A previous start may have stopped between registration and
			// the opening credit or enrolment; finish whatever is missing.
			acct, err = wallets.CompleteProvision(ctx, a.address, opening)
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", a.address, err)
		}
		if err := ids.Enroll(ctx, acct.ID, acct.Address, DemoSecret); err != nil && !errors.Is(err, identity.ErrAlreadyEnrolled) {
			return fmt.Errorf("enroll %s: %w", a.address, err)
		}
		logger.Info("demo account seeded", slog.String("account_id", acct.ID), slog.String("address", acct.Address))
	}
	return nil
}
