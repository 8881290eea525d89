package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/auth"
	"github.com/frahmantamala/expense-approval/internal/budget"
	"github.com/frahmantamala/expense-approval/internal/category"
	categoryPostgres "github.com/frahmantamala/expense-approval/internal/category/postgres"
	"github.com/frahmantamala/expense-approval/internal/core/events"
	"github.com/frahmantamala/expense-approval/internal/dashboard"
	dashboardPostgres "github.com/frahmantamala/expense-approval/internal/dashboard/postgres"
	"github.com/frahmantamala/expense-approval/internal/expense"
	expensePostgres "github.com/frahmantamala/expense-approval/internal/expense/postgres"
	"github.com/frahmantamala/expense-approval/internal/notification"
	"github.com/frahmantamala/expense-approval/internal/payment"
	paymentPostgres "github.com/frahmantamala/expense-approval/internal/payment/postgres"
	"github.com/frahmantamala/expense-approval/internal/policy"
	"github.com/frahmantamala/expense-approval/internal/ratelimit"
	ratelimitPostgres "github.com/frahmantamala/expense-approval/internal/ratelimit/postgres"
	"github.com/frahmantamala/expense-approval/internal/site"
	sitePostgres "github.com/frahmantamala/expense-approval/internal/site/postgres"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/frahmantamala/expense-approval/internal/transport/middleware"
	"github.com/frahmantamala/expense-approval/internal/transport/rest"
	"github.com/frahmantamala/expense-approval/internal/user"
	userPostgres "github.com/frahmantamala/expense-approval/internal/user/postgres"
	"github.com/frahmantamala/expense-approval/internal/workflow"
	workflowPostgres "github.com/frahmantamala/expense-approval/internal/workflow/postgres"
	"github.com/frahmantamala/expense-approval/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

// Dependencies is the wired application graph shared by the server and the
// maintenance commands.
type Dependencies struct {
	Config *internal.Config
	Logger *slog.Logger
	DB     *sqlx.DB
	Gorm   *gorm.DB

	Bus      *events.EventBus
	Pool     *notification.Pool
	Limiter  *ratelimit.Limiter
	Tokens   *auth.JWTTokenGenerator
	Users    *user.Service
	Sites    *site.Service
	Category *category.Service
	Expenses *expense.Service
	Engine   *workflow.Engine
	Payments *payment.Service
	Reports  *dashboard.Service
	AuthSvc  *auth.Service
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	log := deps.Logger

	router := chi.NewRouter()
	if err := setupRoutes(deps, router); err != nil {
		log.Error("failed to set up routes", "error", err)
		deps.Close()
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	log.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           withRequestTimeout(router, deps.Config.Server.RequestTimeout),
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			deps.Close()
			os.Exit(1)
		}
	}

	deps.Close()
	log.Info("Server stopped")
}

func setupRoutes(deps *Dependencies, router *chi.Mux) error {
	cfg := deps.Config
	base := transport.NewBaseHandler(deps.Logger)
	actorOf := user.ActorResolver(auth.ActorFromContext)

	opts := rest.Options{
		AllowedOrigins: splitOrigins(cfg.Server.AllowedOrigins),
		OpenAPIPath:    cfg.Server.OpenAPIPath,
		RateLimiter:    deps.Limiter,
	}
	if cfg.Server.ValidateRequests {
		doc, err := middleware.LoadOpenAPI(context.Background(), cfg.Server.OpenAPIPath)
		if err != nil {
			return err
		}
		validate, err := middleware.RequestValidator(base, doc, rest.APIBasePath, deps.Logger)
		if err != nil {
			return err
		}
		opts.RequestValidator = validate
	}

	rest.RegisterAllRoutes(router, base, rest.Handlers{
		Health:    rest.NewHealthHandler(deps.DB, deps.Pool.Queued),
		Auth:      auth.NewHandler(base, deps.AuthSvc),
		User:      user.NewHandler(base, deps.Users, actorOf),
		Site:      site.NewHandler(base, deps.Sites, actorOf),
		Category:  category.NewHandler(base, deps.Category),
		Expense:   expense.NewHandler(base, deps.Expenses, actorOf),
		Workflow:  workflow.NewHandler(base, deps.Engine, actorOf),
		Payment:   payment.NewHandler(base, deps.Payments, actorOf),
		Dashboard: dashboard.NewHandler(base, deps.Reports, actorOf),
	}, opts)
	return nil
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	deps := &Dependencies{
		Config: config,
		Logger: log,
		DB:     db,
		Gorm:   gdb,
		Bus:    events.NewEventBus(log),
		Tokens: auth.NewJWTTokenGenerator(
			config.Security.JWTAccessSecret,
			config.Security.JWTRefreshSecret,
			config.Security.AccessTokenDuration,
			config.Security.RefreshTokenDuration,
		),
	}

	channels := []notification.Channel{notification.NewLogChannel(log)}
	if config.Notification.WebhookURL != "" {
		channels = append(channels, notification.NewWebhookChannel(config.Notification.WebhookURL, config.Notification.WebhookTimeout))
	}
	deps.Pool = notification.NewPool(notification.PoolConfig{
		Workers:        config.Notification.Workers,
		QueueSize:      config.Notification.QueueSize,
		MaxRetries:     config.Notification.MaxRetries,
		InitialBackoff: config.Notification.InitialBackoff,
	}, channels, log)

	userRepo := userPostgres.NewRepository(gdb)
	deps.Sites = site.NewService(sitePostgres.NewRepository(gdb), config.Workflow.DefaultDuplicateWindowDays, log)
	deps.Users = user.NewService(userRepo, deps.Sites, config.Security.BCryptCost, log)
	deps.AuthSvc = auth.NewService(userRepo, deps.Tokens, log)
	deps.Category = category.NewService(categoryPostgres.NewCategoryRepository(gdb), log)
	deps.Expenses = expense.NewService(expensePostgres.NewExpenseRepository(gdb), deps.Sites, deps.Category, log)
	deps.Engine = workflow.NewEngine(
		workflowPostgres.NewStore(gdb),
		policy.NewEvaluator(log),
		budget.NewLedger(log),
		deps.Bus,
		workflow.Config{LevelOnAmountChange: config.Workflow.LevelOnAmountChange},
		log,
	)
	deps.Payments = payment.NewService(paymentPostgres.NewPaymentRepository(gdb), deps.Expenses, log)
	deps.Reports = dashboard.NewService(dashboardPostgres.NewRepository(db), log)

	if config.RateLimit.Enabled {
		deps.Limiter = ratelimit.NewLimiter(ratelimitPostgres.NewRepository(gdb), config.RateLimit.Requests, config.RateLimit.Window, log)
	}

	notification.NewDispatcher(deps.Users, notification.NewRenderer(language.English), deps.Pool, log).Register(deps.Bus)

	return deps, nil
}

// Close drains in-flight event handlers and queued notifications before
// releasing the database.
func (d *Dependencies) Close() {
	d.Bus.Wait()

	drainTimeout := d.Config.Notification.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := d.Pool.Shutdown(ctx); err != nil {
		d.Logger.Error("Notification drain incomplete", "error", err)
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx pool with gorm so both layers see one set of
// connections.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Warn),
	})
}

func withRequestTimeout(next http.Handler, timeout time.Duration) http.Handler {
	if timeout <= 0 {
		return next
	}
	return http.TimeoutHandler(next, timeout, `{"error":{"code":"REQUEST_TIMEOUT","message":"request timed out"}}`)
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
