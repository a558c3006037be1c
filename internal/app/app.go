package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alexedwards/scs/goredisstore"
	"github.com/alexedwards/scs/v2"
	"github.com/exaring/otelpgx"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/metinatakli/hostel-booking/api"
	"github.com/metinatakli/hostel-booking/internal/cache"
	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/metinatakli/hostel-booking/internal/lock"
	"github.com/metinatakli/hostel-booking/internal/mailer"
	"github.com/metinatakli/hostel-booking/internal/payment"
	"github.com/metinatakli/hostel-booking/internal/repository"
	"github.com/metinatakli/hostel-booking/internal/settlement"
	appvalidator "github.com/metinatakli/hostel-booking/internal/validator"
	"github.com/metinatakli/hostel-booking/internal/vcs"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const serviceName = "hostel-booking-payments"

var (
	version = vcs.Version()
)

type Application struct {
	config         Config
	logger         *slog.Logger
	db             *pgxpool.Pool
	redis          redis.UniversalClient
	validator      *validator.Validate
	mailer         mailer.Mailer
	sessionManager *scs.SessionManager
	swagger        *openapi3.T

	userRepo    domain.UserRepository
	bookingRepo domain.BookingRepository
	paymentRepo domain.PaymentRepository

	payments   paymentService
	reconciler *settlement.Reconciler
}

type Config struct {
	Port             int
	Env              string
	OtelCollectorUrl string

	DB           DBConfig
	Redis        RedisConfig
	SMTP         SMTPConfig
	Stripe       StripeConfig
	MobileMoney  MobileMoneyConfig
	BankTransfer BankTransferConfig
	Settlement   SettlementConfig
	Reconciler   ReconcilerConfig
}

type DBConfig struct {
	Dsn          string
	MaxOpenConns int
	MaxIdleTime  time.Duration
}

type RedisConfig struct {
	Url          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
}

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Sender     string
	ReceiptUrl string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessUrl    string
	FailureUrl    string
}

type MobileMoneyConfig struct {
	BaseUrl     string
	ApiKey      string
	CallbackUrl string
	Timeout     time.Duration
}

type BankTransferConfig struct {
	Enabled     bool
	SettleAfter time.Duration
}

type SettlementConfig struct {
	MaxAttempts     int
	Delay           time.Duration
	AttemptTimeout  time.Duration
	Tolerance       string
	DefaultCurrency string
	CountryCode     string
	LockSlack       time.Duration
	AvailabilityTTL time.Duration
}

type ReconcilerConfig struct {
	Enabled  bool
	Schedule string
	MinAge   time.Duration
	Limit    int
}

// settlementConfig converts the flag values into the settlement component's configuration.
func (c SettlementConfig) settlementConfig() (settlement.Config, error) {
	tolerance, err := decimal.NewFromString(c.Tolerance)
	if err != nil {
		return settlement.Config{}, fmt.Errorf("invalid settlement tolerance %q: %w", c.Tolerance, err)
	}

	if tolerance.IsNegative() {
		return settlement.Config{}, fmt.Errorf("settlement tolerance must not be negative")
	}

	if c.MaxAttempts < 1 {
		return settlement.Config{}, fmt.Errorf("settlement max attempts must be at least 1")
	}

	if c.AttemptTimeout <= 0 {
		return settlement.Config{}, fmt.Errorf("settlement attempt timeout must be positive")
	}

	return settlement.Config{
		Retry: settlement.RetryPolicy{
			MaxAttempts:    c.MaxAttempts,
			Delay:          c.Delay,
			AttemptTimeout: c.AttemptTimeout,
		},
		Tolerance:       tolerance,
		DefaultCurrency: c.DefaultCurrency,
		CountryCode:     c.CountryCode,
		LockSlack:       c.LockSlack,
		AvailabilityTTL: c.AvailabilityTTL,
	}, nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}

	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}

	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}

	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}

	return fallback
}

// parseConfig reads flags whose defaults come from the environment.
func parseConfig(fs *flag.FlagSet, args []string) (Config, bool, error) {
	var cfg Config

	retry := settlement.DefaultRetryPolicy()
	defaults := settlement.DefaultConfig()
	reconciler := settlement.DefaultReconcilerConfig()

	fs.IntVar(&cfg.Port, "port", envInt("PORT", 3000), "server port")
	fs.StringVar(&cfg.Env, "env", envString("ENV", "dev"), "Environment (dev|staging|prod)")
	fs.StringVar(&cfg.OtelCollectorUrl, "otel-collector-url", envString("OTEL_COLLECTOR_URL", ""), "OpenTelemetry collector gRPC endpoint")

	fs.StringVar(&cfg.DB.Dsn, "db-dsn", envString("DB_DSN", ""), "PostgreSQL DSN")
	fs.IntVar(&cfg.DB.MaxOpenConns, "db-max-open-conns", envInt("DB_MAX_OPEN_CONNS", 25), "PostgreSQL max open connections")
	fs.DurationVar(&cfg.DB.MaxIdleTime, "db-max-idle-time", envDuration("DB_MAX_IDLE_TIME", 15*time.Minute), "PostgreSQL max idle time for connections")

	fs.StringVar(&cfg.Redis.Url, "redis-url", envString("REDIS_URL", ""), "Redis URL")
	fs.IntVar(&cfg.Redis.MaxOpenConns, "redis-max-open-conns", envInt("REDIS_MAX_OPEN_CONNS", 25), "Redis max open connections")
	fs.IntVar(&cfg.Redis.MaxIdleConns, "redis-max-idle-conns", envInt("REDIS_MAX_IDLE_CONNS", 10), "Redis max idle connections")
	fs.DurationVar(&cfg.Redis.MaxIdleTime, "redis-max-idle-time", envDuration("REDIS_MAX_IDLE_TIME", 2*time.Minute), "Redis max idle time for connections")

	fs.StringVar(&cfg.SMTP.Host, "smtp-host", envString("SMTP_HOST", "sandbox.smtp.mailtrap.io"), "SMTP host")
	fs.IntVar(&cfg.SMTP.Port, "smtp-port", envInt("SMTP_PORT", 2525), "SMTP port")
	fs.StringVar(&cfg.SMTP.Username, "smtp-username", envString("SMTP_USERNAME", ""), "SMTP username")
	fs.StringVar(&cfg.SMTP.Password, "smtp-password", envString("SMTP_PASSWORD", ""), "SMTP password")
	fs.StringVar(&cfg.SMTP.Sender, "smtp-sender", envString("SMTP_SENDER", "Hostel Booking <no-reply@hostel-booking.example.com>"), "SMTP sender")
	fs.StringVar(&cfg.SMTP.ReceiptUrl, "receipt-url", envString("RECEIPT_URL", "https://hostel-booking.example.com/payments/%s"), "Receipt page URL, %s is the transaction id")

	fs.StringVar(&cfg.Stripe.SecretKey, "stripe-key", envString("STRIPE_KEY", ""), "Stripe secret key")
	fs.StringVar(&cfg.Stripe.WebhookSecret, "stripe-webhook-secret", envString("STRIPE_WEBHOOK_SECRET", ""), "Stripe webhook secret")
	fs.StringVar(&cfg.Stripe.SuccessUrl, "stripe-success-url", envString("STRIPE_SUCCESS_URL", "https://example.com/success.html"), "Stripe payment success page")
	fs.StringVar(&cfg.Stripe.FailureUrl, "stripe-failure-url", envString("STRIPE_FAILURE_URL", "https://example.com/failure.html"), "Stripe payment failure page")

	fs.StringVar(&cfg.MobileMoney.BaseUrl, "momo-base-url", envString("MOMO_BASE_URL", ""), "Mobile money gateway base URL")
	fs.StringVar(&cfg.MobileMoney.ApiKey, "momo-api-key", envString("MOMO_API_KEY", ""), "Mobile money gateway API key")
	fs.StringVar(&cfg.MobileMoney.CallbackUrl, "momo-callback-url", envString("MOMO_CALLBACK_URL", ""), "URL the mobile money gateway calls back")
	fs.DurationVar(&cfg.MobileMoney.Timeout, "momo-timeout", envDuration("MOMO_TIMEOUT", 10*time.Second), "Mobile money gateway HTTP timeout")

	fs.BoolVar(&cfg.BankTransfer.Enabled, "bank-transfer-enabled", envBool("BANK_TRANSFER_ENABLED", true), "Accept simulated bank transfers")
	fs.DurationVar(&cfg.BankTransfer.SettleAfter, "bank-transfer-settle-after", envDuration("BANK_TRANSFER_SETTLE_AFTER", 30*time.Second), "Time until a simulated bank transfer completes")

	fs.IntVar(&cfg.Settlement.MaxAttempts, "verify-max-attempts", envInt("VERIFY_MAX_ATTEMPTS", retry.MaxAttempts), "Gateway verification attempts per request")
	fs.DurationVar(&cfg.Settlement.Delay, "verify-delay", envDuration("VERIFY_DELAY", retry.Delay), "Wait between verification attempts")
	fs.DurationVar(&cfg.Settlement.AttemptTimeout, "verify-attempt-timeout", envDuration("VERIFY_ATTEMPT_TIMEOUT", retry.AttemptTimeout), "Timeout of a single verification attempt")
	fs.StringVar(&cfg.Settlement.Tolerance, "amount-tolerance", envString("AMOUNT_TOLERANCE", defaults.Tolerance.String()), "Accepted difference between paid and expected amount")
	fs.StringVar(&cfg.Settlement.DefaultCurrency, "default-currency", envString("DEFAULT_CURRENCY", defaults.DefaultCurrency), "Currency used when a booking has none")
	fs.StringVar(&cfg.Settlement.CountryCode, "country-code", envString("COUNTRY_CODE", defaults.CountryCode), "Calling code prepended to national mobile numbers")
	fs.DurationVar(&cfg.Settlement.LockSlack, "verify-lock-slack", envDuration("VERIFY_LOCK_SLACK", defaults.LockSlack), "Extra verification lock lifetime beyond the retry budget")
	fs.DurationVar(&cfg.Settlement.AvailabilityTTL, "availability-ttl", envDuration("AVAILABILITY_TTL", defaults.AvailabilityTTL), "Cache lifetime of payment method availability")

	fs.BoolVar(&cfg.Reconciler.Enabled, "reconciler-enabled", envBool("RECONCILER_ENABLED", true), "Periodically verify stale pending payments")
	fs.StringVar(&cfg.Reconciler.Schedule, "reconciler-schedule", envString("RECONCILER_SCHEDULE", reconciler.Schedule), "Reconciler cron schedule")
	fs.DurationVar(&cfg.Reconciler.MinAge, "reconciler-min-age", envDuration("RECONCILER_MIN_AGE", reconciler.MinAge), "Minimum age of a pending payment before the reconciler verifies it")
	fs.IntVar(&cfg.Reconciler.Limit, "reconciler-limit", envInt("RECONCILER_LIMIT", reconciler.Limit), "Payments verified per reconciler run")

	displayVersion := fs.Bool("version", false, "Display version and exit")

	err := fs.Parse(args)
	if err != nil {
		return Config{}, false, err
	}

	return cfg, *displayVersion, nil
}

func Run() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, displayVersion, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	if displayVersion {
		fmt.Printf("Version:\t%s\n", version)
		return nil
	}

	stripe.Key = cfg.Stripe.SecretKey

	textHandler := slog.NewTextHandler(os.Stdout, nil)

	app := &Application{
		config: cfg,
		logger: slog.New(textHandler),
	}

	shutdownTelemetry, err := app.InitTelemetry()
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	if cfg.OtelCollectorUrl != "" {
		app.logger = slog.New(NewMultiHandler(textHandler, otelslog.NewHandler(serviceName)))
	}

	swagger, err := api.LoadValidated(context.Background())
	if err != nil {
		return err
	}

	db, err := NewDatabasePool(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := NewRedisClient(cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	app, err = NewApp(
		cfg,
		app.logger,
		db,
		redisClient,
		appvalidator.NewValidator(),
		mailer.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Sender),
		NewSessionManager(redisClient),
		repository.NewPostgresUserRepository(db),
		repository.NewPostgresBookingRepository(db),
		repository.NewPostgresPaymentRepository(db),
		NewGateways(cfg, app.logger),
	)
	if err != nil {
		return err
	}

	app.swagger = swagger

	if app.reconciler != nil {
		err = app.reconciler.Start()
		if err != nil {
			return err
		}
	}

	return app.run()
}

// NewApp wires the settlement service and its collaborators into an Application.
// The reconciler is created when enabled but only started by Run.
func NewApp(
	cfg Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	redisClient redis.UniversalClient,
	validator *validator.Validate,
	mailer mailer.Mailer,
	sessionManager *scs.SessionManager,
	userRepo domain.UserRepository,
	bookingRepo domain.BookingRepository,
	paymentRepo domain.PaymentRepository,
	gateways settlement.Gateways,
	opts ...settlement.Option) (*Application, error) {

	settlementCfg, err := cfg.Settlement.settlementConfig()
	if err != nil {
		return nil, err
	}

	app := &Application{
		config:         cfg,
		logger:         logger,
		db:             db,
		redis:          redisClient,
		validator:      validator,
		mailer:         mailer,
		sessionManager: sessionManager,
		userRepo:       userRepo,
		bookingRepo:    bookingRepo,
		paymentRepo:    paymentRepo,
	}

	opts = append([]settlement.Option{
		settlement.WithNotifier(app.newReceiptNotifier()),
		settlement.WithAvailabilityCache(cache.NewRedisAvailabilityCache(redisClient)),
	}, opts...)

	service := settlement.NewService(
		settlementCfg,
		paymentRepo,
		bookingRepo,
		gateways,
		lock.NewRedisLocker(redisClient),
		logger,
		opts...,
	)
	app.payments = service

	if cfg.Reconciler.Enabled {
		app.reconciler = settlement.NewReconciler(settlement.ReconcilerConfig{
			Schedule: cfg.Reconciler.Schedule,
			MinAge:   cfg.Reconciler.MinAge,
			Limit:    cfg.Reconciler.Limit,
		}, service, paymentRepo, logger)
	}

	return app, nil
}

// NewGateways registers a gateway for every payment method that is configured.
func NewGateways(cfg Config, logger *slog.Logger) settlement.Gateways {
	gateways := settlement.Gateways{}

	if cfg.Stripe.SecretKey != "" {
		gateways[domain.PaymentMethodCard] = payment.NewStripeGateway(cfg.Stripe.FailureUrl, cfg.Stripe.SuccessUrl)
	}

	if cfg.MobileMoney.BaseUrl != "" {
		gateways[domain.PaymentMethodMobileMoney] = payment.NewMobileMoneyGateway(payment.MobileMoneyConfig{
			BaseUrl:     cfg.MobileMoney.BaseUrl,
			ApiKey:      cfg.MobileMoney.ApiKey,
			CallbackUrl: cfg.MobileMoney.CallbackUrl,
			Timeout:     cfg.MobileMoney.Timeout,
		})
	}

	if cfg.BankTransfer.Enabled {
		gateways[domain.PaymentMethodBankTransfer] = payment.NewSimulatedGateway(cfg.BankTransfer.SettleAfter)
	}

	for _, method := range domain.PaymentMethods {
		if _, ok := gateways[method]; !ok {
			logger.Warn("payment method has no gateway configured", "payment_method", method)
		}
	}

	return gateways
}

func NewSessionManager(client *redis.Client) *scs.SessionManager {
	sessionManager := scs.New()

	sessionManager.Store = goredisstore.New(client)
	sessionManager.IdleTimeout = 20 * time.Minute
	sessionManager.Cookie.Name = "session_id"

	return sessionManager
}

func NewRedisClient(cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Redis.Url,
		MaxIdleConns:    cfg.Redis.MaxIdleConns,
		MaxActiveConns:  cfg.Redis.MaxOpenConns,
		ConnMaxIdleTime: cfg.Redis.MaxIdleTime,
	})

	err := errors.Join(redisotel.InstrumentTracing(rdb), redisotel.InstrumentMetrics(rdb))
	if err != nil {
		return nil, fmt.Errorf("instrument redis client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = rdb.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func NewDatabasePool(cfg Config) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.DB.Dsn)
	if err != nil {
		return nil, err
	}

	config.MaxConnIdleTime = cfg.DB.MaxIdleTime
	config.MaxConns = int32(cfg.DB.MaxOpenConns)
	config.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = db.Ping(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (app *Application) run() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", app.config.Port),
		Handler:      app.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: app.writeTimeout(),
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelDebug),
	}

	shutdownError := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		app.logger.Info("shutting down server", "signal", s.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Shutdown(ctx)

		if app.reconciler != nil {
			err = errors.Join(err, app.reconciler.Stop(ctx))
		}

		shutdownError <- err
	}()

	app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdownError
	if err != nil {
		return err
	}

	app.logger.Info("stopped server", "addr", srv.Addr)

	return nil
}

// writeTimeout leaves room for a full verification sequence inside one request.
func (app *Application) writeTimeout() time.Duration {
	cfg := app.config.Settlement

	budget := time.Duration(cfg.MaxAttempts)*cfg.AttemptTimeout + time.Duration(max(cfg.MaxAttempts-1, 0))*cfg.Delay

	return max(10*time.Second, budget+5*time.Second)
}
