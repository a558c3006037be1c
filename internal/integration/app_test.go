package integration_test

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/hostel-booking/internal/app"
	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/metinatakli/hostel-booking/internal/mailer"
	"github.com/metinatakli/hostel-booking/internal/mocks"
	"github.com/metinatakli/hostel-booking/internal/payment"
	"github.com/metinatakli/hostel-booking/internal/repository"
	"github.com/metinatakli/hostel-booking/internal/settlement"
	appvalidator "github.com/metinatakli/hostel-booking/internal/validator"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type TestApp struct {
	App            *app.Application
	DB             *pgxpool.Pool
	RedisClient    *redis.Client
	Mailer         *mailer.MockMailer
	SessionManager *scs.SessionManager

	BankTransfer *payment.SimulatedGateway
	MobileMoney  *mocks.MockPaymentGateway
}

func newTestApp(cfg app.Config) (*TestApp, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	validator := appvalidator.NewValidator()
	mailer := mailer.NewMockMailer()

	db, err := app.NewDatabasePool(cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := app.NewRedisClient(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	sessionManager := app.NewSessionManager(redisClient)

	userRepo := repository.NewPostgresUserRepository(db)
	bookingRepo := repository.NewPostgresBookingRepository(db)
	paymentRepo := repository.NewPostgresPaymentRepository(db)

	bankTransfer := payment.NewSimulatedGateway(0)
	mobileMoney := &mocks.MockPaymentGateway{}

	gateways := settlement.Gateways{
		domain.PaymentMethodBankTransfer: bankTransfer,
		domain.PaymentMethodMobileMoney:  mobileMoney,
	}

	noSleep := func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	}

	application, err := app.NewApp(
		cfg,
		logger,
		db,
		redisClient,
		validator,
		mailer,
		sessionManager,
		userRepo,
		bookingRepo,
		paymentRepo,
		gateways,
		settlement.WithSleeper(noSleep),
	)
	if err != nil {
		db.Close()
		redisClient.Close()
		return nil, err
	}

	return &TestApp{
		App:            application,
		DB:             db,
		RedisClient:    redisClient,
		Mailer:         mailer,
		SessionManager: sessionManager,
		BankTransfer:   bankTransfer,
		MobileMoney:    mobileMoney,
	}, nil
}

// sessionCookies stores a session for userId in redis and returns its cookie.
func (a *TestApp) sessionCookies(t testing.TB, userId int) []http.Cookie {
	ctx, err := a.SessionManager.Load(context.Background(), "")
	require.NoError(t, err)

	a.SessionManager.Put(ctx, app.SessionKeyUserId.String(), userId)

	token, expiry, err := a.SessionManager.Commit(ctx)
	require.NoError(t, err)

	return []http.Cookie{{
		Name:    a.SessionManager.Cookie.Name,
		Value:   token,
		Expires: expiry,
	}}
}

func (a *TestApp) authenticatedUserCookies(t testing.TB) []http.Cookie {
	return a.sessionCookies(t, TestStudentId)
}
