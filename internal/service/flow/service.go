package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/nganya/nganya-web/internal/domain"
	"github.com/nganya/nganya-web/internal/monitoring"
	redisrepo "github.com/nganya/nganya-web/internal/repository/redis"
	"github.com/nganya/nganya-web/internal/service/payment"
	"github.com/nganya/nganya-web/internal/upstream"
)

// API is the slice of the backend client the booking flow drives.
type API interface {
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	CreateBooking(ctx context.Context, req upstream.BookingRequest) (*domain.Booking, error)
	InitiateSTKPush(ctx context.Context, req upstream.PushRequest) (*upstream.PushResponse, error)
	PaymentStatus(ctx context.Context, checkoutRequestID string) (*upstream.StatusResponse, error)
}

type Config struct {
	AdminPhone   string
	PollInterval time.Duration
}

// Service creates booking sessions. One Session corresponds to one
// browser's event page: it owns the selection, buyer fields, and the
// payment state machine for that visitor.
type Service struct {
	api    API
	cache  *redisrepo.Cache
	logger *slog.Logger
	cfg    Config
}

func New(api API, cache *redisrepo.Cache, logger *slog.Logger, cfg Config) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}

	return &Service{
		api:    api,
		cache:  cache,
		logger: logger,
		cfg:    cfg,
	}
}

// NewSession opens a fresh booking session with an idle payment state.
func (s *Service) NewSession() *Session {
	sess := &Session{
		svc:     s,
		payment: domain.PaymentIdle(),
	}

	sess.poller = payment.New(s.api.PaymentStatus, s.cfg.PollInterval, payment.Hooks{
		OnPaid:    sess.paymentPaid,
		OnFailed:  sess.paymentFailed,
		OnPending: sess.paymentPending,
	})

	monitoring.SessionOpened()

	return sess
}
