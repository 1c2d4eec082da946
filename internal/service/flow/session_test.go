package flow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nganya/nganya-web/internal/domain"
	"github.com/nganya/nganya-web/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu          sync.Mutex
	event       *domain.Event
	getCalls    int
	bookingReqs []upstream.BookingRequest
	bookingErr  error
	nextBooking *domain.Booking
	push        func(req upstream.PushRequest) (*upstream.PushResponse, error)
	status      func(token string) (*upstream.StatusResponse, error)
	statusCalls int32
}

func (f *fakeAPI) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	e := *f.event
	return &e, nil
}

func (f *fakeAPI) CreateBooking(ctx context.Context, req upstream.BookingRequest) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookingReqs = append(f.bookingReqs, req)
	if f.bookingErr != nil {
		return nil, f.bookingErr
	}
	b := *f.nextBooking
	return &b, nil
}

func (f *fakeAPI) InitiateSTKPush(ctx context.Context, req upstream.PushRequest) (*upstream.PushResponse, error) {
	return f.push(req)
}

func (f *fakeAPI) PaymentStatus(ctx context.Context, token string) (*upstream.StatusResponse, error) {
	atomic.AddInt32(&f.statusCalls, 1)
	return f.status(token)
}

func (f *fakeAPI) getCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func (f *fakeAPI) bookingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bookingReqs)
}

func tillEvent() *domain.Event {
	return &domain.Event{
		ID:            "ev-1",
		Title:         "Nganya Night",
		Location:      "Nairobi",
		Date:          "2025-06-01",
		Time:          "19:00",
		PaymentMethod: "TILL",
		PaymentNumber: "873344",
		Tickets: []domain.Ticket{
			{ID: "t-1", Name: "VIP", Price: 500, SeatsLeft: 10},
			{ID: "t-2", Name: "Gate", Price: 200, SeatsLeft: 0},
		},
	}
}

func paybillEvent() *domain.Event {
	e := tillEvent()
	e.PaymentMethod = "PAYBILL"
	e.PaymentNumber = "400200"
	e.PaybillAccount = "NGANYA"
	return e
}

func newTestSession(t *testing.T, api *fakeAPI) *Session {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(api, nil, logger, Config{
		AdminPhone:   "254700000001",
		PollInterval: 10 * time.Millisecond,
	})

	sess := svc.NewSession()
	t.Cleanup(sess.Close)

	return sess
}

func TestSelectSoldOutTicketRejected(t *testing.T) {
	api := &fakeAPI{event: tillEvent()}
	sess := newTestSession(t, api)

	_, err := sess.LoadEvent(context.Background(), "ev-1")
	require.NoError(t, err)

	require.ErrorIs(t, sess.SelectTicket("t-2"), ErrSoldOut)
	assert.Empty(t, sess.State().TicketID)
}

func TestSubmitSoldOutTierIssuesNoBooking(t *testing.T) {
	api := &fakeAPI{event: tillEvent()}
	sess := newTestSession(t, api)

	_, err := sess.LoadEvent(context.Background(), "ev-1")
	require.NoError(t, err)
	sess.SetBuyer("Asha", "0712345678")

	// bypass SelectTicket to point at the sold-out tier directly
	sess.mu.Lock()
	sess.ticketID = "t-2"
	sess.mu.Unlock()

	_, err = sess.Submit(context.Background())
	require.ErrorIs(t, err, ErrSoldOut)
	assert.Zero(t, api.bookingCount())
}

func TestSubmitRequiresBuyerFields(t *testing.T) {
	api := &fakeAPI{event: tillEvent()}
	sess := newTestSession(t, api)

	_, err := sess.LoadEvent(context.Background(), "ev-1")
	require.NoError(t, err)
	require.NoError(t, sess.SelectTicket("t-1"))
	sess.SetBuyer("   ", "0712345678")

	_, err = sess.Submit(context.Background())
	require.ErrorIs(t, err, ErrMissingBuyer)
	assert.Zero(t, api.bookingCount())
}

func TestSubmitTillFlow(t *testing.T) {
	api := &fakeAPI{
		event:       tillEvent(),
		nextBooking: &domain.Booking{ID: "bk-42"},
	}
	sess := newTestSession(t, api)

	_, err := sess.LoadEvent(context.Background(), "ev-1")
	require.NoError(t, err)
	require.NoError(t, sess.SelectTicket("t-1"))
	sess.SetBuyer("  Asha ", " 0712345678 ")

	result, err := sess.Submit(context.Background())
	require.NoError(t, err)

	// booking carries the trimmed buyer fields
	require.Equal(t, 1, api.bookingCount())
	assert.Equal(t, upstream.BookingRequest{
		CustomerName: "Asha",
		PhoneNumber:  "0712345678",
		EventID:      "ev-1",
		TicketTypeID: "t-1",
	}, api.bookingReqs[0])

	// the deep link carries the order summary
	require.NotEmpty(t, result.WhatsAppURL)
	u, err := url.Parse(result.WhatsAppURL)
	require.NoError(t, err)
	assert.Equal(t, "wa.me", u.Host)
	assert.Equal(t, "/254700000001", u.Path)
	msg := u.Query().Get("text")
	assert.Contains(t, msg, "KES 500")
	assert.Contains(t, msg, "VIP")
	assert.Contains(t, msg, "bk-42")

	require.NotNil(t, result.Success)
	assert.Equal(t, "bk-42", result.Success.BookingID)

	// event re-fetched, selection and fields cleared
	assert.Equal(t, 2, api.getCallCount())
	snap := sess.State()
	assert.Empty(t, snap.TicketID)
	assert.Empty(t, snap.Name)
	assert.Empty(t, snap.Phone)
	assert.False(t, snap.Loading)
	require.NotNil(t, snap.Success)
	assert.Equal(t, "bk-42", snap.Success.BookingID)
}

func TestSubmitPaybillPendingStartsPolling(t *testing.T) {
	var paid atomic.Bool

	api := &fakeAPI{
		event:       paybillEvent(),
		nextBooking: &domain.Booking{ID: "bk-7"},
		push: func(req upstream.PushRequest) (*upstream.PushResponse, error) {
			return &upstream.PushResponse{Status: "PENDING", CheckoutRequestID: "cr-1"}, nil
		},
	}
	api.status = func(token string) (*upstream.StatusResponse, error) {
		if paid.Load() {
			return &upstream.StatusResponse{PaymentStatus: "paid", TicketCode: "TCK-9"}, nil
		}
		return &upstream.StatusResponse{PaymentStatus: "PENDING"}, nil
	}

	sess := newTestSession(t, api)

	_, err := sess.LoadEvent(context.Background(), "ev-1")
	require.NoError(t, err)
	require.NoError(t, sess.SelectTicket("t-1"))
	sess.SetBuyer("Asha", "0712345678")

	result, err := sess.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePolling, result.Payment.Phase)
	assert.Equal(t, "cr-1", result.Payment.Token)
	assert.Nil(t, result.Success)

	// activation query fires before the first interval tick
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&api.statusCalls) >= 1
	}, time.Second, 2*time.Millisecond)

	paid.Store(true)

	require.Eventually(t, func() bool {
		return sess.State().Payment.Phase == domain.PhasePaid
	}, time.Second, 5*time.Millisecond)

	snap := sess.State()
	assert.Equal(t, "TCK-9", snap.Payment.TicketCode)
	assert.Empty(t, snap.Payment.Token)
	require.NotNil(t, snap.Success)
	assert.Equal(t, "bk-7", snap.Success.BookingID)
	assert.Equal(t, "TCK-9", snap.Success.TicketCode)

	// paid refresh re-fetched the event
	assert.GreaterOrEqual(t, api.getCallCount(), 2)

	// polling stopped: call count settles
	settled := atomic.LoadInt32(&api.statusCalls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, atomic.LoadInt32(&api.statusCalls))
}

func TestSubmitPaybillWithoutTokenFailsWithoutPolling(t *testing.T) {
	api := &fakeAPI{
		event:       paybillEvent(),
		nextBooking: &domain.Booking{ID: "bk-7"},
		push: func(req upstream.PushRequest) (*upstream.PushResponse, error) {
			// gateway accepted the push but handed back no token to poll on
			return &upstream.PushResponse{Status: "PENDING"}, nil
		},
	}
	api.status = func(token string) (*upstream.StatusResponse, error) {
		return &upstream.StatusResponse{PaymentStatus: "PENDING"}, nil
	}

	sess := newTestSession(t, api)

	_, err := sess.LoadEvent(context.Background(), "ev-1")
	require.NoError(t, err)
	require.NoError(t, sess.SelectTicket("t-1"))
	sess.SetBuyer("Asha", "0712345678")

	_, err = sess.Submit(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkout request id")

	// no poll loop without a token, ever
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&api.statusCalls))

	snap := sess.State()
	assert.Equal(t, domain.PhaseIdle, snap.Payment.Phase)
	assert.Empty(t, snap.Payment.Token)
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.Success)
}

func TestSubmitPaybillSynchronousPaid(t *testing.T) {
	api := &fakeAPI{
		event:       paybillEvent(),
		nextBooking: &domain.Booking{ID: "bk-7"},
		push: func(req upstream.PushRequest) (*upstream.PushResponse, error) {
			return &upstream.PushResponse{Status: "PAID", TicketCode: "TCK-1"}, nil
		},
	}

	sess := newTestSession(t, api)

	_, err := sess.LoadEvent(context.Background(), "ev-1")
	require.NoError(t, err)
	require.NoError(t, sess.SelectTicket("t-1"))
	sess.SetBuyer("Asha", "0712345678")

	result, err := sess.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.PhasePaid, result.Payment.Phase)
	require.NotNil(t, result.Success)
	assert.Equal(t, "TCK-1", result.Success.TicketCode)

	// terminal at initiation: no polling at all
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&api.statusCalls))
	assert.Equal(t, 2, api.getCallCount())
}

func TestNewSubmissionSupersedesActivePoll(t *testing.T) {
	release := make(chan struct{})
	var pushCount int32

	api := &fakeAPI{
		event:       paybillEvent(),
		nextBooking: &domain.Booking{ID: "bk-7"},
	}
	api.push = func(req upstream.PushRequest) (*upstream.PushResponse, error) {
		n := atomic.AddInt32(&pushCount, 1)
		if n == 1 {
			return &upstream.PushResponse{Status: "PENDING", CheckoutRequestID: "cr-1"}, nil
		}
		return &upstream.PushResponse{Status: "PENDING", CheckoutRequestID: "cr-2"}, nil
	}
	api.status = func(token string) (*upstream.StatusResponse, error) {
		if token == "cr-1" {
			<-release
			return &upstream.StatusResponse{PaymentStatus: "PAID", TicketCode: "STALE"}, nil
		}
		return &upstream.StatusResponse{PaymentStatus: "PENDING"}, nil
	}

	sess := newTestSession(t, api)

	_, err := sess.LoadEvent(context.Background(), "ev-1")
	require.NoError(t, err)
	require.NoError(t, sess.SelectTicket("t-1"))
	sess.SetBuyer("Asha", "0712345678")

	_, err = sess.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cr-1", sess.State().Payment.Token)

	// second booking while the cr-1 query is still in flight
	require.NoError(t, sess.SelectTicket("t-1"))
	sess.SetBuyer("Asha", "0712345678")
	_, err = sess.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cr-2", sess.State().Payment.Token)

	// the stale cr-1 result lands after cancellation and changes nothing
	close(release)
	time.Sleep(50 * time.Millisecond)

	snap := sess.State()
	assert.Equal(t, domain.PhasePolling, snap.Payment.Phase)
	assert.Equal(t, "cr-2", snap.Payment.Token)
	assert.Nil(t, snap.Success)
}

func TestSubmitFailureLeavesCleanState(t *testing.T) {
	api := &fakeAPI{
		event:      tillEvent(),
		bookingErr: errors.New("boom"),
	}
	sess := newTestSession(t, api)

	_, err := sess.LoadEvent(context.Background(), "ev-1")
	require.NoError(t, err)
	require.NoError(t, sess.SelectTicket("t-1"))
	sess.SetBuyer("Asha", "0712345678")

	_, err = sess.Submit(context.Background())
	require.Error(t, err)

	snap := sess.State()
	assert.False(t, snap.Loading, "loading flag must clear on failure")
	assert.Nil(t, snap.Success)
	assert.Equal(t, domain.PhaseIdle, snap.Payment.Phase)

	// inputs survive so the visitor can retry
	assert.Equal(t, "t-1", snap.TicketID)
	assert.Equal(t, "Asha", snap.Name)
}

func TestResetClearsFlowAndStopsPoll(t *testing.T) {
	api := &fakeAPI{
		event:       paybillEvent(),
		nextBooking: &domain.Booking{ID: "bk-7"},
		push: func(req upstream.PushRequest) (*upstream.PushResponse, error) {
			return &upstream.PushResponse{Status: "PENDING", CheckoutRequestID: "cr-1"}, nil
		},
	}
	api.status = func(token string) (*upstream.StatusResponse, error) {
		return &upstream.StatusResponse{PaymentStatus: "PENDING"}, nil
	}

	sess := newTestSession(t, api)

	_, err := sess.LoadEvent(context.Background(), "ev-1")
	require.NoError(t, err)
	require.NoError(t, sess.SelectTicket("t-1"))
	sess.SetBuyer("Asha", "0712345678")

	_, err = sess.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.PhasePolling, sess.State().Payment.Phase)

	sess.Reset()

	snap := sess.State()
	assert.Empty(t, snap.TicketID)
	assert.Empty(t, snap.Name)
	assert.Equal(t, domain.PhaseIdle, snap.Payment.Phase)

	// the poll loop is gone: the query count settles
	settled := atomic.LoadInt32(&api.statusCalls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, atomic.LoadInt32(&api.statusCalls))
}

func TestLoadEventDropsVanishedSelection(t *testing.T) {
	api := &fakeAPI{event: tillEvent()}
	sess := newTestSession(t, api)

	_, err := sess.LoadEvent(context.Background(), "ev-1")
	require.NoError(t, err)
	require.NoError(t, sess.SelectTicket("t-1"))

	// tier sells out behind our back
	api.mu.Lock()
	api.event.Tickets[0].SeatsLeft = 0
	api.mu.Unlock()

	_, err = sess.LoadEvent(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.Empty(t, sess.State().TicketID)
}
