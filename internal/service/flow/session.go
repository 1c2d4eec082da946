package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nganya/nganya-web/internal/domain"
	"github.com/nganya/nganya-web/internal/monitoring"
	"github.com/nganya/nganya-web/internal/service/payment"
	"github.com/nganya/nganya-web/internal/upstream"
	"github.com/nganya/nganya-web/internal/whatsapp"
)

// Success is the completion artifact of a booking: its id and, once the
// payment confirms, the ticket code.
type Success struct {
	BookingID  string `json:"bookingId"`
	TicketCode string `json:"ticketCode"`
}

// Snapshot is an immutable view of a session for rendering.
type Snapshot struct {
	Event    *domain.Event       `json:"event,omitempty"`
	TicketID string              `json:"ticketId,omitempty"`
	Name     string              `json:"name,omitempty"`
	Phone    string              `json:"phone,omitempty"`
	Loading  bool                `json:"loading"`
	Payment  domain.PaymentState `json:"payment"`
	Success  *Success            `json:"success,omitempty"`
}

// SubmitResult is what a successful submission hands back to the page.
// Exactly one of the two branches is populated: the till branch carries
// the wa.me link to open in a new tab, the paybill branch carries the
// payment state (pending or already paid).
type SubmitResult struct {
	WhatsAppURL string              `json:"whatsappUrl,omitempty"`
	Payment     domain.PaymentState `json:"payment"`
	Success     *Success            `json:"success,omitempty"`
}

// Session is one visitor's booking flow. All mutable state lives behind
// the mutex; the poll loop and HTTP handlers are the only writers.
type Session struct {
	svc    *Service
	poller *payment.Poller

	mu       sync.Mutex
	event    *domain.Event
	ticketID string
	name     string
	phone    string
	loading  bool
	booking  *domain.Booking
	success  *Success
	payment  domain.PaymentState
}

// LoadEvent fetches the event fresh from the backend and makes it the
// session's subject. A selection pointing at a tier that no longer
// exists or sold out in the meantime is dropped.
func (s *Session) LoadEvent(ctx context.Context, id string) (*domain.Event, error) {
	const op = "service.flow.LoadEvent"

	event, err := s.svc.api.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	s.event = event
	if t := event.TicketByID(s.ticketID); t == nil || t.SoldOut() {
		s.ticketID = ""
	}
	s.mu.Unlock()

	return event, nil
}

// SelectTicket picks a tier. Sold-out tiers are never selectable.
func (s *Session) SelectTicket(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.event == nil {
		return ErrNoEvent
	}

	ticket := s.event.TicketByID(id)
	if ticket == nil {
		return ErrTicketNotFound
	}

	if ticket.SoldOut() {
		return ErrSoldOut
	}

	s.ticketID = id

	return nil
}

// SetBuyer stores the buyer fields as typed; trimming happens at
// submission.
func (s *Session) SetBuyer(name, phone string) {
	s.mu.Lock()
	s.name = name
	s.phone = phone
	s.mu.Unlock()
}

// State returns a copy of the session safe to serialize.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TicketID: s.ticketID,
		Name:     s.name,
		Phone:    s.phone,
		Loading:  s.loading,
		Payment:  s.payment,
	}

	if s.event != nil {
		e := *s.event
		snap.Event = &e
	}

	if s.success != nil {
		ok := *s.success
		snap.Success = &ok
	}

	return snap
}

// Submit runs the whole booking sequence: precondition checks, clearing
// any previous payment state, creating the booking, then the paybill or
// till branch. Preconditions failing means the sequence never starts.
// Any later failure abandons the flow with no partial success; the
// loading flag is cleared on every path out.
func (s *Session) Submit(ctx context.Context) (*SubmitResult, error) {
	const op = "service.flow.Submit"

	s.mu.Lock()

	if s.loading {
		s.mu.Unlock()
		return nil, ErrBusy
	}

	event := s.event
	if event == nil {
		s.mu.Unlock()
		return nil, ErrNoEvent
	}

	if s.ticketID == "" {
		s.mu.Unlock()
		return nil, ErrNoTicketSelected
	}

	ticket := event.TicketByID(s.ticketID)
	if ticket == nil {
		s.mu.Unlock()
		return nil, ErrTicketNotFound
	}

	if ticket.SoldOut() {
		s.mu.Unlock()
		return nil, ErrSoldOut
	}

	name := strings.TrimSpace(s.name)
	phone := strings.TrimSpace(s.phone)
	if name == "" || phone == "" {
		s.mu.Unlock()
		return nil, ErrMissingBuyer
	}

	// clear any previous payment status and token before this attempt
	s.loading = true
	s.payment = domain.PaymentIdle()
	s.success = nil
	s.booking = nil
	s.mu.Unlock()

	s.poller.Stop()

	result, err := s.submit(ctx, event, ticket, name, phone)

	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()

	if err != nil {
		s.svc.logger.Error("booking failed",
			"error", err,
			"event_id", event.ID,
			"ticket_id", ticket.ID,
		)
		monitoring.BookingSubmitted(string(event.Method()), "error")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

func (s *Session) submit(
	ctx context.Context,
	event *domain.Event,
	ticket *domain.Ticket,
	name, phone string,
) (*SubmitResult, error) {
	booking, err := s.svc.api.CreateBooking(ctx, upstream.BookingRequest{
		CustomerName: name,
		PhoneNumber:  phone,
		EventID:      event.ID,
		TicketTypeID: ticket.ID,
	})
	if err != nil {
		return nil, err
	}

	if booking.ID == "" {
		return nil, errors.New("booking response missing id")
	}

	s.mu.Lock()
	s.booking = booking
	s.mu.Unlock()

	if event.Method() == domain.PaymentPaybill {
		return s.submitPaybill(ctx, booking, phone)
	}

	return s.submitTill(ctx, event, ticket, booking, name, phone)
}

// submitPaybill triggers the STK push. A synchronously PAID response is
// a terminal success; anything else records PENDING and starts the poll
// loop on the returned checkout token.
func (s *Session) submitPaybill(
	ctx context.Context,
	booking *domain.Booking,
	phone string,
) (*SubmitResult, error) {
	push, err := s.svc.api.InitiateSTKPush(ctx, upstream.PushRequest{
		BookingID:   booking.ID,
		PhoneNumber: phone,
	})
	if err != nil {
		return nil, err
	}

	if domain.NormalizeStatus(push.Status) == domain.PaymentPaid {
		success := &Success{BookingID: booking.ID, TicketCode: push.TicketCode}

		s.mu.Lock()
		s.payment = domain.PaymentPaidState(push.TicketCode)
		s.success = success
		s.mu.Unlock()

		s.refreshEvent(ctx)
		monitoring.BookingSubmitted(string(domain.PaymentPaybill), "paid")

		return &SubmitResult{
			Payment: domain.PaymentPaidState(push.TicketCode),
			Success: success,
		}, nil
	}

	token := strings.TrimSpace(push.CheckoutRequestID)
	if token == "" {
		// nothing to poll on, and a pending payment we can never
		// observe is a dead end; surface it like a missing booking id
		return nil, errors.New("push response missing checkout request id")
	}

	state := domain.PaymentPollingState(token)

	s.mu.Lock()
	s.payment = state
	s.mu.Unlock()

	s.poller.Start(token)
	monitoring.BookingSubmitted(string(domain.PaymentPaybill), "pending")

	return &SubmitResult{Payment: state}, nil
}

// submitTill composes the order summary for the operator, marks the
// booking succeeded with the data already in hand, refreshes the event,
// and clears the selection and buyer fields. The returned wa.me link is
// opened by the page in a new tab.
func (s *Session) submitTill(
	ctx context.Context,
	event *domain.Event,
	ticket *domain.Ticket,
	booking *domain.Booking,
	name, phone string,
) (*SubmitResult, error) {
	link := whatsapp.Link(s.svc.cfg.AdminPhone, whatsapp.Order{
		Event:     event,
		Ticket:    ticket,
		Name:      name,
		Phone:     phone,
		BookingID: booking.ID,
	})

	success := &Success{BookingID: booking.ID, TicketCode: booking.TicketCode}

	s.mu.Lock()
	s.success = success
	s.ticketID = ""
	s.name = ""
	s.phone = ""
	s.mu.Unlock()

	s.refreshEvent(ctx)
	monitoring.BookingSubmitted(string(domain.PaymentTill), "ok")

	return &SubmitResult{
		WhatsAppURL: link,
		Payment:     domain.PaymentIdle(),
		Success:     success,
	}, nil
}

// refreshEvent re-fetches the event so seat counts reflect the backend;
// the local copy is never decremented. Best effort: the booking already
// succeeded, a failed refresh only leaves the page one load behind.
func (s *Session) refreshEvent(ctx context.Context) {
	s.mu.Lock()
	event := s.event
	s.mu.Unlock()

	if event == nil {
		return
	}

	if s.svc.cache != nil {
		_ = s.svc.cache.InvalidateEvent(ctx, event.ID)
	}

	fresh, err := s.svc.api.GetEvent(ctx, event.ID)
	if err != nil {
		s.svc.logger.Warn("event refresh failed", "error", err, "event_id", event.ID)
		return
	}

	s.mu.Lock()
	s.event = fresh
	if t := fresh.TicketByID(s.ticketID); t == nil || t.SoldOut() {
		s.ticketID = ""
	}
	s.mu.Unlock()
}

// paymentPaid applies a terminal PAID observed by the poll loop. The
// token guard drops results that belong to a superseded polling session.
func (s *Session) paymentPaid(ctx context.Context, token, ticketCode string) {
	s.mu.Lock()

	if s.payment.Phase != domain.PhasePolling || s.payment.Token != token {
		s.mu.Unlock()
		return
	}

	bookingID := ""
	if s.booking != nil {
		bookingID = s.booking.ID
	}

	s.payment = domain.PaymentPaidState(ticketCode)
	s.success = &Success{BookingID: bookingID, TicketCode: ticketCode}
	s.mu.Unlock()

	s.refreshEvent(ctx)
}

func (s *Session) paymentFailed(ctx context.Context, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.payment.Phase != domain.PhasePolling || s.payment.Token != token {
		return
	}

	s.payment = domain.PaymentFailedState()
}

func (s *Session) paymentPending(ctx context.Context, token string) {
	// state already reads PENDING while polling; nothing to apply
}

// Reset clears the whole flow, stopping any active poll.
func (s *Session) Reset() {
	s.poller.Stop()

	s.mu.Lock()
	s.ticketID = ""
	s.name = ""
	s.phone = ""
	s.loading = false
	s.booking = nil
	s.success = nil
	s.payment = domain.PaymentIdle()
	s.mu.Unlock()
}

// Close tears the session down; it must not leave a poll loop running.
func (s *Session) Close() {
	s.poller.Stop()
	monitoring.SessionClosed()
}
