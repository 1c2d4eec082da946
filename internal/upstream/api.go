package upstream

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nganya/nganya-web/internal/domain"
)

type BookingRequest struct {
	CustomerName string `json:"customerName"`
	PhoneNumber  string `json:"phoneNumber"`
	EventID      string `json:"eventId"`
	TicketTypeID string `json:"ticketTypeId"`
}

type PushRequest struct {
	BookingID   string `json:"bookingId"`
	PhoneNumber string `json:"phoneNumber"`
}

type PushResponse struct {
	Status            string `json:"status"`
	CheckoutRequestID string `json:"checkoutRequestId"`
	TicketCode        string `json:"ticketCode"`
}

type StatusResponse struct {
	PaymentStatus string `json:"paymentStatus"`
	TicketCode    string `json:"ticketCode"`
}

// ListEvents fetches all events through the retry loop.
func (c *Client) ListEvents(ctx context.Context) ([]domain.Event, error) {
	const op = "upstream.ListEvents"

	var events []domain.Event
	if err := c.getJSON(ctx, "events", c.baseURL+"/api/events", &events); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return events, nil
}

// GetEvent fetches a single event through the retry loop.
func (c *Client) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	const op = "upstream.GetEvent"

	var event domain.Event
	u := c.baseURL + "/api/events/" + url.PathEscape(id)
	if err := c.getJSON(ctx, "event", u, &event); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &event, nil
}

func (c *Client) CreateEvent(ctx context.Context, event domain.Event) (*domain.Event, error) {
	const op = "upstream.CreateEvent"

	var created domain.Event
	if err := c.postJSON(ctx, "create_event", c.baseURL+"/api/events", event, &created); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &created, nil
}

func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (*domain.Booking, error) {
	const op = "upstream.CreateBooking"

	var booking domain.Booking
	if err := c.postJSON(ctx, "booking", c.baseURL+"/api/bookings", req, &booking); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &booking, nil
}

// InitiateSTKPush asks the backend to push a payment prompt for the
// booking to the given phone.
func (c *Client) InitiateSTKPush(ctx context.Context, req PushRequest) (*PushResponse, error) {
	const op = "upstream.InitiateSTKPush"

	var resp PushResponse
	if err := c.postJSON(ctx, "stk_push", c.baseURL+"/api/payments/stk-push", req, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &resp, nil
}

// PaymentStatus is a single bounded query with no retries; the poll loop
// owns the cadence and treats failures as transient.
func (c *Client) PaymentStatus(ctx context.Context, checkoutRequestID string) (*StatusResponse, error) {
	const op = "upstream.PaymentStatus"

	var resp StatusResponse
	u := c.baseURL + "/api/payments/status/" + url.PathEscape(checkoutRequestID)
	if err := c.attemptGet(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &resp, nil
}
