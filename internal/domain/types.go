package domain

import "strings"

type PaymentMethod string

const (
	PaymentTill    PaymentMethod = "TILL"
	PaymentPaybill PaymentMethod = "PAYBILL"
)

// NormalizeMethod maps whatever the backend stored into one of the two
// known schemes. Anything unrecognized reads as TILL.
func NormalizeMethod(s string) PaymentMethod {
	if strings.EqualFold(strings.TrimSpace(s), string(PaymentPaybill)) {
		return PaymentPaybill
	}
	return PaymentTill
}

type Event struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Location       string   `json:"location"`
	Date           string   `json:"date"`
	Time           string   `json:"time"`
	PosterURL      string   `json:"posterUrl"`
	PaymentMethod  string   `json:"paymentMethod"`
	PaymentNumber  string   `json:"paymentNumber"`
	PaybillAccount string   `json:"paybillAccount"`
	Tickets        []Ticket `json:"tickets"`
}

// Method returns the normalized payment scheme of the event.
func (e *Event) Method() PaymentMethod {
	return NormalizeMethod(e.PaymentMethod)
}

// TicketByID finds a tier by id, or nil.
func (e *Event) TicketByID(id string) *Ticket {
	for i := range e.Tickets {
		if e.Tickets[i].ID == id {
			return &e.Tickets[i]
		}
	}
	return nil
}

// Ticket is a single price tier of an event. SeatsLeft is authoritative
// only on the backend; it is never decremented locally, the event is
// re-fetched instead.
type Ticket struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Price     int    `json:"price"`
	SeatsLeft int    `json:"seatsLeft"`
}

func (t *Ticket) SoldOut() bool {
	return t.SeatsLeft <= 0
}

// Booking is the record the backend returns for a submission. Only the ID
// is guaranteed; the ticket code arrives with payment confirmation.
type Booking struct {
	ID         string `json:"id"`
	EventID    string `json:"eventId"`
	TicketID   string `json:"ticketTypeId"`
	Name       string `json:"customerName"`
	Phone      string `json:"phoneNumber"`
	TicketCode string `json:"ticketCode"`
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// NormalizeStatus folds the backend's free-form status strings into the
// three known values. Anything unrecognized reads as PENDING so polling
// keeps going.
func NormalizeStatus(s string) PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(PaymentPaid):
		return PaymentPaid
	case string(PaymentFailed):
		return PaymentFailed
	default:
		return PaymentPending
	}
}

type PaymentPhase string

const (
	PhaseIdle    PaymentPhase = "IDLE"
	PhasePolling PaymentPhase = "POLLING"
	PhasePaid    PaymentPhase = "PAID"
	PhaseFailed  PaymentPhase = "FAILED"
)

// PaymentState is the tagged state of the payment flow. The token is set
// only while polling; the ticket code is set only once paid. Constructors
// below are the only way states are built, which keeps impossible
// combinations (paid with no code, polling with no token) out.
type PaymentState struct {
	Phase      PaymentPhase `json:"phase"`
	Token      string       `json:"token,omitempty"`
	TicketCode string       `json:"ticketCode,omitempty"`
}

func PaymentIdle() PaymentState {
	return PaymentState{Phase: PhaseIdle}
}

func PaymentPollingState(token string) PaymentState {
	return PaymentState{Phase: PhasePolling, Token: token}
}

func PaymentPaidState(ticketCode string) PaymentState {
	return PaymentState{Phase: PhasePaid, TicketCode: ticketCode}
}

func PaymentFailedState() PaymentState {
	return PaymentState{Phase: PhaseFailed}
}
