// Package whatsapp builds the order summary handed to the operator over
// a wa.me deep link on the till payment path.
package whatsapp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nganya/nganya-web/internal/domain"
)

type Order struct {
	Event     *domain.Event
	Ticket    *domain.Ticket
	Name      string
	Phone     string
	BookingID string
}

// Compose renders the human-readable order summary sent to the admin.
func Compose(o Order) string {
	method := o.Event.Method()

	var b strings.Builder

	b.WriteString("Hello Nganya Experience 👋\n\n")
	fmt.Fprintf(&b, "🎉 Event: %s\n", o.Event.Title)
	fmt.Fprintf(&b, "📍 Location: %s\n", o.Event.Location)
	fmt.Fprintf(&b, "📅 Date: %s %s\n\n", o.Event.Date, o.Event.Time)
	fmt.Fprintf(&b, "🎟️ Ticket: %s\n", o.Ticket.Name)
	fmt.Fprintf(&b, "💰 Price: KES %d\n\n", o.Ticket.Price)
	fmt.Fprintf(&b, "👤 Name: %s\n", o.Name)
	fmt.Fprintf(&b, "📞 Phone: %s\n\n", o.Phone)
	fmt.Fprintf(&b, "🧾 Booking ID: %s\n", o.BookingID)
	fmt.Fprintf(&b, "💳 Payment Method: %s\n", method)

	number := o.Event.PaymentNumber
	if number == "" {
		number = "(not set)"
	}

	if method == domain.PaymentPaybill {
		account := o.Event.PaybillAccount
		if account == "" {
			account = "(your name/phone)"
		}
		fmt.Fprintf(&b, "✅ Pay via Paybill: %s ACC: %s", number, account)
	} else {
		fmt.Fprintf(&b, "✅ Pay via Till: %s", number)
	}

	return b.String()
}

// Link returns the wa.me deep link carrying the composed message.
func Link(adminPhone string, o Order) string {
	return fmt.Sprintf(
		"https://wa.me/%s?text=%s",
		adminPhone,
		url.QueryEscape(Compose(o)),
	)
}
