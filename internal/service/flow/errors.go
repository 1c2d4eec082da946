package flow

import "errors"

var (
	ErrNoEvent          = errors.New("no event loaded")
	ErrNoTicketSelected = errors.New("no ticket selected")
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrSoldOut          = errors.New("ticket is sold out")
	ErrMissingBuyer     = errors.New("name and phone are required")
	ErrBusy             = errors.New("a submission is already in progress")
)
