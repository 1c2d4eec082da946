package httpgin

type LoadEventRequest struct {
	EventID string `json:"eventId" binding:"required"`
}

type SelectTicketRequest struct {
	TicketID string `json:"ticketId" binding:"required"`
}

type BuyerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type OpenSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
