// Package notify carries rendered notifications from the services to the mail relay:
// an explicit outbound queue, a rate limited worker draining it, and the SMTP transport.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Message is one rendered e-mail for a single recipient.
type Message struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	ToName    string    `json:"to_name,omitempty"`
	Subject   string    `json:"subject"`
	HTMLBody  string    `json:"html_body"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage stamps an id and creation time.
func NewMessage(kind, to, toName, subject, body, ticketID string) Message {
	return Message{
		ID:        uuid.NewString(),
		To:        to,
		ToName:    toName,
		Subject:   subject,
		HTMLBody:  body,
		TicketID:  ticketID,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}
