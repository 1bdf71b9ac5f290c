// Package queue moves outbound email through RabbitMQ so request handlers
// never wait on the SMTP relay.
package queue

import (
	"time"

	"github.com/iliyamo/shipping-auth/internal/mail"
)

// EmailQueueName is the durable queue carrying EmailRequested messages.
const EmailQueueName = "email.send"

// EmailRequested is published for every verification or reset email. The
// HTML body carries the raw single-use token, so the queue must not be
// shared with untrusted consumers.
type EmailRequested struct {
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	HTML        string    `json:"html"`
	RequestedAt time.Time `json:"requested_at"`
}

func (e EmailRequested) Message() mail.Message {
	return mail.Message{To: e.To, Subject: e.Subject, HTML: e.HTML}
}
