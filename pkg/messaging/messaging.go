package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ErrNoRecipient is returned when a message has no usable address.
var ErrNoRecipient = errors.New("message has no recipient")

// Message is a plain-text notification addressed to one recipient.
type Message struct {
	To      mail.Address
	Subject string
	Body    string
}

// Validate ensures the message can be handed to a transport.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To.Address) == "" {
		return ErrNoRecipient
	}
	if _, err := mail.ParseAddress(m.To.Address); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", m.To.Address, err)
	}
	if strings.TrimSpace(m.Subject) == "" && strings.TrimSpace(m.Body) == "" {
		return errors.New("message has no content")
	}
	return nil
}

// Sender delivers messages to their recipient.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
