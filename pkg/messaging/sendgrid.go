package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGridConfig configures the SendGrid transport.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender delivers messages through the SendGrid v3 mail API.
type SendGridSender struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	host       string
	call       func(rest.Request) (*rest.Response, error)
}

// NewSendGridSender builds a SendGrid backed sender.
func NewSendGridSender(cfg SendGridConfig) (*SendGridSender, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	if cfg.FromEmail == "" {
		return nil, errors.New("sendgrid sender address is required")
	}
	prefix := ""
	if cfg.FromName != "" {
		prefix = "[" + cfg.FromName + "] "
	}
	return &SendGridSender{
		key:        cfg.APIKey,
		from:       sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
		subjPrefix: prefix,
		host:       sendGridHost,
		call:       sendgrid.API,
	}, nil
}

// Send posts the message to SendGrid, treating any 4xx/5xx as failure.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(s.key, sendGridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := s.call(req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid rejected message: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (s *SendGridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.To.Name, msg.To.Address))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Body))
	return m
}
