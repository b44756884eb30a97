package notify

import (
	"fmt"
	"net"
	"strconv"

	mail "github.com/wneessen/go-mail"
)

// SMTPSender delivers email through a relay at host:port. It implements
// common.EmailSender; the worker falls back to a no-op sender when no relay
// is configured.
type SMTPSender struct {
	client *mail.Client
	from   string
}

// NewSMTPSender validates the relay address and sender identity up front so
// misconfiguration fails at startup, not on the first delivery.
func NewSMTPSender(addr, from string) (*SMTPSender, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("smtp relay address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("smtp relay port %q: %w", portStr, err)
	}
	if from == "" {
		return nil, fmt.Errorf("smtp sender address is required")
	}
	client, err := mail.NewClient(host,
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{client: client, from: from}, nil
}

func (s *SMTPSender) Send(to, subject, html string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)
	return s.client.DialAndSend(msg)
}
