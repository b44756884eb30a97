package common

// EmailSender delivers a single HTML email.
type EmailSender interface {
	Send(to, subject, html string) error
}

// Email is one message captured by InMemoryEmail.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// InMemoryEmail collects sent messages instead of delivering them. Tests
// inspect Outbox; the zero value is ready to use.
type InMemoryEmail struct {
	Outbox []Email
}

func (m *InMemoryEmail) Send(to, subject, html string) error {
	if m == nil {
		return nil
	}
	m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}

// NopEmailSender discards every message. Used where delivery is disabled.
type NopEmailSender struct{}

func (NopEmailSender) Send(string, string, string) error { return nil }
