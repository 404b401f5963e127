package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/spec-kit/sla-monitor/internal/credentials"
	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/repository"
)

// Transport delivers one message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// ErrRelayNotConfigured means the mail settings carry no usable SMTP relay.
var ErrRelayNotConfigured = errors.New("smtp relay not configured")

// SMTPTransport sends through the relay configured in the mail settings, logging in with
// the decrypted mailbox credentials. Settings are read per send so changes apply without
// a restart.
type SMTPTransport struct {
	settings  repository.MailSettingsRepository
	decrypter credentials.Decrypter
	fromAddr  string
	fromName  string
	now       func() time.Time
}

// NewSMTPTransport builds a transport. fromAddr overrides the mailbox address when set.
func NewSMTPTransport(settings repository.MailSettingsRepository, decrypter credentials.Decrypter, fromAddr, fromName string) *SMTPTransport {
	return &SMTPTransport{
		settings:  settings,
		decrypter: decrypter,
		fromAddr:  fromAddr,
		fromName:  fromName,
		now:       time.Now,
	}
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	settings, err := t.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load mail settings: %w", err)
	}
	if settings.SMTPServer == "" || settings.SMTPPort == 0 {
		return ErrRelayNotConfigured
	}
	password, err := t.decrypter.Decrypt(settings.EncryptedPassword)
	if err != nil {
		return fmt.Errorf("decrypt smtp credentials: %w", err)
	}

	from := t.fromAddr
	if from == "" {
		from = settings.Email
	}
	raw, err := Compose(&mail.Address{Name: t.fromName, Address: from}, msg, t.now())
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	client, err := dialRelay(settings)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Auth(sasl.NewPlainClient("", settings.LoginUser(), password)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.SendMail(from, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return client.Quit()
}

// dialRelay opens implicit TLS when SMTPUseSSL is set, STARTTLS otherwise.
func dialRelay(settings *domain.MailSettings) (*smtp.Client, error) {
	addr := net.JoinHostPort(settings.SMTPServer, strconv.Itoa(settings.SMTPPort))
	tlsConfig := &tls.Config{ServerName: settings.SMTPServer, MinVersion: tls.VersionTLS12}

	var (
		client *smtp.Client
		err    error
	)
	if settings.SMTPUseSSL {
		client, err = smtp.DialTLS(addr, tlsConfig)
	} else {
		client, err = smtp.DialStartTLS(addr, tlsConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	return client, nil
}
