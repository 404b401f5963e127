package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

// Session is an authenticated mailbox connection.
type Session interface {
	SearchUnseen(ctx context.Context) ([]uint32, error)
	// Fetch returns the raw message without setting \Seen.
	Fetch(ctx context.Context, uid uint32) ([]byte, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Logout() error
}

// Transport opens sessions. Credentials arrive already decrypted.
type Transport interface {
	Connect(ctx context.Context, settings domain.MailSettings, password string) (Session, error)
}

// IMAPTransport connects with go-imap over implicit TLS or plain TCP, per settings.
type IMAPTransport struct {
	mailbox     string
	dialTimeout time.Duration
	logger      *zap.Logger
}

// NewIMAPTransport builds a transport selecting mailbox after login.
func NewIMAPTransport(mailbox string, dialTimeout time.Duration, logger *zap.Logger) *IMAPTransport {
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &IMAPTransport{mailbox: mailbox, dialTimeout: dialTimeout, logger: logger}
}

func (t *IMAPTransport) Connect(ctx context.Context, settings domain.MailSettings, password string) (Session, error) {
	addr := net.JoinHostPort(settings.Server, strconv.Itoa(settings.Port))
	dialer := &net.Dialer{Timeout: t.dialTimeout}

	var (
		c   *client.Client
		err error
	)
	if settings.UseSSL {
		c, err = client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: settings.Server, MinVersion: tls.VersionTLS12})
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", addr, err)
	}
	c.Timeout = t.dialTimeout

	// Unblock any in-flight command when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })

	if err := c.Login(settings.LoginUser(), password); err != nil {
		stop()
		_ = c.Terminate()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(t.mailbox, false); err != nil {
		stop()
		_ = c.Logout()
		return nil, fmt.Errorf("imap select %s: %w", t.mailbox, err)
	}

	t.logger.Info("imap session opened", zap.String("server", addr), zap.String("mailbox", t.mailbox))
	return &imapSession{c: c, stop: stop}, nil
}

type imapSession struct {
	c    *client.Client
	stop func() bool
}

func (s *imapSession) SearchUnseen(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := s.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	return uids, nil
}

func (s *imapSession) Fetch(ctx context.Context, uid uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(seqset, items, messages)
	}()

	var raw []byte
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		b, err := io.ReadAll(body)
		if err != nil {
			// drain so UidFetch can finish
			for range messages {
			}
			<-done
			return nil, fmt.Errorf("imap read body: %w", err)
		}
		raw = b
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch %d: %w", uid, err)
	}
	if raw == nil {
		return nil, errors.New("imap fetch: message has no body")
	}
	return raw, nil
}

func (s *imapSession) MarkSeen(ctx context.Context, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := s.c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("imap store \\Seen on %d: %w", uid, err)
	}
	return nil
}

func (s *imapSession) Logout() error {
	s.stop()
	return s.c.Logout()
}
