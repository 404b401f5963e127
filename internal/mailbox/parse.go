// Package mailbox talks IMAP to the support inbox and turns raw RFC 5322 messages into
// the few fields ticket ingestion needs.
package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
)

// ErrMalformed marks content that cannot be turned into a ticket.
var ErrMalformed = errors.New("malformed message")

// Parsed is the ingestion view of one message. PlainBody is empty when the message has
// no inline text/plain part.
type Parsed struct {
	Subject     string
	FromAddress string
	FromName    string
	PlainBody   string
}

// Parse decodes headers and the first inline text/plain part. Unknown charsets degrade
// to the raw bytes instead of failing.
func Parse(raw []byte) (*Parsed, error) {
	r, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: empty reader", ErrMalformed)
	}
	defer r.Close()

	out := &Parsed{}
	subject, err := r.Header.Subject()
	if err != nil {
		subject = r.Header.Get("Subject")
	}
	out.Subject = strings.TrimSpace(subject)

	from, err := r.Header.AddressList("From")
	if err != nil || len(from) == 0 {
		return nil, fmt.Errorf("%w: no sender address", ErrMalformed)
	}
	out.FromAddress = strings.TrimSpace(from[0].Address)
	out.FromName = from[0].Name

	for {
		part, err := r.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		h, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, err := h.ContentType()
		if err != nil && ct == "" {
			ct = "text/plain"
		}
		if ct != "text/plain" {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrMalformed, err)
		}
		out.PlainBody = toValidUTF8(body)
		break
	}
	return out, nil
}

// MatchesKeyword reports whether subject starts with one of keywords, ignoring case and
// surrounding space.
func MatchesKeyword(subject string, keywords []string) bool {
	normalized := strings.ToLower(strings.TrimSpace(subject))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.HasPrefix(normalized, kw) {
			return true
		}
	}
	return false
}

func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "")
}
