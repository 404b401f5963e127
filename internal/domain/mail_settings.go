package domain

import "time"

// MailSettings configures the inbound mailbox and the outbound SMTP relay.
// EncryptedPassword is never decrypted outside a connection attempt.
type MailSettings struct {
	ID                   string
	Server               string
	Port                 int
	Email                string
	Username             string
	EncryptedPassword    string
	UseSSL               bool
	Active               bool
	CheckIntervalMinutes int
	SMTPServer           string
	SMTPPort             int
	SMTPUseSSL           bool
	UpdatedAt            time.Time
}

// LoginUser returns the account name used for IMAP/SMTP authentication.
func (m MailSettings) LoginUser() string {
	if m.Username != "" {
		return m.Username
	}
	return m.Email
}
