// Package credentials decrypts the mailbox password stored with the mail settings.
// Tokens are Fernet tokens, the format the settings screen writes.
package credentials

import (
	"errors"
	"strings"

	"github.com/fernet/fernet-go"
)

var (
	// ErrNoKey means HELPDESK_ENCRYPTION_KEY was not configured.
	ErrNoKey = errors.New("credentials: encryption key not configured")
	// ErrInvalidToken means the token is malformed or was signed with another key.
	ErrInvalidToken = errors.New("credentials: invalid token")
)

// Decrypter turns a stored token back into the plaintext secret.
type Decrypter interface {
	Decrypt(token string) (string, error)
}

// FernetCipher decrypts with one or more keys; the first key also encrypts.
// Stored tokens never expire.
type FernetCipher struct {
	keys []*fernet.Key
}

// NewFernetCipher parses a comma separated list of base64 keys. An empty list yields a
// cipher that fails every call with ErrNoKey.
func NewFernetCipher(encodedKeys string) (*FernetCipher, error) {
	var parts []string
	for _, k := range strings.Split(encodedKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			parts = append(parts, k)
		}
	}
	if len(parts) == 0 {
		return &FernetCipher{}, nil
	}
	keys, err := fernet.DecodeKeys(parts...)
	if err != nil {
		return nil, err
	}
	return &FernetCipher{keys: keys}, nil
}

func (c *FernetCipher) Decrypt(token string) (string, error) {
	if len(c.keys) == 0 {
		return "", ErrNoKey
	}
	msg := fernet.VerifyAndDecrypt([]byte(strings.TrimSpace(token)), -1, c.keys)
	if msg == nil {
		return "", ErrInvalidToken
	}
	return string(msg), nil
}

// Encrypt produces a token readable by Decrypt.
func (c *FernetCipher) Encrypt(plain string) (string, error) {
	if len(c.keys) == 0 {
		return "", ErrNoKey
	}
	tok, err := fernet.EncryptAndSign([]byte(plain), c.keys[0])
	if err != nil {
		return "", err
	}
	return string(tok), nil
}

// GenerateKey returns a new random key in the encoding NewFernetCipher accepts.
func GenerateKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", err
	}
	return k.Encode(), nil
}
