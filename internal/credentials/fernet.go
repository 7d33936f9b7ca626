package credentials

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fernet/fernet-go"
)

var ErrInvalidToken = errors.New("invalid encrypted connection token")

// FernetResolver decrypts connection URIs stored as Fernet tokens. The first
// key encrypts; every key is tried when decrypting so keys can be rotated.
type FernetResolver struct {
	keys []*fernet.Key
	ttl  time.Duration
}

// NewFernetResolver parses comma-separated base64 keys. A zero ttl accepts
// tokens of any age.
func NewFernetResolver(encodedKeys string, ttl time.Duration) (*FernetResolver, error) {
	parts := make([]string, 0)
	for _, part := range strings.Split(encodedKeys, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("at least one encryption key is required")
	}
	keys, err := fernet.DecodeKeys(parts...)
	if err != nil {
		return nil, fmt.Errorf("decode encryption keys: %w", err)
	}
	if ttl <= 0 {
		ttl = -1
	}
	return &FernetResolver{keys: keys, ttl: ttl}, nil
}

// GenerateKey returns a new random key in the encoding NewFernetResolver accepts.
func GenerateKey() (string, error) {
	var key fernet.Key
	if err := key.Generate(); err != nil {
		return "", fmt.Errorf("generate encryption key: %w", err)
	}
	return key.Encode(), nil
}

// Encrypt path-escapes the URI before sealing it so Decrypt returns it
// byte-for-byte, percent-encoded passwords included.
func (r *FernetResolver) Encrypt(uri string) (string, error) {
	if strings.TrimSpace(uri) == "" {
		return "", fmt.Errorf("connection uri is required")
	}
	token, err := fernet.EncryptAndSign([]byte(url.PathEscape(uri)), r.keys[0])
	if err != nil {
		return "", fmt.Errorf("encrypt connection uri: %w", err)
	}
	return string(token), nil
}

// Decrypt opens the token and percent-unescapes the plaintext. Tokens sealed
// by other writers hold a quoted URI and unescape the same way.
func (r *FernetResolver) Decrypt(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	plain := fernet.VerifyAndDecrypt([]byte(token), r.ttl, r.keys)
	if plain == nil {
		return "", ErrInvalidToken
	}
	uri, err := url.PathUnescape(string(plain))
	if err != nil {
		return "", fmt.Errorf("unescape connection uri: %w", err)
	}
	return uri, nil
}
