// Package session defines the session record, its cookie-value/ID derivation,
// the payload codecs, and the Store contract implemented by the storage
// backends.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"golang.org/x/crypto/blake2b"
)

// secretLen is the length of the random cookie secret in bytes.
const secretLen = 32

// ErrMalformedCookie is returned when a presented cookie value cannot be
// decoded into a session identifier.
var ErrMalformedCookie = errors.New("session: malformed cookie value")

// Session is an opaque record of per-user state. The ID is derived from the
// cookie secret and is the only part of the session the client can influence;
// Values are owned by the calling application and never interpreted here.
type Session struct {
	ID     string         `json:"id" msgpack:"id"`
	Expiry *time.Time     `json:"expiry,omitempty" msgpack:"expiry,omitempty"`
	MaxAge time.Duration  `json:"max_age,omitempty" msgpack:"max_age,omitempty"`
	Values map[string]any `json:"values" msgpack:"values"`

	// CookieValue is the external identifier handed back to the caller. It is
	// never persisted: the stored record is addressable only by the derived ID.
	CookieValue string `json:"-" msgpack:"-"`
}

// New creates a session with a fresh cookie secret and no expiry.
func New() *Session {
	secret := make([]byte, secretLen)
	_, _ = rand.Read(secret)
	return &Session{
		ID:          idFromSecret(secret),
		Values:      map[string]any{},
		CookieValue: base64.RawURLEncoding.EncodeToString(secret),
	}
}

// IDFromCookieValue recomputes the session ID for a presented cookie value.
// Knowing an ID is not enough to forge a cookie: the ID is a one-way digest
// of the secret carried in the cookie.
func IDFromCookieValue(cookieValue string) (string, error) {
	secret, err := base64.RawURLEncoding.DecodeString(cookieValue)
	if err != nil || len(secret) != secretLen {
		return "", ErrMalformedCookie
	}
	return idFromSecret(secret), nil
}

func idFromSecret(secret []byte) string {
	sum := blake2b.Sum256(secret)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Set stores a value under key.
func (s *Session) Set(key string, value any) {
	if s.Values == nil {
		s.Values = map[string]any{}
	}
	s.Values[key] = value
}

// Get returns the value stored under key, or nil.
func (s *Session) Get(key string) any {
	return s.Values[key]
}

// GetString returns the string stored under key and whether it was present
// as a string.
func (s *Session) GetString(key string) (string, bool) {
	v, ok := s.Values[key].(string)
	return v, ok
}

// Delete removes key from the session values.
func (s *Session) Delete(key string) {
	delete(s.Values, key)
}

// ExpireIn sets a sliding expiry window of d from now. Stores propagate it as
// the key TTL; loads re-arm it unless the store is configured otherwise.
func (s *Session) ExpireIn(d time.Duration) {
	s.MaxAge = d
	exp := time.Now().Add(d)
	s.Expiry = &exp
}

// SetExpiry sets an absolute expiry. The TTL is propagated once at store time
// and is not re-armed on load.
func (s *Session) SetExpiry(t time.Time) {
	s.MaxAge = 0
	s.Expiry = &t
}

// ExpiresIn reports the time remaining until expiry, or 0 when the session
// has no expiry.
func (s *Session) ExpiresIn() time.Duration {
	if s.Expiry == nil {
		return 0
	}
	return time.Until(*s.Expiry)
}

// IsExpired reports whether the session's expiry has passed.
func (s *Session) IsExpired() bool {
	return s.Expiry != nil && time.Now().After(*s.Expiry)
}

// Refresh slides the expiry forward by the session's window. It is a no-op
// for sessions with an absolute or no expiry.
func (s *Session) Refresh() {
	if s.MaxAge > 0 {
		exp := time.Now().Add(s.MaxAge)
		s.Expiry = &exp
	}
}
