package session

import "context"

// Store persists sessions in a backing key-value store. Implementations keep
// no local state beyond their prefix and client handle: every call is one
// independent round trip, and concurrent calls for the same session race at
// last-write-wins granularity.
//
// A missing session is (nil, nil), never an error.
type Store interface {
	// StoreSession writes the session under prefix+ID with the session's
	// expiry as the key TTL and returns the cookie value for the client.
	StoreSession(ctx context.Context, s *Session) (string, error)

	// LoadSession fetches the session for a presented cookie value. The
	// returned session retains the cookie value, so storing it again returns
	// the same cookie.
	LoadSession(ctx context.Context, cookieValue string) (*Session, error)

	// DestroySession deletes the session's key regardless of remaining TTL.
	// Destroying an absent session is not an error.
	DestroySession(ctx context.Context, s *Session) error

	// ClearStore deletes every key under the store's prefix. Keys written
	// while the clear is in flight may or may not be removed.
	ClearStore(ctx context.Context) error
}
