// Package redisstore persists sessions in a Redis-compatible store using the
// store's native per-key TTL for expiry. All state lives server-side; the
// store itself holds only the prefix and a shared client handle.
package redisstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PaulFidika/sessionkit/session"
)

// scanCount is the COUNT hint passed to SCAN when enumerating keys.
const scanCount = 512

// Options configures a Store. The zero value gives an unprefixed store with
// the JSON codec and sliding expiry on load.
type Options struct {
	// Prefix namespaces every key as prefix+sessionID. ClearStore and Count
	// rely on the namespace being exclusive to one logical application.
	Prefix string

	// Codec encodes session payloads. Defaults to session.JSONCodec.
	Codec session.Codec

	// NoRefreshOnLoad keeps the stored TTL fixed instead of re-arming it on
	// every successful load.
	NoRefreshOnLoad bool
}

// Store implements session.Store on top of a shared go-redis client. The
// client is injected already connected and is never closed here.
type Store struct {
	rdb           redis.UniversalClient
	prefix        string
	codec         session.Codec
	refreshOnLoad bool
}

// New creates a Store over an existing client. No I/O is performed.
func New(rdb redis.UniversalClient, opts Options) *Store {
	codec := opts.Codec
	if codec == nil {
		codec = session.JSONCodec{}
	}
	return &Store{
		rdb:           rdb,
		prefix:        opts.Prefix,
		codec:         codec,
		refreshOnLoad: !opts.NoRefreshOnLoad,
	}
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// StoreSession writes the session and returns its cookie value. A session
// whose expiry has already passed is deleted instead of written.
func (s *Store) StoreSession(ctx context.Context, sess *session.Session) (string, error) {
	var ttl time.Duration
	if sess.Expiry != nil {
		ttl = time.Until(*sess.Expiry)
		if ttl <= 0 {
			if err := s.rdb.Del(ctx, s.key(sess.ID)).Err(); err != nil {
				return "", err
			}
			return sess.CookieValue, nil
		}
	}
	payload, err := s.codec.Encode(sess)
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, s.key(sess.ID), payload, ttl).Err(); err != nil {
		return "", err
	}
	return sess.CookieValue, nil
}

// LoadSession fetches the session for a cookie value, or (nil, nil) when the
// key is absent or already expired.
func (s *Store) LoadSession(ctx context.Context, cookieValue string) (*session.Session, error) {
	id, err := session.IDFromCookieValue(cookieValue)
	if err != nil {
		return nil, err
	}
	payload, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess, err := s.codec.Decode(payload)
	if err != nil {
		return nil, err
	}
	if sess.IsExpired() {
		return nil, nil
	}
	sess.CookieValue = cookieValue
	if s.refreshOnLoad && sess.MaxAge > 0 {
		// Rewrite the payload along with the TTL: the stored Expiry must
		// track the re-armed window, or later loads would judge the session
		// dead while its key is still live.
		sess.Refresh()
		payload, err = s.codec.Encode(sess)
		if err != nil {
			return nil, err
		}
		if err := s.rdb.Set(ctx, s.key(id), payload, sess.MaxAge).Err(); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// DestroySession deletes the session's key. Deleting an absent key is a no-op.
func (s *Store) DestroySession(ctx context.Context, sess *session.Session) error {
	return s.rdb.Del(ctx, s.key(sess.ID)).Err()
}

// ClearStore deletes every key under the prefix via a cursor scan. With no
// prefix configured it flushes the store's logical database.
func (s *Store) ClearStore(ctx context.Context) error {
	if s.prefix == "" {
		return s.rdb.FlushDB(ctx).Err()
	}
	keys, err := s.keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// Count reports the number of sessions under the prefix. With no prefix it
// falls back to DBSIZE.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if s.prefix == "" {
		return s.rdb.DBSize(ctx).Result()
	}
	keys, err := s.keys(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

// TTL reports the remaining server-side TTL of the session's key.
func (s *Store) TTL(ctx context.Context, sess *session.Session) (time.Duration, error) {
	return s.rdb.TTL(ctx, s.key(sess.ID)).Result()
}

func (s *Store) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, escapeMatch(s.prefix)+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

var matchEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"?", `\?`,
	"[", `\[`,
	"]", `\]`,
	"^", `\^`,
)

// escapeMatch quotes glob metacharacters so a literal prefix never widens the
// SCAN MATCH pattern.
func escapeMatch(prefix string) string {
	return matchEscaper.Replace(prefix)
}
