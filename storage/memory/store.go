// Package memorystore implements session.Store on an in-process map. It
// mirrors the Redis store's semantics (prefix namespacing, TTL, sliding
// expiry) so the contract can be tested without a server. It is only safe
// for single-process deployments.
package memorystore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/PaulFidika/sessionkit/session"
)

const defaultCleanerSchedule = "@every 30s"

type item struct {
	payload []byte
	expires time.Time
}

// kv is the backing map, shared between prefixed views of the same store.
type kv struct {
	mu    sync.Mutex
	items map[string]item
	cron  *cron.Cron
}

// Options configures a Store. The zero value gives an unprefixed store with
// the JSON codec, sliding expiry on load, and a cleaner sweeping expired
// records every 30 seconds.
type Options struct {
	Prefix string
	Codec  session.Codec

	// NoRefreshOnLoad keeps the stored TTL fixed instead of re-arming it on
	// every successful load.
	NoRefreshOnLoad bool

	// CleanerSchedule is a cron spec for the expired-record sweeper.
	// Expired records are also dropped lazily on read, so the sweeper only
	// bounds memory held by abandoned sessions.
	CleanerSchedule string
}

// Store implements session.Store on the in-process map.
type Store struct {
	kv            *kv
	prefix        string
	codec         session.Codec
	refreshOnLoad bool
}

// New creates a Store and starts its cleaner.
func New(opts Options) *Store {
	codec := opts.Codec
	if codec == nil {
		codec = session.JSONCodec{}
	}
	schedule := opts.CleanerSchedule
	if schedule == "" {
		schedule = defaultCleanerSchedule
	}
	k := &kv{items: make(map[string]item), cron: cron.New()}
	if _, err := k.cron.AddFunc(schedule, k.purgeExpired); err != nil {
		// A malformed schedule must not silently disable the sweeper.
		_, _ = k.cron.AddFunc(defaultCleanerSchedule, k.purgeExpired)
	}
	k.cron.Start()
	return &Store{
		kv:            k,
		prefix:        opts.Prefix,
		codec:         codec,
		refreshOnLoad: !opts.NoRefreshOnLoad,
	}
}

// WithPrefix returns a view over the same backing map under a different
// prefix. Views share the cleaner; Close on any view stops it.
func (s *Store) WithPrefix(prefix string) *Store {
	v := *s
	v.prefix = prefix
	return &v
}

// Close stops the cleaner. The store remains usable afterwards.
func (s *Store) Close() {
	s.kv.cron.Stop()
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// StoreSession writes the session and returns its cookie value. A session
// whose expiry has already passed is deleted instead of written.
func (s *Store) StoreSession(ctx context.Context, sess *session.Session) (string, error) {
	_ = ctx
	var expires time.Time
	if sess.Expiry != nil {
		if time.Until(*sess.Expiry) <= 0 {
			s.kv.mu.Lock()
			delete(s.kv.items, s.key(sess.ID))
			s.kv.mu.Unlock()
			return sess.CookieValue, nil
		}
		expires = *sess.Expiry
	}
	payload, err := s.codec.Encode(sess)
	if err != nil {
		return "", err
	}
	s.kv.mu.Lock()
	s.kv.items[s.key(sess.ID)] = item{payload: payload, expires: expires}
	s.kv.mu.Unlock()
	return sess.CookieValue, nil
}

// LoadSession fetches the session for a cookie value, or (nil, nil) when the
// key is absent or expired. Expired records are dropped on read.
func (s *Store) LoadSession(ctx context.Context, cookieValue string) (*session.Session, error) {
	_ = ctx
	id, err := session.IDFromCookieValue(cookieValue)
	if err != nil {
		return nil, err
	}
	key := s.key(id)
	s.kv.mu.Lock()
	it, ok := s.kv.items[key]
	if ok && !it.expires.IsZero() && time.Now().After(it.expires) {
		delete(s.kv.items, key)
		ok = false
	}
	s.kv.mu.Unlock()
	if !ok {
		return nil, nil
	}
	sess, err := s.codec.Decode(it.payload)
	if err != nil {
		return nil, err
	}
	sess.CookieValue = cookieValue
	if s.refreshOnLoad && sess.MaxAge > 0 {
		sess.Refresh()
		s.kv.mu.Lock()
		if cur, ok := s.kv.items[key]; ok {
			cur.expires = *sess.Expiry
			s.kv.items[key] = cur
		}
		s.kv.mu.Unlock()
	}
	return sess, nil
}

// DestroySession deletes the session's key. Deleting an absent key is a no-op.
func (s *Store) DestroySession(ctx context.Context, sess *session.Session) error {
	_ = ctx
	s.kv.mu.Lock()
	delete(s.kv.items, s.key(sess.ID))
	s.kv.mu.Unlock()
	return nil
}

// ClearStore deletes every key under the prefix. With no prefix configured it
// wipes the whole backing map, including other views' keys.
func (s *Store) ClearStore(ctx context.Context) error {
	_ = ctx
	s.kv.mu.Lock()
	defer s.kv.mu.Unlock()
	if s.prefix == "" {
		s.kv.items = make(map[string]item)
		return nil
	}
	for key := range s.kv.items {
		if strings.HasPrefix(key, s.prefix) {
			delete(s.kv.items, key)
		}
	}
	return nil
}

// Count reports the number of live sessions under the prefix.
func (s *Store) Count(ctx context.Context) (int64, error) {
	_ = ctx
	now := time.Now()
	s.kv.mu.Lock()
	defer s.kv.mu.Unlock()
	var n int64
	for key, it := range s.kv.items {
		if !strings.HasPrefix(key, s.prefix) {
			continue
		}
		if !it.expires.IsZero() && now.After(it.expires) {
			continue
		}
		n++
	}
	return n, nil
}

func (k *kv) purgeExpired() {
	now := time.Now()
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, it := range k.items {
		if !it.expires.IsZero() && now.After(it.expires) {
			delete(k.items, key)
		}
	}
}
