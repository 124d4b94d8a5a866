// Package settings is the on-device store for the terminal client: session
// token, cached profile flags, theme choice, and the last seen notification
// list. The schema is typed accessors behind one interface, never raw
// string keys.
package settings

import (
	"encoding/json"
	"errors"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/cafezao-da-computacao/cafezao/internal/model"
)

// ErrNotFound is returned when a requested record was never stored.
var ErrNotFound = errors.New("setting not found")

// Session is the cached login state.
type Session struct {
	Token              string                   `json:"token"`
	UserID             string                   `json:"user_id"`
	Name               string                   `json:"name"`
	Role               model.Role               `json:"role"`
	SubscriptionStatus model.SubscriptionStatus `json:"subscription_status"`
	SavedAt            time.Time                `json:"saved_at"`
}

// IsAdmin reports whether the cached role grants the admin surface.
func (s *Session) IsAdmin() bool {
	return s.Role == model.RoleAdmin || s.Role == model.RoleSuperAdmin
}

// Theme is the user's appearance choice.
type Theme struct {
	Selected     string `json:"selected"`
	FollowSystem bool   `json:"follow_system"`
	Custom       string `json:"custom,omitempty"`
}

// Store is the typed settings surface. The terminal client takes this as an
// interface so tests can substitute an in-memory fake.
type Store interface {
	Session() (*Session, error)
	SaveSession(s Session) error
	ClearSession() error
	Theme() (Theme, error)
	SaveTheme(t Theme) error
	CachedNotifications() ([]model.Notification, error)
	CacheNotifications(ns []model.Notification) error
	Close() error
}

const (
	bucketName = "settings"

	keySession       = "session"
	keyTheme         = "theme"
	keyNotifications = "notifications"
)

type boltStore struct {
	db *bolt.DB
}

// Open opens (or creates) the settings database at the given path.
func Open(path string) (Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) Session() (*Session, error) {
	var sess Session
	if err := s.get(keySession, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *boltStore) SaveSession(sess Session) error {
	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now().UTC()
	}
	return s.put(keySession, sess)
}

func (s *boltStore) ClearSession() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(keySession))
	})
}

func (s *boltStore) Theme() (Theme, error) {
	var t Theme
	err := s.get(keyTheme, &t)
	if errors.Is(err, ErrNotFound) {
		// Default appearance tracks the system.
		return Theme{Selected: "system", FollowSystem: true}, nil
	}
	return t, err
}

func (s *boltStore) SaveTheme(t Theme) error {
	return s.put(keyTheme, t)
}

func (s *boltStore) CachedNotifications() ([]model.Notification, error) {
	var ns []model.Notification
	err := s.get(keyNotifications, &ns)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return ns, err
}

func (s *boltStore) CacheNotifications(ns []model.Notification) error {
	return s.put(keyNotifications, ns)
}

func (s *boltStore) get(key string, dst any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, dst)
	})
}

func (s *boltStore) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), data)
	})
}
