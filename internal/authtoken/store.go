// Package authtoken persists the backend bearer token for a browser client.
//
// The token is written to two independent channels: a cookie with a 7-day
// expiry and a bbolt bucket keyed by a long-lived client id. Reads prefer the
// cookie and fall back to the durable store, so the session survives either
// channel being cleared. No expiry validation happens here; a stale token is
// only discovered when the backend rejects it with 401.
package authtoken

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	tokenCookie  = "mw_token"
	clientCookie = "mw_client"

	cookieTTL = 7 * 24 * time.Hour
	// The client id cookie outlives the token so the durable channel stays
	// addressable across logins.
	clientTTL = 365 * 24 * time.Hour
)

var bucketTokens = []byte("tokens")

// Store holds bearer tokens for browser clients.
type Store struct {
	db     *bolt.DB
	secure bool
}

// Open opens (or creates) the token database at path.
func Open(path string, secure bool) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open token database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTokens)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create token bucket: %w", err)
	}

	return &Store{db: db, secure: secure}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set writes the token to both channels. The cookie write cannot fail; a
// durable-store failure is returned but the cookie is already set, so the
// caller may treat the error as degraded redundancy rather than a hard
// failure.
func (s *Store) Set(w http.ResponseWriter, r *http.Request, token string) error {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(cookieTTL),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	id := s.ensureClientID(w, r)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).Put([]byte(id), []byte(token))
	})
}

// Get returns the token for this client, preferring the cookie channel.
// Returns "" when neither channel holds a value.
func (s *Store) Get(r *http.Request) string {
	if c, err := r.Cookie(tokenCookie); err == nil && c.Value != "" {
		return c.Value
	}

	id := clientID(r)
	if id == "" {
		return ""
	}

	var token string
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketTokens).Get([]byte(id)); v != nil {
			token = string(v)
		}
		return nil
	})
	return token
}

// Clear removes the token from both channels.
func (s *Store) Clear(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	id := clientID(r)
	if id == "" {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).Delete([]byte(id))
	})
}

// IsAuthenticated reports whether any channel holds a token for this client.
func (s *Store) IsAuthenticated(r *http.Request) bool {
	return s.Get(r) != ""
}

// ensureClientID returns the stable client id for this browser, minting one
// and setting its cookie if absent.
func (s *Store) ensureClientID(w http.ResponseWriter, r *http.Request) string {
	if id := clientID(r); id != "" {
		return id
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     clientCookie,
		Value:    id,
		Path:     "/",
		Expires:  time.Now().Add(clientTTL),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// ClientID returns the stable browser client id, or "" for a first visit.
func ClientID(r *http.Request) string {
	return clientID(r)
}

func clientID(r *http.Request) string {
	if c, err := r.Cookie(clientCookie); err == nil {
		return c.Value
	}
	return ""
}
