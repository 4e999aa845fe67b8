// Package credstore resolves the (username, realm) pairs a digest
// verifier needs credentials for. It sits outside core/ entirely —
// spec.md's verifier takes a resolved Credential directly, leaving
// lookup to the caller.
package credstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no user exists for the given username
// and realm.
var ErrNotFound = errors.New("credstore: user not found")

// User is a stored credential record. HA1 holds the binary
// H(username:realm:password) digest, computed once at enrollment time
// with the algorithm named by Algorithm — never a plaintext password.
type User struct {
	Username  string
	Realm     string
	Algorithm string
	HA1       []byte
	Enabled   bool
}

// Store resolves and persists credentials.
type Store interface {
	Get(ctx context.Context, username, realm string) (User, error)
	Put(ctx context.Context, user User) error
	Close() error
}
