package httpdigest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/nonceguard/digestauthd/core/challenge"
	"github.com/nonceguard/digestauthd/core/hashengine"
	"github.com/nonceguard/digestauthd/core/noncetable"
	"github.com/nonceguard/digestauthd/core/paramcodec"
	"github.com/nonceguard/digestauthd/core/verifier"
	"github.com/nonceguard/digestauthd/internal/credstore"
	"github.com/nonceguard/digestauthd/internal/logging"
)

// CredentialResolver looks up the HA1 a request's claimed username
// resolves to. It wraps credstore.Store so the middleware doesn't need
// to know about contexts or drivers directly.
type CredentialResolver interface {
	Resolve(ctx context.Context, username, realm string) (credstore.User, error)
}

type storeResolver struct{ store credstore.Store }

func (r storeResolver) Resolve(ctx context.Context, username, realm string) (credstore.User, error) {
	return r.store.Get(ctx, username, realm)
}

// NewCredentialResolver adapts a credstore.Store into a CredentialResolver.
func NewCredentialResolver(store credstore.Store) CredentialResolver {
	return storeResolver{store: store}
}

// contextKey is an unexported type per Go's context-key convention,
// avoiding collisions with keys set by other middleware in the chain.
type contextKey int

const usernameContextKey contextKey = iota

// Username extracts the authenticated username the middleware stashed
// in the request context, for handlers downstream that need it.
func Username(r *http.Request) (string, bool) {
	v, ok := r.Context().Value(usernameContextKey).(string)
	return v, ok
}

// Middleware is the chi-compatible digest-auth gate: it mirrors the
// teacher's AuthenticationMiddleware — resolve credentials, verify,
// and on anything but OK, emit a challenge instead of calling through.
type Middleware struct {
	Realm           string
	Algorithm       hashengine.Algorithm
	NonceTimeoutSec int
	Seed            string
	Table           *noncetable.Table
	Resolver        CredentialResolver
	Logger          logging.Logger
	NowMS           func() int64
}

// Wrap returns an http.Handler that authenticates requests before
// calling next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := m.NowMS()
		params := Parse(r.Header.Get("Authorization"))

		username, _ := readUsername(params)
		cred, lookupErr := m.Resolver.Resolve(r.Context(), username, m.Realm)

		conn := verifier.Connection{
			Method:  r.Method,
			URL:     r.URL.Path,
			GetArgs: queryArgs(r.URL.Query()),
		}
		cfg := verifier.Config{
			Realm:           m.Realm,
			Username:        username,
			Algorithm:       m.Algorithm,
			NonceTimeoutSec: m.NonceTimeoutSec,
			Table:           m.Table,
			Seed:            m.Seed,
			NowMS:           now,
			PathUnescape:    url.PathUnescape,
			QueryUnescape:   url.QueryUnescape,
		}
		if lookupErr == nil && cred.Enabled {
			cfg.Credential = verifier.Credential{IsPrehash: true, PasswordOrHash: cred.HA1}
		}

		status, err := verifier.Verify(params, conn, cfg)
		if err != nil {
			m.Logger.Error("digest verification error", logging.ErrorField(err))
			status = verifier.InternalError
		} else if (lookupErr != nil || !cred.Enabled) && (status == verifier.OK || status == verifier.ResponseWrong) {
			// No usable stored credential (unknown or disabled user) to
			// check the response against — an OK or ResponseWrong
			// verdict here was only ever possible against the zero-value
			// Credential, so recharacterize it as an unknown-user
			// failure rather than exposing which branch of Verify
			// produced it.
			status = verifier.WrongUsername
		}

		if status == verifier.OK {
			ctx := context.WithValue(r.Context(), usernameContextKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		m.logOutcome(status, username)
		m.challenge(w, r, conn, status, now)
	})
}

func (m *Middleware) logOutcome(status verifier.Status, username string) {
	switch status {
	case verifier.NonceWrong, verifier.ResponseWrong:
		m.Logger.Warn("digest verification failed", logging.StatusField(status.String()), logging.UserField(username))
	default:
		m.Logger.Info("digest verification failed", logging.StatusField(status.String()), logging.UserField(username))
	}
}

func (m *Middleware) challenge(w http.ResponseWriter, r *http.Request, conn verifier.Connection, status verifier.Status, now int64) {
	if status == verifier.InternalError {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	hv, ok := challenge.Emit(m.Table, challenge.Request{
		Method:    conn.Method,
		URI:       conn.URL,
		Realm:     m.Realm,
		Seed:      m.Seed,
		Opaque:    uuid.NewString(),
		Algorithm: m.Algorithm,
		StaleFlag: status == verifier.NonceStale,
		NowMS:     now,
	})
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("WWW-Authenticate", hv)
	if status == verifier.WrongHeader && r.Header.Get("Authorization") != "" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusUnauthorized)
}

func readUsername(params verifier.RequestParams) (string, bool) {
	var scratch paramcodec.Scratch
	defer scratch.Reset()
	status, val, err := scratch.GetUnquoted(params.Username)
	if err != nil || status == paramcodec.NoString {
		return "", false
	}
	return string(val), true
}

func queryArgs(values url.Values) []verifier.KV {
	var out []verifier.KV
	for k, vs := range values {
		for _, v := range vs {
			out = append(out, verifier.KV{Key: k, Value: v})
		}
	}
	return out
}
