package httpdigest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonceguard/digestauthd/core/digest"
	"github.com/nonceguard/digestauthd/core/hashengine"
	"github.com/nonceguard/digestauthd/core/noncecodec"
	"github.com/nonceguard/digestauthd/core/noncetable"
	"github.com/nonceguard/digestauthd/internal/credstore"
	"github.com/nonceguard/digestauthd/internal/logging"
)

const (
	mwRealm    = "testrealm@host.com"
	mwUser     = "Mufasa"
	mwPassword = "Circle Of Life"
	mwSeed     = "0123456789ab"
	mwURI      = "/dir/index.html"
)

func newTestMiddleware(t *testing.T, nowMS int64) (*Middleware, *noncetable.Table) {
	t.Helper()
	store := credstore.NewMemoryStore()
	ha1Hex := digest.HA1FromPassword(hashengine.MD5, mwUser, mwRealm, mwPassword)
	ha1 := mustHexDecode(t, ha1Hex)
	require.NoError(t, store.Put(context.Background(), credstore.User{
		Username: mwUser, Realm: mwRealm, Algorithm: "MD5", HA1: ha1, Enabled: true,
	}))

	tbl := noncetable.New(16)
	mw := &Middleware{
		Realm:           mwRealm,
		Algorithm:       hashengine.MD5,
		NonceTimeoutSec: 60,
		Seed:            mwSeed,
		Table:           tbl,
		Resolver:        NewCredentialResolver(store),
		Logger:          logging.NewConsoleLogger(logging.ErrorLevel),
		NowMS:           func() int64 { return nowMS },
	}
	return mw, tbl
}

func authHeader(t *testing.T, nonce, nc, cnonce string) string {
	t.Helper()
	ha1 := digest.HA1FromPassword(hashengine.MD5, mwUser, mwRealm, mwPassword)
	ha2 := digest.HA2(hashengine.MD5, http.MethodGet, mwURI)
	resp, err := digest.Response(hashengine.MD5, ha1, nonce, nc, cnonce, digest.QOPAuth, "auth", ha2)
	require.NoError(t, err)
	return fmt.Sprintf(`Digest username="%s", realm="%s", nonce="%s", uri="%s", qop=auth, nc=%s, cnonce="%s", response="%s"`,
		mwUser, mwRealm, nonce, mwURI, nc, cnonce, resp)
}

func TestMiddlewareAllowsValidRequest(t *testing.T) {
	now := int64(1000)
	mw, tbl := newTestMiddleware(t, now)
	nonce := noncecodec.Generate(hashengine.MD5, now, http.MethodGet, mwSeed, mwURI, mwRealm)
	tbl.TryReserve(nonce, now, now)

	called := false
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		username, ok := Username(r)
		assert.True(t, ok)
		assert.Equal(t, mwUser, username)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, mwURI, nil)
	req.Header.Set("Authorization", authHeader(t, nonce, "00000001", "c1"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMiddlewareNoHeaderYields401WithChallenge(t *testing.T) {
	mw, _ := newTestMiddleware(t, 1000)
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, mwURI, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Header().Get("WWW-Authenticate"), `realm="`+mwRealm+`"`)
}

func TestMiddlewareUnknownUserYields401(t *testing.T) {
	now := int64(1000)
	mw, tbl := newTestMiddleware(t, now)
	nonce := noncecodec.Generate(hashengine.MD5, now, http.MethodGet, mwSeed, mwURI, mwRealm)
	tbl.TryReserve(nonce, now, now)

	ha1 := digest.HA1FromPassword(hashengine.MD5, "Stranger", mwRealm, "whatever")
	ha2 := digest.HA2(hashengine.MD5, http.MethodGet, mwURI)
	resp, err := digest.Response(hashengine.MD5, ha1, nonce, "00000001", "c1", digest.QOPAuth, "auth", ha2)
	require.NoError(t, err)
	hv := fmt.Sprintf(`Digest username="Stranger", realm="%s", nonce="%s", uri="%s", qop=auth, nc=00000001, cnonce="c1", response="%s"`,
		mwRealm, nonce, mwURI, resp)

	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, mwURI, nil)
	req.Header.Set("Authorization", hv)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMiddlewareReplayIsRejected(t *testing.T) {
	now := int64(1000)
	mw, tbl := newTestMiddleware(t, now)
	nonce := noncecodec.Generate(hashengine.MD5, now, http.MethodGet, mwSeed, mwURI, mwRealm)
	tbl.TryReserve(nonce, now, now)
	hv := authHeader(t, nonce, "00000001", "c1")

	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req1 := httptest.NewRequest(http.MethodGet, mwURI, nil)
	req1.Header.Set("Authorization", hv)
	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req1)
	require.Equal(t, http.StatusOK, rr1.Code)

	req2 := httptest.NewRequest(http.MethodGet, mwURI, nil)
	req2.Header.Set("Authorization", hv)
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req2)
	assert.Equal(t, http.StatusUnauthorized, rr2.Code)
}

func mustHexDecode(t *testing.T, s string) []byte {
	t.Helper()
	b := make([]byte, len(s)/2)
	for i := 0; i < len(b); i++ {
		hi := fromHexDigit(s[2*i])
		lo := fromHexDigit(s[2*i+1])
		b[i] = hi<<4 | lo
	}
	return b
}

func fromHexDigit(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}
