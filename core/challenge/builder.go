// Package challenge builds the WWW-Authenticate header a daemon emits
// when a request fails verification or carries no Authorization header
// at all, per spec.md §4.7. It owns the nonce-reservation retry dance
// but nothing else — header delivery and status-code selection are the
// caller's job.
package challenge

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/nonceguard/digestauthd/core/hashengine"
	"github.com/nonceguard/digestauthd/core/noncecodec"
	"github.com/nonceguard/digestauthd/core/noncetable"
)

// Request bundles what emit_challenge needs from the connection and the
// daemon's configuration: the realm and algorithm are fixed per daemon,
// opaque is caller-chosen (the httpdigest transport generates one via
// google/uuid), and StaleFlag lets the caller ask for the stale="true"
// hint when the prior failure was specifically NONCE_STALE.
type Request struct {
	Method    string
	URI       string
	Realm     string
	Seed      string
	Opaque    string
	Algorithm hashengine.Algorithm
	StaleFlag bool
	NowMS     int64
}

// jitterMS derives the jitter spec.md §4.3 calls for on a retry: a value
// in [0,127] drawn from a per-request random byte, per spec.md §9's
// instruction to use the existing RNG seed or a random byte rather than
// any implementation-internal address or pointer value.
func jitterMS() int64 {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1
	}
	return int64(b[0] & 0x7f)
}

// Emit runs spec.md §4.7's emit_challenge: refuses outright if the
// table has zero capacity, otherwise generates a nonce, tries to
// reserve it, retries once with a jittered timestamp on refusal, and
// proceeds with the unregistered nonce if both attempts are refused
// (the caller still gets a usable header; the table holds no record of
// that nonce, so the client's first use of it is answered STALE).
func Emit(tbl *noncetable.Table, req Request) (headerValue string, ok bool) {
	if tbl == nil || tbl.Size() == 0 {
		return "", false
	}

	nonce := noncecodec.Generate(req.Algorithm, req.NowMS, req.Method, req.Seed, req.URI, req.Realm)
	if !tbl.TryReserve(nonce, req.NowMS, req.NowMS) {
		altTS := req.NowMS - jitterMS()
		if altTS == req.NowMS {
			altTS = req.NowMS - 2
		}
		altNonce := noncecodec.Generate(req.Algorithm, altTS, req.Method, req.Seed, req.URI, req.Realm)
		if tbl.TryReserve(altNonce, altTS, req.NowMS) {
			nonce = altNonce
		}
		// Second refusal: fall through with the first, unregistered
		// nonce. Harmless — its first use will read back STALE.
	}

	return render(req.Realm, nonce, req.Opaque, req.Algorithm, req.StaleFlag), true
}

// render composes the header value bit-exact to spec.md §4.7. It does
// not escape realm or opaque; a caller whose realm or opaque can
// contain untrusted bytes must escape them before building a Request.
func render(realm, nonce, opaque string, algo hashengine.Algorithm, stale bool) string {
	var b strings.Builder
	b.Grow(len(realm) + len(nonce) + len(opaque) + 64)
	b.WriteString(`Digest realm="`)
	b.WriteString(realm)
	b.WriteString(`",qop="auth",nonce="`)
	b.WriteString(nonce)
	b.WriteString(`",opaque="`)
	b.WriteString(opaque)
	b.WriteString(`",algorithm=`)
	b.WriteString(algo.String())
	if stale {
		b.WriteString(`,stale="true"`)
	}
	return b.String()
}

// String is a convenience used by logging call sites that want a
// one-line description of a challenge without the full header value.
func (r Request) String() string {
	return fmt.Sprintf("challenge realm=%q algo=%s stale=%v", r.Realm, r.Algorithm, r.StaleFlag)
}
