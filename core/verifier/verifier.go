// Package verifier implements the request verification state machine of
// spec.md §4.6: an ordered gate that extracts and validates each digest
// parameter, consults the nonce-nc table, recomputes the expected
// response, and classifies the outcome. It is the orchestrator — it owns
// no state of its own beyond what's passed in on each call.
package verifier

import (
	"crypto/subtle"
	"fmt"
	"strconv"
	"strings"

	"github.com/nonceguard/digestauthd/core/digest"
	"github.com/nonceguard/digestauthd/core/hashengine"
	"github.com/nonceguard/digestauthd/core/noncecodec"
	"github.com/nonceguard/digestauthd/core/noncetable"
	"github.com/nonceguard/digestauthd/core/paramcodec"
)

// Field size caps from spec.md §4.6 step 7. Exceeding any of these is an
// INTERNAL_ERROR, not a parse failure — these are resource-exhaustion
// guards, not protocol validation.
const (
	maxCNonceLen   = 128
	maxQOPLen      = 14
	maxNCLen       = 19
	maxResponseLen = 255
)

// Config bundles the per-call parameters spec.md §4.6's verify operation
// signature lists: realm, expected username, expected credential,
// algorithm, and the nonce timeout, plus the collaborators §1 and §6
// name as external (the nonce table, the daemon's random seed, the
// monotonic clock reading, and the path/query unescape callbacks).
type Config struct {
	Realm           string
	Username        string
	Credential      Credential
	Algorithm       hashengine.Algorithm
	NonceTimeoutSec int

	Table         *noncetable.Table
	Seed          string
	NowMS         int64
	// PathUnescape decodes the uri= path segment per RFC 3986 (literal
	// "+"); QueryUnescape decodes its query key/value pairs per
	// form/query-string semantics ("+" as space). These differ on "+"
	// and must not be swapped, or a literal "+" in a request path comes
	// back as a space and fails the uri= comparison.
	PathUnescape  func(string) (string, error)
	QueryUnescape func(string) (string, error)
	StrictQOPCase bool // match qop case-sensitively instead of RFC 7616's case-insensitive default.
}

// Verify runs the ordered gate described in spec.md §4.6 against params
// for the given connection, returning a single Status. On anything but
// OK it returns immediately — the first failing check determines the
// result, so the response code a caller emits is deterministic.
func Verify(params RequestParams, conn Connection, cfg Config) (Status, error) {
	if !params.HasDigest {
		return WrongHeader, nil
	}

	var scratch paramcodec.Scratch
	defer scratch.Reset()

	if st, err := checkAlgorithm(&scratch, params, cfg); st != OK {
		return st, err
	}

	if !paramEquals(&scratch, params.Username, cfg.Username) {
		return WrongUsername, nil
	}
	if !paramEquals(&scratch, params.Realm, cfg.Realm) {
		return WrongRealm, nil
	}

	nonceStr, st, err := extractNonceString(&scratch, params.Nonce)
	if st != OK {
		return st, err
	}
	nonceTS, _, err := noncecodec.ExtractTimestamp(nonceStr)
	if err != nil {
		return NonceWrong, nil
	}

	if noncecodec.ModSub48(cfg.NowMS, nonceTS) > int64(cfg.NonceTimeoutSec)*1000 {
		return NonceStale, nil
	}

	if !noncecodec.Verify(cfg.Algorithm, nonceStr, nonceTS, conn.Method, cfg.Seed, conn.URL, cfg.Realm) {
		return NonceWrong, nil
	}

	cnonce, qop, nc, _, st, err := extractRemainingFields(&scratch, params, cfg)
	if st != OK {
		return st, err
	}

	qopVal, st := classifyQOP(qop, cfg.StrictQOPCase)
	if st != OK {
		return st, nil
	}

	ncVal, err := strconv.ParseUint(nc, 16, 64)
	if err != nil || ncVal == 0 {
		return WrongHeader, nil
	}

	if cfg.Table != nil {
		switch res := cfg.Table.Check(nonceStr, nonceTS, ncVal, cfg.NowMS); res {
		case noncetable.STALE:
			return NonceStale, nil
		case noncetable.WRONG:
			return NonceWrong, nil
		}
	}

	rawURI, uriStatus, err := checkURI(&scratch, params.URI, conn, cfg.PathUnescape, cfg.QueryUnescape)
	if uriStatus != OK {
		return uriStatus, err
	}

	ha1, err := resolveHA1(cfg)
	if err != nil {
		return InternalError, err
	}
	// H(A2) hashes the exact uri= bytes the client sent (RFC 2617 §3.2.2),
	// not the server's re-derived path — checkURI has already confirmed
	// those agree modulo query-string encoding.
	ha2 := digest.HA2(cfg.Algorithm, conn.Method, rawURI)
	// qop is hashed as the client's own literal bytes, not the server's
	// canonical "auth" spelling: the match above is case-insensitive
	// unless cfg.StrictQOPCase is set, so hashing anything but what the
	// client actually sent would make that leniency self-defeating.
	expected, err := digest.Response(cfg.Algorithm, ha1, nonceStr, nc, cnonce, qopVal, qop, ha2)
	if err != nil {
		return InternalError, err
	}

	status, respVal, err := scratch.GetUnquoted(params.Response)
	if err != nil || status == paramcodec.NoString {
		return WrongHeader, nil
	}
	if !constantTimeEqual(respVal, []byte(expected)) {
		return ResponseWrong, nil
	}
	return OK, nil
}

func checkAlgorithm(scratch *paramcodec.Scratch, params RequestParams, cfg Config) (Status, error) {
	if !params.Algorithm.Present {
		return OK, nil
	}
	_, val, err := scratch.GetUnquoted(params.Algorithm)
	if err != nil {
		return WrongHeader, nil
	}
	token := string(val)
	if hashengine.IsSessionVariant(token) {
		// spec.md §9 open question: -sess variants are detected but not
		// supported on the verification path; refuse rather than
		// silently verify with the non-session form.
		return WrongHeader, nil
	}
	algo, ok := hashengine.ParseAlgorithm(token)
	if !ok {
		return WrongHeader, nil
	}
	if token != "" && algo != cfg.Algorithm {
		return WrongHeader, nil
	}
	return OK, nil
}

func paramEquals(scratch *paramcodec.Scratch, p paramcodec.Param, expected string) bool {
	status, val, err := scratch.GetUnquoted(p)
	if err != nil || status == paramcodec.NoString {
		return false
	}
	return string(val) == expected
}

func extractNonceString(scratch *paramcodec.Scratch, p paramcodec.Param) (string, Status, error) {
	status, val, err := scratch.GetUnquoted(p)
	if err != nil || status == paramcodec.NoString || status == paramcodec.Empty {
		return "", NonceWrong, nil
	}
	nonceLen := len(val)
	if nonceLen != hashengine.MD5.NonceLen() && nonceLen != hashengine.SHA256.NonceLen() {
		return "", NonceWrong, nil
	}
	return string(val), OK, nil
}

func extractRemainingFields(scratch *paramcodec.Scratch, params RequestParams, cfg Config) (cnonce, qop, nc, response string, status Status, err error) {
	type field struct {
		p      paramcodec.Param
		maxLen int
		dst    *string
	}
	fields := []field{
		{params.CNonce, maxCNonceLen, &cnonce},
		{params.QOP, maxQOPLen, &qop},
		{params.NC, maxNCLen, &nc},
		{params.Response, maxResponseLen, &response},
	}
	for _, f := range fields {
		st, val, uerr := scratch.GetUnquoted(f.p)
		if st == paramcodec.TooLarge {
			return "", "", "", "", InternalError, uerr
		}
		if uerr != nil {
			return "", "", "", "", WrongHeader, nil
		}
		if len(val) > f.maxLen {
			return "", "", "", "", InternalError, fmt.Errorf("verifier: field exceeds hard cap of %d bytes", f.maxLen)
		}
		*f.dst = string(val)
	}
	return cnonce, qop, nc, response, OK, nil
}

func classifyQOP(qop string, strictCase bool) (digest.QOP, Status) {
	match := func(a, b string) bool {
		if strictCase {
			return a == b
		}
		return strings.EqualFold(a, b)
	}
	switch {
	case qop == "":
		return digest.QOPNone, OK
	case match(qop, "auth"):
		return digest.QOPAuth, OK
	default:
		return 0, WrongHeader
	}
}

func checkURI(scratch *paramcodec.Scratch, p paramcodec.Param, conn Connection, pathUnescape, queryUnescape func(string) (string, error)) (string, Status, error) {
	status, val, err := scratch.GetUnquoted(p)
	if err != nil || status == paramcodec.NoString {
		return "", WrongURI, nil
	}
	raw := string(val)

	path := raw
	query := ""
	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		path = raw[:idx]
		query = raw[idx+1:]
	}

	unescapedPath, uerr := pathUnescape(path)
	if uerr != nil {
		return "", WrongURI, nil
	}
	if unescapedPath != conn.URL {
		return "", WrongURI, nil
	}

	if query == "" {
		if len(conn.GetArgs) != 0 {
			return "", WrongURI, nil
		}
		return raw, OK, nil
	}

	pairs, perr := parseQuery(query, queryUnescape)
	if perr != nil {
		return "", WrongURI, nil
	}
	if len(pairs) != len(conn.GetArgs) {
		return "", WrongURI, nil
	}
	for _, pair := range pairs {
		if !containsKV(conn.GetArgs, pair) {
			return "", WrongURI, nil
		}
	}
	return raw, OK, nil
}

func parseQuery(query string, unescape func(string) (string, error)) ([]KV, error) {
	var out []KV
	for _, part := range strings.Split(query, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		uk, err := unescape(k)
		if err != nil {
			return nil, err
		}
		uv, err := unescape(v)
		if err != nil {
			return nil, err
		}
		out = append(out, KV{Key: uk, Value: uv})
	}
	return out, nil
}

func containsKV(haystack []KV, needle KV) bool {
	for _, kv := range haystack {
		if kv.Key == needle.Key && kv.Value == needle.Value {
			return true
		}
	}
	return false
}

func resolveHA1(cfg Config) (string, error) {
	if cfg.Credential.IsPrehash {
		if len(cfg.Credential.PasswordOrHash) == 0 {
			return "", fmt.Errorf("verifier: prehash credential is empty")
		}
		return digest.HA1FromPrehash(cfg.Credential.PasswordOrHash), nil
	}
	return digest.HA1FromPassword(cfg.Algorithm, cfg.Username, cfg.Realm, cfg.Credential.Password), nil
}

// constantTimeEqual avoids a timing oracle on the final response
// comparison, per spec.md §9's explicit instruction that an
// implementation MUST NOT use strcmp-equivalent comparison here.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
