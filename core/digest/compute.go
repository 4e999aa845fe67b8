// Package digest computes H(A1), H(A2), and the final response hash per
// RFC 2617 §3.2.2 / RFC 7616 §3.4 (spec.md §4.5). It is algorithm
// agnostic: the caller supplies the hashengine.Algorithm once.
package digest

import (
	"fmt"

	"github.com/nonceguard/digestauthd/core/hashengine"
)

var colon = []byte(":")

// HA1FromPassword computes hex(H(username:realm:password)), the form
// used when the credential store holds a plaintext password (rare; most
// deployments should prefer HA1FromPrehash).
func HA1FromPassword(algo hashengine.Algorithm, username, realm, password string) string {
	return hashengine.Sum(algo, []byte(username), colon, []byte(realm), colon, []byte(password))
}

// HA1FromPrehash hex-encodes a binary H(username:realm:password) the
// credential store already computed and stored, per spec.md §4.5's "H(A1)
// from pre-hash" form. No further hashing occurs — this is exactly what
// the teacher's SIP PasswordHash field already was.
func HA1FromPrehash(digestBytes []byte) string {
	return hashengine.Hex(digestBytes)
}

// QOP enumerates the supported quality-of-protection values. auth-int is
// an explicit Non-goal (spec.md §1) and has no QOP constant here.
type QOP int

const (
	QOPNone QOP = iota
	QOPAuth
)

// HA2 computes hex(H(method:uri)) per spec.md §4.5. Only qop=auth and the
// empty qop are supported on this path; auth-int is rejected upstream by
// core/verifier before HA2 is ever computed.
func HA2(algo hashengine.Algorithm, method, uri string) string {
	return hashengine.Sum(algo, []byte(method), colon, []byte(uri))
}

// Response computes the final digest response. With qop==QOPAuth:
// hex(H(ha1:nonce:nc:cnonce:qopLiteral:ha2)). With qop==QOPNone:
// hex(H(ha1:nonce:ha2)), ignoring nc/cnonce/qopLiteral entirely.
//
// nc is passed through as the caller's raw bytes (spec.md §4.5: "the
// exact bytes the client sent"), not reformatted from a parsed integer —
// a client that zero-pads nc differently than the server would produce
// a different (and correctly rejected) response otherwise. qopLiteral is
// likewise the caller's raw qop= bytes, not a fixed "auth" string: a
// server that accepts qop values case-insensitively must still hash
// whatever case the client actually sent, or a client sending "Auth"
// would be accepted by the match and then fail here.
func Response(algo hashengine.Algorithm, ha1, nonce, nc, cnonce string, qop QOP, qopLiteral, ha2 string) (string, error) {
	switch qop {
	case QOPAuth:
		if nc == "" || cnonce == "" {
			return "", fmt.Errorf("digest: qop=auth requires both nc and cnonce")
		}
		return hashengine.Sum(algo,
			[]byte(ha1), colon, []byte(nonce), colon, []byte(nc), colon,
			[]byte(cnonce), colon, []byte(qopLiteral), colon, []byte(ha2),
		), nil
	case QOPNone:
		return hashengine.Sum(algo, []byte(ha1), colon, []byte(nonce), colon, []byte(ha2)), nil
	default:
		return "", fmt.Errorf("digest: unsupported qop value")
	}
}
