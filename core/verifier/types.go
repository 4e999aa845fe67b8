package verifier

import "github.com/nonceguard/digestauthd/core/paramcodec"

// Status is the verification outcome taxonomy from spec.md §7. Exactly
// one value is ever returned; no state is thrown away silently.
type Status int

const (
	OK Status = iota
	WrongHeader
	WrongUsername
	WrongRealm
	NonceStale
	NonceWrong
	WrongURI
	ResponseWrong
	InternalError
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case WrongHeader:
		return "WRONG_HEADER"
	case WrongUsername:
		return "WRONG_USERNAME"
	case WrongRealm:
		return "WRONG_REALM"
	case NonceStale:
		return "NONCE_STALE"
	case NonceWrong:
		return "NONCE_WRONG"
	case WrongURI:
		return "WRONG_URI"
	case ResponseWrong:
		return "RESPONSE_WRONG"
	case InternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// LegacyStatus collapses the full taxonomy down to the three-value form
// spec.md §7 says legacy entry points expose.
type LegacyStatus int

const (
	LegacyNo LegacyStatus = iota
	LegacyYes
	LegacyInvalidNonce
)

// Legacy maps a full Status onto the collapsed legacy taxonomy.
func (s Status) Legacy() LegacyStatus {
	switch s {
	case OK:
		return LegacyYes
	case NonceStale, NonceWrong:
		return LegacyInvalidNonce
	default:
		return LegacyNo
	}
}

// RequestParams is the already-split Authorization header, the shape
// spec.md's DATA MODEL specifies: each field either absent or a
// (bytes, length, quoted?) triple. HasDigest is false when the request
// carried no "Authorization: Digest ..." header at all.
type RequestParams struct {
	HasDigest bool

	Username  paramcodec.Param
	Realm     paramcodec.Param
	Nonce     paramcodec.Param
	CNonce    paramcodec.Param
	QOP       paramcodec.Param
	NC        paramcodec.Param
	URI       paramcodec.Param
	Response  paramcodec.Param
	Algorithm paramcodec.Param
}

// KV is one key=value pair parsed out of a request URI's query string or
// supplied by the connection as a GET argument (spec.md §4.6 step 12,
// GET_ARGUMENT_KIND).
type KV struct {
	Key, Value string
}

// Connection is the subset of the out-of-scope "HTTP connection"
// collaborator (spec.md §1) the verifier needs: the request method, the
// already-unescaped request URL (no query string), and the parsed GET
// query arguments the daemon's transport layer extracted independently
// of the Authorization header's own uri= value.
type Connection struct {
	Method  string
	URL     string
	GetArgs []KV
}

// Credential is the resolved expected credential for the request's
// claimed username+realm, looked up by the caller (not by the verifier
// itself — spec.md's verify signature takes password_or_prehash
// directly) before calling Verify.
type Credential struct {
	// IsPrehash selects which of core/digest's two H(A1) constructors
	// applies: when true, PasswordOrHash holds the binary
	// H(username:realm:password); when false, the plaintext Password
	// field is used and PasswordOrHash is ignored.
	IsPrehash      bool
	PasswordOrHash []byte
	Password       string
}
