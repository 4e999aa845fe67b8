// Package hashengine provides a uniform façade over the hash algorithms
// HTTP Digest Authentication supports: MD5 (RFC 2617) and SHA-256
// (RFC 7616). Callers select an algorithm tag once and drive the engine
// through init/update/finalize without caring which concrete hash is
// underneath.
package hashengine

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// Algorithm identifies which digest function an Engine computes.
type Algorithm int

const (
	// Auto resolves to SHA256 in New, per RFC 7616's recommendation
	// that new deployments default to the stronger algorithm.
	Auto Algorithm = iota
	MD5
	SHA256
)

// String renders the algorithm the way it appears on the wire in the
// WWW-Authenticate header (algorithm=MD5 / algorithm=SHA-256).
func (a Algorithm) String() string {
	switch a {
	case MD5:
		return "MD5"
	case SHA256, Auto:
		return "SHA-256"
	default:
		return "unknown"
	}
}

// ParseAlgorithm maps a client- or config-supplied algorithm token to an
// Algorithm. The "-sess" suffix is recognized but not supported on the
// verification path (see core/verifier); callers that need to reject
// session variants should check IsSessionVariant separately. The
// configuration token "AUTO" resolves to SHA256.
func ParseAlgorithm(s string) (Algorithm, bool) {
	switch s {
	case "", "MD5":
		return MD5, true
	case "SHA-256", "AUTO":
		return SHA256, true
	case "MD5-sess", "SHA-256-sess":
		return MD5, false
	default:
		return 0, false
	}
}

// IsSessionVariant reports whether the raw algorithm token names a -sess
// variant. spec.md §9 treats -sess as detected-but-unsupported on the
// verification path.
func IsSessionVariant(s string) bool {
	switch s {
	case "MD5-sess", "SHA-256-sess":
		return true
	default:
		return false
	}
}

// Size returns the digest output size in bytes for the resolved algorithm.
func (a Algorithm) Size() int {
	switch a {
	case MD5:
		return 16
	case SHA256, Auto:
		return 32
	default:
		return 0
	}
}

// NonceLen is the wire length of a nonce produced for this algorithm:
// 2*D hex chars of the hash plus 12 hex chars of embedded timestamp.
func (a Algorithm) NonceLen() int {
	return 2*a.Size() + 12
}

// Engine is a one-shot hash computation. It is not safe for concurrent
// use; callers construct one Engine per H(A1)/H(A2)/response computation
// (or reuse via Reset, which is cheap since the underlying hash.Hash
// objects from crypto/md5 and crypto/sha256 are themselves cheap to
// allocate).
type Engine struct {
	algo Algorithm
	h    hash.Hash
	done bool
}

// New resolves algo (Auto -> SHA256) and returns a ready-to-use Engine.
func New(algo Algorithm) *Engine {
	resolved := algo
	if resolved == Auto {
		resolved = SHA256
	}
	e := &Engine{algo: resolved}
	e.reset()
	return e
}

func (e *Engine) reset() {
	switch e.algo {
	case MD5:
		e.h = md5.New()
	default:
		e.h = sha256.New()
	}
	e.done = false
}

// Algorithm returns the resolved algorithm this engine computes.
func (e *Engine) Algorithm() Algorithm { return e.algo }

// Update feeds bytes into the hash. Panics if called after Finalize
// without an intervening Reset — this is a programmer error, the same
// class of misuse the teacher's debug-assertion bits (setup/inited/
// digest_calculated) caught at runtime; here it is simply structural.
func (e *Engine) Update(p []byte) {
	if e.done {
		panic("hashengine: Update called after Finalize")
	}
	e.h.Write(p)
}

// Finalize returns the raw digest bytes. One-shot: call Reset to reuse
// the Engine for a new computation.
func (e *Engine) Finalize() []byte {
	e.done = true
	return e.h.Sum(nil)
}

// Reset prepares the engine for a new computation with the same algorithm.
func (e *Engine) Reset() {
	e.reset()
}

// Hex lowercase hex-encodes a digest produced by Finalize.
func Hex(digest []byte) string {
	return hex.EncodeToString(digest)
}

// Sum is a convenience wrapper: hash the concatenation of parts with a
// fresh Engine and return the lowercase hex digest. Every H(...)
// computation in core/digest and core/noncecodec goes through this.
func Sum(algo Algorithm, parts ...[]byte) string {
	e := New(algo)
	for _, p := range parts {
		e.Update(p)
	}
	return Hex(e.Finalize())
}

// DecodeHexUint64 parses exactly n lowercase-hex characters as a big
// endian unsigned integer. Used to pull the embedded timestamp out of a
// nonce's trailing 12 hex chars (n=12, 48 bits).
func DecodeHexUint64(s string, n int) (uint64, error) {
	if len(s) != n {
		return 0, fmt.Errorf("hashengine: want %d hex chars, got %d", n, len(s))
	}
	var v uint64
	for i := 0; i < n; i++ {
		c := s[i]
		var d uint64
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint64(c-'a') + 10
		default:
			return 0, fmt.Errorf("hashengine: invalid hex char %q", c)
		}
		v = v<<4 | d
	}
	return v, nil
}
