// Package noncecodec generates and parses the composite nonce described
// in spec.md §4.2: hex(H(ts‖":"‖method‖":"‖seed‖":"‖uri‖":"‖realm))
// followed by 12 hex chars of a 48-bit millisecond timestamp.
package noncecodec

import (
	"fmt"

	"github.com/nonceguard/digestauthd/core/hashengine"
)

// tsBE48 encodes the low 48 bits of ms as 6 big-endian bytes.
func tsBE48(ms int64) []byte {
	u := uint64(ms) & 0xFFFFFFFFFFFF
	return []byte{
		byte(u >> 40), byte(u >> 32), byte(u >> 24),
		byte(u >> 16), byte(u >> 8), byte(u),
	}
}

var colon = []byte(":")

// Generate produces a fresh nonce for the given challenge context.
// tsMS is the monotonic millisecond timestamp to embed; seed is the
// daemon-scoped random secret mixed into the hash so a nonce cannot be
// forged without server-internal state.
func Generate(algo hashengine.Algorithm, tsMS int64, method, seed, uri, realm string) string {
	ts := tsBE48(tsMS)
	digest := hashengine.Sum(algo, ts, colon, []byte(method), colon, []byte(seed), colon, []byte(uri), colon, []byte(realm))
	return digest + hexBE48(ts)
}

func hexBE48(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[2*i] = hexDigits[c>>4]
		out[2*i+1] = hexDigits[c&0xF]
	}
	return string(out)
}

// ExtractTimestamp validates that nonce has one of the two valid length
// classes (MD5 or SHA-256) and returns the embedded millisecond
// timestamp. Any malformed input is rejected per spec.md §4.2.
func ExtractTimestamp(nonce string) (tsMS int64, algo hashengine.Algorithm, err error) {
	switch len(nonce) {
	case hashengine.MD5.NonceLen():
		algo = hashengine.MD5
	case hashengine.SHA256.NonceLen():
		algo = hashengine.SHA256
	default:
		return 0, 0, fmt.Errorf("noncecodec: nonce length %d matches no known algorithm class", len(nonce))
	}

	tail := nonce[len(nonce)-12:]
	v, err := hashengine.DecodeHexUint64(tail, 12)
	if err != nil {
		return 0, 0, fmt.Errorf("noncecodec: bad timestamp suffix: %w", err)
	}
	return int64(v), algo, nil
}

// Verify recomputes the expected nonce for (tsMS, method, seed, uri, realm)
// under algo and compares it byte-for-byte against nonce. This binds the
// nonce to the method+URI+realm it was issued for, per spec.md §4.2.
func Verify(algo hashengine.Algorithm, nonce string, tsMS int64, method, seed, uri, realm string) bool {
	expected := Generate(algo, tsMS, method, seed, uri, realm)
	return expected == nonce
}

// ModSub48 computes (a - b) as a signed difference modulo 2^48, choosing
// the representative in (-2^47, 2^47]. This is the wrap-aware subtraction
// spec.md §4.3 requires when comparing nonce timestamps near the 48-bit
// rollover boundary.
func ModSub48(a, b int64) int64 {
	const mod = int64(1) << 48
	const half = mod / 2
	d := (a - b) % mod
	if d < 0 {
		d += mod
	}
	if d > half {
		d -= mod
	}
	return d
}
