// Package httpdigest supplies the "already-split authorization
// parameters" collaborator core/verifier takes as an external
// dependency: it reads the Authorization header off an *http.Request
// and tokenizes it per RFC 7230 §3.2.6 into the byte/quoted triples
// core/paramcodec expects, then wires core/verifier and core/challenge
// into a chi middleware.
package httpdigest

import (
	"strings"

	"github.com/nonceguard/digestauthd/core/paramcodec"
	"github.com/nonceguard/digestauthd/core/verifier"
)

// scan tokenizes the portion of an Authorization header value after
// the scheme token ("Digest ") into name=value pairs, honoring RFC
// 7230 token/quoted-string grammar: a value is either a bare token run
// up to the next comma, or a double-quoted string in which a backslash
// escapes the following byte. Unlike a regex-based parser, this walks
// the bytes once and never backtracks, so it never mis-splits a comma
// that appears inside a quoted value.
func scan(s string) map[string]paramcodec.Param {
	out := make(map[string]paramcodec.Param)
	i := 0
	n := len(s)

	skipSpace := func() {
		for i < n && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
	}

	for i < n {
		skipSpace()
		start := i
		for i < n && s[i] != '=' && s[i] != ',' {
			i++
		}
		name := strings.TrimSpace(s[start:i])
		if i >= n || s[i] != '=' {
			// malformed pair with no '='; skip to next comma
			for i < n && s[i] != ',' {
				i++
			}
			if i < n {
				i++
			}
			continue
		}
		i++ // consume '='
		skipSpace()

		var p paramcodec.Param
		if i < n && s[i] == '"' {
			i++ // opening quote
			valStart := i
			for i < n {
				if s[i] == '\\' && i+1 < n {
					i += 2
					continue
				}
				if s[i] == '"' {
					break
				}
				i++
			}
			p = paramcodec.Param{Value: []byte(s[valStart:i]), Quoted: true, Present: true}
			if i < n {
				i++ // closing quote
			}
		} else {
			valStart := i
			for i < n && s[i] != ',' {
				i++
			}
			val := strings.TrimRight(s[valStart:i], " \t")
			p = paramcodec.Param{Value: []byte(val), Quoted: false, Present: true}
		}

		if name != "" {
			out[strings.ToLower(name)] = p
		}

		skipSpace()
		if i < n && s[i] == ',' {
			i++
		}
	}

	return out
}

// schemePrefix is matched case-insensitively, per RFC 7235 §2.1's
// auth-scheme grammar.
const schemePrefix = "digest"

// Parse converts a raw Authorization header value into RequestParams.
// A missing header, or one whose scheme isn't "Digest", yields
// HasDigest: false — core/verifier treats that as WRONG_HEADER.
func Parse(headerValue string) verifier.RequestParams {
	trimmed := strings.TrimSpace(headerValue)
	if len(trimmed) < len(schemePrefix) || !strings.EqualFold(trimmed[:len(schemePrefix)], schemePrefix) {
		return verifier.RequestParams{}
	}
	rest := strings.TrimSpace(trimmed[len(schemePrefix):])
	fields := scan(rest)

	get := func(name string) paramcodec.Param { return fields[name] }
	return verifier.RequestParams{
		HasDigest: true,
		Username:  get("username"),
		Realm:     get("realm"),
		Nonce:     get("nonce"),
		CNonce:    get("cnonce"),
		QOP:       get("qop"),
		NC:        get("nc"),
		URI:       get("uri"),
		Response:  get("response"),
		Algorithm: get("algorithm"),
	}
}
