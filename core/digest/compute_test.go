package digest

import (
	"testing"

	"github.com/nonceguard/digestauthd/core/hashengine"
)

// TestRFC2617Vector reproduces the worked example from RFC 2617 §3.5,
// also quoted in spec.md §8 scenario 1.
func TestRFC2617Vector(t *testing.T) {
	ha1 := HA1FromPassword(hashengine.MD5, "Mufasa", "testrealm@host.com", "Circle Of Life")
	if ha1 != "939e7578ed9e3c518a452acee763bce9" {
		t.Fatalf("HA1 = %s, want 939e7578ed9e3c518a452acee763bce9", ha1)
	}

	ha2 := HA2(hashengine.MD5, "GET", "/dir/index.html")

	resp, err := Response(hashengine.MD5, ha1, "dcd98b7102dd2f0e8b11d0f600bfb0c093",
		"00000001", "0a4f113b", QOPAuth, "auth", ha2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "6629fae49393a05397450978507c4ef1" {
		t.Errorf("response = %s, want 6629fae49393a05397450978507c4ef1", resp)
	}
}

func TestResponseWithoutQOP(t *testing.T) {
	ha1 := HA1FromPassword(hashengine.MD5, "alice", "realm", "secret")
	ha2 := HA2(hashengine.MD5, "GET", "/x")
	resp, err := Response(hashengine.MD5, ha1, "nonce123", "", "", QOPNone, "", ha2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp) != hashengine.MD5.Size()*2 {
		t.Errorf("response length = %d, want %d", len(resp), hashengine.MD5.Size()*2)
	}
}

func TestResponseAuthRequiresNCAndCNonce(t *testing.T) {
	if _, err := Response(hashengine.MD5, "ha1", "nonce", "", "cnonce", QOPAuth, "auth", "ha2"); err == nil {
		t.Error("expected error when nc is missing under qop=auth")
	}
	if _, err := Response(hashengine.MD5, "ha1", "nonce", "1", "", QOPAuth, "auth", "ha2"); err == nil {
		t.Error("expected error when cnonce is missing under qop=auth")
	}
}

func TestHA1FromPrehashIsPlainHexEncode(t *testing.T) {
	raw := []byte{0x93, 0x9e, 0x75, 0x78}
	got := HA1FromPrehash(raw)
	if got != "939e7578" {
		t.Errorf("got %s, want 939e7578", got)
	}
}

func TestResponseHashesTheLiteralQOPBytes(t *testing.T) {
	ha1 := HA1FromPassword(hashengine.MD5, "u", "r", "p")
	ha2 := HA2(hashengine.MD5, "GET", "/")
	lower, _ := Response(hashengine.MD5, ha1, "n", "00000001", "c", QOPAuth, "auth", ha2)
	mixed, _ := Response(hashengine.MD5, ha1, "n", "00000001", "c", QOPAuth, "Auth", ha2)
	if lower == mixed {
		t.Error("Response must hash the caller's literal qop bytes, not a fixed \"auth\" string")
	}
}

func TestNCPassedThroughVerbatim(t *testing.T) {
	ha1 := HA1FromPassword(hashengine.MD5, "u", "r", "p")
	ha2 := HA2(hashengine.MD5, "GET", "/")
	a, _ := Response(hashengine.MD5, ha1, "n", "00000001", "c", QOPAuth, "auth", ha2)
	b, _ := Response(hashengine.MD5, ha1, "n", "1", "c", QOPAuth, "auth", ha2)
	if a == b {
		t.Error("differently-formatted nc values must produce different responses")
	}
}
