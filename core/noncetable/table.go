// Package noncetable implements the bounded nonce/nonce-count replay
// defense described in spec.md §3 and §4.3: a fixed-size array of slots,
// each holding one active nonce, its highest-seen nc, and a 64-bit
// sliding window recording which of the 64 nc values below that high
// water mark have already been consumed.
package noncetable

import (
	"sync"
)

// Result classifies the outcome of a Check call.
type Result int

const (
	OK Result = iota
	STALE
	WRONG
)

func (r Result) String() string {
	switch r {
	case OK:
		return "OK"
	case STALE:
		return "STALE"
	case WRONG:
		return "WRONG"
	default:
		return "UNKNOWN"
	}
}

// ReuseTimeoutMS is the minimum age (spec.md §4.3, REUSE_TIMEOUT) an
// unused slot (nc==0) must reach before it is eligible to be reclaimed
// by a different nonce hashing to the same slot.
const ReuseTimeoutMS = 30_000

// JumpbackMaxMS bounds the cosmetic backward jitter applied to a retried
// reservation timestamp (spec.md §4.3, DAUTH_JUMPBACK_MAX).
const JumpbackMaxMS = 127

// maxNC guards against nc values close enough to overflow that
// nc - slot.nc could wrap; spec.md §4.3 "Overflow guard" rejects
// nc >= 2^64-64 preemptively as STALE, and maxNC is exactly that
// threshold (2^64-1-63).
const maxNC = ^uint64(0) - 63

// slot holds one active nonce and its replay-tracking state. The zero
// value is a free slot (empty nonce).
type slot struct {
	nonce string
	ts    int64 // embedded timestamp of `nonce`, cached to avoid re-parsing
	nc    uint64
	nmask uint64
}

func (s *slot) empty() bool { return s.nonce == "" }

// Table is a fixed-capacity, coarsely-locked nonce-nc tracker. The zero
// value is not usable; construct with New.
type Table struct {
	mu    sync.Mutex
	slots []slot
}

// New creates a table with n slots. n may be 0, which disables nc
// tracking entirely: every TryReserve fails and every Check returns
// STALE, exactly as spec.md's boundary case for N=0 requires.
func New(n int) *Table {
	return &Table{slots: make([]slot, n)}
}

// Size returns the table's slot capacity (N).
func (t *Table) Size() int {
	return len(t.slots)
}

// fastHash is the 32-bit rotate-xor keyed rolling hash spec.md §3
// specifies for bucketing. It is explicitly non-cryptographic —
// correctness of the table never depends on collision resistance here,
// only on even-ish distribution.
func fastHash(nonce string, key uint32) uint32 {
	h := key
	for i := 0; i < len(nonce); i++ {
		h = (h<<5 | h>>27) ^ uint32(nonce[i])
	}
	return h
}

// bucketKey is the fixed starting value of fastHash. It is the same for
// every Table, so a given nonce always lands on the same index in tables
// of the same size; it has no security role, unlike the nonce hash
// itself in core/noncecodec.
const bucketKey = 0x9e3779b9

func (t *Table) index(nonce string) int {
	n := len(t.slots)
	if n == 0 {
		return 0
	}
	return int(fastHash(nonce, bucketKey) % uint32(n))
}

// TryReserve admits a freshly generated nonce into the table so that its
// first client use can be nc-tracked. now is the current monotonic
// millisecond clock reading (used only to judge whether an unused slot's
// prior occupant is still "fresh" per spec.md §4.3). newTS is the
// timestamp newNonce was generated with; the caller passes it so it need
// not be parsed back out of the nonce under the lock.
//
// Returns false if the slot could not be admitted; callers should retry
// once with a perturbed timestamp per spec.md §4.3, and proceed
// unregistered after a second refusal — the unregistered nonce simply
// fails its first Check with STALE rather than OK, making the failure
// mode safe rather than fatal.
func (t *Table) TryReserve(newNonce string, newTS, now int64) bool {
	if len(t.slots) == 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.slots[t.index(newNonce)]
	switch {
	case s.empty():
		// fall through to admit
	case s.nonce == newNonce:
		return false // an in-flight challenge already holds this exact value
	case s.nc == 0 && withinReuseWindow(s.ts, now):
		return false // still-fresh unused nonce; don't steal it
	}

	s.nonce = newNonce
	s.ts = newTS
	s.nc = 0
	s.nmask = 0
	return true
}

func withinReuseWindow(slotTS, now int64) bool {
	// spec.md expresses this as "embedded timestamp is within
	// REUSE_TIMEOUT of now"; ages are always forward in practice, but we
	// use the wrap-aware distance so a slot minted just before a 48-bit
	// rollover isn't spuriously treated as ancient.
	d := modSub48(now, slotTS)
	if d < 0 {
		d = -d
	}
	return d <= ReuseTimeoutMS
}

// Check validates a (nonce, nc) pair against the table per spec.md
// §4.3's ordered rule list, and on success advances the slot's
// replay-tracking state. Exactly one concurrent Check for a given
// (nonce, nc) pair ever returns OK (spec.md P2); the mutex serializes
// the race.
//
// nonceTS is the timestamp embedded in nonce (already validated and
// parsed by the caller). now is not consulted: the mismatch branch
// compares nonceTS against the occupant's own timestamp only.
func (t *Table) Check(nonce string, nonceTS int64, nc uint64, now int64) Result {
	if len(t.slots) == 0 {
		return STALE
	}
	if nc >= maxNC {
		return STALE
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.slots[t.index(nonce)]

	if s.nonce != nonce {
		return t.checkMismatch(s, nonceTS, now)
	}
	return checkMatch(s, nc)
}

func (t *Table) checkMismatch(s *slot, nonceTS, now int64) Result {
	if s.empty() {
		// The server never generated this nonce (or generated it while
		// the table was disabled). Attack signal.
		return WRONG
	}

	// Slot holds some other nonce. Judge by relative timestamp age: a
	// newer-or-older occupant both mean our nonce was evicted or is
	// itself stale; only a slot whose occupant looks implausibly
	// unrelated in time counts as an attack signal.
	diff := modSub48(nonceTS, s.ts)
	switch {
	case diff > 0 && diff <= ReuseTimeoutMS:
		// Our nonce claims to be newer than the occupant and within the
		// window that would make that plausible — the slot must have
		// been reassigned out from under us before first use.
		return STALE
	case diff <= 0:
		// Our nonce is older (or simultaneous) — superseded by a later
		// challenge.
		return STALE
	default:
		// Our nonce claims to be newer than the occupant by more than
		// ReuseTimeoutMS, too far for an honest eviction race: should
		// have been recorded but isn't.
		return WRONG
	}
}

func checkMatch(s *slot, nc uint64) Result {
	switch {
	case nc > s.nc:
		jump := nc - s.nc
		if jump >= 64 {
			s.nmask = 0
		} else {
			s.nmask <<= jump
			s.nmask |= 1 << (jump - 1)
		}
		s.nc = nc
		return OK

	case nc == s.nc:
		return STALE

	default: // nc < s.nc
		back := s.nc - nc
		if back > 64 {
			return STALE
		}
		bit := uint64(1) << (back - 1)
		if s.nmask&bit != 0 {
			return STALE // already consumed
		}
		s.nmask |= bit
		return OK
	}
}

// modSub48 mirrors core/noncecodec.ModSub48 without importing it, to
// keep this package free of a dependency edge the spec doesn't call
// for; the 48-bit modular arithmetic is a data-model property of the
// nonce timestamp encoding, not something noncecodec should own alone.
func modSub48(a, b int64) int64 {
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

// Sweep is Occupancy under the name an operator-facing periodic job calls
// it by; it takes the same coarse lock as every other table access,
// holds it for one O(N) pass over the slots, and never mutates a slot.
func (t *Table) Sweep(now int64) (used, capacity int, oldestAgeMS int64) {
	return t.Occupancy(now)
}

// Occupancy reports how many of the table's slots currently hold a
// nonce, for observability (the periodic sweep in cmd/digestauthd), and
// the age in milliseconds of the oldest occupied slot's timestamp
// relative to now. oldestAgeMS is 0 if no slot is occupied.
func (t *Table) Occupancy(now int64) (used, capacity int, oldestAgeMS int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	capacity = len(t.slots)
	var oldestTS int64
	first := true
	for i := range t.slots {
		s := &t.slots[i]
		if s.empty() {
			continue
		}
		used++
		if first || s.ts < oldestTS {
			oldestTS = s.ts
			first = false
		}
	}
	if used > 0 {
		oldestAgeMS = now - oldestTS
	}
	return used, capacity, oldestAgeMS
}
