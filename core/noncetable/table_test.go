package noncetable

import "testing"

func TestZeroSizeTableDisablesTracking(t *testing.T) {
	tb := New(0)
	if tb.TryReserve("anything", 0, 0) {
		t.Error("TryReserve should fail on a zero-size table")
	}
	if got := tb.Check("anything", 0, 1, 0); got != STALE {
		t.Errorf("Check on zero-size table = %v, want STALE", got)
	}
}

func TestReserveThenCheckOK(t *testing.T) {
	tb := New(4)
	nonce := "n1"
	if !tb.TryReserve(nonce, 1000, 1000) {
		t.Fatal("expected successful reservation")
	}
	if got := tb.Check(nonce, 1000, 1, 1000); got != OK {
		t.Errorf("first use = %v, want OK", got)
	}
}

func TestReplayIsStale(t *testing.T) {
	tb := New(4)
	nonce := "n1"
	tb.TryReserve(nonce, 1000, 1000)
	if got := tb.Check(nonce, 1000, 1, 1000); got != OK {
		t.Fatalf("first use = %v, want OK", got)
	}
	if got := tb.Check(nonce, 1000, 1, 1000); got != STALE {
		t.Errorf("replay = %v, want STALE", got)
	}
}

func TestOutOfOrderWithinWindow(t *testing.T) {
	tb := New(4)
	nonce := "n1"
	tb.TryReserve(nonce, 1000, 1000)

	if got := tb.Check(nonce, 1000, 5, 1000); got != OK {
		t.Fatalf("nc=5 = %v, want OK", got)
	}
	if got := tb.Check(nonce, 1000, 3, 1000); got != OK {
		t.Fatalf("nc=3 out of order = %v, want OK", got)
	}
	if got := tb.Check(nonce, 1000, 3, 1000); got != STALE {
		t.Errorf("nc=3 resend = %v, want STALE", got)
	}
	if got := tb.Check(nonce, 1000, 5, 1000); got != STALE {
		t.Errorf("nc=5 resend = %v, want STALE", got)
	}
}

func TestBackWindowBoundaryAtSixtyFour(t *testing.T) {
	tb := New(4)
	nonce := "n1"
	tb.TryReserve(nonce, 1000, 1000)
	tb.Check(nonce, 1000, 65, 1000)

	// back == 64 is exactly in-window (spec: "(slot.nc − nc) ≤ 64").
	if got := tb.Check(nonce, 1000, 1, 1000); got != OK {
		t.Errorf("nc at back=64 = %v, want OK", got)
	}
}

func TestJumpGreaterThanSixtyFourClearsMask(t *testing.T) {
	tb := New(4)
	nonce := "n1"
	tb.TryReserve(nonce, 1000, 1000)
	tb.Check(nonce, 1000, 1, 1000)
	if got := tb.Check(nonce, 1000, 200, 1000); got != OK {
		t.Fatalf("big jump = %v, want OK", got)
	}
	// Everything below nc-64 should now read as STALE (out of window).
	if got := tb.Check(nonce, 1000, 100, 1000); got != STALE {
		t.Errorf("nc=100 after jump to 200 = %v, want STALE", got)
	}
}

func TestOverflowGuard(t *testing.T) {
	tb := New(4)
	nonce := "n1"
	tb.TryReserve(nonce, 1000, 1000)
	if got := tb.Check(nonce, 1000, ^uint64(0)-1, 1000); got != STALE {
		t.Errorf("near-overflow nc = %v, want STALE", got)
	}
}

func TestOverflowGuardBoundary(t *testing.T) {
	tb := New(4)
	nonce := "n1"
	tb.TryReserve(nonce, 1000, 1000)
	// spec.md §4.3: reject nc >= 2^64-64 preemptively as STALE.
	if got := tb.Check(nonce, 1000, ^uint64(0)-64+1, 1000); got != STALE {
		t.Errorf("nc at 2^64-64 = %v, want STALE", got)
	}
}

func TestOverflowGuardJustBelowBoundary(t *testing.T) {
	tb := New(4)
	nonce := "n1"
	tb.TryReserve(nonce, 1000, 1000)
	// nc = 2^64-65 is one below the guard threshold and should be
	// admitted to normal nc-window logic, not rejected outright.
	if got := tb.Check(nonce, 1000, ^uint64(0)-65+1, 1000); got != OK {
		t.Errorf("nc at 2^64-65 = %v, want OK", got)
	}
}

func TestForgedNonceNeverSeenIsWrong(t *testing.T) {
	tb := New(4)
	if got := tb.Check("never-issued", 1000, 1, 1000); got != WRONG {
		t.Errorf("unknown nonce on empty slot = %v, want WRONG", got)
	}
}

func TestMismatchNewerWithinReuseWindowIsStale(t *testing.T) {
	tb := New(1)
	tb.TryReserve("first", 1000, 1000)
	tb.Check("first", 1000, 1, 1000) // nc becomes nonzero so reuse-window eviction doesn't apply here

	// "second" has never been reserved, so the slot still holds "first".
	// Its claimed timestamp is newer than "first"'s and within
	// ReuseTimeoutMS, as if it had been evicted out from under it.
	if got := tb.Check("second", 1000+ReuseTimeoutMS-1, 1, 1000); got != STALE {
		t.Errorf("newer-within-window mismatch = %v, want STALE", got)
	}
}

func TestMismatchOlderIsStale(t *testing.T) {
	tb := New(1)
	tb.TryReserve("first", 1000, 1000)
	tb.Check("first", 1000, 1, 1000)

	// "second" claims an older (or simultaneous) timestamp than the
	// slot's current occupant.
	if got := tb.Check("second", 500, 1, 1000); got != STALE {
		t.Errorf("older mismatch = %v, want STALE", got)
	}
}

func TestMismatchImplausiblyFarIsWrong(t *testing.T) {
	tb := New(1)
	tb.TryReserve("first", 1000, 1000)
	tb.Check("first", 1000, 1, 1000)

	// "second" claims a timestamp far enough past the slot's occupant
	// that no honest eviction race explains it.
	if got := tb.Check("second", 1000+ReuseTimeoutMS+1, 1, 1000); got != WRONG {
		t.Errorf("implausibly-far mismatch = %v, want WRONG", got)
	}
}

func TestTryReserveRefusesSameValueTwice(t *testing.T) {
	tb := New(4)
	nonce := "n1"
	if !tb.TryReserve(nonce, 1000, 1000) {
		t.Fatal("first reservation should succeed")
	}
	if tb.TryReserve(nonce, 1000, 1000) {
		t.Error("re-reserving the identical nonce should be refused")
	}
}

func TestTryReserveRefusesStealingFreshUnusedSlot(t *testing.T) {
	tb := New(1)
	tb.TryReserve("first", 1000, 1000)
	// Different nonce hashing to the same (only) slot, still within
	// REUSE_TIMEOUT and the first slot has never been used (nc==0).
	if tb.TryReserve("second", 1000, 1000+ReuseTimeoutMS-1) {
		t.Error("expected refusal: stealing a fresh, unused slot")
	}
}

func TestTryReserveAllowsOverwriteAfterReuseTimeout(t *testing.T) {
	tb := New(1)
	tb.TryReserve("first", 1000, 1000)
	if !tb.TryReserve("second", 1000, 1000+ReuseTimeoutMS+1) {
		t.Error("expected admission after REUSE_TIMEOUT has elapsed")
	}
}

func TestTryReserveOverwritesUsedSlotRegardlessOfAge(t *testing.T) {
	tb := New(1)
	tb.TryReserve("first", 1000, 1000)
	tb.Check("first", 1000, 1, 1000) // nc becomes nonzero: "used"
	if !tb.TryReserve("second", 1000, 1001) {
		t.Error("a used slot should be reclaimable immediately")
	}
}

func TestOccupancy(t *testing.T) {
	tb := New(4)
	used, capacity, _ := tb.Occupancy(0)
	if used != 0 || capacity != 4 {
		t.Fatalf("empty table occupancy = %d/%d, want 0/4", used, capacity)
	}
	tb.TryReserve("n1", 500, 1000)
	used, _, oldest := tb.Occupancy(1500)
	if used != 1 {
		t.Errorf("used = %d, want 1", used)
	}
	if oldest != 1000 {
		t.Errorf("oldestAgeMS = %d, want 1000", oldest)
	}
}

func TestSweepMatchesOccupancy(t *testing.T) {
	tb := New(4)
	tb.TryReserve("n1", 500, 1000)
	wantUsed, wantCapacity, wantOldest := tb.Occupancy(1500)
	gotUsed, gotCapacity, gotOldest := tb.Sweep(1500)
	if gotUsed != wantUsed || gotCapacity != wantCapacity || gotOldest != wantOldest {
		t.Errorf("Sweep() = (%d, %d, %d), want (%d, %d, %d)", gotUsed, gotCapacity, gotOldest, wantUsed, wantCapacity, wantOldest)
	}
}
