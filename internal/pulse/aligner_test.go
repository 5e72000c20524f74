package pulse

import "testing"

func TestAlignerCapturesOffsetOnFirstEdge(t *testing.T) {
	loopNow := int64(250)
	a := NewAligner(func() int64 { return loopNow })

	// Source clock is far ahead of the daemon clock (e.g. time since kernel
	// boot). The first edge lands at the current daemon time.
	if got := a.Align(9_000_250); got != 250 {
		t.Errorf("first edge: got %d, want 250", got)
	}

	// Later edges keep the captured offset, not the current daemon time.
	loopNow = 99_999
	if got := a.Align(9_000_560); got != 560 {
		t.Errorf("second edge: got %d, want 560", got)
	}
}

func TestAlignerPreservesGaps(t *testing.T) {
	a := NewAligner(func() int64 { return 0 })

	first := a.Align(1_000_000)
	second := a.Align(1_000_010)
	if second-first != 10 {
		t.Errorf("gap: got %d, want 10", second-first)
	}
}
