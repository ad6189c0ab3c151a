package availability

import "testing"

func TestSlots_Grid(t *testing.T) {
	// 09:00-12:00 with 30-minute slots.
	slots := Slots(540, 720, 30, nil)
	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
	for _, s := range slots {
		if s.EndMinute-s.StartMinute != 30 {
			t.Fatalf("slot %s is not 30 minutes", s)
		}
		if s.StartMinute < 540 || s.EndMinute > 720 {
			t.Fatalf("slot %s outside working hours", s)
		}
	}
	if slots[0].StartMinute != 540 || slots[5].EndMinute != 720 {
		t.Fatalf("unexpected bounds: first %s last %s", slots[0], slots[5])
	}
}

func TestSlots_PartialSlotDropped(t *testing.T) {
	// 09:00-09:50 with 30-minute slots: only 09:00-09:30 fits.
	slots := Slots(540, 590, 30, nil)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
}

func TestSlots_BusyExclusionFullInterval(t *testing.T) {
	// A booked window that does not align with the grid still suppresses
	// every slot it touches.
	busy := []Window{{StartMinute: 555, EndMinute: 585}} // 09:15-09:45
	slots := Slots(540, 660, 30, busy)
	// 09:00-09:30 and 09:30-10:00 both overlap; 10:00-10:30 survives.
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d: %v", len(slots), slots)
	}
	if slots[0].StartMinute != 600 {
		t.Fatalf("expected first free slot at 10:00, got %s", slots[0])
	}
}

func TestSlots_DeterministicAndOrdered(t *testing.T) {
	busy := []Window{{StartMinute: 600, EndMinute: 630}}
	a := Slots(540, 720, 30, busy)
	b := Slots(540, 720, 30, busy)
	if len(a) != len(b) {
		t.Fatalf("repeat call changed result: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("repeat call changed slot %d: %s vs %s", i, a[i], b[i])
		}
		if i > 0 && a[i].StartMinute <= a[i-1].StartMinute {
			t.Fatalf("slots not strictly ascending at %d", i)
		}
	}
}

func TestSlots_DegenerateInputs(t *testing.T) {
	if got := Slots(600, 600, 30, nil); got != nil {
		t.Fatalf("empty window should yield no slots, got %v", got)
	}
	if got := Slots(540, 720, 0, nil); got != nil {
		t.Fatalf("zero duration should yield no slots, got %v", got)
	}
}

func TestOverlaps_BackToBack(t *testing.T) {
	a := Window{StartMinute: 540, EndMinute: 570}
	b := Window{StartMinute: 570, EndMinute: 600}
	if Overlaps(a, b) {
		t.Fatal("back-to-back windows must not overlap")
	}
	c := Window{StartMinute: 555, EndMinute: 585}
	if !Overlaps(a, c) {
		t.Fatal("expected overlap")
	}
}

func TestParseAndFormatMinute(t *testing.T) {
	m, err := ParseMinute("09:30")
	if err != nil {
		t.Fatalf("ParseMinute failed: %v", err)
	}
	if m != 570 {
		t.Fatalf("expected 570, got %d", m)
	}
	if got := FormatMinute(570); got != "09:30" {
		t.Fatalf("expected 09:30, got %s", got)
	}
	if m, err := ParseMinute("9:05"); err != nil || m != 545 {
		t.Fatalf("single-digit hour should parse, got %d, %v", m, err)
	}
	for _, in := range []string{"25:00", "09:60", "garbage", "9", "09:30xyz", "+9:30", "09:-5", " 09:30", "ab:cd", ":30", "09:", "009:30"} {
		if _, err := ParseMinute(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
