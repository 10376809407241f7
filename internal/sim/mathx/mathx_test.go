package mathx

import "testing"

func TestHashDeterministic(t *testing.T) {
	if Hash3(7, 1, 2, 3) != Hash3(7, 1, 2, 3) {
		t.Fatalf("Hash3 not deterministic")
	}
	if Hash3(7, 1, 2, 3) == Hash3(8, 1, 2, 3) {
		t.Fatalf("seed ignored")
	}
	if Hash2(1, -4, 9) == Hash2(1, 9, -4) {
		t.Fatalf("Hash2 symmetric in x,y")
	}
}

func TestUnitRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		u := Unit(Hash2(42, i, i*3))
		if u < 0 || u >= 1 {
			t.Fatalf("Unit out of range: %v", u)
		}
	}
}

func TestRollBounds(t *testing.T) {
	if Roll(1, 2, 3, 4, 0) {
		t.Fatalf("p=0 rolled true")
	}
	if !Roll(1, 2, 3, 4, 1) {
		t.Fatalf("p=1 rolled false")
	}
	hits := 0
	for i := 0; i < 4000; i++ {
		if Roll(99, i, 0, 0, 0.25) {
			hits++
		}
	}
	if hits < 800 || hits > 1200 {
		t.Fatalf("p=0.25 hit %d/4000", hits)
	}
}

func TestClamp01(t *testing.T) {
	if Clamp01(-1) != 0 || Clamp01(2) != 1 || Clamp01(0.3) != 0.3 {
		t.Fatalf("clamp mismatch")
	}
}
