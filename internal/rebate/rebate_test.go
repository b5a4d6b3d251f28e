package rebate_test

import (
	"testing"

	"github.com/blinklabs-io/cnftvend/internal/rebate"
)

func TestCalculateNoAssetsIsBaseCost(t *testing.T) {
	got := rebate.Calculate(0, 0, 0)
	want := rebate.Calculate(1, 0, 0)
	if got != want {
		t.Errorf("rebate with zero assets should ignore policy count: got %d, want %d", got, want)
	}
}

func TestCalculateMatchesWorkedExamples(t *testing.T) {
	// One asset with an 11-byte name ("WildTangz 1"): the canonical
	// 1.37928 ada minimum for a single-NFT output.
	if got := rebate.Calculate(1, 1, 11); got != 1_379_280 {
		t.Errorf("rebate(1,1,11) = %d, want 1379280", got)
	}
	// Two assets, 22 name bytes total.
	if got := rebate.Calculate(1, 2, 22); got != 1_482_726 {
		t.Errorf("rebate(1,2,22) = %d, want 1482726", got)
	}
}

func TestCalculateAdaOnlyFloor(t *testing.T) {
	if got := rebate.Calculate(0, 0, 0); got != 999_978 {
		t.Errorf("ada-only minimum = %d, want 999978", got)
	}
}

func TestCalculateMonotonicInNameLength(t *testing.T) {
	short := rebate.Calculate(1, 1, 5)
	long := rebate.Calculate(1, 1, 50)
	if long <= short {
		t.Errorf("longer asset names should not decrease the rebate: short=%d long=%d", short, long)
	}
}

func TestCalculateMonotonicInAssetCount(t *testing.T) {
	one := rebate.Calculate(1, 1, 11)
	two := rebate.Calculate(1, 2, 22)
	three := rebate.Calculate(1, 3, 33)
	if !(one < two && two < three) {
		t.Errorf("rebate should increase with asset count: %d, %d, %d", one, two, three)
	}
}

func TestCalculateWithInjectedFormula(t *testing.T) {
	flat := func(p, a, n int) uint64 { return 1_000_000 }
	got := rebate.CalculateWith(flat, 1, 5, 50)
	if got != 1_000_000 {
		t.Errorf("CalculateWith did not use injected formula: got %d", got)
	}
}
