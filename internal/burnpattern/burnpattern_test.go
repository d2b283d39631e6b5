package burnpattern

import (
	"strings"
	"testing"
)

func TestMatch_StampsFillPattern(t *testing.T) {
	burnKey := strings.Repeat("22", 33)
	bp, ok := Match(burnKey)
	if !ok {
		t.Fatal("expected the all-0x22 fill to match the stamps burn template")
	}
	if bp.PatternType != "stamps_0x22_fill" {
		t.Errorf("got pattern type %q", bp.PatternType)
	}
}

func TestMatch_RealKeyDoesNotMatch(t *testing.T) {
	realKey := "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	if _, ok := Match(realKey); ok {
		t.Error("expected a normal-looking pubkey not to match any burn template")
	}
}

func TestDetectForOutput_ReportsCorrectIndex(t *testing.T) {
	realKey := "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	burnKey := strings.Repeat("22", 33)

	found := DetectForOutput("abc123", 2, []string{realKey, burnKey})
	if len(found) != 1 {
		t.Fatalf("got %d matches, want 1", len(found))
	}
	if found[0].PubkeyIndex != 1 || found[0].Vout != 2 || found[0].Txid != "abc123" {
		t.Errorf("got %+v", found[0])
	}
}
