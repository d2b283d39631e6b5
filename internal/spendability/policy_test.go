package spendability

import (
	"strings"
	"testing"

	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// realPubkey is the secp256k1 generator point, compressed — a valid EC
// point for any test that needs one without caring which point.
const realPubkey = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

// invalidPubkey has a well-formed compressed prefix but an x-coordinate not
// on the curve.
const invalidPubkey = "02ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"

var nullPubkey = strings.Repeat("00", 33)

func noBurn(string) bool { return false }

func TestIsValidECPoint(t *testing.T) {
	if !IsValidECPoint(realPubkey) {
		t.Errorf("expected %s to be a valid EC point", realPubkey)
	}
	if IsValidECPoint(invalidPubkey) {
		t.Errorf("expected %s to be rejected as an invalid EC point", invalidPubkey)
	}
	if IsValidECPoint("not-hex") {
		t.Error("expected malformed hex to be rejected")
	}
}

func TestClassifyPubkey(t *testing.T) {
	burnOnce := func(pk string) bool { return pk == invalidPubkey }

	if got := ClassifyPubkey(realPubkey, noBurn); got != ClassReal {
		t.Errorf("real pubkey classified as %v", got)
	}
	if got := ClassifyPubkey(nullPubkey, noBurn); got != ClassNull {
		t.Errorf("null pubkey classified as %v", got)
	}
	if got := ClassifyPubkey(invalidPubkey, noBurn); got != ClassData {
		t.Errorf("invalid-curve pubkey classified as %v, want ClassData", got)
	}
	if got := ClassifyPubkey(invalidPubkey, burnOnce); got != ClassBurn {
		t.Errorf("burn template match should win over data classification, got %v", got)
	}
}

func TestAnalyseStamps_PureAlwaysUnspendable(t *testing.T) {
	result := AnalyseStamps([]string{realPubkey, invalidPubkey}, models.StampsTransportPure, noBurn)
	if result.IsSpendable {
		t.Error("Pure stamps transport must never be spendable even with a real-looking pubkey")
	}
	if result.Reason != models.ReasonAllDataKeys {
		t.Errorf("got reason %v, want AllDataKeys", result.Reason)
	}
}

func TestAnalyseStamps_CounterpartyBurnKeyWinsOverReal(t *testing.T) {
	isBurn := func(pk string) bool { return pk == invalidPubkey }
	result := AnalyseStamps([]string{realPubkey, invalidPubkey}, models.StampsTransportCounterparty, isBurn)
	if result.IsSpendable {
		t.Error("burn-key presence must make a Counterparty-transport stamp unspendable even alongside a real key")
	}
	if result.Reason != models.ReasonMixedBurnAndData {
		t.Errorf("got reason %v, want MixedBurnAndData", result.Reason)
	}
}

func TestAnalyseAssumedReal_FallsBackWithoutRealKey(t *testing.T) {
	result := AnalyseAssumedReal([]string{nullPubkey, invalidPubkey}, noBurn)
	if result.IsSpendable {
		t.Error("expected unspendable verdict when no real pubkey is present")
	}
}

func TestAnalyseLegitimateMultisig_NullPaddingBelowThreshold(t *testing.T) {
	// 2-of-3 with only one real key and two null slots can never reach the
	// required-signature threshold.
	result := AnalyseLegitimateMultisig([]string{realPubkey, nullPubkey, nullPubkey}, 2, noBurn)
	if result.IsSpendable {
		t.Error("expected unspendable when null padding leaves too few real keys for the threshold")
	}
	if result.Reason != models.ReasonInsufficientRealKeys {
		t.Errorf("got reason %v, want InsufficientRealKeys", result.Reason)
	}
}

func TestAnalyseGeneric_AllBurnKeys(t *testing.T) {
	isBurn := func(string) bool { return true }
	result := AnalyseGeneric([]string{invalidPubkey, invalidPubkey}, isBurn)
	if result.IsSpendable || result.Reason != models.ReasonAllBurnKeys {
		t.Errorf("got spendable=%v reason=%v, want unspendable/AllBurnKeys", result.IsSpendable, result.Reason)
	}
}
