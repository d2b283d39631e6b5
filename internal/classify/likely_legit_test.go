package classify

import (
	"testing"

	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

func TestLikelyLegitimateMultisig_AllValidKeys(t *testing.T) {
	out := multisigOutput("tx8", 0, 2, 3, []string{realPubkeyHex, realPubkeyHex2, realPubkeyHex3})
	ctx := TxContext{
		Tx:          models.EnrichedTransaction{Txid: "tx8"},
		P2MSOutputs: []models.TransactionOutput{out},
	}

	verdict, ok := LikelyLegitimateMultisigDetector{}.Classify(ctx)
	if !ok {
		t.Fatal("expected a match when every pubkey is a distinct valid EC point")
	}
	if verdict.Transaction.Variant != "LegitimateMultisig" {
		t.Errorf("got variant %q, want LegitimateMultisig", verdict.Transaction.Variant)
	}
	if !verdict.Outputs[0].IsSpendable {
		t.Error("expected output to be spendable with 2 real keys meeting a 2-of-3 threshold")
	}
}

func TestLikelyLegitimateMultisig_RejectsInvalidECPoint(t *testing.T) {
	invalidPubkey := "02ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	out := multisigOutput("tx9", 0, 1, 2, []string{realPubkeyHex, invalidPubkey})
	ctx := TxContext{
		Tx:          models.EnrichedTransaction{Txid: "tx9"},
		P2MSOutputs: []models.TransactionOutput{out},
	}

	if _, ok := LikelyLegitimateMultisigDetector{}.Classify(ctx); ok {
		t.Error("expected no match when a pubkey fails EC validation")
	}
}

// Two more generator-point multiples (2G and 3G, compressed), distinct from
// realPubkeyHex, used only to populate distinct-pubkey multisig fixtures.
const (
	realPubkeyHex2 = "02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"
	realPubkeyHex3 = "02f9308a019258c31049344f85f89d5229b531c845836f99b08601f113bce036f9"
)
