package classify

import (
	"testing"

	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

func TestLikelyDataStorage_InvalidECPoint(t *testing.T) {
	invalidPubkey := "02ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	out := multisigOutput("tx5", 0, 1, 2, []string{realPubkeyHex, invalidPubkey})
	ctx := TxContext{
		Tx:          models.EnrichedTransaction{Txid: "tx5"},
		P2MSOutputs: []models.TransactionOutput{out},
	}

	verdict, ok := LikelyDataStorageDetector{}.Classify(ctx)
	if !ok {
		t.Fatal("expected a match for an invalid EC point")
	}
	if verdict.Transaction.Variant != "InvalidECPoint" {
		t.Errorf("got variant %q, want InvalidECPoint", verdict.Transaction.Variant)
	}
}

func TestLikelyDataStorage_DustAmount(t *testing.T) {
	out := multisigOutput("tx6", 0, 1, 2, []string{realPubkeyHex, realPubkeyHex})
	out.AmountSats = 500
	out.ScriptType = models.ScriptMultisig
	ctx := TxContext{
		Tx:          models.EnrichedTransaction{Txid: "tx6"},
		P2MSOutputs: []models.TransactionOutput{out},
	}

	verdict, ok := LikelyDataStorageDetector{}.Classify(ctx)
	if !ok {
		t.Fatal("expected a match for a dust-amount output")
	}
	if verdict.Transaction.Variant != "DustAmount" {
		t.Errorf("got variant %q, want DustAmount", verdict.Transaction.Variant)
	}
}

func TestLikelyDataStorage_NoMatchForOrdinaryOutput(t *testing.T) {
	out := multisigOutput("tx7", 0, 1, 2, []string{realPubkeyHex, realPubkeyHex})
	out.AmountSats = 50_000
	ctx := TxContext{
		Tx:          models.EnrichedTransaction{Txid: "tx7"},
		P2MSOutputs: []models.TransactionOutput{out},
	}

	if _, ok := LikelyDataStorageDetector{}.Classify(ctx); ok {
		t.Error("expected no match for a well-formed, non-dust output")
	}
}
