package classify

import (
	"testing"

	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

func TestClassifyTransaction_LegitimateMultisigBeforeUnknown(t *testing.T) {
	out := multisigOutput("tx3", 0, 2, 3, []string{realPubkeyHex, realPubkeyHex2, realPubkeyHex3})
	out.AmountSats = 50_000 // above dust, so LikelyDataStorage does not claim it
	ctx := TxContext{
		Tx:          models.EnrichedTransaction{Txid: "tx3"},
		P2MSOutputs: []models.TransactionOutput{out},
	}

	verdict := ClassifyTransaction(ctx, DefaultChain())
	// Three distinct valid EC points should be caught by
	// LikelyLegitimateMultisig before falling through to Unknown.
	if verdict.Transaction.Protocol != models.ProtocolLikelyLegitimateMultisig {
		t.Errorf("got protocol %v, want LikelyLegitimateMultisig", verdict.Transaction.Protocol)
	}
}

func TestClassifyTransaction_NoP2MSOutputsStillFallsToUnknown(t *testing.T) {
	ctx := TxContext{Tx: models.EnrichedTransaction{Txid: "tx4"}}
	verdict := ClassifyTransaction(ctx, DefaultChain())
	if verdict.Transaction.Protocol != models.ProtocolUnknown {
		t.Errorf("got protocol %v, want Unknown for a transaction with no P2MS outputs", verdict.Transaction.Protocol)
	}
}

func TestDefaultChain_Order(t *testing.T) {
	chain := DefaultChain()
	wantFirst := "Omni"
	wantLast := "Unknown"
	if chain[0].Name() != wantFirst {
		t.Errorf("first detector is %q, want %q", chain[0].Name(), wantFirst)
	}
	if chain[len(chain)-1].Name() != wantLast {
		t.Errorf("last detector is %q, want %q", chain[len(chain)-1].Name(), wantLast)
	}
	if len(chain) != 12 {
		t.Errorf("got %d detectors, want 12", len(chain))
	}
}
