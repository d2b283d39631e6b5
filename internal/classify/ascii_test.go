package classify

import (
	"encoding/json"
	"testing"

	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

func multisigOutput(txid string, vout uint32, requiredSigs, totalPubkeys int, pubkeys []string) models.TransactionOutput {
	meta, _ := json.Marshal(models.MultisigMeta{RequiredSigs: requiredSigs, TotalPubkeys: totalPubkeys, Pubkeys: pubkeys})
	return models.TransactionOutput{
		Txid:       txid,
		Vout:       vout,
		ScriptType: models.ScriptMultisig,
		Metadata:   meta,
	}
}

func TestAsciiIdentifierProtocols_TB0001(t *testing.T) {
	// byte 0 is an arbitrary EC-point prefix, bytes 1-6 spell TB0001.
	pk := "02" + "544230303031" + "0000000000000000000000000000000000000000000000000000"
	other := realPubkeyHex

	out := multisigOutput("tx1", 0, 1, 2, []string{pk, other})
	ctx := TxContext{
		Tx:          models.EnrichedTransaction{Txid: "tx1"},
		P2MSOutputs: []models.TransactionOutput{out},
	}

	verdict, ok := AsciiIdentifierProtocolsDetector{}.Classify(ctx)
	if !ok {
		t.Fatal("expected TB0001 signature to match")
	}
	if verdict.Transaction.Variant != "AsciiIdentifierTB0001" {
		t.Errorf("got variant %q, want AsciiIdentifierTB0001", verdict.Transaction.Variant)
	}
	if len(verdict.Outputs) != 1 {
		t.Fatalf("expected 1 output classification, got %d", len(verdict.Outputs))
	}
}

func TestAsciiIdentifierProtocols_NoMatch(t *testing.T) {
	out := multisigOutput("tx2", 0, 1, 2, []string{realPubkeyHex, realPubkeyHex})
	ctx := TxContext{
		Tx:          models.EnrichedTransaction{Txid: "tx2"},
		P2MSOutputs: []models.TransactionOutput{out},
	}

	if _, ok := AsciiIdentifierProtocolsDetector{}.Classify(ctx); ok {
		t.Error("expected no match for ordinary-looking pubkeys")
	}
}

// realPubkeyHex is the secp256k1 generator point, compressed.
const realPubkeyHex = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
