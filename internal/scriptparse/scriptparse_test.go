package scriptparse

import (
	"encoding/json"
	"testing"

	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

const pubkeyA = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
const pubkeyB = "02c4d86352800755bcd50928065fda574c834860305c37e25ad24651c8779b92af"

func TestParse_BareMultisig1of2(t *testing.T) {
	script := "51" + "21" + pubkeyA + "21" + pubkeyB + "52" + "ae"
	parsed := Parse(script)

	if parsed.ScriptType != models.ScriptMultisig {
		t.Fatalf("got script type %v, want multisig", parsed.ScriptType)
	}
	var meta models.MultisigMeta
	if err := json.Unmarshal(parsed.Metadata, &meta); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if meta.RequiredSigs != 1 || meta.TotalPubkeys != 2 {
		t.Errorf("got %d-of-%d, want 1-of-2", meta.RequiredSigs, meta.TotalPubkeys)
	}
	if len(meta.Pubkeys) != 2 || meta.Pubkeys[0] != pubkeyA || meta.Pubkeys[1] != pubkeyB {
		t.Errorf("got pubkeys %v", meta.Pubkeys)
	}
}

func TestParse_MultisigWrongPushLengthDemotesToNonstandard(t *testing.T) {
	// A push of 10 bytes instead of 33/65 can't be a real pubkey slot.
	script := "51" + "0a" + "00112233445566778899" + "51" + "ae"
	parsed := Parse(script)
	if parsed.ScriptType != models.ScriptNonstandard {
		t.Fatalf("got script type %v, want nonstandard", parsed.ScriptType)
	}
}

func TestParse_OpReturnSplitsPrefixAndData(t *testing.T) {
	// OP_RETURN <push 12: "CNTRPRTY" + 4 data bytes>
	script := "6a" + "0c" + "434e545250525459" + "deadbeef"
	parsed := Parse(script)

	if parsed.ScriptType != models.ScriptOpReturn {
		t.Fatalf("got script type %v, want op_return", parsed.ScriptType)
	}
	var meta models.OpReturnMeta
	if err := json.Unmarshal(parsed.Metadata, &meta); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if meta.ProtocolPrefixHex+meta.DataHex != "434e545250525459deadbeef" {
		t.Errorf("got prefix=%s data=%s, want them to reassemble to the full payload", meta.ProtocolPrefixHex, meta.DataHex)
	}
}

func TestParse_P2WPKH(t *testing.T) {
	script := "0014" + "751e76e8199196d454941c45d1b3a323f1433bd6"
	parsed := Parse(script)
	if parsed.ScriptType != models.ScriptP2WPKH {
		t.Fatalf("got script type %v, want p2wpkh", parsed.ScriptType)
	}
	if parsed.Address == "" {
		t.Error("expected a decoded bech32 address")
	}
}
