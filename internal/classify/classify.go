// Package classify implements the Stage 3 priority-ordered protocol
// detector chain: each detector inspects an enriched transaction and either
// declines (returns ok=false) or returns a transaction-level verdict plus
// one per-output verdict for every P2MS output.
package classify

import (
	"github.com/deadmanoz/p2ms-forensics/internal/spendability"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// Verdict bundles one detector's transaction-level and per-output results.
type Verdict struct {
	Transaction models.TransactionClassification
	Outputs     []models.P2MSOutputClassification
}

// Detector is the contract every protocol-specific classifier implements.
// Input is everything the detector chain gathered for one transaction: the
// enriched summary, every output (for transport/marker detection across
// non-P2MS outputs), the multisig-only subset, detected burn patterns, and
// the funding (first-input) txid for ARC4-keyed protocols.
type Detector interface {
	Name() string
	Classify(ctx TxContext) (Verdict, bool)
}

// TxContext is the read-only view of one transaction a detector needs.
type TxContext struct {
	Tx            models.EnrichedTransaction
	AllOutputs    []models.TransactionOutput
	P2MSOutputs   []models.TransactionOutput
	BurnPatterns  []models.BurnPattern
	FirstInputTxid string
}

// filterP2MS retains only multisig-script outputs, mirroring the original
// pipeline's mandatory filter_p2ms_for_classification helper: every detector
// must run its per-output classification over this subset, never the raw
// output list, and a DB-level trigger backstops the same invariant.
func filterP2MS(outputs []models.TransactionOutput) []models.TransactionOutput {
	var out []models.TransactionOutput
	for _, o := range outputs {
		if o.ScriptType == models.ScriptMultisig {
			out = append(out, o)
		}
	}
	return out
}

// buildOutputClassification assembles one P2MSOutputClassification row from
// a spendability result, used by every detector to avoid repeating the
// count-field plumbing.
func buildOutputClassification(out models.TransactionOutput, protocol models.ProtocolType, variant string,
	sigFound bool, method string, metadata string, contentType string, result spendability.Result) models.P2MSOutputClassification {
	return models.P2MSOutputClassification{
		Txid:                   out.Txid,
		Vout:                   out.Vout,
		Protocol:               protocol,
		Variant:                variant,
		ProtocolSignatureFound: sigFound,
		ClassificationMethod:   method,
		AdditionalMetadata:     metadata,
		ContentType:            contentType,
		IsSpendable:            result.IsSpendable,
		SpendabilityReason:     result.Reason,
		RealPubkeyCount:        result.Counts.Real,
		BurnKeyCount:           result.Counts.Burn,
		DataKeyCount:           result.Counts.Data,
		NullKeyCount:           result.Counts.Null,
	}
}
