package classify

import (
	"github.com/deadmanoz/p2ms-forensics/internal/burnpattern"
	"github.com/deadmanoz/p2ms-forensics/internal/spendability"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// omniExodusAddress is the Exodus address Omni Layer (formerly Mastercoin)
// transactions send a marker output to.
const omniExodusAddress = "1EXoDusjGwvnjZUyKkxZ4UHEf77z6A5S4P"

// OmniDetector implements spec §4.6's Omni contract: exclusive transport via
// an output to the Exodus address.
type OmniDetector struct{}

func (OmniDetector) Name() string { return "Omni" }

func (OmniDetector) Classify(ctx TxContext) (Verdict, bool) {
	if !hasOutputToAddress(ctx.AllOutputs, omniExodusAddress) {
		return Verdict{}, false
	}

	p2ms := filterP2MS(ctx.P2MSOutputs)
	var outputs []models.P2MSOutputClassification
	for _, out := range p2ms {
		meta, _ := out.MultisigInfo()
		result := spendability.AnalyseAssumedReal(meta.Pubkeys, burnpattern.IsBurnKey)
		outputs = append(outputs, buildOutputClassification(out, models.ProtocolOmniLayer, "",
			true, "Exodus address output detection", "", "", result))
	}

	return Verdict{
		Transaction: models.TransactionClassification{
			Txid:                   ctx.Tx.Txid,
			Protocol:               models.ProtocolOmniLayer,
			ProtocolSignatureFound: true,
			ClassificationMethod:   "Exodus address output detection",
		},
		Outputs: outputs,
	}, true
}

func hasOutputToAddress(outputs []models.TransactionOutput, address string) bool {
	for _, o := range outputs {
		if o.Address == address {
			return true
		}
	}
	return false
}
