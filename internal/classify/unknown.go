package classify

import (
	"github.com/deadmanoz/p2ms-forensics/internal/burnpattern"
	"github.com/deadmanoz/p2ms-forensics/internal/spendability"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// UnknownDetector is the chain's mandatory fallback: it always classifies,
// since every transaction must end up with a row in
// transaction_classifications even when no protocol-specific shape was
// recognised.
type UnknownDetector struct{}

func (UnknownDetector) Name() string { return "Unknown" }

func (UnknownDetector) Classify(ctx TxContext) (Verdict, bool) {
	p2ms := filterP2MS(ctx.P2MSOutputs)
	method := "No protocol-specific pattern matched"

	var outputs []models.P2MSOutputClassification
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok {
			continue
		}
		result := spendability.AnalyseGeneric(meta.Pubkeys, burnpattern.IsBurnKey)
		outputs = append(outputs, buildOutputClassification(out, models.ProtocolUnknown, "",
			false, method, "", "application/octet-stream", result))
	}

	return Verdict{
		Transaction: models.TransactionClassification{
			Txid:                   ctx.Tx.Txid,
			Protocol:               models.ProtocolUnknown,
			ProtocolSignatureFound: false,
			ClassificationMethod:   method,
			ContentType:            "application/octet-stream",
		},
		Outputs: outputs,
	}, true
}
