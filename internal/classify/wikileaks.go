package classify

import (
	"fmt"

	"github.com/deadmanoz/p2ms-forensics/internal/burnpattern"
	"github.com/deadmanoz/p2ms-forensics/internal/spendability"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

const wikileaksDonationAddress = "1HB5XMLmzFVj8ALj6mfBsbifRoD4miY36v"

// WikiLeaksCablegateDetector recognises the April 2013 WikiLeaks Cablegate
// archive upload: 132 transactions split between a downloader tool, an
// uploader tool, and 130 bulk-data transactions with 100+ P2MS outputs
// apiece, all sending 1 satoshi to a fixed WikiLeaks donation address.
type WikiLeaksCablegateDetector struct{}

func (WikiLeaksCablegateDetector) Name() string { return "WikiLeaksCablegate" }

func (WikiLeaksCablegateDetector) Classify(ctx TxContext) (Verdict, bool) {
	if !hasOutputToAddress(ctx.AllOutputs, wikileaksDonationAddress) {
		// Fallback heuristic when the donation output itself wasn't
		// captured: Cablegate data transactions carry 100+ P2MS outputs;
		// the downloader/uploader tool transactions carry 4-10.
		count := ctx.Tx.P2MSOutputsCount
		if !(count >= 100 || (count >= 4 && count <= 10)) {
			return Verdict{}, false
		}
	}

	txType := "data_transaction"
	switch {
	case ctx.Tx.Height == 229_991:
		txType = "downloader_tool"
	case ctx.Tx.Height <= 229_993:
		txType = "uploader_tool"
	}

	method := "WikiLeaks donation address detection"
	metadata := fmt.Sprintf(
		"WikiLeaks Cablegate %s | Donation address: %s | Height: %d | P2MS outputs: %d | Historical note: April 2013 upload, corrupted during blockchain storage",
		txType, wikileaksDonationAddress, ctx.Tx.Height, ctx.Tx.P2MSOutputsCount)

	p2ms := filterP2MS(ctx.P2MSOutputs)
	var outputs []models.P2MSOutputClassification
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok {
			continue
		}
		result := spendability.AnalyseGeneric(meta.Pubkeys, burnpattern.IsBurnKey)
		outputs = append(outputs, buildOutputClassification(out, models.ProtocolWikiLeaksCablegate, txType,
			true, method, metadata, "application/octet-stream", result))
	}

	return Verdict{
		Transaction: models.TransactionClassification{
			Txid:                   ctx.Tx.Txid,
			Protocol:               models.ProtocolWikiLeaksCablegate,
			Variant:                txType,
			ProtocolSignatureFound: true,
			ClassificationMethod:   method,
			AdditionalMetadata:     metadata,
			ContentType:            "application/octet-stream",
		},
		Outputs: outputs,
	}, true
}
