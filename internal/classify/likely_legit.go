package classify

import (
	"github.com/deadmanoz/p2ms-forensics/internal/burnpattern"
	"github.com/deadmanoz/p2ms-forensics/internal/spendability"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// LikelyLegitimateMultisigDetector is the last detector before the Unknown
// fallback: transactions whose every pubkey is either a valid secp256k1
// point or all-zero null padding, consistent with ordinary wallet-generated
// bare multisig rather than data storage.
type LikelyLegitimateMultisigDetector struct{}

func (LikelyLegitimateMultisigDetector) Name() string { return "LikelyLegitimateMultisig" }

func (LikelyLegitimateMultisigDetector) Classify(ctx TxContext) (Verdict, bool) {
	p2ms := filterP2MS(ctx.P2MSOutputs)
	if len(p2ms) == 0 {
		return Verdict{}, false
	}

	sawNull := false
	sawDupe := false
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok {
			return Verdict{}, false
		}
		seen := make(map[string]bool, len(meta.Pubkeys))
		for _, pk := range meta.Pubkeys {
			if isNullPubkeyHex(pk) {
				sawNull = true
				continue
			}
			if !spendability.IsValidECPoint(pk) {
				return Verdict{}, false
			}
			if seen[pk] {
				sawDupe = true
			}
			seen[pk] = true
		}
	}

	variant := "LegitimateMultisig"
	switch {
	case sawNull:
		variant = "WithNullKey"
	case sawDupe:
		variant = "DupeKeys"
	}

	method := "LikelyLegitimateMultisig: all pubkeys valid EC points or null padding"
	var outputs []models.P2MSOutputClassification
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok {
			continue
		}
		result := spendability.AnalyseLegitimateMultisig(meta.Pubkeys, meta.RequiredSigs, burnpattern.IsBurnKey)
		outputs = append(outputs, buildOutputClassification(out, models.ProtocolLikelyLegitimateMultisig, variant,
			true, method, "", "application/octet-stream", result))
	}

	return Verdict{
		Transaction: models.TransactionClassification{
			Txid:                   ctx.Tx.Txid,
			Protocol:               models.ProtocolLikelyLegitimateMultisig,
			Variant:                variant,
			ProtocolSignatureFound: true,
			ClassificationMethod:   method,
			ContentType:            "application/octet-stream",
		},
		Outputs: outputs,
	}, true
}

func isNullPubkeyHex(pubkeyHex string) bool {
	if len(pubkeyHex) != 66 && len(pubkeyHex) != 130 {
		return false
	}
	for _, c := range pubkeyHex {
		if c != '0' {
			return false
		}
	}
	return true
}
