package classify

import (
	"github.com/deadmanoz/p2ms-forensics/internal/burnpattern"
	"github.com/deadmanoz/p2ms-forensics/internal/spendability"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// Dust thresholds, matching Bitcoin Core's relay policy split by
// destination type: non-segwit (P2PKH/P2SH/bare multisig) dust is 546
// sats, segwit destinations drop to 294 sats at the same fee rate.
const (
	dustThresholdNonSegwit = 546
	dustThresholdSegwit    = 294
)

func dustThresholdFor(scriptType models.ScriptType) uint64 {
	switch scriptType {
	case models.ScriptP2WPKH, models.ScriptP2WSH, models.ScriptP2TR:
		return dustThresholdSegwit
	default:
		return dustThresholdNonSegwit
	}
}

// LikelyDataStorageDetector is a heuristic bucket for P2MS outputs that
// don't match a known protocol but show shapes typical of opportunistic
// data storage: an invalid EC point anywhere, an unusually high P2MS
// output count, or dust-level amounts.
type LikelyDataStorageDetector struct{}

func (LikelyDataStorageDetector) Name() string { return "LikelyDataStorage" }

func (LikelyDataStorageDetector) Classify(ctx TxContext) (Verdict, bool) {
	p2ms := filterP2MS(ctx.P2MSOutputs)
	if len(p2ms) == 0 {
		return Verdict{}, false
	}

	allValid := true
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok {
			allValid = false
			continue
		}
		for _, pk := range meta.Pubkeys {
			if !spendability.IsValidECPoint(pk) {
				allValid = false
			}
		}
	}

	var variant, method string
	switch {
	case !allValid:
		variant, method = "InvalidECPoint", "LikelyDataStorage: pubkey fails secp256k1 validation"
	case len(p2ms) >= 5:
		variant, method = "HighOutputCount", "LikelyDataStorage: high P2MS output count"
	default:
		dustThreshold := dustThresholdFor(p2ms[0].ScriptType)
		allDust := true
		for _, out := range p2ms {
			if out.AmountSats > dustThreshold {
				allDust = false
				break
			}
		}
		if allDust {
			variant, method = "DustAmount", "LikelyDataStorage: all P2MS outputs below dust threshold"
		} else {
			return Verdict{}, false
		}
	}

	var outputs []models.P2MSOutputClassification
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok {
			continue
		}
		result := spendability.AnalyseGeneric(meta.Pubkeys, burnpattern.IsBurnKey)
		outputs = append(outputs, buildOutputClassification(out, models.ProtocolLikelyDataStorage, variant,
			true, method, "", "application/octet-stream", result))
	}

	return Verdict{
		Transaction: models.TransactionClassification{
			Txid:                   ctx.Tx.Txid,
			Protocol:               models.ProtocolLikelyDataStorage,
			Variant:                variant,
			ProtocolSignatureFound: true,
			ClassificationMethod:   method,
			ContentType:            "application/octet-stream",
		},
		Outputs: outputs,
	}, true
}
