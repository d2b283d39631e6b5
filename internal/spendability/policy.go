// Package spendability derives a spendability verdict for a P2MS output
// from the composition of its pubkey slots: how many are real EC points,
// known burn templates, all-zero null padding, or opaque data.
package spendability

import "github.com/deadmanoz/p2ms-forensics/pkg/models"

// Result is the per-output spendability verdict the classifier chain
// attaches to a P2MSOutputClassification row.
type Result struct {
	IsSpendable bool
	Reason      models.SpendabilityReason
	Counts      Counts
}

// AnalyseStamps implements the Stamps-specific policy: Pure transport is
// always unspendable; Counterparty transport is unspendable only if a burn
// key is present, even alongside real keys — burn presence always wins.
func AnalyseStamps(pubkeys []string, transport models.StampsTransport, isBurnKey func(string) bool) Result {
	if len(pubkeys) == 0 {
		return Result{IsSpendable: false, Reason: models.ReasonAllBurnKeys}
	}

	switch transport {
	case models.StampsTransportPure:
		var burn, data uint8
		for _, pk := range pubkeys {
			if isBurnKey(pk) {
				burn++
			} else {
				data++ // Pure Stamps never carry real signing keys
			}
		}
		switch {
		case burn > 0 && data > 0:
			return Result{Reason: models.ReasonMixedBurnAndData, Counts: Counts{Burn: burn, Data: data}}
		case burn > 0:
			return Result{Reason: models.ReasonAllBurnKeys, Counts: Counts{Burn: burn}}
		default:
			return Result{Reason: models.ReasonAllDataKeys, Counts: Counts{Data: data}}
		}

	default: // models.StampsTransportCounterparty
		var burn, real, data uint8
		for _, pk := range pubkeys {
			switch ClassifyPubkey(pk, isBurnKey) {
			case ClassBurn:
				burn++
			case ClassReal:
				real++
			default:
				data++
			}
		}
		counts := Counts{Real: real, Burn: burn, Data: data}
		switch {
		case burn > 0 && (real > 0 || data > 0):
			return Result{Reason: models.ReasonMixedBurnAndData, Counts: counts}
		case burn > 0:
			return Result{Reason: models.ReasonAllBurnKeys, Counts: counts}
		case real > 0:
			return Result{IsSpendable: true, Reason: models.ReasonContainsRealPubkey, Counts: counts}
		default:
			return Result{Reason: models.ReasonAllDataKeys, Counts: counts}
		}
	}
}

// AnalyseAssumedReal handles Counterparty and Omni: both protocols always
// embed a real signing pubkey alongside data keys, but the optimisation is
// verified rather than trusted blindly — if no real key is actually found,
// the generic analysis below runs as a safety fallback.
func AnalyseAssumedReal(pubkeys []string, isBurnKey func(string) bool) Result {
	counts := CountPubkeys(pubkeys, isBurnKey)
	if counts.Real > 0 {
		return Result{IsSpendable: true, Reason: models.ReasonContainsRealPubkey, Counts: counts}
	}
	return AnalyseGeneric(pubkeys, isBurnKey)
}

// AnalyseLegitimateMultisig implements the null-padded-multisig special
// case: null keys are not real signatures, so if the remaining real keys
// can't meet the M threshold, the output is unspendable despite every
// pubkey being either a valid EC point or a null placeholder.
func AnalyseLegitimateMultisig(pubkeys []string, requiredSigs int, isBurnKey func(string) bool) Result {
	counts := CountPubkeys(pubkeys, isBurnKey)
	if counts.Null > 0 && int(counts.Real) < requiredSigs {
		return Result{Reason: models.ReasonInsufficientRealKeys, Counts: counts}
	}
	return Result{IsSpendable: true, Reason: models.ReasonAllValidECPoints, Counts: counts}
}

// AnalyseGeneric is the fallback policy for Unknown, DataStorage, PPk,
// Chancecoin, AsciiIdentifierProtocols and OpReturnSignalled: any real key
// makes the output spendable; otherwise burn presence and data-key mix
// decide the unspendable reason.
func AnalyseGeneric(pubkeys []string, isBurnKey func(string) bool) Result {
	if len(pubkeys) == 0 {
		return Result{Reason: models.ReasonAllDataKeys}
	}
	counts := CountPubkeys(pubkeys, isBurnKey)
	switch {
	case counts.Real > 0:
		return Result{IsSpendable: true, Reason: models.ReasonContainsRealPubkey, Counts: counts}
	case int(counts.Burn) == len(pubkeys):
		return Result{Reason: models.ReasonAllBurnKeys, Counts: counts}
	case counts.Burn > 0 && counts.Data > 0:
		return Result{Reason: models.ReasonMixedBurnAndData, Counts: counts}
	default:
		return Result{Reason: models.ReasonAllDataKeys, Counts: counts}
	}
}
