// Package burnpattern recognises pubkey byte patterns known to belong to
// fixed templates rather than any derivable private key — used by Bitcoin
// Stamps and similar protocols to force an output unspendable while still
// carrying data.
package burnpattern

import (
	"encoding/hex"

	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// template is one named, fixed-byte-repeat burn key shape.
type template struct {
	patternType string
	fill        byte
	confidence  models.BurnConfidence
}

// templates lists every known burn-key shape. Stamps' canonical burn key is
// every byte of the declared pubkey length set to 0x22; it is the only
// pattern documented in production Stamps data, so it carries High
// confidence. No other fixed-fill template has been observed in the source
// corpus, so there is nothing else to add here without guessing.
var templates = []template{
	{patternType: "stamps_0x22_fill", fill: 0x22, confidence: models.ConfidenceHigh},
}

// Match reports whether pubkeyHex matches a known burn template, and if so
// returns the BurnPattern row describing the match (vout/pubkeyIndex left
// zero for the caller to fill in).
func Match(pubkeyHex string) (models.BurnPattern, bool) {
	raw, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return models.BurnPattern{}, false
	}
	if len(raw) != 33 && len(raw) != 65 {
		return models.BurnPattern{}, false
	}
	for _, t := range templates {
		if allBytesEqual(raw, t.fill) {
			return models.BurnPattern{
				PatternType: t.patternType,
				PatternData: pubkeyHex,
				Confidence:  t.confidence,
			}, true
		}
	}
	return models.BurnPattern{}, false
}

// IsBurnKey is the boolean-only form of Match, passed directly as the
// `func(string) bool` predicate every internal/spendability.Analyse* call
// and internal/classify detector expects — stateless, so it tolerates being
// invoked any number of times per pubkey in any order.
func IsBurnKey(pubkeyHex string) bool {
	_, ok := Match(pubkeyHex)
	return ok
}

func allBytesEqual(b []byte, v byte) bool {
	for _, x := range b {
		if x != v {
			return false
		}
	}
	return true
}

// DetectForOutput scans every pubkey of a multisig output and returns one
// BurnPattern row per matching slot, with Txid/Vout/PubkeyIndex populated.
func DetectForOutput(txid string, vout uint32, pubkeys []string) []models.BurnPattern {
	var found []models.BurnPattern
	for i, pk := range pubkeys {
		if bp, ok := Match(pk); ok {
			bp.Txid = txid
			bp.Vout = vout
			bp.PubkeyIndex = i
			found = append(found, bp)
		}
	}
	return found
}
