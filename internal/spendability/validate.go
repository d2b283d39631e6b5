package spendability

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
)

// KeyClass is the per-pubkey classification used to build the four-way
// count spec §8 invariant 4 requires: real + burn + data + null == total.
type KeyClass int

const (
	ClassReal KeyClass = iota
	ClassBurn
	ClassNull
	ClassData
)

func isNullPubkey(raw []byte) bool {
	if len(raw) != 33 && len(raw) != 65 {
		return false
	}
	for _, b := range raw {
		if b != 0x00 {
			return false
		}
	}
	return true
}

// isValidECPoint reports whether raw decodes to a point on the secp256k1
// curve for its declared compressed/uncompressed prefix.
func isValidECPoint(raw []byte) bool {
	_, err := btcec.ParsePubKey(raw)
	return err == nil
}

// IsValidECPoint is the hex-string-keyed form of isValidECPoint, exported
// for detectors (LikelyDataStorage, LikelyLegitimateMultisig) that need a
// bare EC-point check without the burn/null classification layered on top.
func IsValidECPoint(pubkeyHex string) bool {
	raw, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return false
	}
	return isValidECPoint(raw)
}

// ClassifyPubkey classifies a single hex-encoded pubkey slot. Burn-template
// matching (via isBurnKey) takes priority over null/EC-point checks because
// a burn key is itself a fixed byte pattern that could coincidentally also
// fail or pass EC validation depending on its prefix byte.
func ClassifyPubkey(pubkeyHex string, isBurnKey func(string) bool) KeyClass {
	raw, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return ClassData
	}
	if isBurnKey(pubkeyHex) {
		return ClassBurn
	}
	if isNullPubkey(raw) {
		return ClassNull
	}
	if isValidECPoint(raw) {
		return ClassReal
	}
	return ClassData
}

// Counts tallies the four key classes across one output's pubkeys.
type Counts struct {
	Real, Burn, Data, Null uint8
}

func CountPubkeys(pubkeys []string, isBurnKey func(string) bool) Counts {
	var c Counts
	for _, pk := range pubkeys {
		switch ClassifyPubkey(pk, isBurnKey) {
		case ClassReal:
			c.Real++
		case ClassBurn:
			c.Burn++
		case ClassNull:
			c.Null++
		default:
			c.Data++
		}
	}
	return c
}
