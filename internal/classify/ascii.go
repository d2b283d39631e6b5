package classify

import (
	"encoding/hex"

	"github.com/deadmanoz/p2ms-forensics/internal/burnpattern"
	"github.com/deadmanoz/p2ms-forensics/internal/spendability"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

var (
	tb0001Signature   = []byte("TB0001")
	test01Signature   = []byte("TEST01")
	metroxmnSignature = []byte("METROXMN")

	// knownAsciiIdentifiers is an allowlist: only these signatures trigger
	// the generic AsciiIdentifierOther variant.
	knownAsciiIdentifiers = [][]byte{[]byte("NEWBCOIN"), []byte("PRVCY")}
)

// AsciiIdentifierProtocolsDetector recognises small historical protocols
// that embed a plain ASCII identifier directly in a P2MS pubkey slot with
// no obfuscation: TB0001, TEST01 and Metronotes (METROXMN), plus an
// allowlisted NEWBCOIN/PRVCY fallback.
type AsciiIdentifierProtocolsDetector struct{}

func (AsciiIdentifierProtocolsDetector) Name() string { return "AsciiIdentifierProtocols" }

func (d AsciiIdentifierProtocolsDetector) Classify(ctx TxContext) (Verdict, bool) {
	p2ms := filterP2MS(ctx.P2MSOutputs)

	if detectTB0001(p2ms) {
		return d.buildVerdict(ctx, p2ms, "AsciiIdentifierTB0001", true), true
	}
	if detectTEST01(p2ms) {
		return d.buildVerdict(ctx, p2ms, "AsciiIdentifierTEST01", true), true
	}
	if detectMetronotes(p2ms) {
		return d.buildVerdict(ctx, p2ms, "AsciiIdentifierMetronotes", true), true
	}
	if detectAsciiIdentifierOther(p2ms) {
		return d.buildVerdict(ctx, p2ms, "AsciiIdentifierOther", false), true
	}

	return Verdict{}, false
}

// hasSignatureAtOffset reports whether signature appears in data starting
// exactly at the given byte offset.
func hasSignatureAtOffset(data []byte, offset int, sig []byte) bool {
	if offset < 0 || offset+len(sig) > len(data) {
		return false
	}
	for i, b := range sig {
		if data[offset+i] != b {
			return false
		}
	}
	return true
}

// hasSignatureAtAnyOffset scans every offset in data for signature.
func hasSignatureAtAnyOffset(data []byte, sig []byte) bool {
	if len(sig) > len(data) {
		return false
	}
	for off := 0; off+len(sig) <= len(data); off++ {
		if hasSignatureAtOffset(data, off, sig) {
			return true
		}
	}
	return false
}

// containsSignatureWithinLimit scans only the first maxOffset bytes of data
// for signature, per the original allowlist scan's bounded search window.
func containsSignatureWithinLimit(data, sig []byte, maxOffset int) bool {
	limit := len(data)
	if limit > maxOffset {
		limit = maxOffset
	}
	for off := 0; off < limit; off++ {
		if off+len(sig) <= len(data) && hasSignatureAtOffset(data, off, sig) {
			return true
		}
	}
	return false
}

// detectTB0001 checks both pubkey slots of 1-of-2/1-of-3 P2MS outputs for
// the TB0001 signature at byte offset 1.
func detectTB0001(p2ms []models.TransactionOutput) bool {
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok || len(meta.Pubkeys) < 2 {
			continue
		}
		if meta.RequiredSigs != 1 || (meta.TotalPubkeys != 2 && meta.TotalPubkeys != 3) {
			continue
		}
		for _, pk := range meta.Pubkeys[:2] {
			raw, err := hex.DecodeString(pk)
			if err != nil {
				continue
			}
			if hasSignatureAtOffset(raw, 1, tb0001Signature) {
				return true
			}
		}
	}
	return false
}

// detectTEST01 checks only the first pubkey slot of 1-of-2/1-of-3 P2MS
// outputs for the TEST01 signature at byte offset 1.
func detectTEST01(p2ms []models.TransactionOutput) bool {
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok || len(meta.Pubkeys) == 0 {
			continue
		}
		if meta.RequiredSigs != 1 || (meta.TotalPubkeys != 2 && meta.TotalPubkeys != 3) {
			continue
		}
		raw, err := hex.DecodeString(meta.Pubkeys[0])
		if err != nil {
			continue
		}
		if hasSignatureAtOffset(raw, 1, test01Signature) {
			return true
		}
	}
	return false
}

// detectMetronotes checks the second pubkey slot of 1-of-2 P2MS outputs for
// METROXMN anywhere in the bytes.
func detectMetronotes(p2ms []models.TransactionOutput) bool {
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok || meta.RequiredSigs != 1 || meta.TotalPubkeys != 2 || len(meta.Pubkeys) < 2 {
			continue
		}
		raw, err := hex.DecodeString(meta.Pubkeys[1])
		if err != nil {
			continue
		}
		if hasSignatureAtAnyOffset(raw, metroxmnSignature) {
			return true
		}
	}
	return false
}

// detectAsciiIdentifierOther scans every pubkey of 1-of-2/1-of-3 P2MS
// outputs for an allowlisted signature within the first 20 bytes after the
// EC-point prefix byte.
func detectAsciiIdentifierOther(p2ms []models.TransactionOutput) bool {
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok || meta.RequiredSigs != 1 || (meta.TotalPubkeys != 2 && meta.TotalPubkeys != 3) {
			continue
		}
		for _, pk := range meta.Pubkeys {
			raw, err := hex.DecodeString(pk)
			if err != nil || len(raw) < 1 {
				continue
			}
			for _, sig := range knownAsciiIdentifiers {
				if containsSignatureWithinLimit(raw[1:], sig, 20) {
					return true
				}
			}
		}
	}
	return false
}

func (AsciiIdentifierProtocolsDetector) buildVerdict(ctx TxContext, p2ms []models.TransactionOutput, variant string, assumedReal bool) Verdict {
	method := "AsciiIdentifierProtocols P2MS with variant " + variant

	var outputs []models.P2MSOutputClassification
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok {
			continue
		}
		var result spendability.Result
		if assumedReal {
			result = spendability.AnalyseAssumedReal(meta.Pubkeys, burnpattern.IsBurnKey)
		} else {
			// NEWBCOIN/PRVCY mix one real signing pubkey with one invalid
			// data pubkey: generic analysis, not the Counterparty shortcut.
			result = spendability.AnalyseGeneric(meta.Pubkeys, burnpattern.IsBurnKey)
		}
		outputs = append(outputs, buildOutputClassification(out, models.ProtocolAsciiIdentifierProtocols, variant,
			true, method, "", "application/octet-stream", result))
	}

	return Verdict{
		Transaction: models.TransactionClassification{
			Txid:                   ctx.Tx.Txid,
			Protocol:               models.ProtocolAsciiIdentifierProtocols,
			Variant:                variant,
			ProtocolSignatureFound: true,
			ClassificationMethod:   method,
			ContentType:            "application/octet-stream",
		},
		Outputs: outputs,
	}
}
