package classify

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/deadmanoz/p2ms-forensics/internal/burnpattern"
	"github.com/deadmanoz/p2ms-forensics/internal/spendability"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// ppkMarkerPubkey is the compressed pubkey every PPk transaction carries at
// pubkey slot index 1 of some P2MS output; it has no cryptographic meaning,
// it is simply PPk's protocol tag.
const ppkMarkerPubkey = "0320a0de360cc2ae8672db7d557086a4e7c8eca062c0a5a4ba9922dee0aacf3e12"

// PPkDetector recognises the PPk social-identity protocol: a marker pubkey
// plus, tried in specificity order, an OP_RETURN-carried RT (real-time)
// profile TLV, an RT profile split across a 1-of-3 P2MS pubkey slot and
// OP_RETURN, a quoted registration number, or a free-text message.
type PPkDetector struct{}

func (PPkDetector) Name() string { return "PPk" }

func (PPkDetector) Classify(ctx TxContext) (Verdict, bool) {
	p2ms := filterP2MS(ctx.P2MSOutputs)
	if !hasPPkMarker(p2ms) {
		return Verdict{}, false
	}

	opReturns := opReturnPayloads(ctx.AllOutputs)

	variant, contentType := "PPkUnknown", "application/octet-stream"
	switch {
	case detectRTStandard(p2ms, opReturns):
		variant, contentType = "PPkProfile", "application/json"
	case detectRTEmbedded(p2ms, opReturns):
		variant, contentType = "PPkProfile", "application/json"
	case detectRegistration(opReturns):
		variant = "PPkRegistration"
	case detectMessage(opReturns):
		variant = "PPkMessage"
	}

	method := "PPk marker pubkey at index 1, variant " + variant
	var outputs []models.P2MSOutputClassification
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok {
			continue
		}
		result := spendability.AnalyseGeneric(meta.Pubkeys, burnpattern.IsBurnKey)
		outputs = append(outputs, buildOutputClassification(out, models.ProtocolPPk, variant,
			true, method, "", contentType, result))
	}

	return Verdict{
		Transaction: models.TransactionClassification{
			Txid:                   ctx.Tx.Txid,
			Protocol:               models.ProtocolPPk,
			Variant:                variant,
			ProtocolSignatureFound: true,
			ClassificationMethod:   method,
			ContentType:            contentType,
		},
		Outputs: outputs,
	}, true
}

// hasPPkMarker reports whether any P2MS output carries the marker pubkey at
// slot index 1.
func hasPPkMarker(p2ms []models.TransactionOutput) bool {
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok || len(meta.Pubkeys) < 2 {
			continue
		}
		if strings.EqualFold(meta.Pubkeys[1], ppkMarkerPubkey) {
			return true
		}
	}
	return false
}

// hasMultisigPattern reports whether any P2MS output is exactly m-of-n.
func hasMultisigPattern(p2ms []models.TransactionOutput, m, n int) bool {
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if ok && meta.RequiredSigs == m && meta.TotalPubkeys == n {
			return true
		}
	}
	return false
}

// detectRTStandard matches a 1-of-2 multisig plus an RT TLV
// ("RT" <len-byte> <json>, permissive of trailing bytes past the declared
// length) carried whole in an OP_RETURN output.
func detectRTStandard(p2ms []models.TransactionOutput, opReturns [][]byte) bool {
	if !hasMultisigPattern(p2ms, 1, 2) {
		return false
	}
	for _, payload := range opReturns {
		if _, ok := parseRTTLV(payload); ok {
			return true
		}
	}
	return false
}

// parseRTTLV extracts the JSON text from an "RT" <len-byte> <json> payload.
func parseRTTLV(payload []byte) (string, bool) {
	if len(payload) < 4 || payload[0] != 'R' || payload[1] != 'T' {
		return "", false
	}
	length := int(payload[2])
	if len(payload) < 3+length {
		return "", false
	}
	return string(payload[3 : 3+length]), true
}

// detectRTEmbedded matches a 1-of-3 multisig whose third pubkey slot packs
// an RT TLV header into the EC-point bytes — prefix byte 0x02/0x03, a length
// byte satisfying len+2==33, the literal bytes "RT" at offset 2, and a 0x20
// separator byte at offset 4 — with the JSON body split across that slot
// and a companion OP_RETURN output, reassembled and parsed as JSON.
func detectRTEmbedded(p2ms []models.TransactionOutput, opReturns [][]byte) bool {
	if !hasMultisigPattern(p2ms, 1, 3) || len(opReturns) == 0 {
		return false
	}
	opReturnBytes := opReturns[0]

	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok || len(meta.Pubkeys) != 3 {
			continue
		}
		raw, err := hex.DecodeString(meta.Pubkeys[2])
		if err != nil || len(raw) != 33 {
			continue
		}
		if raw[0] != 0x02 && raw[0] != 0x03 {
			continue
		}
		if raw[2] != 'R' || raw[3] != 'T' {
			continue
		}
		lengthByte := int(raw[1])
		if lengthByte+2 != 33 {
			continue
		}
		if raw[4] != 0x20 {
			continue
		}
		jsonEnd := 2 + lengthByte
		if jsonEnd > len(raw) {
			continue
		}

		combined := make([]byte, 0, (jsonEnd-5)+len(opReturnBytes))
		combined = append(combined, raw[5:jsonEnd]...)
		combined = append(combined, opReturnBytes...)
		if len(combined) < 5 || len(combined) > 1000 {
			continue
		}
		var js interface{}
		if json.Unmarshal(combined, &js) == nil {
			return true
		}
	}
	return false
}

// detectRegistration matches a quoted all-digit registration number, e.g.
// "315"}.
func detectRegistration(opReturns [][]byte) bool {
	for _, payload := range opReturns {
		if len(payload) < 4 || payload[0] != '"' || !bytes.HasSuffix(payload, []byte(`"}`)) {
			continue
		}
		content := payload[1 : len(payload)-2]
		if len(content) == 0 {
			continue
		}
		allDigits := true
		for _, b := range content {
			if b < '0' || b > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			return true
		}
	}
	return false
}

// detectMessage matches free text: an explicit "PPk"/"ppk" substring, or a
// payload that is at least 80% printable ASCII.
func detectMessage(opReturns [][]byte) bool {
	for _, payload := range opReturns {
		if bytes.Contains(payload, []byte("PPk")) || bytes.Contains(payload, []byte("ppk")) {
			return true
		}
		if printableRatio(payload) >= 0.8 {
			return true
		}
	}
	return false
}

// printableRatio reports the fraction of bytes in the printable ASCII
// range (space through tilde).
func printableRatio(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var printable int
	for _, b := range data {
		if b >= 0x20 && b <= 0x7e {
			printable++
		}
	}
	return float64(printable) / float64(len(data))
}
