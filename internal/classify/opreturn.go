package classify

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deadmanoz/p2ms-forensics/internal/burnpattern"
	"github.com/deadmanoz/p2ms-forensics/internal/spendability"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// OpReturnSignalledDetector recognises one-off protocols that tag their
// P2MS payload with a marker in a companion OP_RETURN output: the 0xbb3a
// marker ("Protocol 47930"), CLIPPERZ notarization, and a generic-ASCII
// catch-all. Tried in that order, per the classifier chain's normative
// priority.
type OpReturnSignalledDetector struct{}

func (OpReturnSignalledDetector) Name() string { return "OpReturnSignalled" }

func (OpReturnSignalledDetector) Classify(ctx TxContext) (Verdict, bool) {
	p2ms := filterP2MS(ctx.P2MSOutputs)
	opReturns := opReturnPayloads(ctx.AllOutputs)
	if len(opReturns) == 0 || len(p2ms) == 0 {
		return Verdict{}, false
	}

	if hasPrefixHex(opReturns, "bb3a") && matchesPattern(p2ms, 2, 2) {
		return buildOpReturnVerdict(ctx, p2ms, "OpReturnProtocol47930",
			"OP_RETURN 0xbb3a + 2-of-2 multisig", "application/octet-stream", ""), true
	}

	if version, ok := clipperzVersion(opReturns); ok {
		label := "CLIPPERZ REG"
		if version == 2 {
			label = "CLIPPERZ 1.0 REG"
		}
		if matchesPattern(p2ms, 2, 2) {
			return buildOpReturnVerdict(ctx, p2ms, "OpReturnCLIPPERZ",
				fmt.Sprintf("OP_RETURN %s + 2-of-2 multisig", label), "application/octet-stream",
				fmt.Sprintf("CLIPPERZ version %d", version)), true
		}
	}

	if sig, ratio, consec, ok := genericASCIISignature(opReturns); ok {
		method := fmt.Sprintf("OP_RETURN Generic ASCII (%.1f%% printable, %d consecutive)", ratio*100, consec)
		return buildOpReturnVerdict(ctx, p2ms, "OpReturnGenericASCII", method, "text/plain",
			fmt.Sprintf("ASCII signature: %s", sig)), true
	}

	return Verdict{}, false
}

// opReturnPayloads decodes every OP_RETURN output's reconcatenated payload.
func opReturnPayloads(outputs []models.TransactionOutput) [][]byte {
	var out [][]byte
	for _, o := range outputs {
		if o.ScriptType != models.ScriptOpReturn {
			continue
		}
		var meta models.OpReturnMeta
		if err := json.Unmarshal(o.Metadata, &meta); err != nil {
			continue
		}
		payload, err := hex.DecodeString(meta.ProtocolPrefixHex + meta.DataHex)
		if err != nil {
			continue
		}
		out = append(out, payload)
	}
	return out
}

func hasPrefixHex(payloads [][]byte, prefixHex string) bool {
	for _, p := range payloads {
		if strings.HasPrefix(hex.EncodeToString(p), prefixHex) {
			return true
		}
	}
	return false
}

// clipperzVersion scans every OP_RETURN payload for the CLIPPERZ version 1
// or version 2 ASCII prefix.
func clipperzVersion(payloads [][]byte) (int, bool) {
	for _, p := range payloads {
		if bytesHasPrefix(p, "CLIPPERZ 1.0 REG") {
			return 2, true
		}
		if bytesHasPrefix(p, "CLIPPERZ REG") {
			return 1, true
		}
	}
	return 0, false
}

func bytesHasPrefix(data []byte, prefix string) bool {
	return len(data) >= len(prefix) && string(data[:len(prefix)]) == prefix
}

// genericASCIISignature implements the catch-all heuristic: accept when
// either >=80% of bytes are printable (or null) and the payload is <=40
// bytes, or the first 16 bytes contain a run of >=5 consecutive printable
// characters.
func genericASCIISignature(payloads [][]byte) (signature string, ratio float64, maxConsecutive int, ok bool) {
	for _, data := range payloads {
		if len(data) == 0 {
			continue
		}
		printable := 0
		for _, b := range data {
			if (b >= 0x20 && b <= 0x7e) || b == 0x00 {
				printable++
			}
		}
		r := float64(printable) / float64(len(data))

		consec, current := 0, 0
		limit := len(data)
		if limit > 16 {
			limit = 16
		}
		for _, b := range data[:limit] {
			if b >= 0x20 && b <= 0x7e {
				current++
				if current > consec {
					consec = current
				}
			} else {
				current = 0
			}
		}

		if (r >= 0.80 && len(data) <= 40) || consec >= 5 {
			var sb strings.Builder
			for _, b := range data[:limit] {
				switch {
				case b >= 0x20 && b <= 0x7e:
					sb.WriteByte(b)
				case b == 0:
					sb.WriteByte('?')
				default:
					sb.WriteByte('?')
				}
			}
			return strings.TrimRight(sb.String(), "?"), r, consec, true
		}
	}
	return "", 0, 0, false
}

// matchesPattern reports whether any P2MS output in the set has exactly
// the given m-of-n shape.
func matchesPattern(outputs []models.TransactionOutput, requiredSigs, totalPubkeys int) bool {
	for _, o := range outputs {
		meta, ok := o.MultisigInfo()
		if ok && meta.RequiredSigs == requiredSigs && meta.TotalPubkeys == totalPubkeys {
			return true
		}
	}
	return false
}

func buildOpReturnVerdict(ctx TxContext, p2ms []models.TransactionOutput, variant, method, contentType, metadata string) Verdict {
	var outputs []models.P2MSOutputClassification
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok {
			continue
		}
		result := spendability.AnalyseGeneric(meta.Pubkeys, burnpattern.IsBurnKey)
		outputs = append(outputs, buildOutputClassification(out, models.ProtocolOpReturnSignalled, variant,
			true, method, metadata, contentType, result))
	}

	return Verdict{
		Transaction: models.TransactionClassification{
			Txid:                   ctx.Tx.Txid,
			Protocol:               models.ProtocolOpReturnSignalled,
			Variant:                variant,
			ProtocolSignatureFound: true,
			ClassificationMethod:   method,
			AdditionalMetadata:     metadata,
			ContentType:            contentType,
		},
		Outputs: outputs,
	}
}
