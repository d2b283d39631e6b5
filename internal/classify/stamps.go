package classify

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/deadmanoz/p2ms-forensics/internal/burnpattern"
	"github.com/deadmanoz/p2ms-forensics/internal/spendability"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

var (
	stampSignature        = []byte("stamp:")
	counterpartyPrefix    = []byte("CNTRPRTY")
	counterpartyPrefixHex = "434e545250525459" // hex.EncodeToString(counterpartyPrefix)
)

// BitcoinStampsDetector recognises Bitcoin Stamps data embedded in P2MS
// pubkey slots. It must run before CounterpartyDetector: a Stamp can ride
// inside a Counterparty-transport transaction, and the CNTRPRTY signature
// alone is not enough to tell them apart.
type BitcoinStampsDetector struct{}

func (BitcoinStampsDetector) Name() string { return "BitcoinStamps" }

func (BitcoinStampsDetector) Classify(ctx TxContext) (Verdict, bool) {
	key, err := arc4KeyFromTxid(ctx.FirstInputTxid)
	if err != nil || len(key) == 0 {
		return Verdict{}, false
	}
	p2ms := filterP2MS(ctx.P2MSOutputs)
	if len(p2ms) == 0 {
		return Verdict{}, false
	}

	// Counterparty-embedded tried first: it has the more specific
	// requirements (both CNTRPRTY and stamp: must be present).
	if decoded, offset, ok := processCounterpartyEmbeddedStamps(p2ms, key); ok {
		return buildStampsVerdict(ctx, p2ms, models.StampsTransportCounterparty, decoded, offset)
	}

	if decoded, offset, ok := processPureStamps(p2ms, key); ok {
		return buildStampsVerdict(ctx, p2ms, models.StampsTransportPure, decoded, offset)
	}

	return Verdict{}, false
}

// isStampsP2MS mirrors the original pipeline's shape check: a data-bearing
// Stamps/Counterparty output needs at least one dummy/signing pubkey plus
// one data pubkey.
func isStampsP2MS(requiredSigs, totalPubkeys int, pubkeys []string) bool {
	return requiredSigs == 1 && totalPubkeys == len(pubkeys) && totalPubkeys >= 2
}

// extractDataChunk concatenates the raw bytes of every pubkey slot after
// the first; slot 0 carries the dummy/signing key, the remainder carry
// ARC4-obfuscated data.
func extractDataChunk(pubkeys []string) []byte {
	var out []byte
	for _, pk := range pubkeys[1:] {
		raw, err := hex.DecodeString(pk)
		if err != nil {
			continue
		}
		out = append(out, raw...)
	}
	return out
}

// processPureStamps concatenates the raw data chunk from every qualifying
// P2MS output (outputs are already in vout order), ARC4-decrypts the whole
// thing once, and requires a stamp: signature with no CNTRPRTY anywhere in
// the decrypted bytes (CNTRPRTY-bearing data belongs to the embedded path).
func processPureStamps(p2ms []models.TransactionOutput, key []byte) (decoded []byte, offset int, ok bool) {
	var concatenated []byte
	for _, out := range p2ms {
		meta, has := out.MultisigInfo()
		if !has || !isStampsP2MS(meta.RequiredSigs, meta.TotalPubkeys, meta.Pubkeys) {
			continue
		}
		concatenated = append(concatenated, extractDataChunk(meta.Pubkeys)...)
	}
	if len(concatenated) == 0 {
		return nil, 0, false
	}

	decrypted, err := arc4Decrypt(key, concatenated)
	if err != nil {
		return nil, 0, false
	}
	if bytes.Contains(decrypted, counterpartyPrefix) {
		return nil, 0, false
	}
	offset = bytes.Index(decrypted, stampSignature)
	if offset < 0 {
		return nil, 0, false
	}
	return decrypted, offset, true
}

// processCounterpartyEmbeddedStamps ARC4-decrypts each output's data chunk
// individually, strips its one-byte length prefix, deduplicates a repeated
// CNTRPRTY prefix across outputs after the first, and reassembles the full
// message. Qualifies only when both CNTRPRTY and stamp: are present.
func processCounterpartyEmbeddedStamps(p2ms []models.TransactionOutput, key []byte) (decoded []byte, offset int, ok bool) {
	var msgHex strings.Builder

	for i, out := range p2ms {
		meta, has := out.MultisigInfo()
		if !has || !isStampsP2MS(meta.RequiredSigs, meta.TotalPubkeys, meta.Pubkeys) {
			continue
		}
		chunk := extractDataChunk(meta.Pubkeys)
		if len(chunk) == 0 {
			continue
		}
		rawDecrypted, err := arc4Decrypt(key, chunk)
		if err != nil {
			continue
		}
		if len(rawDecrypted) < 1 || len(rawDecrypted) < 1+int(rawDecrypted[0]) {
			continue
		}
		raw := hex.EncodeToString(extractLengthPrefixed(rawDecrypted))

		if len(raw) >= 16 && raw[0:16] == counterpartyPrefixHex {
			existing := msgHex.String()
			if i != 0 && len(existing) >= 16 && existing[0:16] == counterpartyPrefixHex {
				raw = raw[16:]
			}
		} else if raw == "" {
			continue
		}
		msgHex.WriteString(raw)
	}

	if msgHex.Len() == 0 {
		return nil, 0, false
	}
	final, err := hex.DecodeString(msgHex.String())
	if err != nil {
		return nil, 0, false
	}
	if !bytes.Contains(final, counterpartyPrefix) {
		return nil, 0, false
	}
	offset = bytes.Index(final, stampSignature)
	if offset < 0 {
		return nil, 0, false
	}
	return final, offset, true
}

// classifyStampsVariant sniffs the content following the stamp: signature.
// Bitcoin Stamps itself carries no machine-readable variant tag; this
// reproduces the original classifier's content-sniffing heuristics from its
// per-variant documentation (SRC token JSON, HTML documents, compression
// magic, image magic, else generic data).
func classifyStampsVariant(decoded []byte, offset int) string {
	content := decoded[offset+len(stampSignature):]
	lower := strings.ToLower(string(content))

	switch {
	case strings.Contains(lower, `"p":"src-20"`) || strings.Contains(lower, `"p": "src-20"`):
		return "StampsSRC20"
	case strings.Contains(lower, `"p":"src-721"`) || strings.Contains(lower, `"p": "src-721"`):
		return "StampsSRC721"
	case strings.Contains(lower, `"p":"src-101"`) || strings.Contains(lower, `"p": "src-101"`):
		return "StampsSRC101"
	case strings.HasPrefix(lower, "<html") || strings.HasPrefix(lower, "<!doctype html"):
		return "StampsHTML"
	case len(content) >= 2 && content[0] == 0x1f && content[1] == 0x8b: // gzip
		return "StampsCompressed"
	case len(content) >= 2 && content[0] == 0x78: // zlib
		return "StampsCompressed"
	case len(content) >= 8 && bytes.HasPrefix(content, []byte{0x89, 'P', 'N', 'G'}):
		return "StampsClassic"
	case len(content) >= 3 && bytes.HasPrefix(content, []byte("GIF")):
		return "StampsClassic"
	case len(content) >= 3 && content[0] == 0xff && content[1] == 0xd8:
		return "StampsClassic"
	case len(content) == 0:
		return "StampsUnknown"
	default:
		return "StampsData"
	}
}

func buildStampsVerdict(ctx TxContext, p2ms []models.TransactionOutput, transport models.StampsTransport, decoded []byte, offset int) (Verdict, bool) {
	variant := classifyStampsVariant(decoded, offset)
	method := "ARC4 decode + stamp: signature match"
	if transport == models.StampsTransportCounterparty {
		method = "Counterparty-embedded ARC4 decode + CNTRPRTY/stamp: signature match"
	}

	var outputs []models.P2MSOutputClassification
	for _, out := range p2ms {
		meta, has := out.MultisigInfo()
		if !has {
			continue
		}
		result := spendability.AnalyseStamps(meta.Pubkeys, transport, burnpattern.IsBurnKey)
		outputs = append(outputs, buildOutputClassification(out, models.ProtocolBitcoinStamps, variant,
			true, method, "", "application/octet-stream", result))
	}

	return Verdict{
		Transaction: models.TransactionClassification{
			Txid:                   ctx.Tx.Txid,
			Protocol:               models.ProtocolBitcoinStamps,
			Variant:                variant,
			ProtocolSignatureFound: true,
			ClassificationMethod:   method,
			ContentType:            "application/octet-stream",
		},
		Outputs: outputs,
	}, true
}
