// Package scriptparse turns a raw output script (hex) into a normalised
// ScriptType plus type-specific metadata. Parsing is total: a malformed or
// unrecognised script never errors, it degrades to ScriptNonstandard or
// ScriptUnknown with the raw bytes preserved.
package scriptparse

import (
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

const (
	opFalse          = 0x00
	op1              = 0x51
	op16             = 0x60
	opPushData1      = 0x4c
	opPushData2      = 0x4d
	opPushData4      = 0x4e
	opDup            = 0x76
	opHash160        = 0xa9
	opEqualVerify    = 0x88
	opEqual          = 0x87
	opCheckSig       = 0xac
	opCheckMultisig  = 0xae
	opReturn         = 0x6a
)

// compressedPubkeyLen/uncompressedPubkeyLen are the only two push lengths a
// well-formed multisig pubkey slot may declare.
const (
	compressedPubkeyLen   = 0x21 // 33
	uncompressedPubkeyLen = 0x41 // 65
)

// Parsed is the result of parsing one output script.
type Parsed struct {
	ScriptType models.ScriptType
	Metadata   json.RawMessage
	Address    string
}

// Parse decodes a hex-encoded output script. It never returns an error; a
// script that cannot be decoded from hex at all is reported as Nonstandard
// with the input string as its only chunk and the decode failure recorded as
// the reason.
func Parse(scriptHex string) Parsed {
	raw, err := hex.DecodeString(scriptHex)
	if err != nil {
		return nonstandard([]string{scriptHex}, "invalid hex: "+err.Error())
	}

	if p, ok := parseOpReturn(raw); ok {
		return p
	}
	if p, ok := parseMultisig(raw); ok {
		return p
	}
	if p, ok := parseP2PKH(raw); ok {
		return p
	}
	if p, ok := parseP2SH(raw); ok {
		return p
	}
	if p, ok := parseP2WPKH(raw); ok {
		return p
	}
	if p, ok := parseP2WSH(raw); ok {
		return p
	}
	if p, ok := parseP2TR(raw); ok {
		return p
	}
	if p, ok := parseP2PK(raw); ok {
		return p
	}
	if p, ok := parseBareMultisigLikeButBroken(raw); ok {
		return p
	}

	return Parsed{ScriptType: models.ScriptUnknown, Metadata: mustJSON(models.NonstandardMeta{
		RawChunks: []string{hex.EncodeToString(raw)},
		Reason:    "no recognised template",
	})}
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

func nonstandard(chunks []string, reason string) Parsed {
	return Parsed{
		ScriptType: models.ScriptNonstandard,
		Metadata: mustJSON(models.NonstandardMeta{
			RawChunks: chunks,
			Reason:    reason,
		}),
	}
}

// parseMultisig recognises the exact shape OP_M <pubkey>... OP_N
// OP_CHECKMULTISIG. M,N must be in [1,16], pubkey count must equal N, and
// every pubkey push must declare length 0x21 or 0x41. If the script plainly
// isn't attempting this shape (wrong leading/trailing opcodes), parseMultisig
// returns ok=false so other templates get a chance; a shape that looks like
// an attempt but fails the strict rules is handled by
// parseBareMultisigLikeButBroken instead, matching Stage 1's "downgrade a
// source-labelled p2ms row to nonstandard" behaviour.
func parseMultisig(raw []byte) (Parsed, bool) {
	if len(raw) < 3 {
		return Parsed{}, false
	}
	if raw[0] < op1 || raw[0] > op16 {
		return Parsed{}, false
	}
	if raw[len(raw)-1] != opCheckMultisig {
		return Parsed{}, false
	}
	m := int(raw[0]) - op1 + 1

	nOp := raw[len(raw)-2]
	if nOp < op1 || nOp > op16 {
		return Parsed{}, false
	}
	n := int(nOp) - op1 + 1
	if m > n {
		return Parsed{}, false
	}

	pubkeys := make([]string, 0, n)
	i := 1
	body := raw[:len(raw)-2]
	for i < len(body) {
		length := int(body[i])
		if length != compressedPubkeyLen && length != uncompressedPubkeyLen {
			return Parsed{}, false
		}
		i++
		if i+length > len(body) {
			return Parsed{}, false
		}
		pubkeys = append(pubkeys, hex.EncodeToString(body[i:i+length]))
		i += length
	}
	if i != len(body) || len(pubkeys) != n {
		return Parsed{}, false
	}

	meta := models.MultisigMeta{RequiredSigs: m, TotalPubkeys: n, Pubkeys: pubkeys}
	return Parsed{ScriptType: models.ScriptMultisig, Metadata: mustJSON(meta)}, true
}

// parseBareMultisigLikeButBroken catches scripts that open with an OP_M and
// end in OP_CHECKMULTISIG but fail the strict multisig rules (e.g.
// OP_PUSHDATA1 framed chunks of the wrong size) — the "nonstandard demotion"
// scenario from Stage 1. The byte before OP_CHECKMULTISIG is assumed to be
// OP_N and is left out of the chunk split without being checked.
func parseBareMultisigLikeButBroken(raw []byte) (Parsed, bool) {
	if len(raw) < 3 {
		return Parsed{}, false
	}
	if raw[0] < op1 || raw[0] > op16 {
		return Parsed{}, false
	}
	if raw[len(raw)-1] != opCheckMultisig {
		return Parsed{}, false
	}
	chunks, ok := splitPushChunks(raw[1 : len(raw)-2])
	if !ok {
		chunks = []string{hex.EncodeToString(raw)}
	}
	return nonstandard(chunks, "multisig-shaped but pubkey pushes are not 33/65 bytes"), true
}

// splitPushChunks walks a sequence of push opcodes (direct push,
// OP_PUSHDATA1/2/4) and returns each pushed chunk as hex. Returns ok=false if
// the body cannot be parsed as a clean sequence of pushes.
func splitPushChunks(body []byte) ([]string, bool) {
	var chunks []string
	i := 0
	for i < len(body) {
		op := body[i]
		var length int
		switch {
		case op >= 0x01 && op <= 0x4b:
			length = int(op)
			i++
		case op == opPushData1:
			if i+1 >= len(body) {
				return nil, false
			}
			length = int(body[i+1])
			i += 2
		case op == opPushData2:
			if i+2 >= len(body) {
				return nil, false
			}
			length = int(body[i+1]) | int(body[i+2])<<8
			i += 3
		case op == opPushData4:
			if i+4 >= len(body) {
				return nil, false
			}
			length = int(body[i+1]) | int(body[i+2])<<8 | int(body[i+3])<<16 | int(body[i+4])<<24
			i += 5
		default:
			return nil, false
		}
		if i+length > len(body) {
			return nil, false
		}
		chunks = append(chunks, hex.EncodeToString(body[i:i+length]))
		i += length
	}
	return chunks, true
}

// parseOpReturn extracts the pushed payload after OP_RETURN and splits it
// into a 2-4 byte protocol-prefix heuristic plus the remainder, per the
// classifier chain's "keep prefix and remainder separate until a detector
// explicitly re-concatenates them" contract.
func parseOpReturn(raw []byte) (Parsed, bool) {
	if len(raw) < 1 || raw[0] != opReturn {
		return Parsed{}, false
	}
	chunks, ok := splitPushChunks(raw[1:])
	if !ok || len(chunks) == 0 {
		return Parsed{ScriptType: models.ScriptOpReturn, Metadata: mustJSON(models.OpReturnMeta{})}, true
	}
	payload, err := hex.DecodeString(joinHex(chunks))
	if err != nil {
		return Parsed{ScriptType: models.ScriptOpReturn, Metadata: mustJSON(models.OpReturnMeta{})}, true
	}

	prefixLen := 2
	switch {
	case len(payload) >= 4 && looksLikeProtocolPrefix(payload[:4]):
		prefixLen = 4
	case len(payload) >= 3 && looksLikeProtocolPrefix(payload[:3]):
		prefixLen = 3
	}
	if len(payload) < prefixLen {
		prefixLen = len(payload)
	}

	meta := models.OpReturnMeta{
		ProtocolPrefixHex: hex.EncodeToString(payload[:prefixLen]),
		DataHex:           hex.EncodeToString(payload[prefixLen:]),
	}
	return Parsed{ScriptType: models.ScriptOpReturn, Metadata: mustJSON(meta)}, true
}

func joinHex(chunks []string) string {
	out := ""
	for _, c := range chunks {
		out += c
	}
	return out
}

// looksLikeProtocolPrefix is a light heuristic: printable ASCII letters and
// digits suggest an identifier like "SPK", "CNTRPRTY" rather than arbitrary
// binary data.
func looksLikeProtocolPrefix(b []byte) bool {
	for _, c := range b {
		if !((c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}

func parseP2PKH(raw []byte) (Parsed, bool) {
	if len(raw) != 25 || raw[0] != opDup || raw[1] != opHash160 || raw[2] != 0x14 ||
		raw[23] != opEqualVerify || raw[24] != opCheckSig {
		return Parsed{}, false
	}
	addr, _ := btcutil.NewAddressPubKeyHash(raw[3:23], &chaincfg.MainNetParams)
	return Parsed{ScriptType: models.ScriptP2PKH, Address: addrString(addr)}, true
}

func parseP2SH(raw []byte) (Parsed, bool) {
	if len(raw) != 23 || raw[0] != opHash160 || raw[1] != 0x14 || raw[22] != opEqual {
		return Parsed{}, false
	}
	addr, _ := btcutil.NewAddressScriptHashFromHash(raw[2:22], &chaincfg.MainNetParams)
	return Parsed{ScriptType: models.ScriptP2SH, Address: addrString(addr)}, true
}

func parseP2WPKH(raw []byte) (Parsed, bool) {
	if len(raw) != 22 || raw[0] != opFalse || raw[1] != 0x14 {
		return Parsed{}, false
	}
	addr, _ := btcutil.NewAddressWitnessPubKeyHash(raw[2:22], &chaincfg.MainNetParams)
	return Parsed{ScriptType: models.ScriptP2WPKH, Address: addrString(addr)}, true
}

func parseP2WSH(raw []byte) (Parsed, bool) {
	if len(raw) != 34 || raw[0] != opFalse || raw[1] != 0x20 {
		return Parsed{}, false
	}
	addr, _ := btcutil.NewAddressWitnessScriptHash(raw[2:34], &chaincfg.MainNetParams)
	return Parsed{ScriptType: models.ScriptP2WSH, Address: addrString(addr)}, true
}

func parseP2TR(raw []byte) (Parsed, bool) {
	if len(raw) != 34 || raw[0] != op1 || raw[1] != 0x20 {
		return Parsed{}, false
	}
	addr, _ := btcutil.NewAddressTaproot(raw[2:34], &chaincfg.MainNetParams)
	return Parsed{ScriptType: models.ScriptP2TR, Address: addrString(addr)}, true
}

func parseP2PK(raw []byte) (Parsed, bool) {
	if len(raw) < 2 || raw[len(raw)-1] != opCheckSig {
		return Parsed{}, false
	}
	length := int(raw[0])
	if length != compressedPubkeyLen && length != uncompressedPubkeyLen {
		return Parsed{}, false
	}
	if len(raw) != 1+length+1 {
		return Parsed{}, false
	}
	addr, err := btcutil.NewAddressPubKey(raw[1:1+length], &chaincfg.MainNetParams)
	if err != nil {
		return Parsed{ScriptType: models.ScriptP2PK}, true
	}
	return Parsed{ScriptType: models.ScriptP2PK, Address: addrString(addr)}, true
}

func addrString(addr btcutil.Address) string {
	if addr == nil {
		return ""
	}
	return addr.EncodeAddress()
}
