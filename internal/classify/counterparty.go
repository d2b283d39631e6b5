package classify

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/deadmanoz/p2ms-forensics/internal/burnpattern"
	"github.com/deadmanoz/p2ms-forensics/internal/spendability"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// counterpartyVariantNames maps the first decrypted message-type byte to a
// human label. Byte values are Counterparty's documented message IDs.
var counterpartyVariantNames = map[byte]string{
	0x00: "CounterpartySend",
	0x0a: "CounterpartyOrder",
	0x0b: "CounterpartyBTCPay",
	0x14: "CounterpartyIssuance",
	0x1e: "CounterpartyBroadcast",
	0x28: "CounterpartyBet",
	0x32: "CounterpartyDividend",
	0x46: "CounterpartyCancel",
	0x15: "CounterpartyIssuanceSubasset",
}

// CounterpartyDetector recognises Counterparty protocol messages: per-output
// ARC4-decrypted, length-prefixed chunks reassembled into a payload that
// begins (at offset 0 or 1, some encoders pad a leading null) with
// CNTRPRTY.
type CounterpartyDetector struct{}

func (CounterpartyDetector) Name() string { return "Counterparty" }

func (CounterpartyDetector) Classify(ctx TxContext) (Verdict, bool) {
	key, err := arc4KeyFromTxid(ctx.FirstInputTxid)
	if err != nil || len(key) == 0 {
		return Verdict{}, false
	}
	p2ms := filterP2MS(ctx.P2MSOutputs)
	if len(p2ms) == 0 {
		return Verdict{}, false
	}

	var msgHex strings.Builder
	any := false
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
		if raw == "" {
			continue
		}

		existing := msgHex.String()
		if len(raw) >= 16 && raw[0:16] == counterpartyPrefixHex &&
			i != 0 && len(existing) >= 16 && existing[0:16] == counterpartyPrefixHex {
			raw = raw[16:]
		}
		msgHex.WriteString(raw)
		any = true
	}
	if !any || msgHex.Len() == 0 {
		return Verdict{}, false
	}

	final, err := hex.DecodeString(msgHex.String())
	if err != nil {
		return Verdict{}, false
	}

	offset := -1
	if bytes.HasPrefix(final, counterpartyPrefix) {
		offset = 0
	} else if len(final) > 1 && bytes.HasPrefix(final[1:], counterpartyPrefix) {
		offset = 1
	}
	if offset < 0 {
		return Verdict{}, false
	}

	variant := "CounterpartyUnknown"
	typeByteOffset := offset + len(counterpartyPrefix)
	if len(final) > typeByteOffset {
		if name, ok := counterpartyVariantNames[final[typeByteOffset]]; ok {
			variant = name
		}
	}

	method := "ARC4 decode + CNTRPRTY signature match"
	var outputs []models.P2MSOutputClassification
	for _, out := range p2ms {
		meta, has := out.MultisigInfo()
		if !has {
			continue
		}
		result := spendability.AnalyseAssumedReal(meta.Pubkeys, burnpattern.IsBurnKey)
		outputs = append(outputs, buildOutputClassification(out, models.ProtocolCounterparty, variant,
			true, method, "", "application/octet-stream", result))
	}

	return Verdict{
		Transaction: models.TransactionClassification{
			Txid:                   ctx.Tx.Txid,
			Protocol:               models.ProtocolCounterparty,
			Variant:                variant,
			ProtocolSignatureFound: true,
			ClassificationMethod:   method,
			ContentType:            "application/octet-stream",
		},
		Outputs: outputs,
	}, true
}
