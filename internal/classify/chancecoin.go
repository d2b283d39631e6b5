package classify

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/deadmanoz/p2ms-forensics/internal/burnpattern"
	"github.com/deadmanoz/p2ms-forensics/internal/spendability"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// chancecoinSignature is the 8-byte magic Chancecoin messages open with,
// found in the concatenated second-pubkey-slot data across a run of P2MS
// outputs. Unlike Counterparty and Stamps, Chancecoin applies no
// obfuscation at all.
var chancecoinSignature = []byte("CHANCECO")

const (
	chancecoinMsgSend   = 0
	chancecoinMsgOrder  = 10
	chancecoinMsgBTCPay = 11
	chancecoinMsgRoll   = 14
	chancecoinMsgDice   = 40
	chancecoinMsgPoker  = 41
	chancecoinMsgCancel = 70
)

// ChancecoinDetector recognises the Chancecoin gambling protocol: data is
// stored unobfuscated in the second pubkey slot of a run of 1-of-2/1-of-3
// P2MS outputs, one length-prefixed 32-byte chunk per output.
type ChancecoinDetector struct{}

func (ChancecoinDetector) Name() string { return "Chancecoin" }

func (ChancecoinDetector) Classify(ctx TxContext) (Verdict, bool) {
	p2ms := filterP2MS(ctx.P2MSOutputs)

	data := extractChancecoinChunks(p2ms)
	if len(data) < 12 || string(data[:8]) != string(chancecoinSignature) {
		return Verdict{}, false
	}

	messageID := binary.BigEndian.Uint32(data[8:12])
	payload := data[12:]
	variant, summary := describeChancecoinMessage(messageID, payload)

	method := fmt.Sprintf("Chancecoin multi-output P2MS: %s", summary)
	metadata := fmt.Sprintf(`{"message_id":%d,"message_type":%q,"summary":%q,"data_length":%d,"total_chunks":%d}`,
		messageID, variant, summary, len(payload), len(p2ms))

	var outputs []models.P2MSOutputClassification
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok {
			continue
		}
		result := spendability.AnalyseGeneric(meta.Pubkeys, burnpattern.IsBurnKey)
		outputs = append(outputs, buildOutputClassification(out, models.ProtocolChancecoin, variant,
			true, method, metadata, "application/octet-stream", result))
	}

	return Verdict{
		Transaction: models.TransactionClassification{
			Txid:                   ctx.Tx.Txid,
			Protocol:               models.ProtocolChancecoin,
			Variant:                variant,
			ProtocolSignatureFound: true,
			ClassificationMethod:   method,
			AdditionalMetadata:     metadata,
			ContentType:            "application/octet-stream",
		},
		Outputs: outputs,
	}, true
}

// extractChancecoinChunks concatenates the length-prefixed data from the
// second pubkey slot of every 1-of-2/1-of-3 P2MS output, in vout order.
// Each slot is one EC-point-sized byte string whose first byte is a length
// (0..32); the remaining bytes up to that length are the data, and anything
// past it is zero padding.
func extractChancecoinChunks(outputs []models.TransactionOutput) []byte {
	var out []byte
	for _, o := range outputs {
		meta, ok := o.MultisigInfo()
		if !ok || len(meta.Pubkeys) < 2 {
			continue
		}
		if meta.RequiredSigs != 1 || (meta.TotalPubkeys != 2 && meta.TotalPubkeys != 3) {
			continue
		}
		raw, err := hex.DecodeString(meta.Pubkeys[1])
		if err != nil || len(raw) < 1 {
			continue
		}
		length := int(raw[0])
		if length > len(raw)-1 {
			length = len(raw) - 1
		}
		out = append(out, raw[1:1+length]...)
	}
	return out
}

// describeChancecoinMessage decodes the payload following the signature and
// message ID, returning the protocol variant label and a human-readable
// summary, following the chancecoinj message layouts.
func describeChancecoinMessage(messageID uint32, data []byte) (variant string, summary string) {
	switch messageID {
	case chancecoinMsgSend:
		if len(data) >= 16 {
			assetID := binary.BigEndian.Uint64(data[0:8])
			amount := binary.BigEndian.Uint64(data[8:16])
			return "ChancecoinSend", fmt.Sprintf("Send: asset %d amount %d satoshis", assetID, amount)
		}
	case chancecoinMsgOrder:
		if len(data) >= 42 {
			giveID := binary.BigEndian.Uint64(data[0:8])
			giveAmount := binary.BigEndian.Uint64(data[8:16])
			getID := binary.BigEndian.Uint64(data[16:24])
			getAmount := binary.BigEndian.Uint64(data[24:32])
			expiration := binary.BigEndian.Uint16(data[32:34])
			return "ChancecoinOrder", fmt.Sprintf("Order: Give %d x %d for Get %d x %d (expires in %d blocks)",
				giveAmount, giveID, getAmount, getID, expiration)
		}
	case chancecoinMsgBTCPay:
		if len(data) >= 64 {
			tx0 := hex.EncodeToString(data[0:32])
			tx1 := hex.EncodeToString(data[32:64])
			return "ChancecoinBTCPay", fmt.Sprintf("BTCPay: %s..%s x %s..%s", tx0[:8], tx0[56:], tx1[:8], tx1[56:])
		}
	case chancecoinMsgRoll:
		if len(data) >= 40 {
			roll := math.Float64frombits(binary.BigEndian.Uint64(data[32:40]))
			if len(data) >= 48 {
				cha := binary.BigEndian.Uint64(data[40:48])
				return "ChancecoinRoll", fmt.Sprintf("Roll: %.6f (CHA amount: %d)", roll, cha)
			}
			return "ChancecoinRoll", fmt.Sprintf("Roll: %.6f", roll)
		}
	case chancecoinMsgDice:
		if len(data) >= 24 {
			bet := binary.BigEndian.Uint64(data[0:8])
			chance := math.Float64frombits(binary.BigEndian.Uint64(data[8:16]))
			payout := math.Float64frombits(binary.BigEndian.Uint64(data[16:24]))
			return "ChancecoinBet", fmt.Sprintf("Dice Bet: %d satoshis, %g%% chance, %gx payout", bet, chance, payout)
		}
	case chancecoinMsgPoker:
		if len(data) >= 26 {
			bet := binary.BigEndian.Uint64(data[0:8])
			return "ChancecoinBet", fmt.Sprintf("Poker Bet: %d satoshis, 9 cards", bet)
		}
	case chancecoinMsgCancel:
		if len(data) >= 32 {
			offerHash := hex.EncodeToString(data[0:32])
			return "ChancecoinCancel", fmt.Sprintf("Cancel: %s..%s", offerHash[:8], offerHash[56:])
		}
	}
	return "ChancecoinUnknown", fmt.Sprintf("Chancecoin Unknown (%d bytes data)", len(data))
}
