// Package models holds the entities shared across all three pipeline stages:
// blocks, transaction outputs/inputs, enriched transactions, burn patterns and
// the two classification tables (§3 of the store schema).
package models

import (
	"encoding/json"
	"strconv"
)

// ScriptType is the normalised classification of an output script.
type ScriptType string

const (
	ScriptMultisig    ScriptType = "multisig"
	ScriptNonstandard ScriptType = "nonstandard"
	ScriptOpReturn    ScriptType = "op_return"
	ScriptP2PKH       ScriptType = "p2pkh"
	ScriptP2SH        ScriptType = "p2sh"
	ScriptP2WPKH      ScriptType = "p2wpkh"
	ScriptP2WSH       ScriptType = "p2wsh"
	ScriptP2TR        ScriptType = "p2tr"
	ScriptP2PK        ScriptType = "p2pk"
	ScriptUnknown     ScriptType = "unknown"
)

// Block is a stub row keyed by height (Stage 1) later backfilled with hash
// and timestamp by Stage 2's block-backfill pass.
type Block struct {
	Height    uint32 `json:"height"`
	BlockHash string `json:"blockHash,omitempty"` // empty until backfilled
	Timestamp uint64 `json:"timestamp,omitempty"` // 0 until backfilled
}

// MultisigMeta is the script-type-specific metadata recorded for a bare
// multisig output.
type MultisigMeta struct {
	RequiredSigs int      `json:"required_sigs"`
	TotalPubkeys int      `json:"total_pubkeys"`
	Pubkeys      []string `json:"pubkeys"`
}

// NonstandardMeta preserves the raw parsed chunks of a script the source
// dump mislabelled as p2ms but which failed the strict multisig shape check.
type NonstandardMeta struct {
	RawChunks []string `json:"raw_chunks"`
	Reason    string   `json:"reason"`
}

// OpReturnMeta records the heuristic protocol-prefix split of an OP_RETURN
// payload. ProtocolPrefixHex and DataHex are kept separate on read so callers
// that need the full payload (e.g. OpReturnSignalled) can re-concatenate
// explicitly rather than relying on the split never mattering.
type OpReturnMeta struct {
	ProtocolPrefixHex string `json:"protocol_prefix_hex"`
	DataHex           string `json:"data_hex"`
}

// TransactionOutput is keyed by (Txid, Vout). IsSpent is false iff the row
// originated from the source UTXO dump.
type TransactionOutput struct {
	Txid       string          `json:"txid"`
	Vout       uint32          `json:"vout"`
	Height     uint32          `json:"height"`
	AmountSats uint64          `json:"amount"`
	ScriptHex  string          `json:"scriptHex"`
	ScriptType ScriptType      `json:"scriptType"`
	IsCoinbase bool            `json:"isCoinbase"`
	ScriptSize int             `json:"scriptSize"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	Address    string          `json:"address,omitempty"`
	IsSpent    bool            `json:"isSpent"`
}

// OutputKey returns the (txid, vout) pair formatted as the store's logical
// primary key, e.g. for log lines and map keys.
func (o TransactionOutput) OutputKey() string {
	return o.Txid + ":" + strconv.FormatUint(uint64(o.Vout), 10)
}

// MultisigInfo decodes Metadata as MultisigMeta when ScriptType is multisig.
func (o TransactionOutput) MultisigInfo() (MultisigMeta, bool) {
	if o.ScriptType != ScriptMultisig || len(o.Metadata) == 0 {
		return MultisigMeta{}, false
	}
	var m MultisigMeta
	if err := json.Unmarshal(o.Metadata, &m); err != nil {
		return MultisigMeta{}, false
	}
	return m, true
}

// TransactionInput is written only by Stage 2.
type TransactionInput struct {
	ParentTxid    string `json:"parentTxid"`
	Index         uint32 `json:"index"`
	PrevTxid      string `json:"prevTxid"`
	PrevVout      uint32 `json:"prevVout"`
	ValueSats     uint64 `json:"value"`
	ScriptSigHex  string `json:"scriptSig"`
	Sequence      uint32 `json:"sequence"`
	SourceAddress string `json:"sourceAddress,omitempty"`
}

// EnrichedTransaction is the Stage 2 fee/size summary for a P2MS-bearing
// transaction. Invariant: IsCoinbase ⇒ TransactionFee == 0; otherwise
// TransactionFee = TotalInputValue - TotalOutputValue, saturating at 0.
type EnrichedTransaction struct {
	Txid                 string  `json:"txid"`
	Height               uint32  `json:"height"`
	TotalInputValue      uint64  `json:"totalInputValue"`
	TotalOutputValue     uint64  `json:"totalOutputValue"`
	TransactionFee       uint64  `json:"transactionFee"`
	FeePerByte           float64 `json:"feePerByte"`
	TransactionSizeBytes uint32  `json:"transactionSizeBytes"`
	FeePerKB             float64 `json:"feePerKb"`
	TotalP2MSAmount      uint64  `json:"totalP2msAmount"`
	DataStorageFeeRate   float64 `json:"dataStorageFeeRate"`
	P2MSOutputsCount     int     `json:"p2msOutputsCount"`
	InputCount           int     `json:"inputCount"`
	OutputCount          int     `json:"outputCount"`
	IsCoinbase           bool    `json:"isCoinbase"`
}

// BurnConfidence is the detector's confidence that a pubkey matches a known
// burn-key template.
type BurnConfidence string

const (
	ConfidenceHigh   BurnConfidence = "High"
	ConfidenceMedium BurnConfidence = "Medium"
	ConfidenceLow    BurnConfidence = "Low"
)

// BurnPattern records a single pubkey slot matching a known burn template.
type BurnPattern struct {
	Txid        string         `json:"txid"`
	Vout        uint32         `json:"vout"`
	PubkeyIndex int            `json:"pubkeyIndex"`
	PatternType string         `json:"patternType"`
	PatternData string         `json:"patternData"`
	Confidence  BurnConfidence `json:"confidence"`
}

// ProtocolType enumerates the classifier chain's possible verdicts. Order
// below is the canonical sort/discriminant order.
type ProtocolType string

const (
	ProtocolBitcoinStamps            ProtocolType = "BitcoinStamps"
	ProtocolCounterparty             ProtocolType = "Counterparty"
	ProtocolAsciiIdentifierProtocols ProtocolType = "AsciiIdentifierProtocols"
	ProtocolOmniLayer                ProtocolType = "OmniLayer"
	ProtocolChancecoin               ProtocolType = "Chancecoin"
	ProtocolPPk                      ProtocolType = "PPk"
	ProtocolOpReturnSignalled        ProtocolType = "OpReturnSignalled"
	ProtocolDataStorage              ProtocolType = "DataStorage"
	ProtocolLikelyDataStorage        ProtocolType = "LikelyDataStorage"
	ProtocolLikelyLegitimateMultisig ProtocolType = "LikelyLegitimateMultisig"
	ProtocolUnknown                  ProtocolType = "Unknown"
	ProtocolWikiLeaksCablegate       ProtocolType = "WikiLeaksCablegate"
)

// TransactionClassification is the one-row-per-transaction Stage 3 verdict.
type TransactionClassification struct {
	Txid                   string       `json:"txid"`
	Protocol               ProtocolType `json:"protocol"`
	Variant                string       `json:"variant,omitempty"`
	ProtocolSignatureFound bool         `json:"protocolSignatureFound"`
	ClassificationMethod   string       `json:"classificationMethod"`
	AdditionalMetadata     string       `json:"additionalMetadata,omitempty"`
	ContentType            string       `json:"contentType,omitempty"`
	ClassifiedAt           uint64       `json:"classifiedAt"`
}

// SpendabilityReason enumerates the spendability analyser's verdict reasons.
type SpendabilityReason string

const (
	ReasonAllBurnKeys          SpendabilityReason = "AllBurnKeys"
	ReasonContainsRealPubkey   SpendabilityReason = "ContainsRealPubkey"
	ReasonInsufficientRealKeys SpendabilityReason = "InsufficientRealKeys"
	ReasonAllValidECPoints     SpendabilityReason = "AllValidECPoints"
	ReasonMixedBurnAndData     SpendabilityReason = "MixedBurnAndData"
	ReasonAllDataKeys          SpendabilityReason = "AllDataKeys"
)

// P2MSOutputClassification is the one-row-per-P2MS-output Stage 3 verdict.
// A store-level trigger rejects rows whose output is not script_type='multisig'.
type P2MSOutputClassification struct {
	Txid                   string             `json:"txid"`
	Vout                   uint32             `json:"vout"`
	Protocol               ProtocolType       `json:"protocol"`
	Variant                string             `json:"variant,omitempty"`
	ProtocolSignatureFound bool               `json:"protocolSignatureFound"`
	ClassificationMethod   string             `json:"classificationMethod"`
	AdditionalMetadata     string             `json:"additionalMetadata,omitempty"`
	ContentType            string             `json:"contentType,omitempty"`
	IsSpendable            bool               `json:"isSpendable"`
	SpendabilityReason     SpendabilityReason `json:"spendabilityReason"`
	RealPubkeyCount        uint8              `json:"realPubkeyCount"`
	BurnKeyCount           uint8              `json:"burnKeyCount"`
	DataKeyCount           uint8              `json:"dataKeyCount"`
	NullKeyCount           uint8              `json:"nullKeyCount"`
}

// StampsTransport records whether a Bitcoin Stamps payload rides natively
// (Pure) or inside a Counterparty message (Counterparty); it determines
// which spendability policy applies.
type StampsTransport string

const (
	StampsTransportPure          StampsTransport = "Pure"
	StampsTransportCounterparty  StampsTransport = "Counterparty"
)

// Stage1Checkpoint is the singleton resume record for the CSV ingest.
type Stage1Checkpoint struct {
	LastProcessedCount int64 `json:"lastProcessedCount"`
	TotalProcessed     int64 `json:"totalProcessed"`
	CSVLineNumber      int64 `json:"csvLineNumber"`
	BatchNumber        int64 `json:"batchNumber"`
	CreatedAt          int64 `json:"createdAt"`
}
