package classify

import (
	"bytes"
	"encoding/hex"

	"github.com/deadmanoz/p2ms-forensics/internal/burnpattern"
	"github.com/deadmanoz/p2ms-forensics/internal/spendability"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// fileMagics are common file-format signatures that show up when someone
// stuffs whole files into P2MS pubkey slots.
var fileMagics = [][]byte{
	{0x89, 'P', 'N', 'G'},
	[]byte("GIF8"),
	{0xff, 0xd8, 0xff},
	[]byte("%PDF"),
	{'P', 'K', 0x03, 0x04}, // zip
	{0x1f, 0x8b},           // gzip
}

// DataStorageDetector is a generic bucket for P2MS outputs that carry
// recognisable data-storage shapes — a matched burn-key template, embedded
// file magic, or mostly-printable text — without matching any
// protocol-specific signature earlier in the chain.
type DataStorageDetector struct{}

func (DataStorageDetector) Name() string { return "DataStorage" }

func (DataStorageDetector) Classify(ctx TxContext) (Verdict, bool) {
	p2ms := filterP2MS(ctx.P2MSOutputs)
	if len(p2ms) == 0 {
		return Verdict{}, false
	}

	if len(ctx.BurnPatterns) > 0 {
		return buildDataStorageVerdict(ctx, p2ms, "DataStorageBurnPattern",
			"DataStorage: matched burn-key template"), true
	}

	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok {
			continue
		}
		for _, pk := range meta.Pubkeys {
			raw, err := hex.DecodeString(pk)
			if err != nil || len(raw) < 2 {
				continue
			}
			body := raw[1:] // drop the EC-point prefix byte
			for _, magic := range fileMagics {
				if bytes.HasPrefix(body, magic) {
					return buildDataStorageVerdict(ctx, p2ms, "DataStorageFileMagic",
						"DataStorage: embedded file magic bytes"), true
				}
			}
			if printableRatio(body) >= 0.9 {
				return buildDataStorageVerdict(ctx, p2ms, "DataStorageText",
					"DataStorage: mostly-printable pubkey payload"), true
			}
		}
	}

	return Verdict{}, false
}

func buildDataStorageVerdict(ctx TxContext, p2ms []models.TransactionOutput, variant, method string) Verdict {
	var outputs []models.P2MSOutputClassification
	for _, out := range p2ms {
		meta, ok := out.MultisigInfo()
		if !ok {
			continue
		}
		result := spendability.AnalyseGeneric(meta.Pubkeys, burnpattern.IsBurnKey)
		outputs = append(outputs, buildOutputClassification(out, models.ProtocolDataStorage, variant,
			true, method, "", "application/octet-stream", result))
	}

	return Verdict{
		Transaction: models.TransactionClassification{
			Txid:                   ctx.Tx.Txid,
			Protocol:               models.ProtocolDataStorage,
			Variant:                variant,
			ProtocolSignatureFound: true,
			ClassificationMethod:   method,
			ContentType:            "application/octet-stream",
		},
		Outputs: outputs,
	}
}
