package store

import (
	"strings"

	"github.com/deadmanoz/p2ms-forensics/internal/config"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// NextUnenrichedTxids returns up to limit P2MS-bearing txids that have not
// yet been enriched, per spec §4.4's batch-selection query. An empty result
// signals Stage 2 is finished.
func (s *Store) NextUnenrichedTxids(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT txid FROM transaction_outputs
		WHERE script_type = 'multisig'
		  AND txid NOT IN (SELECT txid FROM enriched_transactions)
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, config.NewError(config.KindDb, "query unenriched txids", err)
	}
	defer rows.Close()

	var txids []string
	for rows.Next() {
		var txid string
		if err := rows.Scan(&txid); err != nil {
			return nil, config.NewError(config.KindDb, "scan unenriched txid", err)
		}
		txids = append(txids, txid)
	}
	return txids, rows.Err()
}

// GetP2MSOutputsByTxid returns the Stage-1-seeded multisig outputs for txid.
func (s *Store) GetP2MSOutputsByTxid(txid string) ([]models.TransactionOutput, error) {
	return s.queryOutputs(`SELECT txid, vout, height, amount, script_hex, script_type, is_coinbase, script_size, metadata_json, address, is_spent
		FROM transaction_outputs WHERE txid = ? AND script_type = 'multisig'`, txid)
}

func (s *Store) queryOutputs(query string, args ...interface{}) ([]models.TransactionOutput, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, config.NewError(config.KindDb, "query outputs", err)
	}
	defer rows.Close()

	var out []models.TransactionOutput
	for rows.Next() {
		var o models.TransactionOutput
		var meta, addr *string
		var isCoinbase, isSpent int
		if err := rows.Scan(&o.Txid, &o.Vout, &o.Height, &o.AmountSats, &o.ScriptHex, &o.ScriptType,
			&isCoinbase, &o.ScriptSize, &meta, &addr, &isSpent); err != nil {
			return nil, config.NewError(config.KindDb, "scan output", err)
		}
		o.IsCoinbase = isCoinbase != 0
		o.IsSpent = isSpent != 0
		if meta != nil {
			o.Metadata = []byte(*meta)
		}
		if addr != nil {
			o.Address = *addr
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// EnrichedBatch bundles one Stage 2 batch's writes for FK-ordered
// persistence: blocks → outputs → inputs → enriched → burn_patterns.
type EnrichedBatch struct {
	Heights []uint32
	Outputs []models.TransactionOutput // ALL outputs (not just P2MS) for every tx in the batch
	Inputs  []models.TransactionInput
	Txs     []models.EnrichedTransaction
	Burns   []models.BurnPattern
}

// PersistEnrichedBatch writes one Stage 2 batch in a single transaction,
// preserving the is_spent=0 flag on any output Stage 1 already seeded (an
// INSERT OR IGNORE keyed on (txid, vout) leaves the existing row alone).
func (s *Store) PersistEnrichedBatch(b EnrichedBatch) error {
	tx, err := s.db.Begin()
	if err != nil {
		return config.NewError(config.KindDb, "begin enrich batch", err)
	}
	defer tx.Rollback()

	insertBlock, err := tx.Prepare(`INSERT OR IGNORE INTO blocks (height) VALUES (?)`)
	if err != nil {
		return config.NewError(config.KindDb, "prepare block insert", err)
	}
	defer insertBlock.Close()
	for _, h := range b.Heights {
		if _, err := insertBlock.Exec(h); err != nil {
			return config.NewError(config.KindDb, "insert block stub", err)
		}
	}

	insertOutput, err := tx.Prepare(`
		INSERT OR IGNORE INTO transaction_outputs
			(txid, vout, height, amount, script_hex, script_type, is_coinbase, script_size, metadata_json, address, is_spent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return config.NewError(config.KindDb, "prepare output insert", err)
	}
	defer insertOutput.Close()

	insertP2MS, err := tx.Prepare(`
		INSERT OR IGNORE INTO p2ms_outputs (txid, vout, required_sigs, total_pubkeys, pubkeys_json)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return config.NewError(config.KindDb, "prepare p2ms_outputs insert", err)
	}
	defer insertP2MS.Close()

	for _, o := range b.Outputs {
		if _, err := insertOutput.Exec(o.Txid, o.Vout, o.Height, o.AmountSats, o.ScriptHex,
			string(o.ScriptType), boolToInt(o.IsCoinbase), o.ScriptSize, nullableJSON(o.Metadata),
			nullableString(o.Address), boolToInt(o.IsSpent)); err != nil {
			return config.NewError(config.KindDb, "insert transaction_output", err)
		}
		if meta, ok := o.MultisigInfo(); ok {
			pubkeysJSON := mustMarshalStrings(meta.Pubkeys)
			if _, err := insertP2MS.Exec(o.Txid, o.Vout, meta.RequiredSigs, meta.TotalPubkeys, pubkeysJSON); err != nil {
				return config.NewError(config.KindDb, "insert p2ms_output", err)
			}
		}
	}

	insertInput, err := tx.Prepare(`
		INSERT INTO transaction_inputs (txid, vin, prev_txid, prev_vout, value, script_sig, sequence, source_address)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return config.NewError(config.KindDb, "prepare input insert", err)
	}
	defer insertInput.Close()
	for _, in := range b.Inputs {
		if _, err := insertInput.Exec(in.ParentTxid, in.Index, in.PrevTxid, in.PrevVout, in.ValueSats,
			in.ScriptSigHex, in.Sequence, nullableString(in.SourceAddress)); err != nil {
			return config.NewError(config.KindDb, "insert transaction_input", err)
		}
	}

	insertTx, err := tx.Prepare(`
		INSERT INTO enriched_transactions
			(txid, height, total_input_value, total_output_value, transaction_fee, fee_per_byte,
			 transaction_size_bytes, fee_per_kb, total_p2ms_amount, data_storage_fee_rate,
			 p2ms_outputs_count, input_count, output_count, is_coinbase)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return config.NewError(config.KindDb, "prepare enriched_transactions insert", err)
	}
	defer insertTx.Close()
	for _, t := range b.Txs {
		if _, err := insertTx.Exec(t.Txid, t.Height, t.TotalInputValue, t.TotalOutputValue, t.TransactionFee,
			t.FeePerByte, t.TransactionSizeBytes, t.FeePerKB, t.TotalP2MSAmount, t.DataStorageFeeRate,
			t.P2MSOutputsCount, t.InputCount, t.OutputCount, boolToInt(t.IsCoinbase)); err != nil {
			return config.NewError(config.KindDb, "insert enriched_transaction", err)
		}
	}

	insertBurn, err := tx.Prepare(`
		INSERT INTO burn_patterns (txid, vout, pubkey_index, pattern_type, pattern_data, confidence)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return config.NewError(config.KindDb, "prepare burn_patterns insert", err)
	}
	defer insertBurn.Close()
	for _, bp := range b.Burns {
		if _, err := insertBurn.Exec(bp.Txid, bp.Vout, bp.PubkeyIndex, bp.PatternType, bp.PatternData, string(bp.Confidence)); err != nil {
			return config.NewError(config.KindDb, "insert burn_pattern", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return config.NewError(config.KindDb, "commit enrich batch", err)
	}
	return nil
}

// HeightsNeedingBackfill filters heights to those whose blocks row is still
// missing a hash or timestamp.
func (s *Store) HeightsNeedingBackfill(heights []uint32) ([]uint32, error) {
	if len(heights) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(heights))
	args := make([]interface{}, len(heights))
	for i, h := range heights {
		placeholders[i] = "?"
		args[i] = h
	}
	query := `SELECT height FROM blocks WHERE height IN (` + strings.Join(placeholders, ",") +
		`) AND (block_hash IS NULL OR timestamp IS NULL)`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, config.NewError(config.KindDb, "query heights needing backfill", err)
	}
	defer rows.Close()

	var need []uint32
	for rows.Next() {
		var h uint32
		if err := rows.Scan(&h); err != nil {
			return nil, config.NewError(config.KindDb, "scan height", err)
		}
		need = append(need, h)
	}
	return need, rows.Err()
}

// BackfillBlocks UPDATEs blocks rows with fetched hash/timestamp. All
// updates of one call run in a single transaction: a failure partway through
// rolls back every height in the call and returns the error.
func (s *Store) BackfillBlocks(blocks []models.Block) error {
	tx, err := s.db.Begin()
	if err != nil {
		return config.NewError(config.KindDb, "begin block backfill", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE blocks SET block_hash = ?, timestamp = ? WHERE height = ?`)
	if err != nil {
		return config.NewError(config.KindDb, "prepare block backfill", err)
	}
	defer stmt.Close()
	for _, b := range blocks {
		if _, err := stmt.Exec(b.BlockHash, b.Timestamp, b.Height); err != nil {
			return config.NewError(config.KindDb, "backfill block", err)
		}
	}
	return tx.Commit()
}

func mustMarshalStrings(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, s := range ss {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('"')
		sb.WriteString(s)
		sb.WriteByte('"')
	}
	sb.WriteByte(']')
	return sb.String()
}
