package store

import (
	"database/sql"

	"github.com/deadmanoz/p2ms-forensics/internal/config"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// NextUnclassifiedTxids returns up to limit enriched txids that have not yet
// received a transaction_classifications row.
func (s *Store) NextUnclassifiedTxids(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT txid FROM enriched_transactions
		WHERE txid NOT IN (SELECT txid FROM transaction_classifications)
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, config.NewError(config.KindDb, "query unclassified txids", err)
	}
	defer rows.Close()

	var txids []string
	for rows.Next() {
		var txid string
		if err := rows.Scan(&txid); err != nil {
			return nil, config.NewError(config.KindDb, "scan unclassified txid", err)
		}
		txids = append(txids, txid)
	}
	return txids, rows.Err()
}

// GetEnrichedTransaction fetches the Stage 2 fee/size summary a classifier
// needs (data storage fee rate thresholds, coinbase exclusion, input/output
// counts for shape heuristics).
func (s *Store) GetEnrichedTransaction(txid string) (*models.EnrichedTransaction, error) {
	var t models.EnrichedTransaction
	var isCoinbase int
	row := s.db.QueryRow(`
		SELECT txid, height, total_input_value, total_output_value, transaction_fee, fee_per_byte,
		       transaction_size_bytes, fee_per_kb, total_p2ms_amount, data_storage_fee_rate,
		       p2ms_outputs_count, input_count, output_count, is_coinbase
		FROM enriched_transactions WHERE txid = ?
	`, txid)
	err := row.Scan(&t.Txid, &t.Height, &t.TotalInputValue, &t.TotalOutputValue, &t.TransactionFee,
		&t.FeePerByte, &t.TransactionSizeBytes, &t.FeePerKB, &t.TotalP2MSAmount, &t.DataStorageFeeRate,
		&t.P2MSOutputsCount, &t.InputCount, &t.OutputCount, &isCoinbase)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, config.NewError(config.KindDb, "get enriched transaction", err)
	}
	t.IsCoinbase = isCoinbase != 0
	return &t, nil
}

// GetP2MSOutputsForTx returns every multisig output belonging to txid, in
// vout order, so classifiers can iterate pubkey slots deterministically.
func (s *Store) GetP2MSOutputsForTx(txid string) ([]models.TransactionOutput, error) {
	return s.queryOutputs(`
		SELECT txid, vout, height, amount, script_hex, script_type, is_coinbase, script_size, metadata_json, address, is_spent
		FROM transaction_outputs WHERE txid = ? AND script_type = 'multisig' ORDER BY vout
	`, txid)
}

// GetAllOutputsForTx returns every output of txid regardless of script type,
// for classifiers that need to inspect sibling OP_RETURN/P2PKH outputs
// (e.g. Omni's and WikiLeaks' address checks, the OP_RETURN payloads
// OpReturnSignalled and PPk read).
func (s *Store) GetAllOutputsForTx(txid string) ([]models.TransactionOutput, error) {
	return s.queryOutputs(`
		SELECT txid, vout, height, amount, script_hex, script_type, is_coinbase, script_size, metadata_json, address, is_spent
		FROM transaction_outputs WHERE txid = ? ORDER BY vout
	`, txid)
}

// GetBurnPatternsForTx returns every detected burn-pattern match across all
// of a transaction's P2MS outputs.
func (s *Store) GetBurnPatternsForTx(txid string) ([]models.BurnPattern, error) {
	rows, err := s.db.Query(`
		SELECT txid, vout, pubkey_index, pattern_type, pattern_data, confidence
		FROM burn_patterns WHERE txid = ?
	`, txid)
	if err != nil {
		return nil, config.NewError(config.KindDb, "query burn patterns", err)
	}
	defer rows.Close()

	var out []models.BurnPattern
	for rows.Next() {
		var bp models.BurnPattern
		if err := rows.Scan(&bp.Txid, &bp.Vout, &bp.PubkeyIndex, &bp.PatternType, &bp.PatternData, &bp.Confidence); err != nil {
			return nil, config.NewError(config.KindDb, "scan burn pattern", err)
		}
		out = append(out, bp)
	}
	return out, rows.Err()
}

// GetFirstInputTxid returns the prev_txid of vin=0, the key several
// protocol detectors (Counterparty's ARC4 stream, Stamps' ARC4 decode) use
// to derive their decryption key.
func (s *Store) GetFirstInputTxid(txid string) (string, error) {
	var prevTxid string
	err := s.db.QueryRow(`
		SELECT prev_txid FROM transaction_inputs WHERE txid = ? AND vin = 0
	`, txid).Scan(&prevTxid)
	switch {
	case err == sql.ErrNoRows:
		return "", nil
	case err != nil:
		return "", config.NewError(config.KindDb, "get first input txid", err)
	}
	return prevTxid, nil
}

// ClassificationBatch bundles one Stage 3 batch's writes: the per-transaction
// verdict plus every per-output verdict it implies.
type ClassificationBatch struct {
	Transactions []models.TransactionClassification
	Outputs      []models.P2MSOutputClassification
}

// PersistClassifications writes one Stage 3 batch in a single transaction,
// in FK order: transaction_classifications before the p2ms_output_classifications
// rows that reference them.
func (s *Store) PersistClassifications(b ClassificationBatch) error {
	tx, err := s.db.Begin()
	if err != nil {
		return config.NewError(config.KindDb, "begin classification batch", err)
	}
	defer tx.Rollback()

	insertTx, err := tx.Prepare(`
		INSERT INTO transaction_classifications
			(txid, protocol, variant, protocol_signature_found, classification_method, additional_metadata, content_type, classified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return config.NewError(config.KindDb, "prepare transaction_classifications insert", err)
	}
	defer insertTx.Close()
	for _, c := range b.Transactions {
		if _, err := insertTx.Exec(c.Txid, string(c.Protocol), nullableString(c.Variant),
			boolToInt(c.ProtocolSignatureFound), c.ClassificationMethod, nullableString(c.AdditionalMetadata),
			nullableString(c.ContentType), c.ClassifiedAt); err != nil {
			return config.NewError(config.KindDb, "insert transaction_classification", err)
		}
	}

	insertOutput, err := tx.Prepare(`
		INSERT INTO p2ms_output_classifications
			(txid, vout, protocol, variant, protocol_signature_found, classification_method, additional_metadata,
			 content_type, is_spendable, spendability_reason, real_pubkey_count, burn_key_count, data_key_count, null_key_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return config.NewError(config.KindDb, "prepare p2ms_output_classifications insert", err)
	}
	defer insertOutput.Close()
	for _, o := range b.Outputs {
		if _, err := insertOutput.Exec(o.Txid, o.Vout, string(o.Protocol), nullableString(o.Variant),
			boolToInt(o.ProtocolSignatureFound), o.ClassificationMethod, nullableString(o.AdditionalMetadata),
			nullableString(o.ContentType), boolToInt(o.IsSpendable), string(o.SpendabilityReason),
			o.RealPubkeyCount, o.BurnKeyCount, o.DataKeyCount, o.NullKeyCount); err != nil {
			return config.NewError(config.KindDb, "insert p2ms_output_classification", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return config.NewError(config.KindDb, "commit classification batch", err)
	}
	return nil
}
