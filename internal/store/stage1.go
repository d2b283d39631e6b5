package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/deadmanoz/p2ms-forensics/internal/config"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// LoadCheckpoint returns the singleton stage1_checkpoint row, or nil if none
// exists (a fresh run, or one that completed and cleared it).
func (s *Store) LoadCheckpoint() (*models.Stage1Checkpoint, error) {
	var cp models.Stage1Checkpoint
	row := s.db.QueryRow(`SELECT last_processed_count, total_processed, csv_line_number, batch_number, created_at FROM stage1_checkpoint WHERE id = 1`)
	err := row.Scan(&cp.LastProcessedCount, &cp.TotalProcessed, &cp.CSVLineNumber, &cp.BatchNumber, &cp.CreatedAt)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, config.NewError(config.KindDb, "load checkpoint", err)
	}
	return &cp, nil
}

// ClearCheckpoint deletes the checkpoint row on clean Stage 1 completion.
func (s *Store) ClearCheckpoint() error {
	if _, err := s.db.Exec(`DELETE FROM stage1_checkpoint WHERE id = 1`); err != nil {
		return config.NewError(config.KindDb, "clear checkpoint", err)
	}
	return nil
}

// InsertStage1Batch atomically inserts a batch of Stage 1 outputs, ensures a
// block stub exists for every referenced height, and refreshes the
// checkpoint — all in one transaction so the pair is atomic per spec §4.2
// step 4 / §5 "Database" ordering guarantee.
func (s *Store) InsertStage1Batch(outputs []models.TransactionOutput, checkpoint models.Stage1Checkpoint) error {
	tx, err := s.db.Begin()
	if err != nil {
		return config.NewError(config.KindDb, "begin stage1 batch", err)
	}
	defer tx.Rollback()

	heights := map[uint32]struct{}{}
	for _, o := range outputs {
		heights[o.Height] = struct{}{}
	}
	insertBlock, err := tx.Prepare(`INSERT OR IGNORE INTO blocks (height) VALUES (?)`)
	if err != nil {
		return config.NewError(config.KindDb, "prepare block insert", err)
	}
	defer insertBlock.Close()
	for h := range heights {
		if _, err := insertBlock.Exec(h); err != nil {
			return config.NewError(config.KindDb, "insert block stub", err)
		}
	}

	insertOutput, err := tx.Prepare(`
		INSERT OR IGNORE INTO transaction_outputs
			(txid, vout, height, amount, script_hex, script_type, is_coinbase, script_size, metadata_json, address, is_spent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
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

	for _, o := range outputs {
		if _, err := insertOutput.Exec(o.Txid, o.Vout, o.Height, o.AmountSats, o.ScriptHex,
			string(o.ScriptType), boolToInt(o.IsCoinbase), o.ScriptSize, nullableJSON(o.Metadata), nullableString(o.Address)); err != nil {
			return config.NewError(config.KindDb, "insert transaction_output", err)
		}
		if meta, ok := o.MultisigInfo(); ok {
			pubkeysJSON, err := json.Marshal(meta.Pubkeys)
			if err != nil {
				return config.NewError(config.KindDb, "marshal pubkeys", err)
			}
			if _, err := insertP2MS.Exec(o.Txid, o.Vout, meta.RequiredSigs, meta.TotalPubkeys, string(pubkeysJSON)); err != nil {
				return config.NewError(config.KindDb, "insert p2ms_output", err)
			}
		}
	}

	if checkpoint.CreatedAt == 0 {
		checkpoint.CreatedAt = time.Now().Unix()
	}
	if _, err := tx.Exec(`
		INSERT INTO stage1_checkpoint (id, last_processed_count, total_processed, csv_line_number, batch_number, created_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_processed_count = excluded.last_processed_count,
			total_processed      = excluded.total_processed,
			csv_line_number      = excluded.csv_line_number,
			batch_number         = excluded.batch_number,
			created_at           = excluded.created_at
	`, checkpoint.LastProcessedCount, checkpoint.TotalProcessed, checkpoint.CSVLineNumber, checkpoint.BatchNumber, checkpoint.CreatedAt); err != nil {
		return config.NewError(config.KindDb, "upsert checkpoint", err)
	}

	if err := tx.Commit(); err != nil {
		return config.NewError(config.KindDb, "commit stage1 batch", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
