// Package stage1 streams the source UTXO CSV dump into the store, demoting
// mislabelled multisig rows per the script parser's strict shape check and
// checkpointing progress so an interrupted run can resume.
package stage1

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/deadmanoz/p2ms-forensics/internal/config"
	"github.com/deadmanoz/p2ms-forensics/internal/scriptparse"
	"github.com/deadmanoz/p2ms-forensics/internal/stats"
	"github.com/deadmanoz/p2ms-forensics/internal/store"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

const expectedHeader = "count,txid,vout,height,coinbase,amount,script,type,address"

// relevantTypes are the only CSV `type` values Stage 1 keeps; every other
// row (p2pkh, p2sh, …) is ignored per spec §6.1.
var relevantTypes = map[string]bool{"p2ms": true, "nonstandard": true}

// Run streams csvPath into the store in batches of cfg.BatchSize, resuming
// from any existing checkpoint, and logging progress every
// cfg.ProgressIntervalMs.
func Run(s *store.Store, cfg *config.Config) error {
	checkpoint, err := s.LoadCheckpoint()
	if err != nil {
		return err
	}
	resumeLine := int64(0)
	var batchNumber int64
	var totalProcessed int64
	if checkpoint != nil {
		resumeLine = checkpoint.CSVLineNumber
		batchNumber = checkpoint.BatchNumber
		totalProcessed = checkpoint.TotalProcessed
		log.Printf("[Stage1] resuming from checkpoint: line=%d batch=%d total=%d", resumeLine, batchNumber, totalProcessed)
	}

	totalLines, err := countDataLines(cfg.CSVPath)
	if err != nil {
		return config.NewError(config.KindIo, "pre-scan csv", err)
	}

	f, err := os.Open(cfg.CSVPath)
	if err != nil {
		return config.NewError(config.KindIo, "open csv", err)
	}
	defer f.Close()

	reader := csv.NewReader(bufio.NewReader(f))
	reader.Comment = '#'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return config.NewError(config.KindIo, "read csv header", err)
	}
	if joinCSVHeader(header) != expectedHeader {
		log.Printf("[Stage1] warning: unexpected header %q", joinCSVHeader(header))
	}

	for i := int64(0); i < resumeLine; i++ {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				break
			}
			return config.NewError(config.KindIo, "skip to checkpoint line", err)
		}
	}

	metrics := &stats.Stage1Metrics{TotalLines: totalLines, Processed: totalProcessed}
	ticker := stats.StartTicker(time.Duration(cfg.ProgressIntervalMs)*time.Millisecond, func() {
		log.Printf("[Stage1] %d/%d | %s", metrics.Processed, metrics.TotalLines, metrics.FormatCustomMetrics())
	})
	defer ticker.Stop()

	batch := make([]models.TransactionOutput, 0, cfg.BatchSize)
	lineNumber := resumeLine

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		batchNumber++
		cp := models.Stage1Checkpoint{
			LastProcessedCount: int64(len(batch)),
			TotalProcessed:     totalProcessed,
			CSVLineNumber:      lineNumber,
			BatchNumber:        batchNumber,
		}
		if err := s.InsertStage1Batch(batch, cp); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return config.NewError(config.KindIo, "read csv record", err)
		}
		lineNumber++

		row, parseErr := parseRow(record)
		if parseErr != nil {
			log.Printf("[Stage1] skipping malformed row at line %d: %v", lineNumber, parseErr)
			metrics.IncMalformed()
			continue
		}
		if !relevantTypes[row.typ] {
			continue
		}

		output := buildOutput(row)
		if row.typ == "p2ms" {
			metrics.IncP2MS()
			if output.ScriptType != models.ScriptMultisig {
				metrics.IncMalformed()
			}
		}
		metrics.IncProcessed()
		totalProcessed++

		batch = append(batch, output)
		if len(batch) >= cfg.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}
	if err := s.ClearCheckpoint(); err != nil {
		return err
	}

	log.Printf("[Stage1] complete: %d processed | %s", totalProcessed, metrics.FormatCustomMetrics())
	return nil
}

type csvRow struct {
	txid      string
	vout      uint32
	height    uint32
	coinbase  bool
	amount    uint64
	scriptHex string
	typ       string
	address   string
}

func parseRow(record []string) (csvRow, error) {
	if len(record) < 9 {
		return csvRow{}, fmt.Errorf("expected 9 fields, got %d", len(record))
	}
	vout, err := strconv.ParseUint(record[2], 10, 32)
	if err != nil {
		return csvRow{}, fmt.Errorf("parse vout: %w", err)
	}
	height, err := strconv.ParseUint(record[3], 10, 32)
	if err != nil {
		return csvRow{}, fmt.Errorf("parse height: %w", err)
	}
	amount, err := strconv.ParseUint(record[5], 10, 64)
	if err != nil {
		return csvRow{}, fmt.Errorf("parse amount: %w", err)
	}
	return csvRow{
		txid:      record[1],
		vout:      uint32(vout),
		height:    uint32(height),
		coinbase:  record[4] == "1",
		amount:    amount,
		scriptHex: record[6],
		typ:       record[7],
		address:   record[8],
	}, nil
}

func buildOutput(row csvRow) models.TransactionOutput {
	parsed := scriptparse.Parse(row.scriptHex)
	address := row.address
	if address == "" {
		address = parsed.Address
	}
	return models.TransactionOutput{
		Txid:       row.txid,
		Vout:       row.vout,
		Height:     row.height,
		AmountSats: row.amount,
		ScriptHex:  row.scriptHex,
		ScriptType: parsed.ScriptType,
		IsCoinbase: row.coinbase,
		ScriptSize: len(row.scriptHex) / 2,
		Metadata:   parsed.Metadata,
		Address:    address,
		IsSpent:    false,
	}
}

func countDataLines(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var count int64
	seenHeader := false
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if !seenHeader {
			seenHeader = true
			continue
		}
		count++
	}
	return count, scanner.Err()
}

func joinCSVHeader(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}
