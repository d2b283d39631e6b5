// Package stage3 drives the priority-ordered protocol detector chain over
// every enriched, unclassified transaction, following the same
// batch-drain/progress-ticker shape Stage 2 uses.
package stage3

import (
	"context"
	"log"
	"time"

	"github.com/deadmanoz/p2ms-forensics/internal/classify"
	"github.com/deadmanoz/p2ms-forensics/internal/config"
	"github.com/deadmanoz/p2ms-forensics/internal/stats"
	"github.com/deadmanoz/p2ms-forensics/internal/store"
)

// Run drains unclassified transactions in batches of cfg.BatchSize until the
// store reports none remain.
func Run(ctx context.Context, s *store.Store, cfg *config.Config) error {
	metrics := stats.NewStage3Metrics()
	ticker := stats.StartTicker(time.Duration(cfg.ProgressIntervalMs)*time.Millisecond, func() {
		log.Printf("[Stage3] %s", metrics.FormatCustomMetrics())
	})
	defer ticker.Stop()

	chain := classify.DefaultChain()
	// verdictCache short-circuits re-classification when the same txid
	// recurs within one process lifetime: a hit skips the detector chain and
	// reuses the cached verdict, per-output verdicts included, so the txid
	// still gets its full set of rows.
	verdictCache := make(map[string]classify.Verdict)

	for {
		txids, err := s.NextUnclassifiedTxids(cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(txids) == 0 {
			break
		}

		if err := processBatch(ctx, s, metrics, chain, verdictCache, txids); err != nil {
			return err
		}
	}

	log.Printf("[Stage3] complete | %s", metrics.FormatCustomMetrics())
	return nil
}

func processBatch(ctx context.Context, s *store.Store, metrics *stats.Stage3Metrics,
	chain []classify.Detector, verdictCache map[string]classify.Verdict, txids []string) error {
	_ = ctx

	batch := store.ClassificationBatch{}
	now := uint64(time.Now().Unix())

	for _, txid := range txids {
		verdict, cached := verdictCache[txid]
		if !cached {
			txCtx, ok, err := buildTxContext(s, txid)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			verdict = classify.ClassifyTransaction(txCtx, chain)
			verdictCache[txid] = verdict
		}

		verdict.Transaction.ClassifiedAt = now
		batch.Transactions = append(batch.Transactions, verdict.Transaction)
		batch.Outputs = append(batch.Outputs, verdict.Outputs...)
		metrics.IncProtocol(string(verdict.Transaction.Protocol))
	}

	return s.PersistClassifications(batch)
}

// buildTxContext assembles the read-only view classify.Detector.Classify
// needs for one transaction: the enriched summary, every output, the
// multisig-only subset, detected burn patterns, and the funding txid ARC4-
// keyed protocols derive their stream-cipher key from.
func buildTxContext(s *store.Store, txid string) (classify.TxContext, bool, error) {
	tx, err := s.GetEnrichedTransaction(txid)
	if err != nil {
		return classify.TxContext{}, false, err
	}
	if tx == nil {
		return classify.TxContext{}, false, nil
	}

	allOutputs, err := s.GetAllOutputsForTx(txid)
	if err != nil {
		return classify.TxContext{}, false, err
	}
	p2msOutputs, err := s.GetP2MSOutputsForTx(txid)
	if err != nil {
		return classify.TxContext{}, false, err
	}
	burns, err := s.GetBurnPatternsForTx(txid)
	if err != nil {
		return classify.TxContext{}, false, err
	}
	firstInputTxid, err := s.GetFirstInputTxid(txid)
	if err != nil {
		return classify.TxContext{}, false, err
	}

	return classify.TxContext{
		Tx:             *tx,
		AllOutputs:     allOutputs,
		P2MSOutputs:    p2msOutputs,
		BurnPatterns:   burns,
		FirstInputTxid: firstInputTxid,
	}, true, nil
}
