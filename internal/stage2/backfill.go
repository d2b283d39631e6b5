package stage2

import (
	"context"
	"log"

	"github.com/deadmanoz/p2ms-forensics/internal/rpcclient"
	"github.com/deadmanoz/p2ms-forensics/internal/stats"
	"github.com/deadmanoz/p2ms-forensics/internal/store"
	"github.com/deadmanoz/p2ms-forensics/pkg/models"
)

// backfillBlocks implements spec §4.4 step 4 (Stage 2A): for every height in
// this batch not already in blockCache, fetch (hash, timestamp) and
// batch-UPDATE blocks. Transient failures are counted and warned, never
// fatal — only successfully updated heights enter the cache.
func backfillBlocks(ctx context.Context, s *store.Store, rpc *rpcclient.Client, metrics *stats.Stage2Metrics, blockCache map[uint32]bool, heights []uint32) error {
	var candidates []uint32
	for _, h := range heights {
		if !blockCache[h] {
			candidates = append(candidates, h)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	needBackfill, err := s.HeightsNeedingBackfill(candidates)
	if err != nil {
		return err
	}
	for _, h := range candidates {
		if !contains(needBackfill, h) {
			blockCache[h] = true
		}
	}

	var updates []models.Block
	for _, h := range needBackfill {
		hash, timestamp, err := rpc.GetBlockHashAndTime(ctx, int64(h))
		if err != nil {
			log.Printf("[Stage2] block backfill failed for height %d: %v (will retry next run)", h, err)
			metrics.IncBackfillFail()
			continue
		}
		updates = append(updates, models.Block{Height: h, BlockHash: hash, Timestamp: timestamp})
		blockCache[h] = true
	}

	if len(updates) == 0 {
		return nil
	}
	return s.BackfillBlocks(updates)
}

func contains(haystack []uint32, needle uint32) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
