// Package rpcclient wraps Bitcoin Core's JSON-RPC interface for Stage 2
// enrichment: a bounded-concurrency pool of btcd rpcclient connections,
// exponential-backoff retries, and an LRU cache of decoded raw transactions
// to spare repeat lookups (e.g. a prevout fetched by more than one input).
package rpcclient

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"

	"github.com/deadmanoz/p2ms-forensics/internal/config"
)

// Kind classifies an RPC failure for the caller's retry/abort decision.
type Kind string

const (
	KindConnectionFailed Kind = "ConnectionFailed"
	KindCallFailed       Kind = "CallFailed"
	KindInvalidResponse  Kind = "InvalidResponse"
	KindTimeout          Kind = "Timeout"
)

// Error wraps an RPC failure with its Kind and the method that failed.
type Error struct {
	Kind   Kind
	Method string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc %s [%s]: %v", e.Method, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// txCacheSize bounds the raw-transaction LRU; Stage 2 fetches are one-shot
// per batch so this only helps when the same prevout is an input to more
// than one transaction in flight.
const txCacheSize = 4096

// Client pools rpcclient.Client connections behind a semaphore that bounds
// in-flight RPC calls to cfg.ConcurrentRequests, and retries failed calls
// with exponential backoff up to cfg.MaxRetries.
type Client struct {
	rpc    *rpcclient.Client
	sem    *semaphore.Weighted
	cfg    config.RPC
	txCache *lru.Cache[string, *btcjson.TxRawResult]
}

// New dials Bitcoin Core's RPC endpoint and verifies connectivity with a
// getblockcount call before returning.
func New(cfg config.RPC) (*Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.URL,
		User:         cfg.Username,
		Pass:         cfg.Password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}

	rpc, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, &Error{Kind: KindConnectionFailed, Method: "dial", Err: err}
	}

	if _, err := rpc.GetBlockCount(); err != nil {
		rpc.Shutdown()
		return nil, &Error{Kind: KindConnectionFailed, Method: "getblockcount", Err: err}
	}

	cache, err := lru.New[string, *btcjson.TxRawResult](txCacheSize)
	if err != nil {
		rpc.Shutdown()
		return nil, &Error{Kind: KindConnectionFailed, Method: "new lru cache", Err: err}
	}

	log.Printf("[rpcclient] connected to %s (concurrency=%d, max_retries=%d)", cfg.URL, cfg.ConcurrentRequests, cfg.MaxRetries)
	return &Client{
		rpc:     rpc,
		sem:     semaphore.NewWeighted(int64(cfg.ConcurrentRequests)),
		cfg:     cfg,
		txCache: cache,
	}, nil
}

func (c *Client) Shutdown() { c.rpc.Shutdown() }

// GetRawTransaction fetches a transaction's verbose JSON decoding, bounded
// by the concurrency semaphore and retried with exponential backoff. Results
// are cached by txid since the same prevout may be fetched by more than one
// Stage 2 input lookup within a batch.
func (c *Client) GetRawTransaction(ctx context.Context, txid string) (*btcjson.TxRawResult, error) {
	if cached, ok := c.txCache.Get(txid); ok {
		return cached, nil
	}

	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, &Error{Kind: KindInvalidResponse, Method: "getrawtransaction", Err: err}
	}

	result, err := withRetry(ctx, c.cfg, "getrawtransaction", func() (*btcjson.TxRawResult, error) {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, &Error{Kind: KindTimeout, Method: "getrawtransaction", Err: err}
		}
		defer c.sem.Release(1)
		return c.rpc.GetRawTransactionVerbose(hash)
	})
	if err != nil {
		return nil, err
	}

	c.txCache.Add(txid, result)
	return result, nil
}

// GetBlockHashAndTime fetches the hash and timestamp for a block height, for
// Stage 2's block-backfill pass.
func (c *Client) GetBlockHashAndTime(ctx context.Context, height int64) (string, uint64, error) {
	hash, err := withRetry(ctx, c.cfg, "getblockhash", func() (*chainhash.Hash, error) {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, &Error{Kind: KindTimeout, Method: "getblockhash", Err: err}
		}
		defer c.sem.Release(1)
		return c.rpc.GetBlockHash(height)
	})
	if err != nil {
		return "", 0, err
	}

	block, err := withRetry(ctx, c.cfg, "getblock", func() (*btcjson.GetBlockVerboseResult, error) {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, &Error{Kind: KindTimeout, Method: "getblock", Err: err}
		}
		defer c.sem.Release(1)
		return c.rpc.GetBlockVerbose(hash)
	})
	if err != nil {
		return "", 0, err
	}

	return hash.String(), uint64(block.Time), nil
}

// withRetry runs call, retrying on failure with exponential backoff up to
// cfg.MaxRetries times. The last error is wrapped as a CallFailed Error if it
// isn't already a classified *Error.
func withRetry[T any](ctx context.Context, cfg config.RPC, method string, call func() (T, error)) (T, error) {
	var zero T
	backoff := time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	maxBackoff := time.Duration(cfg.MaxBackoffSeconds) * time.Second

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := call()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return zero, &Error{Kind: KindTimeout, Method: method, Err: ctx.Err()}
		case <-time.After(backoff):
		}

		backoff = time.Duration(math.Min(float64(backoff)*cfg.BackoffMultiplier, float64(maxBackoff)))
	}

	if rpcErr, ok := lastErr.(*Error); ok {
		return zero, rpcErr
	}
	return zero, &Error{Kind: KindCallFailed, Method: method, Err: lastErr}
}
