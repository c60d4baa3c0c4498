// Package ledgerclient provides ledger clients the step tracker can submit
// operations to.
package ledgerclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/txn"
)

// Options configures a Simulated client.
type Options struct {
	Latency     time.Duration
	FailureRate float64
	Seed        int64
}

// Simulated stands in for a real network. It answers every operation after
// a fixed latency and fails a configurable share of them.
type Simulated struct {
	opts   Options
	mu     sync.Mutex
	rnd    *rand.Rand
	logger zerolog.Logger
}

func NewSimulated(opts Options, logger zerolog.Logger) *Simulated {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulated{
		opts:   opts,
		rnd:    rand.New(rand.NewSource(seed)),
		logger: logger.With().Str("component", "ledger-client").Logger(),
	}
}

// Submit waits out the latency and returns a confirmation. It returns the
// context error if ctx ends first.
func (c *Simulated) Submit(ctx context.Context, op txn.Operation) (txn.Confirmation, error) {
	if c.opts.Latency > 0 {
		timer := time.NewTimer(c.opts.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return txn.Confirmation{}, ctx.Err()
		case <-timer.C:
		}
	}

	hash := Hash(op)
	if c.fail() {
		c.logger.Debug().Str("transactionId", op.TransactionID.String()).Str("kind", op.Kind).Msg("simulated rejection")
		return txn.Confirmation{
			Status:  txn.StatusFailed,
			Message: fmt.Sprintf("%s rejected by network", op.Kind),
			Hash:    hash,
		}, nil
	}
	return txn.Confirmation{Status: txn.StatusSuccess, Message: "confirmed", Hash: hash}, nil
}

func (c *Simulated) fail() bool {
	if c.opts.FailureRate <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.Float64() < c.opts.FailureRate
}

// Hash derives a stable transaction hash for an operation.
func Hash(op txn.Operation) string {
	sum := sha256.Sum256([]byte(op.TransactionID.String() + "|" + op.WalletID + "|" + op.Kind))
	return hex.EncodeToString(sum[:])
}
