package ledgerclient

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/tracker"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/txn"
)

var _ tracker.LedgerClient = (*Simulated)(nil)

func testOp() txn.Operation {
	return txn.Operation{TransactionID: uuid.New(), WalletID: "GA", Kind: "initialize_escrow"}
}

func TestSimulated_Submit(t *testing.T) {
	tests := []struct {
		name   string
		rate   float64
		status txn.Status
	}{
		{"always succeeds", 0, txn.StatusSuccess},
		{"always fails", 1, txn.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewSimulated(Options{FailureRate: tt.rate, Seed: 7}, zerolog.Nop())
			op := testOp()
			conf, err := c.Submit(context.Background(), op)
			require.NoError(t, err)
			assert.Equal(t, tt.status, conf.Status)
			assert.Equal(t, Hash(op), conf.Hash)
			assert.Len(t, conf.Hash, 64)
		})
	}
}

func TestSimulated_RespectsContext(t *testing.T) {
	c := NewSimulated(Options{Latency: time.Minute}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Submit(ctx, testOp())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHash_Stable(t *testing.T) {
	op := testOp()
	assert.Equal(t, Hash(op), Hash(op))
	other := op
	other.Kind = "release_funds"
	assert.NotEqual(t, Hash(op), Hash(other))
}
