package txn

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/progress"
)

func TestNewRecord(t *testing.T) {
	sessionID := uuid.New()
	now := time.Now()

	rec := NewRecord(sessionID, "fund-escrow", 2, now)

	require.NotNil(t, rec)
	assert.NotEqual(t, uuid.Nil, rec.TransactionID)
	assert.Equal(t, sessionID, rec.SessionID)
	assert.Equal(t, "fund-escrow", rec.StepID)
	assert.Equal(t, uint64(2), rec.Epoch)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Nil(t, rec.ResolvedAt)
	assert.False(t, rec.IsTerminal())
}

func TestRecord_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name     string
		from     Status
		to       Status
		expected bool
	}{
		{name: "PENDING -> SUCCESS", from: StatusPending, to: StatusSuccess, expected: true},
		{name: "PENDING -> FAILED", from: StatusPending, to: StatusFailed, expected: true},
		{name: "PENDING -> PENDING (invalid)", from: StatusPending, to: StatusPending, expected: false},
		{name: "SUCCESS -> FAILED (invalid)", from: StatusSuccess, to: StatusFailed, expected: false},
		{name: "FAILED -> SUCCESS (invalid)", from: StatusFailed, to: StatusSuccess, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewRecord(uuid.New(), "s", 0, time.Now())
			rec.Status = tt.from
			assert.Equal(t, tt.expected, rec.CanTransitionTo(tt.to))
		})
	}
}

func TestRecord_Resolve(t *testing.T) {
	t.Run("success from PENDING", func(t *testing.T) {
		rec := NewRecord(uuid.New(), "s", 0, time.Now())

		err := rec.Resolve(StatusSuccess, SourceAuto, "", time.Now())

		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, rec.Status)
		assert.Equal(t, SourceAuto, rec.Source)
		require.NotNil(t, rec.ResolvedAt)
	})

	t.Run("second resolution is rejected", func(t *testing.T) {
		rec := NewRecord(uuid.New(), "s", 0, time.Now())
		require.NoError(t, rec.Resolve(StatusFailed, SourceConfirmation, "rejected by network", time.Now()))

		err := rec.Resolve(StatusSuccess, SourceAuto, "", time.Now())

		assert.ErrorIs(t, err, ErrAlreadyResolved)
		assert.Equal(t, StatusFailed, rec.Status)
		assert.Equal(t, "rejected by network", rec.Message)
	})

	t.Run("pending is not an outcome", func(t *testing.T) {
		rec := NewRecord(uuid.New(), "s", 0, time.Now())

		err := rec.Resolve(StatusPending, SourceManual, "", time.Now())

		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, StatusPending, rec.Status)
	})
}

func TestRecord_Err(t *testing.T) {
	t.Run("failed record", func(t *testing.T) {
		rec := NewRecord(uuid.New(), "s", 0, time.Now())
		require.NoError(t, rec.Resolve(StatusFailed, SourceConfirmation, "insufficient balance", time.Now()))

		err := rec.Err()

		require.Error(t, err)
		assert.ErrorIs(t, err, progress.ErrTransactionFailed)
		assert.Contains(t, err.Error(), "insufficient balance")
		assert.Contains(t, err.Error(), rec.TransactionID.String())
	})

	t.Run("pending and successful records", func(t *testing.T) {
		rec := NewRecord(uuid.New(), "s", 0, time.Now())
		assert.NoError(t, rec.Err())
		require.NoError(t, rec.Resolve(StatusSuccess, SourceAuto, "", time.Now()))
		assert.NoError(t, rec.Err())
	})
}
