package progress

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreconditionError(t *testing.T) {
	err := Precondition("step %s is not current", "fund")
	assert.True(t, IsPrecondition(err))
	assert.False(t, IsConflict(err))
	assert.Equal(t, "step fund is not current", err.Error())

	wrapped := fmt.Errorf("invoke: %w", err)
	assert.True(t, errors.Is(wrapped, ErrPrecondition))
}

func TestBlocked(t *testing.T) {
	err := Blocked("release blocked", []string{"m1 is COMPLETED", "dispute d1 is open"})
	assert.True(t, IsPrecondition(err))
	assert.Equal(t, "release blocked: m1 is COMPLETED, dispute d1 is open", err.Error())

	var pe *PreconditionError
	assert.True(t, errors.As(err, &pe))
	assert.Len(t, pe.Blockers, 2)
}

func TestConflictError(t *testing.T) {
	err := Conflict("badge %s already earned", "escrow-expert")
	assert.True(t, IsConflict(err))
	assert.False(t, IsPrecondition(err))
}

func TestTransactionError(t *testing.T) {
	err := &TransactionError{TransactionID: "tx-1", Message: "insufficient balance"}
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.Contains(t, err.Error(), "insufficient balance")
}
