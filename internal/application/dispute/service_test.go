package dispute

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/session"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/tracker"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/catalog"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/demo"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/dispute"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/identity"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/progress"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/txn"
)

const wallet = "GDISPUTE"

type completions struct {
	mu     sync.Mutex
	events []demo.CompletionEvent
}

func (c *completions) WorkflowCompleted(_ context.Context, evt demo.CompletionEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

type fixture struct {
	sessions *session.Service
	disputes *Service
	done     *completions
	id       uuid.UUID
}

func setup(t *testing.T, fund bool) *fixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	done := &completions{}
	sessions := session.NewService(cat, tracker.New(tracker.ManualPolicy{}, zerolog.Nop()), nil, done, nil, nil, zerolog.Nop())
	ctx := context.Background()
	sess, err := sessions.StartSession(ctx, identity.Connected(wallet), "dispute-resolution")
	require.NoError(t, err)
	if fund {
		for _, st := range sess.Steps {
			rec, err := sessions.InvokeStepAction(ctx, identity.Connected(wallet), sess.SessionID, st.ID)
			require.NoError(t, err)
			_, err = sessions.ConfirmTransaction(ctx, rec.TransactionID, txn.StatusSuccess, "")
			require.NoError(t, err)
		}
	}
	return &fixture{
		sessions: sessions,
		disputes: NewService(sessions, nil, nil, zerolog.Nop()),
		done:     done,
		id:       sess.SessionID,
	}
}

func (f *fixture) approveAll(t *testing.T, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		_, err := f.disputes.MarkComplete(ctx, f.id, "worker", id)
		require.NoError(t, err)
		_, err = f.disputes.Approve(ctx, f.id, "client", id)
		require.NoError(t, err)
	}
}

func TestBoardRequiresFundedSession(t *testing.T) {
	f := setup(t, false)
	_, err := f.disputes.MarkComplete(context.Background(), f.id, "worker", "design")
	assert.True(t, progress.IsPrecondition(err))

	board, err := f.disputes.Board(context.Background(), f.id)
	require.NoError(t, err)
	assert.Len(t, board.Milestones, 3)
}

func TestRoleGating(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()

	_, err := f.disputes.MarkComplete(ctx, f.id, "client", "design")
	assert.True(t, progress.IsPrecondition(err))
	_, err = f.disputes.MarkComplete(ctx, f.id, "janitor", "design")
	assert.True(t, progress.IsPrecondition(err))

	m, err := f.disputes.MarkComplete(ctx, f.id, "worker", "design")
	require.NoError(t, err)
	assert.Equal(t, dispute.MilestoneCompleted, m.Status)
}

func TestRaiseDispute(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	_, err := f.disputes.MarkComplete(ctx, f.id, "worker", "build")
	require.NoError(t, err)

	_, err = f.disputes.RaiseDispute(ctx, f.id, "client", "build", "   ")
	assert.True(t, progress.IsPrecondition(err), "reason required")

	d, err := f.disputes.RaiseDispute(ctx, f.id, "client", "build", "storefront is missing checkout")
	require.NoError(t, err)
	assert.Equal(t, dispute.StatusOpen, d.Status)

	_, err = f.disputes.RaiseDispute(ctx, f.id, "client", "build", "again")
	assert.True(t, progress.IsConflict(err))

	board, err := f.disputes.Board(ctx, f.id)
	require.NoError(t, err)
	assert.Len(t, board.Disputes, 1)
	assert.Equal(t, dispute.MilestoneDisputed, board.Milestone("build").Status)
}

func TestResolveDispute(t *testing.T) {
	tests := []struct {
		resolution string
		want       dispute.MilestoneStatus
	}{
		{"approve", dispute.MilestoneApproved},
		{"reject", dispute.MilestoneCancelled},
		{"modify", dispute.MilestonePending},
	}
	for _, tt := range tests {
		t.Run(tt.resolution, func(t *testing.T) {
			f := setup(t, true)
			ctx := context.Background()
			_, err := f.disputes.MarkComplete(ctx, f.id, "worker", "launch")
			require.NoError(t, err)
			d, err := f.disputes.RaiseDispute(ctx, f.id, "client", "launch", "handover incomplete")
			require.NoError(t, err)

			_, err = f.disputes.ResolveDispute(ctx, f.id, "client", d.DisputeID, tt.resolution, "")
			assert.True(t, progress.IsPrecondition(err), "only the arbitrator resolves")

			out, err := f.disputes.ResolveDispute(ctx, f.id, "arbitrator", d.DisputeID, tt.resolution, "ruling")
			require.NoError(t, err)
			assert.Equal(t, dispute.StatusResolved, out.Status)
			require.NotNil(t, out.ResolvedAt)

			board, err := f.disputes.Board(ctx, f.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, board.Milestone("launch").Status)

			_, err = f.disputes.ResolveDispute(ctx, f.id, "arbitrator", d.DisputeID, tt.resolution, "")
			assert.True(t, progress.IsConflict(err))
		})
	}
}

func TestReleaseAllBlocked(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	f.approveAll(t, "design", "build")
	_, err := f.disputes.MarkComplete(ctx, f.id, "worker", "launch")
	require.NoError(t, err)
	d, err := f.disputes.RaiseDispute(ctx, f.id, "client", "launch", "late")
	require.NoError(t, err)

	before, err := f.disputes.Board(ctx, f.id)
	require.NoError(t, err)

	_, err = f.disputes.ReleaseAll(ctx, f.id)
	require.Error(t, err)
	var pe *progress.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Blockers, "milestone launch is DISPUTED")
	assert.Contains(t, pe.Blockers, "dispute "+d.DisputeID.String()+" on milestone launch is open")

	after, err := f.disputes.Board(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, f.done.events)
}

func TestReleaseAllCompletesSession(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	f.approveAll(t, "design", "build")
	_, err := f.disputes.MarkComplete(ctx, f.id, "worker", "launch")
	require.NoError(t, err)
	d, err := f.disputes.RaiseDispute(ctx, f.id, "client", "launch", "late")
	require.NoError(t, err)
	_, err = f.disputes.ResolveDispute(ctx, f.id, "arbitrator", d.DisputeID, "approve", "")
	require.NoError(t, err)

	board, err := f.disputes.ReleaseAll(ctx, f.id)
	require.NoError(t, err)
	for _, m := range board.Milestones {
		assert.Equal(t, dispute.MilestoneReleased, m.Status)
	}
	require.Len(t, f.done.events, 1)
	assert.Equal(t, "dispute-resolution", f.done.events[0].DemoID)
	assert.Equal(t, demo.CompleteOnRelease, f.done.events[0].Via)

	_, err = f.disputes.ReleaseAll(ctx, f.id)
	assert.True(t, progress.IsConflict(err))
	assert.Len(t, f.done.events, 1)
}
