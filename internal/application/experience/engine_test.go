package experience

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/tracker"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/catalog"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/demo"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/identity"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/progress"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/txn"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/infrastructure/memory"
)

var player = identity.Connected("GPLAYER")

func newEngine(t *testing.T, policy tracker.CompletionPolicy) *Engine {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return New(Deps{
		Catalog:  cat,
		Accounts: memory.NewAccountRepository(),
		History:  memory.NewHistoryRepository(),
		Policy:   policy,
		Logger:   zerolog.Nop(),
	})
}

func runSteps(t *testing.T, e *Engine, sess *demo.Session) {
	t.Helper()
	ctx := context.Background()
	for _, st := range sess.Steps {
		rec, err := e.InvokeStepAction(ctx, player, sess.SessionID, st.ID)
		require.NoError(t, err)
		_, err = e.ConfirmTransaction(ctx, rec.TransactionID, txn.StatusSuccess, "")
		require.NoError(t, err)
	}
}

func TestFullProgression(t *testing.T) {
	e := newEngine(t, tracker.ManualPolicy{})
	ctx := context.Background()

	hello, err := e.StartSession(ctx, player, "hello-milestone")
	require.NoError(t, err)
	runSteps(t, e, hello)

	done, err := e.HasCompletedDemo(ctx, player, "hello-milestone")
	require.NoError(t, err)
	assert.True(t, done)
	held, err := e.HasBadge(ctx, player, "escrow-expert")
	require.NoError(t, err)
	assert.True(t, held)

	market, err := e.StartSession(ctx, player, "micro-marketplace")
	require.NoError(t, err)
	runSteps(t, e, market)

	disp, err := e.StartSession(ctx, player, "dispute-resolution")
	require.NoError(t, err)
	runSteps(t, e, disp)
	for _, m := range []string{"design", "build", "launch"} {
		_, err := e.MarkMilestoneComplete(ctx, disp.SessionID, "worker", m)
		require.NoError(t, err)
	}
	_, err = e.ApproveMilestone(ctx, disp.SessionID, "client", "design")
	require.NoError(t, err)
	_, err = e.ApproveMilestone(ctx, disp.SessionID, "client", "launch")
	require.NoError(t, err)
	d, err := e.RaiseDispute(ctx, disp.SessionID, "client", "build", "checkout is broken")
	require.NoError(t, err)
	_, err = e.ReleaseAll(ctx, disp.SessionID)
	assert.True(t, progress.IsPrecondition(err))
	_, err = e.ResolveDispute(ctx, disp.SessionID, "arbitrator", d.DisputeID, "approve", "fixed in review")
	require.NoError(t, err)
	_, err = e.ReleaseAll(ctx, disp.SessionID)
	require.NoError(t, err)

	held, err = e.HasBadge(ctx, player, "trust-guardian")
	require.NoError(t, err)
	assert.True(t, held)

	unlocks, err := e.Unlocks(ctx, player)
	require.NoError(t, err)
	byFeature := map[string]bool{}
	for _, u := range unlocks {
		byFeature[u.Feature] = u.Unlocked
	}
	assert.True(t, byFeature["mini-games"])
	assert.True(t, byFeature["leaderboard"])

	res, err := e.ClaimCompositeBadge(ctx, player)
	require.NoError(t, err)
	require.NotNil(t, res.Badge)
	assert.Equal(t, "nexus-master", res.Badge.BadgeID)

	sum, err := e.Summary(ctx, player)
	require.NoError(t, err)
	for _, b := range sum.Badges {
		assert.True(t, b.Earned, b.ID)
	}
	assert.Len(t, sum.Demos, 3)

	entries, err := e.ListHistory(ctx, player, 100, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestAutoResolveAdvancesStep(t *testing.T) {
	e := newEngine(t, tracker.OptimisticPolicy{Delay: 10 * time.Millisecond})
	ctx := context.Background()
	sess, err := e.StartSession(ctx, player, "hello-milestone")
	require.NoError(t, err)

	rec, err := e.InvokeStepAction(ctx, player, sess.SessionID, "initialize-escrow")
	require.NoError(t, err)
	require.NotNil(t, rec.AutoResolveDeadline)

	require.Eventually(t, func() bool {
		got, _ := e.GetSession(ctx, sess.SessionID)
		return got.CurrentStepIndex == 1
	}, time.Second, 2*time.Millisecond)

	got, ok := e.Tracker.Get(rec.TransactionID)
	require.True(t, ok)
	assert.Equal(t, txn.StatusSuccess, got.Status)
	assert.Equal(t, txn.SourceAuto, got.Source)
}

func TestResetBeatsPendingTimer(t *testing.T) {
	e := newEngine(t, tracker.OptimisticPolicy{Delay: 30 * time.Millisecond})
	ctx := context.Background()
	sess, err := e.StartSession(ctx, player, "hello-milestone")
	require.NoError(t, err)

	_, err = e.InvokeStepAction(ctx, player, sess.SessionID, "initialize-escrow")
	require.NoError(t, err)
	_, err = e.ResetSession(ctx, sess.SessionID)
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	got, err := e.GetSession(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentStepIndex)
	assert.Nil(t, got.Steps[0].PendingTransactionID)
	assert.Equal(t, demo.StepCurrent, got.Steps[0].Status)
	assert.Empty(t, e.Tracker.Pending(sess.SessionID))
}

func TestWalletRequired(t *testing.T) {
	e := newEngine(t, tracker.ManualPolicy{})
	ctx := context.Background()

	_, err := e.CompleteDemo(ctx, identity.Disconnected(), "hello-milestone", nil, 0)
	assert.True(t, progress.IsPrecondition(err))
	_, err = e.ClapDemo(ctx, nil, "hello-milestone")
	assert.True(t, progress.IsPrecondition(err))
	_, err = e.Unlocks(ctx, identity.Disconnected())
	assert.True(t, progress.IsPrecondition(err))
}
