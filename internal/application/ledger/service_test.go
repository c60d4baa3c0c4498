package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	historysvc "github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/history"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/catalog"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/account"
	accountmocks "github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/account/mocks"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/demo"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/history"
	historymocks "github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/history/mocks"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/notification"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/progress"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/infrastructure/memory"
)

const wallet = "GLEDGER"

func scored(v int) *int { return &v }

func testOptions() Options {
	return Options{NewBackOff: func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}}
}

type captureSink struct {
	msgs []*notification.Message
}

func (c *captureSink) Notify(_ context.Context, m *notification.Message) {
	c.msgs = append(c.msgs, m)
}

func (c *captureSink) topics() []notification.Topic {
	var out []notification.Topic
	for _, m := range c.msgs {
		out = append(out, m.Topic)
	}
	return out
}

type fixture struct {
	svc      *Service
	accounts *memory.AccountRepository
	history  *memory.HistoryRepository
	sink     *captureSink
}

func setup(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	f := &fixture{
		accounts: memory.NewAccountRepository(),
		history:  memory.NewHistoryRepository(),
		sink:     &captureSink{},
	}
	hist := historysvc.NewService(f.history, zerolog.Nop(), []byte("key"))
	f.svc = NewService(f.accounts, cat, hist, f.sink, testOptions(), zerolog.Nop())
	return f
}

func TestPoints(t *testing.T) {
	tests := []struct {
		name   string
		base   int64
		score  int
		replay bool
		want   int64
	}{
		{"perfect", 100, 100, false, 100},
		{"default score", 100, 85, false, 85},
		{"multiplier floor", 100, 20, false, 50},
		{"replay", 100, 100, true, 25},
		{"replay rounds", 150, 85, true, 32},
		{"rounding", 150, 85, false, 128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Points(tt.base, tt.score, tt.replay))
		})
	}
}

func TestCompleteDemo_FirstCompletion(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.svc.CompleteDemo(ctx, wallet, "hello-milestone", scored(100), 0)
	require.NoError(t, err)
	assert.False(t, res.Noop)
	assert.False(t, res.Replay)
	assert.Equal(t, int64(100), res.PointsEarned)
	assert.Equal(t, int64(200), res.ExperienceGained)
	require.NotNil(t, res.Badge)
	assert.Equal(t, "escrow-expert", res.Badge.BadgeID)

	acc := res.Account
	assert.True(t, acc.CompletedDemos.Has("hello-milestone"))
	assert.True(t, acc.EarnedBadges.Has("escrow-expert"))
	assert.Equal(t, int64(200), acc.TotalPoints)
	assert.Equal(t, int64(400), acc.Experience)
	assert.Equal(t, account.LevelFor(acc.Experience), acc.Level)

	stored, err := f.accounts.Read(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, acc.TotalPoints, stored.TotalPoints)
	assert.True(t, stored.CompletedDemos.Has("hello-milestone"))

	w := wallet
	entries, err := f.history.List(ctx, history.Filter{WalletID: &w}, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, history.EventBadgeAwarded, entries[0].Type)
	assert.Equal(t, history.EventDemoCompleted, entries[1].Type)

	assert.Contains(t, f.sink.topics(), notification.TopicBadge)
}

func TestCompleteDemo_Idempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.CompleteDemo(ctx, wallet, "micro-marketplace", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultScore, first.Score)

	second, err := f.svc.CompleteDemo(ctx, wallet, "micro-marketplace", scored(100), 0)
	require.NoError(t, err)
	assert.True(t, second.Noop)
	assert.Equal(t, first.Account.TotalPoints, second.Account.TotalPoints)
	assert.Equal(t, first.Account.Experience, second.Account.Experience)
	assert.Equal(t, first.Account.CompletedDemos.Values(), second.Account.CompletedDemos.Values())
}

func TestCompleteDemo_ExplicitScore(t *testing.T) {
	tests := []struct {
		name   string
		score  *int
		points int64
	}{
		{"absent uses default", nil, 85},
		{"zero hits multiplier floor", scored(0), 50},
		{"below floor", scored(30), 50},
		{"above hundred is not clamped", scored(150), 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			res, err := f.svc.CompleteDemo(context.Background(), wallet, "hello-milestone", tt.score, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.points, res.PointsEarned)
			assert.Equal(t, tt.points*ExperiencePerPoint, res.ExperienceGained)
			if tt.score != nil {
				assert.Equal(t, *tt.score, res.Score)
			} else {
				assert.Equal(t, DefaultScore, res.Score)
			}
		})
	}

	f := setup(t)
	_, err := f.svc.CompleteDemo(context.Background(), wallet, "hello-milestone", scored(-1), 0)
	assert.True(t, progress.IsPrecondition(err))
}

func TestCompleteDemo_Replay(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	prior := history.NewEntry(wallet, history.EventDemoCompleted)
	prior.DemoID = "hello-milestone"
	require.NoError(t, f.history.Append(ctx, prior))

	res, err := f.svc.CompleteDemo(ctx, wallet, "hello-milestone", scored(100), 0)
	require.NoError(t, err)
	assert.True(t, res.Replay)
	assert.Equal(t, int64(25), res.PointsEarned)
	assert.Equal(t, int64(50), res.ExperienceGained)
}

func TestCompleteDemo_Rejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CompleteDemo(ctx, wallet, "unknown", scored(100), 0)
	assert.ErrorIs(t, err, demo.ErrUnknownDemo)

	_, err = f.svc.CompleteDemo(ctx, wallet, "nexus-master", scored(100), 0)
	assert.True(t, progress.IsPrecondition(err))

	_, err = f.svc.CompleteDemo(ctx, "", "hello-milestone", scored(100), 0)
	assert.True(t, progress.IsPrecondition(err))
}

func TestAwardBadge_Exclusive(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := f.svc.AwardBadge(ctx, wallet, "trust-guardian")
		require.NoError(t, err)
		assert.Equal(t, i > 0, res.Noop)
	}
	acc, err := f.svc.Account(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, []string{"trust-guardian"}, acc.EarnedBadges.Values())
	assert.Equal(t, int64(150), acc.TotalPoints)
	assert.Equal(t, int64(300), acc.Experience)

	_, err = f.svc.AwardBadge(ctx, wallet, "nexus-master")
	assert.True(t, progress.IsPrecondition(err))
	_, err = f.svc.AwardBadge(ctx, wallet, "nope")
	assert.Error(t, err)
}

func TestAddExperienceAndPoints_Level(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		xp    int64
		level int
	}{
		{999, 1},
		{1, 2},
		{1000, 3},
		{0, 3},
	}
	for _, tt := range tests {
		acc, err := f.svc.AddExperienceAndPoints(ctx, wallet, tt.xp, 0)
		require.NoError(t, err)
		assert.Equal(t, tt.level, acc.Level)
		assert.Equal(t, account.LevelFor(acc.Experience), acc.Level)
	}
	assert.Contains(t, f.sink.topics(), notification.TopicLevel)

	_, err := f.svc.AddExperienceAndPoints(ctx, wallet, -1, 0)
	assert.True(t, progress.IsPrecondition(err))
}

func TestClaimCompositeBadge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CompleteDemo(ctx, wallet, "hello-milestone", scored(100), 0)
	require.NoError(t, err)

	_, err = f.svc.ClaimCompositeBadge(ctx, wallet)
	var pe *progress.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []string{"trust-guardian", "stellar-champion"}, pe.Blockers)

	_, err = f.svc.CompleteDemo(ctx, wallet, "dispute-resolution", scored(100), 0)
	require.NoError(t, err)
	_, err = f.svc.CompleteDemo(ctx, wallet, "micro-marketplace", scored(100), 0)
	require.NoError(t, err)

	res, err := f.svc.ClaimCompositeBadge(ctx, wallet)
	require.NoError(t, err)
	assert.False(t, res.Noop)
	require.NotNil(t, res.Badge)
	assert.Equal(t, "nexus-master", res.Badge.BadgeID)
	assert.True(t, res.Account.EarnedBadges.Has("nexus-master"))
	assert.False(t, res.Account.CompletedDemos.Has("nexus-master"))

	again, err := f.svc.ClaimCompositeBadge(ctx, wallet)
	require.NoError(t, err)
	assert.True(t, again.Noop)
	assert.Equal(t, res.Account.TotalPoints, again.Account.TotalPoints)
}

func TestClapDemo(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.svc.ClapDemo(ctx, wallet, "hello-milestone")
	require.NoError(t, err)
	assert.False(t, res.Noop)
	res, err = f.svc.ClapDemo(ctx, wallet, "hello-milestone")
	require.NoError(t, err)
	assert.True(t, res.Noop)
	assert.Equal(t, 1, res.Account.ClappedDemos.Len())
	assert.Equal(t, int64(0), res.Account.TotalPoints)

	_, err = f.svc.ClapDemo(ctx, wallet, "nope")
	assert.ErrorIs(t, err, demo.ErrUnknownDemo)
}

func TestHasBadgeAndCompletedDemo(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.CompleteDemo(ctx, wallet, "hello-milestone", scored(90), 0)
	require.NoError(t, err)

	ok, err := f.svc.HasBadge(ctx, wallet, "escrow-expert")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.svc.HasCompletedDemo(ctx, wallet, "dispute-resolution")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLegacyAccountNormalizedOnLoad(t *testing.T) {
	f := setup(t)
	f.accounts.SeedRaw(wallet, []byte(`{
		"walletId": "GLEDGER",
		"level": 9,
		"experience": 1200,
		"totalPoints": 600,
		"completedDemos": {"a": "hello-milestone"},
		"earnedBadges": ["escrow-expert", "escrow-expert"]
	}`))

	acc, err := f.svc.Account(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, 2, acc.Level)
	assert.Equal(t, 1, acc.EarnedBadges.Len())

	res, err := f.svc.CompleteDemo(context.Background(), wallet, "hello-milestone", scored(100), 0)
	require.NoError(t, err)
	assert.True(t, res.Noop)
}

func TestStoreFailureKeepsMemoryAuthoritative(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := accountmocks.NewMockRepository(ctrl)
	cat, err := catalog.Default()
	require.NoError(t, err)
	svc := NewService(repo, cat, nil, nil, testOptions(), zerolog.Nop())

	repo.EXPECT().Read(gomock.Any(), wallet).Return(nil, nil)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	repo.EXPECT().Write(gomock.Any(), wallet, gomock.Any()).Return(errors.New("store offline")).Times(3)

	res, err := svc.CompleteDemo(context.Background(), wallet, "hello-milestone", scored(100), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(200), res.Account.TotalPoints)

	acc, err := svc.Account(context.Background(), wallet)
	require.NoError(t, err)
	assert.True(t, acc.CompletedDemos.Has("hello-milestone"))
}

func TestStoreRetrySucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := accountmocks.NewMockRepository(ctrl)
	cat, err := catalog.Default()
	require.NoError(t, err)
	svc := NewService(repo, cat, nil, nil, testOptions(), zerolog.Nop())

	repo.EXPECT().Read(gomock.Any(), wallet).Return(nil, nil)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	gomock.InOrder(
		repo.EXPECT().Write(gomock.Any(), wallet, gomock.Any()).Return(errors.New("timeout")),
		repo.EXPECT().Write(gomock.Any(), wallet, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, p account.Patch) error {
				require.NotNil(t, p.ClappedDemos)
				assert.True(t, p.ClappedDemos.Has("hello-milestone"))
				assert.Nil(t, p.Experience)
				return nil
			}),
	)

	_, err = svc.ClapDemo(context.Background(), wallet, "hello-milestone")
	require.NoError(t, err)
}

func TestStoreMissingAccountNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := accountmocks.NewMockRepository(ctrl)
	cat, err := catalog.Default()
	require.NoError(t, err)
	svc := NewService(repo, cat, nil, nil, testOptions(), zerolog.Nop())

	repo.EXPECT().Read(gomock.Any(), wallet).Return(nil, nil)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	repo.EXPECT().Write(gomock.Any(), wallet, gomock.Any()).Return(account.ErrNotFound).Times(1)

	res, err := svc.ClapDemo(context.Background(), wallet, "hello-milestone")
	require.NoError(t, err)
	assert.True(t, res.Account.ClappedDemos.Has("hello-milestone"))
}

func TestAccountInitFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := accountmocks.NewMockRepository(ctrl)
	cat, err := catalog.Default()
	require.NoError(t, err)
	svc := NewService(repo, cat, nil, nil, testOptions(), zerolog.Nop())

	repo.EXPECT().Read(gomock.Any(), wallet).Return(nil, nil)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("read only")).Times(3)

	_, err = svc.Connect(context.Background(), wallet)
	assert.Error(t, err)
}

func TestHistoryErrorTreatedAsFirstCompletion(t *testing.T) {
	ctrl := gomock.NewController(t)
	histRepo := historymocks.NewMockRepository(ctrl)
	cat, err := catalog.Default()
	require.NoError(t, err)
	hist := historysvc.NewService(histRepo, zerolog.Nop(), nil)
	svc := NewService(memory.NewAccountRepository(), cat, hist, nil, testOptions(), zerolog.Nop())

	histRepo.EXPECT().Count(gomock.Any(), gomock.Any()).Return(0, errors.New("history offline"))
	histRepo.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("history offline")).AnyTimes()

	res, err := svc.CompleteDemo(context.Background(), wallet, "hello-milestone", scored(100), 0)
	require.NoError(t, err)
	assert.False(t, res.Replay)
	assert.Equal(t, int64(100), res.PointsEarned)
}

func TestRefresh(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.Connect(ctx, wallet)
	require.NoError(t, err)

	xp := int64(2500)
	level := 3
	require.NoError(t, f.accounts.Write(ctx, wallet, account.Patch{Experience: &xp, Level: &level}))

	acc, err := f.svc.Refresh(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), acc.Experience)
	assert.Equal(t, 3, acc.Level)
}
