package account

import (
	"errors"
	"time"
)

// ExperiencePerLevel is the experience span covered by one level.
const ExperiencePerLevel = 1000

var (
	ErrNegativeAward = errors.New("experience and points awards must be non-negative")
	ErrWalletMissing = errors.New("wallet id is required")
	ErrNotFound      = errors.New("account not found")
)

// Account is the persistent progression record of one wallet.
type Account struct {
	WalletID       string    `json:"walletId"`
	Level          int       `json:"level"`
	Experience     int64     `json:"experience"`
	TotalPoints    int64     `json:"totalPoints"`
	CompletedDemos Set       `json:"completedDemos"`
	EarnedBadges   Set       `json:"earnedBadges"`
	ClappedDemos   Set       `json:"clappedDemos"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// New creates an empty level 1 account.
func New(walletID string, now time.Time) (*Account, error) {
	if walletID == "" {
		return nil, ErrWalletMissing
	}
	return &Account{
		WalletID:       walletID,
		Level:          LevelFor(0),
		CompletedDemos: NewSet(),
		EarnedBadges:   NewSet(),
		ClappedDemos:   NewSet(),
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}, nil
}

// LevelFor derives the level for an experience total.
func LevelFor(experience int64) int {
	if experience < 0 {
		experience = 0
	}
	return int(experience/ExperiencePerLevel) + 1
}

// AddExperienceAndPoints credits both counters and recomputes the level.
func (a *Account) AddExperienceAndPoints(experience, points int64, now time.Time) error {
	if experience < 0 || points < 0 {
		return ErrNegativeAward
	}
	a.Experience += experience
	a.TotalPoints += points
	a.Level = LevelFor(a.Experience)
	a.UpdatedAt = now.UTC()
	return nil
}

// Normalize repairs fields that older records may carry in a drifted form.
func (a *Account) Normalize() {
	if a.Experience < 0 {
		a.Experience = 0
	}
	a.Level = LevelFor(a.Experience)
	a.CompletedDemos = a.CompletedDemos.Clone()
	a.EarnedBadges = a.EarnedBadges.Clone()
	a.ClappedDemos = a.ClappedDemos.Clone()
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.CompletedDemos = a.CompletedDemos.Clone()
	out.EarnedBadges = a.EarnedBadges.Clone()
	out.ClappedDemos = a.ClappedDemos.Clone()
	return &out
}

// Patch is a partial account write. Nil fields are left untouched.
type Patch struct {
	Level          *int
	Experience     *int64
	TotalPoints    *int64
	CompletedDemos *Set
	EarnedBadges   *Set
	ClappedDemos   *Set
	UpdatedAt      time.Time
}

// IsEmpty reports whether the patch writes nothing.
func (p Patch) IsEmpty() bool {
	return p.Level == nil && p.Experience == nil && p.TotalPoints == nil &&
		p.CompletedDemos == nil && p.EarnedBadges == nil && p.ClappedDemos == nil
}

// Apply writes the patch fields onto a.
func (p Patch) Apply(a *Account) {
	if p.Level != nil {
		a.Level = *p.Level
	}
	if p.Experience != nil {
		a.Experience = *p.Experience
	}
	if p.TotalPoints != nil {
		a.TotalPoints = *p.TotalPoints
	}
	if p.CompletedDemos != nil {
		a.CompletedDemos = p.CompletedDemos.Clone()
	}
	if p.EarnedBadges != nil {
		a.EarnedBadges = p.EarnedBadges.Clone()
	}
	if p.ClappedDemos != nil {
		a.ClappedDemos = p.ClappedDemos.Clone()
	}
	if !p.UpdatedAt.IsZero() {
		a.UpdatedAt = p.UpdatedAt
	}
}

// Diff builds the patch that turns before into after.
func Diff(before, after *Account) Patch {
	p := Patch{UpdatedAt: after.UpdatedAt}
	if before.Level != after.Level {
		v := after.Level
		p.Level = &v
	}
	if before.Experience != after.Experience {
		v := after.Experience
		p.Experience = &v
	}
	if before.TotalPoints != after.TotalPoints {
		v := after.TotalPoints
		p.TotalPoints = &v
	}
	if !before.CompletedDemos.Equal(after.CompletedDemos) {
		v := after.CompletedDemos.Clone()
		p.CompletedDemos = &v
	}
	if !before.EarnedBadges.Equal(after.EarnedBadges) {
		v := after.EarnedBadges.Clone()
		p.EarnedBadges = &v
	}
	if !before.ClappedDemos.Equal(after.ClappedDemos) {
		v := after.ClappedDemos.Clone()
		p.ClappedDemos = &v
	}
	return p
}
