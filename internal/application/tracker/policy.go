package tracker

import (
	"time"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/txn"
)

// DefaultAutoResolveDelay is how long the optimistic policy waits before
// assuming a pending transaction succeeded.
const DefaultAutoResolveDelay = 3 * time.Second

// CompletionPolicy decides what happens to a transaction nobody confirms.
type CompletionPolicy interface {
	// Arm schedules the policy for rec. The returned deadline is nil when the
	// policy never resolves on its own. disarm reports whether it stopped a
	// scheduled resolution.
	Arm(rec txn.Record, resolve func(status txn.Status, message string)) (deadline *time.Time, disarm func() bool)
	Name() string
}

// OptimisticPolicy resolves every unconfirmed transaction as success after Delay.
type OptimisticPolicy struct {
	Delay time.Duration
}

func (p OptimisticPolicy) delay() time.Duration {
	if p.Delay <= 0 {
		return DefaultAutoResolveDelay
	}
	return p.Delay
}

func (p OptimisticPolicy) Arm(rec txn.Record, resolve func(txn.Status, string)) (*time.Time, func() bool) {
	d := p.delay()
	deadline := rec.CreatedAt.Add(d)
	timer := time.AfterFunc(d, func() {
		resolve(txn.StatusSuccess, "auto-resolved after "+d.String())
	})
	return &deadline, timer.Stop
}

func (p OptimisticPolicy) Name() string {
	return "optimistic"
}

// ManualPolicy never resolves on its own; an external confirmation is required.
type ManualPolicy struct{}

func (ManualPolicy) Arm(txn.Record, func(txn.Status, string)) (*time.Time, func() bool) {
	return nil, func() bool { return false }
}

func (ManualPolicy) Name() string {
	return "manual"
}
