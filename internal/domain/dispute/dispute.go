package dispute

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/demo"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/progress"
)

// Role is the party acting on the board.
type Role string

const (
	RoleWorker     Role = "WORKER"
	RoleClient     Role = "CLIENT"
	RoleArbitrator Role = "ARBITRATOR"
)

// MilestoneStatus represents milestone status.
type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "PENDING"
	MilestoneCompleted MilestoneStatus = "COMPLETED"
	MilestoneApproved  MilestoneStatus = "APPROVED"
	MilestoneDisputed  MilestoneStatus = "DISPUTED"
	MilestoneReleased  MilestoneStatus = "RELEASED"
	MilestoneCancelled MilestoneStatus = "CANCELLED"
)

// Status represents dispute status.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusResolved Status = "RESOLVED"
)

// Resolution is the arbitrator's decision on a dispute.
type Resolution string

const (
	ResolutionApprove Resolution = "APPROVE"
	ResolutionReject  Resolution = "REJECT"
	ResolutionModify  Resolution = "MODIFY"
)

type transition struct {
	from MilestoneStatus
	to   MilestoneStatus
}

var roleTransitions = map[Role][]transition{
	RoleWorker:     {{MilestonePending, MilestoneCompleted}},
	RoleClient:     {{MilestoneCompleted, MilestoneApproved}, {MilestoneCompleted, MilestoneDisputed}},
	RoleArbitrator: {{MilestoneDisputed, MilestoneApproved}, {MilestoneDisputed, MilestoneCancelled}, {MilestoneDisputed, MilestonePending}},
}

var resolutionTargets = map[Resolution]MilestoneStatus{
	ResolutionApprove: MilestoneApproved,
	ResolutionReject:  MilestoneCancelled,
	ResolutionModify:  MilestonePending,
}

// CanTransition reports whether role may move a milestone from one status to another.
func CanTransition(role Role, from, to MilestoneStatus) bool {
	for _, tr := range roleTransitions[role] {
		if tr.from == from && tr.to == to {
			return true
		}
	}
	return false
}

// ParseRole normalizes a role name.
func ParseRole(v string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(v)))
	if _, ok := roleTransitions[role]; !ok {
		return "", progress.Precondition("unknown role %q", v)
	}
	return role, nil
}

// ParseResolution normalizes a resolution name.
func ParseResolution(v string) (Resolution, error) {
	res := Resolution(strings.ToUpper(strings.TrimSpace(v)))
	if _, ok := resolutionTargets[res]; !ok {
		return "", progress.Precondition("unknown resolution %q", v)
	}
	return res, nil
}

// Milestone is one fundable unit of work on the board.
type Milestone struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Amount    int64           `json:"amount"`
	Status    MilestoneStatus `json:"status"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Dispute is a client's objection to a completed milestone.
type Dispute struct {
	DisputeID      uuid.UUID   `json:"disputeId"`
	MilestoneID    string      `json:"milestoneId"`
	RaisedByRole   Role        `json:"raisedByRole"`
	Reason         string      `json:"reason"`
	Status         Status      `json:"status"`
	Resolution     *Resolution `json:"resolution,omitempty"`
	ResolutionNote string      `json:"resolutionNote,omitempty"`
	RaisedAt       time.Time   `json:"raisedAt"`
	ResolvedAt     *time.Time  `json:"resolvedAt,omitempty"`
}

// Board tracks the milestones and disputes of one session.
type Board struct {
	Milestones []*Milestone `json:"milestones"`
	Disputes   []*Dispute   `json:"disputes"`
	ReleasedAt *time.Time   `json:"releasedAt,omitempty"`
}

// NewBoard creates a board with every milestone pending.
func NewBoard(templates []demo.MilestoneTemplate, now time.Time) *Board {
	b := &Board{Disputes: []*Dispute{}}
	for _, tpl := range templates {
		b.Milestones = append(b.Milestones, &Milestone{
			ID:        tpl.ID,
			Title:     tpl.Title,
			Amount:    tpl.Amount,
			Status:    MilestonePending,
			UpdatedAt: now.UTC(),
		})
	}
	return b
}

// Milestone returns the milestone with id or nil.
func (b *Board) Milestone(id string) *Milestone {
	for _, m := range b.Milestones {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Dispute returns the dispute with id or nil.
func (b *Board) Dispute(id uuid.UUID) *Dispute {
	for _, d := range b.Disputes {
		if d.DisputeID == id {
			return d
		}
	}
	return nil
}

// OpenDispute returns the open dispute on a milestone or nil.
func (b *Board) OpenDispute(milestoneID string) *Dispute {
	for _, d := range b.Disputes {
		if d.MilestoneID == milestoneID && d.Status == StatusOpen {
			return d
		}
	}
	return nil
}

// IsReleased reports whether funds were released.
func (b *Board) IsReleased() bool {
	return b.ReleasedAt != nil
}

func (b *Board) move(role Role, milestoneID string, to MilestoneStatus, now time.Time) (*Milestone, error) {
	if b.IsReleased() {
		return nil, progress.Precondition("funds already released")
	}
	m := b.Milestone(milestoneID)
	if m == nil {
		return nil, progress.Precondition("unknown milestone %q", milestoneID)
	}
	if !CanTransition(role, m.Status, to) {
		return nil, progress.Precondition("role %s cannot move milestone %s from %s to %s", role, m.ID, m.Status, to)
	}
	m.Status = to
	m.UpdatedAt = now.UTC()
	return m, nil
}

// MarkComplete is the worker reporting a milestone as done.
func (b *Board) MarkComplete(role Role, milestoneID string, now time.Time) (*Milestone, error) {
	return b.move(role, milestoneID, MilestoneCompleted, now)
}

// Approve is the client accepting a completed milestone.
func (b *Board) Approve(role Role, milestoneID string, now time.Time) (*Milestone, error) {
	return b.move(role, milestoneID, MilestoneApproved, now)
}

// RaiseDispute is the client objecting to a completed milestone.
func (b *Board) RaiseDispute(role Role, milestoneID, reason string, now time.Time) (*Dispute, error) {
	if b.OpenDispute(milestoneID) != nil {
		return nil, progress.Conflict("milestone %s already has an open dispute", milestoneID)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, progress.Precondition("dispute reason is required")
	}
	if _, err := b.move(role, milestoneID, MilestoneDisputed, now); err != nil {
		return nil, err
	}
	d := &Dispute{
		DisputeID:    uuid.New(),
		MilestoneID:  milestoneID,
		RaisedByRole: role,
		Reason:       reason,
		Status:       StatusOpen,
		RaisedAt:     now.UTC(),
	}
	b.Disputes = append(b.Disputes, d)
	return d, nil
}

// ResolveDispute is the arbitrator closing an open dispute.
func (b *Board) ResolveDispute(role Role, disputeID uuid.UUID, resolution Resolution, note string, now time.Time) (*Dispute, error) {
	d := b.Dispute(disputeID)
	if d == nil {
		return nil, progress.Precondition("unknown dispute %s", disputeID)
	}
	if d.Status != StatusOpen {
		return nil, progress.Conflict("dispute %s already resolved", disputeID)
	}
	target, ok := resolutionTargets[resolution]
	if !ok {
		return nil, progress.Precondition("unknown resolution %q", resolution)
	}
	if _, err := b.move(role, d.MilestoneID, target, now); err != nil {
		return nil, err
	}
	at := now.UTC()
	res := resolution
	d.Status = StatusResolved
	d.Resolution = &res
	d.ResolutionNote = note
	d.ResolvedAt = &at
	return d, nil
}

// ReleaseBlockers names every milestone and dispute that prevents release.
func (b *Board) ReleaseBlockers() []string {
	var out []string
	for _, m := range b.Milestones {
		if m.Status != MilestoneApproved {
			out = append(out, "milestone "+m.ID+" is "+string(m.Status))
		}
	}
	for _, d := range b.Disputes {
		if d.Status == StatusOpen {
			out = append(out, "dispute "+d.DisputeID.String()+" on milestone "+d.MilestoneID+" is open")
		}
	}
	return out
}

// ReleaseAll releases every milestone once all are approved and no dispute is open.
func (b *Board) ReleaseAll(now time.Time) error {
	if b.IsReleased() {
		return progress.Conflict("funds already released")
	}
	if blockers := b.ReleaseBlockers(); len(blockers) > 0 {
		return progress.Blocked("release blocked", blockers)
	}
	at := now.UTC()
	for _, m := range b.Milestones {
		m.Status = MilestoneReleased
		m.UpdatedAt = at
	}
	b.ReleasedAt = &at
	return nil
}

// Clone returns a deep copy safe to hand outside the owning lock.
func (b *Board) Clone() *Board {
	out := &Board{ReleasedAt: b.ReleasedAt}
	for _, m := range b.Milestones {
		cp := *m
		out.Milestones = append(out.Milestones, &cp)
	}
	out.Disputes = make([]*Dispute, 0, len(b.Disputes))
	for _, d := range b.Disputes {
		cp := *d
		out.Disputes = append(out.Disputes, &cp)
	}
	return out
}
