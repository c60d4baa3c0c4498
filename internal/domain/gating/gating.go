package gating

import (
	"errors"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/account"
)

// Rule gates a feature behind badges and an optional condition.
type Rule struct {
	Feature        string   `yaml:"feature" json:"feature"`
	Title          string   `yaml:"title" json:"title"`
	RequiredBadges []string `yaml:"required_badges" json:"requiredBadges"`
	Condition      string   `yaml:"condition" json:"condition,omitempty"`
}

// Unlock is the evaluated state of one rule for one account.
type Unlock struct {
	Feature       string   `json:"feature"`
	Title         string   `json:"title"`
	Unlocked      bool     `json:"unlocked"`
	MissingBadges []string `json:"missingBadges,omitempty"`
	ConditionMet  bool     `json:"conditionMet"`
}

// Params exposes the normalized account to condition expressions.
func Params(a *account.Account) map[string]interface{} {
	return map[string]interface{}{
		"level":           float64(a.Level),
		"experience":      float64(a.Experience),
		"total_points":    float64(a.TotalPoints),
		"badge_count":     float64(a.EarnedBadges.Len()),
		"completed_count": float64(a.CompletedDemos.Len()),
		"clap_count":      float64(a.ClappedDemos.Len()),
	}
}

// EvaluateCondition evaluates a condition against the account.
// Empty condition returns true.
func EvaluateCondition(condition string, a *account.Account) (bool, error) {
	cond := strings.TrimSpace(condition)
	if cond == "" {
		return true, nil
	}
	expr, err := govaluate.NewEvaluableExpression(cond)
	if err != nil {
		return false, err
	}
	result, err := expr.Evaluate(Params(a))
	if err != nil {
		return false, err
	}
	v, ok := result.(bool)
	if !ok {
		return false, errors.New("condition did not evaluate to boolean")
	}
	return v, nil
}

// FeatureUnlocked is true iff every required badge is earned and the
// condition holds. A condition that fails to evaluate keeps the feature locked.
func FeatureUnlocked(a *account.Account, rule Rule) bool {
	return Evaluate(a, rule).Unlocked
}

// Evaluate reports the unlock state of rule for a.
func Evaluate(a *account.Account, rule Rule) Unlock {
	norm := a.Clone()
	norm.Normalize()
	missing := norm.EarnedBadges.Missing(rule.RequiredBadges)
	met, err := EvaluateCondition(rule.Condition, norm)
	if err != nil {
		met = false
	}
	return Unlock{
		Feature:       rule.Feature,
		Title:         rule.Title,
		Unlocked:      len(missing) == 0 && met,
		MissingBadges: missing,
		ConditionMet:  met,
	}
}

// EvaluateAll evaluates every rule in order.
func EvaluateAll(a *account.Account, rules []Rule) []Unlock {
	out := make([]Unlock, 0, len(rules))
	for _, r := range rules {
		out = append(out, Evaluate(a, r))
	}
	return out
}

// Validate compiles the rule's condition.
func (r Rule) Validate() error {
	if r.Feature == "" {
		return errors.New("gating rule without feature")
	}
	if strings.TrimSpace(r.Condition) == "" {
		return nil
	}
	_, err := govaluate.NewEvaluableExpression(r.Condition)
	return err
}
