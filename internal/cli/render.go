package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/experience"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/catalog"
)

func mark(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

// RenderSummary writes the text view of an account summary.
func RenderSummary(w io.Writer, sum *experience.Summary) error {
	var b strings.Builder
	acc := sum.Account
	fmt.Fprintf(&b, "Wallet  %s\n", acc.WalletID)
	fmt.Fprintf(&b, "Level   %d\n", acc.Level)
	fmt.Fprintf(&b, "XP      %d\n", acc.Experience)
	fmt.Fprintf(&b, "Points  %d\n", acc.TotalPoints)

	b.WriteString("\nDemos\n")
	for _, d := range sum.Demos {
		suffix := ""
		if d.Clapped {
			suffix = "  clapped"
		}
		fmt.Fprintf(&b, "  %s %-20s %4d pts%s\n", mark(d.Completed), d.ID, d.Points, suffix)
	}

	b.WriteString("\nBadges\n")
	for _, bp := range sum.Badges {
		suffix := ""
		if len(bp.Missing) > 0 {
			suffix = "  (missing: " + strings.Join(bp.Missing, ", ") + ")"
		}
		fmt.Fprintf(&b, "  %s %-20s %s%s\n", mark(bp.Earned), bp.ID, bp.Name, suffix)
	}

	b.WriteString("\nUnlocks\n")
	for _, u := range sum.Unlocks {
		suffix := ""
		if len(u.MissingBadges) > 0 {
			suffix += "  missing: " + strings.Join(u.MissingBadges, ", ")
		}
		if !u.ConditionMet {
			suffix += "  condition not met"
		}
		fmt.Fprintf(&b, "  %s %-20s %s%s\n", mark(u.Unlocked), u.Feature, u.Title, suffix)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderCatalog writes the text view of the catalog.
func RenderCatalog(w io.Writer, cat *catalog.Catalog) error {
	var b strings.Builder
	b.WriteString("Demos\n")
	for _, d := range cat.Demos() {
		kind := fmt.Sprintf("%d steps", len(d.Steps))
		if d.Pseudo {
			kind = "claim only"
		} else if d.HasBoard() {
			kind += fmt.Sprintf(", %d milestones", len(d.Milestones))
		}
		fmt.Fprintf(&b, "  %-20s %-24s %s\n", d.ID, d.Title, kind)
	}
	b.WriteString("\nBadges\n")
	for _, bd := range cat.Badges.All() {
		fmt.Fprintf(&b, "  %-20s %-18s %4d pts  %s\n", bd.ID, bd.Name, bd.PointValue, strings.ToLower(string(bd.Kind)))
	}
	b.WriteString("\nGating\n")
	for _, r := range cat.Rules {
		req := strings.Join(r.RequiredBadges, ", ")
		if r.Condition != "" {
			if req != "" {
				req += "; "
			}
			req += r.Condition
		}
		fmt.Fprintf(&b, "  %-20s %s\n", r.Feature, req)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
