package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/application/experience"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/bootstrap"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/config"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/demo"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/identity"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/txn"
)

// WalkthroughOptions holds the walkthrough command flags.
type WalkthroughOptions struct {
	Wallet   string
	FailStep string
	Dispute  bool
}

// WalkthroughReport is what a walkthrough did.
type WalkthroughReport struct {
	DemoID  string              `json:"demoId"`
	Events  []string            `json:"events"`
	Summary *experience.Summary `json:"summary"`
	Session *demo.Session       `json:"session"`
}

// NewWalkthroughCommand creates the walkthrough command.
func NewWalkthroughCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WalkthroughOptions{}
	cmd := &cobra.Command{
		Use:           "walkthrough <demo-id>",
		Short:         "Play a demo end to end, confirming every transaction",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "config error", err)
			}
			// Every confirmation comes from the walkthrough itself.
			cfg.TxAutoResolve = false
			cfg.LedgerSimulated = false

			rt, err := bootstrap.Open(cmd.Context(), cfg, rootOpts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return WrapExitError(ExitCommandError, "startup error", err)
			}
			defer rt.Close()

			report, err := RunWalkthrough(cmd.Context(), rt.Engine, args[0], opts)
			if err != nil {
				return WrapExitError(ExitFailure, "walkthrough failed", err)
			}
			return rootOpts.formatter(cmd).Success(report, func(w io.Writer) error {
				for _, ev := range report.Events {
					if _, err := fmt.Fprintf(w, "- %s\n", ev); err != nil {
						return err
					}
				}
				if _, err := fmt.Fprintln(w); err != nil {
					return err
				}
				return RenderSummary(w, report.Summary)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Wallet, "wallet", "", "wallet address (required)")
	cmd.Flags().StringVar(&opts.FailStep, "fail", "", "step id whose first attempt is confirmed as failed")
	cmd.Flags().BoolVar(&opts.Dispute, "dispute", false, "dispute one milestone and have the arbitrator approve it")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}

// RunWalkthrough drives one demo session to completion with manual
// confirmations.
func RunWalkthrough(ctx context.Context, engine *experience.Engine, demoID string, opts *WalkthroughOptions) (*WalkthroughReport, error) {
	wallet := identity.Connected(opts.Wallet)
	report := &WalkthroughReport{DemoID: demoID}
	logf := func(format string, a ...interface{}) {
		report.Events = append(report.Events, fmt.Sprintf(format, a...))
	}

	sess, err := engine.StartSession(ctx, wallet, demoID)
	if err != nil {
		return nil, err
	}
	logf("session %s started", sess.SessionID)

	failed := false
	for _, st := range sess.Steps {
		for {
			rec, err := engine.InvokeStepAction(ctx, wallet, sess.SessionID, st.ID)
			if err != nil {
				return nil, fmt.Errorf("invoke %s: %w", st.ID, err)
			}
			status, msg := txn.StatusSuccess, ""
			if st.ID == opts.FailStep && !failed {
				failed = true
				status, msg = txn.StatusFailed, "rejected by walkthrough"
			}
			if _, err := engine.ConfirmTransaction(ctx, rec.TransactionID, status, msg); err != nil {
				return nil, fmt.Errorf("confirm %s: %w", st.ID, err)
			}
			logf("%s %s", st.ID, status)
			if status == txn.StatusSuccess {
				break
			}
		}
	}

	if def, ok := engine.Catalog.Demo(demoID); ok && def.HasBoard() {
		if err := settleBoard(ctx, engine, sess, def, opts, logf); err != nil {
			return nil, err
		}
	}

	if report.Session, err = engine.GetSession(ctx, sess.SessionID); err != nil {
		return nil, err
	}
	if report.Summary, err = engine.Summary(ctx, wallet); err != nil {
		return nil, err
	}
	return report, nil
}

func settleBoard(ctx context.Context, engine *experience.Engine, sess *demo.Session, def *demo.Definition, opts *WalkthroughOptions, logf func(string, ...interface{})) error {
	for i, m := range def.Milestones {
		if _, err := engine.MarkMilestoneComplete(ctx, sess.SessionID, "worker", m.ID); err != nil {
			return fmt.Errorf("complete %s: %w", m.ID, err)
		}
		logf("worker completed %s", m.ID)
		if opts.Dispute && i == 0 {
			d, err := engine.RaiseDispute(ctx, sess.SessionID, "client", m.ID, "deliverable needs review")
			if err != nil {
				return fmt.Errorf("dispute %s: %w", m.ID, err)
			}
			logf("client disputed %s", m.ID)
			if _, err := engine.ResolveDispute(ctx, sess.SessionID, "arbitrator", d.DisputeID, "approve", "accepted after review"); err != nil {
				return fmt.Errorf("resolve %s: %w", m.ID, err)
			}
			logf("arbitrator approved %s", m.ID)
			continue
		}
		if _, err := engine.ApproveMilestone(ctx, sess.SessionID, "client", m.ID); err != nil {
			return fmt.Errorf("approve %s: %w", m.ID, err)
		}
		logf("client approved %s", m.ID)
	}
	if _, err := engine.ReleaseAll(ctx, sess.SessionID); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	logf("funds released")
	return nil
}
