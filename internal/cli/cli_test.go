package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/bootstrap"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/config"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/demo"
)

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitFailure},
		{"exit error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped", WrapExitError(ExitFailure, "failed", errors.New("cause")), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "yaml", "catalog"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCatalogCommand_JSON(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "json", "catalog"})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Demos []demo.Definition `json:"demos"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Data.Demos, 4)
}

func openRuntime(t *testing.T) *bootstrap.Runtime {
	t.Helper()
	rt, err := bootstrap.Open(context.Background(), &config.Config{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

func TestRunWalkthrough_LinearWithFailure(t *testing.T) {
	rt := openRuntime(t)
	report, err := RunWalkthrough(context.Background(), rt.Engine, "hello-milestone",
		&WalkthroughOptions{Wallet: "GWALK", FailStep: "fund-escrow"})
	require.NoError(t, err)

	assert.Contains(t, report.Events, "fund-escrow FAILED")
	assert.Contains(t, report.Events, "fund-escrow SUCCESS")
	assert.True(t, report.Session.CompletionTriggered)
	assert.Equal(t, 1, report.Session.FailedAttempts)
	assert.True(t, report.Summary.Account.CompletedDemos.Has("hello-milestone"))
	assert.True(t, report.Summary.Account.EarnedBadges.Has("escrow-expert"))
}

func TestRunWalkthrough_BoardWithDispute(t *testing.T) {
	rt := openRuntime(t)
	report, err := RunWalkthrough(context.Background(), rt.Engine, "dispute-resolution",
		&WalkthroughOptions{Wallet: "GWALK", Dispute: true})
	require.NoError(t, err)

	assert.Contains(t, report.Events, "client disputed design")
	assert.Contains(t, report.Events, "arbitrator approved design")
	assert.Equal(t, "funds released", report.Events[len(report.Events)-1])
	assert.True(t, report.Summary.Account.EarnedBadges.Has("trust-guardian"))
}

func TestRunWalkthrough_UnknownDemo(t *testing.T) {
	rt := openRuntime(t)
	_, err := RunWalkthrough(context.Background(), rt.Engine, "nope", &WalkthroughOptions{Wallet: "GWALK"})
	assert.Error(t, err)
}
