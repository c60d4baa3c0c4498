package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/badge"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/demo"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	ids := []string{}
	for _, d := range c.Demos() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"hello-milestone", "dispute-resolution", "micro-marketplace", "nexus-master"}, ids)

	dispute, ok := c.Demo("dispute-resolution")
	require.True(t, ok)
	assert.Equal(t, demo.CompleteOnRelease, dispute.CompleteOn)
	assert.Len(t, dispute.Milestones, 3)

	hello, ok := c.Demo("hello-milestone")
	require.True(t, ok)
	assert.Equal(t, demo.CompleteOnLastStep, hello.CompleteOn)
	assert.Equal(t, int64(100), hello.Points())

	capstone, ok := c.CapstoneDemo()
	require.True(t, ok)
	assert.True(t, capstone.Pseudo)

	comp, ok := c.Badges.Composite()
	require.True(t, ok)
	assert.Equal(t, badge.KindComposite, comp.Kind)
	assert.ElementsMatch(t, []string{"escrow-expert", "trust-guardian", "stellar-champion"}, comp.Requires)

	assert.Len(t, c.Rules, 3)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "malformed", yaml: "demos: [\n"},
		{name: "badge for unknown demo", yaml: `
demos:
  - id: a
    steps: [{id: s1}]
badges:
  - id: b
    demo: missing
`},
		{name: "pseudo without composite", yaml: `
demos:
  - id: cap
    pseudo: true
`},
		{name: "rule with unknown badge", yaml: `
demos:
  - id: a
    steps: [{id: s1}]
gating:
  - feature: f
    required_badges: [nope]
`},
		{name: "rule with bad condition", yaml: `
demos:
  - id: a
    steps: [{id: s1}]
gating:
  - feature: f
    condition: "level >="
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
