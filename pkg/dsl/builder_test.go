package dsl

import (
	"testing"

	"github.com/aretw0/testflow/internal/validator"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_BranchingFlow(t *testing.T) {
	b := New("login", "Login smoke").Var("base_url", "http://localhost")

	b.Add("login").Label("Login").Request("req-1").Go("check")
	b.Add("check").
		Assert(domain.Assertion{Type: "status", Operator: "eq", Expected: "200"}).
		True("profile").
		False("report")
	b.Add("profile").InlineRequest("GET", "{{base_url}}/me")
	b.Add("report").Script("console.log('failed')")

	flow, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, "login", flow.ID)
	assert.Equal(t, "http://localhost", flow.Variables["base_url"])
	require.Len(t, flow.Nodes, 4)
	assert.Equal(t, []string{"login", "check", "profile", "report"},
		[]string{flow.Nodes[0].ID, flow.Nodes[1].ID, flow.Nodes[2].ID, flow.Nodes[3].ID})
	assert.Equal(t, "Login", flow.Nodes[0].Label)
	assert.Equal(t, "profile", flow.Nodes[2].Label)

	require.Len(t, flow.Edges, 3)
	assert.Equal(t, "check->profile:"+domain.HandleTrue, flow.Edges[1].ID)
	assert.Equal(t, domain.HandleFalse, flow.Edges[2].SourceHandle)

	assert.Greater(t, flow.Nodes[1].Position.Y, flow.Nodes[0].Position.Y, "auto-layout ranks check below login")
	assert.False(t, validator.HasErrors(validator.Validate(flow.FlowGraph)))

	cfg, err := domain.DecodeConfig(flow.Nodes[1].Type, flow.Nodes[1].Config)
	require.NoError(t, err)
	require.Len(t, cfg.(*domain.AssertionConfig).Assertions, 1)
	assert.Equal(t, "200", cfg.(*domain.AssertionConfig).Assertions[0].Expected)
}

func TestBuilder_LoopAndVariables(t *testing.T) {
	b := New("poll", "Poll").ManualLayout()
	b.Add("init").SetVar("attempt", "0").SetVar("max", "5").At(0, 0).Go("loop")
	b.Add("loop").Loop(3).At(0, 100).Body("wait").Done("end")
	b.Add("wait").Delay(250).At(200, 100)
	b.Add("end").Request("req-final").At(0, 200)

	flow, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, domain.Position{X: 200, Y: 100}, flow.Nodes[2].Position)

	cfg, err := domain.DecodeConfig(domain.NodeTypeSetVariable, flow.Nodes[0].Config)
	require.NoError(t, err)
	assert.Len(t, cfg.(*domain.SetVariableConfig).Assignments, 2)

	loop, err := domain.DecodeConfig(domain.NodeTypeLoop, flow.Nodes[1].Config)
	require.NoError(t, err)
	assert.Equal(t, 3, loop.(*domain.LoopConfig).Count)
}

func TestBuilder_Groups(t *testing.T) {
	b := New("g", "Grouped")
	b.Add("auth").Group().Label("Auth")
	b.Add("login").Request("r").In("auth")

	flow, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "auth", flow.Nodes[1].ParentID)

	bad := New("g", "Bad")
	bad.Add("x").Request("r").In("login")
	bad.Add("login").Request("r")
	_, err = bad.Build()
	assert.ErrorIs(t, err, domain.ErrInvalidParent)
}

func TestBuilder_RejectsInvalidEdges(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
		want  error
	}{
		{
			name:  "missing target",
			build: func(b *Builder) { b.Add("a").Request("r").Go("ghost") },
			want:  domain.ErrMissingEndpoint,
		},
		{
			name:  "default handle on branching node",
			build: func(b *Builder) { b.Add("c").Condition("x > 1").Go("d"); b.Add("d").Request("r") },
			want:  domain.ErrInvalidHandle,
		},
		{
			name:  "branch handle on plain node",
			build: func(b *Builder) { b.Add("a").Request("r").True("d"); b.Add("d").Request("r") },
			want:  domain.ErrInvalidHandle,
		},
		{
			name: "occupied handle",
			build: func(b *Builder) {
				b.Add("c").Condition("x").True("d").True("e")
				b.Add("d").Request("r")
				b.Add("e").Request("r")
			},
			want: domain.ErrHandleOccupied,
		},
		{
			name:  "untyped node",
			build: func(b *Builder) { b.Add("a") },
			want:  domain.ErrUnknownNodeType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("f", "F")
			tt.build(b)
			_, err := b.Build()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
