package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/testflow/pkg/adapters/memory"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunFlowStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	flow := &domain.Flow{ID: "f", FlowGraph: domain.FlowGraph{
		Nodes: []domain.Node{{ID: "a", Type: domain.NodeTypeDelay, Config: map[string]any{"delay_ms": 10}}},
	}}
	store := memory.NewStore(flow)

	flow.Nodes[0].Config["delay_ms"] = 99
	loaded, err := store.LoadFlow(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.Nodes[0].Config["delay_ms"])

	loaded.Nodes[0].Label = "mutated"
	again, _ := store.LoadFlow(ctx, "f")
	assert.Empty(t, again.Nodes[0].Label)
}
