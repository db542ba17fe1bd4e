package runsync

import (
	"testing"

	"github.com/aretw0/testflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("Wire Format", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"node_result","node_id":"n1","status":"success","status_code":201,` +
			`"assertion_results":[{"name":"status_code: 201","passed":true}],"branch_taken":"false"}`))
		require.NoError(t, err)
		assert.Equal(t, domain.EventNodeResult, ev.Type)
		assert.Equal(t, 201, ev.StatusCode)
		assert.Equal(t, domain.BranchFalse, ev.BranchTaken)
		require.Len(t, ev.AssertionResults, 1)
		assert.True(t, ev.AssertionResults[0].Passed)
	})

	t.Run("Fractional Timings And Null Actual", func(t *testing.T) {
		ev, err := Decode([]byte(`data: {"type":"node_result","node_id":"check","status":"error",` +
			`"assertion_results":[{"name":"status_code: 200","passed":false,"actual":null,"expected":200,` +
			`"error":"Expected eq 200, got None"}],"branch_taken":"false","elapsed_ms":152.37,` +
			`"execution_order":1,"node_label":"Check","node_type":"assertion"}`))
		require.NoError(t, err)
		assert.InDelta(t, 152.37, ev.ElapsedMs, 1e-9)
		assert.Equal(t, "Check", ev.NodeLabel)
		require.Len(t, ev.AssertionResults, 1)
		assert.Empty(t, ev.AssertionResults[0].Actual)
		assert.Equal(t, "200", ev.AssertionResults[0].Expected)

		done, err := Decode([]byte(`{"type":"done","summary":{"total_nodes":2,"passed_count":1,"failed_count":1,` +
			`"skipped_count":0,"total_assertions":1,"passed_assertions":0,"failed_assertions":1,"total_time_ms":152.37},` +
			`"final_variables":{}}`))
		require.NoError(t, err)
		require.NotNil(t, done.Summary)
		assert.InDelta(t, 152.37, done.Summary.TotalTimeMs, 1e-9)

		camel, err := Decode([]byte(`{"type":"node_result","nodeId":"a","elapsedMs":3.5}`))
		require.NoError(t, err)
		assert.InDelta(t, 3.5, camel.ElapsedMs, 1e-9)
	})

	t.Run("Hyphenated And Camel Case", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"node-result","nodeId":"n1","branchTaken":true,"statusCode":404}`))
		require.NoError(t, err)
		assert.Equal(t, domain.EventNodeResult, ev.Type)
		assert.Equal(t, "n1", ev.NodeID)
		assert.Equal(t, domain.BranchTrue, ev.BranchTaken)
		assert.Equal(t, 404, ev.StatusCode)
	})

	t.Run("Boolean Branch", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"node_result","node_id":"n1","branch_taken":false}`))
		require.NoError(t, err)
		assert.Equal(t, domain.BranchFalse, ev.BranchTaken)
	})

	t.Run("Error Message Alias", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"run-error","message":"nope"}`))
		require.NoError(t, err)
		assert.Equal(t, domain.EventError, ev.Type)
		assert.Equal(t, "nope", ev.Error)
	})

	for name, frame := range map[string]string{
		"Empty":        ``,
		"Array":        `[1,2]`,
		"Truncated":    `{"type":"node_start"`,
		"No Type":      `{"node_id":"x"}`,
		"Missing Edge": `{"type":"edge_active"}`,
	} {
		t.Run("Rejects "+name, func(t *testing.T) {
			_, err := Decode([]byte(frame))
			assert.Error(t, err)
		})
	}
}
