package testflow_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aretw0/testflow"
	"github.com/aretw0/testflow/pkg/adapters/memory"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/dsl"
)

// ExampleEditor_Run replays a scripted orchestrator stream against a flow
// built with the dsl package and inspects the projected run state.
func ExampleEditor_Run() {
	b := dsl.New("smoke", "Smoke")
	b.Add("get").InlineRequest("GET", "{{base_url}}/health").Go("check")
	b.Add("check").
		Assert(domain.Assertion{Type: "status", Operator: "eq", Expected: "200"}).
		True("done").
		False("report")
	b.Add("done").SetVar("ok", "true")
	b.Add("report").Script("console.log('down')")
	flow, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	orch := memory.NewOrchestrator()
	err = orch.ScriptEvents(flow.ID,
		domain.RunEvent{Type: domain.EventStart, FlowName: flow.Name, TotalNodes: 4},
		domain.RunEvent{Type: domain.EventNodeResult, NodeID: "get", Status: "success", StatusCode: 200},
		domain.RunEvent{Type: domain.EventNodeResult, NodeID: "check", Status: "success", BranchTaken: domain.BranchTrue},
		domain.RunEvent{Type: domain.EventNodeResult, NodeID: "done", Status: "success"},
		domain.RunEvent{Type: domain.EventNodeSkipped, NodeID: "report", Reason: "branch not taken"},
		domain.RunEvent{Type: domain.EventDone},
	)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	ed, err := testflow.Open(ctx, memory.NewStore(flow), flow.ID,
		testflow.WithOrchestrator(orch),
		testflow.WithSaveDelay(time.Hour),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer ed.Close(ctx)

	report, err := ed.Run(ctx, "")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(report.Status, report.Summary.PassedCount, report.Summary.SkippedCount)
	fmt.Println(ed.NodeRun("report").Status)
	fmt.Println(ed.EdgeRun("check->done:" + domain.HandleTrue).Status)
	fmt.Println(ed.EdgeRun("check->report:" + domain.HandleFalse).Status)
	// Output:
	// completed 3 1
	// skipped
	// success
	// skipped
}
