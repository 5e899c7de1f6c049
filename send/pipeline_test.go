package send_test

import (
	"context"
	"testing"
	"time"

	"github.com/paramfabric/communicator/commctx"
	"github.com/paramfabric/communicator/rpc"
	"github.com/paramfabric/communicator/send"
	"github.com/paramfabric/communicator/variable"
)

func newTestPipeline() (*send.Pipeline, *rpc.MockClient) {
	client := rpc.NewMockClient()
	ctxs := map[string]*commctx.VariableContext{
		"w": {Name: "w", ShardNames: []string{"s0"}, Endpoints: []string{"ep0"}, MergeMode: variable.Add},
	}
	p := send.NewPipeline(ctxs, variable.NewScope("send"), client, 16, time.Second)
	return p, client
}

func TestRunBatchMergesAndSendsAdd(t *testing.T) {
	p, client := newTestPipeline()
	p.Submit("w", variable.NewDense("w", []int64{2}, []float32{1, 1}))
	p.Submit("w", variable.NewDense("w", []int64{2}, []float32{2, 2}))

	if err := p.RunBatch(context.Background(), 2, 2); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	sent, ok := client.Sent("w")
	if !ok {
		t.Fatal("expected w to have been sent")
	}
	if sent.Dense.Data[0] != 3 || sent.Dense.Data[1] != 3 {
		t.Errorf("merged data = %v, want [3 3]", sent.Dense.Data)
	}
}

func TestRunBatchZeroIsNoop(t *testing.T) {
	p, client := newTestPipeline()
	if err := p.RunBatch(context.Background(), 0, 2); err != nil {
		t.Fatalf("RunBatch(0): %v", err)
	}
	if client.SentCount() != 0 {
		t.Errorf("expected no sends for batch=0, got %d", client.SentCount())
	}
}

func TestQueueSizeTracksPendingSubmits(t *testing.T) {
	p, _ := newTestPipeline()
	if got := p.QueueSize("w"); got != 0 {
		t.Fatalf("QueueSize before submit = %d, want 0", got)
	}
	p.Submit("w", variable.NewDense("w", []int64{1}, []float32{1}))
	if got := p.QueueSize("w"); got != 1 {
		t.Errorf("QueueSize after submit = %d, want 1", got)
	}
}

func TestSubmitUnknownVariableIsContractError(t *testing.T) {
	p, _ := newTestPipeline()
	if err := p.Submit("missing", variable.NewDense("missing", []int64{1}, []float32{1})); err == nil {
		t.Fatal("expected contract error for unconfigured variable")
	}
}

func TestSendGlobalStepBypassesMerge(t *testing.T) {
	p, client := newTestPipeline()
	stepCtx := &commctx.VariableContext{Name: rpc.StepCounter, ShardNames: []string{"s0"}, Endpoints: []string{"ep0"}}

	if err := p.SendGlobalStep(context.Background(), stepCtx, 7); err != nil {
		t.Fatalf("SendGlobalStep: %v", err)
	}
	sent, ok := client.Sent(rpc.StepCounter)
	if !ok {
		t.Fatal("expected STEP_COUNTER to have been sent")
	}
	if sent.Dense.Int64[0] != 7 {
		t.Errorf("step counter = %v, want 7", sent.Dense.Int64)
	}
}
