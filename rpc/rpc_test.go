package rpc_test

import (
	"context"
	"testing"

	"github.com/paramfabric/communicator/commctx"
	"github.com/paramfabric/communicator/rpc"
	"github.com/paramfabric/communicator/variable"
)

func TestWaitAllReturnsFirstNonOK(t *testing.T) {
	client := rpc.NewMockClient()
	scope := variable.NewScope("send")
	scope.Set(variable.NewDense("w", []int64{1}, []float32{1}))
	vctx := &commctx.VariableContext{Name: "w", ShardNames: []string{"s0"}, Endpoints: []string{"ep0"}}

	ok := client.AsyncSend(context.Background(), vctx, scope, 0)
	client.FailNext["AsyncSend"] = rpc.Status(1)
	bad := client.AsyncSend(context.Background(), vctx, scope, 0)

	if err := rpc.WaitAll(context.Background(), []rpc.Future{ok, bad}); err == nil {
		t.Fatal("expected WaitAll to surface the non-OK status")
	}
}

func TestWaitAllSucceedsWhenAllOK(t *testing.T) {
	client := rpc.NewMockClient()
	scope := variable.NewScope("send")
	scope.Set(variable.NewDense("w", []int64{1}, []float32{1}))
	vctx := &commctx.VariableContext{Name: "w", ShardNames: []string{"s0"}, Endpoints: []string{"ep0"}}

	f1 := client.AsyncSend(context.Background(), vctx, scope, 0)
	f2 := client.AsyncSend(context.Background(), vctx, scope, 0)

	if err := rpc.WaitAll(context.Background(), []rpc.Future{f1, f2}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestMockClientAsyncSendRecordsInbox(t *testing.T) {
	client := rpc.NewMockClient()
	scope := variable.NewScope("send")
	scope.Set(variable.NewDense("w", []int64{2}, []float32{1, 2}))
	vctx := &commctx.VariableContext{Name: "w", ShardNames: []string{"s0"}, Endpoints: []string{"ep0"}}

	client.AsyncSend(context.Background(), vctx, scope, 0)

	sent, ok := client.Sent("w")
	if !ok {
		t.Fatal("expected w to be recorded in Inbox")
	}
	if sent.Dense.Data[0] != 1 || sent.Dense.Data[1] != 2 {
		t.Errorf("Sent data = %v, want [1 2]", sent.Dense.Data)
	}
}

func TestMockClientParameterRecvDeliversSeededValue(t *testing.T) {
	client := rpc.NewMockClient()
	client.SeedRecv("w", variable.NewDense("w", []int64{1}, []float32{9}))
	scope := variable.NewScope("recv")
	vctx := &commctx.VariableContext{Name: "w", ShardNames: []string{"s0"}, Endpoints: []string{"ep0"}}

	client.ParameterRecv(context.Background(), vctx, scope)

	v, err := scope.Get("w")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v.Dense.Data[0] != 9 {
		t.Errorf("recv data = %v, want [9]", v.Dense.Data)
	}
}

func TestMockClientBarrierLogOrdersCalls(t *testing.T) {
	client := rpc.NewMockClient()
	client.AsyncSendBatchBarrier(context.Background(), "ep0")
	client.AsyncSendFetchBarrier(context.Background(), "ep0")

	log := client.BarrierLog()
	if len(log) != 2 || log[0] != "batch:ep0" || log[1] != "fetch:ep0" {
		t.Errorf("BarrierLog = %v, want [batch:ep0 fetch:ep0]", log)
	}
}
