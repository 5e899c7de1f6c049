package recv_test

import (
	"context"
	"testing"

	"github.com/paramfabric/communicator/commctx"
	"github.com/paramfabric/communicator/recv"
	"github.com/paramfabric/communicator/rpc"
	"github.com/paramfabric/communicator/variable"
)

func TestPullAllFillsRecvScopeForEveryVariable(t *testing.T) {
	client := rpc.NewMockClient()
	client.SeedRecv("w1", variable.NewDense("w1", []int64{1}, []float32{1}))
	client.SeedRecv("w2", variable.NewDense("w2", []int64{1}, []float32{2}))

	ctxs := map[string]*commctx.VariableContext{
		"w1": {Name: "w1", ShardNames: []string{"s0"}, Endpoints: []string{"ep0"}},
		"w2": {Name: "w2", ShardNames: []string{"s0"}, Endpoints: []string{"ep0"}},
	}
	recvScope := variable.NewScope("recv")
	p := recv.NewPipeline(ctxs, recvScope, client)

	if err := p.PullAll(context.Background(), 2); err != nil {
		t.Fatalf("PullAll: %v", err)
	}

	v1, err := recvScope.Get("w1")
	if err != nil {
		t.Fatalf("Get(w1): %v", err)
	}
	if v1.Dense.Data[0] != 1 {
		t.Errorf("w1 = %v, want [1]", v1.Dense.Data)
	}
	v2, err := recvScope.Get("w2")
	if err != nil {
		t.Fatalf("Get(w2): %v", err)
	}
	if v2.Dense.Data[0] != 2 {
		t.Errorf("w2 = %v, want [2]", v2.Dense.Data)
	}
}

func TestPullAllPropagatesNonOKStatus(t *testing.T) {
	client := rpc.NewMockClient()
	client.FailNext["ParameterRecv"] = rpc.Status(1)

	ctxs := map[string]*commctx.VariableContext{
		"w": {Name: "w", ShardNames: []string{"s0"}, Endpoints: []string{"ep0"}},
	}
	p := recv.NewPipeline(ctxs, variable.NewScope("recv"), client)

	if err := p.PullAll(context.Background(), 1); err == nil {
		t.Fatal("expected PullAll to surface the failing shard's error")
	}
}
