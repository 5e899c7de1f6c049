package geo_test

import (
	"context"
	"testing"
	"time"

	"github.com/paramfabric/communicator/commctx"
	"github.com/paramfabric/communicator/geo"
	"github.com/paramfabric/communicator/kv"
	"github.com/paramfabric/communicator/rpc"
	"github.com/paramfabric/communicator/variable"
)

func sparseCtx(name string) *commctx.VariableContext {
	return &commctx.VariableContext{
		Name:           name,
		ShardNames:     []string{name + ".shard0", name + ".shard1"},
		Endpoints:      []string{"ep0", "ep1"},
		HeightSections: []int64{2, 4}, // GEO partitions rows by row mod 2; SendSparse sends HeightSections[shard] as the shard's height
	}
}

// S4-adjacent: GEO sparse round-trip. Two rows touched by the trainer are
// partitioned into their shards, a delta is shipped and the shadow
// advances by it, and a server response updates both the live copy and
// the shadow again.
func TestGeoSparseRoundTrip(t *testing.T) {
	const varName = "embedding"
	schema := []kv.Slot{{Name: "Param", Width: 2, Init: kv.ConstantInitializer{Value: 0}}}
	shadow := kv.NewValueBlock(schema, nil)
	if err := shadow.Init([]uint64{0, 1, 2, 3}); err != nil {
		t.Fatalf("init shadow: %v", err)
	}

	recvScope := variable.NewScope("recv")
	recvScope.Set(&variable.Variable{Name: varName, Dense: &variable.Dense{
		Shape: []int64{4, 2}, DType: variable.Float32,
		Data: []float32{1, 1, 2, 2, 3, 3, 4, 4},
	}})
	deltaScope := variable.NewScope("delta")
	oldScope := variable.NewScope("old")
	pserverScope := variable.NewScope("pserver")

	client := rpc.NewMockClient()
	// Server responds to shard0's AsyncGetVar with local id 0 -> value [5,5].
	client.SeedRecv("ep0/embedding.shard0", &variable.Variable{
		Name: "embedding.shard0",
		Sparse: &variable.Sparse{
			Height: 2, Width: 2,
			Rows:   []int64{0},
			Values: [][]float32{{5, 5}},
		},
	})

	vars := map[string]*geo.VarSpec{
		varName: {Ctx: sparseCtx(varName), Sparse: true, Shadow: shadow},
	}
	eng := geo.NewEngine(vars, deltaScope, oldScope, pserverScope, recvScope, client, 2, 2, time.Second)

	// Row 0 and row 2 both land in shard 0 (0 mod 2 == 0, 2 mod 2 == 0).
	grad := variable.NewScope("grad")
	grad.Set(&variable.Variable{Name: varName, Sparse: &variable.Sparse{
		Height: 4, Width: 2,
		Rows:   []int64{0, 2},
		Values: [][]float32{{0, 0}, {0, 0}},
	}})
	if err := eng.Send([]string{varName}, grad); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := eng.BatchesCounter(1, 1); n != 1 {
		t.Fatalf("expected 1 accumulated map, got %d", n)
	}

	if err := eng.SendSparse(context.Background(), varName, 0); err != nil {
		t.Fatalf("SendSparse: %v", err)
	}
	sent, ok := client.Inbox["ep0/embedding.shard0"]
	if !ok || sent.Sparse == nil {
		t.Fatalf("expected shard0 payload in inbox")
	}
	// delta = (latest - shadow)/trainers = (1-0)/2 = 0.5 for row 0.
	if got := sent.Sparse.Values[0][0]; got != 0.5 {
		t.Errorf("expected delta 0.5, got %v", got)
	}

	if err := eng.RecvSparse(context.Background(), varName, 0); err != nil {
		t.Fatalf("RecvSparse: %v", err)
	}
	row, err := recvScope.Get(varName)
	if err != nil {
		t.Fatalf("get recv scope: %v", err)
	}
	// global row 0: shadow was 0.5 (set by SendSparse) and the server value
	// is 5, so delta = 5-0.5 = 4.5; latest (still 1, untouched by
	// SendSparse) becomes 1+4.5 = 5.5.
	if got := row.Dense.Data[0]; got != 5.5 {
		t.Errorf("expected latest row0[0]=5.5, got %v", got)
	}
}

// TestGeoStrictSourceCompat verifies the dense-path reproduction flag
// skips SendDense/RecvDense entirely.
func TestGeoStrictSourceCompat(t *testing.T) {
	client := rpc.NewMockClient()
	vars := map[string]*geo.VarSpec{
		"w": {Ctx: &commctx.VariableContext{Name: "w", ShardNames: []string{"w"}, Endpoints: []string{"ep0"}}},
	}
	recvScope := variable.NewScope("recv")
	recvScope.Set(&variable.Variable{Name: "w", Dense: &variable.Dense{Shape: []int64{2}, DType: variable.Float32, Data: []float32{1, 2}}})
	oldScope := variable.NewScope("old")
	oldScope.Set(&variable.Variable{Name: "w", Dense: &variable.Dense{Shape: []int64{2}, DType: variable.Float32, Data: []float32{0, 0}}})

	eng := geo.NewEngine(vars, variable.NewScope("delta"), oldScope, variable.NewScope("pserver"), recvScope, client, 1, 1, time.Second)
	eng.StrictSourceCompat = true

	stepCtx := &commctx.VariableContext{Name: rpc.StepCounter, ShardNames: []string{"ep0"}, Endpoints: []string{"ep0"}}
	if err := eng.RunRound(context.Background(), stepCtx, 1); err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if len(client.Inbox) != 1 { // only the global step, dense send/recv skipped
		t.Errorf("expected only the step counter in inbox, got %d entries", len(client.Inbox))
	}
}
