// Package geo implements the GEO (delta-based) discipline of spec §4.H:
// sparse-id coalescing against a per-worker shadow of server state, and
// per-shard concurrent send/recv of deltas instead of full values.
package geo

import (
	"context"
	"time"

	"github.com/paramfabric/communicator/cmn/nlog"
	"github.com/paramfabric/communicator/commctx"
	"github.com/paramfabric/communicator/kv"
	"github.com/paramfabric/communicator/queue"
	"github.com/paramfabric/communicator/rpc"
	"github.com/paramfabric/communicator/variable"
	"golang.org/x/sync/errgroup"
)

// SparseIdsMap is table-name -> one row-id set per destination shard,
// exactly as built by Send (spec §4.H).
type SparseIdsMap map[string][]map[int64]struct{}

// VarSpec describes one variable GEO drives: its VariableContext plus,
// for sparse variables, the ValueBlock holding its Param shadow.
type VarSpec struct {
	Ctx    *commctx.VariableContext
	Sparse bool
	Shadow *kv.ValueBlock // nil for dense vars
}

// Engine is the GeoEngine of spec §4.H: delta_scope, old_scope,
// pserver_scope, the single ids_queue, and the sparse KV shadows.
type Engine struct {
	Vars map[string]*VarSpec

	DeltaScope   *variable.Scope
	OldScope     *variable.Scope
	PserverScope *variable.Scope
	RecvScope    *variable.Scope // shared with the training loop

	idsQueue *queue.BoundedQueue[SparseIdsMap]

	Client     rpc.Client
	Trainers   int
	ShardCount int
	Timeout    time.Duration

	// StrictSourceCompat reproduces the original source's dense-path
	// early-return bug (Design Notes open question): when true, RunRound
	// skips SendDense/RecvDense for every dense variable.
	StrictSourceCompat bool

	pending []SparseIdsMap // accumulated maps for the current round
}

func NewEngine(vars map[string]*VarSpec, deltaScope, oldScope, pserverScope, recvScope *variable.Scope, client rpc.Client, trainers, shardCount int, timeout time.Duration) *Engine {
	return &Engine{
		Vars:         vars,
		DeltaScope:   deltaScope,
		OldScope:     oldScope,
		PserverScope: pserverScope,
		RecvScope:    recvScope,
		idsQueue:     queue.NewBoundedQueue[SparseIdsMap](64),
		Client:       client,
		Trainers:     trainers,
		ShardCount:   shardCount,
		Timeout:      timeout,
	}
}

// Send builds one SparseIdsMap from the sparse gradients currently held in
// scope under the given table names, partitions each table's row indices
// by row mod ShardCount into per-shard deduplicated sets, and pushes the
// map onto ids_queue (spec §4.H Send).
func (e *Engine) Send(tableNames []string, scope *variable.Scope) error {
	idsMap := make(SparseIdsMap, len(tableNames))
	for _, name := range tableNames {
		v, err := scope.Get(name)
		if err != nil {
			return err
		}
		if v.Sparse == nil {
			continue
		}
		sets := make([]map[int64]struct{}, e.ShardCount)
		for i := range sets {
			sets[i] = make(map[int64]struct{})
		}
		for _, row := range v.Sparse.Rows {
			shard := int(row % int64(e.ShardCount))
			if shard < 0 {
				shard += e.ShardCount
			}
			sets[shard][row] = struct{}{}
		}
		idsMap[name] = sets
	}
	e.idsQueue.Push(idsMap)
	return nil
}

// BatchesCounter accumulates up to maxMerge id-maps using the same
// wait-budget rule as Async's BatchesCounter (spec §4.G): poll every
// 10ms, give up after waitTimes consecutive empty polls, returning
// however many maps were collected (possibly zero).
func (e *Engine) BatchesCounter(maxMerge, waitTimes int) int {
	e.pending = e.pending[:0]
	emptyPolls := 0
	for len(e.pending) < maxMerge {
		v, ok := e.idsQueue.TryPop()
		if !ok {
			emptyPolls++
			if emptyPolls >= waitTimes {
				break
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		emptyPolls = 0
		e.pending = append(e.pending, v)
	}
	return len(e.pending)
}

// mergedSetsFor unions every accumulated map's set for (varName, shard).
func (e *Engine) mergedSetsFor(varName string, shard int) map[int64]struct{} {
	out := make(map[int64]struct{})
	for _, m := range e.pending {
		sets, ok := m[varName]
		if !ok || shard >= len(sets) {
			continue
		}
		for row := range sets[shard] {
			out[row] = struct{}{}
		}
	}
	return out
}

// RunRound executes one GEO iteration (spec §4.H main loop): send the
// global step, then for every configured variable fan out its per-shard
// (sparse) or single (dense) send+recv task, and await all of them before
// clearing the accumulated id-maps.
func (e *Engine) RunRound(ctx context.Context, stepCtx *commctx.VariableContext, batch int) error {
	if err := e.sendGlobalStep(ctx, stepCtx, batch); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, spec := range e.Vars {
		name, spec := name, spec
		if spec.Sparse {
			for shard := range spec.Ctx.ShardNames {
				shard := shard
				g.Go(func() error {
					if err := e.SendSparse(gctx, name, shard); err != nil {
						return err
					}
					return e.RecvSparse(gctx, name, shard)
				})
			}
		} else {
			g.Go(func() error {
				if e.StrictSourceCompat {
					nlog.Warningf("geo: strict-source-compat is on, skipping dense send/recv for %s", name)
					return nil
				}
				if err := e.SendDense(gctx, name); err != nil {
					return err
				}
				return e.RecvDense(gctx, name)
			})
		}
	}
	err := g.Wait()
	e.pending = e.pending[:0]
	return err
}

func (e *Engine) sendGlobalStep(ctx context.Context, stepCtx *commctx.VariableContext, batch int) error {
	v := variable.NewStepCounter(rpc.StepCounter, int64(batch))
	scope := variable.NewScope("step")
	scope.Set(v)
	f := e.Client.AsyncSend(ctx, stepCtx, scope, e.Timeout)
	_, err := f.Wait(ctx)
	return err
}
