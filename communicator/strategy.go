package communicator

import (
	"context"
	"time"

	"github.com/paramfabric/communicator/cmn"
	"github.com/paramfabric/communicator/rpc"
)

// batchGate decides how many items to merge this iteration, collapsing
// the Async/HalfAsync/Sync/Geo inheritance chain of the original source
// into one strategy object per mode (Design Notes §9).
type batchGate interface {
	batchesCounter(c *Core) int
}

// asyncGate polls the STEP_COUNTER queue every 10ms until it holds
// max_merge_var_num items, and gives up after sendWaitTimes consecutive
// polls in which the queue did not grow (spec §4.G Async).
type asyncGate struct{}

func (asyncGate) batchesCounter(c *Core) int {
	maxMerge := c.cfg.MaxMergeVarNum
	waitTimes := c.cfg.SendWaitTimes
	idle := 0
	last := c.sendPipe.QueueSize(rpc.StepCounter)
	for {
		n := c.sendPipe.QueueSize(rpc.StepCounter)
		if n >= maxMerge {
			return maxMerge
		}
		if n > last {
			idle = 0
			last = n
		} else {
			idle++
		}
		if idle >= waitTimes {
			return n
		}
		if !c.running.Load() {
			return n
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// halfAsyncGate blocks on the condition variable until barrier_counter
// reaches a nonzero barrier_trigger (spec §4.G HalfAsync).
type halfAsyncGate struct{}

func (halfAsyncGate) batchesCounter(c *Core) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.running.Load() && !(c.barrierTrigger > 0 && c.barrierCounter >= c.barrierTrigger) {
		c.cond.Wait()
	}
	return c.barrierTrigger
}

// geoGate accumulates ids maps with the same wait-budget rule as Async
// (spec §4.H main loop).
type geoGate struct{}

func (geoGate) batchesCounter(c *Core) int {
	return c.geoEngine.BatchesCounter(c.cfg.MaxMergeVarNum, c.cfg.SendWaitTimes)
}

// barrierStrategy implements BarrierSend/BarrierRecv: a no-op everywhere
// except Sync, where it issues the per-endpoint barrier RPCs (spec §4.G).
type barrierStrategy interface {
	barrierSend(ctx context.Context, c *Core) error
	barrierRecv(ctx context.Context, c *Core) error
}

type noopBarrier struct{}

func (noopBarrier) barrierSend(context.Context, *Core) error { return nil }
func (noopBarrier) barrierRecv(context.Context, *Core) error { return nil }

// syncBarrier issues AsyncSendBatchBarrier/AsyncSendFetchBarrier to every
// configured pserver endpoint and awaits all of them; a non-OK status is
// a fatal RPCError (spec §4.G Sync, §7).
type syncBarrier struct{}

func (syncBarrier) barrierSend(ctx context.Context, c *Core) error {
	return fanBarrier(ctx, c, c.client.AsyncSendBatchBarrier)
}

func (syncBarrier) barrierRecv(ctx context.Context, c *Core) error {
	return fanBarrier(ctx, c, c.client.AsyncSendFetchBarrier)
}

func fanBarrier(ctx context.Context, c *Core, call func(context.Context, string) rpc.Future) error {
	futures := make([]rpc.Future, len(c.pserverEndpoints))
	for i, ep := range c.pserverEndpoints {
		futures[i] = call(ctx, ep)
	}
	for i, f := range futures {
		st, err := f.Wait(ctx)
		if err != nil {
			return err
		}
		if st != rpc.StatusOK {
			return cmn.NewErrRPC(c.pserverEndpoints[i], int32(st), nil)
		}
	}
	return nil
}
