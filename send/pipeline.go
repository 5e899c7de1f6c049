// Package send implements the SendPipeline of spec §4.E: one bounded
// queue per variable, and a worker pool that merges a batch and hands it
// to the RPC client.
package send

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paramfabric/communicator/cmn"
	"github.com/paramfabric/communicator/cmn/nlog"
	"github.com/paramfabric/communicator/commctx"
	"github.com/paramfabric/communicator/queue"
	"github.com/paramfabric/communicator/rpc"
	"github.com/paramfabric/communicator/variable"
	"golang.org/x/sync/errgroup"
)

// Pipeline owns one BoundedQueue[*variable.Variable] per variable name and
// the worker pool that drains them (spec §4.E).
type Pipeline struct {
	mu        sync.RWMutex
	queues    map[string]*queue.BoundedQueue[*variable.Variable]
	queueSize int

	ctxs      map[string]*commctx.VariableContext
	sendScope *variable.Scope
	client    rpc.Client
	timeout   time.Duration
}

func NewPipeline(ctxs map[string]*commctx.VariableContext, sendScope *variable.Scope, client rpc.Client, queueSize int, timeout time.Duration) *Pipeline {
	p := &Pipeline{
		queues:    make(map[string]*queue.BoundedQueue[*variable.Variable]),
		queueSize: queueSize,
		ctxs:      ctxs,
		sendScope: sendScope,
		client:    client,
		timeout:   timeout,
	}
	for name := range ctxs {
		p.queues[name] = queue.NewBoundedQueue[*variable.Variable](queueSize)
	}
	return p
}

// Submit pushes var into name's queue, blocking if the queue is full —
// backpressure is the design's only overflow policy (spec §7
// QueueOverflow: "cannot occur by design").
func (p *Pipeline) Submit(name string, v *variable.Variable) error {
	p.mu.RLock()
	q, ok := p.queues[name]
	p.mu.RUnlock()
	if !ok {
		return cmn.NewErrContract("send: unknown variable " + name)
	}
	q.Push(v)
	return nil
}

// QueueSize reports the live size of name's queue, used by the Async
// BatchesCounter to poll the STEP_COUNTER queue.
func (p *Pipeline) QueueSize(name string) int {
	p.mu.RLock()
	q, ok := p.queues[name]
	p.mu.RUnlock()
	if !ok {
		return 0
	}
	return q.Size()
}

// DrainStepCounter pops and discards n items from the STEP_COUNTER queue.
// Async's BatchesCounter determines the batch size from this queue's
// length but STEP_COUNTER bypasses merge entirely (SendGlobalStep builds
// its own counter value), so nothing else accounts for those n pops
// (spec §8 invariant 2: "each per-variable queue has exactly n pops
// attributed to that iteration").
func (p *Pipeline) DrainStepCounter(n int) {
	p.mu.RLock()
	q, ok := p.queues[rpc.StepCounter]
	p.mu.RUnlock()
	if !ok {
		return
	}
	for i := 0; i < n; i++ {
		q.Pop()
	}
}

// SendGlobalStep sends STEP_COUNTER directly, bypassing merge and the
// per-variable queue entirely (spec §4.E, §6 distinguished variable
// names). It must be called before RunBatch in an iteration (spec §5
// ordering: "SendGlobalStep precedes SendByCommunicator").
func (p *Pipeline) SendGlobalStep(ctx context.Context, stepCtx *commctx.VariableContext, batch int) error {
	v := variable.NewStepCounter(rpc.StepCounter, int64(batch))
	p.sendScope.Set(v)
	f := p.client.AsyncSend(ctx, stepCtx, p.sendScope, p.timeout)
	st, err := f.Wait(ctx)
	if err != nil {
		return err
	}
	if st != rpc.StatusOK {
		return cmn.NewErrRPC(fmt.Sprintf("%v", stepCtx.Endpoints), int32(st), nil)
	}
	return nil
}

// RunBatch drains exactly `batch` items from every configured variable's
// queue, merges each per its context's MergeMode, writes the merged
// result into send_scope, and issues one AsyncSend per variable — then
// awaits every future before returning (spec §4.E, §5: "a batch is always
// atomically built... the main loop pops exactly batch items per variable
// before any RPC issues for that variable").
func (p *Pipeline) RunBatch(ctx context.Context, batch int, threadPoolSize int) error {
	if batch <= 0 {
		return nil
	}
	names := make([]string, 0, len(p.ctxs))
	p.mu.RLock()
	for name := range p.ctxs {
		if name == rpc.StepCounter {
			continue // STEP_COUNTER bypasses merge and is sent separately (spec §4.E)
		}
		names = append(names, name)
	}
	p.mu.RUnlock()

	sem := make(chan struct{}, max(threadPoolSize, 1))
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			return p.mergeAndSend(gctx, name, batch)
		})
	}
	return g.Wait()
}

func (p *Pipeline) mergeAndSend(ctx context.Context, name string, batch int) error {
	p.mu.RLock()
	q := p.queues[name]
	vctx := p.ctxs[name]
	p.mu.RUnlock()

	items := make([]*variable.Variable, batch)
	for i := 0; i < batch; i++ {
		items[i] = q.Pop()
	}

	var merged *variable.Variable
	var err error
	if items[0].IsSparse() {
		merged, err = variable.MergeSparse(items, vctx.MergeMode)
	} else {
		merged, err = variable.MergeDense(items, vctx.MergeMode)
	}
	if err != nil {
		return err
	}
	merged.Name = name
	p.sendScope.Set(merged)

	f := p.client.AsyncSend(ctx, vctx, p.sendScope, p.timeout)
	st, err := f.Wait(ctx)
	if err != nil {
		nlog.Errorf("send: %s: %v", name, err)
		return err
	}
	if st != rpc.StatusOK {
		return cmn.NewErrRPC(fmt.Sprintf("%v", vctx.Endpoints), int32(st), nil)
	}
	return nil
}
