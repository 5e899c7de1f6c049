package communicator

import (
	"context"
	"sync"
	"time"

	"github.com/paramfabric/communicator/cmn"
	"github.com/paramfabric/communicator/cmn/catomic"
	"github.com/paramfabric/communicator/cmn/nlog"
	"github.com/paramfabric/communicator/commctx"
	"github.com/paramfabric/communicator/geo"
	"github.com/paramfabric/communicator/metrics"
	"github.com/paramfabric/communicator/recv"
	"github.com/paramfabric/communicator/rpc"
	"github.com/paramfabric/communicator/send"
	"github.com/paramfabric/communicator/variable"
	"github.com/teris-io/shortid"
)

// Params configures Build. GeoVars/GeoScopes are only consulted when Mode
// is Geo.
type Params struct {
	Mode   Mode
	Config *cmn.Config
	Client rpc.Client

	Ctxs      map[string]*commctx.VariableContext
	StepCtx   *commctx.VariableContext
	SendScope *variable.Scope
	RecvScope *variable.Scope

	GeoVars        map[string]*geo.VarSpec
	GeoDeltaScope  *variable.Scope
	GeoOldScope    *variable.Scope
	GeoPserverScope *variable.Scope

	// Metrics is optional; when nil every collector call is a no-op.
	Metrics *metrics.Set
}

// Core is the CommunicatorCore of spec §4.G: one main goroutine driving
// send/recv (or GeoEngine) through a mode-specific batchGate and
// barrierStrategy (Design Notes §9's collapsed inheritance).
type Core struct {
	id   string
	mode Mode
	cfg  *cmn.Config

	sendPipe  *send.Pipeline
	recvPipe  *recv.Pipeline
	geoEngine *geo.Engine

	client           rpc.Client
	pserverEndpoints []string
	stepCtx          *commctx.VariableContext
	ctxs             map[string]*commctx.VariableContext

	gate    batchGate
	barrier barrierStrategy

	metrics *metrics.Set

	running catomic.Bool
	waiting catomic.Bool

	mu             sync.Mutex
	cond           *sync.Cond
	barrierCounter int
	barrierTrigger int

	geoInitialized bool

	batch catomic.Int32 // last BatchesCounter result, for diagnostics
}

// Build constructs a Core for the given mode, validating the mode-specific
// configuration spec.md §6 describes (e.g. Sync requires pserver_endpoints)
// and raising a fatal cmn.ConfigError otherwise (spec §7).
func Build(p Params) (*Core, error) {
	if p.Config == nil {
		return nil, cmn.NewErrConfig("config", "nil")
	}
	if p.Mode == Sync && len(p.Config.PserverEndpoints) == 0 {
		return nil, cmn.NewErrConfig("pserver_endpoints", "required for sync mode")
	}
	if p.Mode == Geo && p.GeoVars == nil {
		return nil, cmn.NewErrConfig("sparse_attrs", "geo mode requires configured GEO variables")
	}

	id, err := shortid.Generate()
	if err != nil {
		id = "communicator"
	}

	c := &Core{
		id:               id,
		mode:             p.Mode,
		cfg:              p.Config,
		client:           p.Client,
		pserverEndpoints: p.Config.PserverEndpoints,
		stepCtx:          p.StepCtx,
		ctxs:             p.Ctxs,
		metrics:          p.Metrics,
	}
	c.cond = sync.NewCond(&c.mu)

	c.sendPipe = send.NewPipeline(p.Ctxs, p.SendScope, p.Client, p.Config.SendQueueSize, p.Config.PserverTimeoutMS)
	c.recvPipe = recv.NewPipeline(p.Ctxs, p.RecvScope, p.Client)

	switch p.Mode {
	case Async:
		c.gate, c.barrier = asyncGate{}, noopBarrier{}
	case HalfAsync:
		c.gate, c.barrier = halfAsyncGate{}, noopBarrier{}
	case Sync:
		c.gate, c.barrier = halfAsyncGate{}, syncBarrier{}
	case Geo:
		c.geoEngine = geo.NewEngine(p.GeoVars, p.GeoDeltaScope, p.GeoOldScope, p.GeoPserverScope, p.RecvScope,
			p.Client, p.Config.Trainers, p.Config.PserverSparseTableShard, p.Config.PserverTimeoutMS)
		c.gate, c.barrier = geoGate{}, noopBarrier{}
	default:
		return nil, cmn.NewErrConfig("mode", "unknown communicator mode")
	}

	nlog.Infof("communicator[%s]: built in %s mode", c.id, p.Mode)
	return c, nil
}

// Start runs the main loop in a new goroutine and returns immediately.
func (c *Core) Start(ctx context.Context) {
	c.running.Store(true)
	go c.run(ctx)
}

// Stop requests the main loop exit between iterations (spec §5
// cancellation: "in-flight RPCs are awaited to completion").
func (c *Core) Stop() {
	c.running.Store(false)
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}

// run is the state machine of spec §4.G:
//
//	while waiting && running: sleep(100ms)
//	while running:
//	    batch = BatchesCounter()
//	    if batch == 0: log-skip; continue
//	    SendGlobalStep(batch); SendByCommunicator(batch)
//	    BarrierSend(); RecvByCommunicator(); BarrierRecv()
//	    BarrierWeakUp()
func (c *Core) run(ctx context.Context) {
	for c.waiting.Load() && c.running.Load() {
		time.Sleep(100 * time.Millisecond)
	}

	for c.running.Load() {
		n := c.gate.batchesCounter(c)
		c.batch.Store(int32(n))
		if n == 0 {
			nlog.Infof("communicator[%s]: batch=0, skipping iteration", c.id)
			continue
		}
		c.metrics.ObserveBatch(n)
		for name := range c.ctxs {
			c.metrics.SetQueueDepth(name, c.sendPipe.QueueSize(name))
		}

		if err := c.runIteration(ctx, n); err != nil {
			nlog.Errorf("communicator[%s]: iteration failed: %v", c.id, err)
			c.metrics.RecordRPCError(c.mode.String())
			if c.mode == Sync || c.mode == HalfAsync {
				c.running.Store(false)
				return
			}
		}
		c.barrierWeakUp()
	}
}

func (c *Core) runIteration(ctx context.Context, batch int) error {
	if c.mode == Geo {
		return c.geoEngine.RunRound(ctx, c.stepCtx, batch)
	}
	if c.mode == Async {
		c.sendPipe.DrainStepCounter(batch)
	}

	if c.cfg.NeedGlobalStep {
		if err := c.sendPipe.SendGlobalStep(ctx, c.stepCtx, batch); err != nil {
			return err
		}
	}
	if err := c.sendPipe.RunBatch(ctx, batch, c.cfg.ThreadPoolSize); err != nil {
		return err
	}
	if err := c.barrier.barrierSend(ctx, c); err != nil {
		return err
	}
	if err := c.recvPipe.PullAll(ctx, c.cfg.ThreadPoolSize); err != nil {
		return err
	}
	return c.barrier.barrierRecv(ctx, c)
}

// RecvNoBarrier bypasses BarrierRecv entirely, for trainers that pull
// without the barrier discipline (SPEC_FULL §3 supplement).
func (c *Core) RecvNoBarrier(ctx context.Context) error {
	return c.recvPipe.PullAll(ctx, c.cfg.ThreadPoolSize)
}

// Submit is the training loop's entry point for pushing one gradient
// into name's send queue (Async/HalfAsync/Sync only; spec §4.E).
func (c *Core) Submit(name string, v *variable.Variable) error {
	return c.sendPipe.Submit(name, v)
}

// GeoSend is the Geo-mode counterpart of Submit: it partitions the named
// tables' sparse rows by shard and pushes the resulting ids map (spec
// §4.H Send).
func (c *Core) GeoSend(tableNames []string, scope *variable.Scope) error {
	return c.geoEngine.Send(tableNames, scope)
}

// Ready reports whether every named variable is routable, and — in Geo
// mode — whether InitParams/InitSparse have run (SPEC_FULL §3 supplement
// of the original's Check()).
func (c *Core) Ready(names ...string) bool {
	for _, name := range names {
		if _, ok := c.ctxs[name]; !ok {
			return false
		}
	}
	if c.mode == Geo {
		return c.geoInitialized
	}
	return true
}

// MarkGeoInitialized records that InitParams/InitSparse have completed;
// the caller that ran the initial pull invokes it (trainerd does not).
func (c *Core) MarkGeoInitialized() { c.geoInitialized = true }

func (c *Core) Mode() Mode { return c.mode }

func (c *Core) LastBatch() int { return int(c.batch.Load()) }
