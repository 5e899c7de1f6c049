// Package rpc models the RPC transport of spec §6 as an opaque client with
// futures — request/response, batch-barrier, fetch-barrier, async
// send-var, async get-var — the one external collaborator spec.md §1
// explicitly keeps out of the core's scope. Client is the interface the
// rest of the module programs against; fasthttp_client.go gives one
// concrete wire implementation, mock.go gives the in-memory fake tests use.
package rpc

import (
	"context"
	"time"

	"github.com/paramfabric/communicator/commctx"
	"github.com/paramfabric/communicator/variable"
)

// Status is the 32-bit wire status of spec §6; zero is success.
type Status int32

const StatusOK Status = 0

// Future is returned by every async call; Wait blocks until the call
// completes (or the context passed to the call is done) and returns the
// terminal status plus any transport-level error.
type Future interface {
	Wait(ctx context.Context) (Status, error)
}

// Client is the opaque RPC surface the core consumes (spec §1, §6).
// AsyncSend/ParameterRecv/ParameterSend operate against a VariableContext
// and fan out to all of its shards internally — the core never addresses
// a single endpoint for those three, matching "merge-and-send" being a
// per-variable, not a per-shard, operation in the async/half-async/sync
// disciplines (§4.E/§4.F). GEO's sparse path, which does operate per
// shard, uses the endpoint-addressed AsyncSendVar/AsyncGetVar below; the
// two barrier calls are endpoint-addressed as well and are used by Sync.
type Client interface {
	// AsyncSend pushes the named variable's current value in scope to
	// every shard of ctx, merged server-side per ctx.MergeMode.
	AsyncSend(ctx context.Context, vctx *commctx.VariableContext, scope *variable.Scope, timeout time.Duration) Future
	// ParameterRecv pulls the named variable from every shard of ctx into
	// scope, without merge (spec §4.F).
	ParameterRecv(ctx context.Context, vctx *commctx.VariableContext, scope *variable.Scope) Future
	// ParameterSend is ParameterRecv's send-direction counterpart, used by
	// GEO's dense path (spec §4.H SendDense).
	ParameterSend(ctx context.Context, vctx *commctx.VariableContext, scope *variable.Scope) Future

	// AsyncSendVar pushes scope[name] to endpoint under the wire name name.
	AsyncSendVar(ctx context.Context, endpoint string, scope *variable.Scope, name string) Future
	// AsyncGetVar pulls inName from endpoint into scope under outName,
	// recorded internally under alias for endpoint-scoped bookkeeping.
	AsyncGetVar(ctx context.Context, endpoint, inName, outName, alias string, scope *variable.Scope) Future

	AsyncSendBatchBarrier(ctx context.Context, endpoint string) Future
	AsyncSendFetchBarrier(ctx context.Context, endpoint string) Future
}

// Distinguished variable names of spec §6.
const (
	StepCounter           = "@STEP_COUNTER@"
	BatchBarrierMessage   = "@BATCH_BARRIER@"
	FetchBarrierMessage   = "@FETCH_BARRIER@"
	CompleteMessage       = "@COMPLETE@"
	WithoutBarrierMessage = "@WITHOUT_BARRIER@"
	LRDecayCounter        = "@LR_DECAY_COUNTER@"
)

// WaitAll blocks until every future resolves, returning the first non-OK
// status/error encountered (spec §5: "the iteration does not advance
// until all futures complete").
func WaitAll(ctx context.Context, futures []Future) error {
	var firstErr error
	for _, f := range futures {
		st, err := f.Wait(ctx)
		if err != nil && firstErr == nil {
			firstErr = err
		} else if st != StatusOK && firstErr == nil {
			firstErr = &wireError{status: st}
		}
	}
	return firstErr
}

type wireError struct{ status Status }

func (e *wireError) Error() string { return "rpc: non-zero status" }
func (e *wireError) Status() Status { return e.status }
