// Package recv implements the RecvPipeline of spec §4.F: independent,
// unmerged pulls of every configured variable into the receive scope.
package recv

import (
	"context"

	"github.com/paramfabric/communicator/cmn"
	"github.com/paramfabric/communicator/commctx"
	"github.com/paramfabric/communicator/rpc"
	"github.com/paramfabric/communicator/variable"
	"golang.org/x/sync/errgroup"
)

type Pipeline struct {
	ctxs      map[string]*commctx.VariableContext
	recvScope *variable.Scope
	client    rpc.Client
}

func NewPipeline(ctxs map[string]*commctx.VariableContext, recvScope *variable.Scope, client rpc.Client) *Pipeline {
	return &Pipeline{ctxs: ctxs, recvScope: recvScope, client: client}
}

// PullAll submits one independent ParameterRecv per configured variable to
// the recv pool and awaits all of them — there is no merge on receive
// (spec §4.F).
func (p *Pipeline) PullAll(ctx context.Context, threadPoolSize int) error {
	sem := make(chan struct{}, max(threadPoolSize, 1))
	g, gctx := errgroup.WithContext(ctx)
	for name, vctx := range p.ctxs {
		name, vctx := name, vctx
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			f := p.client.ParameterRecv(gctx, vctx, p.recvScope)
			st, err := f.Wait(gctx)
			if err != nil {
				return err
			}
			if st != rpc.StatusOK {
				return cmn.NewErrRPC(name, int32(st), nil)
			}
			return nil
		})
	}
	return g.Wait()
}
