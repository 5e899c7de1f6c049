package geo

import (
	"context"
	"fmt"

	"github.com/paramfabric/communicator/cmn"
	"github.com/paramfabric/communicator/rpc"
	"github.com/paramfabric/communicator/variable"
)

// InitParams pulls every configured dense variable's current server value
// into RecvScope and seeds OldScope with a deep copy, establishing the
// shadow GEO diffs against on the first round (spec §4.H InitParams).
func (e *Engine) InitParams(ctx context.Context) error {
	for name, spec := range e.Vars {
		if spec.Sparse {
			continue
		}
		f := e.Client.ParameterRecv(ctx, spec.Ctx, e.RecvScope)
		st, err := f.Wait(ctx)
		if err != nil {
			return err
		}
		if st != rpc.StatusOK {
			return fmt.Errorf("geo: InitParams %s: status %d", name, st)
		}
		v, err := e.RecvScope.Get(name)
		if err != nil {
			return err
		}
		e.OldScope.Set(&variable.Variable{Name: name, Dense: v.Dense.Clone()})
	}
	return nil
}

// InitSparse pulls each configured sparse table's full contents into
// RecvScope, initializes its ValueBlock shadow with keys [0, rows), and
// copies the received values into the shadow's Param slot (spec §4.H
// InitSparse).
func (e *Engine) InitSparse(ctx context.Context, attrs []cmn.SparseAttr) error {
	byName := make(map[string]cmn.SparseAttr, len(attrs))
	for _, a := range attrs {
		byName[a.Name] = a
	}

	for name, spec := range e.Vars {
		if !spec.Sparse {
			continue
		}
		attr, ok := byName[name]
		if !ok {
			return fmt.Errorf("geo: InitSparse: no sparse_attr for %s", name)
		}

		f := e.Client.ParameterRecv(ctx, spec.Ctx, e.RecvScope)
		st, err := f.Wait(ctx)
		if err != nil {
			return err
		}
		if st != rpc.StatusOK {
			return fmt.Errorf("geo: InitSparse %s: status %d", name, st)
		}

		v, err := e.RecvScope.Get(name)
		if err != nil {
			return err
		}

		rows := int(attr.Rows)
		keys := make([]uint64, rows)
		for i := range keys {
			keys[i] = uint64(i)
		}
		if err := spec.Shadow.Init(keys); err != nil {
			return err
		}
		for i := 0; i < rows; i++ {
			off := i * attr.Width
			row := v.Dense.Data[off : off+attr.Width]
			if err := spec.Shadow.Set(keys[i], []string{paramSlot}, [][]float32{append([]float32(nil), row...)}); err != nil {
				return err
			}
		}
	}
	return nil
}
