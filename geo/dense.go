package geo

import (
	"context"
	"fmt"

	"github.com/paramfabric/communicator/rpc"
	"github.com/paramfabric/communicator/variable"
)

// SendDense computes the delta between the worker's live copy (RecvScope)
// and its shadow (OldScope), advances the shadow by that delta, and sends
// the delta via ParameterSend (spec §4.H SendDense).
func (e *Engine) SendDense(ctx context.Context, varName string) error {
	spec := e.Vars[varName]
	latest, err := e.RecvScope.Get(varName)
	if err != nil {
		return err
	}
	old, err := e.OldScope.Get(varName)
	if err != nil {
		return err
	}

	delta := &variable.Dense{Shape: append([]int64(nil), latest.Dense.Shape...), DType: latest.Dense.DType}
	delta.Data = make([]float32, len(latest.Dense.Data))
	for i := range delta.Data {
		d := (latest.Dense.Data[i] - old.Dense.Data[i]) / float32(e.Trainers)
		delta.Data[i] = d
		old.Dense.Data[i] += d
	}
	e.DeltaScope.Set(&variable.Variable{Name: varName, Dense: delta})

	f := e.Client.ParameterSend(ctx, spec.Ctx, e.DeltaScope)
	st, err := f.Wait(ctx)
	if err != nil {
		return err
	}
	if st != rpc.StatusOK {
		return fmt.Errorf("geo: SendDense %s: status %d", varName, st)
	}
	return nil
}

// RecvDense pulls the server's current value, diffs it against the
// shadow, applies the delta onto the worker's live copy, and advances the
// shadow to the server's value (spec §4.H RecvDense).
func (e *Engine) RecvDense(ctx context.Context, varName string) error {
	spec := e.Vars[varName]
	f := e.Client.ParameterRecv(ctx, spec.Ctx, e.PserverScope)
	st, err := f.Wait(ctx)
	if err != nil {
		return err
	}
	if st != rpc.StatusOK {
		return fmt.Errorf("geo: RecvDense %s: status %d", varName, st)
	}

	srv, err := e.PserverScope.Get(varName)
	if err != nil {
		return err
	}
	old, err := e.OldScope.Get(varName)
	if err != nil {
		return err
	}
	latest, err := e.RecvScope.Get(varName)
	if err != nil {
		return err
	}
	for i := range srv.Dense.Data {
		delta := srv.Dense.Data[i] - old.Dense.Data[i]
		latest.Dense.Data[i] += delta
		old.Dense.Data[i] = srv.Dense.Data[i]
	}
	return nil
}
