package geo

import (
	"context"
	"fmt"
	"sort"

	"github.com/paramfabric/communicator/rpc"
	"github.com/paramfabric/communicator/variable"
)

const paramSlot = "Param"

// latestRow returns a writable slice into the whole-table Dense held in
// RecvScope under varName, at the given global row id.
func (e *Engine) latestRow(varName string, row int64, width int) ([]float32, error) {
	v, err := e.RecvScope.Get(varName)
	if err != nil {
		return nil, err
	}
	off := int(row) * width
	if off+width > len(v.Dense.Data) {
		return nil, fmt.Errorf("geo: row %d out of range for %s", row, varName)
	}
	return v.Dense.Data[off : off+width], nil
}

// SendSparse merges every accumulated ids map's set for (varName, shard),
// computes each row's delta against its ValueBlock shadow, advances the
// shadow by that delta, and ships the deltas to the shard's endpoint under
// its per-shard wire name (spec §4.H SendSparse).
func (e *Engine) SendSparse(ctx context.Context, varName string, shard int) error {
	spec := e.Vars[varName]
	vctx := spec.Ctx
	width := spec.Shadow.SlotWidth(paramSlot)

	rowSet := e.mergedSetsFor(varName, shard)
	if len(rowSet) == 0 {
		return nil
	}
	rows := make([]int64, 0, len(rowSet))
	for r := range rowSet {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i] < rows[j] })

	keys := make([]uint64, len(rows))
	for i, r := range rows {
		keys[i] = uint64(r)
	}
	shadow, err := spec.Shadow.Get(keys, []string{paramSlot})
	if err != nil {
		return err
	}

	deltas := make([][]float32, len(rows))
	localIDs := make([]int64, len(rows))
	for i, row := range rows {
		latest, err := e.latestRow(varName, row, width)
		if err != nil {
			return err
		}
		delta := make([]float32, width)
		for j := 0; j < width; j++ {
			d := (latest[j] - shadow[i][0][j]) / float32(e.Trainers)
			delta[j] = d
			shadow[i][0][j] += d
		}
		deltas[i] = delta
		localIDs[i] = row / int64(e.ShardCount)
		if err := spec.Shadow.Set(keys[i], []string{paramSlot}, [][]float32{shadow[i][0]}); err != nil {
			return err
		}
	}

	shardName := vctx.ShardNames[shard]
	height := int64(0)
	if shard < len(vctx.HeightSections) {
		height = vctx.HeightSections[shard]
	}
	e.DeltaScope.Set(&variable.Variable{
		Name:   shardName,
		Sparse: &variable.Sparse{Height: height, Width: width, Rows: localIDs, Values: deltas},
	})

	f := e.Client.AsyncSendVar(ctx, vctx.Endpoints[shard], e.DeltaScope, shardName)
	st, err := f.Wait(ctx)
	if err != nil {
		return err
	}
	if st != rpc.StatusOK {
		return fmt.Errorf("geo: SendSparse %s shard %d: status %d", varName, shard, st)
	}
	return nil
}

// RecvSparse pulls the shard's current server values, diffs them against
// the ValueBlock shadow, applies the resulting delta onto the worker's
// live copy in RecvScope, and advances the shadow to the server's value
// (spec §4.H RecvSparse).
func (e *Engine) RecvSparse(ctx context.Context, varName string, shard int) error {
	spec := e.Vars[varName]
	vctx := spec.Ctx
	width := spec.Shadow.SlotWidth(paramSlot)
	shardName := vctx.ShardNames[shard]

	f := e.Client.AsyncGetVar(ctx, vctx.Endpoints[shard], shardName, shardName, shardName, e.PserverScope)
	st, err := f.Wait(ctx)
	if err != nil {
		return err
	}
	if st != rpc.StatusOK {
		return fmt.Errorf("geo: RecvSparse %s shard %d: status %d", varName, shard, st)
	}

	srv, err := e.PserverScope.Get(shardName)
	if err != nil {
		return err
	}
	if srv.Sparse == nil {
		return nil
	}

	for j, localID := range srv.Sparse.Rows {
		globalID := localID*int64(e.ShardCount) + int64(shard)
		key := uint64(globalID)

		shadow, err := spec.Shadow.Get([]uint64{key}, []string{paramSlot})
		if err != nil {
			return err
		}
		tSrv := srv.Sparse.Values[j]

		latest, err := e.latestRow(varName, globalID, width)
		if err != nil {
			return err
		}
		for k := 0; k < width; k++ {
			delta := tSrv[k] - shadow[0][0][k]
			latest[k] += delta
		}
		if err := spec.Shadow.Set(key, []string{paramSlot}, [][]float32{tSrv}); err != nil {
			return err
		}
	}
	return nil
}
