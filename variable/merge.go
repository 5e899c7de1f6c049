package variable

import (
	"sort"

	"github.com/paramfabric/communicator/cmn"
)

// MergeMode selects the reduction applied across a merged batch (spec §3,
// VariableContext.merge_mode).
type MergeMode int

const (
	Add MergeMode = iota
	Average
)

// MergeDense implements §4.C: all inputs must share shape and element
// type; the output is a fresh zero-filled tensor, summed, then divided by
// len(vars) if mode is Average.
func MergeDense(vars []*Variable, mode MergeMode) (*Variable, error) {
	if len(vars) == 0 {
		return nil, cmn.NewErrContract("MergeDense: empty input")
	}
	first := vars[0].Dense
	if first == nil {
		return nil, cmn.NewErrContract("MergeDense: " + vars[0].Name + " is not dense")
	}
	out := &Dense{Shape: append([]int64(nil), first.Shape...), DType: first.DType}
	out.Data = make([]float32, first.numel())

	for _, v := range vars {
		d := v.Dense
		if d == nil {
			return nil, cmn.NewErrContract("MergeDense: " + v.Name + " is not dense")
		}
		if d.DType != first.DType {
			return nil, cmn.NewErrContract("MergeDense: element type mismatch for " + v.Name)
		}
		if !d.sameShape(first) {
			return nil, cmn.NewErrContract("MergeDense: shape mismatch for " + v.Name)
		}
		for i, x := range d.Data {
			out.Data[i] += x
		}
	}
	if mode == Average {
		n := float32(len(vars))
		for i := range out.Data {
			out.Data[i] /= n
		}
	}
	return &Variable{Name: vars[0].Name, Dense: out}, nil
}

// MergeSparse implements §4.C: builds a row-id -> accumulated row map
// across all inputs, then emits rows in sorted row-id order with height
// equal to the max input height. If mode is Average, each accumulated row
// is divided by len(vars) — not by the number of inputs that touched that
// particular row, matching the original reduction semantics (a row absent
// from one input contributes a zero, not a skip).
func MergeSparse(vars []*Variable, mode MergeMode) (*Variable, error) {
	if len(vars) == 0 {
		return nil, cmn.NewErrContract("MergeSparse: empty input")
	}
	first := vars[0].Sparse
	if first == nil {
		return nil, cmn.NewErrContract("MergeSparse: " + vars[0].Name + " is not sparse")
	}
	width := first.Width
	height := first.Height

	acc := make(map[int64][]float32)
	order := make([]int64, 0)
	for _, v := range vars {
		s := v.Sparse
		if s == nil {
			return nil, cmn.NewErrContract("MergeSparse: " + v.Name + " is not sparse")
		}
		if s.Width != width {
			return nil, cmn.NewErrContract("MergeSparse: width mismatch for " + v.Name)
		}
		if s.Height > height {
			height = s.Height
		}
		for i, row := range s.Rows {
			dst, ok := acc[row]
			if !ok {
				dst = make([]float32, width)
				acc[row] = dst
				order = append(order, row)
			}
			src := s.Values[i]
			for j := 0; j < width; j++ {
				dst[j] += src[j]
			}
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	if mode == Average {
		n := float32(len(vars))
		for _, row := range order {
			dst := acc[row]
			for j := range dst {
				dst[j] /= n
			}
		}
	}

	out := &Sparse{Height: height, Width: width, Rows: order, Values: make([][]float32, len(order))}
	for i, row := range order {
		out.Values[i] = acc[row]
	}
	return &Variable{Name: vars[0].Name, Sparse: out}, nil
}
