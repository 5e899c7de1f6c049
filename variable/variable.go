// Package variable holds the data model of spec §3: the dense/sparse-row
// Variable shape, the named Scope that owns variable storage, and (in
// merge.go) the MergeOps reduction used by the send pipeline.
package variable

// DType is the element type of a dense tensor. The core only ever produces
// and merges float32 gradients/parameters; other element types are carried
// for completeness (e.g. STEP_COUNTER is Int64) but are not merge targets.
type DType int

const (
	Float32 DType = iota
	Int64
)

// Dense is a contiguous, row-major N-D tensor.
type Dense struct {
	Shape []int64
	DType DType
	Data  []float32 // valid when DType == Float32
	Int64 []int64   // valid when DType == Int64 (e.g. STEP_COUNTER)
}

func (d *Dense) numel() int64 {
	n := int64(1)
	for _, s := range d.Shape {
		n *= s
	}
	return n
}

func (d *Dense) sameShape(o *Dense) bool {
	if len(d.Shape) != len(o.Shape) {
		return false
	}
	for i := range d.Shape {
		if d.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep, independently-owned copy.
func (d *Dense) Clone() *Dense {
	c := &Dense{Shape: append([]int64(nil), d.Shape...), DType: d.DType}
	if d.Data != nil {
		c.Data = append([]float32(nil), d.Data...)
	}
	if d.Int64 != nil {
		c.Int64 = append([]int64(nil), d.Int64...)
	}
	return c
}

// Sparse is a sparse-row tensor: a list of row ids paired with dense rows
// of Width elements each, plus the declared Height of the full (unsliced)
// row space it is a subset of.
type Sparse struct {
	Height int64
	Width  int
	Rows   []int64
	Values [][]float32 // len(Values) == len(Rows), each len == Width
}

func (s *Sparse) Clone() *Sparse {
	c := &Sparse{Height: s.Height, Width: s.Width, Rows: append([]int64(nil), s.Rows...)}
	c.Values = make([][]float32, len(s.Values))
	for i, row := range s.Values {
		c.Values[i] = append([]float32(nil), row...)
	}
	return c
}

// RowOf returns the dense row for id, and whether it is present.
func (s *Sparse) RowOf(id int64) ([]float32, bool) {
	for i, r := range s.Rows {
		if r == id {
			return s.Values[i], true
		}
	}
	return nil, false
}

// Variable is a typed value with one of the two shapes of spec §3. Exactly
// one of Dense/Sparse is non-nil.
type Variable struct {
	Name   string
	Dense  *Dense
	Sparse *Sparse
}

func NewDense(name string, shape []int64, data []float32) *Variable {
	return &Variable{Name: name, Dense: &Dense{Shape: shape, DType: Float32, Data: data}}
}

func NewStepCounter(name string, n int64) *Variable {
	return &Variable{Name: name, Dense: &Dense{Shape: []int64{1}, DType: Int64, Int64: []int64{n}}}
}

func NewSparse(name string, height int64, width int, rows []int64, values [][]float32) *Variable {
	return &Variable{Name: name, Sparse: &Sparse{Height: height, Width: width, Rows: rows, Values: values}}
}

func (v *Variable) IsSparse() bool { return v.Sparse != nil }

func (v *Variable) Clone() *Variable {
	c := &Variable{Name: v.Name}
	if v.Dense != nil {
		c.Dense = v.Dense.Clone()
	}
	if v.Sparse != nil {
		c.Sparse = v.Sparse.Clone()
	}
	return c
}
