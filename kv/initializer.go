package kv

import "math/rand"

// Initializer produces the initial values for one slot of a freshly
// inserted Entry (spec §3: "initial values come from a per-slot
// initializer (constant | uniform | normal | fill)").
type Initializer interface {
	Sample(width int) []float32
}

type ConstantInitializer struct{ Value float32 }

func (c ConstantInitializer) Sample(width int) []float32 {
	v := make([]float32, width)
	for i := range v {
		v[i] = c.Value
	}
	return v
}

type UniformInitializer struct{ Min, Max float32 }

func (u UniformInitializer) Sample(width int) []float32 {
	v := make([]float32, width)
	span := u.Max - u.Min
	for i := range v {
		v[i] = u.Min + rand.Float32()*span
	}
	return v
}

type NormalInitializer struct{ Mean, Std float32 }

func (n NormalInitializer) Sample(width int) []float32 {
	v := make([]float32, width)
	for i := range v {
		v[i] = n.Mean + float32(rand.NormFloat64())*n.Std
	}
	return v
}

// FillInitializer returns a fixed, caller-supplied vector (truncated or
// zero-padded to width), used for e.g. restoring a checkpointed value.
type FillInitializer struct{ Values []float32 }

func (f FillInitializer) Sample(width int) []float32 {
	v := make([]float32, width)
	copy(v, f.Values)
	return v
}
