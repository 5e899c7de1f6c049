// Package kv implements LargeScaleKV / ValueBlock (spec §3, §4.B): the
// sparse key -> multi-vector store with per-key bookkeeping and an
// admission policy, ported from paddle/fluid/distributed/table/depends/
// large_scale_kv.h's ValueBlock/VALUE pair.
package kv

import (
	"fmt"
	"sync"

	"github.com/paramfabric/communicator/cmn"
	"github.com/paramfabric/communicator/cmn/debug"
)

// Slot is one named, fixed-width vector kept per key (e.g. "Param",
// "Moment1", "Moment2"), with the initializer used to seed fresh entries.
type Slot struct {
	Name  string
	Width int
	Init  Initializer
}

// Entry is one key's bookkeeping plus its parallel list of named vectors
// (spec §3). The vectors are stored in schema order; Values is addressed
// by slot index, not by name, so concurrent Get/Set never race on a map.
type Entry struct {
	Count             int
	UnseenDays        int
	SeenAfterLastSave bool
	IsAdmitted        bool
	Values            [][]float32 // len == len(schema), Values[i] has len schema[i].Width
}

func (e *Entry) String() string {
	return fmt.Sprintf("count=%d unseen_days=%d admitted=%v", e.Count, e.UnseenDays, e.IsAdmitted)
}

// ValueBlock is the sparse key->Entry store of spec §4.B. Lookups take a
// shared read-lock; Init/Set/Update take the exclusive lock — concurrent
// Get/Update is safe because counts are monotonic and admission is sticky,
// but Get never returns a pointer into live storage (Design Notes §9:
// "copy-out semantics for reads").
type ValueBlock struct {
	mu        sync.RWMutex
	entries   map[uint64]*Entry
	schema    []Slot
	slotIndex map[string]int
	admission AdmissionPolicy
}

func NewValueBlock(schema []Slot, admission AdmissionPolicy) *ValueBlock {
	idx := make(map[string]int, len(schema))
	for i, s := range schema {
		idx[s.Name] = i
	}
	if admission == nil {
		admission = noneAdmission{}
	}
	return &ValueBlock{
		entries:   make(map[uint64]*Entry),
		schema:    schema,
		slotIndex: idx,
		admission: admission,
	}
}

func (b *ValueBlock) newEntry(count int) *Entry {
	e := &Entry{Count: count, UnseenDays: 0, SeenAfterLastSave: true}
	e.Values = make([][]float32, len(b.schema))
	for i, s := range b.schema {
		e.Values[i] = s.Init.Sample(s.Width)
		debug.Assert(len(e.Values[i]) == s.Width, "kv: initializer sampled wrong width for slot", s.Name)
	}
	if _, ok := b.admission.(noneAdmission); ok {
		e.IsAdmitted = true
	} else {
		e.IsAdmitted = b.admission.Admit(count)
	}
	return e
}

// Init creates Entry(count=1) for every key in keys not already present;
// AlreadyExists (a ContractViolation, spec §7) for any key that is.
func (b *ValueBlock) Init(keys []uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		if _, ok := b.entries[k]; ok {
			return cmn.NewErrContract(fmt.Sprintf("kv: key %d already exists", k))
		}
	}
	for _, k := range keys {
		b.entries[k] = b.newEntry(1)
	}
	return nil
}

// InitFromInitializer implements spec §4.B: if key is present and
// admission is enabled, it reconsults admission via Update; otherwise it
// behaves like Init([key]), so a present key under the none policy fails
// with AlreadyExists.
func (b *ValueBlock) InitFromInitializer(key uint64) error {
	b.mu.Lock()
	_, present := b.entries[key]
	_, hasEntry := b.admission.(noneAdmission)
	b.mu.Unlock()

	if present && !hasEntry {
		return b.Update(key)
	}
	return b.Init([]uint64{key})
}

// Get looks up every key and returns, per key, a copy of the requested
// slot vectors in slotNames order. Fails with NotInitialized on any
// missing key (spec §7's "NotFound" maps onto NotInitialized here, since
// both describe an expected-present lookup that came back absent).
func (b *ValueBlock) Get(keys []uint64, slotNames []string) ([][][]float32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idxs := make([]int, len(slotNames))
	for i, name := range slotNames {
		idx, ok := b.slotIndex[name]
		if !ok {
			return nil, cmn.NewErrContract("kv: unknown slot " + name)
		}
		idxs[i] = idx
	}

	out := make([][][]float32, len(keys))
	for ki, k := range keys {
		e, ok := b.entries[k]
		if !ok {
			return nil, cmn.NewErrNotInitialized(fmt.Sprintf("kv: key %d", k))
		}
		row := make([][]float32, len(idxs))
		for si, idx := range idxs {
			row[si] = append([]float32(nil), e.Values[idx]...)
		}
		out[ki] = row
	}
	return out, nil
}

// Set overwrites the named slots of key with values.
func (b *ValueBlock) Set(key uint64, slotNames []string, values [][]float32) error {
	if len(slotNames) != len(values) {
		return cmn.NewErrContract("kv: Set slotNames/values length mismatch")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return cmn.NewErrNotInitialized(fmt.Sprintf("kv: key %d", key))
	}
	for i, name := range slotNames {
		idx, ok := b.slotIndex[name]
		if !ok {
			return cmn.NewErrContract("kv: unknown slot " + name)
		}
		dst := make([]float32, len(values[i]))
		copy(dst, values[i])
		e.Values[idx] = dst
	}
	return nil
}

// Update resets unseen_days, increments count, and — if the key is not
// yet admitted — reconsults the admission predicate. Admission is sticky:
// once true, it is never reset to false (spec §8 invariant 6).
func (b *ValueBlock) Update(key uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return cmn.NewErrNotInitialized(fmt.Sprintf("kv: key %d", key))
	}
	wasAdmitted := e.IsAdmitted
	e.UnseenDays = 0
	e.Count++
	if !e.IsAdmitted {
		e.IsAdmitted = b.admission.Admit(e.Count)
	}
	debug.Assert(!wasAdmitted || e.IsAdmitted, "kv: admission must be sticky, key", key)
	return nil
}

// SetAdmitted forces key's admission flag directly, for callers (e.g. a
// checkpoint restore) that must reapply a previously decided admission
// rather than let Init/Update recompute it from a fresh count. Admission
// is still sticky going forward: this can flip false->true but a later
// Update will never un-admit it.
func (b *ValueBlock) SetAdmitted(key uint64, admitted bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return cmn.NewErrNotInitialized(fmt.Sprintf("kv: key %d", key))
	}
	e.IsAdmitted = admitted
	return nil
}

// GetEntry reports a key's admission flag.
func (b *ValueBlock) GetEntry(key uint64) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[key]
	if !ok {
		return false, cmn.NewErrNotInitialized(fmt.Sprintf("kv: key %d", key))
	}
	return e.IsAdmitted, nil
}

// Has reports key presence without allocating an error.
func (b *ValueBlock) Has(key uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[key]
	return ok
}

func (b *ValueBlock) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Keys returns every present key, in no particular order, for callers that
// need to enumerate the block wholesale (e.g. a periodic checkpoint).
func (b *ValueBlock) Keys() []uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]uint64, 0, len(b.entries))
	for k := range b.entries {
		out = append(out, k)
	}
	return out
}

// SlotWidth returns the configured width of the named slot, or 0 if the
// slot does not exist.
func (b *ValueBlock) SlotWidth(name string) int {
	idx, ok := b.slotIndex[name]
	if !ok {
		return 0
	}
	return b.schema[idx].Width
}
