// Package commctx holds VariableContext (called CommContext in the source
// this module is ported from), the immutable per-variable routing
// descriptor of spec §3/§4.D.
package commctx

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paramfabric/communicator/cmn/debug"
	"github.com/paramfabric/communicator/variable"
)

type HandlerKind int

const (
	HandlerSend HandlerKind = iota
	HandlerGet
)

func (h HandlerKind) String() string {
	if h == HandlerGet {
		return "get"
	}
	return "send"
}

// VariableContext is the immutable per-variable descriptor of spec §4.D:
// name, the ordered shards it is split across, their endpoints, the
// row-offset ("height section") each shard owns, the pre-split origin
// names, the trainer this context belongs to, and how it merges/routes.
type VariableContext struct {
	Name           string
	ShardNames     []string
	Endpoints      []string
	HeightSections []int64 // absolute row boundary per shard, or nil => even mod-sharding
	OriginNames    []string
	TrainerID      int
	MergeMode      variable.MergeMode
	Handler        HandlerKind
}

// Equal is value equality, used by tests (spec §4.D: "Equality-by-value
// for tests").
func (c VariableContext) Equal(o VariableContext) bool {
	if c.Name != o.Name || c.TrainerID != o.TrainerID || c.MergeMode != o.MergeMode || c.Handler != o.Handler {
		return false
	}
	return strings.Join(c.ShardNames, ",") == strings.Join(o.ShardNames, ",") &&
		strings.Join(c.Endpoints, ",") == strings.Join(o.Endpoints, ",") &&
		strings.Join(c.OriginNames, ",") == strings.Join(o.OriginNames, ",") &&
		int64SliceEqual(c.HeightSections, o.HeightSections)
}

func int64SliceEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ShardOf returns the shard index owning rowID: a modulo of the shard
// count when no height sections were configured, otherwise a binary
// search over the absolute section boundaries (spec §4.D).
func (c *VariableContext) ShardOf(rowID int64) int {
	n := len(c.ShardNames)
	if n == 0 {
		return 0
	}
	if len(c.HeightSections) == 0 {
		mod := rowID % int64(n)
		if mod < 0 {
			mod += int64(n)
		}
		shard := int(mod)
		debug.Assert(shard >= 0 && shard < n, "commctx: modulo shard out of range", shard, n)
		return shard
	}
	// HeightSections[i] is the absolute row count owned by shard 0..i
	// cumulatively, so the shard is the first boundary exceeding rowID.
	idx := sort.Search(len(c.HeightSections), func(i int) bool {
		return c.HeightSections[i] > rowID
	})
	if idx >= n {
		idx = n - 1
	}
	debug.Assert(idx >= 0 && idx < n, "commctx: height-section shard out of range", idx, n)
	return idx
}

func (c *VariableContext) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s trainer=%d merge=%v handler=%s\n", c.Name, c.TrainerID, c.MergeMode, c.Handler)
	for i, shard := range c.ShardNames {
		fmt.Fprintf(&b, "  shard %s ep=%s", shard, c.Endpoints[i])
		if i < len(c.HeightSections) {
			fmt.Fprintf(&b, " section=%d", c.HeightSections[i])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
