package commctx_test

import (
	"testing"

	"github.com/paramfabric/communicator/commctx"
)

func TestShardOfModuloWhenNoHeightSections(t *testing.T) {
	c := &commctx.VariableContext{ShardNames: []string{"s0", "s1", "s2"}}
	cases := map[int64]int{0: 0, 1: 1, 2: 2, 3: 0, 4: 1, 7: 1}
	for row, want := range cases {
		if got := c.ShardOf(row); got != want {
			t.Errorf("ShardOf(%d) = %d, want %d", row, got, want)
		}
	}
}

func TestShardOfNegativeRowWrapsPositive(t *testing.T) {
	c := &commctx.VariableContext{ShardNames: []string{"s0", "s1", "s2"}}
	if got := c.ShardOf(-1); got != 2 {
		t.Errorf("ShardOf(-1) = %d, want 2", got)
	}
}

func TestShardOfHeightSectionsBinarySearch(t *testing.T) {
	// shard 0 owns rows [0,100), shard 1 owns [100,250), shard 2 owns [250,300)
	c := &commctx.VariableContext{
		ShardNames:     []string{"s0", "s1", "s2"},
		HeightSections: []int64{100, 250, 300},
	}
	cases := map[int64]int{0: 0, 99: 0, 100: 1, 249: 1, 250: 2, 299: 2}
	for row, want := range cases {
		if got := c.ShardOf(row); got != want {
			t.Errorf("ShardOf(%d) = %d, want %d", row, got, want)
		}
	}
}

func TestShardOfNoShardsReturnsZero(t *testing.T) {
	c := &commctx.VariableContext{}
	if got := c.ShardOf(42); got != 0 {
		t.Errorf("ShardOf with no shards = %d, want 0", got)
	}
}

func TestEqualComparesAllFields(t *testing.T) {
	base := commctx.VariableContext{
		Name: "w", ShardNames: []string{"a", "b"}, Endpoints: []string{"h1", "h2"},
		TrainerID: 1, MergeMode: 0,
	}
	same := base
	same.ShardNames = []string{"a", "b"}
	if !base.Equal(same) {
		t.Error("expected equal contexts to compare Equal")
	}

	diff := base
	diff.Endpoints = []string{"h1", "h3"}
	if base.Equal(diff) {
		t.Error("expected differing Endpoints to compare not-Equal")
	}
}
