// Package cos ("common os"/shared) holds small helpers with no good home
// elsewhere, the way the cluster code this module grew out of keeps a
// grab-bag cmn/cos package for string/hash/time utilities.
package cos

import "github.com/OneOfOne/xxhash"

// StringHash gives a stable, fast hash for sharding decisions that need a
// string key (endpoint names, table names) rather than a numeric row id.
func StringHash(s string) uint64 {
	return xxhash.ChecksumString64(s)
}

// Modulo-sharding is used directly (row % shards) per spec §4.D/§4.H; this
// helper only exists for the string-keyed cases (table/shard names).
func ShardOfKey(s string, nshards int) int {
	if nshards <= 0 {
		return 0
	}
	return int(StringHash(s) % uint64(nshards))
}
