// Package checkpoint implements the external persisted-state handler spec
// §6 delegates to: ValueBlock is in-memory only, so periodic snapshotting
// to disk is this package's job, backed by an embedded buntdb database the
// way the teacher's `tidwall/buntdb` dependency is used for a small,
// embedded, crash-safe key-value store.
package checkpoint

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paramfabric/communicator/cmn/nlog"
	"github.com/paramfabric/communicator/kv"
	"github.com/tidwall/buntdb"
)

// Store snapshots one or more named ValueBlocks into a buntdb file,
// keeping only one slot's values per key (the caller names it, e.g.
// Param) plus the key's admission flag; count and unseen_days are not
// persisted.
type Store struct {
	db   *buntdb.DB
	path string
}

func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Snapshot writes each key of keys that is present in block under table
// into the database, replacing any prior snapshot for that table (the block is
// received by reference, per spec §6's "delegates to an external handler
// that receives the block by reference").
func (s *Store) Snapshot(table string, keys []uint64, block *kv.ValueBlock, slot string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		prefix := table + ":"
		if err := deletePrefix(tx, prefix); err != nil {
			return err
		}
		for _, key := range keys {
			values, err := block.Get([]uint64{key}, []string{slot})
			if err != nil {
				continue // key vanished between listing and snapshot; skip it
			}
			admitted, err := block.GetEntry(key)
			if err != nil {
				continue
			}
			if _, _, err := tx.Set(dataKey(prefix, key), encodeRow(values[0][0], admitted), nil); err != nil {
				return err
			}
		}
		nlog.Infof("checkpoint: snapshotted %d keys for table %s into %s", len(keys), table, s.path)
		return nil
	})
}

// Restore reads back a prior Snapshot's rows into a freshly constructed
// ValueBlock via Init + Set, so a trainer can resume without re-pulling
// the whole table from the server.
func (s *Store) Restore(table string, block *kv.ValueBlock, slot string) error {
	prefix := table + ":"
	var keys []uint64
	rows := make(map[uint64][]float32)
	admitted := make(map[uint64]bool)

	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefix+"*", func(k, v string) bool {
			key, ok := parseDataKey(prefix, k)
			if !ok {
				return true
			}
			row, admit := decodeRow(v)
			keys = append(keys, key)
			rows[key] = row
			admitted[key] = admit
			return true
		})
	})
	if err != nil {
		return fmt.Errorf("checkpoint: restore %s: %w", table, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := block.Init(keys); err != nil {
		return err
	}
	for _, key := range keys {
		if err := block.Set(key, []string{slot}, [][]float32{rows[key]}); err != nil {
			return err
		}
		if err := block.SetAdmitted(key, admitted[key]); err != nil {
			return err
		}
	}
	nlog.Infof("checkpoint: restored %d keys for table %s from %s", len(keys), table, s.path)
	return nil
}

func deletePrefix(tx *buntdb.Tx, prefix string) error {
	var toDelete []string
	if err := tx.AscendKeys(prefix+"*", func(k, _ string) bool {
		toDelete = append(toDelete, k)
		return true
	}); err != nil {
		return err
	}
	for _, k := range toDelete {
		if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
			return err
		}
	}
	return nil
}

func dataKey(prefix string, key uint64) string {
	return prefix + strconv.FormatUint(key, 10)
}

func parseDataKey(prefix, k string) (uint64, bool) {
	s := strings.TrimPrefix(k, prefix)
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// encodeRow packs a float32 slice as a comma-separated string of their
// bit patterns — simple and diffable in the embedded store, matching
// buntdb's string-valued key space.
func encodeRow(row []float32, admitted bool) string {
	parts := make([]string, 0, len(row))
	for _, f := range row {
		parts = append(parts, strconv.FormatUint(uint64(math.Float32bits(f)), 16))
	}
	flag := "0"
	if admitted {
		flag = "1"
	}
	return flag + ":" + strings.Join(parts, ",")
}

func decodeRow(v string) ([]float32, bool) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return nil, false
	}
	admitted := parts[0] == "1"
	if parts[1] == "" {
		return nil, admitted
	}
	fields := strings.Split(parts[1], ",")
	out := make([]float32, len(fields))
	for i, f := range fields {
		bits, err := strconv.ParseUint(f, 16, 32)
		if err != nil {
			continue
		}
		out[i] = math.Float32frombits(uint32(bits))
	}
	return out, admitted
}
