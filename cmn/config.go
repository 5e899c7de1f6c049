package cmn

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"
)

// Config is the typed materialization of the string->string map of spec §6.
// It is parsed once at construction (cmn.NewConfig); GCO, the global
// config owner, mirrors the cluster code's `cmn.GCO.Get()` convention for
// callers that Put a Config there. Nothing in this module calls GCO.Put;
// the parsed Config is passed explicitly (e.g. communicator.Params).
type Config struct {
	Raw map[string]string

	// communicator_*
	MinSendGradNumBeforeRecv int
	ThreadPoolSize           int
	MaxMergeVarNum           int
	SendWaitTimes            int
	SendQueueSize            int
	NeedGlobalStep           bool

	// topology
	BarrierTableID int
	TrainerID      int
	Trainers       int

	// pserver
	PserverEndpoints        []string
	PserverTimeoutMS        time.Duration
	PserverIntervalMS       time.Duration
	PserverSparseTableShard int

	SparseAttrs []SparseAttr

	Verbose int
}

// SparseAttr is one `name:rows,width:init_spec` triple of the `sparse_attrs`
// config key, used by GEO's InitSparse to register sparse embedding tables.
type SparseAttr struct {
	Name     string
	Rows     int64
	Width    int
	InitSpec string
}

func must(m map[string]string, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == "" {
		return "", NewErrConfig(key, "missing required key")
	}
	return v, nil
}

func mustInt(m map[string]string, key string) (int, error) {
	s, err := must(m, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, NewErrConfig(key, "not an integer: "+s)
	}
	return n, nil
}

func optInt(m map[string]string, key string, dflt int) int {
	s, ok := m[key]
	if !ok || s == "" {
		return dflt
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return dflt
	}
	return n
}

func optBool(m map[string]string, key string, dflt bool) bool {
	s, ok := m[key]
	if !ok || s == "" {
		return dflt
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return dflt
	}
	return b
}

// NewConfig parses the raw string map into a Config, raising ConfigError
// (fatal, per spec §7) for any missing/unparsable required key. Which keys
// are required depends on the mode: Sync needs pserver_endpoints, GEO needs
// sparse_attrs + pserver_sparse_table_shard_num when any table is sparse.
// NewConfig validates only the keys common to every mode; mode-specific
// validation happens in communicator.Build.
func NewConfig(raw map[string]string) (*Config, error) {
	c := &Config{Raw: raw}

	threadPool, err := mustInt(raw, "communicator_thread_pool_size")
	if err != nil {
		return nil, err
	}
	c.ThreadPoolSize = threadPool

	maxMerge, err := mustInt(raw, "communicator_max_merge_var_num")
	if err != nil {
		return nil, err
	}
	c.MaxMergeVarNum = maxMerge

	sendQueueSize, err := mustInt(raw, "communicator_send_queue_size")
	if err != nil {
		return nil, err
	}
	c.SendQueueSize = sendQueueSize

	c.MinSendGradNumBeforeRecv = optInt(raw, "communicator_min_send_grad_num_before_recv", maxMerge)
	c.SendWaitTimes = optInt(raw, "communicator_send_wait_times", 5)
	c.NeedGlobalStep = optBool(raw, "need_global_step", false)

	c.BarrierTableID = optInt(raw, "barrier_table_id", -1)
	trainerID, err := mustInt(raw, "trainer_id")
	if err != nil {
		return nil, err
	}
	c.TrainerID = trainerID
	trainers, err := mustInt(raw, "trainers")
	if err != nil {
		return nil, err
	}
	c.Trainers = trainers

	if eps, ok := raw["pserver_endpoints"]; ok && eps != "" {
		c.PserverEndpoints = strings.Split(eps, ",")
	}
	c.PserverTimeoutMS = time.Duration(optInt(raw, "pserver_timeout_ms", 600000)) * time.Millisecond
	c.PserverIntervalMS = time.Duration(optInt(raw, "pserver_interval_ms", 1000)) * time.Millisecond
	c.PserverSparseTableShard = optInt(raw, "pserver_sparse_table_shard_num", 1)

	if attrs, ok := raw["sparse_attrs"]; ok && attrs != "" {
		parsed, err := parseSparseAttrs(attrs)
		if err != nil {
			return nil, err
		}
		c.SparseAttrs = parsed
	}

	return c, nil
}

func parseSparseAttrs(s string) ([]SparseAttr, error) {
	var out []SparseAttr
	for _, triple := range strings.Split(s, "#") {
		if triple == "" {
			continue
		}
		// name:rows,width:init_spec
		parts := strings.SplitN(triple, ":", 3)
		if len(parts) != 3 {
			return nil, NewErrConfig("sparse_attrs", "malformed triple: "+triple)
		}
		dims := strings.SplitN(parts[1], ",", 2)
		if len(dims) != 2 {
			return nil, NewErrConfig("sparse_attrs", "malformed dims: "+parts[1])
		}
		rows, err := strconv.ParseInt(dims[0], 10, 64)
		if err != nil {
			return nil, NewErrConfig("sparse_attrs", "bad rows: "+dims[0])
		}
		width, err := strconv.Atoi(dims[1])
		if err != nil {
			return nil, NewErrConfig("sparse_attrs", "bad width: "+dims[1])
		}
		out = append(out, SparseAttr{Name: parts[0], Rows: rows, Width: width, InitSpec: parts[2]})
	}
	return out, nil
}

// FastV mirrors the cluster code's config.FastV(level, module) verbosity
// gate: it reports whether Verbose is at least level. No logging call site
// in this module consults it.
func (c *Config) FastV(level int, _ string) bool { return c.Verbose >= level }

// configOwner is the process-wide holder of the active Config, the same
// shape as the cluster code's GCO (global config owner): one atomic
// pointer, swapped wholesale rather than mutated in place.
type configOwner struct{ ptr unsafe.Pointer }

var GCO configOwner

func (o *configOwner) Put(c *Config) { atomic.StorePointer(&o.ptr, unsafe.Pointer(c)) }

func (o *configOwner) Get() *Config {
	p := atomic.LoadPointer(&o.ptr)
	if p == nil {
		return &Config{}
	}
	return (*Config)(p)
}
