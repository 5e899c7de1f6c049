// Command trainerd is a daemon wiring example for one trainer process: it
// loads communicator_* config from flags, builds the routing contexts for
// a handful of dense and sparse variables, starts a Core in the
// configured discipline, periodically checkpoints GEO's sparse shadow
// table, and exposes Prometheus metrics over fasthttp.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/paramfabric/communicator/checkpoint"
	"github.com/paramfabric/communicator/cmn"
	"github.com/paramfabric/communicator/cmn/cos"
	"github.com/paramfabric/communicator/cmn/nlog"
	"github.com/paramfabric/communicator/commctx"
	"github.com/paramfabric/communicator/communicator"
	"github.com/paramfabric/communicator/geo"
	"github.com/paramfabric/communicator/kv"
	"github.com/paramfabric/communicator/metrics"
	"github.com/paramfabric/communicator/rpc"
	"github.com/paramfabric/communicator/variable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

func main() {
	mode := flag.String("mode", "async", "communicator discipline: async|half_async|sync|geo")
	metricsAddr := flag.String("metrics-addr", ":9091", "address to serve /metrics on")
	checkpointPath := flag.String("checkpoint", "", "buntdb file for GEO sparse checkpoints; empty disables")
	variables := flag.String("variables", "w", "comma-separated dense variable names to route")
	endpoints := flag.String("pserver-endpoints", "", "comma-separated pserver host:port list")
	configFile := flag.String("config-file", "", "optional JSON object of communicator_* raw config keys, overlaid onto the flag defaults")
	verbose := flag.Int("v", 0, "verbosity")
	flag.Parse()

	nlog.SetLevel(*verbose)

	raw := map[string]string{
		"communicator_thread_pool_size":  "4",
		"communicator_max_merge_var_num": "1",
		"communicator_send_queue_size":   "64",
		"trainer_id":                     "0",
		"trainers":                       "1",
		"pserver_endpoints":              *endpoints,
	}
	if *configFile != "" {
		if err := loadConfigFile(*configFile, raw); err != nil {
			nlog.Fatalln("config-file:", err)
		}
	}
	cfg, err := cmn.NewConfig(raw)
	if err != nil {
		nlog.Fatalln("config:", err)
	}

	client := rpc.NewFasthttpClient()
	reg := prometheus.NewRegistry()
	mset := metrics.New(reg, strconv.Itoa(cfg.TrainerID))

	sendScope := variable.NewScope("send")
	recvScope := variable.NewScope("recv")

	eps := cfg.PserverEndpoints
	if len(eps) == 0 {
		eps = []string{"127.0.0.1:8080"}
	}
	ctxs := map[string]*commctx.VariableContext{}
	for _, name := range strings.Split(*variables, ",") {
		if name == "" {
			continue
		}
		// Each dense variable pins to one pserver endpoint, chosen by
		// hashing its name rather than always landing on eps[0] — so a
		// multi-pserver deployment actually spreads its variables out.
		ep := eps[cos.ShardOfKey(name, len(eps))]
		ctxs[name] = &commctx.VariableContext{
			Name:       name,
			ShardNames: []string{name},
			Endpoints:  []string{ep},
			MergeMode:  variable.Add,
		}
	}
	stepCtx := &commctx.VariableContext{Name: rpc.StepCounter, ShardNames: []string{rpc.StepCounter}, Endpoints: []string{eps[0]}}
	ctxs[rpc.StepCounter] = stepCtx

	params := communicator.Params{
		Mode: modeOf(*mode), Config: cfg, Client: client,
		Ctxs: ctxs, StepCtx: stepCtx,
		SendScope: sendScope, RecvScope: recvScope,
		Metrics: mset,
	}
	if params.Mode == communicator.Geo {
		params.GeoVars, params.GeoDeltaScope, params.GeoOldScope, params.GeoPserverScope = buildGeoVars(cfg, recvScope)
	}

	core, err := communicator.Build(params)
	if err != nil {
		nlog.Fatalln("build:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	core.Start(ctx)

	var store *checkpoint.Store
	if *checkpointPath != "" {
		store, err = checkpoint.Open(*checkpointPath)
		if err != nil {
			nlog.Fatalln("checkpoint:", err)
		}
		defer store.Close()
		go runCheckpointLoop(ctx, store, params.GeoVars)
	}

	go serveMetrics(*metricsAddr, reg)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	nlog.Infoln("trainerd: shutting down")
	cancel()
	core.Stop()
}

// loadConfigFile reads a JSON object of string->string overrides into
// raw, the way aistore's own config loader decodes its on-disk config
// with jsoniter rather than encoding/json (config files are read once at
// startup, but every other daemon in the cluster code uses jsoniter for
// its drop-in speed and identical API, so this keeps the same convention).
func loadConfigFile(path string, raw map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	overrides := map[string]string{}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &overrides); err != nil {
		return err
	}
	for k, v := range overrides {
		raw[k] = v
	}
	return nil
}

func modeOf(s string) communicator.Mode {
	switch s {
	case "half_async":
		return communicator.HalfAsync
	case "sync":
		return communicator.Sync
	case "geo":
		return communicator.Geo
	default:
		return communicator.Async
	}
}

// buildGeoVars wires cfg.SparseAttrs into geo.VarSpec entries backed by a
// fresh ValueBlock per table, plus the scopes RunRound needs.
func buildGeoVars(cfg *cmn.Config, recvScope *variable.Scope) (map[string]*geo.VarSpec, *variable.Scope, *variable.Scope, *variable.Scope) {
	vars := make(map[string]*geo.VarSpec, len(cfg.SparseAttrs))
	for _, attr := range cfg.SparseAttrs {
		schema := []kv.Slot{{Name: "Param", Width: attr.Width, Init: kv.ConstantInitializer{Value: 0}}}
		vars[attr.Name] = &geo.VarSpec{
			Ctx:    &commctx.VariableContext{Name: attr.Name, ShardNames: []string{attr.Name}, Endpoints: cfg.PserverEndpoints},
			Sparse: true,
			Shadow: kv.NewValueBlock(schema, nil),
		}
	}
	return vars, variable.NewScope("delta"), variable.NewScope("old"), variable.NewScope("pserver")
}

// runCheckpointLoop snapshots every GEO sparse table's shadow every
// interval, until ctx is cancelled.
func runCheckpointLoop(ctx context.Context, store *checkpoint.Store, vars map[string]*geo.VarSpec) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, spec := range vars {
				if spec.Shadow == nil {
					continue
				}
				if err := store.Snapshot(name, spec.Shadow.Keys(), spec.Shadow, "Param"); err != nil {
					nlog.Errorf("trainerd: checkpoint %s: %v", name, err)
				}
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	fastHandler := fasthttpadaptor.NewFastHTTPHandler(handler)
	nlog.Infof("trainerd: serving metrics on %s", addr)
	if err := fasthttp.ListenAndServe(addr, fastHandler); err != nil {
		nlog.Errorf("trainerd: metrics server: %v", err)
	}
}
