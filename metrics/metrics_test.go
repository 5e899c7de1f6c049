package metrics_test

import (
	"testing"

	"github.com/paramfabric/communicator/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveBatchIncrementsIterations(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := metrics.New(reg, "t0")

	s.ObserveBatch(3)
	s.ObserveBatch(5)

	var m dto.Metric
	if err := s.Iterations.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("expected 2 iterations, got %v", got)
	}
}

func TestRecordRPCErrorByOp(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := metrics.New(reg, "t0")

	s.RecordRPCError("AsyncSend")
	s.RecordRPCError("AsyncSend")
	s.RecordRPCError("ParameterRecv")

	var m dto.Metric
	if err := s.RPCErrors.WithLabelValues("AsyncSend").Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("expected 2 AsyncSend errors, got %v", got)
	}
}

func TestNilSetIsNoop(t *testing.T) {
	var s *metrics.Set
	s.ObserveBatch(1)
	s.RecordRPCError("x")
	s.SetQueueDepth("w", 4)
}
