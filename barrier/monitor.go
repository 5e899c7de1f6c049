// Package barrier implements BarrierMonitor (spec §3, §4.I): the
// server-side gate that admits worker batches in send/recv phases for the
// Sync and HalfAsync disciplines, ported from
// paddle/fluid/operators/distributed/barrier_monitor.cc.
package barrier

import (
	"sync"
	"time"

	"github.com/paramfabric/communicator/cmn"
	"github.com/paramfabric/communicator/cmn/mono"
	"github.com/paramfabric/communicator/cmn/nlog"
)

type Kind int

const (
	Batch Kind = iota
	Fetch
)

type Phase int

const (
	SendPhase Phase = iota
	RecvPhase
)

func (p Phase) String() string {
	if p == RecvPhase {
		return "recv"
	}
	return "send"
}

// kMaxWaitMS is the time, in milliseconds of elapsed monotonic clock,
// Monitor allows a phase to fill before invalidating it (spec §4.I,
// scenario S6).
const kMaxWaitMS = 3000

// Monitor is the BarrierMonitor of spec §3/§4.I. Exactly one of
// sendQueue/recvQueue is being filled at any time; |queue[phase]| never
// exceeds workers (spec §8 invariant 8).
type Monitor struct {
	mu         sync.Mutex
	workerCond *sync.Cond
	serverCond *sync.Cond

	table int // barrier_table_id, a supplemented (SPEC_FULL §3) field

	phase     Phase
	sendQueue []int
	recvQueue []int
	workers   int
	valid     bool
	release   bool
	working   bool
	running   bool
}

func NewMonitor(workers, barrierTableID int) *Monitor {
	m := &Monitor{workers: workers, table: barrierTableID, running: true}
	m.workerCond = sync.NewCond(&m.mu)
	m.serverCond = sync.NewCond(&m.mu)
	return m
}

// Table returns the configured barrier_table_id (SPEC_FULL §3's
// BarrierWithTable supplement): the original source keys a distinct
// RPC-backed barrier by this id in addition to the in-process monitor.
func (m *Monitor) Table() int { return m.table }

func (m *Monitor) queueFor(kind Kind) *[]int {
	if kind == Batch {
		return &m.sendQueue
	}
	return &m.recvQueue
}

// IncreaseBarrier enqueues workerID onto the queue for kind and blocks
// until the monitor's goroutine swaps or invalidates the phase, returning
// valid exactly once per invocation (spec §8 invariant 8).
func (m *Monitor) IncreaseBarrier(workerID int, kind Kind) (bool, error) {
	m.mu.Lock()
	if kind != Batch && kind != Fetch {
		m.mu.Unlock()
		return false, cmn.NewErrContract("barrier: unknown kind")
	}
	m.working = true
	m.release = false
	q := m.queueFor(kind)
	*q = append(*q, workerID)
	for !m.release {
		m.workerCond.Wait()
	}
	valid := m.valid
	m.mu.Unlock()
	return valid, nil
}

// Run is the Monitor goroutine of spec §4.I. It blocks in an idle sleep
// loop until the first IncreaseBarrier call, then repeatedly waits for a
// phase to fill (polling every 1ms, up to kMaxWaitMS) or times it out.
func (m *Monitor) Run() {
	for {
		m.mu.Lock()
		working := m.working
		running := m.running
		m.mu.Unlock()
		if running && !working {
			time.Sleep(1200 * time.Millisecond)
			continue
		}
		break
	}

	for {
		m.mu.Lock()
		running := m.running
		m.mu.Unlock()
		if !running {
			return
		}

		deadline := time.Duration(kMaxWaitMS) * time.Millisecond
		start := mono.NanoTime()
		filled := false
		for mono.Since(start) < deadline {
			if m.isReady() {
				m.swap()
				filled = true
				break
			}
			time.Sleep(time.Millisecond)
		}
		if !filled {
			m.invalidate()
		}
	}
}

func (m *Monitor) isReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == SendPhase {
		return len(m.sendQueue) == m.workers
	}
	return len(m.recvQueue) == m.workers
}

// swap flips the phase, clears the queue that just drained, and releases
// every blocked worker with valid=true.
func (m *Monitor) swap() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.serverCond.Broadcast() // ServerWeakup: signal completion of this phase

	m.valid = true
	m.release = true
	if m.phase == SendPhase {
		m.phase = RecvPhase
		m.sendQueue = m.sendQueue[:0]
	} else {
		m.phase = SendPhase
		m.recvQueue = m.recvQueue[:0]
	}
	nlog.Infof("barrier: phase swapped to %s", m.phase)
	m.workerCond.Broadcast()
}

// invalidate is Invalid() of the source: a phase failed to fill within
// kMaxWaitMS, so every waiter is released with valid=false (spec §7
// BarrierTimeout, scenario S6).
func (m *Monitor) invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valid = false
	m.release = true
	m.sendQueue = m.sendQueue[:0]
	m.recvQueue = m.recvQueue[:0]
	m.workerCond.Broadcast()
}

// DecreaseWorker lowers the expected-workers count W, used when a worker
// announces it is leaving the round.
func (m *Monitor) DecreaseWorker() {
	m.mu.Lock()
	if m.workers > 0 {
		m.workers--
	}
	m.mu.Unlock()
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

// Phase reports the current phase, for diagnostics and tests.
func (m *Monitor) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// QueueLen reports the current length of the queue for kind; used by
// tests asserting spec §8 invariant 8 (|send_queue| <= W).
func (m *Monitor) QueueLen(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(*m.queueFor(kind))
}
