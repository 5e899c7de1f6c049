package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/paramfabric/communicator/commctx"
	"github.com/paramfabric/communicator/variable"
)

// MockClient is an in-memory fake used by the rest of the module's test
// suites: it never leaves the process, resolving every future
// synchronously to StatusOK (or a stub-configured status), records
// AsyncSend/ParameterSend/AsyncSendVar payloads in a captured Inbox so
// tests can assert what got sent without standing up a server, and serves
// ParameterRecv/AsyncGetVar from values seeded with SeedRecv.
type MockClient struct {
	mu        sync.Mutex
	Inbox     map[string]*variable.Variable // keyed by variable name ("endpoint/name" for AsyncSendVar), last value sent
	FailNext  map[string]Status             // op -> status to return once, then clear
	recvValue map[string]*variable.Variable // what ParameterRecv/AsyncGetVar hands back
	Barriers  []string                      // ordered log of barrier RPC calls
}

func NewMockClient() *MockClient {
	return &MockClient{
		Inbox:     make(map[string]*variable.Variable),
		FailNext:  make(map[string]Status),
		recvValue: make(map[string]*variable.Variable),
	}
}

// SeedRecv configures what ParameterRecv/AsyncGetVar for name will deliver.
func (m *MockClient) SeedRecv(name string, v *variable.Variable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recvValue[name] = v
}

// Sent returns the last value AsyncSend/ParameterSend/AsyncSendVar
// recorded under key (variable name, or "endpoint/name" for AsyncSendVar),
// safe for concurrent use against a running communicator.
func (m *MockClient) Sent(key string) (*variable.Variable, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Inbox[key]
	return v, ok
}

// SentCount reports how many distinct keys have been recorded in Inbox.
func (m *MockClient) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Inbox)
}

func (m *MockClient) immediate(st Status, err error) Future {
	f := newChanFuture()
	f.resolve(st, err)
	return f
}

func (m *MockClient) takeFailure(op string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.FailNext[op]; ok {
		delete(m.FailNext, op)
		return st
	}
	return StatusOK
}

func (m *MockClient) AsyncSend(_ context.Context, vctx *commctx.VariableContext, scope *variable.Scope, _ time.Duration) Future {
	v, err := scope.Get(vctx.Name)
	if err != nil {
		return m.immediate(StatusOK, err)
	}
	m.mu.Lock()
	m.Inbox[vctx.Name] = v.Clone()
	m.mu.Unlock()
	return m.immediate(m.takeFailure("AsyncSend"), nil)
}

func (m *MockClient) ParameterRecv(_ context.Context, vctx *commctx.VariableContext, scope *variable.Scope) Future {
	m.mu.Lock()
	v, ok := m.recvValue[vctx.Name]
	m.mu.Unlock()
	if ok {
		scope.SetAs(vctx.Name, v.Clone())
	}
	return m.immediate(m.takeFailure("ParameterRecv"), nil)
}

func (m *MockClient) ParameterSend(_ context.Context, vctx *commctx.VariableContext, scope *variable.Scope) Future {
	v, err := scope.Get(vctx.Name)
	if err != nil {
		return m.immediate(StatusOK, err)
	}
	m.mu.Lock()
	m.Inbox[vctx.Name] = v.Clone()
	m.mu.Unlock()
	return m.immediate(m.takeFailure("ParameterSend"), nil)
}

func (m *MockClient) AsyncSendVar(_ context.Context, endpoint string, scope *variable.Scope, name string) Future {
	v, err := scope.Get(name)
	if err != nil {
		return m.immediate(StatusOK, err)
	}
	m.mu.Lock()
	m.Inbox[endpoint+"/"+name] = v.Clone()
	m.mu.Unlock()
	return m.immediate(m.takeFailure("AsyncSendVar"), nil)
}

func (m *MockClient) AsyncGetVar(_ context.Context, endpoint, inName, outName, alias string, scope *variable.Scope) Future {
	m.mu.Lock()
	v, ok := m.recvValue[endpoint+"/"+inName]
	if !ok {
		v, ok = m.recvValue[inName]
	}
	m.mu.Unlock()
	if ok {
		out := v.Clone()
		out.Name = outName
		scope.Set(out)
	}
	_ = alias
	return m.immediate(m.takeFailure("AsyncGetVar"), nil)
}

func (m *MockClient) AsyncSendBatchBarrier(_ context.Context, endpoint string) Future {
	m.mu.Lock()
	m.Barriers = append(m.Barriers, "batch:"+endpoint)
	m.mu.Unlock()
	return m.immediate(m.takeFailure("AsyncSendBatchBarrier"), nil)
}

func (m *MockClient) AsyncSendFetchBarrier(_ context.Context, endpoint string) Future {
	m.mu.Lock()
	m.Barriers = append(m.Barriers, "fetch:"+endpoint)
	m.mu.Unlock()
	return m.immediate(m.takeFailure("AsyncSendFetchBarrier"), nil)
}

// BarrierLog returns a snapshot of recorded AsyncSendBatchBarrier/
// AsyncSendFetchBarrier calls in order, safe for concurrent use.
func (m *MockClient) BarrierLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Barriers...)
}

var _ Client = (*MockClient)(nil)
var _ Client = (*FasthttpClient)(nil)
