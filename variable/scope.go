package variable

import (
	"sync"

	"github.com/paramfabric/communicator/cmn"
)

// Scope is a named container of variables with ownership of their storage
// (spec §3). The core holds recv_scope, send_scope, and — for GEO —
// delta_scope, old_scope, pserver_scope, each a *Scope.
type Scope struct {
	name string
	mu   sync.RWMutex
	vars map[string]*Variable
}

func NewScope(name string) *Scope {
	return &Scope{name: name, vars: make(map[string]*Variable)}
}

func (s *Scope) Name() string { return s.name }

// Get returns the variable registered under name, or NotInitialized if
// absent — the error spec §7 requires at points where a scope lookup must
// succeed (e.g. GeoEngine.SendSparse reading `latest`).
func (s *Scope) Get(name string) (*Variable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	if !ok {
		return nil, cmn.NewErrNotInitialized(s.name + "." + name)
	}
	return v, nil
}

// Lookup is Get without the error allocation, for call sites that just
// need a presence check.
func (s *Scope) Lookup(name string) (*Variable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Set installs v under its own Name, overwriting any prior value — the
// ownership transfer point for MergeOps output and RPC receive results.
func (s *Scope) Set(v *Variable) {
	s.mu.Lock()
	s.vars[v.Name] = v
	s.mu.Unlock()
}

// SetAs installs v under an explicit name, for shard/alias variables whose
// wire name differs from the logical variable name.
func (s *Scope) SetAs(name string, v *Variable) {
	s.mu.Lock()
	s.vars[name] = v
	s.mu.Unlock()
}

// Rename moves the variable under from to the name to, as spec §3 permits.
func (s *Scope) Rename(from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[from]
	if !ok {
		return cmn.NewErrNotInitialized(s.name + "." + from)
	}
	delete(s.vars, from)
	v.Name = to
	s.vars[to] = v
	return nil
}

func (s *Scope) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.vars))
	for n := range s.vars {
		out = append(out, n)
	}
	return out
}
