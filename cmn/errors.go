package cmn

import "github.com/pkg/errors"

// The five error kinds of the error-handling design (spec §7). ConfigError
// and ContractViolation are fatal; NotInitialized and BarrierTimeout are
// fatal at their call site but do not otherwise terminate the process;
// RPCError's fatality depends on the calling discipline (Async/Geo log and
// continue, Sync/HalfAsync treat it as fatal at the barrier).

type ConfigError struct{ Key, Reason string }

func (e *ConfigError) Error() string {
	return "config: " + e.Key + ": " + e.Reason
}

func NewErrConfig(key, reason string) error {
	return errors.WithStack(&ConfigError{Key: key, Reason: reason})
}

type ContractViolation struct{ Msg string }

func (e *ContractViolation) Error() string { return "contract violation: " + e.Msg }

func NewErrContract(msg string) error {
	return errors.WithStack(&ContractViolation{Msg: msg})
}

type NotInitialized struct{ What string }

func (e *NotInitialized) Error() string { return "not initialized: " + e.What }

func NewErrNotInitialized(what string) error {
	return errors.WithStack(&NotInitialized{What: what})
}

type RPCError struct {
	Endpoint string
	Status   int32
	Cause    error
}

func (e *RPCError) Error() string {
	if e.Cause != nil {
		return "rpc to " + e.Endpoint + " failed (status " + itoa(e.Status) + "): " + e.Cause.Error()
	}
	return "rpc to " + e.Endpoint + " failed (status " + itoa(e.Status) + ")"
}

func (e *RPCError) Unwrap() error { return e.Cause }

func NewErrRPC(endpoint string, status int32, cause error) error {
	return errors.WithStack(&RPCError{Endpoint: endpoint, Status: status, Cause: cause})
}

type BarrierTimeout struct{ Phase string }

func (e *BarrierTimeout) Error() string { return "barrier timed out in phase " + e.Phase }

func NewErrBarrierTimeout(phase string) error {
	return errors.WithStack(&BarrierTimeout{Phase: phase})
}

func itoa(i int32) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [12]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
