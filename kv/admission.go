package kv

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/paramfabric/communicator/cmn"
)

// AdmissionPolicy decides, from a key's current hit count, whether it
// should participate in gradient updates (spec §3 "Admission / entry").
type AdmissionPolicy interface {
	Admit(count int) bool
}

type noneAdmission struct{}

func (noneAdmission) Admit(int) bool { return true }

type countFilterAdmission struct{ threshold int }

func (c countFilterAdmission) Admit(count int) bool { return count >= c.threshold }

type probabilityAdmission struct{ p float64 }

func (pr probabilityAdmission) Admit(int) bool { return rand.Float64() >= pr.p }

// ParseAdmission parses the entry-policy string of spec §4.B: "none",
// "count_filter:T", or "probability:p".
func ParseAdmission(spec string) (AdmissionPolicy, error) {
	if spec == "" || spec == "none" {
		return noneAdmission{}, nil
	}
	parts := strings.SplitN(spec, ":", 2)
	switch parts[0] {
	case "none":
		return noneAdmission{}, nil
	case "count_filter":
		if len(parts) != 2 {
			return nil, cmn.NewErrConfig("entry", "count_filter requires a threshold")
		}
		t, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, cmn.NewErrConfig("entry", "bad count_filter threshold: "+parts[1])
		}
		return countFilterAdmission{threshold: t}, nil
	case "probability":
		if len(parts) != 2 {
			return nil, cmn.NewErrConfig("entry", "probability requires a threshold")
		}
		p, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, cmn.NewErrConfig("entry", "bad probability threshold: "+parts[1])
		}
		return probabilityAdmission{p: p}, nil
	default:
		return nil, cmn.NewErrConfig("entry", "unknown admission policy: "+spec)
	}
}
