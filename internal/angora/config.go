// Package angora implements the Angora coverage/comparison instrumentation
// pass: edge-coverage tracing, call-context encoding, comparison/switch/
// call/exploit-value tracing, sink/source reachability analysis, and
// early-termination edge cutting, over the ir package's compiler IR.
package angora

import (
	"fmt"
	"os"
	"strconv"
)

// Mode selects which of the two mutually exclusive instrumentation modes
// the pass emits: Fast (gated trace_cmp calls against the currently
// targeted comparison id, for production fuzzing throughput) or Track
// (unconditional _tt traces carrying full operand values, for constraint
// collection). See spec.md §4.3/§4.5.
type Mode int

const (
	// ModeFast is the default production-fuzzing mode.
	ModeFast Mode = iota
	// ModeTrack emits full per-comparison traces and the CFG export.
	ModeTrack
)

// EarlyTermination selects whether and how the EarlyTerminator runs
// (spec.md §6 "ANGORA_EARLY_TERMINATION").
type EarlyTermination int

const (
	// EarlyTerminationOff disables the EarlyTerminator.
	EarlyTerminationOff EarlyTermination = iota
	// EarlyTerminationStatic is the default/explicit "static" mode.
	EarlyTerminationStatic
	// EarlyTerminationFull is the "full" mode; both Static and Full
	// currently drive the same edge-cutting behavior (spec.md §4.6), the
	// distinction is preserved for the host driver to report and for
	// future divergence.
	EarlyTerminationFull
)

// Config collects every pass flag and environment variable from spec.md §6
// into one value, constructed once per pass invocation. Analogous to
// wazevo's per-compilation wazevoapi flags, but gathered explicitly rather
// than read ad hoc, since this pass (unlike wazevo) is driven from process
// environment as well as flags.
type Config struct {
	// Mode is ModeFast or ModeTrack ("TrackMode" pass flag; mutually
	// exclusive with fast, spec.md §6).
	Mode Mode
	// DFSanMode plumbs the "DFSanMode" pass flag through; DFSan
	// instrumentation itself is out of scope (spec.md §1 NON-GOALS).
	DFSanMode bool

	// ABIListPath is "angora-dfsan-abilist", consumed upstream of
	// CategoryList as an opaque predicate (spec.md §1 OUT OF SCOPE); kept
	// here only so cmd/irpass can plumb it to a CategoryList
	// constructor.
	ABIListPath string
	// ExploitListPath is "angora-exploitation-list".
	ExploitListPath string
	// CFGOutPath is "cfg-out": the CFG JSON output path, used only in
	// track mode.
	CFGOutPath string
	// BaseID is the id xor-mask ("base_id") the id-assignment sub-pass
	// used; IdOracle does not need it (ids already carry it), but it is
	// part of the pass's external contract so it is threaded through
	// Config for completeness and for AssignIDs in tests.
	BaseID uint32

	// InstRatio is "ANGORA_INST_RATIO", 0-100, default 100; 0 disables
	// edge counting.
	InstRatio int

	// EarlyTermination is "ANGORA_EARLY_TERMINATION".
	EarlyTermination EarlyTermination
	// EarlyAggressive is "ANGORA_EARLY_AGGRESSIVE".
	EarlyAggressive bool

	// OutputCondLoc is "OUTPUT_COND_LOC_VAR": emit extra diagnostics.
	OutputCondLoc bool

	// ContextDepth controls the call-context update rule (spec.md §3):
	// nil means "CUSTOM_FN_CTX unset", the default context-enabled mode
	// with no depth shift; a pointed-to 0 disables contexts entirely;
	// 1-31 selects the shift depth K.
	ContextDepth *int
}

// ContextsEnabled reports whether function-entry context mixing is active
// at all (CUSTOM_FN_CTX=0 disables it, spec.md §8 scenario 6).
func (c Config) ContextsEnabled() bool {
	return c.ContextDepth == nil || *c.ContextDepth != 0
}

// ContextShiftK returns the configured shift depth K and whether one is
// configured at all (K>0 selects the `context >> (32/K)` rule of spec.md
// §3; the zero value with ok=false means "plain XOR, no shift").
func (c Config) ContextShiftK() (k int, ok bool) {
	if c.ContextDepth == nil || *c.ContextDepth == 0 {
		return 0, false
	}
	return *c.ContextDepth, true
}

// LoadConfigFromEnv reads the environment-variable half of Config
// (spec.md §6), applying defaults and validating ranges. Pass-flag fields
// (Mode, ABIListPath, ...) are left at their zero value; callers (e.g.
// cmd/irpass) set those from command-line flags before running the pass.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{InstRatio: 100}

	if v, ok := os.LookupEnv("ANGORA_INST_RATIO"); ok {
		ratio, err := strconv.Atoi(v)
		if err != nil || ratio < 0 || ratio > 100 {
			return Config{}, fmt.Errorf("invalid ANGORA_INST_RATIO %q: must be an integer in [0,100]", v)
		}
		cfg.InstRatio = ratio
	}

	switch v, ok := os.LookupEnv("ANGORA_EARLY_TERMINATION"); {
	case !ok, v == "static":
		cfg.EarlyTermination = EarlyTerminationStatic
	case v == "full":
		cfg.EarlyTermination = EarlyTerminationFull
	default:
		cfg.EarlyTermination = EarlyTerminationOff
	}

	if _, ok := os.LookupEnv("ANGORA_EARLY_AGGRESSIVE"); ok {
		cfg.EarlyAggressive = true
	}
	if _, ok := os.LookupEnv("OUTPUT_COND_LOC_VAR"); ok {
		cfg.OutputCondLoc = true
	}

	if v, ok := os.LookupEnv("CUSTOM_FN_CTX"); ok {
		depth, err := strconv.Atoi(v)
		if err != nil || depth < 0 || depth > 31 {
			return Config{}, fmt.Errorf("invalid CUSTOM_FN_CTX %q: must be an integer in [0,31]", v)
		}
		cfg.ContextDepth = &depth
	}

	return cfg, nil
}
