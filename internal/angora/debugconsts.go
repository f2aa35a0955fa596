package angora

// These consts gather the pass's debug toggles in one place rather than
// scattering ad hoc booleans across files, matching wazevoapi's
// debug_consts.go. Enable only when debugging the pass itself; they are
// distinct from Config.OutputCondLoc, which is a user-visible, env-driven
// diagnostic rather than a developer-only one.

const (
	// PrintReachability dumps the four ReachabilityAnalysis facts per
	// basic block after the fixed point is reached.
	PrintReachability = false
	// PrintEarlyTermination dumps every edge the EarlyTerminator cuts.
	PrintEarlyTermination = false
	// PrintInstrumentedIR dumps each function after the Instrumenter
	// finishes rewriting it.
	PrintInstrumentedIR = false
)
