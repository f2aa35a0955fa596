package ir

// GlobalVar is a mutable, addressable module-level variable, used for the
// RuntimeABI's TLS and process-wide state (spec.md §3: prev_loc, context,
// call_site, ind_call_site, the coverage area pointer, and the tracked
// comparison id).
type GlobalVar struct {
	Name         string
	Type         Type
	ThreadLocal  bool
}
