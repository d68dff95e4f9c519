// emulate.go - top-level Decode+Execute orchestration (spec.md §3
// Lifecycle), replacing the role the teacher's cpu_x86_runner.go filled
// (a driver loop around the CPU core) now that the core is an embeddable
// library rather than a monitor-attached hardware runner.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

// Emulate decodes and executes exactly one instruction at ctx's current
// CS:RIP, the single synchronous entry point spec.md §3/§6 describes for a
// hypervisor's "emulate this instruction" call. It is equivalent to
// Decode followed by Execute followed by FreeState, and exists for callers
// that have no use for the intermediate State (spec.md §4.J's
// introspection API is for callers that do).
func Emulate(ctx *Ctxt, ops *Ops) Status {
	var st State
	s := Decode(ctx, ops, &st)
	if s != OKAY {
		return s
	}
	s = Execute(ctx, ops, &st)
	FreeState(&st)
	return s
}

// EmulateInto is Emulate but lets the caller reuse a State across calls
// (avoiding a stack allocation per instruction in a tight interpreter
// loop) and inspect it afterward via State.Introspect before the next
// Decode overwrites it.
func EmulateInto(ctx *Ctxt, ops *Ops, st *State) Status {
	s := Decode(ctx, ops, st)
	if s != OKAY {
		return s
	}
	s = Execute(ctx, ops, st)
	FreeState(st)
	return s
}
