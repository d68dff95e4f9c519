// except.go - exception vector taxonomy and injection helpers (spec.md
// §4.H), ported verbatim from original_source/xen/arch/x86/x86_emulate/
// x86_emulate.c's EXC_* vector table (confirmed by grep against
// original_source: EXC_DE=0 ... EXC_XM=19 match spec.md §4.H exactly).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

// Exception vectors (Intel SDM Vol. 3, chapter 6; Xen's EXC_* names).
const (
	excDE = 0  // divide error
	excDB = 1  // debug
	excNMI = 2
	excBP = 3  // breakpoint (INT3)
	excOF = 4  // overflow (INTO)
	excBR = 5  // BOUND range exceeded
	excUD = 6  // invalid opcode
	excNM = 7  // device not available
	excDF = 8  // double fault
	excTS = 10 // invalid TSS
	excNP = 11 // segment not present
	excSS = 12 // stack-segment fault
	excGP = 13 // general protection
	excPF = 14 // page fault
	excMF = 16 // x87 FPU error
	excAC = 17 // alignment check
	excMC = 18 // machine check
	excXM = 19 // SIMD floating-point
)

// raiseFault records a hard exception in ctx.Event and returns EXCEPTION;
// every execution-time fault site goes through it. The two decode-time #GP
// checks (decodePrefixes' prefix-count limit and Decode's length limit)
// fill ctx.Event directly, with InsnLen left 0.
func raiseFault(ctx *Ctxt, st *State, vector uint8, hasErr bool, errCode uint32) Status {
	ctx.Event = PendingEvent{
		Vector:       vector,
		Type:         EventHardException,
		HasErrorCode: hasErr,
		ErrorCode:    errCode,
		InsnLen:      uint8(st.IP - st.StartRIP),
	}
	return EXCEPTION
}

func raiseFaultWithCR2(ctx *Ctxt, st *State, vector uint8, errCode uint32, cr2 uint64) Status {
	s := raiseFault(ctx, st, vector, true, errCode)
	ctx.Event.CR2 = cr2
	return s
}

// injectSoftware records a software-originated event (INT3/INTn/INTO/ICEBP)
// for the caller to walk through the IDT itself, used for
// both Ctxt.SwIntEmulate settings (see injectOrEmulateSoftInt).
func injectSoftware(ctx *Ctxt, st *State, vector uint8) Status {
	ctx.Event = PendingEvent{
		Vector:  vector,
		Type:    EventSoftException,
		InsnLen: uint8(st.IP - st.StartRIP),
	}
	return EXCEPTION
}
