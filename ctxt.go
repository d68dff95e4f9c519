// ctxt.go - caller-owned emulation context for the x86 instruction core
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

// Mode selects the effective address/operand/stack width the decoder and
// executor assume for a given Emulate call. The caller is responsible for
// keeping this in sync with the guest's actual CR0.PE/EFER.LMA/CS.L state;
// the core never reads those bits itself except through the Ops callbacks.
type Mode int

const (
	Mode16 Mode = 16
	Mode32 Mode = 32
	Mode64 Mode = 64
)

// Vendor distinguishes the handful of behaviors that differ between Intel
// and AMD silicon (CR8 access via LOCK MOV CR0, SYSCALL/SYSRET availability
// outside 64-bit mode, NULL-segment content preservation). No code in this
// package reads Ctxt.Vendor, so both values currently behave the same.
type Vendor int

const (
	VendorIntel Vendor = iota
	VendorAMD
)

// EFLAGS bit positions (architectural names).
const (
	EFLAGS_CF = 1 << 0
	EFLAGS_MBS = 1 << 1 // mandatory-1 bit
	EFLAGS_PF = 1 << 2
	EFLAGS_AF = 1 << 4
	EFLAGS_ZF = 1 << 6
	EFLAGS_SF = 1 << 7
	EFLAGS_TF = 1 << 8
	EFLAGS_IF = 1 << 9
	EFLAGS_DF = 1 << 10
	EFLAGS_OF = 1 << 11
	EFLAGS_IOPL = 3 << 12
	EFLAGS_NT = 1 << 14
	EFLAGS_RF = 1 << 16
	EFLAGS_VM = 1 << 17
	EFLAGS_AC = 1 << 18
	EFLAGS_VIF = 1 << 19
	EFLAGS_VIP = 1 << 20
	EFLAGS_ID = 1 << 21

	// arithStatusMask is the "arithmetic six": the flags the ALU primitives
	// of §4.E are allowed to touch.
	arithStatusMask = EFLAGS_CF | EFLAGS_PF | EFLAGS_AF | EFLAGS_ZF | EFLAGS_SF | EFLAGS_OF

	// eflagsReservedClear keeps EFLAGS in its architectural shape: bit 1
	// always set, bits 3/5/15/22-31 always clear (invariant 5, spec.md §8).
	eflagsReservedClear = (1 << 3) | (1 << 5) | (1 << 15) | (0xFFFFFFFF << 22)
)

// canonicalizeEFLAGS enforces the reserved-bit discipline of spec.md §8
// invariant 5 on every path that writes Regs.RFLAGS.
func canonicalizeEFLAGS(v uint64) uint64 {
	v |= EFLAGS_MBS
	v &^= uint64(eflagsReservedClear)
	return v
}

// SegIndex names the six segment registers plus the two descriptor-table
// pseudo-segments used by Ops.ReadSegment/WriteSegment (spec.md §6).
type SegIndex int

const (
	SegES SegIndex = iota
	SegCS
	SegSS
	SegDS
	SegFS
	SegGS
	SegTR
	SegLDTR
	SegGDTR
	SegIDTR
	SegNone SegIndex = -1 // pseudo-segment: validate only, never commit (§4.G)
)

// Regs is the guest general-purpose register snapshot the core mutates in
// place. All fields are kept at full 64-bit width; narrower modes simply
// never look at the upper bits (Mode16/Mode32 callers zero them on entry
// and the core zero-extends on 32-bit writes per spec.md §4.I).
type Regs struct {
	RAX, RCX, RDX, RBX uint64
	RSP, RBP, RSI, RDI uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
	RIP                uint64
	RFLAGS             uint64
}

// ptr returns the GPR for an index in the architectural encoding order used by ModR/M.rm,
// ModR/M.reg, and the opcode+register forms (B0-B7/B8-BF etc): AX, CX, DX,
// BX, SP, BP, SI, DI, then R8-R15 when REX.B/R/X extends the field.
func (r *Regs) ptr(idx int) *uint64 {
	switch idx & 0xF {
	case 0:
		return &r.RAX
	case 1:
		return &r.RCX
	case 2:
		return &r.RDX
	case 3:
		return &r.RBX
	case 4:
		return &r.RSP
	case 5:
		return &r.RBP
	case 6:
		return &r.RSI
	case 7:
		return &r.RDI
	case 8:
		return &r.R8
	case 9:
		return &r.R9
	case 10:
		return &r.R10
	case 11:
		return &r.R11
	case 12:
		return &r.R12
	case 13:
		return &r.R13
	case 14:
		return &r.R14
	case 15:
		return &r.R15
	}
	return &r.RAX
}

// EscapeMap tags which opcode table a decoded instruction was resolved
// against (spec.md §3 State, "escape map tag").
type EscapeMap int

const (
	EscapeNone EscapeMap = iota
	Escape0F
	Escape0F38
	Escape0F3A
	EscapeXOP8
	EscapeXOP9
	EscapeXOPA
)

// EventType distinguishes fault/trap/abort/software-interrupt class events
// for PendingEvent.Type (spec.md §3/§4.H).
type EventType int

const (
	EventHardException EventType = iota
	EventSoftException           // software interrupt (INT3/INTn/INTO/ICEBP)
	EventNMI
)

// PendingEvent is populated by the core when Execute returns EXCEPTION; the
// caller is responsible for injecting it into the guest (spec.md §3/§4.H).
type PendingEvent struct {
	Vector    uint8
	Type      EventType
	HasErrorCode bool
	ErrorCode uint32
	CR2       uint64 // valid only for Vector == excPF
	InsnLen   uint8  // bytes consumed by the faulting/trapping instruction
}

// Retire carries the side effects the caller must apply after a
// successful Emulate call (spec.md §4.H "retire" flags): these are not
// architectural exceptions, they are deferred behaviors the caller's
// execution loop must honor on its *next* iteration.
type Retire struct {
	Hlt         bool
	MovSS       bool // inhibits single-step trap on the following instruction
	StartedSTI  bool // one-instruction interrupt-shadow window
	SingleStep  bool // TF was set and this instruction is not MovSS-shadowed
}

// PackedOpcode is the (escape, mandatory-prefix, opcode-byte) tuple
// collapsed into a single dispatch key, per spec.md §4.F "a single large
// switch on the fully-packed opcode".
type PackedOpcode uint32

func packOpcode(esc EscapeMap, mandPfx byte, opcode byte) PackedOpcode {
	return PackedOpcode(esc)<<16 | PackedOpcode(mandPfx)<<8 | PackedOpcode(opcode)
}

// Ctxt is owned by the caller and passed by reference into Decode/Execute.
// It is the architectural state the emulator core is allowed to read and
// mutate directly (as opposed to guest memory/ports/MSRs/etc, which only
// flow through the Ops vtable).
type Ctxt struct {
	Regs Regs

	AddrMode  Mode // effective address-size mode
	StackMode Mode // effective stack-size mode (SS.B / REX.W-independent)
	Vendor    Vendor

	// SwIntEmulate is carried for callers, but both settings behave the
	// same: a software interrupt handled by injectOrEmulateSoftInt records
	// its vector in Event as EventSoftException and returns EXCEPTION. No
	// IDT walk and no gate DPL check is performed in either setting.
	SwIntEmulate bool

	Retire Retire
	Event  PendingEvent

	// Opcode is the packed (escape, mandatory-prefix, byte) identity of the
	// instruction Decode most recently resolved, copied from State.Opcode.
	// Dispatch reads State.Opcode's low byte and State.Escape, so rewriting
	// this field does not change which handler runs.
	Opcode PackedOpcode

	// ForceWriteback disables the writeback-elision optimization of
	// spec.md §4.I ("dst.val == dst.orig_val" skip) for instructions whose
	// side effects (e.g. a stub fault, an MMIO read-modify-write) must be
	// observed even when the value didn't change.
	ForceWriteback bool
}

func (c *Ctxt) is64() bool { return c.AddrMode == Mode64 }
