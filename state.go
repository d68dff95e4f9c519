// state.go - per-instruction decode state and operand descriptors
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

// OperandKind tags what Operand.val actually holds.
type OperandKind int

const (
	OperandNone OperandKind = iota
	OperandRegister
	OperandMemory
	OperandImmediate
)

// Operand is the tagged src/dst descriptor of spec.md §3.
type Operand struct {
	Kind OperandKind
	Bytes int

	// Register: regPtr points directly at the backing GPR (reg8High selects
	// bits 8-15 for AH/CH/DH/BH; writeback.go merges the value by width).
	regPtr *uint64
	reg8High bool // AH/BH/CH/DH quirk: value lives in bits 8-15 of regPtr

	// Memory: fully resolved linear operand.
	Seg    SegIndex
	Offset uint64

	val      uint64 // current value, truncated to Bytes
	origVal  uint64 // snapshot at fetch time, for LOCKed CAS retry (spec.md §4.I)
}

// EffectiveAddress is the result of ModR/M+SIB+displacement resolution
// (spec.md §4.B stage 5).
type EffectiveAddress struct {
	Seg       SegIndex
	Offset    uint64 // always pre-truncated to AddrBytes (invariant 7)
	IsRegister bool
	RegField  byte // valid only when IsRegister
}

// VexRecord captures the fields of a VEX/EVEX/XOP prefix (spec.md §3/§4.B
// stage 4). EVEX additionally populates Opmask/Broadcast/LL/Zero.
type VexRecord struct {
	Present bool
	Is3Byte bool
	IsEVEX  bool
	IsXOP   bool

	RexR, RexX, RexB bool // inverted in the encoding, stored already-normalized
	RexR2            bool // EVEX R' (bit 4 of ModR/M.reg in 64-bit mode)
	MMMMM            byte // opcode-map selector (1=0F, 2=0F38, 3=0F3A for VEX/EVEX; XOP groups 8/9/A)
	W                bool
	VVVV             byte // NDS/NDD register, already inverted (spec.md invariant: 0b1111 == unused)
	L                bool // vector length (256 vs 128); EVEX reuses bit0 of LL
	PP               byte // 0=none 1=66 2=F3 3=F2 (folds into mandatory prefix)

	// EVEX-only
	Opmask    byte
	ZeroMask  bool
	Broadcast bool
	LL        byte // 0=128 1=256 2=512
}

// State is created by Decode, consumed by Execute, and optionally handed
// back to the caller for introspection (spec.md §3/§3 Lifecycle). It is a
// plain value type: callers that want to keep decoding cheap can put it on
// the stack, exactly as the spec's "no heap allocation in a non-debug
// build" invariant requires.
type State struct {
	// sizes, resolved in stage order
	OpBytes   int // 1,2,4,8
	AddrBytes int // 2,4,8
	StackBytes int

	Escape   EscapeMap
	ModRM    byte
	modrmLoaded bool
	Mod, Reg, RM byte
	SIB      byte
	sibLoaded bool

	Rex     byte
	RexPresent bool
	LockPrefix bool
	RepPrefix  byte // 0=none 1=F3 2=F2
	SegOverride SegIndex // SegNone if absent
	OpSizeOverride, AddrSizeOverride bool
	MandatoryPrefix byte // 0,0x66,0xF2,0xF3 - folded per spec.md §4.B stage 1

	Not64BitValid bool // instruction is invalid/reinterpreted in 64-bit mode

	AttrByte byte // opcode attribute descriptor (§4.A)

	group3Pending        bool // F6/F7: TEST takes Ib/Iz, NOT/NEG/MUL/IMUL/DIV/IDIV don't
	operandBytesOverride int  // 0 = use OpBytes; else force immediate/operand width

	branched bool // RIP was set explicitly by a control-flow opcode; Execute must not then overwrite it with the fallthrough address

	Vex VexRecord

	EA EffectiveAddress
	ripRelative bool
	ripRelDisp  uint64

	Imm1, Imm2 int64
	Imm1Bytes, Imm2Bytes int
	HasImm1, HasImm2 bool

	// byte cursor: StartRIP is where decode began, IP is the next-fetch
	// cursor. insn_length = IP - StartRIP (spec.md §4.J).
	StartRIP uint64
	IP       uint64

	Opcode PackedOpcode // final packed (escape,mandatory-prefix,byte) identity

	// src/dst materialized by operand.go, consumed by exec_*.go,
	// committed by writeback.go.
	Src, Dst Operand
	DstIsMov bool // Mov-attributed destination: skip pre-read, skip no-op elision

	// live is the debug-build "caller holds this State" marker (spec.md
	// §3 Lifecycle). FreeState clears it; a second Decode without a
	// FreeState in between is a usage bug the core complains about loudly
	// rather than silently corrupting, matching the teacher's own
	// "Undefined opcode ... halting" defensiveness.
	live bool
}

// reset clears transient per-instruction decode state while keeping the
// allocation (Decode is called once per State value, so this only matters
// when a caller reuses a State across instructions via EmulateInto).
func (s *State) reset() {
	*s = State{EA: EffectiveAddress{Seg: SegNone}, SegOverride: SegNone}
}
