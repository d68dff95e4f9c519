// attrs.go - per-opcode attribute descriptors for the one-byte and 0F
// escape maps (spec.md §4.A).
//
// Adapted from the teacher's debug_disasm_x86.go, which keyed 256-entry
// lookup tables by opcode byte to find a *display* mnemonic/operand shape;
// here the same table shape instead yields a bitwise-OR'd descriptor byte
// telling the decoder whether ModR/M is present and what kind of src/dst
// operands to expect, before §4.F's per-opcode switch does the real work.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

// Attribute bits (spec.md §4.A).
const (
	attrByteOp = 1 << 0

	attrDstShift = 1
	attrDstMask  = 3 << attrDstShift
	dstNone      = 0 << attrDstShift
	dstBitBase   = 1 << attrDstShift
	dstReg       = 2 << attrDstShift
	dstMem       = 3 << attrDstShift

	attrSrcShift = 3
	attrSrcMask  = 7 << attrSrcShift
	srcNone      = 0 << attrSrcShift
	srcReg       = 1 << attrSrcShift
	srcMem       = 2 << attrSrcShift
	srcMem16     = 3 << attrSrcShift
	srcImm       = 4 << attrSrcShift
	srcImmByte   = 5 << attrSrcShift
	srcImm16     = 6 << attrSrcShift

	attrModRM = 1 << 6
	attrMov   = 1 << 7
)

func attr(bits ...int) byte {
	var b int
	for _, x := range bits {
		b |= x
	}
	return byte(b)
}

// oneByteAttr and twoByteAttr are populated at package init from compact
// range/stride descriptions, mirroring the teacher's own
// `for i := 0; i < 8; i++ { c.baseOps[0x40+i] = ... }` registration style
// in cpu_x86.go's initBaseOps, just building attribute bytes instead of
// function pointers.
var oneByteAttr [256]byte
var twoByteAttr [256]byte

// xopGroupAttr holds the three XOP group descriptors (8F/8, 8F/9, 8F/A);
// XOP groups are register/immediate-only AMD-specific forms and always
// carry ModR/M.
var xopGroupAttr = [3]byte{attrModRM, attrModRM, attrModRM}

func fillRun(table *[256]byte, start, count int, a byte) {
	for i := 0; i < count; i++ {
		table[start+i] = a
	}
}

func fillStride6(table *[256]byte, base int, byteOpAttr, wordOpAttr byte) {
	// The six standard ALU-group opcode layouts (ADD/OR/ADC/SBB/AND/SUB/
	// XOR/CMP, and their mirrors) all share the same Eb,Gb / Ev,Gv /
	// Gb,Eb / Gv,Ev / AL,Ib / eAX,Iv six-opcode shape.
	table[base+0] = attr(attrByteOp, dstMem, srcReg, attrModRM)
	table[base+1] = attr(dstMem, srcReg, attrModRM)
	table[base+2] = attr(attrByteOp, dstReg, srcMem, attrModRM)
	table[base+3] = attr(dstReg, srcMem, attrModRM)
	table[base+4] = attr(attrByteOp, dstReg, srcImmByte)
	table[base+5] = attr(dstReg, srcImm)
}

func init() {
	// 0x00-0x3D: ADD OR ADC SBB AND SUB XOR CMP, six opcodes apiece; PUSH/POP
	// seg (or the 0F escape) follows each of the first four groups, and a
	// segment-override prefix plus DAA/DAS/AAA/AAS each of the last four.
	for _, base := range []int{0x00, 0x08, 0x10, 0x18, 0x20, 0x28, 0x30, 0x38} {
		fillStride6(&oneByteAttr, base, 0, 0)
	}
	oneByteAttr[0x06], oneByteAttr[0x07] = attr(dstNone), attr(dstNone)
	oneByteAttr[0x0E] = attr(dstNone)
	oneByteAttr[0x0F] = attr(dstNone) // two-byte escape, handled specially
	oneByteAttr[0x16], oneByteAttr[0x17] = attr(dstNone), attr(dstNone)
	oneByteAttr[0x1E], oneByteAttr[0x1F] = attr(dstNone), attr(dstNone)
	oneByteAttr[0x27] = attr(dstNone) // DAA
	oneByteAttr[0x2F] = attr(dstNone) // DAS
	oneByteAttr[0x37] = attr(dstNone) // AAA
	oneByteAttr[0x3F] = attr(dstNone) // AAS

	fillRun(&oneByteAttr, 0x40, 16, attr(dstReg)) // INC/DEC r16/r32 (REX in 64-bit)
	fillRun(&oneByteAttr, 0x50, 16, attr(dstReg))  // PUSH/POP r16/r32/r64

	oneByteAttr[0x63] = attr(dstReg, srcMem, attrModRM) // ARPL / MOVSXD
	oneByteAttr[0x68] = attr(dstNone, srcImm)
	oneByteAttr[0x69] = attr(dstReg, srcMem, attrModRM)
	oneByteAttr[0x6A] = attr(dstNone, srcImmByte)
	oneByteAttr[0x6B] = attr(dstReg, srcMem, attrModRM)
	// INSB/OUTSB (0x6C/0x6E) are byte-width; INSW/D and OUTSW/D (0x6D/0x6F)
	// follow the operand-size prefix like every other word/dword form.
	oneByteAttr[0x6C] = attr(attrByteOp, dstNone)
	oneByteAttr[0x6D] = attr(dstNone)
	oneByteAttr[0x6E] = attr(attrByteOp, dstNone)
	oneByteAttr[0x6F] = attr(dstNone)

	fillRun(&oneByteAttr, 0x70, 16, attr(dstNone, srcImmByte)) // Jcc rel8

	oneByteAttr[0x80] = attr(attrByteOp, dstMem, srcImmByte, attrModRM)
	oneByteAttr[0x81] = attr(dstMem, srcImm, attrModRM)
	oneByteAttr[0x82] = attr(attrByteOp, dstMem, srcImmByte, attrModRM)
	oneByteAttr[0x83] = attr(dstMem, srcImmByte, attrModRM)
	oneByteAttr[0x84] = attr(attrByteOp, dstMem, srcReg, attrModRM)
	oneByteAttr[0x85] = attr(dstMem, srcReg, attrModRM)
	oneByteAttr[0x86] = attr(attrByteOp, dstMem, srcReg, attrModRM)
	oneByteAttr[0x87] = attr(dstMem, srcReg, attrModRM)
	oneByteAttr[0x88] = attr(attrByteOp, dstMem, srcReg, attrModRM, attrMov)
	oneByteAttr[0x89] = attr(dstMem, srcReg, attrModRM, attrMov)
	oneByteAttr[0x8A] = attr(attrByteOp, dstReg, srcMem, attrModRM, attrMov)
	oneByteAttr[0x8B] = attr(dstReg, srcMem, attrModRM, attrMov)
	// MOV Ev,Sw / MOV Sw,Ev: the reg field is a segment-register index, not
	// a GPR, so neither side routes it as a normal operand - both go
	// through execMovFromSeg/execMovToSeg directly via st.Reg, same as the
	// CR/DR moves below.
	oneByteAttr[0x8C] = attr(dstMem, srcNone, attrModRM, attrMov)
	oneByteAttr[0x8D] = attr(dstReg, srcMem, attrModRM, attrMov) // LEA
	oneByteAttr[0x8E] = attr(dstMem, srcMem, attrModRM, attrMov)
	oneByteAttr[0x8F] = attr(dstMem, srcNone, attrModRM, attrMov) // POP Ev

	fillRun(&oneByteAttr, 0x90, 8, attr(dstNone)) // NOP/XCHG eAX,rN
	oneByteAttr[0x98] = attr(dstNone)
	oneByteAttr[0x99] = attr(dstNone)
	oneByteAttr[0x9A] = attr(dstNone, srcImm)
	oneByteAttr[0x9B] = attr(dstNone)
	oneByteAttr[0x9C] = attr(dstNone)
	oneByteAttr[0x9D] = attr(dstNone)
	oneByteAttr[0x9E] = attr(dstNone)
	oneByteAttr[0x9F] = attr(dstNone)

	oneByteAttr[0xA0] = attr(attrByteOp, dstNone, srcMem, attrMov)
	oneByteAttr[0xA1] = attr(dstNone, srcMem, attrMov)
	oneByteAttr[0xA2] = attr(attrByteOp, dstMem, srcNone, attrMov)
	oneByteAttr[0xA3] = attr(dstMem, srcNone, attrMov)
	// MOVSB (0xA4) is byte-width; MOVSW/D/Q (0xA5) follows the operand-size
	// prefix like its CMPS/STOS/LODS/SCAS siblings below.
	oneByteAttr[0xA4] = attr(attrByteOp, dstNone)
	oneByteAttr[0xA5] = attr(dstNone)
	oneByteAttr[0xA6] = attr(attrByteOp, dstNone)
	oneByteAttr[0xA7] = attr(dstNone)
	oneByteAttr[0xA8] = attr(attrByteOp, dstNone, srcImmByte)
	oneByteAttr[0xA9] = attr(dstNone, srcImm)
	oneByteAttr[0xAA] = attr(attrByteOp, dstNone)
	oneByteAttr[0xAB] = attr(dstNone)
	oneByteAttr[0xAC] = attr(attrByteOp, dstNone)
	oneByteAttr[0xAD] = attr(dstNone)
	oneByteAttr[0xAE] = attr(attrByteOp, dstNone)
	oneByteAttr[0xAF] = attr(dstNone)

	fillRun(&oneByteAttr, 0xB0, 8, attr(attrByteOp, dstReg, srcImmByte, attrMov))
	fillRun(&oneByteAttr, 0xB8, 8, attr(dstReg, srcImm, attrMov))

	oneByteAttr[0xC0] = attr(attrByteOp, dstMem, srcImmByte, attrModRM)
	oneByteAttr[0xC1] = attr(dstMem, srcImmByte, attrModRM)
	oneByteAttr[0xC2] = attr(dstNone, srcImm16)
	oneByteAttr[0xC3] = attr(dstNone)
	oneByteAttr[0xC4] = attr(dstReg, srcMem, attrModRM, attrMov) // LES / VEX3
	oneByteAttr[0xC5] = attr(dstReg, srcMem, attrModRM, attrMov) // LDS / VEX2
	oneByteAttr[0xC6] = attr(attrByteOp, dstMem, srcImmByte, attrModRM, attrMov)
	oneByteAttr[0xC7] = attr(dstMem, srcImm, attrModRM, attrMov)
	oneByteAttr[0xC8] = attr(dstNone, srcImm16)
	oneByteAttr[0xC9] = attr(dstNone)
	oneByteAttr[0xCA] = attr(dstNone, srcImm16)
	oneByteAttr[0xCB] = attr(dstNone)
	oneByteAttr[0xCC] = attr(dstNone)
	oneByteAttr[0xCD] = attr(dstNone, srcImmByte)
	oneByteAttr[0xCE] = attr(dstNone)
	oneByteAttr[0xCF] = attr(dstNone)

	fillRun(&oneByteAttr, 0xD0, 4, attr(attrByteOp, dstMem, srcNone, attrModRM))
	oneByteAttr[0xD1] = attr(dstMem, srcNone, attrModRM)
	oneByteAttr[0xD3] = attr(dstMem, srcNone, attrModRM)
	oneByteAttr[0xD4] = attr(dstNone, srcImmByte)
	oneByteAttr[0xD5] = attr(dstNone, srcImmByte)
	oneByteAttr[0xD6] = attr(dstNone)
	oneByteAttr[0xD7] = attr(dstNone)
	fillRun(&oneByteAttr, 0xD8, 8, attr(dstMem, srcNone, attrModRM))

	fillRun(&oneByteAttr, 0xE0, 4, attr(dstNone, srcImmByte))
	fillRun(&oneByteAttr, 0xE4, 2, attr(attrByteOp, dstNone, srcImmByte))
	fillRun(&oneByteAttr, 0xE6, 2, attr(attrByteOp, dstNone, srcImmByte))
	oneByteAttr[0xE8] = attr(dstNone, srcImm)
	oneByteAttr[0xE9] = attr(dstNone, srcImm)
	oneByteAttr[0xEA] = attr(dstNone, srcImm)
	oneByteAttr[0xEB] = attr(dstNone, srcImmByte)
	fillRun(&oneByteAttr, 0xEC, 4, attr(dstNone))

	oneByteAttr[0xF4] = attr(dstNone)
	oneByteAttr[0xF5] = attr(dstNone)
	oneByteAttr[0xF6] = attr(attrByteOp, dstMem, srcImmByte, attrModRM) // Grp3 (test needs imm, others don't - fixed up in §4.C)
	oneByteAttr[0xF7] = attr(dstMem, srcImm, attrModRM)
	fillRun(&oneByteAttr, 0xF8, 6, attr(dstNone))
	oneByteAttr[0xFE] = attr(attrByteOp, dstMem, srcNone, attrModRM)
	oneByteAttr[0xFF] = attr(dstMem, srcNone, attrModRM)

	// Two-byte (0F) escape map: SETcc, BT family, shift-double, MOVZX/MOVSX,
	// IMUL, BSF/BSR all carry ModR/M; Jcc rel16/32 takes only an immediate.
	// CMOVcc (Gv,Ev): no attrMov, since commitOperand always writes register
	// destinations unconditionally - an untaken CMOVcc must write back the
	// register's own unchanged value, which requires dst to have been
	// pre-read via the normal (non-Mov) fetch path.
	fillRun(&twoByteAttr, 0x40, 16, attr(dstReg, srcMem, attrModRM))
	fillRun(&twoByteAttr, 0x80, 16, attr(dstNone, srcImm))
	fillRun(&twoByteAttr, 0x90, 16, attr(attrByteOp, dstMem, srcNone, attrModRM))
	twoByteAttr[0xA3] = attr(dstMem, srcReg, attrModRM)
	twoByteAttr[0xA4] = attr(dstMem, srcReg, attrModRM)
	twoByteAttr[0xA5] = attr(dstMem, srcReg, attrModRM)
	twoByteAttr[0xAB] = attr(dstMem, srcReg, attrModRM)
	twoByteAttr[0xAC] = attr(dstMem, srcReg, attrModRM)
	twoByteAttr[0xAD] = attr(dstMem, srcReg, attrModRM)
	twoByteAttr[0xAF] = attr(dstReg, srcMem, attrModRM)
	twoByteAttr[0xB0] = attr(attrByteOp, dstMem, srcReg, attrModRM) // CMPXCHG
	twoByteAttr[0xB1] = attr(dstMem, srcReg, attrModRM)
	twoByteAttr[0xB3] = attr(dstMem, srcReg, attrModRM)
	twoByteAttr[0xB6] = attr(dstReg, srcMem, attrModRM, attrMov)
	twoByteAttr[0xB7] = attr(dstReg, srcMem16, attrModRM, attrMov)
	twoByteAttr[0xBA] = attr(dstMem, srcImmByte, attrModRM)
	twoByteAttr[0xBB] = attr(dstMem, srcReg, attrModRM)
	twoByteAttr[0xBC] = attr(dstReg, srcMem, attrModRM)
	twoByteAttr[0xBD] = attr(dstReg, srcMem, attrModRM)
	twoByteAttr[0xBE] = attr(dstReg, srcMem, attrModRM, attrMov)
	twoByteAttr[0xBF] = attr(dstReg, srcMem16, attrModRM, attrMov)
	twoByteAttr[0xC0] = attr(attrByteOp, dstMem, srcReg, attrModRM) // XADD
	twoByteAttr[0xC1] = attr(dstMem, srcReg, attrModRM)
	twoByteAttr[0xC7] = attr(dstMem, srcNone, attrModRM, attrMov) // Grp9 CMPXCHG8B/16B: owns its own memory access via Ops.CmpXchg, no generic pre-read/writeback
	fillRun(&twoByteAttr, 0xC8, 8, attr(dstReg)) // BSWAP r32/r64
	twoByteAttr[0x00] = attr(dstMem, srcNone, attrModRM) // Grp6
	twoByteAttr[0x01] = attr(dstMem, srcNone, attrModRM) // Grp7
	twoByteAttr[0x06] = attr(dstNone) // CLTS
	twoByteAttr[0x0B] = attr(dstNone) // UD2
	twoByteAttr[0x18] = attr(dstMem, srcNone, attrModRM) // prefetch hints
	twoByteAttr[0x1F] = attr(dstMem, srcNone, attrModRM) // multi-byte NOP
	// MOV to/from CRn/DRn: the reg field is a control/debug-register
	// index, not a GPR - it's consumed directly as st.Reg by
	// execMovFromCR/DR and execMovToCR/DR, never routed through the
	// generic register-operand path. Only the rm field (always mod==11,
	// always a real GPR) goes through Dst/Src.
	twoByteAttr[0x20] = attr(dstMem, srcNone, attrModRM, attrMov) // MOV r,CRn
	twoByteAttr[0x21] = attr(dstMem, srcNone, attrModRM, attrMov) // MOV r,DRn
	twoByteAttr[0x22] = attr(dstNone, srcMem, attrModRM) // MOV CRn,r
	twoByteAttr[0x23] = attr(dstNone, srcMem, attrModRM) // MOV DRn,r
	twoByteAttr[0x31] = attr(dstNone) // RDTSC
	twoByteAttr[0x05] = attr(dstNone) // SYSCALL
	twoByteAttr[0x07] = attr(dstNone) // SYSRET
	twoByteAttr[0x34] = attr(dstNone) // SYSENTER
	twoByteAttr[0x35] = attr(dstNone) // SYSEXIT
	twoByteAttr[0xA2] = attr(dstNone) // CPUID
	twoByteAttr[0x09] = attr(dstNone) // WBINVD
}
