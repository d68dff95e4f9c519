// operand.go - src/dst operand materialization (spec.md §4.D).
//
// Adapted from the teacher's cpu_x86.go getRM8/getRM16/getRM32 and
// getReg8/getReg16/getReg32 accessor pairs, folded into width-generic
// fetch/store helpers operating on the Operand tagged union instead of the
// teacher's per-width function triplication.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

// regOperand builds a register Operand for GPR index idx at the given
// width, honoring the legacy AH/BH/CH/DH high-byte encoding (only reachable
// with ByteOp width, no REX prefix, reg index 4-7).
func regOperand(ctx *Ctxt, st *State, idx int, bytes int) Operand {
	if bytes == 1 && !st.RexPresent && idx >= 4 && idx <= 7 {
		return Operand{Kind: OperandRegister, Bytes: 1, regPtr: ctx.Regs.ptr(idx - 4), reg8High: true}
	}
	return Operand{Kind: OperandRegister, Bytes: bytes, regPtr: ctx.Regs.ptr(idx)}
}

func readOperandValue(op *Operand) uint64 {
	if op.Kind != OperandRegister {
		return truncate(op.val, op.Bytes)
	}
	v := *op.regPtr
	if op.reg8High {
		return (v >> 8) & 0xFF
	}
	return truncate(v, op.Bytes)
}

func truncate(v uint64, bytes int) uint64 {
	switch bytes {
	case 1:
		return v & 0xFF
	case 2:
		return v & 0xFFFF
	case 4:
		return v & 0xFFFFFFFF
	default:
		return v
	}
}

// fetchOperands resolves st.Src/st.Dst from the already-decoded ModR/M /
// EA / attribute fields, reading memory through ops.Read when the
// destination or source is memory-indirect, per spec.md §4.D: "dst is
// always read first unless the opcode is Mov-attributed" (so a write-only
// destination doesn't trigger a spurious read side effect on MMIO).
//
// Routing follows the attribute byte's dst/src-kind fields (attrs.go)
// rather than a fixed rm=dst/reg=src mapping: plenty of opcodes (MOV
// Gv,Ev; IMUL Gv,Ev; MOVZX/MOVSX; BSF/BSR; LEA) put the register operand
// on the *destination* side, and ALU-immediate/MOV-immediate forms don't
// have a reg-field source operand at all.
func fetchOperands(ctx *Ctxt, ops *Ops, st *State) Status {
	width := st.OpBytes
	if st.operandBytesOverride == 1 {
		width = 1
	}

	rm := operandFromModRM(ctx, st, width, true)
	reg := operandFromReg(ctx, st, width)

	if st.AttrByte&attrDstMask == dstReg {
		st.Dst = reg
	} else {
		st.Dst = rm
	}

	switch st.AttrByte & attrSrcMask {
	case srcReg:
		st.Src = reg
	case srcMem:
		st.Src = rm
	case srcMem16:
		st.Src = operandFromModRM(ctx, st, 2, false)
	case srcImm, srcImmByte, srcImm16:
		st.Src = immediateOperand(st.Imm1, width)
	default:
		st.Src = Operand{}
	}

	// LEA's ModR/M always resolves to a memory form (EA computation, never
	// a register), but its "source" is the address itself, not a load
	// through it (spec.md §4.D "LEA never issues Ops.Read").
	if isLEA(st) {
		st.Src = Operand{Kind: OperandImmediate, Bytes: st.Dst.Bytes, val: truncate(st.EA.Offset, st.Dst.Bytes)}
	}

	st.DstIsMov = st.AttrByte&attrMov != 0

	if !st.DstIsMov && !isInvlpg(st) {
		if s := loadOperand(ctx, ops, st, &st.Dst); s != OKAY {
			return s
		}
	}
	if s := loadOperand(ctx, ops, st, &st.Src); s != OKAY {
		return s
	}
	st.Dst.origVal = st.Dst.val
	return OKAY
}

// isLEA reports whether st is the one-byte LEA opcode (0x8D), the only
// instruction whose ModR/M "source" is an address rather than a value.
func isLEA(st *State) bool {
	return st.Escape == EscapeNone && byte(st.Opcode) == 0x8D
}

// isInvlpg reports whether st is INVLPG (Grp7 0F 01 /7, mod != 3): its
// ModR/M operand supplies an address for the host to invalidate, never a
// value to read or write back (spec.md §4.J's is_mem_access exclusion for
// this opcode - see introspect.go's IsMemAccess), so fetchOperands must
// not issue the generic pre-read a dstMem tag otherwise demands.
func isInvlpg(st *State) bool {
	return st.Escape == Escape0F && byte(st.Opcode) == 0x01 && !st.EA.IsRegister && st.Reg&7 == 7
}

// operandFromModRM builds the rm-field operand (register or memory)
// according to st.EA, which decodeModRM already resolved.
func operandFromModRM(ctx *Ctxt, st *State, width int, isDst bool) Operand {
	if st.EA.IsRegister {
		idx := int(st.EA.RegField)
		return regOperand(ctx, st, idx, width)
	}
	return Operand{Kind: OperandMemory, Bytes: width, Seg: st.EA.Seg, Offset: st.EA.Offset}
}

// operandFromReg builds the reg-field operand (always a register).
func operandFromReg(ctx *Ctxt, st *State, width int) Operand {
	return regOperand(ctx, st, int(st.Reg), width)
}

func loadOperand(ctx *Ctxt, ops *Ops, st *State, op *Operand) Status {
	if op.Kind != OperandMemory {
		op.val = readOperandValue(op)
		return OKAY
	}
	if ops.Read == nil {
		return UNHANDLEABLE
	}
	var buf [8]byte
	if s := ops.Read(op.Seg, op.Offset, buf[:op.Bytes], op.Bytes, ctx); s != OKAY {
		return s
	}
	var v uint64
	for i := op.Bytes - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	op.val = v
	return OKAY
}

// immediateOperand wraps a decoded immediate as a source Operand (spec.md
// §4.D "an Imm src never round-trips through Ops").
func immediateOperand(v int64, bytes int) Operand {
	return Operand{Kind: OperandImmediate, Bytes: bytes, val: truncate(uint64(v), bytes)}
}

// fetchImplicitOperands builds st.Dst/st.Src for the opcodes that encode
// their operand directly in the opcode byte rather than through a ModR/M
// byte: the AL,Ib / eAX,Iv ALU-immediate singletons, TEST AL/eAX,Ib/Iv,
// INC/DEC r16/r32 (0x40-0x4F, legacy mode only), and MOV r,imm
// (0xB0-0xBF). None of these ever touch memory, so there is no Ops
// callback or failure path to thread through.
func fetchImplicitOperands(ctx *Ctxt, st *State, opcode byte) {
	if st.Escape != EscapeNone {
		return
	}
	switch {
	case opcode <= 0x3D && isAluRow(opcode) && opcode&7 >= 4:
		width := st.OpBytes
		if opcode&1 == 0 {
			width = 1
		}
		st.Dst = regOperand(ctx, st, 0, width)
		st.Dst.val = readOperandValue(&st.Dst)
		st.Src = immediateOperand(st.Imm1, width)
	case opcode == 0xA8 || opcode == 0xA9:
		width := st.OpBytes
		if opcode == 0xA8 {
			width = 1
		}
		st.Dst = regOperand(ctx, st, 0, width)
		st.Dst.val = readOperandValue(&st.Dst)
		st.Src = immediateOperand(st.Imm1, width)
	case opcode >= 0x40 && opcode <= 0x4F:
		st.Dst = regOperand(ctx, st, int(opcode&7), st.OpBytes)
		st.Dst.val = readOperandValue(&st.Dst)
	case opcode >= 0xB0 && opcode <= 0xBF:
		width := st.OpBytes
		switch {
		case opcode <= 0xB7:
			width = 1
		case st.RexPresent && st.Rex&0x8 != 0:
			width = 8 // MOV r64,imm64 carries a full 8-byte immediate
		}
		idx := int(opcode & 7)
		if st.RexPresent && st.Rex&0x1 != 0 { // REX.B
			idx += 8
		}
		st.Dst = regOperand(ctx, st, idx, width)
		st.DstIsMov = true
		st.Src = immediateOperand(st.Imm1, width)
	default:
		return
	}
	st.Dst.origVal = st.Dst.val
}

// fetchMoffsOperand builds Dst/Src for the A0-A3 "MOV AL/eAX, moffs" /
// "MOV moffs, AL/eAX" forms, whose memory address was already fetched as
// st.Imm1 during decode (fixup.go) since they carry no ModR/M byte.
func fetchMoffsOperand(ctx *Ctxt, ops *Ops, st *State, opcode byte) Status {
	if st.Escape != EscapeNone || opcode < 0xA0 || opcode > 0xA3 {
		return OKAY
	}
	bytes := st.OpBytes
	if opcode == 0xA0 || opcode == 0xA2 {
		bytes = 1
	}
	mem := Operand{Kind: OperandMemory, Bytes: bytes, Seg: defaultDataSeg(st, SegDS), Offset: uint64(st.Imm1)}
	acc := regOperand(ctx, st, 0, bytes)
	st.DstIsMov = true
	if opcode == 0xA0 || opcode == 0xA1 { // load AL/eAX <- moffs
		st.Dst = acc
		st.Src = mem
	} else { // store moffs <- AL/eAX
		st.Dst = mem
		st.Src = acc
	}
	if s := loadOperand(ctx, ops, st, &st.Src); s != OKAY {
		return s
	}
	st.Dst.val = readOperandValue(&st.Dst)
	st.Dst.origVal = st.Dst.val
	return OKAY
}
