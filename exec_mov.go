// exec_mov.go - MOV family, LEA, MOVZX/MOVSX, XCHG (spec.md §4.F data
// movement group).
//
// Adapted from the teacher's cpu_x86.go MOV-opcode cases, which already
// skip the pre-read for a Mov-attributed destination; generalized here to
// the width-generic Operand path.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

func execMov(st *State) Status {
	st.Dst.val = st.Src.val
	return OKAY
}

// execLEA loads the *address* rather than dereferencing it: the src
// Operand for LEA's ModR/M is the already-resolved EA offset, not a memory
// load (spec.md §4.D "LEA never issues Ops.Read").
func execLEA(st *State) Status {
	st.Dst.val = truncate(st.EA.Offset, st.Dst.Bytes)
	return OKAY
}

// execMovzxMovsx implements MOVZX/MOVSX (0FB6/B7/BE/BF): src is read at its
// own (narrower) width and then zero- or sign-extended into the full
// destination width.
func execMovzxMovsx(st *State, signed bool) Status {
	srcBytes := st.Src.Bytes
	if signed {
		st.Dst.val = uint64(signExtend(st.Src.val, srcBytes)) & widthMask(st.Dst.Bytes)
	} else {
		st.Dst.val = st.Src.val & widthMask(st.Dst.Bytes)
	}
	return OKAY
}

// execXchg swaps dst and src in place; both sides are always written back
// regardless of the writeback-elision rule (spec.md §4.F: XCHG with a
// memory operand is implicitly LOCKed and must always retire its bus
// cycle).
func execXchg(ctx *Ctxt, st *State) Status {
	st.Dst.val, st.Src.val = st.Src.val, st.Dst.val
	ctx.ForceWriteback = true
	return OKAY
}

// execCmpxchg implements CMPXCHG (0FB0/B1): compares the accumulator
// against dst; on match, src is stored to dst; on mismatch, dst's current
// value is loaded into the accumulator. Memory destinations instead go
// through Ops.CmpXchg for atomicity (spec.md's resolved Open Question on
// the mismatch contract).
func execCmpxchg(ctx *Ctxt, ops *Ops, st *State) Status {
	bytes := st.Dst.Bytes
	acc := truncate(ctx.Regs.RAX, bytes)

	if st.Dst.Kind == OperandMemory {
		if ops.CmpXchg == nil {
			return UNHANDLEABLE
		}
		var expect, newVal [8]byte
		putLE(expect[:], acc, bytes)
		putLE(newVal[:], st.Src.val, bytes)
		if s := ops.CmpXchg(st.Dst.Seg, st.Dst.Offset, expect[:bytes], newVal[:bytes], bytes, ctx); s != OKAY {
			return s
		}
		oldVal := getLE(expect[:], bytes)
		_, flags := aluSub(bytes, acc, oldVal, 0)
		if oldVal == acc {
			flags |= EFLAGS_ZF
		} else {
			flags &^= EFLAGS_ZF
			ctx.Regs.RAX = (ctx.Regs.RAX &^ widthMask(bytes)) | oldVal
		}
		commitFlags(ctx, flags)
		return OKAY
	}

	_, flags := aluSub(bytes, acc, st.Dst.val, 0)
	if st.Dst.val == acc {
		st.Dst.val = st.Src.val
	} else {
		ctx.Regs.RAX = (ctx.Regs.RAX &^ widthMask(bytes)) | st.Dst.val
	}
	commitFlags(ctx, flags)
	return OKAY
}

// execGroup9 implements Grp9 (0F C7): CMPXCHG8B/16B selected by ModR/M.reg
// == 1 with a memory operand. RDRAND/RDSEED (reg 6/7, register-only forms)
// are outside this core's representative subset and fall through to
// UNHANDLEABLE, the explicit escape hatch spec.md §7 sanctions.
func execGroup9(ctx *Ctxt, ops *Ops, st *State) Status {
	if st.Reg != 1 || st.Dst.Kind != OperandMemory {
		return UNHANDLEABLE
	}
	if st.RexPresent && st.Rex&0x8 != 0 {
		// CMPXCHG16B needs a 128-bit compare-and-swap; Operand.val is a
		// single uint64 and can't carry it.
		return UNHANDLEABLE
	}
	return execCmpxchg8b(ctx, ops, st)
}

// execCmpxchg8b implements CMPXCHG8B: compares EDX:EAX against the memory
// qword at st.Dst; on match, ECX:EBX is stored; on mismatch, the memory
// qword's actual value is loaded back into EDX:EAX. Always goes through
// Ops.CmpXchg for atomicity, mirroring execCmpxchg's memory path.
func execCmpxchg8b(ctx *Ctxt, ops *Ops, st *State) Status {
	if ops.CmpXchg == nil {
		return UNHANDLEABLE
	}
	expectVal := (ctx.Regs.RDX&0xFFFFFFFF)<<32 | (ctx.Regs.RAX & 0xFFFFFFFF)
	newVal := (ctx.Regs.RCX&0xFFFFFFFF)<<32 | (ctx.Regs.RBX & 0xFFFFFFFF)
	var expect, replacement [8]byte
	putLE(expect[:], expectVal, 8)
	putLE(replacement[:], newVal, 8)
	if s := ops.CmpXchg(st.Dst.Seg, st.Dst.Offset, expect[:], replacement[:], 8, ctx); s != OKAY {
		return s
	}
	actual := getLE(expect[:], 8)
	flags := ctx.Regs.RFLAGS
	if actual == expectVal {
		flags |= EFLAGS_ZF
	} else {
		flags &^= EFLAGS_ZF
		ctx.Regs.RDX = (ctx.Regs.RDX &^ 0xFFFFFFFF) | (actual >> 32)
		ctx.Regs.RAX = (ctx.Regs.RAX &^ 0xFFFFFFFF) | (actual & 0xFFFFFFFF)
	}
	ctx.Regs.RFLAGS = canonicalizeEFLAGS(flags)
	return OKAY
}

func putLE(buf []byte, v uint64, n int) {
	for i := 0; i < n; i++ {
		buf[i] = byte(v)
		v >>= 8
	}
}

func getLE(buf []byte, n int) uint64 {
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}
