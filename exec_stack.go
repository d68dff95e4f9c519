// exec_stack.go - PUSH/POP/PUSHF/POPF/ENTER/LEAVE (spec.md §4.F stack
// group).
//
// Adapted from the teacher's cpu_x86.go push16/pop16/push32/pop32 helper
// pairs, generalized to the width-generic Ops.Read/Write path and to the
// 64-bit mode rule that PUSH/POP always operate at 8 bytes regardless of
// any 0x66 override (spec.md recovered detail, original_source
// `mode_64bit() ? 8 : ...`).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

func stackOperandBytes(ctx *Ctxt, st *State) int {
	if ctx.is64() {
		return 8
	}
	return st.OpBytes
}

func execPush(ctx *Ctxt, ops *Ops, st *State, val uint64) Status {
	bytes := stackOperandBytes(ctx, st)
	newSP := ctx.Regs.RSP - uint64(bytes)
	if ops.Write == nil {
		return UNHANDLEABLE
	}
	var buf [8]byte
	putLE(buf[:], val, bytes)
	if s := ops.Write(SegSS, newSP&stackMask(ctx), buf[:bytes], bytes, ctx); s != OKAY {
		return s
	}
	ctx.Regs.RSP = spWithMask(ctx, newSP)
	return OKAY
}

func execPop(ctx *Ctxt, ops *Ops, st *State) (uint64, Status) {
	bytes := stackOperandBytes(ctx, st)
	if ops.Read == nil {
		return 0, UNHANDLEABLE
	}
	var buf [8]byte
	sp := ctx.Regs.RSP & stackMask(ctx)
	if s := ops.Read(SegSS, sp, buf[:bytes], bytes, ctx); s != OKAY {
		return 0, s
	}
	ctx.Regs.RSP = spWithMask(ctx, ctx.Regs.RSP+uint64(bytes))
	return getLE(buf[:], bytes), OKAY
}

// stackMask/spWithMask implement the 16-bit-stack-segment wraparound rule:
// when StackMode is 16, only the low 16 bits of SP participate in the
// push/pop address and increment (spec.md §4.F, "stack_bytes governs SP
// wraparound, not just the pushed operand's width").
func stackMask(ctx *Ctxt) uint64 {
	if ctx.StackMode == Mode16 {
		return 0xFFFF
	}
	if ctx.StackMode == Mode32 {
		return 0xFFFFFFFF
	}
	return ^uint64(0)
}

func spWithMask(ctx *Ctxt, newSP uint64) uint64 {
	mask := stackMask(ctx)
	return (ctx.Regs.RSP &^ mask) | (newSP & mask)
}

func execPushf(ctx *Ctxt, ops *Ops, st *State) Status {
	flags := ctx.Regs.RFLAGS
	if stackOperandBytes(ctx, st) == 2 {
		flags &= 0xFFFF
	} else {
		flags &^= EFLAGS_RF | EFLAGS_VM
	}
	return execPush(ctx, ops, st, flags)
}

func execPopf(ctx *Ctxt, ops *Ops, st *State) Status {
	v, s := execPop(ctx, ops, st)
	if s != OKAY {
		return s
	}
	bytes := stackOperandBytes(ctx, st)
	mask := widthMask(bytes)
	ctx.Regs.RFLAGS = canonicalizeEFLAGS((ctx.Regs.RFLAGS &^ mask) | (v & mask))
	return OKAY
}

// execEnter implements ENTER Iw,Ib: pushes the old frame pointer, builds a
// display of nesting-level frame pointers, then allocates Iw bytes of
// locals.
func execEnter(ctx *Ctxt, ops *Ops, st *State, allocSize uint16, nestLevel uint8) Status {
	if s := execPush(ctx, ops, st, ctx.Regs.RBP); s != OKAY {
		return s
	}
	frameTemp := ctx.Regs.RSP
	level := nestLevel % 32
	for i := uint8(1); i < level; i++ {
		bytes := stackOperandBytes(ctx, st)
		bpOff := ctx.Regs.RBP - uint64(bytes)*uint64(i)
		var buf [8]byte
		if s := ops.Read(SegSS, bpOff&stackMask(ctx), buf[:bytes], bytes, ctx); s != OKAY {
			return s
		}
		if s := execPush(ctx, ops, st, getLE(buf[:], bytes)); s != OKAY {
			return s
		}
	}
	if level != 0 {
		if s := execPush(ctx, ops, st, frameTemp); s != OKAY {
			return s
		}
	}
	ctx.Regs.RBP = frameTemp
	ctx.Regs.RSP = spWithMask(ctx, ctx.Regs.RSP-uint64(allocSize))
	return OKAY
}

func execLeave(ctx *Ctxt, ops *Ops, st *State) Status {
	ctx.Regs.RSP = spWithMask(ctx, ctx.Regs.RBP)
	v, s := execPop(ctx, ops, st)
	if s != OKAY {
		return s
	}
	bytes := stackOperandBytes(ctx, st)
	ctx.Regs.RBP = (ctx.Regs.RBP &^ widthMask(bytes)) | (v & widthMask(bytes))
	return OKAY
}
