// writeback.go - commit the decoded destination operand back to its
// register or memory location (spec.md §4.I).
//
// Adapted from the teacher's cpu_x86.go setRM8/setRM16/setRM32 trio,
// collapsed into one width-generic path and extended with the
// writeback-elision optimization spec.md §4.I calls out ("dst.val ==
// dst.orig_val" skip, disabled by Ctxt.ForceWriteback).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

// commitOperand writes op.val back to its backing store. Register
// destinations always commit (cheap, and a 32-bit GPR write must still
// zero-extend into the full 64-bit register per spec.md's own invariant on
// implicit upper-half clearing). Memory destinations elide the write when
// the value is unchanged and the instruction didn't demand an observable
// side effect (ForceWriteback), matching a LOCKed read-modify-write that
// happens to compute a no-op still needing to retire its bus cycle.
//
// A LOCKed memory destination goes through ops.CmpXchg instead of
// ops.Write (spec.md §4.I: "Memory LOCK: ops.cmpxchg(seg, off, orig, new,
// bytes) - caller is responsible for retry semantics"), comparing against
// op.origVal - the value the read-modify-write was actually computed
// from. Atomicity, and signalling back when another guest CPU raced the
// same location, is the callee's job (spec.md §4.I ownership list); this
// function's part of "caller is responsible" is simply to propagate
// whatever Status ops.CmpXchg returns (RETRY included) up to Execute's own
// caller rather than silently falling back to a non-atomic ops.Write.
func commitOperand(ctx *Ctxt, ops *Ops, op *Operand, lockPrefix, forceWriteback bool) Status {
	if op.Kind == OperandRegister {
		writeRegister(op)
		return OKAY
	}
	if op.Kind != OperandMemory {
		return OKAY
	}
	if op.val == op.origVal && !forceWriteback {
		return OKAY
	}
	var buf [8]byte
	v := op.val
	for i := 0; i < op.Bytes; i++ {
		buf[i] = byte(v)
		v >>= 8
	}
	if lockPrefix {
		if ops.CmpXchg == nil {
			return UNHANDLEABLE
		}
		var old [8]byte
		o := op.origVal
		for i := 0; i < op.Bytes; i++ {
			old[i] = byte(o)
			o >>= 8
		}
		return ops.CmpXchg(op.Seg, op.Offset, old[:op.Bytes], buf[:op.Bytes], op.Bytes, ctx)
	}
	if ops.Write == nil {
		return UNHANDLEABLE
	}
	return ops.Write(op.Seg, op.Offset, buf[:op.Bytes], op.Bytes, ctx)
}

func writeRegister(op *Operand) {
	if op.reg8High {
		*op.regPtr = (*op.regPtr &^ 0xFF00) | ((op.val & 0xFF) << 8)
		return
	}
	switch op.Bytes {
	case 1:
		*op.regPtr = (*op.regPtr &^ 0xFF) | (op.val & 0xFF)
	case 2:
		*op.regPtr = (*op.regPtr &^ 0xFFFF) | (op.val & 0xFFFF)
	case 4:
		// A 32-bit GPR write always zero-extends to the full 64-bit
		// register, even in 64-bit mode (spec.md invariant: "the upper 32
		// bits of a GPR are always cleared by a 32-bit write").
		*op.regPtr = op.val & 0xFFFFFFFF
	default:
		*op.regPtr = op.val
	}
}

// commitFlags folds a freshly computed arithmetic-flags value into
// Ctxt.Regs.RFLAGS, touching only the "arithmetic six" bits the ALU
// primitives own (spec.md §4.E/§4.I) and re-canonicalizing the reserved
// bits on every write (invariant 5).
func commitFlags(ctx *Ctxt, newFlags uint64) {
	ctx.Regs.RFLAGS = canonicalizeEFLAGS((ctx.Regs.RFLAGS &^ arithStatusMask) | (newFlags & arithStatusMask))
}
