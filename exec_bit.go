// exec_bit.go - Group2 shift/rotate family (ROL/ROR/RCL/RCR/SHL/SHR/SAL/SAR)
// (spec.md §4.F shift group).
//
// Adapted from the teacher's cpu_x86_grp.go Group2 reg-field switch,
// rewired onto the width-generic alu.go primitives.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

// execGroup2 dispatches C0/C1/D0-D3 by ModR/M.reg; count is already
// resolved by the caller (1 for D0/D1, CL for D2/D3, Ib for C0/C1).
func execGroup2(ctx *Ctxt, st *State, count uint8) Status {
	bytes := st.Dst.Bytes
	// x86 masks the count to 5 bits (6 for 64-bit) before use
	if bytes == 8 {
		count &= 63
	} else {
		count &= 31
	}

	switch st.Reg {
	case 0: // ROL
		result, flags := aluRotateLeft(bytes, st.Dst.val, count)
		if count != 0 {
			commitFlags(ctx, flags)
		}
		st.Dst.val = result
	case 1: // ROR
		result, flags := aluRotateRight(bytes, st.Dst.val, count)
		if count != 0 {
			commitFlags(ctx, flags)
		}
		st.Dst.val = result
	case 2: // RCL
		result, flags := rclThroughCarry(ctx, bytes, st.Dst.val, count)
		if count != 0 {
			commitFlags(ctx, flags)
		}
		st.Dst.val = result
	case 3: // RCR
		result, flags := rcrThroughCarry(ctx, bytes, st.Dst.val, count)
		if count != 0 {
			commitFlags(ctx, flags)
		}
		st.Dst.val = result
	case 4, 6: // SHL/SAL (6 is an undocumented alias, same behavior)
		result, flags, ofValid := aluShiftLeft(bytes, st.Dst.val, count)
		if count != 0 {
			if !ofValid {
				flags &^= EFLAGS_OF
				flags |= ctx.Regs.RFLAGS & EFLAGS_OF
			}
			commitFlags(ctx, flags)
		}
		st.Dst.val = result
	case 5: // SHR
		result, flags, ofValid := aluShiftRight(bytes, st.Dst.val, count, false)
		if count != 0 {
			if !ofValid {
				flags &^= EFLAGS_OF
				flags |= ctx.Regs.RFLAGS & EFLAGS_OF
			}
			commitFlags(ctx, flags)
		}
		st.Dst.val = result
	case 7: // SAR
		result, flags, ofValid := aluShiftRight(bytes, st.Dst.val, count, true)
		if count != 0 {
			if !ofValid {
				flags &^= EFLAGS_OF
				flags |= ctx.Regs.RFLAGS & EFLAGS_OF
			}
			commitFlags(ctx, flags)
		}
		st.Dst.val = result
	default:
		return UNHANDLEABLE
	}
	return OKAY
}

// execShldShrd implements SHLD/SHRD (0F A4/A5/AC/AD): a double-precision
// shift of Dst by Src's bits, count taken from an immediate byte (A4/AC)
// or CL (A5/AD). Ported from original_source's shared A4/A5/AC/AD case
// body; LOCK is never legal on this opcode (spec.md §8 invariant 6 - it
// isn't in the LOCKable RMW set).
func execShldShrd(ctx *Ctxt, st *State, opcode byte, isShrd bool) Status {
	if st.LockPrefix {
		return raiseFault(ctx, st, excUD, false, 0)
	}
	width := uint(st.Dst.Bytes * 8)
	var shift uint8
	if opcode&1 != 0 {
		shift = uint8(ctx.Regs.RCX)
	} else {
		shift = uint8(st.Imm1)
	}
	shift &= uint8(width - 1)
	if shift == 0 {
		return OKAY
	}

	dstOrig := truncate(st.Dst.val, st.Dst.Bytes)
	srcVal := st.Src.val
	var result uint64
	switch {
	case uint(shift) == width:
		result = srcVal
	case isShrd:
		result = (dstOrig >> shift) | truncate(srcVal<<(width-uint(shift)), st.Dst.Bytes)
	default: // shld
		result = (dstOrig << shift) | ((srcVal >> (width - uint(shift))) & ((1 << shift) - 1))
	}
	result = truncate(result, st.Dst.Bytes)

	var cfBit uint
	if isShrd {
		cfBit = uint(shift) - 1
	} else {
		cfBit = width - uint(shift)
	}
	var flags uint64
	if (result>>cfBit)&1 != 0 {
		flags |= EFLAGS_CF
	}
	if (result^dstOrig)>>(width-1)&1 != 0 {
		flags |= EFLAGS_OF
	}
	if (result>>(width-1))&1 != 0 {
		flags |= EFLAGS_SF
	}
	if result == 0 {
		flags |= EFLAGS_ZF
	}
	if parityEven(result) {
		flags |= EFLAGS_PF
	}
	commitFlags(ctx, flags)
	st.Dst.val = result
	return OKAY
}

// rclThroughCarry/rcrThroughCarry implement the 9/17/33/65-bit rotate
// (value extended with CF as the extra bit), which alu.go's plain rotates
// don't cover since they don't thread CF through the rotation.
func rclThroughCarry(ctx *Ctxt, bytes int, dst uint64, count uint8) (uint64, uint64) {
	width := uint(bytes * 8)
	mask := widthMask(bytes)
	cf := carryIn(ctx)
	d := dst & mask
	c := uint(count) % (width + 1)
	for i := uint(0); i < c; i++ {
		newCF := (d >> (width - 1)) & 1
		d = ((d << 1) | cf) & mask
		cf = newCF
	}
	var f uint64
	if cf != 0 {
		f |= EFLAGS_CF
	}
	if count == 1 {
		msb := d&signBit(bytes) != 0
		if msb != (cf != 0) {
			f |= EFLAGS_OF
		}
	}
	return d, f
}

func rcrThroughCarry(ctx *Ctxt, bytes int, dst uint64, count uint8) (uint64, uint64) {
	width := uint(bytes * 8)
	mask := widthMask(bytes)
	cf := carryIn(ctx)
	d := dst & mask
	if count == 1 {
		oldMSB := d&signBit(bytes) != 0
		_ = oldMSB
	}
	c := uint(count) % (width + 1)
	msbBefore := d&signBit(bytes) != 0
	for i := uint(0); i < c; i++ {
		newCF := d & 1
		d = (d >> 1) | (cf << (width - 1))
		d &= mask
		cf = newCF
	}
	var f uint64
	if cf != 0 {
		f |= EFLAGS_CF
	}
	if count == 1 {
		msbAfter := d&signBit(bytes) != 0
		if msbAfter != msbBefore {
			f |= EFLAGS_OF
		}
	}
	return d, f
}
