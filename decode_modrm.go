// decode_modrm.go - ModR/M + SIB + displacement effective-address resolution
// (spec.md §4.B stage 5).
//
// Adapted from the teacher's cpu_x86.go decodeModRM/calculateEffectiveAddress
// pair, generalized from 16/32-bit-only addressing to also cover 64-bit long
// mode (REX.X/B extension, RIP-relative disp32).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

func fetchByte(ctx *Ctxt, ops *Ops, st *State) (byte, Status) {
	var b [1]byte
	if s := ops.InsnFetch(SegCS, st.IP, b[:], 1, ctx); s != OKAY {
		return 0, s
	}
	st.IP++
	return b[0], OKAY
}

func fetchBytes(ctx *Ctxt, ops *Ops, st *State, n int) (uint64, Status) {
	var buf [8]byte
	if s := ops.InsnFetch(SegCS, st.IP, buf[:n], n, ctx); s != OKAY {
		return 0, s
	}
	st.IP += uint64(n)
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, OKAY
}

func signExtend(v uint64, bytes int) int64 {
	switch bytes {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	default:
		return int64(v)
	}
}

// decodeModRM reads the ModR/M byte (and SIB/displacement if present),
// resolving either a register operand (EA.IsRegister) or a fully-formed
// memory effective address into st.EA.
func decodeModRM(ctx *Ctxt, ops *Ops, st *State) Status {
	if st.modrmLoaded {
		return OKAY
	}
	b, s := fetchByte(ctx, ops, st)
	if s != OKAY {
		return s
	}
	st.ModRM = b
	st.modrmLoaded = true
	st.Mod = b >> 6
	st.Reg = (b >> 3) & 7
	st.RM = b & 7

	if st.RexPresent && st.Rex&0x4 != 0 { // REX.R
		st.Reg |= 8
	}

	if st.Mod == 3 {
		rm := st.RM
		if st.RexPresent && st.Rex&0x1 != 0 {
			rm |= 8
		}
		st.EA = EffectiveAddress{IsRegister: true, RegField: rm, Seg: SegNone}
		return OKAY
	}

	switch st.AddrBytes {
	case 2:
		return decodeModRM16(ctx, ops, st)
	default:
		return decodeModRM32or64(ctx, ops, st)
	}
}

// decodeModRM16 resolves the legacy 16-bit addressing-mode table (spec.md
// §4.B stage 5, 16-bit row): [BX+SI], [BX+DI], [BP+SI], [BP+DI], [SI], [DI],
// disp16 (mod==0,rm==6) or [BP]+disp, [BX]+disp.
func decodeModRM16(ctx *Ctxt, ops *Ops, st *State) Status {
	var base, index *uint64
	switch st.RM {
	case 0:
		base, index = &ctx.Regs.RBX, &ctx.Regs.RSI
	case 1:
		base, index = &ctx.Regs.RBX, &ctx.Regs.RDI
	case 2:
		base, index = &ctx.Regs.RBP, &ctx.Regs.RSI
	case 3:
		base, index = &ctx.Regs.RBP, &ctx.Regs.RDI
	case 4:
		base = &ctx.Regs.RSI
	case 5:
		base = &ctx.Regs.RDI
	case 6:
		if st.Mod == 0 {
			disp, s := fetchBytes(ctx, ops, st, 2)
			if s != OKAY {
				return s
			}
			st.EA = EffectiveAddress{Seg: defaultDataSeg(st, SegDS), Offset: disp & 0xFFFF}
			return OKAY
		}
		base = &ctx.Regs.RBP
	case 7:
		base = &ctx.Regs.RBX
	}

	var off uint64
	if base != nil {
		off += *base
	}
	if index != nil {
		off += *index
	}

	switch st.Mod {
	case 1:
		d, s := fetchBytes(ctx, ops, st, 1)
		if s != OKAY {
			return s
		}
		off += uint64(signExtend(d, 1))
	case 2:
		d, s := fetchBytes(ctx, ops, st, 2)
		if s != OKAY {
			return s
		}
		off += uint64(signExtend(d, 2))
	}

	defSeg := SegDS
	if st.RM == 2 || st.RM == 3 || (st.RM == 6 && st.Mod != 0) {
		defSeg = SegSS
	}
	st.EA = EffectiveAddress{Seg: defaultDataSeg(st, defSeg), Offset: off & 0xFFFF}
	return OKAY
}

// decodeModRM32or64 resolves 32/64-bit addressing: SIB byte on rm==4,
// disp32-only on mod==0,rm==5 (RIP-relative in 64-bit mode, absolute in
// 32-bit mode), base+disp otherwise.
func decodeModRM32or64(ctx *Ctxt, ops *Ops, st *State) Status {
	rm := st.RM
	if st.RexPresent && st.Rex&0x1 != 0 { // REX.B
		rm |= 8
	}

	var off uint64
	defSeg := SegDS
	ripRelative := false

	if st.RM == 4 { // SIB follows
		sib, s := fetchByte(ctx, ops, st)
		if s != OKAY {
			return s
		}
		st.SIB = sib
		st.sibLoaded = true
		scale := sib >> 6
		index := (sib >> 3) & 7
		base := sib & 7
		if st.RexPresent && st.Rex&0x2 != 0 { // REX.X
			index |= 8
		}
		if st.RexPresent && st.Rex&0x1 != 0 { // REX.B
			base |= 8
		}
		if index != 4 { // ESP/RSP encodes "no index"
			off += *ctx.Regs.ptr(int(index)) << scale
		}
		if base&7 == 5 && st.Mod == 0 {
			d, s := fetchBytes(ctx, ops, st, 4)
			if s != OKAY {
				return s
			}
			off += uint64(signExtend(d, 4))
		} else {
			off += *ctx.Regs.ptr(int(base))
			if base&7 == 4 || base&7 == 5 {
				defSeg = SegSS
			}
		}
	} else if st.RM == 5 && st.Mod == 0 {
		d, s := fetchBytes(ctx, ops, st, 4)
		if s != OKAY {
			return s
		}
		if ctx.is64() {
			// RIP-relative: base is the address of the *next* instruction,
			// not resolvable until the whole instruction (including any
			// trailing immediate) has been decoded; st.IP already points
			// past this displacement, so callers finalize via
			// finalizeRIPRelative once decode completes.
			ripRelative = true
			off = uint64(signExtend(d, 4))
		} else {
			off = d
		}
	} else {
		off = *ctx.Regs.ptr(int(rm))
		if rm&7 == 5 {
			defSeg = SegSS
		}
	}

	switch st.Mod {
	case 1:
		d, s := fetchBytes(ctx, ops, st, 1)
		if s != OKAY {
			return s
		}
		off += uint64(signExtend(d, 1))
	case 2:
		d, s := fetchBytes(ctx, ops, st, 4)
		if s != OKAY {
			return s
		}
		off += uint64(signExtend(d, 4))
	}

	if ripRelative {
		st.ripRelDisp = off
		st.ripRelative = true
	}
	st.EA = EffectiveAddress{Seg: defaultDataSeg(st, defSeg), Offset: truncate(off, st.AddrBytes)}
	return OKAY
}

func defaultDataSeg(st *State, def SegIndex) SegIndex {
	if st.SegOverride != SegNone {
		return st.SegOverride
	}
	return def
}

// finalizeRIPRelative adds the final instruction length (now known) to a
// RIP-relative displacement recorded mid-decode (spec.md §4.B stage 5 note:
// "relative to the address of the byte following the instruction").
func finalizeRIPRelative(st *State) {
	if !st.ripRelative {
		return
	}
	st.EA.Offset = truncate(st.IP+st.ripRelDisp, st.AddrBytes) // st.IP is bumped again for any trailing immediate before this runs
}
