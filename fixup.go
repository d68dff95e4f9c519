// fixup.go - legacy prefix scan (spec.md §4.B stage 1-3) and post-decode
// fix-ups (spec.md §4.C): operand-size fold-in, the Group3 TEST immediate
// split, immediate-size resolution.
//
// Adapted from the teacher's cpu_x86.go prefix-scanning loop at the top of
// Execute() (the `for { b := fetch(); switch b { case 0x66: ... } }` dance)
// and its Group1/Group3 reg-field switches in cpu_x86_grp.go.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

const maxPrefixBytes = 14 // architectural limit minus the opcode byte itself

// decodePrefixes consumes legacy prefix bytes (segment overrides, LOCK,
// REP/REPNE, operand-size, address-size) and the REX byte if present,
// leaving st.IP positioned at the opcode byte. Mirrors spec.md §4.B
// stages 1-3.
func decodePrefixes(ctx *Ctxt, ops *Ops, st *State) Status {
	st.SegOverride = SegNone
	count := 0
	for {
		if count > maxPrefixBytes {
			ctx.Event = PendingEvent{Vector: excGP, Type: EventHardException, HasErrorCode: true}
			return EXCEPTION
		}
		b, s := fetchByte(ctx, ops, st)
		if s != OKAY {
			return s
		}
		switch b {
		case 0x26:
			st.SegOverride = SegES
		case 0x2E:
			st.SegOverride = SegCS
		case 0x36:
			st.SegOverride = SegSS
		case 0x3E:
			st.SegOverride = SegDS
		case 0x64:
			st.SegOverride = SegFS
		case 0x65:
			st.SegOverride = SegGS
		case 0x66:
			st.OpSizeOverride = true
			if st.MandatoryPrefix == 0 {
				st.MandatoryPrefix = 0x66
			}
		case 0x67:
			st.AddrSizeOverride = true
		case 0xF0:
			st.LockPrefix = true
		case 0xF2:
			st.RepPrefix = 2
			st.MandatoryPrefix = 0xF2
		case 0xF3:
			st.RepPrefix = 1
			st.MandatoryPrefix = 0xF3
		default:
			if ctx.is64() && b&0xF0 == 0x40 {
				st.Rex = b
				st.RexPresent = true
				count++
				continue
			}
			st.IP--
			goto resolved
		}
		count++
	}
resolved:
	st.AddrBytes = resolveAddrBytes(ctx, st)
	st.OpBytes = resolveOpBytes(ctx, st)
	return OKAY
}

func resolveAddrBytes(ctx *Ctxt, st *State) int {
	base := int(ctx.AddrMode)
	if st.AddrSizeOverride {
		switch base {
		case 16:
			return 4
		case 32:
			return 2
		case 64:
			return 4
		}
	}
	if base == 64 {
		return 8
	}
	return base
}

func resolveOpBytes(ctx *Ctxt, st *State) int {
	if st.RexPresent && st.Rex&0x8 != 0 { // REX.W
		return 8
	}
	base := ctx.AddrMode
	wide := base != Mode16
	if st.OpSizeOverride {
		wide = !wide
	}
	if wide {
		return 4
	}
	return 2
}

// applyOpcodeFixups records the two opcode-dependent adjustments made
// before ModR/M is read: Group3 (F6/F7) is flagged so decodeImmediates can
// fetch TEST's immediate once ModR/M.reg is known, and the attribute
// table's attrByteOp bit forces a 1-byte operand width. Group sub-opcodes
// are selected by ModR/M.reg at dispatch time, not here.
func applyOpcodeFixups(ctx *Ctxt, st *State, opcode byte) {
	if st.Escape == EscapeNone {
		switch opcode {
		case 0xF6, 0xF7: // Group3: TEST needs an immediate, NOT/NEG/MUL/IMUL/DIV/IDIV don't
			st.group3Pending = true
		}
	}
	if st.AttrByte&attrByteOp != 0 {
		st.operandBytesOverride = 1
	}
}

// decodeImmediates resolves and fetches any trailing immediate bytes, using
// the attribute byte's src-kind field together with the Group3 TEST fixup
// (spec.md §4.C) and the few opcodes whose immediate size is fixed
// regardless of operand size (Ib forms).
func decodeImmediates(ctx *Ctxt, ops *Ops, st *State, opcode byte) Status {
	if st.Escape == EscapeNone && opcode >= 0xA0 && opcode <= 0xA3 {
		// moffs form: a direct address of AddrBytes width follows the
		// opcode, never sign-extended (it's a linear offset, not a
		// signed displacement).
		v, s := fetchBytes(ctx, ops, st, st.AddrBytes)
		if s != OKAY {
			return s
		}
		st.Imm1, st.Imm1Bytes, st.HasImm1 = int64(v), st.AddrBytes, true
		return OKAY
	}
	if st.group3Pending {
		// ModR/M.reg 0 or 1 (TEST) takes an immediate; 2-7 (NOT/NEG/MUL/
		// IMUL/DIV/IDIV) don't.
		if st.Reg == 0 || st.Reg == 1 {
			return fetchImmediate(ctx, ops, st, immBytesFor(st, opcode))
		}
		return OKAY
	}
	if st.Escape == Escape0F && (opcode == 0xA4 || opcode == 0xAC) {
		// SHLD/SHRD Ib forms carry a shift-count byte after ModR/M; the CL
		// forms (0xA5/0xAD) take their count from %cl and have none. This
		// doesn't fit attrSrcMask's srcReg tag (the "bits" register source
		// already occupies that slot), so it's resolved here by opcode.
		return fetchImmediate(ctx, ops, st, 1)
	}
	if st.Escape == EscapeNone {
		switch opcode {
		case 0x69, 0x6B:
			// IMUL Gv,Ev,Iz/Ib: the Ev source occupies attrSrcMask, so the
			// trailing immediate is resolved here by opcode.
			if opcode == 0x6B {
				return fetchImmediate(ctx, ops, st, 1)
			}
			return fetchImmediate(ctx, ops, st, immBytesFor(st, opcode))
		case 0xC8: // ENTER Iw,Ib: frame size (Imm1), then nesting level (Imm2)
			if s := fetchImmediate(ctx, ops, st, 2); s != OKAY {
				return s
			}
			return fetchImmediate(ctx, ops, st, 1)
		case 0x9A, 0xEA: // CALL/JMP far ptr16:16/32: offset (Imm1), then selector (Imm2)
			if s := fetchImmediate(ctx, ops, st, immBytesFor(st, opcode)); s != OKAY {
				return s
			}
			return fetchImmediate(ctx, ops, st, 2)
		}
	}

	kind := int(st.AttrByte&attrSrcMask) >> attrSrcShift
	switch kind << attrSrcShift {
	case srcImm:
		return fetchImmediate(ctx, ops, st, immBytesFor(st, opcode))
	case srcImmByte:
		return fetchImmediate(ctx, ops, st, 1)
	case srcImm16:
		return fetchImmediate(ctx, ops, st, 2)
	}
	return OKAY
}

// immBytesFor resolves how many immediate bytes follow: immediates never
// widen past 32 bits regardless of operand size, except MOV r64,imm64
// (0xB8-0xBF with REX.W), the one opcode that carries a full 8-byte
// immediate.
func immBytesFor(st *State, opcode byte) int {
	if st.operandBytesOverride == 1 {
		return 1
	}
	if st.Escape == EscapeNone && opcode >= 0xB8 && opcode <= 0xBF && st.OpBytes == 8 {
		return 8
	}
	if st.OpBytes == 8 {
		return 4
	}
	return st.OpBytes
}

func fetchImmediate(ctx *Ctxt, ops *Ops, st *State, n int) Status {
	v, s := fetchBytes(ctx, ops, st, n)
	if s != OKAY {
		return s
	}
	if !st.HasImm1 {
		st.Imm1 = signExtend(v, n)
		st.Imm1Bytes = n
		st.HasImm1 = true
		return OKAY
	}
	st.Imm2 = signExtend(v, n)
	st.Imm2Bytes = n
	st.HasImm2 = true
	return OKAY
}
