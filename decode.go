// decode.go - top-level instruction decode orchestration (spec.md §4.B).
//
// Adapted from the teacher's cpu_x86.go Execute() prefix/opcode scan loop:
// the same "walk bytes, classify, fall through to ModR/M then immediates"
// shape, generalized to legacy+REX+VEX/EVEX/XOP prefixes and 16/32/64-bit
// address/operand sizing instead of the teacher's fixed 16/32-bit pair.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

const maxInsnLength = 15

// Decode reads one instruction from ctx's current CS:RIP via ops.InsnFetch,
// populating st with everything Execute (and the introspection API, spec.md
// §4.J) need. The caller owns st's lifetime; on return with OKAY the state
// is "live" until FreeState is called (spec.md §3 Lifecycle).
func Decode(ctx *Ctxt, ops *Ops, st *State) Status {
	if ops.InsnFetch == nil {
		return UNHANDLEABLE
	}
	if st.live && debugChecks {
		debugf("Decode called on a live State without FreeState - overwriting")
	}
	st.reset()
	st.live = true
	st.StartRIP = ctx.Regs.RIP
	st.IP = ctx.Regs.RIP

	st.OpBytes = defaultOpBytes(ctx.AddrMode)
	st.AddrBytes = int(ctx.AddrMode)
	st.StackBytes = int(ctx.StackMode)

	if s := decodePrefixes(ctx, ops, st); s != OKAY {
		st.live = false
		return s
	}

	opcode, s := fetchByte(ctx, ops, st)
	if s != OKAY {
		st.live = false
		return s
	}

	switch opcode {
	case 0x0F:
		opcode, s = decodeTwoByteOrEscape(ctx, ops, st)
	case 0xC4, 0xC5:
		// legacy LES/LDS only reachable in non-64-bit mode, and only when
		// the following byte doesn't look like a VEX lead-in (mod bits
		// must read 11 for a real VEX prefix to follow).
		if ctx.is64() || looksLikeVex(ctx, ops, st) {
			s = decodeVex(ctx, ops, st, opcode)
			if s == OKAY {
				st.Escape = escapeForVex(st.Vex)
				st.MandatoryPrefix = mandatoryPrefixForVex(st.Vex.PP)
				if st.Vex.W && ctx.is64() {
					st.OpBytes = 8
				}
				opcode, s = fetchByte(ctx, ops, st)
			}
		} else {
			st.AttrByte = oneByteAttr[opcode]
		}
	case 0x62:
		if ctx.is64() {
			s = decodeEvex(ctx, ops, st)
			if s == OKAY {
				st.Escape = escapeForVex(st.Vex)
				st.MandatoryPrefix = mandatoryPrefixForVex(st.Vex.PP)
				if st.Vex.W {
					st.OpBytes = 8
				}
				opcode, s = fetchByte(ctx, ops, st)
			}
		} else {
			st.AttrByte = oneByteAttr[opcode]
		}
	case 0x8F:
		if looksLikeXop(ctx, ops, st) {
			s = decodeVex(ctx, ops, st, opcode)
			if s == OKAY {
				st.Escape = escapeForVex(st.Vex)
				st.MandatoryPrefix = mandatoryPrefixForVex(st.Vex.PP)
				opcode, s = fetchByte(ctx, ops, st)
			}
		} else {
			st.AttrByte = oneByteAttr[opcode]
		}
	default:
		st.AttrByte = oneByteAttr[opcode]
	}
	if s != OKAY {
		st.live = false
		return s
	}

	if st.Escape == EscapeNone {
		st.AttrByte = oneByteAttr[opcode]
	} else if st.Escape == Escape0F {
		st.AttrByte = twoByteAttr[opcode]
	} else {
		// 0F38/0F3A/XOP group tables are sparse and opcode-specific; §4.F's
		// dispatch switch consults them directly rather than through a
		// third 256-entry table, matching spec.md §4.A's allowance that
		// "maps beyond the primary two may be represented however is
		// convenient". Every opcode in these maps carries ModR/M though,
		// so that much is architecturally fixed regardless of the
		// specific opcode - without it, decode length (invariant 1) would
		// be wrong for the entire escape even before dispatch gets a say.
		st.AttrByte = attrModRM
	}

	st.Opcode = packOpcode(st.Escape, st.MandatoryPrefix, opcode)
	ctx.Opcode = st.Opcode

	if applyOpcodeFixups(ctx, st, opcode); false {
		// fixups never fail decode by themselves; kept as a statement for
		// readability of control flow (see fixup.go).
	}

	if st.AttrByte&attrModRM != 0 {
		if s := decodeModRM(ctx, ops, st); s != OKAY {
			st.live = false
			return s
		}
	}

	if s := decodeImmediates(ctx, ops, st, opcode); s != OKAY {
		st.live = false
		return s
	}

	finalizeRIPRelative(st)

	if st.IP-st.StartRIP > maxInsnLength {
		ctx.Event = PendingEvent{Vector: excGP, Type: EventHardException, HasErrorCode: true, ErrorCode: 0}
		return EXCEPTION
	}

	if ops.Validate != nil {
		if s := ops.Validate(st, ctx); s != OKAY {
			return s
		}
	}

	return OKAY
}

// FreeState releases the "live" marker a debug build uses to catch decode
// reuse without an intervening commit (spec.md §3 Lifecycle).
func FreeState(st *State) { st.live = false }

func defaultOpBytes(mode Mode) int {
	if mode == Mode16 {
		return 2
	}
	return 4
}

// looksLikeVex disambiguates the C4/C5 byte from legacy LES/LDS: a VEX
// prefix's second byte always encodes mod==11 in the position LES/LDS would
// read a ModR/M byte with mod!=11 for a memory operand (LES/LDS require a
// memory source), so peeking the next byte's top two bits is sufficient in
// protected/real mode (spec.md §4.B stage 4 note; matches original_source's
// vex_override disambiguation).
func looksLikeVex(ctx *Ctxt, ops *Ops, st *State) bool {
	var b [1]byte
	if ops.InsnFetch(SegCS, st.IP, b[:], 1, ctx) != OKAY {
		return false
	}
	return b[0]&0xC0 == 0xC0
}

// looksLikeXop disambiguates the 8F byte from legacy POP r/m: a real XOP
// prefix's second byte encodes mod==11 in 64-bit mode (and anywhere else
// too, since POP r/m never reaches ModR/M there in memory form) with
// bits 4:3 nonzero, selecting the XOP opcode-map group 8/9/A
// (spec.md §4.B stage 4; matches original_source's `b==0x8f &&
// (modrm&0x18)` gated by 64-bit mode or mod==3). Gating on mod==3/64-bit
// mode alone, without the bits 4:3 check, would misclassify ordinary `POP r/m`
// forms whose ModR/M happens to set the low mod bits - e.g. `8F C0` (POP
// EAX, mod=11 reg=000 rm=000) has bits 4:3 clear and must stay POP, not XOP.
func looksLikeXop(ctx *Ctxt, ops *Ops, st *State) bool {
	var b [1]byte
	if ops.InsnFetch(SegCS, st.IP, b[:], 1, ctx) != OKAY {
		return false
	}
	mod := b[0] >> 6
	return (ctx.is64() || mod == 3) && b[0]&0x18 != 0
}

// decodeTwoByteOrEscape consumes the byte following a 0x0F lead-in. 0x38 and
// 0x3A select the three-byte escape maps and are themselves followed by the
// real opcode byte; anything else is the two-byte (0F) opcode itself.
func decodeTwoByteOrEscape(ctx *Ctxt, ops *Ops, st *State) (byte, Status) {
	b, s := fetchByte(ctx, ops, st)
	if s != OKAY {
		return 0, s
	}
	switch b {
	case 0x38:
		st.Escape = Escape0F38
	case 0x3A:
		st.Escape = Escape0F3A
	default:
		st.Escape = Escape0F
		return b, OKAY
	}
	return fetchByte(ctx, ops, st)
}
