// decode_vex.go - VEX2/VEX3/XOP/EVEX prefix decoding (spec.md §4.B stage 4).
//
// The teacher never emulates past the 386, so there is no VEX precedent in
// cpu_x86.go; this is grounded directly in spec.md's own field layout
// (§3 VexRecord) and cross-checked against original_source/'s
// x86_emulate.c vex_override handling for field order (pp/mmmmm folded into
// the mandatory-prefix/escape-map selection, vvvv pre-inverted).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

// decodeVex consumes a C4/C5/8F lead byte already peeked by the caller and
// fills st.Vex. opByte is the byte that was peeked (0xC4, 0xC5 or 0x8F);
// it is only a legacy LES/LDS/POP-group opcode when the following byte's
// top two bits aren't both set to the pattern a VEX/XOP prefix requires -
// that disambiguation (mod==11 required for VEX, reg bits 0-2 nonzero
// required for XOP) is the caller's job before it commits to this path.
func decodeVex(ctx *Ctxt, ops *Ops, st *State, opByte byte) Status {
	switch opByte {
	case 0xC5: // two-byte VEX
		b, s := fetchByte(ctx, ops, st)
		if s != OKAY {
			return s
		}
		st.Vex = VexRecord{
			Present: true,
			RexR:    b&0x80 == 0, // stored inverted in the encoding
			MMMMM:   1,           // implied 0F map
			VVVV:    (^b >> 3) & 0xF,
			L:       b&0x4 != 0,
			PP:      b & 0x3,
		}
		return OKAY

	case 0xC4: // three-byte VEX
		b1, s := fetchByte(ctx, ops, st)
		if s != OKAY {
			return s
		}
		b2, s := fetchByte(ctx, ops, st)
		if s != OKAY {
			return s
		}
		st.Vex = VexRecord{
			Present: true,
			Is3Byte: true,
			RexR:    b1&0x80 == 0,
			RexX:    b1&0x40 == 0,
			RexB:    b1&0x20 == 0,
			MMMMM:   b1 & 0x1F,
			W:       b2&0x80 != 0,
			VVVV:    (^b2 >> 3) & 0xF,
			L:       b2&0x4 != 0,
			PP:      b2 & 0x3,
		}
		return OKAY

	case 0x8F: // XOP
		b1, s := fetchByte(ctx, ops, st)
		if s != OKAY {
			return s
		}
		b2, s := fetchByte(ctx, ops, st)
		if s != OKAY {
			return s
		}
		st.Vex = VexRecord{
			Present: true,
			Is3Byte: true,
			IsXOP:   true,
			RexR:    b1&0x80 == 0,
			RexX:    b1&0x40 == 0,
			RexB:    b1&0x20 == 0,
			MMMMM:   b1 & 0x1F, // 8/9/A select the XOP group tables
			W:       b2&0x80 != 0,
			VVVV:    (^b2 >> 3) & 0xF,
			L:       b2&0x4 != 0,
			PP:      b2 & 0x3,
		}
		return OKAY
	}
	return UNHANDLEABLE
}

// decodeEvex consumes the 62 lead byte (spec.md §4.B "EVEX is merely
// decoded", Non-goal on execution). Three payload bytes follow the 0x62 lead.
func decodeEvex(ctx *Ctxt, ops *Ops, st *State) Status {
	p0, s := fetchByte(ctx, ops, st)
	if s != OKAY {
		return s
	}
	p1, s := fetchByte(ctx, ops, st)
	if s != OKAY {
		return s
	}
	p2, s := fetchByte(ctx, ops, st)
	if s != OKAY {
		return s
	}

	st.Vex = VexRecord{
		Present:   true,
		IsEVEX:    true,
		RexR:      p0&0x80 == 0,
		RexX:      p0&0x40 == 0,
		RexB:      p0&0x20 == 0,
		RexR2:     p0&0x10 == 0,
		MMMMM:     p0 & 0x3,
		W:         p1&0x80 != 0,
		VVVV:      (^p1 >> 3) & 0xF,
		PP:        p1 & 0x3,
		Opmask:    p2 & 0x7,
		ZeroMask:  p2&0x80 != 0,
		Broadcast: p2&0x10 != 0,
		LL:        (p2 >> 5) & 0x3,
	}
	return OKAY
}

// escapeForVex maps a decoded VEX/XOP MMMMM field onto the EscapeMap the
// rest of the decoder dispatches against.
func escapeForVex(v VexRecord) EscapeMap {
	if v.IsXOP {
		switch v.MMMMM {
		case 8:
			return EscapeXOP8
		case 9:
			return EscapeXOP9
		case 0xA:
			return EscapeXOPA
		}
		return EscapeNone
	}
	switch v.MMMMM {
	case 1:
		return Escape0F
	case 2:
		return Escape0F38
	case 3:
		return Escape0F3A
	}
	return EscapeNone
}

// mandatoryPrefixForVex folds VEX.pp into the same mandatory-prefix byte
// space legacy SSE mandatory prefixes use (spec.md §4.B stage 1), so the
// dispatch switch in §4.F does not need two parallel encodings of "which
// mandatory prefix is active".
func mandatoryPrefixForVex(pp byte) byte {
	switch pp {
	case 1:
		return 0x66
	case 2:
		return 0xF3
	case 3:
		return 0xF2
	default:
		return 0
	}
}
