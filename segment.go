// segment.go - segmentation & descriptor engine (spec.md §4.G).
//
// The teacher has no protected-mode segmentation at all (IntuitionEngine's
// CPU_X86 runs flat real-mode-only memory access via its X86Bus), so this
// module is grounded directly in original_source/xen/arch/x86/x86_emulate/
// x86_emulate.c's `protmode_load_seg`/`load_seg` pair: the same
// descriptor-fetch, type/present, and canonical-address checks. Segment
// caches are read and written through Ops.ReadSegment/WriteSegment, and
// descriptor bytes are fetched by walking the GDT/LDT through Ops.Read
// (fetchDescriptor).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

// cpl reads the current privilege level from the CS descriptor cache via
// Ops.ReadSegment, since CPL is architecturally "CS.RPL", not anything
// carried directly in Ctxt (spec.md §4.G).
func cpl(ctx *Ctxt, ops *Ops) (uint8, Status) {
	if ops.ReadSegment == nil {
		return 0, UNHANDLEABLE
	}
	var info SegmentInfo
	if s := ops.ReadSegment(SegCS, &info, ctx); s != OKAY {
		return 0, s
	}
	return uint8(info.Selector & 3), OKAY
}

// loadSegment implements spec.md §4.G's segment-load algorithm: NULL-selector
// rules, descriptor fetch via the GDT/LDT walk fetchDescriptor performs,
// type/present checks, and the CPL/RPL/DPL consistency rule for data and
// stack segments.
func loadSegment(ctx *Ctxt, ops *Ops, st *State, seg SegIndex, selector uint16) Status {
	if ops.ReadSegment == nil || ops.WriteSegment == nil {
		return UNHANDLEABLE
	}

	curCPL, s := cpl(ctx, ops)
	if s != OKAY {
		return s
	}

	if selector&0xFFFC == 0 {
		return loadNullSegment(ctx, ops, st, seg, selector, curCPL)
	}

	info, s := fetchDescriptor(ctx, ops, st, selector)
	if s != OKAY {
		return s
	}
	if !info.present() {
		vec := uint8(excNP)
		if seg == SegSS {
			vec = excSS
		}
		return raiseFault(ctx, st, vec, true, uint32(selector)&0xFFF8)
	}

	switch seg {
	case SegSS:
		rpl := uint8(selector & 3)
		if rpl != curCPL || info.dpl() != curCPL || !info.writable() {
			return raiseFault(ctx, st, excGP, true, uint32(selector)&0xFFF8)
		}
	case SegCS:
		if !info.isCode() {
			return raiseFault(ctx, st, excGP, true, uint32(selector)&0xFFF8)
		}
	default:
		if !info.conforming() {
			rpl := uint8(selector & 3)
			maxPriv := curCPL
			if rpl > maxPriv {
				maxPriv = rpl
			}
			if maxPriv > info.dpl() {
				return raiseFault(ctx, st, excGP, true, uint32(selector)&0xFFF8)
			}
		}
	}

	info.Selector = selector
	return ops.WriteSegment(seg, &info, ctx)
}

// fetchDescriptor walks the GDT or LDT (chosen by selector's TI bit) and
// returns the parsed descriptor for selector. A follow-up review caught
// that loadSegment previously called ops.ReadSegment(seg, ...) here -
// "seg" is the *destination register* being loaded, so that re-read the
// descriptor already cached from some earlier load of that register, not
// the one the new selector actually names. Grounded in
// original_source/x86_emulate.c's protmode_load_seg, which walks the
// table the same way (GDTR/LDTR base+limit, then a direct read of the
// 8-byte entry at table_base + index*8) before building its in-core
// descriptor cache; here the table's base/limit come through
// Ops.ReadSegment's SegGDTR/SegLDTR pseudo-segments (spec.md §6) and the
// descriptor bytes through a flat Ops.Read at the resulting linear
// address (SegNone: no further segment base to add, the address is
// already linear).
func fetchDescriptor(ctx *Ctxt, ops *Ops, st *State, selector uint16) (SegmentInfo, Status) {
	table := SegGDTR
	if selector&4 != 0 {
		table = SegLDTR
	}
	var tableInfo SegmentInfo
	if s := ops.ReadSegment(table, &tableInfo, ctx); s != OKAY {
		return SegmentInfo{}, s
	}
	index := uint64(selector) >> 3
	entryOff := index * 8
	if entryOff+7 > uint64(tableInfo.Limit) {
		return SegmentInfo{}, raiseFault(ctx, st, excGP, true, uint32(selector)&0xFFF8)
	}
	if ops.Read == nil {
		return SegmentInfo{}, UNHANDLEABLE
	}
	var buf [8]byte
	if s := ops.Read(SegNone, tableInfo.Base+entryOff, buf[:], 8, ctx); s != OKAY {
		return SegmentInfo{}, s
	}
	return parseDescriptor(buf), OKAY
}

// parseDescriptor decodes a raw 8-byte GDT/LDT segment descriptor into a
// SegmentInfo. The access byte (descriptor byte 5) happens to pack
// type/S/DPL/present in the same bit positions SegmentInfo.Attr already
// uses for them, so it copies across directly; L/D-B/G live at different
// bit offsets in the two layouts and are moved bit-by-bit.
func parseDescriptor(b [8]byte) SegmentInfo {
	limit := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[6]&0xF)<<16
	base := uint64(b[2]) | uint64(b[3])<<8 | uint64(b[4])<<16 | uint64(b[7])<<24
	attr := uint32(b[5])
	if b[6]&0x20 != 0 {
		attr |= segAttrLong
	}
	if b[6]&0x40 != 0 {
		attr |= segAttrDB
	}
	if b[6]&0x80 != 0 { // granular: limit counts 4KiB pages, not bytes
		attr |= segAttrGranular
		limit = limit<<12 | 0xFFF
	}
	return SegmentInfo{Base: base, Limit: limit, Attr: attr}
}

// loadNullSegment implements the NULL-selector special cases spec.md's
// Design Notes call out and SPEC_FULL.md resolves as an Open Question: ES/
// DS/FS/GS may always be loaded NULL; SS may be loaded NULL only in 64-bit
// mode, only when CPL != 3, and only when the selector's RPL equals CPL;
// CS can never be loaded NULL.
func loadNullSegment(ctx *Ctxt, ops *Ops, st *State, seg SegIndex, selector uint16, curCPL uint8) Status {
	switch seg {
	case SegCS:
		return raiseFault(ctx, st, excGP, true, 0)
	case SegSS:
		if !ctx.is64() {
			return raiseFault(ctx, st, excGP, true, 0)
		}
		rpl := uint8(selector & 3)
		if curCPL == 3 || rpl != curCPL {
			return raiseFault(ctx, st, excGP, true, 0)
		}
	}
	info := SegmentInfo{Selector: selector, Attr: segAttrUnusable}
	return ops.WriteSegment(seg, &info, ctx)
}

// checkCanonical validates a 64-bit linear/virtual address is in canonical
// form (bits 48-63 equal bit 47), per spec.md §4.G's long-mode addendum.
func checkCanonical(addr uint64) bool {
	top := addr >> 47
	return top == 0 || top == 0x1FFFF
}

// linearize folds a segment base into an effective-address offset,
// producing the linear address Ops.Read/Write/InsnFetch operate on. In
// 64-bit mode, FS/GS bases are non-zero (per-CPU/TLS); CS/DS/ES/SS are
// always treated as base==0 and limit checks are skipped (spec.md §4.G
// "64-bit mode" note).
func linearize(ctx *Ctxt, ops *Ops, seg SegIndex, offset uint64) (uint64, Status) {
	if !ctx.is64() || seg == SegFS || seg == SegGS {
		if ops.ReadSegment == nil {
			return offset, OKAY
		}
		var info SegmentInfo
		if s := ops.ReadSegment(seg, &info, ctx); s != OKAY {
			return 0, s
		}
		addr := info.Base + offset
		if ctx.is64() {
			if !checkCanonical(addr) {
				return 0, UNHANDLEABLE
			}
			return addr, OKAY
		}
		return addr & 0xFFFFFFFF, OKAY
	}
	return offset, OKAY
}
