// introspect.go - post-decode introspection API (spec.md §4.J).
//
// Grounded in the teacher's debug_cpu_x86.go/debug_interface.go
// RegisterInfo/DebuggableCPU pattern, reduced to one flat Insn struct with a
// field per decoded property (not name/width/value/group records), produced
// from a decoded State instead of live CPU registers. Dump formatting uses
// github.com/kr/pretty the way SPEC_FULL.md's AMBIENT STACK section
// specifies, in place of the teacher's own hand-rolled Sprintf table.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

import "github.com/kr/pretty"

// Insn is the read-only introspection view of a decoded instruction,
// returned by State.Introspect() (spec.md §4.J: "length, ModR/M triplet,
// effective address, immediates, opcode classifiers").
type Insn struct {
	Length   int
	Escape   EscapeMap
	Opcode   byte
	HasModRM bool
	Mod, Reg, RM byte
	EA       EffectiveAddress
	Imm1, Imm2 int64
	HasImm1, HasImm2 bool
	IsMov    bool
	IsByteOp bool
	OpBytes, AddrBytes int
	RexPresent bool
	LockPrefix bool
	RepPrefix  byte
	Vex        VexRecord
}

// Introspect returns a value-typed snapshot of st for tooling that wants to
// inspect a decoded instruction without reaching into the live State
// (which Execute is about to consume and FreeState will invalidate).
func (st *State) Introspect() Insn {
	return Insn{
		Length:     int(st.IP - st.StartRIP),
		Escape:     st.Escape,
		Opcode:     byte(st.Opcode),
		HasModRM:   st.modrmLoaded,
		Mod:        st.Mod,
		Reg:        st.Reg,
		RM:         st.RM,
		EA:         st.EA,
		Imm1:       st.Imm1,
		Imm2:       st.Imm2,
		HasImm1:    st.HasImm1,
		HasImm2:    st.HasImm2,
		IsMov:      st.AttrByte&attrMov != 0,
		IsByteOp:   st.AttrByte&attrByteOp != 0,
		OpBytes:    st.OpBytes,
		AddrBytes:  st.AddrBytes,
		RexPresent: st.RexPresent,
		LockPrefix: st.LockPrefix,
		RepPrefix:  st.RepPrefix,
		Vex:        st.Vex,
	}
}

// attrByte looks up the same per-opcode attribute descriptor the decoder
// consulted (attrs.go), so the classifiers below can answer from the
// packed Insn snapshot without widening the struct to carry it directly.
func (i Insn) attrByte() byte {
	switch i.Escape {
	case EscapeNone:
		return oneByteAttr[i.Opcode]
	case Escape0F:
		return twoByteAttr[i.Opcode]
	default:
		return attrModRM
	}
}

// IsMemAccess reports whether the instruction touches memory at all
// (spec.md §4.J is_mem_access), grounded in
// original_source/x86_emulate.c's x86_insn_is_mem_access: excludes LEA
// (address computation only, no load/store) and INVLPG (Grp7 reg=7 - the
// memory *operand* is decoded but never read or written, only its address
// is used), and separately covers the implicit-operand memory opcodes
// that carry no ModR/M at all (string ops, XLAT, the moffs MOV forms).
func (i Insn) IsMemAccess() bool {
	if i.HasModRM {
		if i.EA.IsRegister {
			return false
		}
		if i.Escape == EscapeNone && i.Opcode == 0x8D { // LEA
			return false
		}
		if i.Escape == Escape0F && i.Opcode == 0x01 && i.Reg&7 == 7 { // INVLPG
			return false
		}
		return true
	}
	if i.Escape != EscapeNone {
		return false
	}
	switch {
	case i.Opcode >= 0x6C && i.Opcode <= 0x6F: // INS/OUTS
		return true
	case i.Opcode >= 0xA0 && i.Opcode <= 0xA7: // MOV moffs / MOVS / CMPS
		return true
	case i.Opcode >= 0xAA && i.Opcode <= 0xAF: // STOS/LODS/SCAS
		return true
	case i.Opcode == 0xD7: // XLAT
		return true
	}
	return false
}

// IsMemWrite reports whether the instruction's memory operand (if any) is
// written, not merely read (spec.md §4.J is_mem_write), grounded in
// x86_insn_is_mem_write: a ModR/M-addressed memory destination (attrs.go's
// dstMem tag) counts whenever mod != 3, Grp7's SGDT/SIDT/SMSW forms store
// to memory while LGDT/LIDT/LMSW only load from it, and the no-ModR/M
// string/moffs store forms (INS/MOVS/STOS/MOV moffs<-acc) count too.
func (i Insn) IsMemWrite() bool {
	if i.Escape == Escape0F && i.Opcode == 0x01 { // Grp7
		if i.EA.IsRegister {
			return false
		}
		switch i.Reg & 7 {
		case 0, 1, 4: // SGDT, SIDT, SMSW
			return true
		}
		return false
	}
	if i.HasModRM {
		return !i.EA.IsRegister && i.attrByte()&attrDstMask == dstMem
	}
	if i.Escape != EscapeNone {
		return false
	}
	switch i.Opcode {
	case 0x6C, 0x6D: // INS
		return true
	case 0xA2, 0xA3: // MOV moffs, AL/eAX
		return true
	case 0xA4, 0xA5: // MOVS
		return true
	case 0xAA, 0xAB: // STOS
		return true
	}
	return false
}

// IsPortIO reports whether the instruction is in the port-I/O family
// (spec.md §4.J is_portio): IN/OUT and their string forms INS/OUTS.
func (i Insn) IsPortIO() bool {
	if i.Escape != EscapeNone {
		return false
	}
	switch i.Opcode {
	case 0x6C, 0x6D, 0x6E, 0x6F, // INS/OUTS
		0xE4, 0xE5, 0xE6, 0xE7, // IN/OUT Ib
		0xEC, 0xED, 0xEE, 0xEF: // IN/OUT DX
		return true
	}
	return false
}

// IsCRAccess reports whether the instruction reads or writes control-
// register state (spec.md §4.J is_cr_access): MOV to/from CRn, CLTS, and
// Grp7's SMSW/LMSW.
func (i Insn) IsCRAccess() bool {
	if i.Escape != Escape0F {
		return false
	}
	switch i.Opcode {
	case 0x06: // CLTS
		return true
	case 0x20, 0x22: // MOV r,CRn / MOV CRn,r
		return true
	case 0x01: // Grp7
		switch i.Reg & 7 {
		case 4, 6: // SMSW, LMSW
			return true
		}
	}
	return false
}

// GoString backs %#v / kr/pretty formatting of a decoded instruction for
// debug logging, mirroring the teacher's RegisterInfo-table dump without
// reimplementing its field-by-field Sprintf loop.
func (i Insn) GoString() string {
	return pretty.Sprintf("Insn{Length:%d Escape:%v Opcode:%#02x EA:%# v Imm1:%d Imm2:%d}",
		i.Length, i.Escape, i.Opcode, i.EA, i.Imm1, i.Imm2)
}

// DumpRegs renders a Regs snapshot the way a debugger's register pane would,
// using kr/pretty instead of a hand-rolled field table (SPEC_FULL.md AMBIENT
// STACK, "introspection formatting").
func DumpRegs(r *Regs) string {
	return pretty.Sprint(*r)
}
