// exec_branch.go - Jcc/JMP/CALL/RET/LOOP family (spec.md §4.F control-flow
// group).
//
// Adapted from the teacher's cpu_x86.go Jcc-condition switch (the
// checkCondition helper keyed by the low nibble of the opcode), extended
// with near CALL/RET and LOOP/JCXZ which the teacher's 8086/386 core
// already has equivalents for.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

// evalCondition implements the sixteen Jcc/SETcc/CMOVcc condition codes,
// keyed by the low nibble shared across the 70-7F, 0F80-8F, 0F90-9F and
// 0F40-4F opcode rows.
func evalCondition(flags uint64, cc byte) bool {
	cf := flags&EFLAGS_CF != 0
	zf := flags&EFLAGS_ZF != 0
	sf := flags&EFLAGS_SF != 0
	of := flags&EFLAGS_OF != 0
	pf := flags&EFLAGS_PF != 0
	switch cc & 0xF {
	case 0x0:
		return of // JO
	case 0x1:
		return !of // JNO
	case 0x2:
		return cf // JB/JC/JNAE
	case 0x3:
		return !cf // JAE/JNB/JNC
	case 0x4:
		return zf // JE/JZ
	case 0x5:
		return !zf // JNE/JNZ
	case 0x6:
		return cf || zf // JBE/JNA
	case 0x7:
		return !cf && !zf // JA/JNBE
	case 0x8:
		return sf // JS
	case 0x9:
		return !sf // JNS
	case 0xA:
		return pf // JP/JPE
	case 0xB:
		return !pf // JNP/JPO
	case 0xC:
		return sf != of // JL/JNGE
	case 0xD:
		return sf == of // JGE/JNL
	case 0xE:
		return zf || sf != of // JLE/JNG
	case 0xF:
		return !zf && sf == of // JG/JNLE
	}
	return false
}

// execCMOVcc implements CMOVcc (0F 40-4F): Dst already holds its own
// pre-read value (attrs.go deliberately omits attrMov for this opcode
// range), so an untaken condition leaves Dst.val equal to Dst.origVal and
// commitOperand's register writeback is a harmless no-op.
func execCMOVcc(ctx *Ctxt, st *State, cc byte) Status {
	if evalCondition(ctx.Regs.RFLAGS, cc) {
		st.Dst.val = st.Src.val
	}
	return OKAY
}

func execJcc(ctx *Ctxt, st *State, cc byte, rel int64) Status {
	if evalCondition(ctx.Regs.RFLAGS, cc) {
		branchTo(ctx, st, rel)
	}
	return OKAY
}

func branchTo(ctx *Ctxt, st *State, rel int64) {
	target := st.IP + uint64(rel)
	if st.AddrBytes == 2 {
		target &= 0xFFFF
	} else if !ctx.is64() {
		target &= 0xFFFFFFFF
	}
	ctx.Regs.RIP = target
	st.branched = true
}

func execJmpNear(ctx *Ctxt, st *State, rel int64) Status {
	branchTo(ctx, st, rel)
	return OKAY
}

func execJmpAbs(ctx *Ctxt, st *State, target uint64) Status {
	ctx.Regs.RIP = target
	st.branched = true
	return OKAY
}

func execCallNear(ctx *Ctxt, ops *Ops, st *State, rel int64) Status {
	retAddr := st.IP
	if s := execPush(ctx, ops, st, retAddr); s != OKAY {
		return s
	}
	branchTo(ctx, st, rel)
	return OKAY
}

func execCallAbs(ctx *Ctxt, ops *Ops, st *State, target uint64) Status {
	retAddr := st.IP
	if s := execPush(ctx, ops, st, retAddr); s != OKAY {
		return s
	}
	ctx.Regs.RIP = target
	st.branched = true
	return OKAY
}

func execRetNear(ctx *Ctxt, ops *Ops, st *State, popBytes uint16) Status {
	target, s := execPop(ctx, ops, st)
	if s != OKAY {
		return s
	}
	ctx.Regs.RIP = target
	st.branched = true
	if popBytes != 0 {
		ctx.Regs.RSP = spWithMask(ctx, ctx.Regs.RSP+uint64(popBytes))
	}
	return OKAY
}

// execLoop implements LOOP/LOOPE/LOOPNE/JCXZ: the counter register's width
// tracks AddrBytes, not OpBytes (spec.md recovered detail, original_source
// `ad_bytes`-keyed counter).
func execLoop(ctx *Ctxt, st *State, variant byte, rel int64) Status {
	counterBytes := st.AddrBytes
	counter := truncate(ctx.Regs.RCX, counterBytes)
	switch variant {
	case 0xE0, 0xE1, 0xE2: // LOOPNE, LOOPE, LOOP
		counter--
		ctx.Regs.RCX = (ctx.Regs.RCX &^ widthMask(counterBytes)) | (counter & widthMask(counterBytes))
		take := counter != 0
		if variant == 0xE0 {
			take = take && ctx.Regs.RFLAGS&EFLAGS_ZF == 0
		} else if variant == 0xE1 {
			take = take && ctx.Regs.RFLAGS&EFLAGS_ZF != 0
		}
		if take {
			branchTo(ctx, st, rel)
		}
	case 0xE3: // JCXZ
		if counter == 0 {
			branchTo(ctx, st, rel)
		}
	}
	return OKAY
}
