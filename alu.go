// alu.go - width-generic ALU/shift primitives and flag computation
// (spec.md §4.E), implemented as the "portable software re-implementation"
// spec.md §9 sanctions (option b).
//
// Grounded on the teacher's setFlagsArith8/16/32 and setFlagsLogic8/16/32
// triplets in cpu_x86_ops.go: same CF/PF/AF/ZF/SF/OF derivation per
// operation class, generalized here to a single width-parametric function
// per class instead of three near-identical copies (spec.md §9's own
// called-out simplification opportunity).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

import "math/bits"

func signBit(bytes int) uint64 { return uint64(1) << (bytes*8 - 1) }
func widthMask(bytes int) uint64 {
	if bytes == 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (bytes * 8)) - 1
}

func parityEven(b uint64) bool {
	b ^= b >> 4
	b ^= b >> 2
	b ^= b >> 1
	return b&1 == 0
}

func flagsFromResult(bytes int, result, cf uint64, af, of bool) uint64 {
	mask := widthMask(bytes)
	r := result & mask
	var f uint64
	if cf != 0 {
		f |= EFLAGS_CF
	}
	if parityEven(r & 0xFF) {
		f |= EFLAGS_PF
	}
	if af {
		f |= EFLAGS_AF
	}
	if r == 0 {
		f |= EFLAGS_ZF
	}
	if r&signBit(bytes) != 0 {
		f |= EFLAGS_SF
	}
	if of {
		f |= EFLAGS_OF
	}
	return f
}

// aluAdd computes dst+src (or dst+src+carryIn for ADC) and returns the
// truncated result plus the arithmetic flags.
func aluAdd(bytes int, dst, src uint64, carryIn uint64) (uint64, uint64) {
	mask := widthMask(bytes)
	d, s := dst&mask, src&mask
	sum := d + s + carryIn
	result := sum & mask
	cf := uint64(0)
	if sum > mask || (bytes == 8 && (sum < d || (carryIn != 0 && sum == d))) {
		cf = 1
	}
	af := (d&0xF)+(s&0xF)+carryIn > 0xF
	dSign := d&signBit(bytes) != 0
	sSign := s&signBit(bytes) != 0
	rSign := result&signBit(bytes) != 0
	of := dSign == sSign && rSign != dSign
	return result, flagsFromResult(bytes, result, cf, af, of)
}

// aluSub computes dst-src (or dst-src-borrowIn for SBB/CMP) and returns the
// truncated result plus the arithmetic flags.
func aluSub(bytes int, dst, src uint64, borrowIn uint64) (uint64, uint64) {
	mask := widthMask(bytes)
	d, s := dst&mask, src&mask
	diff := d - s - borrowIn
	result := diff & mask
	cf := uint64(0)
	if d < s+borrowIn || (borrowIn == 1 && s == mask) {
		cf = 1
	}
	af := (d & 0xF) < (s&0xF)+borrowIn
	dSign := d&signBit(bytes) != 0
	sSign := s&signBit(bytes) != 0
	rSign := result&signBit(bytes) != 0
	of := dSign != sSign && rSign != dSign
	return result, flagsFromResult(bytes, result, cf, af, of)
}

// aluLogic computes the result of AND/OR/XOR, which always clear CF/OF and
// leave AF undefined (spec.md §4.E "logic group": we zero it, matching the
// teacher's own setFlagsLogic* choice).
func aluLogic(bytes int, result uint64) uint64 {
	return flagsFromResult(bytes, result, 0, false, false)
}

// aluShiftLeft implements SHL/SAL for a 1..31/63-bit count, with the
// architecturally-defined-only-for-count==1 OF rule (spec.md §4.E shift
// group edge case).
func aluShiftLeft(bytes int, dst uint64, count uint8) (uint64, uint64, bool) {
	mask := widthMask(bytes)
	d := dst & mask
	if count == 0 {
		return d, 0, false
	}
	width := uint8(bytes * 8)
	var cf uint64
	if count <= width {
		cf = (d >> (width - count)) & 1
	}
	result := (d << count) & mask
	ofValid := count == 1
	of := ofValid && (result&signBit(bytes) != 0) != (cf != 0)
	return result, flagsFromResult(bytes, result, cf, false, of), ofValid
}

// aluShiftRight implements SHR (logical) and SAR (arithmetic, signExtend)
// for a 1..31/63-bit count.
func aluShiftRight(bytes int, dst uint64, count uint8, arith bool) (uint64, uint64, bool) {
	mask := widthMask(bytes)
	d := dst & mask
	if count == 0 {
		return d, 0, false
	}
	var cf uint64
	if count >= 1 {
		cf = (d >> (count - 1)) & 1
	}
	var result uint64
	if arith {
		result = uint64(signExtend(d, bytes)>>count) & mask
	} else {
		result = (d >> count) & mask
	}
	ofValid := count == 1
	var of bool
	if ofValid {
		if arith {
			of = false
		} else {
			of = d&signBit(bytes) != 0
		}
	}
	return result, flagsFromResult(bytes, result, cf, false, of), ofValid
}

// aluRotateLeft/aluRotateRight implement ROL/ROR; CF becomes the last bit
// rotated out, OF is defined only for count==1 (spec.md §4.E shift group).
func aluRotateLeft(bytes int, dst uint64, count uint8) (uint64, uint64) {
	width := uint(bytes * 8)
	mask := widthMask(bytes)
	c := uint(count) % width
	d := dst & mask
	var result uint64
	if c == 0 {
		result = d
	} else {
		result = ((d << c) | (d >> (width - c))) & mask
	}
	cf := result & 1
	var f uint64
	if cf != 0 {
		f |= EFLAGS_CF
	}
	if count%uint8(width) == 1 {
		msb := result&signBit(bytes) != 0
		if msb != (cf != 0) {
			f |= EFLAGS_OF
		}
	}
	return result, f
}

func aluRotateRight(bytes int, dst uint64, count uint8) (uint64, uint64) {
	width := uint(bytes * 8)
	mask := widthMask(bytes)
	c := uint(count) % width
	d := dst & mask
	var result uint64
	if c == 0 {
		result = d
	} else {
		result = ((d >> c) | (d << (width - c))) & mask
	}
	cf := (result >> (width - 1)) & 1
	var f uint64
	if cf != 0 {
		f |= EFLAGS_CF
	}
	if count%uint8(width) == 1 {
		bit2 := (result >> (width - 2)) & 1
		if bit2 != cf {
			f |= EFLAGS_OF
		}
	}
	return result, f
}

// mulUnsigned/mulSigned implement the "double-width" multiply primitives
// spec.md §9 calls out (MUL/IMUL with an implicit accumulator): result is
// returned as (low, high) halves at the operand width, with CF==OF iff the
// high half is not simply the sign extension of the low half.
func mulUnsigned(bytes int, a, b uint64) (lo, hi uint64, cfof bool) {
	if bytes == 8 {
		hi, lo = bits.Mul64(a, b)
		return lo, hi, hi != 0
	}
	mask := widthMask(bytes)
	prod := (a & mask) * (b & mask)
	lo = prod & mask
	hi = (prod >> uint(bytes*8)) & mask
	cfof = hi != 0
	return
}

func mulSigned(bytes int, a, b uint64) (lo, hi uint64, cfof bool) {
	if bytes == 8 {
		hi, lo = bits.Mul64(a, b)
		if int64(a) < 0 {
			hi -= b
		}
		if int64(b) < 0 {
			hi -= a
		}
		return lo, hi, hi != uint64(int64(lo)>>63)
	}
	sa, sb := signExtend(a, bytes), signExtend(b, bytes)
	prod := sa * sb
	mask := widthMask(bytes)
	lo = uint64(prod) & mask
	hi = uint64(prod>>uint(bytes*8)) & mask
	signExt := uint64(0)
	if int64(lo)>>(bytes*8-1) != 0 && lo&signBit(bytes) != 0 {
		signExt = mask
	}
	cfof = hi != signExt
	return
}

// divUnsigned/divSigned implement the "double-width dividend" primitives
// (DIV/IDIV): dividend is (hi:lo) at double the operand width, divisor is
// single-width. A zero divisor or a quotient too wide for the operand is
// reported via the bool, which the caller turns into a #DE (spec.md §4.F
// DIV/IDIV edge case).
func divUnsigned(bytes int, hi, lo, divisor uint64) (quot, rem uint64, overflow bool) {
	if divisor == 0 {
		return 0, 0, true
	}
	if bytes == 8 {
		if hi >= divisor {
			return 0, 0, true
		}
		quot, rem = bits.Div64(hi, lo, divisor)
		return quot, rem, false
	}
	mask := widthMask(bytes)
	dividend := (hi&mask)<<uint(bytes*8) | (lo & mask)
	q := dividend / divisor
	if q > mask {
		return 0, 0, true
	}
	return q, dividend % divisor, false
}

func divSigned(bytes int, hi, lo, divisor uint64) (quot, rem uint64, overflow bool) {
	if divisor == 0 {
		return 0, 0, true
	}
	mask := widthMask(bytes)
	dividend := signExtend((hi&mask)<<uint(bytes*8)|(lo&mask), 2*bytes)
	d := signExtend(divisor, bytes)
	q := dividend / d
	r := dividend % d
	maxQ := int64(signBit(bytes)) - 1
	minQ := -int64(signBit(bytes))
	if q > maxQ || q < minQ {
		return 0, 0, true
	}
	return uint64(q) & mask, uint64(r) & mask, false
}

// aaaAdjust/aasAdjust implement AAA/AAS (ASCII adjust),
// and daaAdjust/dasAdjust implement DAA/DAS (decimal adjust), per the
// classic x86 BCD-adjustment rules (spec.md §4.E "BCD group", Non-goal does
// not exclude these - only disassembly-for-display and AVX-512 are out).
func aaaAdjust(al, ah, flags uint64) (newAL, newAH, newFlags uint64) {
	if al&0xF > 9 || flags&EFLAGS_AF != 0 {
		al += 6
		ah += 1
		flags |= EFLAGS_AF | EFLAGS_CF
	} else {
		flags &^= EFLAGS_AF | EFLAGS_CF
	}
	al &= 0xF
	return al, ah & 0xFF, flags
}

func aasAdjust(al, ah, flags uint64) (newAL, newAH, newFlags uint64) {
	if al&0xF > 9 || flags&EFLAGS_AF != 0 {
		al -= 6
		ah -= 1
		flags |= EFLAGS_AF | EFLAGS_CF
	} else {
		flags &^= EFLAGS_AF | EFLAGS_CF
	}
	al &= 0xF
	return al & 0xFF, ah & 0xFF, flags
}

func daaAdjust(al, flags uint64) (newAL, newFlags uint64) {
	oldAL, oldCF := al, flags&EFLAGS_CF != 0
	cf := false
	if al&0xF > 9 || flags&EFLAGS_AF != 0 {
		cf = oldCF || al > 0xF9
		al = (al + 6) & 0xFF
		flags |= EFLAGS_AF
	} else {
		flags &^= EFLAGS_AF
	}
	if oldAL > 0x99 || oldCF {
		al = (al + 0x60) & 0xFF
		cf = true
	}
	if cf {
		flags |= EFLAGS_CF
	} else {
		flags &^= EFLAGS_CF
	}
	return al, flagsFromResult(1, al, flags&EFLAGS_CF, flags&EFLAGS_AF != 0, false) | (flags & (EFLAGS_CF | EFLAGS_AF))
}

func dasAdjust(al, flags uint64) (newAL, newFlags uint64) {
	oldAL, oldCF := al, flags&EFLAGS_CF != 0
	cf := false
	if al&0xF > 9 || flags&EFLAGS_AF != 0 {
		cf = oldCF || al < 6
		al = (al - 6) & 0xFF
		flags |= EFLAGS_AF
	} else {
		flags &^= EFLAGS_AF
	}
	if oldAL > 0x99 || oldCF {
		al = (al - 0x60) & 0xFF
		cf = true
	}
	if cf {
		flags |= EFLAGS_CF
	} else {
		flags &^= EFLAGS_CF
	}
	return al, flagsFromResult(1, al, flags&EFLAGS_CF, flags&EFLAGS_AF != 0, false) | (flags & (EFLAGS_CF | EFLAGS_AF))
}

// boundCheck implements BOUND's range test (spec.md §4.F, recovered from
// original_source since the distilled spec only lists it as an opcode;
// Non-goals don't exclude it).
func boundCheck(bytes int, index int64, lower, upper int64) bool {
	return index < lower || index > upper
}
