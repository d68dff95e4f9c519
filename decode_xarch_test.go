// decode_xarch_test.go - cross-validates Decode's reported instruction
// length against golang.org/x/arch/x86/x86asm, the standard Go-ecosystem
// x86 decoder, on a corpus of representative byte streams. Pure grounding/
// test infrastructure: x86asm is never imported by non-test code (see
// SPEC_FULL.md AMBIENT STACK - we decode, we don't disassemble for humans).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

import (
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

func TestDecodeLengthMatchesX86asm32(t *testing.T) {
	cases := [][]byte{
		{0x00, 0xD8},             // ADD AL, BL
		{0x01, 0xD8},             // ADD EAX, EBX
		{0x29, 0xD8},             // SUB EAX, EBX
		{0x31, 0xC0},             // XOR EAX, EAX
		{0x83, 0xC0, 0x05},       // ADD EAX, 5
		{0x81, 0xC3, 0x00, 0x01, 0x00, 0x00}, // ADD EBX, 0x100
		{0xB8, 0x34, 0x12, 0x00, 0x00},       // MOV EAX, 0x1234
		{0x89, 0xD8},             // MOV EAX, EBX
		{0x8D, 0x04, 0x19},       // LEA EAX, [ECX+EBX]
		{0x50},                  // PUSH EAX
		{0x5B},                  // POP EBX
		{0x74, 0x10},             // JZ +0x10
		{0xE8, 0x05, 0x00, 0x00, 0x00}, // CALL +5
		{0xC3},                  // RET
		{0xF7, 0xD8},             // NEG EAX
		{0x0F, 0xB6, 0xC0},       // MOVZX EAX, AL
		{0x0F, 0xAF, 0xC3},       // IMUL EAX, EBX
		{0xC1, 0xE0, 0x04},       // SHL EAX, 4
		{0xFF, 0x03},             // INC dword [EBX]
	}

	for _, code := range cases {
		padded := append(append([]byte{}, code...), make([]byte, 8)...)

		inst, err := x86asm.Decode(padded, 32)
		if err != nil {
			t.Errorf("x86asm.Decode(% x) error: %v", code, err)
			continue
		}

		m := newFlatMemory()
		load(m, 0, padded...)
		ctx := newTestCtxt()
		ops := m.ops()
		var st State
		if s := Decode(ctx, ops, &st); s != OKAY {
			t.Errorf("% x: xen Decode = %v", code, s)
			continue
		}
		got := st.Introspect().Length
		if got != inst.Len {
			t.Errorf("% x: length = %d, x86asm says %d", code, got, inst.Len)
		}
	}
}
