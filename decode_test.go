// decode_test.go - unit tests for the decode pipeline, in the teacher's
// direct-assertion style (cpu_x86_test.go), rewired onto the Emulate/Decode
// entry points and the flat-memory Ops backend of testbus_test.go.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

import "testing"

func load(m *flatMemory, addr uint64, bytes ...byte) {
	for i, b := range bytes {
		m.mem[addr+uint64(i)] = b
	}
}

func TestDecodeAddEbGb(t *testing.T) {
	m := newFlatMemory()
	load(m, 0, 0x00, 0xD8) // ADD AL, BL
	ctx := newTestCtxt()
	ctx.Regs.RAX = 0x05
	ctx.Regs.RBX = 0x07
	ops := m.ops()

	var st State
	if s := Decode(ctx, ops, &st); s != OKAY {
		t.Fatalf("Decode: %v", s)
	}
	if st.Introspect().Length != 2 {
		t.Fatalf("length = %d, want 2", st.Introspect().Length)
	}
	if s := Execute(ctx, ops, &st); s != OKAY {
		t.Fatalf("Execute: %v", s)
	}
	if ctx.Regs.RAX&0xFF != 0x0C {
		t.Fatalf("AL = %#x, want 0x0C", ctx.Regs.RAX&0xFF)
	}
	if ctx.Regs.RFLAGS&EFLAGS_ZF != 0 {
		t.Fatalf("ZF set unexpectedly")
	}
}

func TestEmulateMovImmediate(t *testing.T) {
	m := newFlatMemory()
	load(m, 0, 0xB8, 0x34, 0x12, 0x00, 0x00) // MOV EAX, 0x1234
	ctx := newTestCtxt()
	ops := m.ops()

	if s := Emulate(ctx, ops); s != OKAY {
		t.Fatalf("Emulate: %v", s)
	}
	if ctx.Regs.RAX != 0x1234 {
		t.Fatalf("EAX = %#x, want 0x1234", ctx.Regs.RAX)
	}
	if ctx.Regs.RIP != 5 {
		t.Fatalf("RIP = %d, want 5", ctx.Regs.RIP)
	}
}

func TestEmulateSubSetsZF(t *testing.T) {
	m := newFlatMemory()
	load(m, 0, 0x29, 0xD8) // SUB EAX, EBX
	ctx := newTestCtxt()
	ctx.Regs.RAX = 5
	ctx.Regs.RBX = 5
	ops := m.ops()

	if s := Emulate(ctx, ops); s != OKAY {
		t.Fatalf("Emulate: %v", s)
	}
	if ctx.Regs.RAX != 0 {
		t.Fatalf("EAX = %#x, want 0", ctx.Regs.RAX)
	}
	if ctx.Regs.RFLAGS&EFLAGS_ZF == 0 {
		t.Fatalf("ZF not set")
	}
}

func TestEmulateJccTaken(t *testing.T) {
	m := newFlatMemory()
	load(m, 0, 0x74, 0x10) // JZ +0x10
	ctx := newTestCtxt()
	ctx.Regs.RFLAGS |= EFLAGS_ZF
	ops := m.ops()

	if s := Emulate(ctx, ops); s != OKAY {
		t.Fatalf("Emulate: %v", s)
	}
	if ctx.Regs.RIP != 0x12 {
		t.Fatalf("RIP = %#x, want 0x12", ctx.Regs.RIP)
	}
}

func TestEmulatePushPop(t *testing.T) {
	m := newFlatMemory()
	load(m, 0, 0x50, 0x5B) // PUSH EAX; POP EBX
	ctx := newTestCtxt()
	ctx.Regs.RAX = 0xCAFEBABE
	ctx.Regs.RSP = 0x1000
	ops := m.ops()

	if s := Emulate(ctx, ops); s != OKAY {
		t.Fatalf("Emulate PUSH: %v", s)
	}
	if ctx.Regs.RSP != 0x0FFC {
		t.Fatalf("RSP after PUSH = %#x, want 0xFFC", ctx.Regs.RSP)
	}
	if s := Emulate(ctx, ops); s != OKAY {
		t.Fatalf("Emulate POP: %v", s)
	}
	if ctx.Regs.RBX != 0xCAFEBABE {
		t.Fatalf("EBX = %#x, want 0xCAFEBABE", ctx.Regs.RBX)
	}
	if ctx.Regs.RSP != 0x1000 {
		t.Fatalf("RSP after POP = %#x, want 0x1000", ctx.Regs.RSP)
	}
}

func TestEmulateCallRet(t *testing.T) {
	m := newFlatMemory()
	load(m, 0, 0xE8, 0x05, 0x00, 0x00, 0x00) // CALL +5 -> target 0x0A
	load(m, 0x0A, 0xC3)                      // RET
	ctx := newTestCtxt()
	ctx.Regs.RSP = 0x2000
	ops := m.ops()

	if s := Emulate(ctx, ops); s != OKAY {
		t.Fatalf("Emulate CALL: %v", s)
	}
	if ctx.Regs.RIP != 0x0A {
		t.Fatalf("RIP after CALL = %#x, want 0x0A", ctx.Regs.RIP)
	}
	if s := Emulate(ctx, ops); s != OKAY {
		t.Fatalf("Emulate RET: %v", s)
	}
	if ctx.Regs.RIP != 5 {
		t.Fatalf("RIP after RET = %#x, want 5", ctx.Regs.RIP)
	}
}

func TestDecodeModRM16Addressing(t *testing.T) {
	m := newFlatMemory()
	load(m, 0, 0x8B, 0x00) // MOV AX, [BX+SI]
	ctx := newTestCtxt()
	ctx.AddrMode = Mode16
	ctx.StackMode = Mode16
	ctx.Regs.RBX = 0x100
	ctx.Regs.RSI = 0x10
	load(m, 0x110, 0x34, 0x12)
	ops := m.ops()

	if s := Emulate(ctx, ops); s != OKAY {
		t.Fatalf("Emulate: %v", s)
	}
	if ctx.Regs.RAX&0xFFFF != 0x1234 {
		t.Fatalf("AX = %#x, want 0x1234", ctx.Regs.RAX&0xFFFF)
	}
}

func TestEmulateLockedCmpxchgMismatch(t *testing.T) {
	m := newFlatMemory()
	load(m, 0, 0xF0, 0x0F, 0xB1, 0x08) // LOCK CMPXCHG [EAX], ECX
	ctx := newTestCtxt()
	ctx.Regs.RAX = 0x2000
	ctx.Regs.RCX = 0x99
	load(m, 0x2000, 0x42, 0, 0, 0)
	ops := m.ops()

	if s := Emulate(ctx, ops); s != OKAY {
		t.Fatalf("Emulate: %v", s)
	}
	if ctx.Regs.RAX != 0x42 {
		t.Fatalf("EAX = %#x, want 0x42 (mismatch reload)", ctx.Regs.RAX)
	}
	if ctx.Regs.RFLAGS&EFLAGS_ZF != 0 {
		t.Fatalf("ZF set on mismatch")
	}
}

func TestUnhandleableWithoutInsnFetch(t *testing.T) {
	ctx := newTestCtxt()
	var st State
	if s := Decode(ctx, &Ops{}, &st); s != UNHANDLEABLE {
		t.Fatalf("Decode with nil InsnFetch = %v, want UNHANDLEABLE", s)
	}
}
