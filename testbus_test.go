// testbus_test.go - a flat 1MB memory/port Ops backend for unit tests.
//
// Adapted from the teacher's cpu_x86_test.go TestX86Bus / NewTestX86Bus
// pair: the same flat byte-array memory and port space, reshaped from the
// teacher's X86Bus interface (Read/Write/In/Out/Tick) into an Ops vtable
// instance, since this core consumes callbacks rather than a bus
// interface.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

import "testing"

type flatMemory struct {
	mem   [1 << 20]byte
	ports [1 << 16]byte
}

func newFlatMemory() *flatMemory { return &flatMemory{} }

func (m *flatMemory) ops() *Ops {
	return &Ops{
		InsnFetch: func(seg SegIndex, off uint64, buf []byte, n int, ctx *Ctxt) Status {
			return m.read(off, buf, n)
		},
		Read: func(seg SegIndex, off uint64, buf []byte, n int, ctx *Ctxt) Status {
			return m.read(off, buf, n)
		},
		Write: func(seg SegIndex, off uint64, buf []byte, n int, ctx *Ctxt) Status {
			return m.write(off, buf, n)
		},
		CmpXchg: func(seg SegIndex, off uint64, old, new_ []byte, n int, ctx *Ctxt) Status {
			cur := make([]byte, n)
			m.read(off, cur, n)
			match := true
			for i := 0; i < n; i++ {
				if cur[i] != old[i] {
					match = false
				}
			}
			copy(old, cur)
			if match {
				m.write(off, new_, n)
			}
			return OKAY
		},
		ReadIO: func(port uint16, buf []byte, n int, ctx *Ctxt) Status {
			for i := 0; i < n; i++ {
				buf[i] = m.ports[int(port)+i]
			}
			return OKAY
		},
		WriteIO: func(port uint16, buf []byte, n int, ctx *Ctxt) Status {
			for i := 0; i < n; i++ {
				m.ports[int(port)+i] = buf[i]
			}
			return OKAY
		},
		RepMovs: func(dstSeg SegIndex, dstOff uint64, srcSeg SegIndex, srcOff uint64, bytesPerOp int, nrReps *uint64, ctx *Ctxt) Status {
			n := *nrReps
			df := ctx.Regs.RFLAGS&EFLAGS_DF != 0
			for i := uint64(0); i < n; i++ {
				buf := make([]byte, bytesPerOp)
				m.read(srcOff, buf, bytesPerOp)
				m.write(dstOff, buf, bytesPerOp)
				if df {
					srcOff -= uint64(bytesPerOp)
					dstOff -= uint64(bytesPerOp)
				} else {
					srcOff += uint64(bytesPerOp)
					dstOff += uint64(bytesPerOp)
				}
			}
			return OKAY
		},
		RepStos: func(seg SegIndex, off uint64, val []byte, bytesPerOp int, nrReps *uint64, ctx *Ctxt) Status {
			n := *nrReps
			df := ctx.Regs.RFLAGS&EFLAGS_DF != 0
			for i := uint64(0); i < n; i++ {
				m.write(off, val, bytesPerOp)
				if df {
					off -= uint64(bytesPerOp)
				} else {
					off += uint64(bytesPerOp)
				}
			}
			return OKAY
		},
	}
}

func (m *flatMemory) read(off uint64, buf []byte, n int) Status {
	for i := 0; i < n; i++ {
		buf[i] = m.mem[(off+uint64(i))&(1<<20-1)]
	}
	return OKAY
}

func (m *flatMemory) write(off uint64, buf []byte, n int) Status {
	for i := 0; i < n; i++ {
		m.mem[(off+uint64(i))&(1<<20-1)] = buf[i]
	}
	return OKAY
}

func newTestCtxt() *Ctxt {
	return &Ctxt{AddrMode: Mode32, StackMode: Mode32, Regs: Regs{RFLAGS: EFLAGS_MBS}}
}

func TestRegsPtrEncoding(t *testing.T) {
	var r Regs
	r.RAX = 0x1122334455667788
	if *r.ptr(0) != r.RAX {
		t.Fatalf("ptr(0) did not alias RAX")
	}
	r.R15 = 42
	if *r.ptr(15) != 42 {
		t.Fatalf("ptr(15) did not alias R15")
	}
}
