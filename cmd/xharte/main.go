// Command xharte runs Harte-style JSON instruction-test vectors through the
// xen core and reports a pass/fail table, mirroring the Cobra-based
// cmd/z80opt CLI shape from the teacher's sibling pack member
// (oisee/z80-optimizer), the one executable surface this otherwise
// library-only repository ships.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/davidzhang0o0/xen"
)

type testVector struct {
	Name    string           `json:"name"`
	Initial vectorState      `json:"initial"`
	Final   vectorState      `json:"final"`
}

type vectorState struct {
	Regs vectorRegs    `json:"regs"`
	RAM  [][2]uint64   `json:"ram"`
}

type vectorRegs struct {
	RAX, RCX, RDX, RBX uint64
	RSP, RBP, RSI, RDI uint64
	RIP, RFLAGS        uint64
}

func main() {
	var file string

	root := &cobra.Command{
		Use:   "xharte",
		Short: "Run Harte-style JSON instruction-test vectors through the xen core",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute every vector in a JSON test file and report pass/fail",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(file)
		},
	}
	runCmd.Flags().StringVarP(&file, "file", "f", "", "path to a JSON test-vector file (required)")
	runCmd.MarkFlagRequired("file")

	root.AddCommand(runCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var vectors []testVector
	if err := json.Unmarshal(data, &vectors); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	passed, failed := 0, 0
	for _, v := range vectors {
		ok, reason := runVector(v)
		if ok {
			passed++
			continue
		}
		failed++
		fmt.Printf("FAIL %-32s %s\n", v.Name, reason)
	}
	fmt.Printf("%d passed, %d failed\n", passed, failed)
	if failed > 0 {
		return fmt.Errorf("%d vectors failed", failed)
	}
	return nil
}

const memSize = 1 << 20

func runVector(v testVector) (bool, string) {
	mem := make([]byte, memSize)
	for _, kv := range v.Initial.RAM {
		mem[kv[0]&(memSize-1)] = byte(kv[1])
	}

	ctx := &xen.Ctxt{
		AddrMode:  xen.Mode32,
		StackMode: xen.Mode32,
		Regs:      regsFromVector(v.Initial.Regs),
	}

	ops := &xen.Ops{
		InsnFetch: func(seg xen.SegIndex, off uint64, buf []byte, n int, c *xen.Ctxt) xen.Status {
			copy(buf, mem[off&(memSize-1):])
			return xen.OKAY
		},
		Read: func(seg xen.SegIndex, off uint64, buf []byte, n int, c *xen.Ctxt) xen.Status {
			copy(buf, mem[off&(memSize-1):])
			return xen.OKAY
		},
		Write: func(seg xen.SegIndex, off uint64, buf []byte, n int, c *xen.Ctxt) xen.Status {
			copy(mem[off&(memSize-1):], buf[:n])
			return xen.OKAY
		},
	}

	status := xen.Emulate(ctx, ops)
	if status != xen.OKAY {
		return false, fmt.Sprintf("Emulate returned %v", status)
	}

	want := regsFromVector(v.Final.Regs)
	if ctx.Regs != want {
		return false, fmt.Sprintf("register mismatch: got %+v want %+v", ctx.Regs, want)
	}
	for _, kv := range v.Final.RAM {
		if mem[kv[0]&(memSize-1)] != byte(kv[1]) {
			return false, fmt.Sprintf("mem[%#x] = %#x, want %#x", kv[0], mem[kv[0]&(memSize-1)], kv[1])
		}
	}
	return true, ""
}

func regsFromVector(r vectorRegs) xen.Regs {
	return xen.Regs{
		RAX: r.RAX, RCX: r.RCX, RDX: r.RDX, RBX: r.RBX,
		RSP: r.RSP, RBP: r.RBP, RSI: r.RSI, RDI: r.RDI,
		RIP: r.RIP, RFLAGS: r.RFLAGS,
	}
}
