// debug.go - internal diagnostics, matching the teacher's own
// fmt.Printf-to-stderr halting style for programmer-error conditions
// (cpu_x86.go's "Undefined opcode ... halting" path) rather than a
// structured logging dependency (see SPEC_FULL.md AMBIENT STACK).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package xen

import (
	"fmt"
	"os"
)

// debugChecks gates the handful of usage-bug assertions (double Decode
// without FreeState, and similar) that cost a branch on every call but are
// worth keeping on by default for a core this easy to misuse from the
// caller side.
var debugChecks = true

func debugf(format string, args ...interface{}) {
	if !debugChecks {
		return
	}
	fmt.Fprintf(os.Stderr, "xen: "+format+"\n", args...)
}
