package kaypro

import (
	"fmt"
	"os"
)

// Tracer is a tiny per-subsystem on/off logger. Each device gets its own
// instance rather than sharing a global logger, so a trace flag for one
// subsystem never drowns another's output.
type Tracer struct {
	tag     string
	enabled bool
}

// NewTracer returns a Tracer tagged with name, enabled only when on is true.
func NewTracer(name string, on bool) *Tracer {
	return &Tracer{tag: name, enabled: on}
}

// Enabled reports whether this tracer will print.
func (t *Tracer) Enabled() bool {
	return t != nil && t.enabled
}

// Printf writes a trace line to stderr prefixed with the subsystem tag.
func (t *Tracer) Printf(format string, args ...interface{}) {
	if !t.Enabled() {
		return
	}
	fmt.Fprintf(os.Stderr, "["+t.tag+"] "+format+"\n", args...)
}

// SetEnabled flips tracing on/off at runtime (used by Machine.SetTracers).
func (t *Tracer) SetEnabled(on bool) {
	if t == nil {
		return
	}
	t.enabled = on
}
