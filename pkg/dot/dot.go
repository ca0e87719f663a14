// Package dot renders a registry as a Graphviz graph description: one node
// per library weighted by its dependency count, one directed edge per
// dependency.
package dot

import (
	"fmt"
	"io"
	"strings"

	"github.com/ykrivopalov/objdeps/pkg/registry"
)

// Sink receives a fully derived registry and renders a graph description.
// The core derivation code has no knowledge of the rendering mechanics.
type Sink interface {
	WriteGraph(reg *registry.Registry) error
}

// Writer emits DOT syntax to an io.Writer. Output is sorted by library name
// so identical registries render identical files.
type Writer struct {
	w io.Writer
}

// NewWriter creates a DOT sink writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteGraph renders the registry's dependency graph.
func (d *Writer) WriteGraph(reg *registry.Registry) error {
	var b strings.Builder
	b.WriteString("digraph {\n")
	for _, lib := range reg.Libraries() {
		fmt.Fprintf(&b, "\t%q [weight=%d]\n", lib.Name, lib.Dependencies.Len())
	}
	for _, lib := range reg.Libraries() {
		for _, dep := range lib.Dependencies.Names() {
			fmt.Fprintf(&b, "\t%q -> %q\n", lib.Name, dep)
		}
	}
	b.WriteString("}\n")

	if _, err := io.WriteString(d.w, b.String()); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	return nil
}
