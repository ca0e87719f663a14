// Package symbols extracts defined and undefined symbol sets from compiled
// archives by driving an external symbol-listing tool.
package symbols

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Mode selects which symbol table section a Dumper lists.
type Mode string

const (
	ModeDefined   Mode = "defined"
	ModeUndefined Mode = "undefined"
)

// Dumper lists raw symbol-table entries for one library archive. It performs
// no filtering; all parsing and noise rejection happens in the Extractor.
type Dumper interface {
	Dump(ctx context.Context, path string, mode Mode) ([]string, error)
}

// DefaultTimeout bounds a single symbol-dump invocation.
const DefaultTimeout = 30 * time.Second

// NM runs the binutils nm tool in POSIX output format, demangling C++ names.
type NM struct {
	tool    string
	timeout time.Duration
}

// NMOption is a functional option for configuring NM.
type NMOption func(*NM)

// WithTool overrides the nm executable (name or path).
func WithTool(tool string) NMOption {
	return func(n *NM) {
		if tool != "" {
			n.tool = tool
		}
	}
}

// WithTimeout bounds each nm invocation. Zero or negative keeps the default.
func WithTimeout(timeout time.Duration) NMOption {
	return func(n *NM) {
		if timeout > 0 {
			n.timeout = timeout
		}
	}
}

// NewNM creates an nm-backed dumper.
func NewNM(opts ...NMOption) *NM {
	n := &NM{tool: "nm", timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Dump invokes nm once for the requested mode and returns its non-empty
// output lines. The call is bounded by the configured timeout on top of any
// deadline already carried by ctx.
func (n *NM) Dump(ctx context.Context, path string, mode Mode) ([]string, error) {
	args, err := modeArgs(mode)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, n.tool, append(args, path)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s symbols of %s: %w", n.tool, mode, path, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s %s symbols of %s: %v: %s", n.tool, mode, path, err, msg)
		}
		return nil, fmt.Errorf("%s %s symbols of %s: %w", n.tool, mode, path, err)
	}

	var lines []string
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), " \t"); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s output for %s: %w", n.tool, path, err)
	}
	return lines, nil
}

func modeArgs(mode Mode) ([]string, error) {
	switch mode {
	case ModeDefined:
		return []string{"--defined-only", "-C", "--format=posix"}, nil
	case ModeUndefined:
		return []string{"-u", "-C", "--format=posix"}, nil
	default:
		return nil, fmt.Errorf("unknown symbol dump mode %q", mode)
	}
}
