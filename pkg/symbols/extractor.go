package symbols

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ykrivopalov/objdeps/pkg/registry"
)

// Extractor builds a Library from one archive's symbol tables.
type Extractor struct {
	dumper   Dumper
	prefixes []string
}

// Option is a functional option for configuring Extractor.
type Option func(*Extractor)

// WithDumper sets the symbol-dump collaborator (useful for testing).
func WithDumper(d Dumper) Option {
	return func(e *Extractor) {
		if d != nil {
			e.dumper = d
		}
	}
}

// WithNoisePrefixes replaces the default noise prefix list. The library's
// own basename is always filtered regardless.
func WithNoisePrefixes(prefixes []string) Option {
	return func(e *Extractor) {
		if prefixes != nil {
			e.prefixes = prefixes
		}
	}
}

// NewExtractor creates an extractor backed by nm unless overridden.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		dumper:   NewNM(),
		prefixes: DefaultNoisePrefixes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract dumps the archive's symbol tables in both modes, parses each line
// to a bare symbol name, drops noise names, and returns a Library named after
// the archive's base filename with empty relational fields. A tool failure or
// an unparseable line fails the whole extraction for this one archive.
func (e *Extractor) Extract(ctx context.Context, path string) (*registry.Library, error) {
	name := filepath.Base(path)
	filter := newNoiseFilter(name, e.prefixes)

	defined, err := e.extractMode(ctx, path, ModeDefined, filter)
	if err != nil {
		return nil, err
	}
	undefined, err := e.extractMode(ctx, path, ModeUndefined, filter)
	if err != nil {
		return nil, err
	}

	return registry.NewLibrary(name, defined, undefined), nil
}

func (e *Extractor) extractMode(ctx context.Context, path string, mode Mode, filter *noiseFilter) (registry.Set, error) {
	lines, err := e.dumper.Dump(ctx, path, mode)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}

	symbols := registry.NewSet()
	for _, line := range lines {
		sym, err := parseSymbol(line, mode)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", path, err)
		}
		if filter.drop(sym) {
			continue
		}
		symbols.Add(sym)
	}
	return symbols, nil
}

// parseSymbol strips the POSIX-format trailing fields from one nm output
// line. Demangled C++ names may contain spaces, so only trailing fields are
// removed: defined entries end with type, value, and size; undefined entries
// end with a lone U type marker.
func parseSymbol(line string, mode Mode) (string, error) {
	switch mode {
	case ModeDefined:
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return "", fmt.Errorf("malformed defined symbol line %q", line)
		}
		return strings.Join(fields[:len(fields)-3], " "), nil

	case ModeUndefined:
		trimmed := strings.TrimRight(line, " ")
		name, ok := strings.CutSuffix(trimmed, " U")
		if !ok {
			return "", fmt.Errorf("malformed undefined symbol line %q", line)
		}
		return strings.TrimRight(name, " "), nil

	default:
		return "", fmt.Errorf("unknown symbol dump mode %q", mode)
	}
}
