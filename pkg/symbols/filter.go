package symbols

import "strings"

// DefaultNoisePrefixes are symbol name prefixes excluded from every
// extraction: virtual-dispatch tables, type-identity metadata, and the
// standard runtime namespaces. The library's own basename is always added
// on top of these.
var DefaultNoisePrefixes = []string{
	"vtable",
	"typeinfo",
	"std",
	"boost",
	"__gnu_cxx",
}

// noiseFilter rejects runtime-generated and self-referential symbol names.
type noiseFilter struct {
	prefixes []string
}

func newNoiseFilter(libName string, extra []string) *noiseFilter {
	prefixes := make([]string, 0, len(extra)+1)
	if libName != "" {
		prefixes = append(prefixes, libName)
	}
	prefixes = append(prefixes, extra...)
	return &noiseFilter{prefixes: prefixes}
}

func (f *noiseFilter) drop(symbol string) bool {
	for _, p := range f.prefixes {
		if strings.HasPrefix(symbol, p) {
			return true
		}
	}
	return false
}
