package registry

// Library is one compiled archive and its symbol-derived relations.
//
// Defined and Undefined are fixed at extraction time. Dependencies is filled
// by Resolve, Clients by IndexClients; both are empty until the corresponding
// pass runs and never contain the library's own name.
type Library struct {
	Name         string `json:"name"`
	Defined      Set    `json:"defined"`
	Undefined    Set    `json:"undefined"`
	Dependencies Set    `json:"dependencies"`
	Clients      Set    `json:"clients"`
}

// NewLibrary creates a library with the given symbol sets and empty
// relational fields.
func NewLibrary(name string, defined, undefined Set) *Library {
	if defined == nil {
		defined = NewSet()
	}
	if undefined == nil {
		undefined = NewSet()
	}
	return &Library{
		Name:         name,
		Defined:      defined,
		Undefined:    undefined,
		Dependencies: NewSet(),
		Clients:      NewSet(),
	}
}
