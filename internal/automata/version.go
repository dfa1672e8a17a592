package automata

// Index is a handle into an Automaton's cell slots.
type Index int32

// NoIndex marks the absence of a cell.
const NoIndex Index = -1

// Automaton body layouts. Each version changes how (or whether) a field is stored.
const (
	// FileVersionOld stores r as a 32-bit integer and identifies cells by position.
	FileVersionOld uint16 = iota
	// FileVersion1 narrows r to a single byte.
	FileVersion1
	// FileVersion2 writes an explicit on-disk id before every cell and edge list.
	FileVersion2
	// FileVersion3 widens r to 16 bits.
	FileVersion3

	NumFileVersions
)

// CurrentFileVersion is the automaton layout written by default.
const CurrentFileVersion = NumFileVersions - 1

// FileVersion identifies the layout of a persisted network: the automaton body
// version and the client (payload and header) version.
type FileVersion struct {
	Automata uint16
	Client   uint16
}

func (fv FileVersion) explicitIDs() bool {
	return fv.Automata >= FileVersion2
}
