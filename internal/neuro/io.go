package neuro

import (
	"errors"
	"fmt"
	"io"

	"neurolab/internal/automata"
	"neurolab/internal/datastream"
)

const (
	// LegacyCookie opens files written before versioned headers existed.
	LegacyCookie = "NeuroLib NETWORK 012"
	Cookie       = "NeuroLib NETWORK"
)

// Payload and header layouts.
const (
	// ClientVersionOld stores kind as int32 and no frozen flag.
	ClientVersionOld uint16 = iota
	// ClientVersion1 stores kind as a byte followed by the frozen flag.
	ClientVersion1
	// ClientVersion2 adds the node learn rate and the node running average.
	ClientVersion2
	// ClientVersion3 adds the node forget rate, link activity and oscillator timing.
	ClientVersion3

	NumClientVersions
)

const CurrentClientVersion = NumClientVersions - 1

// CurrentVersion is the layout written by WriteBinary.
var CurrentVersion = automata.FileVersion{Automata: automata.CurrentFileVersion, Client: CurrentClientVersion}

// LegacyVersion is the layout implied by LegacyCookie.
var LegacyVersion = automata.FileVersion{Automata: automata.FileVersionOld, Client: ClientVersionOld}

// WriteBinary encodes the network in the current layout.
func (n *Net) WriteBinary(w io.Writer) error {
	return n.WriteVersion(w, CurrentVersion)
}

// WriteVersion encodes the network in an older layout. Fields the layout has
// no room for are dropped. LegacyVersion writes the legacy cookie and header.
func (n *Net) WriteVersion(w io.Writer, fv automata.FileVersion) error {
	if fv.Automata >= automata.NumFileVersions || fv.Client >= NumClientVersions {
		return fmt.Errorf("write network: unsupported version %d.%d", fv.Automata, fv.Client)
	}

	out := datastream.NewWriter(w)
	if fv == LegacyVersion {
		out.String(LegacyCookie)
	} else {
		out.String(Cookie)
		out.Uint16(fv.Automata)
		out.Uint16(fv.Client)
	}
	writeParams(out, n.params, fv)
	n.graph.WriteBinary(out, fv)
	if err := out.Err(); err != nil {
		return fmt.Errorf("write network: %w", err)
	}
	return nil
}

func writeParams(w *datastream.Writer, p Params, fv automata.FileVersion) {
	w.Float32(p.Decay)
	w.Float32(p.LinkLearnRate)
	if fv.Client >= ClientVersion2 {
		w.Float32(p.NodeLearnRate)
	}
	if fv.Client >= ClientVersion3 {
		w.Float32(p.NodeForgetRate)
	}
	w.Float32(p.LearnTime)
}

func readParams(r *datastream.Reader, fv automata.FileVersion) Params {
	var p Params
	p.Decay = r.Float32()
	p.LinkLearnRate = r.Float32()
	if fv.Client >= ClientVersion2 {
		p.NodeLearnRate = r.Float32()
	}
	if fv.Client >= ClientVersion3 {
		p.NodeForgetRate = r.Float32()
	}
	p.LearnTime = r.Float32()
	return p
}

// ReadNet decodes a network in any supported layout. On error no network is
// returned.
func ReadNet(r io.Reader) (*Net, error) {
	n, _, err := Decode(r)
	return n, err
}

// Decode is ReadNet that also reports the layout the stream was written in.
func Decode(r io.Reader) (*Net, automata.FileVersion, error) {
	in := datastream.NewReader(r)

	cookie := in.String()
	if err := in.Err(); err != nil {
		return nil, automata.FileVersion{}, &FormatError{Reason: "missing cookie", Err: unexpectedEOF(err)}
	}

	var fv automata.FileVersion
	switch cookie {
	case LegacyCookie:
		fv = LegacyVersion
	case Cookie:
		fv.Automata = in.Uint16()
		fv.Client = in.Uint16()
		if err := in.Err(); err != nil {
			return nil, fv, &FormatError{Cookie: cookie, Reason: "truncated header", Err: unexpectedEOF(err)}
		}
		if fv.Automata >= automata.NumFileVersions || fv.Client >= NumClientVersions {
			return nil, fv, &FormatError{
				Cookie: cookie,
				Reason: fmt.Sprintf("unsupported version %d.%d", fv.Automata, fv.Client),
			}
		}
	default:
		return nil, fv, &FormatError{Cookie: cookie, Reason: "unknown cookie"}
	}

	params := readParams(in, fv)
	if err := in.Err(); err != nil {
		return nil, fv, &FormatError{Cookie: cookie, Reason: "truncated parameters", Err: unexpectedEOF(err)}
	}

	graph, err := automata.ReadBinary[Cell](in, fv)
	if err != nil {
		var dangling *DanglingReferenceError
		if errors.As(err, &dangling) {
			return nil, fv, fmt.Errorf("restore topology: %w", err)
		}
		return nil, fv, &FormatError{Cookie: cookie, Reason: "corrupt body", Err: unexpectedEOF(err)}
	}
	for _, index := range graph.Live() {
		state, _ := graph.Cell(index)
		for _, kind := range []Kind{state.Current().Kind, state.Former().Kind} {
			if !kind.Valid() {
				return nil, fv, &FormatError{Cookie: cookie, Reason: fmt.Sprintf("cell %d has unknown kind %d", index, kind)}
			}
		}
	}

	n := New()
	n.graph = graph
	n.params = params
	return n, fv, nil
}

// unexpectedEOF reports a stream ending on a field boundary the same way as one
// ending mid-field.
func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", io.ErrUnexpectedEOF, err)
	}
	return err
}
