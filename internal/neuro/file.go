package neuro

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
)

// OpenFile reads a network file. A missing or unreadable file is reported as
// an *IOError before any parsing.
func OpenFile(path string) (*Net, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	return ReadNet(bytes.NewReader(data))
}

// SaveFile writes the network to path through a temporary file in the same
// directory, so a failed save leaves any existing file intact.
func (n *Net) SaveFile(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return &IOError{Op: "save", Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())

	buf := bufio.NewWriter(tmp)
	if err := n.WriteBinary(buf); err != nil {
		_ = tmp.Close()
		return &IOError{Op: "save", Path: path, Err: err}
	}
	if err := buf.Flush(); err != nil {
		_ = tmp.Close()
		return &IOError{Op: "save", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Op: "save", Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &IOError{Op: "save", Path: path, Err: err}
	}
	return nil
}
