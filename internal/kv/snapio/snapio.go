// Package snapio is the snapshot section codec: a concrete stand-in for
// the external collaborator offering writeSection/readSection, backed by
// encoding/gob — the same serialization idiom the rest of the pack uses
// for "turn a structured Go value into bytes" concerns.
package snapio

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// SectionWriter writes a named section of a snapshot under dir.
type SectionWriter interface {
	WriteSection(dir, name string, v any) error
}

// SectionReader reads a named section of a snapshot back from dir.
type SectionReader interface {
	ReadSection(dir, name string, out any) error
}

// GobSectionIO implements SectionWriter/SectionReader as one gob-encoded
// file per section, in a plain directory. File format is otherwise
// opaque to the engine, which only names sections and supplies payloads.
type GobSectionIO struct{}

// WriteSection gob-encodes v into <dir>/<name>, creating dir if needed.
func (GobSectionIO) WriteSection(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapio: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapio: create %s: %w", path, err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		return fmt.Errorf("snapio: encode %s: %w", path, err)
	}
	return nil
}

// ReadSection gob-decodes <dir>/<name> into out.
func (GobSectionIO) ReadSection(dir, name string, out any) error {
	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("snapio: open %s: %w", path, err)
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(out); err != nil {
		return fmt.Errorf("snapio: decode %s: %w", path, err)
	}
	return nil
}
