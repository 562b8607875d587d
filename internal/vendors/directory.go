// Package vendors maps Bluetooth SIG company identifiers to manufacturer names.
package vendors

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
)

// NoManufacturer is reported for events without manufacturer data.
const NoManufacturer = "(none)"

// Directory is a read-only company id lookup table.
type Directory struct {
	names map[uint16]string
}

// NewDirectory builds a directory from an in-memory table.
func NewDirectory(names map[uint16]string) *Directory {
	d := &Directory{names: make(map[uint16]string, len(names))}
	for id, name := range names {
		d.names[id] = name
	}
	return d
}

// Load reads a two-column CSV of hex company id and name. A missing file
// yields an empty directory so unresolved ids still render.
func Load(path string) (*Directory, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("Vendors: %s not found, using empty directory", path)
		return NewDirectory(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open manufacturer db: %w", err)
	}
	defer f.Close()

	d, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	log.Printf("Vendors: loaded %d manufacturer ids from %s", d.Len(), path)
	return d, nil
}

// Parse reads directory rows from r. Rows with fewer than two columns or an
// unparsable id are skipped.
func Parse(r io.Reader) (*Directory, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	d := NewDirectory(nil)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) < 2 {
			continue
		}
		id, ok := parseID(row[0])
		if !ok {
			continue
		}
		d.names[id] = strings.TrimSpace(row[1])
	}
	return d, nil
}

func parseID(s string) (uint16, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

// Resolve returns the manufacturer name for id.
func (d *Directory) Resolve(id uint16) string {
	if id == 0 {
		return NoManufacturer
	}
	if d != nil {
		if name, ok := d.names[id]; ok {
			return name
		}
	}
	return fmt.Sprintf("Unknown(0x%04X)", id)
}

// Len returns the number of known ids.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.names)
}
