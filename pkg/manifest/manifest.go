// Package manifest reads and writes .uplugin/.uproject style JSON descriptors.
//
// A Manifest keeps the fields of the top-level object in file order and holds
// each value as raw JSON, so fields that are never edited survive a
// Load/Save round trip unchanged.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/marketpack/marketpack/pkg/types"
)

// DefaultDependencyField is the list field holding {"Name": ...} dependency entries
const DefaultDependencyField = "Plugins"

// ErrNotFound is returned by Load when the manifest file does not exist
var ErrNotFound = errors.New("manifest not found")

// ParseError reports a manifest that is not a JSON object
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid manifest: %v", e.Err)
	}
	return fmt.Sprintf("invalid manifest %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes every ParseError match types.ErrConfig
func (e *ParseError) Is(target error) bool { return target == types.ErrConfig }

type field struct {
	name string
	raw  json.RawMessage
}

// Manifest is an ordered set of top-level JSON fields
type Manifest struct {
	fields []field
	index  map[string]int
}

// New returns an empty manifest
func New() *Manifest {
	return &Manifest{index: make(map[string]int)}
}

// Parse decodes a manifest from JSON text. The document must be a single object.
func Parse(data []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, &ParseError{Err: fmt.Errorf("top-level value must be an object, got %v", tok)}
	}

	m := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		name, ok := tok.(string)
		if !ok {
			return nil, &ParseError{Err: fmt.Errorf("unexpected token %v", tok)}
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, &ParseError{Err: fmt.Errorf("field %q: %w", name, err)}
		}
		m.setRaw(name, raw)
	}

	if _, err := dec.Token(); err != nil {
		return nil, &ParseError{Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ParseError{Err: errors.New("trailing data after object")}
	}
	return m, nil
}

// Load reads and parses the manifest at path
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := Parse(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return m, nil
}

// Fields returns the field names in order
func (m *Manifest) Fields() []string {
	names := make([]string, len(m.fields))
	for i, f := range m.fields {
		names[i] = f.name
	}
	return names
}

// Has reports whether the field exists
func (m *Manifest) Has(name string) bool {
	_, ok := m.index[name]
	return ok
}

// Get returns the raw JSON value of a field
func (m *Manifest) Get(name string) (json.RawMessage, bool) {
	i, ok := m.index[name]
	if !ok {
		return nil, false
	}
	return m.fields[i].raw, true
}

// GetString returns a string field. ok is false if the field is absent or not a string.
func (m *Manifest) GetString(name string) (string, bool) {
	raw, ok := m.Get(name)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// SetField inserts or overwrites a field. Overwrites keep the field's position;
// new fields are appended.
func (m *Manifest) SetField(name string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode field %q: %w", name, err)
	}
	m.setRaw(name, raw)
	return nil
}

func (m *Manifest) setRaw(name string, raw json.RawMessage) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[name]; ok {
		m.fields[i].raw = raw
		return
	}
	m.index[name] = len(m.fields)
	m.fields = append(m.fields, field{name: name, raw: raw})
}

// RemoveField deletes a field entirely. It reports whether the field existed.
func (m *Manifest) RemoveField(name string) bool {
	i, ok := m.index[name]
	if !ok {
		return false
	}
	m.fields = append(m.fields[:i], m.fields[i+1:]...)
	delete(m.index, name)
	for j := i; j < len(m.fields); j++ {
		m.index[m.fields[j].name] = j
	}
	return true
}

// RemoveDependency drops entries whose "Name" equals name from the list field.
// A missing list field is left missing. It returns the number of entries removed.
func (m *Manifest) RemoveDependency(listField, name string) (int, error) {
	if listField == "" {
		listField = DefaultDependencyField
	}
	raw, ok := m.Get(listField)
	if !ok {
		return 0, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 0, &ParseError{Err: fmt.Errorf("field %q is not a list: %w", listField, err)}
	}

	kept := make([]json.RawMessage, 0, len(entries))
	removed := 0
	for _, entry := range entries {
		var dep struct {
			Name string `json:"Name"`
		}
		if json.Unmarshal(entry, &dep) == nil && dep.Name == name {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	if removed == 0 {
		return 0, nil
	}

	data, err := json.Marshal(kept)
	if err != nil {
		return 0, err
	}
	m.setRaw(listField, data)
	return removed, nil
}

// Dependencies returns the names listed in the dependency field
func (m *Manifest) Dependencies(listField string) []string {
	if listField == "" {
		listField = DefaultDependencyField
	}
	raw, ok := m.Get(listField)
	if !ok {
		return nil
	}
	var entries []struct {
		Name string `json:"Name"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

// Marshal serializes the manifest with tab indentation in field order
func (m *Manifest) Marshal() ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('{')
	for i, f := range m.fields {
		if i > 0 {
			compact.WriteByte(',')
		}
		key, err := json.Marshal(f.name)
		if err != nil {
			return nil, err
		}
		compact.Write(key)
		compact.WriteByte(':')
		if err := json.Compact(&compact, f.raw); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.name, err)
		}
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "\t"); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// Save writes the manifest to path, replacing the file atomically
func Save(m *Manifest, path string) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set manifest permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}
