// Package parser reads model-definition documents and turns them into the schema of
// entity types the engines work on.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/asakaida/datagraph/internal/entities"
)

// Parse decodes one model definition. JSON documents are accepted as YAML.
func Parse(data []byte, source string) (*Definition, error) {
	if strings.EqualFold(path.Ext(source), ".json") && !json.Valid(data) {
		return nil, fmt.Errorf("%s: invalid JSON", source)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	def := &Definition{}
	if err := dec.Decode(def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty model definition", source)
		}
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	def.Source = source
	return def, nil
}

// LoadFS reads every .json, .yaml and .yml file of dir in fsys, sorted by file name
func LoadFS(fsys fs.FS, dir string) ([]*Definition, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read model directory %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var defs []*Definition
	for _, entry := range entries {
		if entry.IsDir() || !isModelFile(entry.Name()) {
			continue
		}
		name := path.Join(dir, entry.Name())
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		def, err := Parse(data, name)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no model definitions found in %s", dir)
	}
	return defs, nil
}

// LoadDir reads the model definitions of a directory on disk
func LoadDir(dir string) ([]*Definition, error) {
	return LoadFS(os.DirFS(dir), ".")
}

// LoadSchema reads, validates and converts the model definitions of fsys
func LoadSchema(fsys fs.FS, dir string) (*entities.Schema, []*Definition, error) {
	defs, err := LoadFS(fsys, dir)
	if err != nil {
		return nil, nil, err
	}
	if err := NewValidator(defs).Validate(); err != nil {
		return nil, nil, err
	}
	schema, err := ToSchema(defs)
	if err != nil {
		return nil, nil, err
	}
	return schema, defs, nil
}

func isModelFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
