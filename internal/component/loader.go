package component

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/schema"
)

// Format is the encoding of a definition file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatForPath returns the format implied by a file extension.
func FormatForPath(name string) (Format, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".toml":
		return FormatTOML, true
	}
	return "", false
}

// ParseDefinition decodes a definition file of the form
//
//	{"type": "Scene", "version": 1, "tags": [...], "schema": {...}, "prototype": {...}}
//
// YAML and TOML files use the same keys.
func ParseDefinition(data []byte, format Format) (Definition, error) {
	raw, err := toJSON(data, format)
	if err != nil {
		return Definition{}, err
	}
	if !gjson.ValidBytes(raw) {
		return Definition{}, fmt.Errorf("%w: not a valid document", ErrInvalidDefinition)
	}

	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return Definition{}, fmt.Errorf("%w: definition must be an object", ErrInvalidDefinition)
	}

	def := Definition{
		Type:        doc.Get("type").String(),
		Description: doc.Get("description").String(),
	}

	version := doc.Get("version")
	if version.Type != gjson.Number || version.Num != float64(int(version.Num)) {
		return Definition{}, fmt.Errorf("%w: %q: version must be an integer", ErrInvalidDefinition, def.Type)
	}
	def.Version = int(version.Num)

	doc.Get("tags").ForEach(func(_, tag gjson.Result) bool {
		def.Tags = append(def.Tags, tag.String())
		return true
	})

	schemaRaw := doc.Get("schema")
	if !schemaRaw.Exists() {
		return Definition{}, fmt.Errorf("%w: %s: missing schema", ErrInvalidDefinition, def.Token())
	}
	if def.Schema, err = schema.Parse([]byte(schemaRaw.Raw)); err != nil {
		return Definition{}, fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, def.Token(), err)
	}

	if proto := doc.Get("prototype"); proto.Exists() {
		if def.Prototype, err = node.Parse([]byte(proto.Raw)); err != nil {
			return Definition{}, fmt.Errorf("%w: %s: prototype: %v", ErrInvalidDefinition, def.Token(), err)
		}
	}
	return def, nil
}

// toJSON converts YAML and TOML input to JSON. JSON input is returned as is
// so that the prototype keeps its key order.
func toJSON(data []byte, format Format) ([]byte, error) {
	var generic map[string]any
	switch format {
	case FormatJSON:
		return data, nil
	case FormatYAML:
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("%w: yaml: %v", ErrInvalidDefinition, err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("%w: toml: %v", ErrInvalidDefinition, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidDefinition, format)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return out, nil
}

// LoadDefinitions reads every definition file directly under dir in fsys,
// in lexical order. Files with unknown extensions are skipped.
func LoadDefinitions(fsys fs.FS, dir string) ([]Definition, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read definitions %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var defs []Definition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format, ok := FormatForPath(entry.Name())
		if !ok {
			continue
		}
		name := path.Join(dir, entry.Name())
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read definition %s: %w", name, err)
		}
		def, err := ParseDefinition(data, format)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Load registers every definition found under dir and returns how many were read.
func (r *Registry) Load(fsys fs.FS, dir string) (int, error) {
	defs, err := LoadDefinitions(fsys, dir)
	if err != nil {
		return 0, err
	}
	for _, def := range defs {
		if err := r.RegisterDefinition(def); err != nil {
			return 0, err
		}
	}
	return len(defs), nil
}
