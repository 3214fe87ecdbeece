// Package migrate rewrites serialized entity documents written with the
// legacy field names to the current format.
//
// Legacy documents store components under "_components", the format
// version under "_entityVersion" and each type token under "_type" or
// "_componentType" using '#' between name and version ("Scene#1"). Some
// also carry an obsolete "_activity" field.
package migrate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/entitydoc/internal/component"
)

// ErrInvalidDocument indicates input that is not a JSON object.
var ErrInvalidDocument = errors.New("invalid entity document")

const (
	legacyComponents    = "_components"
	legacyEntityVersion = "_entityVersion"
	legacyActivity      = "_activity"
	legacySeparator     = "#"
)

var legacyTypeFields = []string{"_type", "_componentType"}

// Entity returns raw rewritten to the current field names and whether
// anything changed. Current documents are returned unchanged.
func Entity(raw []byte) ([]byte, bool, error) {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return nil, false, ErrInvalidDocument
	}

	m := &migration{doc: raw}
	m.rename(legacyEntityVersion, component.EntityVersionField)
	m.rename(legacyComponents, component.ComponentsField)
	m.delete(legacyActivity)

	components := gjson.GetBytes(m.doc, component.ComponentsField)
	if components.IsArray() {
		for i := range components.Array() {
			m.migrateComponent(i)
		}
	}

	if m.err != nil {
		return nil, false, m.err
	}
	return m.doc, m.changed, nil
}

// migration applies a sequence of edits, stopping at the first error.
type migration struct {
	doc     []byte
	changed bool
	err     error
}

// rename moves the value at from to to. An existing value at to wins.
func (m *migration) rename(from, to string) {
	if m.err != nil {
		return
	}
	old := gjson.GetBytes(m.doc, from)
	if !old.Exists() {
		return
	}
	if !gjson.GetBytes(m.doc, to).Exists() {
		m.setRaw(to, old.Raw)
	}
	m.delete(from)
}

func (m *migration) migrateComponent(i int) {
	base := component.ComponentsField + "." + strconv.Itoa(i) + "."
	for _, field := range legacyTypeFields {
		m.rename(base+field, base+component.TypeField)
	}

	token := gjson.GetBytes(m.doc, base+component.TypeField)
	if token.Type == gjson.String && strings.Contains(token.Str, legacySeparator) {
		m.set(base+component.TypeField, strings.Replace(token.Str, legacySeparator, "@", 1))
	}
}

func (m *migration) set(path string, value any) {
	if m.err != nil {
		return
	}
	out, err := sjson.SetBytes(m.doc, path, value)
	if err != nil {
		m.err = fmt.Errorf("migrate %s: %w", path, err)
		return
	}
	m.doc = out
	m.changed = true
}

func (m *migration) setRaw(path, raw string) {
	if m.err != nil {
		return
	}
	out, err := sjson.SetRawBytes(m.doc, path, []byte(raw))
	if err != nil {
		m.err = fmt.Errorf("migrate %s: %w", path, err)
		return
	}
	m.doc = out
	m.changed = true
}

func (m *migration) delete(path string) {
	if m.err != nil || !gjson.GetBytes(m.doc, path).Exists() {
		return
	}
	out, err := sjson.DeleteBytes(m.doc, path)
	if err != nil {
		m.err = fmt.Errorf("migrate %s: %w", path, err)
		return
	}
	m.doc = out
	m.changed = true
}
