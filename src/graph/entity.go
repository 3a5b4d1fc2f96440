package graph

import (
	"io"
	"reflect"
)

// FieldID is the name of the field that holds an entity's id.
const FieldID = "id"

// LocalFields lists the fields that hold host-local resource handles. They are
// removed from entities before they leave the process.
var LocalFields = []string{"fileHandle", "objectURL"}

// Entity is an opaque record keyed by field name.
type Entity map[string]interface{}

// ID returns the value of the entity's "id" field, or the empty string.
func (e Entity) ID() string {
	id, _ := e[FieldID].(string)
	return id
}

// Clone returns a shallow copy of the entity.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	c := make(Entity, len(e))
	for k, v := range e {
		c[k] = v
	}
	return c
}

// Merge copies the fields of patch into e, overwriting existing values.
func (e Entity) Merge(patch Entity) {
	for k, v := range patch {
		e[k] = v
	}
}

// Sanitize returns a copy of the entity without the fields that cannot cross a
// process boundary: the LocalFields, and any value that is a function, a
// channel, an unsafe pointer, or an io.Reader/io.Writer/io.Closer handle.
// Nested maps and slices are sanitized as well.
func (e Entity) Sanitize() Entity {
	if e == nil {
		return nil
	}
	return Entity(sanitizeMap(e))
}

func sanitizeMap(m map[string]interface{}) map[string]interface{} {
	c := make(map[string]interface{}, len(m))
	for k, v := range m {
		if isLocalField(k) || isLocalValue(v) {
			continue
		}
		c[k] = sanitizeValue(v)
	}
	return c
}

func sanitizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Entity:
		return t.Sanitize()
	case map[string]interface{}:
		return sanitizeMap(t)
	case []interface{}:
		c := make([]interface{}, 0, len(t))
		for _, item := range t {
			if isLocalValue(item) {
				continue
			}
			c = append(c, sanitizeValue(item))
		}
		return c
	}
	return v
}

func isLocalField(name string) bool {
	for _, f := range LocalFields {
		if f == name {
			return true
		}
	}
	return false
}

func isLocalValue(v interface{}) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case io.Reader, io.Writer, io.Closer:
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return false
}

// Visibility is the default visibility applied to entities that do not carry
// their own.
type Visibility string

const (
	// VisibilityPublic makes entities visible to every guest
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate hides entities unless they opt in
	VisibilityPrivate Visibility = "private"
)

// State is a copy of the contents of a Store.
type State struct {
	Entities          map[string]Entity
	DefaultVisibility *Visibility
	SharedMode        bool
}
