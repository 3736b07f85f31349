package masedb

import (
	"strconv"
	"strings"

	"github.com/autom8ter/masedb/errors"
	"github.com/tidwall/gjson"
)

// Field is a named document value
type Field struct {
	Name  string
	Value Value
}

// Document is an immutable, ordered mapping of field names to values. It is safe for concurrent use.
type Document struct {
	fields []Field
}

// NewDocument creates a new empty document
func NewDocument() *Document {
	return &Document{}
}

// NewDocumentFromFields creates a document from fields in the given order. A repeated name overwrites the earlier value in place.
func NewDocumentFromFields(fields ...Field) *Document {
	d := &Document{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		d.fields = upsertField(d.fields, f.Name, f.Value)
	}
	return d
}

// NewDocumentFromBytes creates a new document from the given json bytes, preserving field order
func NewDocumentFromBytes(json []byte) (*Document, error) {
	v, err := ParseValue(json)
	if err != nil {
		return nil, err
	}
	if v.kind != KindDocument {
		return nil, errors.New(errors.Validation, "invalid document: expected a json object, got %s", v.kind)
	}
	return v.doc, nil
}

// NewDocumentFrom creates a new document from the given value - maps, structs and documents are supported
func NewDocumentFrom(value any) (*Document, error) {
	v, err := ValueOf(value)
	if err != nil {
		return nil, err
	}
	if v.kind != KindDocument {
		return nil, errors.New(errors.Validation, "invalid document: expected an object, got %s", v.kind)
	}
	return v.doc, nil
}

// MustDocument is like NewDocumentFrom but panics on error
func MustDocument(value any) *Document {
	d, err := NewDocumentFrom(value)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseValue parses any json value. Integral numbers without a fraction or exponent become Int64 when they fit.
func ParseValue(json []byte) (Value, error) {
	if !gjson.ValidBytes(json) {
		return Null(), errors.New(errors.Validation, "invalid json: %s", string(json))
	}
	return fromResult(gjson.ParseBytes(json)), nil
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.True:
		return Bool(true)
	case gjson.False:
		return Bool(false)
	case gjson.String:
		return String(r.Str)
	case gjson.Number:
		if !strings.ContainsAny(r.Raw, ".eE") {
			if i, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
				return Int(i)
			}
		}
		return Float(r.Num)
	case gjson.JSON:
		if r.IsArray() {
			var elems []Value
			r.ForEach(func(_, value gjson.Result) bool {
				elems = append(elems, fromResult(value))
				return true
			})
			if elems == nil {
				elems = []Value{}
			}
			return arrayOf(elems)
		}
		var fields []Field
		r.ForEach(func(key, value gjson.Result) bool {
			fields = upsertField(fields, key.Str, fromResult(value))
			return true
		})
		return Value{kind: KindDocument, doc: &Document{fields: fields}}
	}
	return Null()
}

// Len returns the number of top level fields
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}

// Fields returns a copy of the document's fields in order
func (d *Document) Fields() []Field {
	if d == nil {
		return nil
	}
	cp := make([]Field, len(d.fields))
	copy(cp, d.fields)
	return cp
}

// Keys returns the top level field names in order
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.fields))
	for i, f := range d.fields {
		keys[i] = f.Name
	}
	return keys
}

// Field returns a top level field by name (no path traversal)
func (d *Document) Field(name string) (Value, bool) {
	if d == nil {
		return Null(), false
	}
	for _, f := range d.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Null(), false
}

// Get resolves a dot notation path. Numeric segments index arrays; other segments applied to an array resolve
// against its first document element that has them.
func (d *Document) Get(path string) (Value, bool) {
	found := resolve(Doc(d), splitPath(path), nil)
	if len(found) == 0 {
		return Null(), false
	}
	return found[0], true
}

// GetString returns the string at path or an empty string
func (d *Document) GetString(path string) string {
	v, _ := d.Get(path)
	return v.Str()
}

// Has returns true if the path resolves to a value
func (d *Document) Has(path string) bool {
	_, ok := d.Get(path)
	return ok
}

// Map returns the document as a map of plain Go values
func (d *Document) Map() map[string]any {
	m := make(map[string]any, d.Len())
	if d == nil {
		return m
	}
	for _, f := range d.fields {
		m[f.Name] = f.Value.Interface()
	}
	return m
}

// Equal returns true if both documents hold equal values under the same names in the same order
func (d *Document) Equal(other *Document) bool {
	if d.Len() != other.Len() {
		return false
	}
	for i := 0; i < d.Len(); i++ {
		if d.fields[i].Name != other.fields[i].Name || !Equal(d.fields[i].Value, other.fields[i].Value) {
			return false
		}
	}
	return true
}

// String returns the document as a json string
func (d *Document) String() string {
	var sb strings.Builder
	d.writeJSON(&sb)
	return sb.String()
}

// Bytes returns the document as json bytes
func (d *Document) Bytes() []byte {
	return []byte(d.String())
}

// MarshalJSON satisfies the json Marshaler interface, preserving field order
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.Bytes(), nil
}

// UnmarshalJSON satisfies the json Unmarshaler interface. It is meant for decoding into a zero Document only.
func (d *Document) UnmarshalJSON(bytes []byte) error {
	doc, err := NewDocumentFromBytes(bytes)
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

func (d *Document) writeJSON(sb *strings.Builder) {
	sb.WriteByte('{')
	if d != nil {
		for i, f := range d.fields {
			if i > 0 {
				sb.WriteByte(',')
			}
			String(f.Name).writeJSON(sb)
			sb.WriteByte(':')
			f.Value.writeJSON(sb)
		}
	}
	sb.WriteByte('}')
}

// with returns a copy of the document with name set to v
func (d *Document) with(name string, v Value) *Document {
	fields := make([]Field, len(d.fields), len(d.fields)+1)
	copy(fields, d.fields)
	return &Document{fields: upsertField(fields, name, v)}
}

// without returns a copy of the document without name
func (d *Document) without(name string) *Document {
	fields := make([]Field, 0, len(d.fields))
	for _, f := range d.fields {
		if f.Name != name {
			fields = append(fields, f)
		}
	}
	return &Document{fields: fields}
}

func upsertField(fields []Field, name string, v Value) []Field {
	for i := range fields {
		if fields[i].Name == name {
			fields[i].Value = v
			return fields
		}
	}
	return append(fields, Field{Name: name, Value: v})
}

// Documents is a list of documents
type Documents []*Document

// Filter returns the documents matching the filter
func (documents Documents) Filter(filter *Filter) Documents {
	var out Documents
	for _, d := range documents {
		if filter.Match(d) {
			out = append(out, d)
		}
	}
	return out
}
