package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Well-known record keys.
const (
	FieldFilename = "filename"
	FieldTitle    = "title"
	FieldCoverURL = "coverUrl"
)

// Record is one book entry of the catalog. It keeps every field of its
// source object so enrichment never drops data the catalog does not know
// about.
type Record struct {
	fields map[string]json.RawMessage
}

// NewRecord builds a record from the three fields classification cares about.
// Empty values are omitted.
func NewRecord(filename, title, coverURL string) Record {
	var r Record
	if filename != "" {
		r.Set(FieldFilename, filename)
	}
	if title != "" {
		r.Set(FieldTitle, title)
	}
	if coverURL != "" {
		r.Set(FieldCoverURL, coverURL)
	}
	return r
}

// Filename returns the filename field, "" if missing or not a string.
func (r Record) Filename() string { return r.Get(FieldFilename) }

// Title returns the title field, "" if missing or not a string.
func (r Record) Title() string { return r.Get(FieldTitle) }

// CoverURL returns the cover reference, "" if missing or not a string.
func (r Record) CoverURL() string { return r.Get(FieldCoverURL) }

// Get returns a string field. Missing, null and non-string values read as "".
func (r Record) Get(key string) string {
	raw, ok := r.fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Raw returns the encoded value of key.
func (r Record) Raw(key string) (json.RawMessage, bool) {
	raw, ok := r.fields[key]
	return raw, ok
}

// Has reports whether key is present.
func (r Record) Has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

// Set stores a string field, replacing any previous value.
func (r *Record) Set(key, value string) {
	raw, _ := marshalNoEscape(value) // strings always encode
	r.SetRaw(key, raw)
}

// SetRaw stores an already encoded JSON value.
func (r *Record) SetRaw(key string, raw json.RawMessage) {
	if r.fields == nil {
		r.fields = make(map[string]json.RawMessage)
	}
	r.fields[key] = append(json.RawMessage(nil), raw...)
}

// Keys returns the field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len is the number of fields.
func (r Record) Len() int { return len(r.fields) }

// Clone returns a record that shares no state with r.
func (r Record) Clone() Record {
	if r.fields == nil {
		return Record{}
	}
	out := Record{fields: make(map[string]json.RawMessage, len(r.fields))}
	for k, v := range r.fields {
		out.fields[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Equal reports whether both records hold the same fields with
// byte-identical encodings.
func (r Record) Equal(other Record) bool {
	if len(r.fields) != len(other.fields) {
		return false
	}
	for k, v := range r.fields {
		ov, ok := other.fields[k]
		if !ok || !bytes.Equal(v, ov) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the record as a JSON object with sorted keys.
func (r Record) MarshalJSON() ([]byte, error) {
	if len(r.fields) == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, k); err != nil {
			return nil, err
		}
		buf.Write(r.fields[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object. Any other JSON value is rejected.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("decode record: expected object, got null")
	}
	r.fields = fields
	return nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	enc, err := marshalNoEscape(key)
	if err != nil {
		return err
	}
	buf.Write(enc)
	buf.WriteByte(':')
	return nil
}

// marshalNoEscape encodes v without HTML escaping so titles such as
// "Food & Kitchen" stay readable in the written files.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
