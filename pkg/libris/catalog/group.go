package catalog

import (
	"bytes"
	"encoding/json"
)

// Group collects the records sharing one normalized id.
type Group struct {
	ID          string
	Label       string
	Description string
	CoverURL    string
	Books       []Record

	// IDKey and LabelKey name the id and label properties in the encoded
	// group, e.g. "seriesId" and "seriesName".
	IDKey    string
	LabelKey string
}

// Len is the number of member records.
func (g Group) Len() int { return len(g.Books) }

// MarshalJSON writes the group with its keys in a fixed order:
// id, label, description, coverUrl, books.
func (g Group) MarshalJSON() ([]byte, error) {
	idKey, labelKey := g.IDKey, g.LabelKey
	if idKey == "" {
		idKey = "id"
	}
	if labelKey == "" {
		labelKey = "name"
	}

	books := g.Books
	if books == nil {
		books = []Record{}
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	pairs := []struct {
		key   string
		value any
	}{
		{idKey, g.ID},
		{labelKey, g.Label},
		{"description", g.Description},
		{FieldCoverURL, g.CoverURL},
		{"books", books},
	}
	for i, p := range pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, p.key); err != nil {
			return nil, err
		}
		enc, err := marshalNoEscape(p.value)
		if err != nil {
			return nil, err
		}
		buf.Write(enc)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalGroup decodes a group written by MarshalJSON using the given key names.
func UnmarshalGroup(data []byte, idKey, labelKey string) (Group, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Group{}, err
	}
	g := Group{IDKey: idKey, LabelKey: labelKey}
	fields := []struct {
		key string
		dst *string
	}{
		{idKey, &g.ID},
		{labelKey, &g.Label},
		{"description", &g.Description},
		{FieldCoverURL, &g.CoverURL},
	}
	for _, f := range fields {
		if v, ok := raw[f.key]; ok {
			if err := json.Unmarshal(v, f.dst); err != nil {
				return Group{}, err
			}
		}
	}
	if v, ok := raw["books"]; ok {
		if err := json.Unmarshal(v, &g.Books); err != nil {
			return Group{}, err
		}
	}
	return g, nil
}
