package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Criterion is one search form field.
type Criterion struct {
	Name  string
	Value string
}

// SearchCriteria is an ordered mapping of form field name to value. A nil
// SearchCriteria is not a mapping; an empty non-nil one is.
type SearchCriteria []Criterion

// ParseCriteria decodes a JSON object, keeping key order.
func ParseCriteria(data string) (SearchCriteria, error) {
	var c SearchCriteria
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the value of the last field named name.
func (c SearchCriteria) Get(name string) (string, bool) {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Name == name {
			return c[i].Value, true
		}
	}
	return "", false
}

// Clone returns an independent copy, preserving nil.
func (c SearchCriteria) Clone() SearchCriteria {
	if c == nil {
		return nil
	}
	out := make(SearchCriteria, len(c))
	copy(out, c)
	return out
}

// String renders the criteria as compact JSON.
func (c SearchCriteria) String() string {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%v", []Criterion(c))
	}
	return string(data)
}

// MarshalJSON writes an object with keys in order.
func (c SearchCriteria) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kv.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of scalar values, keeping key order. Numbers
// and booleans are kept in their literal form.
func (c *SearchCriteria) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("search criteria must be a JSON object")
	}

	out := SearchCriteria{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected key %v", keyTok)
		}
		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		var value string
		switch v := valTok.(type) {
		case string:
			value = v
		case json.Number:
			value = v.String()
		case bool:
			value = fmt.Sprintf("%t", v)
		case nil:
			value = ""
		default:
			return fmt.Errorf("criteria field %q must be a scalar", key)
		}
		out = append(out, Criterion{Name: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}
