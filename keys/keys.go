// Package keys derives cache keys from a logical identifier and its
// parameters.
//
// Two requests with the same id and the same parameters always produce the
// same key, whatever order the parameters were supplied in.
package keys

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Derive returns id when params is empty and id:<canonical params> otherwise.
// The canonical form is JSON with object keys sorted at every level.
func Derive(id string, params map[string]any) (string, error) {
	if len(params) == 0 {
		return id, nil
	}

	var buf bytes.Buffer
	buf.WriteString(id)
	buf.WriteByte(':')
	if err := writeCanonical(&buf, params); err != nil {
		return "", fmt.Errorf("derive key %q: %w", id, err)
	}
	return buf.String(), nil
}

// MustDerive is like Derive but panics when params cannot be encoded.
func MustDerive(id string, params map[string]any) string {
	key, err := Derive(id, params)
	if err != nil {
		panic(err)
	}
	return key
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		names := make([]string, 0, len(val))
		for k := range val {
			names = append(names, k)
		}
		sort.Strings(names)

		buf.WriteByte('{')
		for i, k := range names {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, _ := json.Marshal(k)
			buf.Write(name)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	default:
		data, err := json.Marshal(val)
		if err != nil {
			return err
		}
		// Structs and typed maps are normalised through a generic decode so
		// their keys get sorted too.
		if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
			var generic any
			if err := json.Unmarshal(data, &generic); err != nil {
				return err
			}
			switch generic.(type) {
			case map[string]any, []any:
				return writeCanonical(buf, generic)
			}
		}
		buf.Write(data)
		return nil
	}
}

// Builder namespaces derived keys, for example per application or per user.
type Builder struct {
	Prefix string
	Suffix string
}

// Key derives a key and wraps it in the builder's prefix and suffix.
func (b Builder) Key(id string, params map[string]any) (string, error) {
	key, err := Derive(id, params)
	if err != nil {
		return "", err
	}
	return b.Prefix + key + b.Suffix, nil
}
