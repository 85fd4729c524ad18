// Package codec encodes cache values for the persistent tiers and estimates
// their size for capacity accounting.
package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/krisalay/tiered-cache/types"
)

// Encode returns the JSON form of value.
func Encode(key string, value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, types.SerializationError(key, err)
	}
	return data, nil
}

// Decode unmarshals payload into a new T.
func Decode[T any](key string, payload []byte) (T, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, types.SerializationError(key, err)
	}
	return out, nil
}

// Convert turns a value produced by a loader or held in memory into T.
// Values already of type T are returned as is; anything else makes a trip
// through JSON, which is how payloads read from disk are decoded too.
func Convert[T any](key string, value any) (T, error) {
	if v, ok := value.(T); ok {
		return v, nil
	}
	if raw, ok := value.(json.RawMessage); ok {
		return Decode[T](key, raw)
	}
	data, err := Encode(key, value)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](key, data)
}

// Size is the accounted size of an entry: the key length plus the length of
// the encoded value.
func Size(key string, payload []byte) int64 {
	return int64(len(key) + len(payload))
}

/*
EstimateSize is the best-effort size of a value that will be held in memory
without being encoded. When the value encodes cleanly the result matches
Size. Values that cannot be encoded (channels, functions, cyclic graphs) are
estimated from their Go representation so that they still count against the
tier's byte budget.
*/
func EstimateSize(key string, value any) int64 {
	if data, err := json.Marshal(value); err == nil {
		return Size(key, data)
	}
	return int64(len(key)) + estimate(reflect.ValueOf(value), 0)
}

const maxEstimateDepth = 8

func estimate(v reflect.Value, depth int) int64 {
	if !v.IsValid() {
		return 4
	}
	if depth > maxEstimateDepth {
		return int64(v.Type().Size())
	}

	switch v.Kind() {
	case reflect.String:
		return int64(v.Len()) + 2
	case reflect.Slice, reflect.Array:
		var n int64 = 2
		for i := 0; i < v.Len(); i++ {
			n += estimate(v.Index(i), depth+1) + 1
		}
		return n
	case reflect.Map:
		var n int64 = 2
		iter := v.MapRange()
		for iter.Next() {
			n += estimate(iter.Key(), depth+1) + estimate(iter.Value(), depth+1) + 2
		}
		return n
	case reflect.Struct:
		var n int64 = 2
		for i := 0; i < v.NumField(); i++ {
			n += int64(len(v.Type().Field(i).Name)) + estimate(v.Field(i), depth+1) + 4
		}
		return n
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return 4
		}
		return estimate(v.Elem(), depth+1)
	default:
		return int64(len(fmt.Sprint(sizeProbe(v))))
	}
}

// sizeProbe returns something printable for scalar kinds and a fixed-width
// placeholder for kinds that have no meaningful textual form.
func sizeProbe(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return "00000000"
	}
	if v.CanInterface() {
		return v.Interface()
	}
	return int64(v.Type().Size())
}
