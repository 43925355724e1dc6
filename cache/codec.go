package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	hex "github.com/tmthrgd/go-hex"
)

// Reserved payload keys. Every serialized entity carries the producing
// type's name and its table name so a read-back can detect cross-model
// contamination before constructing anything.
const (
	payloadModelKey = "__model__"
	payloadTableKey = "__table__"
)

// Marker object keys. Values outside plain JSON are stored as
// {"__type__": tag, "value": canonical-form}.
const (
	markerTypeKey  = "__type__"
	markerValueKey = "value"
)

// Marker type tags and their canonical encodings.
const (
	tagDatetime  = "datetime"  // ISO-8601 timestamp string
	tagDate      = "date"      // ISO-8601 date string
	tagTime      = "time"      // ISO-8601 time string
	tagTimedelta = "timedelta" // total seconds as a float
	tagDecimal   = "decimal"   // exact-precision string
	tagBytes     = "bytes"     // lowercase hex string
	tagUUID      = "uuid"      // canonical hyphenated string
	tagSet       = "set"       // JSON array, order not round-trip stable
)

// TableNamer lets an entity declare the table/collection it originates
// from. Entities without it get the pluralized snake_case of their type
// name, which matches the common ORM default.
type TableNamer interface {
	TableName() string
}

// SerializeEntity encodes an entity's exported plain attributes as a JSON
// payload with type markers for values JSON cannot represent natively.
// The entity must be a struct or pointer to struct. Embedded fields are
// skipped; they are ORM bookkeeping (base models, insert-order sentinels),
// not plain attributes.
func SerializeEntity(entity any) ([]byte, error) {
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, fmt.Errorf("cache: cannot serialize nil entity")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cache: cannot serialize %s, want struct", rv.Kind())
	}

	rt := rv.Type()
	payload := make(map[string]any, rt.NumField()+2)
	payload[payloadModelKey] = rt.Name()
	payload[payloadTableKey] = tableNameOf(entity, rt)

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() || field.Anonymous {
			continue
		}
		name := jsonFieldName(field)
		if name == "" {
			continue
		}
		encoded, err := encodeValue(rv.Field(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("cache: field %s: %w", field.Name, err)
		}
		payload[name] = encoded
	}

	return json.Marshal(payload)
}

// DeserializeEntity decodes a payload produced by SerializeEntity into
// dest, which must be a non-nil pointer to struct. The payload's embedded
// model name must match dest's type name or ErrModelMismatch is returned;
// this stops a poisoned key from being silently read back as another
// model. The populated struct is a detached snapshot: it carries no
// relationship data and must not be handed to a live unit of work as-is.
func DeserializeEntity(data []byte, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("cache: deserialize target must be a non-nil pointer, got %T", dest)
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("cache: deserialize target must point to a struct, got %T", dest)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return corruptf("invalid JSON: %v", err)
	}

	if model, ok := payload[payloadModelKey].(string); ok && model != "" {
		if model != rv.Type().Name() {
			return fmt.Errorf("%w: payload is %q, target is %q", ErrModelMismatch, model, rv.Type().Name())
		}
	}
	delete(payload, payloadModelKey)
	delete(payload, payloadTableKey)

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() || field.Anonymous {
			continue
		}
		name := jsonFieldName(field)
		if name == "" {
			continue
		}
		raw, ok := payload[name]
		if !ok {
			continue
		}
		if err := assignValue(rv.Field(i), raw); err != nil {
			return fmt.Errorf("%w: field %s: %v", ErrPayloadCorrupt, field.Name, err)
		}
	}

	return nil
}

// tableNameOf resolves the table segment of the payload metadata.
func tableNameOf(entity any, rt reflect.Type) string {
	if tn, ok := entity.(TableNamer); ok {
		return tn.TableName()
	}
	return modelNameOf(rt)
}

// jsonFieldName resolves the payload key for a struct field, honoring the
// json tag. Returns "" for fields excluded with json:"-".
func jsonFieldName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

func marker(tag string, value any) map[string]any {
	return map[string]any{markerTypeKey: tag, markerValueKey: value}
}

// encodeValue converts a single attribute value to its payload form,
// applying the marker table for the types JSON cannot carry natively and
// recursing through pointers, slices, maps, and nested structs.
func encodeValue(v any) (any, error) {
	switch tv := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return marker(tagDatetime, tv.Format(time.RFC3339Nano)), nil
	case time.Duration:
		return marker(tagTimedelta, tv.Seconds()), nil
	case Date:
		return marker(tagDate, tv.String()), nil
	case TimeOfDay:
		return marker(tagTime, tv.String()), nil
	case decimal.Decimal:
		return marker(tagDecimal, tv.String()), nil
	case []byte:
		return marker(tagBytes, hex.EncodeToString(tv)), nil
	case uuid.UUID:
		return marker(tagUUID, tv.String()), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return encodeValue(rv.Elem().Interface())

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			enc, err := encodeValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil

	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
		if isSetType(rv.Type()) {
			members := make([]any, 0, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				enc, err := encodeValue(iter.Key().Interface())
				if err != nil {
					return nil, err
				}
				members = append(members, enc)
			}
			return marker(tagSet, members), nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			enc, err := encodeValue(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(iter.Key().Interface())] = enc
		}
		return out, nil

	case reflect.Struct:
		rt := rv.Type()
		out := make(map[string]any, rt.NumField())
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() || field.Anonymous {
				continue
			}
			name := jsonFieldName(field)
			if name == "" {
				continue
			}
			enc, err := encodeValue(rv.Field(i).Interface())
			if err != nil {
				return nil, err
			}
			out[name] = enc
		}
		return out, nil

	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return v, nil

	default:
		return nil, fmt.Errorf("unsupported value kind %s", rv.Kind())
	}
}

// isSetType reports whether t is a map used as a set (struct{} values).
func isSetType(t reflect.Type) bool {
	return t.Kind() == reflect.Map && t.Elem() == reflect.TypeOf(struct{}{})
}

// decodeMarker converts a marker object back to its native value. Unknown
// tags return ok=false and are left as-is by the caller; that keeps old
// readers forward-compatible with payloads written by newer producers.
func decodeMarker(tag string, value any) (any, bool, error) {
	switch tag {
	case tagDatetime:
		s, err := markerString(tag, value)
		if err != nil {
			return nil, true, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, true, fmt.Errorf("invalid datetime %q: %v", s, err)
		}
		return t, true, nil

	case tagDate:
		s, err := markerString(tag, value)
		if err != nil {
			return nil, true, err
		}
		d, err := ParseDate(s)
		if err != nil {
			return nil, true, err
		}
		return d, true, nil

	case tagTime:
		s, err := markerString(tag, value)
		if err != nil {
			return nil, true, err
		}
		t, err := ParseTimeOfDay(s)
		if err != nil {
			return nil, true, err
		}
		return t, true, nil

	case tagTimedelta:
		secs, err := markerFloat(tag, value)
		if err != nil {
			return nil, true, err
		}
		return time.Duration(secs * float64(time.Second)), true, nil

	case tagDecimal:
		s, err := markerString(tag, value)
		if err != nil {
			return nil, true, err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, true, fmt.Errorf("invalid decimal %q: %v", s, err)
		}
		return d, true, nil

	case tagBytes:
		s, err := markerString(tag, value)
		if err != nil {
			return nil, true, err
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, true, fmt.Errorf("invalid hex payload: %v", err)
		}
		return b, true, nil

	case tagUUID:
		s, err := markerString(tag, value)
		if err != nil {
			return nil, true, err
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, true, fmt.Errorf("invalid uuid %q: %v", s, err)
		}
		return u, true, nil

	case tagSet:
		members, ok := value.([]any)
		if !ok {
			return nil, true, fmt.Errorf("set marker holds %T, want array", value)
		}
		return members, true, nil

	default:
		return nil, false, nil
	}
}

func markerString(tag string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s marker holds %T, want string", tag, value)
	}
	return s, nil
}

func markerFloat(tag string, value any) (float64, error) {
	switch v := value.(type) {
	case json.Number:
		return v.Float64()
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("%s marker holds %T, want number", tag, value)
	}
}

// assignValue writes a decoded payload value into a struct field,
// recursing through pointers and container types and converting marker
// objects back to their native representations.
func assignValue(field reflect.Value, raw any) error {
	if raw == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	if field.Kind() == reflect.Ptr {
		elem := reflect.New(field.Type().Elem())
		if err := assignValue(elem.Elem(), raw); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	if m, ok := raw.(map[string]any); ok {
		if tagVal, isMarker := m[markerTypeKey]; isMarker {
			tag, _ := tagVal.(string)
			native, known, err := decodeMarker(tag, m[markerValueKey])
			if err != nil {
				return err
			}
			if !known {
				// Unknown tag from a newer producer: keep the raw object.
				return setCompatible(field, m)
			}
			if tag == tagSet {
				return assignSet(field, native.([]any))
			}
			return setCompatible(field, native)
		}
		return assignObject(field, m)
	}

	switch v := raw.(type) {
	case json.Number:
		return assignNumber(field, v)
	case string, bool:
		return setCompatible(field, v)
	case []any:
		return assignArray(field, v)
	default:
		return setCompatible(field, v)
	}
}

func assignNumber(field reflect.Value, n json.Number) error {
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := n.Int64()
		if err != nil {
			return fmt.Errorf("invalid integer %q: %v", n, err)
		}
		field.SetInt(i)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, err := n.Int64()
		if err != nil || i < 0 {
			return fmt.Errorf("invalid unsigned integer %q", n)
		}
		field.SetUint(uint64(i))
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("invalid number %q: %v", n, err)
		}
		field.SetFloat(f)
		return nil
	case reflect.Interface:
		if i, err := n.Int64(); err == nil {
			field.Set(reflect.ValueOf(i))
			return nil
		}
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("invalid number %q: %v", n, err)
		}
		field.Set(reflect.ValueOf(f))
		return nil
	default:
		return fmt.Errorf("cannot assign number to %s", field.Type())
	}
}

func assignArray(field reflect.Value, items []any) error {
	switch field.Kind() {
	case reflect.Slice:
		out := reflect.MakeSlice(field.Type(), len(items), len(items))
		for i, item := range items {
			if err := assignValue(out.Index(i), item); err != nil {
				return err
			}
		}
		field.Set(out)
		return nil
	case reflect.Array:
		if field.Len() != len(items) {
			return fmt.Errorf("array length mismatch: payload %d, target %d", len(items), field.Len())
		}
		for i, item := range items {
			if err := assignValue(field.Index(i), item); err != nil {
				return err
			}
		}
		return nil
	case reflect.Interface:
		field.Set(reflect.ValueOf(items))
		return nil
	default:
		return fmt.Errorf("cannot assign array to %s", field.Type())
	}
}

func assignObject(field reflect.Value, m map[string]any) error {
	switch field.Kind() {
	case reflect.Struct:
		rt := field.Type()
		for i := 0; i < rt.NumField(); i++ {
			sf := rt.Field(i)
			if !sf.IsExported() || sf.Anonymous {
				continue
			}
			name := jsonFieldName(sf)
			if name == "" {
				continue
			}
			raw, ok := m[name]
			if !ok {
				continue
			}
			if err := assignValue(field.Field(i), raw); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		out := reflect.MakeMapWithSize(field.Type(), len(m))
		keyType := field.Type().Key()
		if keyType.Kind() != reflect.String {
			return fmt.Errorf("cannot assign object to map keyed by %s", keyType)
		}
		for k, raw := range m {
			val := reflect.New(field.Type().Elem()).Elem()
			if err := assignValue(val, raw); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(keyType), val)
		}
		field.Set(out)
		return nil
	case reflect.Interface:
		field.Set(reflect.ValueOf(m))
		return nil
	default:
		return fmt.Errorf("cannot assign object to %s", field.Type())
	}
}

// assignSet rebuilds a map-as-set field from the marker's member array.
func assignSet(field reflect.Value, members []any) error {
	if !isSetType(field.Type()) {
		if field.Kind() == reflect.Slice || field.Kind() == reflect.Interface {
			return assignArray(field, members)
		}
		return fmt.Errorf("cannot assign set to %s", field.Type())
	}
	out := reflect.MakeMapWithSize(field.Type(), len(members))
	empty := reflect.ValueOf(struct{}{})
	for _, member := range members {
		key := reflect.New(field.Type().Key()).Elem()
		if err := assignValue(key, member); err != nil {
			return err
		}
		out.SetMapIndex(key, empty)
	}
	field.Set(out)
	return nil
}

// setCompatible assigns v to field, converting when the types differ but
// are convertible (named string types, int width changes, etc).
func setCompatible(field reflect.Value, v any) error {
	val := reflect.ValueOf(v)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %s to %s", val.Type(), field.Type())
}
