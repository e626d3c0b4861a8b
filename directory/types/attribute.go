package types

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type AttributeType string

const (
	TypeString   AttributeType = "string"
	TypeInteger  AttributeType = "integer"
	TypeDateTime AttributeType = "date_time"
	TypeJpeg     AttributeType = "jpeg_photo"
)

func (t AttributeType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeDateTime, TypeJpeg:
		return true
	}
	return false
}

var (
	ErrSchemaMismatch = errors.New("attribute is not declared in the schema")
	ErrDecode         = errors.New("stored attribute value does not match its declared type")
)

// Value is a single decoded attribute value. Exactly one concrete type exists
// per AttributeType.
type Value interface {
	AttributeType() AttributeType
	scalar() interface{}
}

type StringValue string

func (StringValue) AttributeType() AttributeType { return TypeString }
func (v StringValue) scalar() interface{}        { return string(v) }

type IntegerValue int64

func (IntegerValue) AttributeType() AttributeType { return TypeInteger }
func (v IntegerValue) scalar() interface{}        { return int64(v) }

type DateTimeValue time.Time

func (DateTimeValue) AttributeType() AttributeType { return TypeDateTime }
func (v DateTimeValue) scalar() interface{} {
	return time.Time(v).UTC().Format(time.RFC3339Nano)
}

type JpegValue []byte

func (JpegValue) AttributeType() AttributeType { return TypeJpeg }
func (v JpegValue) scalar() interface{} {
	return base64.StdEncoding.EncodeToString(v)
}

// Attribute is an attribute decoded against the schema. Single valued
// attributes hold exactly one element, list values keep their stored order.
type Attribute struct {
	Name   string
	Values []Value
}

// SchemaLookup resolves an attribute name to its declared type. Implemented
// by the registry's attribute lists.
type SchemaLookup interface {
	AttributeType(name string) (typ AttributeType, isList bool, ok bool)
}

// Serialize encodes values as a JSON array of scalars. The encoding is
// deterministic so serialized values can be compared byte for byte in query
// predicates.
func Serialize(values []Value) ([]byte, error) {
	scalars := make([]interface{}, 0, len(values))
	for _, v := range values {
		scalars = append(scalars, v.scalar())
	}
	raw, err := json.Marshal(scalars)
	if err != nil {
		return nil, fmt.Errorf("serializing attribute values: %w", err)
	}
	return raw, nil
}

// Deserialize decodes a stored attribute value using the declared type from
// the supplied schema. An attribute name absent from the schema indicates a
// stale row and yields ErrSchemaMismatch.
func Deserialize(name string, raw []byte, schema SchemaLookup) (Attribute, error) {
	typ, _, ok := schema.AttributeType(name)
	if !ok {
		return Attribute{}, fmt.Errorf("attribute %q: %w", name, ErrSchemaMismatch)
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return Attribute{}, fmt.Errorf("attribute %q: %w: %v", name, ErrDecode, err)
	}

	values := make([]Value, 0, len(elements))
	for _, element := range elements {
		value, err := decodeScalar(typ, element)
		if err != nil {
			return Attribute{}, fmt.Errorf("attribute %q: %w: %v", name, ErrDecode, err)
		}
		values = append(values, value)
	}

	return Attribute{Name: name, Values: values}, nil
}

func decodeScalar(typ AttributeType, raw json.RawMessage) (Value, error) {
	switch typ {
	case TypeString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return StringValue(s), nil
	case TypeInteger:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return IntegerValue(n), nil
	case TypeDateTime:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, err
		}
		return DateTimeValue(t.UTC()), nil
	case TypeJpeg:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, err
		}
		return JpegValue(b), nil
	}
	return nil, fmt.Errorf("unknown attribute type %q", typ)
}
