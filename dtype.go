package zarr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Dtype is a simple zarr data type, written as a NumPy typestr such as "<i4":
// a byte order character, a basic type character and the item size in bytes,
// optionally followed by datetime units in brackets ("<M8[ns]").
// Zarr metadata always states the byte order; "|" marks types where it does
// not matter.
type Dtype struct {
	ByteOrder ByteOrder
	BasicType BasicType
	ByteSize  int
	Units     string
}

var (
	_ json.Unmarshaler = (*Dtype)(nil)
	_ json.Marshaler   = (*Dtype)(nil)
)

// DefaultDtype is used when an array is created without a data type
var DefaultDtype = Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 8}

// MustParseDtype is ParseDtype for package-level literals; it panics on error
func MustParseDtype(s string) Dtype {
	dt, err := ParseDtype(s)
	if err != nil {
		panic(err)
	}
	return dt
}

// some writers HTML-escape the byte order character
var typestrUnescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">")

func ParseDtype(s string) (Dtype, error) {
	s = typestrUnescaper.Replace(s)
	if len(s) < 3 {
		return Dtype{}, fmt.Errorf("invalid dtype %q: too short", s)
	}

	bo, err := ParseByteOrder(rune(s[0]))
	if err != nil {
		return Dtype{}, err
	}
	bt, err := ParseBasicType(rune(s[1]))
	if err != nil {
		return Dtype{}, err
	}

	size, units := s[2:], ""
	if i := strings.IndexByte(size, '['); i >= 0 {
		size, units = size[:i], size[i:]
	}
	n, err := strconv.Atoi(size)
	if err != nil {
		return Dtype{}, fmt.Errorf("invalid dtype %q: item size: %w", s, err)
	}
	return Dtype{ByteOrder: bo, BasicType: bt, ByteSize: n, Units: units}, nil
}

func (dt Dtype) String() string {
	return string(dt.ByteOrder) + string(dt.BasicType) + strconv.Itoa(dt.ByteSize) + dt.Units
}

func (dt Dtype) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.String())
}

func (dt *Dtype) UnmarshalJSON(d []byte) error {
	var s string
	if err := json.Unmarshal(d, &s); err != nil {
		return err
	}
	parsed, err := ParseDtype(s)
	if err != nil {
		return err
	}
	*dt = parsed
	return nil
}

type ByteOrder rune

const (
	BONotRelevant  ByteOrder = '|'
	BOLittleEndian ByteOrder = '<'
	BOBigEndian    ByteOrder = '>'
)

func ParseByteOrder(r rune) (ByteOrder, error) {
	switch o := ByteOrder(r); o {
	case BONotRelevant, BOLittleEndian, BOBigEndian:
		return o, nil
	default:
		return o, fmt.Errorf("unsupported byte order %q", r)
	}
}

type BasicType rune

const (
	BTBoolean       BasicType = 'b'
	BTInteger       BasicType = 'i'
	BTUnsigned      BasicType = 'u'
	BTFloatingPoint BasicType = 'f'
	BTComplex       BasicType = 'c'
	BTTimedelta     BasicType = 'm'
	BTDatetime      BasicType = 'M'
	BTString        BasicType = 'S'
	BTUnicode       BasicType = 'U'
	BTOther         BasicType = 'V'
)

// basicTypeNames are the numpy kind names of each basic type
var basicTypeNames = map[BasicType]string{
	BTBoolean:       "bool",
	BTInteger:       "int",
	BTUnsigned:      "uint",
	BTFloatingPoint: "float",
	BTComplex:       "complex",
	BTTimedelta:     "timedelta64",
	BTDatetime:      "datetime64",
	BTString:        "bytes",
	BTUnicode:       "str",
	BTOther:         "void",
}

func ParseBasicType(r rune) (BasicType, error) {
	t := BasicType(r)
	if _, ok := basicTypeNames[t]; !ok {
		return t, fmt.Errorf("unsupported basic type %q", r)
	}
	return t, nil
}

func (bt BasicType) Human() string {
	return basicTypeNames[bt]
}

// StructuredType is a zarr dtype field: either a basic Dtype, or a named
// field with a Dtype or nested fields and an optional subarray shape.
// Arrays in this package only hold basic types; structured ones are parsed
// so their metadata can be read and reported.
type StructuredType struct {
	Fieldname string
	Dtype     Dtype
	Shape     interface{}
	Children  []StructuredType
}

var (
	_ json.Unmarshaler = (*StructuredType)(nil)
	_ json.Marshaler   = StructuredType{}
)

// ParseStructuredType reads a decoded JSON dtype: a typestr string, a list of
// fields, or a single [name, type, shape?] field
func ParseStructuredType(d interface{}) (StructuredType, error) {
	switch v := d.(type) {
	case string:
		dt, err := ParseDtype(v)
		return StructuredType{Dtype: dt}, err
	case []interface{}:
		if len(v) > 0 {
			if _, isField := v[0].(string); isField {
				return parseField(v)
			}
		}
		var st StructuredType
		for i, el := range v {
			ch, err := ParseStructuredType(el)
			if err != nil {
				return StructuredType{}, fmt.Errorf("field %d: %w", i, err)
			}
			st.Children = append(st.Children, ch)
		}
		if len(st.Children) == 0 {
			return StructuredType{}, fmt.Errorf("invalid structured dtype: no fields")
		}
		return st, nil
	default:
		return StructuredType{}, fmt.Errorf("invalid dtype: unexpected %T", d)
	}
}

func parseField(d []interface{}) (StructuredType, error) {
	if len(d) < 2 || len(d) > 3 {
		return StructuredType{}, fmt.Errorf("invalid structured dtype: field has %d elements", len(d))
	}
	st := StructuredType{Fieldname: d[0].(string)}
	switch x := d[1].(type) {
	case string:
		dt, err := ParseDtype(x)
		if err != nil {
			return StructuredType{}, fmt.Errorf("field %q: %w", st.Fieldname, err)
		}
		st.Dtype = dt
	case []interface{}:
		ch, err := ParseStructuredType(x)
		if err != nil {
			return StructuredType{}, fmt.Errorf("field %q: %w", st.Fieldname, err)
		}
		st.Children = append(st.Children, ch)
	default:
		return StructuredType{}, fmt.Errorf("field %q: want a typestr or nested fields, got %T", st.Fieldname, d[1])
	}
	if len(d) == 3 {
		st.Shape = d[2]
	}
	return st, nil
}

func (st StructuredType) IsBasic() bool {
	return st.Fieldname == "" && st.Shape == nil && len(st.Children) == 0
}

func (st StructuredType) Human() string {
	if st.IsBasic() {
		return st.Dtype.BasicType.Human()
	}
	return "struct"
}

func (st StructuredType) MarshalJSON() ([]byte, error) {
	if st.IsBasic() {
		return st.Dtype.MarshalJSON()
	}
	if st.Fieldname == "" {
		return json.Marshal(st.Children)
	}

	field := []interface{}{st.Fieldname}
	if len(st.Children) == 1 {
		field = append(field, st.Children[0])
	} else {
		field = append(field, st.Dtype)
	}
	if st.Shape != nil {
		field = append(field, st.Shape)
	}
	return json.Marshal(field)
}

func (st *StructuredType) UnmarshalJSON(d []byte) error {
	var v interface{}
	if err := json.Unmarshal(d, &v); err != nil {
		return err
	}
	parsed, err := ParseStructuredType(v)
	if err != nil {
		return err
	}
	*st = parsed
	return nil
}

// ItemSize is the number of bytes one element occupies
func (dt Dtype) ItemSize() int {
	return dt.ByteSize
}

func (dt Dtype) byteOrder() binary.ByteOrder {
	if dt.ByteOrder == BOLittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

var dtypeGoTypes = map[BasicType]map[int]reflect.Type{
	BTBoolean: {1: reflect.TypeOf(false)},
	BTInteger: {
		1: reflect.TypeOf(int8(0)),
		2: reflect.TypeOf(int16(0)),
		4: reflect.TypeOf(int32(0)),
		8: reflect.TypeOf(int64(0)),
	},
	BTUnsigned: {
		1: reflect.TypeOf(uint8(0)),
		2: reflect.TypeOf(uint16(0)),
		4: reflect.TypeOf(uint32(0)),
		8: reflect.TypeOf(uint64(0)),
	},
	BTFloatingPoint: {
		4: reflect.TypeOf(float32(0)),
		8: reflect.TypeOf(float64(0)),
	},
	BTComplex: {
		8:  reflect.TypeOf(complex64(0)),
		16: reflect.TypeOf(complex128(0)),
	},
}

// goType is the fixed-size Go type elements of dt decode into
func (dt Dtype) goType() (reflect.Type, error) {
	if dt.Units != "" {
		return nil, fmt.Errorf("%w: dtype %q", ErrNotSupported, dt)
	}
	if t, ok := dtypeGoTypes[dt.BasicType][dt.ByteSize]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: dtype %q", ErrNotSupported, dt)
}

// DtypeOf returns the little-endian dtype matching a Go element type.
// Go's int and uint map to their 64 bit forms.
func DtypeOf(t reflect.Type) (Dtype, error) {
	dt := Dtype{ByteOrder: BOLittleEndian}
	switch t.Kind() {
	case reflect.Bool:
		dt.BasicType = BTBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dt.BasicType = BTInteger
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dt.BasicType = BTUnsigned
	case reflect.Float32, reflect.Float64:
		dt.BasicType = BTFloatingPoint
	case reflect.Complex64, reflect.Complex128:
		dt.BasicType = BTComplex
	default:
		return dt, fmt.Errorf("%w: no dtype for Go type %s", ErrNotSupported, t)
	}
	dt.ByteSize = int(t.Size())
	if dt.ByteSize == 1 {
		dt.ByteOrder = BONotRelevant
	}
	return dt, nil
}

// sameType reports whether two dtypes hold identical values, ignoring byte
// order where it is not relevant
func (dt Dtype) sameType(o Dtype) bool {
	if dt.BasicType != o.BasicType || dt.ByteSize != o.ByteSize || dt.Units != o.Units {
		return false
	}
	return dt.ByteSize == 1 || dt.ByteOrder == o.ByteOrder
}

// castsTo reports whether every value of dt can be represented by to without
// loss, following numpy's "safe" casting rule for the basic numeric kinds
func (dt Dtype) castsTo(to Dtype) bool {
	if dt.BasicType == to.BasicType {
		return dt.ByteSize <= to.ByteSize
	}
	switch dt.BasicType {
	case BTBoolean:
		return to.BasicType != BTBoolean
	case BTUnsigned:
		switch to.BasicType {
		case BTInteger:
			return dt.ByteSize < to.ByteSize
		case BTFloatingPoint:
			return dt.ByteSize < to.ByteSize
		case BTComplex:
			return dt.ByteSize < to.ByteSize/2
		}
	case BTInteger:
		switch to.BasicType {
		case BTFloatingPoint:
			return dt.ByteSize < to.ByteSize
		case BTComplex:
			return dt.ByteSize < to.ByteSize/2
		}
	case BTFloatingPoint:
		return to.BasicType == BTComplex && dt.ByteSize <= to.ByteSize/2
	}
	return false
}
