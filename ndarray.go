package zarr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// NDArray is an in-memory block of array elements. Data is a typed Go slice
// ([]int32, []float64, ...) holding product(Shape) elements in row-major order.
// A 0-d result has an empty Shape and a single element.
type NDArray struct {
	Shape []int
	Dtype Dtype
	Data  interface{}
}

// Len is the number of elements held
func (nd *NDArray) Len() int {
	return reflect.ValueOf(nd.Data).Len()
}

// At returns the element at the given coordinates
func (nd *NDArray) At(idx ...int) (interface{}, error) {
	if len(idx) != len(nd.Shape) {
		return nil, fmt.Errorf("%w: %d coordinates for %d dimensions", ErrShapeMismatch, len(idx), len(nd.Shape))
	}
	strides := cStrides(nd.Shape)
	off := 0
	for d, i := range idx {
		if i < 0 || i >= nd.Shape[d] {
			return nil, fmt.Errorf("%w: index %d for axis of length %d", ErrOutOfBounds, i, nd.Shape[d])
		}
		off += i * strides[d]
	}
	return reflect.ValueOf(nd.Data).Index(off).Interface(), nil
}

// Scalar returns the only element of a 0-d (or single element) result
func (nd *NDArray) Scalar() (interface{}, error) {
	if nd.Len() != 1 {
		return nil, fmt.Errorf("%w: result holds %d elements", ErrShapeMismatch, nd.Len())
	}
	return reflect.ValueOf(nd.Data).Index(0).Interface(), nil
}

func isRealKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isComplexKind(k reflect.Kind) bool {
	return k == reflect.Complex64 || k == reflect.Complex128
}

// convertScalar converts v to the Go type of dt
func (dt Dtype) convertScalar(v interface{}) (reflect.Value, error) {
	gt, err := dt.goType()
	if err != nil {
		return reflect.Value{}, err
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return reflect.Value{}, fmt.Errorf("cannot store nil as %s", dt)
	}

	switch {
	case rv.Kind() == reflect.Bool && gt.Kind() == reflect.Bool:
		return rv, nil
	case rv.Kind() == reflect.Bool:
		n := 0
		if rv.Bool() {
			n = 1
		}
		rv = reflect.ValueOf(n)
	case gt.Kind() == reflect.Bool && isRealKind(rv.Kind()):
		return reflect.ValueOf(!rv.IsZero()), nil
	case isComplexKind(gt.Kind()) && isRealKind(rv.Kind()):
		f := rv.Convert(reflect.TypeOf(float64(0))).Float()
		return reflect.ValueOf(complex(f, 0)).Convert(gt), nil
	}

	if (isRealKind(rv.Kind()) && isRealKind(gt.Kind())) || (isComplexKind(rv.Kind()) && isComplexKind(gt.Kind())) {
		return rv.Convert(gt), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot store %T as %s", v, dt)
}

// encodeScalar is the raw byte form of v as an element of dt
func (dt Dtype) encodeScalar(v interface{}) ([]byte, error) {
	cv, err := dt.convertScalar(v)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, dt.ItemSize()))
	if err := binary.Write(buf, dt.byteOrder(), cv.Interface()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeValues converts a value for a write covering n elements into raw
// bytes. Scalars are returned as a single element with broadcast set.
func (dt Dtype) encodeValues(v interface{}, n int) (raw []byte, broadcast bool, err error) {
	switch x := v.(type) {
	case *NDArray:
		v = x.Data
	case NDArray:
		v = x.Data
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		raw, err := dt.encodeScalar(v)
		return raw, true, err
	}
	if rv.Len() != n {
		return nil, false, fmt.Errorf("%w: %d values for a selection of %d elements", ErrShapeMismatch, rv.Len(), n)
	}

	gt, err := dt.goType()
	if err != nil {
		return nil, false, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, n*dt.ItemSize()))
	if rv.Kind() == reflect.Slice && rv.Type().Elem() == gt {
		err := binary.Write(buf, dt.byteOrder(), v)
		return buf.Bytes(), false, err
	}
	for i := 0; i < rv.Len(); i++ {
		b, err := dt.encodeScalar(rv.Index(i).Interface())
		if err != nil {
			return nil, false, fmt.Errorf("element %d: %w", i, err)
		}
		buf.Write(b)
	}
	return buf.Bytes(), false, nil
}

// decodeValues reads n elements of dt from raw into a typed slice
func (dt Dtype) decodeValues(raw []byte, n int) (interface{}, error) {
	gt, err := dt.goType()
	if err != nil {
		return nil, err
	}
	s := reflect.MakeSlice(reflect.SliceOf(gt), n, n)
	if err := binary.Read(bytes.NewReader(raw), dt.byteOrder(), s.Interface()); err != nil {
		return nil, err
	}
	return s.Interface(), nil
}

// fillBytes is the raw element used for never-written positions
func (dt Dtype) fillBytes(fill interface{}) ([]byte, error) {
	if fill == nil {
		return make([]byte, dt.ItemSize()), nil
	}
	if s, ok := fill.(string); ok {
		var f float64
		switch s {
		case FillValueNaN:
			f = math.NaN()
		case FillValueInfinity:
			f = math.Inf(1)
		case FillValueNegativeInfinity:
			f = math.Inf(-1)
		default:
			return nil, fmt.Errorf("unsupported fill value %q", s)
		}
		if dt.BasicType != BTFloatingPoint && dt.BasicType != BTComplex {
			return nil, fmt.Errorf("fill value %q requires a floating point dtype, got %s", s, dt)
		}
		return dt.encodeScalar(f)
	}
	return dt.encodeScalar(fill)
}

// jsonFillValue rewrites non-finite floats into the strings zarr metadata
// uses for them
func jsonFillValue(fill interface{}) interface{} {
	rv := reflect.ValueOf(fill)
	if !rv.IsValid() || (rv.Kind() != reflect.Float32 && rv.Kind() != reflect.Float64) {
		return fill
	}
	f := rv.Float()
	switch {
	case math.IsNaN(f):
		return FillValueNaN
	case math.IsInf(f, 1):
		return FillValueInfinity
	case math.IsInf(f, -1):
		return FillValueNegativeInfinity
	}
	return fill
}
