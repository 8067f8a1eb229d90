package xarray

import (
	"fmt"
	"reflect"

	"github.com/minian-go/minian/zarr"
)

// Variable is a named N-dimensional array. Data is a flat slice in C order
// whose length is the product of Shape.
type Variable struct {
	Name  string
	Dims  []string
	Shape []int
	Dtype zarr.Dtype
	Data  interface{}
	Attrs map[string]interface{}
	// Encoding holds storage details removed while decoding (_FillValue,
	// scale_factor, add_offset).
	Encoding map[string]interface{}
}

// NewVariable checks that data is a supported slice whose length matches
// shape and infers the dtype from its element type.
func NewVariable(name string, dims []string, shape []int, data interface{}) (*Variable, error) {
	if len(dims) != len(shape) {
		return nil, fmt.Errorf("variable %q: %d dims for shape %v", name, len(dims), shape)
	}
	seen := map[string]struct{}{}
	for _, d := range dims {
		if _, dup := seen[d]; dup {
			return nil, fmt.Errorf("variable %q: repeated dimension %q", name, d)
		}
		seen[d] = struct{}{}
	}
	dt, err := dtypeOf(data)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	if n := dataLen(data); n != product(shape) {
		return nil, fmt.Errorf("variable %q: %d values for shape %v", name, n, shape)
	}
	return &Variable{
		Name:     name,
		Dims:     append([]string(nil), dims...),
		Shape:    append([]int(nil), shape...),
		Dtype:    dt,
		Data:     data,
		Attrs:    map[string]interface{}{},
		Encoding: map[string]interface{}{},
	}, nil
}

// Len is the number of elements.
func (v *Variable) Len() int { return dataLen(v.Data) }

// At returns the i-th element in C order.
func (v *Variable) At(i int) interface{} {
	return reflect.ValueOf(v.Data).Index(i).Interface()
}

// Axis returns the position of dim in v.Dims, or -1.
func (v *Variable) Axis(dim string) int {
	for i, d := range v.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// IsIndex reports whether v is the index coordinate of its only dimension.
func (v *Variable) IsIndex() bool {
	return len(v.Dims) == 1 && v.Dims[0] == v.Name
}

// Copy returns a deep copy of v.
func (v *Variable) Copy() *Variable {
	c := *v
	c.Dims = append([]string(nil), v.Dims...)
	c.Shape = append([]int(nil), v.Shape...)
	c.Data = copyData(v.Data)
	c.Attrs = copyAttrs(v.Attrs)
	c.Encoding = copyAttrs(v.Encoding)
	return &c
}

// Equal compares dims, shape and values; NaNs compare equal. Attributes are
// ignored.
func (v *Variable) Equal(o *Variable) bool {
	if !sameStrings(v.Dims, o.Dims) || !sameInts(v.Shape, o.Shape) {
		return false
	}
	_, idx, err := combineData(v.Data, o.Data, true)
	return err == nil && idx < 0
}

func (v *Variable) String() string {
	return fmt.Sprintf("<xarray.Variable %s %v %v %s>", v.Name, v.Dims, v.Shape, v.Dtype)
}

// dtypeOf maps a Go slice type onto the zarr dtype used to store it. Strings
// are sized to the longest element.
func dtypeOf(data interface{}) (zarr.Dtype, error) {
	le := zarr.BOLittleEndian
	switch d := data.(type) {
	case []bool:
		return zarr.Dtype{ByteOrder: zarr.BONotRelevant, BasicType: zarr.BTBoolean, ByteSize: 1}, nil
	case []int8:
		return zarr.Dtype{ByteOrder: zarr.BONotRelevant, BasicType: zarr.BTInteger, ByteSize: 1}, nil
	case []int16:
		return zarr.Dtype{ByteOrder: le, BasicType: zarr.BTInteger, ByteSize: 2}, nil
	case []int32:
		return zarr.Dtype{ByteOrder: le, BasicType: zarr.BTInteger, ByteSize: 4}, nil
	case []int64:
		return zarr.Dtype{ByteOrder: le, BasicType: zarr.BTInteger, ByteSize: 8}, nil
	case []uint8:
		return zarr.Dtype{ByteOrder: zarr.BONotRelevant, BasicType: zarr.BTUnsigned, ByteSize: 1}, nil
	case []uint16:
		return zarr.Dtype{ByteOrder: le, BasicType: zarr.BTUnsigned, ByteSize: 2}, nil
	case []uint32:
		return zarr.Dtype{ByteOrder: le, BasicType: zarr.BTUnsigned, ByteSize: 4}, nil
	case []uint64:
		return zarr.Dtype{ByteOrder: le, BasicType: zarr.BTUnsigned, ByteSize: 8}, nil
	case []float32:
		return zarr.Dtype{ByteOrder: le, BasicType: zarr.BTFloatingPoint, ByteSize: 4}, nil
	case []float64:
		return zarr.Dtype{ByteOrder: le, BasicType: zarr.BTFloatingPoint, ByteSize: 8}, nil
	case []complex64:
		return zarr.Dtype{ByteOrder: le, BasicType: zarr.BTComplex, ByteSize: 8}, nil
	case []complex128:
		return zarr.Dtype{ByteOrder: le, BasicType: zarr.BTComplex, ByteSize: 16}, nil
	case []string:
		size := 1
		for _, s := range d {
			if n := len([]rune(s)); n > size {
				size = n
			}
		}
		return zarr.Dtype{ByteOrder: le, BasicType: zarr.BTUnicode, ByteSize: size}, nil
	}
	return zarr.Dtype{}, fmt.Errorf("unsupported data type %T", data)
}

func copyAttrs(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
