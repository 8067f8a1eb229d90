package zarr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"
)

// GoType reports the element type ReadAll uses for dt. Datetimes and
// timedeltas decode to int64 counts of their unit.
func (dt Dtype) GoType() (reflect.Type, error) {
	v, err := newValues(dt, 0)
	if err != nil {
		return nil, err
	}
	return reflect.TypeOf(v).Elem(), nil
}

// newValues allocates a slice of n elements of the Go type backing dt.
func newValues(dt Dtype, n int) (interface{}, error) {
	switch dt.BasicType {
	case BTBoolean:
		return make([]bool, n), nil
	case BTInteger:
		switch dt.ByteSize {
		case 1:
			return make([]int8, n), nil
		case 2:
			return make([]int16, n), nil
		case 4:
			return make([]int32, n), nil
		case 8:
			return make([]int64, n), nil
		}
	case BTUnsigned:
		switch dt.ByteSize {
		case 1:
			return make([]uint8, n), nil
		case 2:
			return make([]uint16, n), nil
		case 4:
			return make([]uint32, n), nil
		case 8:
			return make([]uint64, n), nil
		}
	case BTFloatingPoint:
		switch dt.ByteSize {
		case 4:
			return make([]float32, n), nil
		case 8:
			return make([]float64, n), nil
		}
	case BTComplex:
		switch dt.ByteSize {
		case 8:
			return make([]complex64, n), nil
		case 16:
			return make([]complex128, n), nil
		}
	case BTDatetime, BTTimedelta:
		if dt.ByteSize == 8 {
			return make([]int64, n), nil
		}
	case BTString, BTUnicode:
		return make([]string, n), nil
	}
	return nil, fmt.Errorf("%w: dtype %s", ErrUnsupported, dt)
}

// decodeValues converts n packed elements of dt into a Go slice.
func decodeValues(raw []byte, dt Dtype, n int) (interface{}, error) {
	size := dt.ItemSize()
	if len(raw) != n*size {
		return nil, fmt.Errorf("%w: %d bytes for %d elements of %s", ErrCorruptData, len(raw), n, dt)
	}
	v, err := newValues(dt, n)
	if err != nil {
		return nil, err
	}

	switch out := v.(type) {
	case []string:
		for i := range out {
			el := raw[i*size : (i+1)*size]
			if dt.BasicType == BTString {
				out[i] = string(bytes.TrimRight(el, "\x00"))
			} else {
				out[i] = decodeUCS4(el, dt.byteOrder())
			}
		}
		return out, nil
	}

	if err := binary.Read(bytes.NewReader(raw), dt.byteOrder(), v); err != nil {
		return nil, err
	}
	return v, nil
}

// encodeValues packs data, which must be a slice of the Go type backing dt
// holding n elements.
func encodeValues(data interface{}, dt Dtype, n int) ([]byte, error) {
	want, err := newValues(dt, 0)
	if err != nil {
		return nil, err
	}
	if reflect.TypeOf(data) != reflect.TypeOf(want) {
		return nil, fmt.Errorf("data of type %T does not match dtype %s", data, dt)
	}
	if l := reflect.ValueOf(data).Len(); l != n {
		return nil, fmt.Errorf("data has %d elements, want %d", l, n)
	}

	if strs, ok := data.([]string); ok {
		size := dt.ItemSize()
		out := make([]byte, n*size)
		for i, s := range strs {
			el := out[i*size : (i+1)*size]
			if dt.BasicType == BTString {
				if len(s) > size {
					return nil, fmt.Errorf("string %q longer than %d bytes", s, size)
				}
				copy(el, s)
				continue
			}
			if utf8.RuneCountInString(s) > dt.ByteSize {
				return nil, fmt.Errorf("string %q longer than %d characters", s, dt.ByteSize)
			}
			encodeUCS4(el, s, dt.byteOrder())
		}
		return out, nil
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, dt.byteOrder(), data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeUCS4(el []byte, order binary.ByteOrder) string {
	var sb strings.Builder
	for i := 0; i+4 <= len(el); i += 4 {
		r := order.Uint32(el[i:])
		if r == 0 {
			break
		}
		sb.WriteRune(rune(r))
	}
	return sb.String()
}

func encodeUCS4(el []byte, s string, order binary.ByteOrder) {
	i := 0
	for _, r := range s {
		order.PutUint32(el[i:], uint32(r))
		i += 4
	}
}
