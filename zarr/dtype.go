package zarr

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidDtype is returned for malformed numpy type strings and
// structured type descriptions.
var ErrInvalidDtype = errors.New("invalid dtype")

// Dtype is a numpy array-protocol type string such as "<f8", "|b1" or
// "<M8[ns]": a byte order character, a basic type character, the item size
// in bytes and, for datetimes and timedeltas, a bracketed unit. Zarr
// requires the byte order to be present.
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

// zarr-python escapes "<" and ">" when writing some metadata documents.
var htmlEscapes = strings.NewReplacer("&lt;", "<", "&gt;", ">")

func ParseDtype(s string) (Dtype, error) {
	s = htmlEscapes.Replace(s)
	if len(s) < 3 {
		return Dtype{}, fmt.Errorf("%w: %q is too short", ErrInvalidDtype, s)
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
		if len(units) < 3 || !strings.HasSuffix(units, "]") {
			return Dtype{}, fmt.Errorf("%w: units %q in %q", ErrInvalidDtype, units, s)
		}
	}
	n, err := strconv.Atoi(size)
	if err != nil || n < 0 {
		return Dtype{}, fmt.Errorf("%w: item size %q in %q", ErrInvalidDtype, size, s)
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

// ItemSize is the number of bytes a single element occupies in a chunk.
// Unicode strings store ByteSize UCS-4 code points.
func (dt Dtype) ItemSize() int {
	if dt.BasicType == BTUnicode {
		return dt.ByteSize * 4
	}
	return dt.ByteSize
}

func (dt Dtype) byteOrder() binary.ByteOrder {
	if dt.ByteOrder == BOBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
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
	}
	return 0, fmt.Errorf("%w: byte order %q", ErrInvalidDtype, r)
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
	bt := BasicType(r)
	if _, ok := basicTypeNames[bt]; !ok {
		return 0, fmt.Errorf("%w: basic type %q", ErrInvalidDtype, r)
	}
	return bt, nil
}

func (bt BasicType) Human() string {
	return basicTypeNames[bt]
}

// StructuredType is a zarr dtype: either a plain Dtype, a named field
// [name, dtype] or [name, dtype, shape], or a record [field, ...] whose
// fields are Children. Arrays are only read when the type IsBasic.
type StructuredType struct {
	Fieldname string
	Dtype     Dtype
	Shape     []int
	Children  []StructuredType
}

var (
	_ json.Unmarshaler = (*StructuredType)(nil)
	_ json.Marshaler   = (*StructuredType)(nil)
)

func ParseStructuredType(d interface{}) (StructuredType, error) {
	switch v := d.(type) {
	case string:
		dt, err := ParseDtype(v)
		if err != nil {
			return StructuredType{}, err
		}
		return StructuredType{Dtype: dt}, nil
	case []interface{}:
		if len(v) > 0 {
			if _, named := v[0].(string); named {
				return parseField(v)
			}
		}
		return parseRecord(v)
	}
	return StructuredType{}, fmt.Errorf("%w: unexpected %T", ErrInvalidDtype, d)
}

func parseRecord(fields []interface{}) (StructuredType, error) {
	if len(fields) == 0 {
		return StructuredType{}, fmt.Errorf("%w: record has no fields", ErrInvalidDtype)
	}
	rec := StructuredType{Children: make([]StructuredType, 0, len(fields))}
	for i, f := range fields {
		ch, err := ParseStructuredType(f)
		if err != nil {
			return StructuredType{}, fmt.Errorf("field %d: %w", i, err)
		}
		rec.Children = append(rec.Children, ch)
	}
	return rec, nil
}

func parseField(d []interface{}) (StructuredType, error) {
	if len(d) < 2 || len(d) > 3 {
		return StructuredType{}, fmt.Errorf("%w: field has %d elements, want 2 or 3", ErrInvalidDtype, len(d))
	}
	name, ok := d[0].(string)
	if !ok {
		return StructuredType{}, fmt.Errorf("%w: field name must be a string, got %T", ErrInvalidDtype, d[0])
	}

	f := StructuredType{Fieldname: name}
	switch x := d[1].(type) {
	case string:
		dt, err := ParseDtype(x)
		if err != nil {
			return StructuredType{}, fmt.Errorf("field %q: %w", name, err)
		}
		f.Dtype = dt
	case []interface{}:
		ch, err := ParseStructuredType(x)
		if err != nil {
			return StructuredType{}, fmt.Errorf("field %q: %w", name, err)
		}
		f.Children = []StructuredType{ch}
	default:
		return StructuredType{}, fmt.Errorf("%w: field %q type must be a string or list, got %T", ErrInvalidDtype, name, d[1])
	}

	if len(d) == 3 {
		dims, ok := d[2].([]interface{})
		if !ok {
			return StructuredType{}, fmt.Errorf("%w: field %q shape must be a list, got %T", ErrInvalidDtype, name, d[2])
		}
		for _, n := range dims {
			size, ok := n.(float64)
			if !ok || size < 0 || size != float64(int(size)) {
				return StructuredType{}, fmt.Errorf("%w: field %q shape %v", ErrInvalidDtype, name, d[2])
			}
			f.Shape = append(f.Shape, int(size))
		}
	}
	return f, nil
}

func (st *StructuredType) IsBasic() bool {
	return st.Fieldname == "" && st.Shape == nil && len(st.Children) == 0
}

func (st *StructuredType) Human() string {
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

	field := []interface{}{st.Fieldname, st.Dtype}
	if len(st.Children) == 1 {
		field[1] = st.Children[0]
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
