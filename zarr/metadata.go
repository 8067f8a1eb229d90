package zarr

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

type MetaType string

const (
	// MTAttributes stores userland metadata keyed by array name
	MTAttributes MetaType = ".zattrs"
	// MTArray is the key for storing metadata on an array store
	MTArray MetaType = ".zarray"
	// MTGroup is the key for storing group definitions on an array store
	MTGroup MetaType = ".zgroup"
	// MTMetadata is the key for composite metadata
	MTMetadata MetaType = ".zmetadata"
)

type MetaTyper interface {
	MetaType() MetaType
}

var metaTypes = map[MetaType]struct{}{
	MTAttributes: {},
	MTArray:      {},
	MTGroup:      {},
}

// relies on the fact that all keynames are 7 characters long
func KeyMetaType(s string) (mt MetaType, ok bool) {
	if len(s) < 7 {
		return mt, false
	}
	mt = MetaType(s[len(s)-7:])
	_, ok = metaTypes[mt]
	return mt, ok
}

type Attributes map[string]interface{}

func (Attributes) MetaType() MetaType { return MTAttributes }

// ConsolidatedMetadata is the ".zmetadata" index: every metadata document of
// a hierarchy keyed by its store key ("foo/.zarray", ".zgroup", ...).
type ConsolidatedMetadata struct {
	ConsolidatedFormat int                  `json:"zarr_consolidated_format"`
	Metadata           map[string]MetaTyper `json:"metadata"`
}

type consolidatedMetaDecoder struct {
	ConsolidatedFormat int                        `json:"zarr_consolidated_format"`
	Metadata           map[string]json.RawMessage `json:"metadata"`
}

func (m *ConsolidatedMetadata) UnmarshalJSON(d []byte) error {
	cd := consolidatedMetaDecoder{}
	if err := json.Unmarshal(d, &cd); err != nil {
		return err
	}
	cm := ConsolidatedMetadata{
		ConsolidatedFormat: cd.ConsolidatedFormat,
		Metadata:           map[string]MetaTyper{},
	}

	for key, data := range cd.Metadata {
		kt, ok := KeyMetaType(key)
		if !ok {
			return fmt.Errorf("invalid consoldated metadata key: %q", key)
		}

		switch kt {
		case MTArray:
			arr := &ArrayMeta{}
			if err := json.Unmarshal(data, arr); err != nil {
				return fmt.Errorf("reading %q metadata: %w", key, err)
			}
			cm.Metadata[key] = arr
		case MTAttributes:
			attr := Attributes{}
			if err := json.Unmarshal(data, &attr); err != nil {
				return fmt.Errorf("reading %q attributes: %w", key, err)
			}
			cm.Metadata[key] = attr
		case MTGroup:
			grp := Group{}
			if err := json.Unmarshal(data, &grp); err != nil {
				return fmt.Errorf("reading %q group: %w", key, err)
			}
			cm.Metadata[key] = grp
		}
	}

	*m = cm
	return nil
}

// Arrays lists the paths of arrays recorded directly under prefix.
func (m *ConsolidatedMetadata) Arrays(prefix string) []string {
	prefix = normalizeKey(prefix)
	var names []string
	for key, mt := range m.Metadata {
		if mt.MetaType() != MTArray {
			continue
		}
		dir := strings.TrimSuffix(strings.TrimSuffix(key, string(MTArray)), "/")
		parent, name := "", dir
		if i := strings.LastIndex(dir, "/"); i >= 0 {
			parent, name = dir[:i], dir[i+1:]
		}
		if parent == prefix {
			names = append(names, name)
		}
	}
	return names
}

// ReadConsolidated reads the ".zmetadata" document stored at path.
func ReadConsolidated(store Store, path string) (*ConsolidatedMetadata, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	cm := &ConsolidatedMetadata{}
	if err := getJSON(store, p.Join(string(MTMetadata)).String(), cm); err != nil {
		return nil, fmt.Errorf("reading consolidated metadata: %w", err)
	}
	return cm, nil
}

// Each array requires essential configuration metadata to be stored,
// enabling correct interpretation of the stored data.
// This metadata is encoded using JSON and stored as the value of the
// “.zarray” key within an array store.
type ArrayMeta struct {
	// An integer defining the version of the storage specification to which
	// the array store adheres.
	ZarrFormat int `json:"zarr_format"`
	// A list of integers defining the length of each dimension of the array.
	Shape []int `json:"shape"`
	// A list of integers defining the length of each dimension of a chunk of the
	// array. Note that all chunks within a Zarr array have the same shape.
	Chunks []int `json:"chunks"`
	// A string or list defining a valid data type for the array. See also the
	// subsection below on data type encoding.
	Dtype StructuredType `json:"dtype"`
	// A JSON object identifying the primary compression codec and providing
	// configuration parameters, or null if no compressor is to be used. The
	// object MUST contain an "id" key identifying the codec to be used.
	Compressor *CompressionMeta `json:"compressor"`

	// A scalar value providing the default value to use for uninitialized
	// portions of the array, or null if no fill_value is to be used.
	// If an array has a fixed length byte string data type (e.g., "|S12"), or a
	// structured data type, and if the fill value is not null, then the fill
	// value MUST be encoded as an ASCII string using the standard Base64
	// alphabet.
	FillValue interface{} `json:"fill_value"`
	// Either “C” or “F”, defining the layout of bytes within each chunk of the
	// array. “C” means row-major order, i.e., the last dimension varies fastest;
	// “F” means column-major order, i.e., the first dimension varies fastest.
	Order string `json:"order"`
	// A list of JSON objects providing codec configurations, or null if no
	// filters are to be applied. Each codec configuration object MUST contain a
	// "id" key identifying the codec to be used.
	Filters []Filter `json:"filters"`

	// optional fields

	// If present, either the string "." or "/"" definining the separator placed
	// between the dimensions of a chunk. If the value is not set, then the
	// default MUST be assumed to be ".", leading to chunk keys of the form “0.0”.
	// Arrays defined with "/" as the dimension separator can be considered to
	// have nested, or hierarchical, keys of the form “0/0” that SHOULD where
	// possible produce a directory-like structure.
	DimensionSeparator string `json:"dimension_separator,omitempty"`
}

func (a ArrayMeta) MetaType() MetaType { return MTArray }

func (a *ArrayMeta) validate() error {
	if a.ZarrFormat != Version {
		return fmt.Errorf("%w: zarr_format %d", ErrUnsupported, a.ZarrFormat)
	}
	if len(a.Chunks) != len(a.Shape) {
		return fmt.Errorf("chunks %v do not match shape %v", a.Chunks, a.Shape)
	}
	for i := range a.Shape {
		if a.Shape[i] < 0 || a.Chunks[i] <= 0 {
			return fmt.Errorf("invalid shape %v or chunks %v", a.Shape, a.Chunks)
		}
	}
	switch a.Order {
	case "C", "F":
	default:
		return fmt.Errorf("invalid order %q", a.Order)
	}
	switch a.DimensionSeparator {
	case "", ".", "/":
	default:
		return fmt.Errorf("invalid dimension_separator %q", a.DimensionSeparator)
	}
	if !a.Dtype.IsBasic() {
		return fmt.Errorf("%w: structured dtype", ErrUnsupported)
	}
	if a.Dtype.Dtype.ItemSize() <= 0 {
		return fmt.Errorf("invalid dtype %s", a.Dtype.Dtype)
	}
	return nil
}

// fillBytes encodes FillValue as a single element of the array dtype.
func (a *ArrayMeta) fillBytes() ([]byte, error) {
	dt := a.Dtype.Dtype
	size := dt.ItemSize()
	if a.FillValue == nil {
		return make([]byte, size), nil
	}

	switch dt.BasicType {
	case BTString:
		s, ok := a.FillValue.(string)
		if !ok {
			return nil, fmt.Errorf("fill_value %v is not a base64 string", a.FillValue)
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decoding fill_value: %w", err)
		}
		out := make([]byte, size)
		copy(out, raw)
		return out, nil
	case BTUnicode:
		s, ok := a.FillValue.(string)
		if !ok {
			return nil, fmt.Errorf("fill_value %v is not a string", a.FillValue)
		}
		return encodeValues([]string{s}, dt, 1)
	case BTOther:
		return nil, fmt.Errorf("%w: fill_value for dtype %s", ErrUnsupported, dt)
	}

	var v interface{}
	switch fv := a.FillValue.(type) {
	case bool:
		if dt.BasicType != BTBoolean {
			return nil, fmt.Errorf("boolean fill_value for dtype %s", dt)
		}
		v = []bool{fv}
	case string:
		f, err := parseFloatFill(fv)
		if err != nil {
			return nil, err
		}
		if dt.BasicType != BTFloatingPoint && dt.BasicType != BTComplex {
			return nil, fmt.Errorf("fill_value %q for dtype %s", fv, dt)
		}
		v = numericSlice(dt, f)
	case float64:
		if dt.BasicType == BTBoolean {
			v = []bool{fv != 0}
		} else {
			v = numericSlice(dt, fv)
		}
	default:
		return nil, fmt.Errorf("unexpected fill_value type %T", a.FillValue)
	}
	if v == nil {
		return nil, fmt.Errorf("%w: fill_value for dtype %s", ErrUnsupported, dt)
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, dt.byteOrder(), v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func parseFloatFill(s string) (float64, error) {
	switch s {
	case FillValueNaN:
		return math.NaN(), nil
	case FillValueInfinity:
		return math.Inf(1), nil
	case FillValueNegativeInfinity:
		return math.Inf(-1), nil
	}
	return 0, fmt.Errorf("invalid fill_value %q", s)
}

// numericSlice returns a one-element slice of the Go type for dt holding f.
func numericSlice(dt Dtype, f float64) interface{} {
	switch dt.BasicType {
	case BTInteger, BTDatetime, BTTimedelta:
		switch dt.ByteSize {
		case 1:
			return []int8{int8(f)}
		case 2:
			return []int16{int16(f)}
		case 4:
			return []int32{int32(f)}
		case 8:
			return []int64{int64(f)}
		}
	case BTUnsigned:
		switch dt.ByteSize {
		case 1:
			return []uint8{uint8(f)}
		case 2:
			return []uint16{uint16(f)}
		case 4:
			return []uint32{uint32(f)}
		case 8:
			return []uint64{uint64(f)}
		}
	case BTFloatingPoint:
		switch dt.ByteSize {
		case 4:
			return []float32{float32(f)}
		case 8:
			return []float64{f}
		}
	case BTComplex:
		switch dt.ByteSize {
		case 8:
			return []complex64{complex(float32(f), 0)}
		case 16:
			return []complex128{complex(f, 0)}
		}
	}
	return nil
}

// Filter is a codec configuration applied before compression.
type Filter struct {
	ID     string `json:"id"`
	Delta  string `json:"delta,omitempty"`
	Dtype  string `json:"dtype,omitempty"`
	AsType string `json:"astype,omitempty"`
}

const (
	// Not a Number
	FillValueNaN = "NaN"
	// Infinity
	FillValueInfinity = "Infinity"
	// -Infinity
	FillValueNegativeInfinity = "-Infinity"
)

// FillFloat reports the fill value as a float when it is numeric.
func (a *ArrayMeta) FillFloat() (float64, bool) {
	switch fv := a.FillValue.(type) {
	case float64:
		return fv, true
	case string:
		f, err := parseFloatFill(fv)
		return f, err == nil
	}
	return 0, false
}
