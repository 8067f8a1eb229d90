package xarray

import (
	"fmt"
	"math"
	"math/cmplx"
	"reflect"
)

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func dataLen(data interface{}) int {
	if data == nil {
		return 0
	}
	return reflect.ValueOf(data).Len()
}

func copyData(data interface{}) interface{} {
	if data == nil {
		return nil
	}
	src := reflect.ValueOf(data)
	dst := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
	reflect.Copy(dst, src)
	return dst.Interface()
}

func never[T any](T) bool { return false }

func isNaN64(f float64) bool { return math.IsNaN(f) }
func isNaN32(f float32) bool { return math.IsNaN(float64(f)) }
func isNaNC128(c complex128) bool { return cmplx.IsNaN(c) }
func isNaNC64(c complex64) bool { return cmplx.IsNaN(complex128(c)) }
func isEmpty(s string) bool { return s == "" }

// combineSlices fills nulls in a with values from b. Non-null values present
// on both sides must be equal. With strict set, nulls must also line up. The
// returned index is the first disagreeing position, or -1.
func combineSlices[T comparable](a, b []T, null func(T) bool, strict bool) ([]T, int) {
	out := make([]T, len(a))
	copy(out, a)
	for i := range out {
		an, bn := null(a[i]), null(b[i])
		switch {
		case an && bn:
		case an:
			if strict {
				return nil, i
			}
			out[i] = b[i]
		case bn:
			if strict {
				return nil, i
			}
		case a[i] != b[i]:
			return nil, i
		}
	}
	return out, -1
}

// combineData applies combineSlices to two data slices of the same length.
// Numeric slices of different types are compared as float64.
func combineData(a, b interface{}, strict bool) (interface{}, int, error) {
	if la, lb := dataLen(a), dataLen(b); la != lb {
		return nil, 0, fmt.Errorf("%d values against %d", la, lb)
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		fa, okA := toFloat64(a)
		fb, okB := toFloat64(b)
		if !okA || !okB {
			return nil, 0, fmt.Errorf("cannot combine %T with %T", a, b)
		}
		a, b = fa, fb
	}

	switch av := a.(type) {
	case []float64:
		out, i := combineSlices(av, b.([]float64), isNaN64, strict)
		return out, i, nil
	case []float32:
		out, i := combineSlices(av, b.([]float32), isNaN32, strict)
		return out, i, nil
	case []complex128:
		out, i := combineSlices(av, b.([]complex128), isNaNC128, strict)
		return out, i, nil
	case []complex64:
		out, i := combineSlices(av, b.([]complex64), isNaNC64, strict)
		return out, i, nil
	case []string:
		out, i := combineSlices(av, b.([]string), isEmpty, strict)
		return out, i, nil
	case []bool:
		out, i := combineSlices(av, b.([]bool), never[bool], strict)
		return out, i, nil
	case []int8:
		out, i := combineSlices(av, b.([]int8), never[int8], strict)
		return out, i, nil
	case []int16:
		out, i := combineSlices(av, b.([]int16), never[int16], strict)
		return out, i, nil
	case []int32:
		out, i := combineSlices(av, b.([]int32), never[int32], strict)
		return out, i, nil
	case []int64:
		out, i := combineSlices(av, b.([]int64), never[int64], strict)
		return out, i, nil
	case []uint8:
		out, i := combineSlices(av, b.([]uint8), never[uint8], strict)
		return out, i, nil
	case []uint16:
		out, i := combineSlices(av, b.([]uint16), never[uint16], strict)
		return out, i, nil
	case []uint32:
		out, i := combineSlices(av, b.([]uint32), never[uint32], strict)
		return out, i, nil
	case []uint64:
		out, i := combineSlices(av, b.([]uint64), never[uint64], strict)
		return out, i, nil
	}
	return nil, 0, fmt.Errorf("unsupported data type %T", a)
}

func convertFloat[T number](s []T) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(v)
	}
	return out
}

// toFloat64 promotes numeric and boolean data to float64.
func toFloat64(data interface{}) ([]float64, bool) {
	switch d := data.(type) {
	case []float64:
		return d, true
	case []float32:
		return convertFloat(d), true
	case []int8:
		return convertFloat(d), true
	case []int16:
		return convertFloat(d), true
	case []int32:
		return convertFloat(d), true
	case []int64:
		return convertFloat(d), true
	case []uint8:
		return convertFloat(d), true
	case []uint16:
		return convertFloat(d), true
	case []uint32:
		return convertFloat(d), true
	case []uint64:
		return convertFloat(d), true
	case []bool:
		out := make([]float64, len(d))
		for i, v := range d {
			if v {
				out[i] = 1
			}
		}
		return out, true
	}
	return nil, false
}

// missingValue is the value used for positions introduced by reindexing.
// Types without a null representation are promoted to float64 first.
func missingValue(data interface{}) (interface{}, reflect.Value) {
	switch data.(type) {
	case []float64:
		return data, reflect.ValueOf(math.NaN())
	case []float32:
		return data, reflect.ValueOf(float32(math.NaN()))
	case []complex128:
		return data, reflect.ValueOf(cmplx.NaN())
	case []complex64:
		return data, reflect.ValueOf(complex64(cmplx.NaN()))
	case []string:
		return data, reflect.ValueOf("")
	}
	if f, ok := toFloat64(data); ok {
		return f, reflect.ValueOf(math.NaN())
	}
	return data, reflect.Value{}
}

// reindexData moves data along axis so that position j of the result holds
// old position indexer[j]; -1 marks a missing position.
func reindexData(data interface{}, shape []int, axis int, indexer []int) (interface{}, error) {
	missing := false
	for _, src := range indexer {
		if src < 0 {
			missing = true
			break
		}
	}
	var fill reflect.Value
	if missing {
		data, fill = missingValue(data)
		if !fill.IsValid() {
			return nil, fmt.Errorf("cannot reindex %T with missing labels", data)
		}
	}

	outer := product(shape[:axis])
	inner := product(shape[axis+1:])
	oldLen, newLen := shape[axis], len(indexer)

	src := reflect.ValueOf(data)
	dst := reflect.MakeSlice(src.Type(), outer*newLen*inner, outer*newLen*inner)
	for o := 0; o < outer; o++ {
		for j, from := range indexer {
			start := (o*newLen + j) * inner
			if from < 0 {
				for k := 0; k < inner; k++ {
					dst.Index(start + k).Set(fill)
				}
				continue
			}
			at := (o*oldLen + from) * inner
			reflect.Copy(dst.Slice(start, start+inner), src.Slice(at, at+inner))
		}
	}
	return dst.Interface(), nil
}
