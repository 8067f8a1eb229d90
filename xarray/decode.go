package xarray

import (
	"fmt"
	"math"
	"strconv"
)

const (
	fillValueKey   = "_FillValue"
	scaleFactorKey = "scale_factor"
	addOffsetKey   = "add_offset"
)

// decodeCF applies CF mask and scale conventions to numeric data: values
// equal to _FillValue become NaN, then value*scale_factor+add_offset. Integer
// data is promoted to float64 when either step applies. The consumed
// attributes move to Encoding.
func decodeCF(v *Variable) error {
	rawFill, hasFill := v.Attrs[fillValueKey]
	rawScale, hasScale := v.Attrs[scaleFactorKey]
	rawOffset, hasOffset := v.Attrs[addOffsetKey]
	if !hasFill && !hasScale && !hasOffset {
		return nil
	}

	data, numeric := toFloat64(v.Data)
	if !numeric {
		return nil
	}
	if _, isBool := v.Data.([]bool); isBool {
		return nil
	}
	if hasFill {
		fill, err := attrFloat(rawFill)
		if err != nil {
			return fmt.Errorf("%s: %w", fillValueKey, err)
		}
		data = maskFloat(data, fill)
	}
	if hasScale || hasOffset {
		scale, offset := 1.0, 0.0
		var err error
		if hasScale {
			if scale, err = attrFloat(rawScale); err != nil {
				return fmt.Errorf("%s: %w", scaleFactorKey, err)
			}
		}
		if hasOffset {
			if offset, err = attrFloat(rawOffset); err != nil {
				return fmt.Errorf("%s: %w", addOffsetKey, err)
			}
		}
		data = scaleFloat(data, scale, offset)
	}

	if f32, ok := v.Data.([]float32); ok && !hasScale && !hasOffset {
		// masking alone keeps single precision
		out := make([]float32, len(f32))
		for i, x := range data {
			out[i] = float32(x)
		}
		v.Data = out
	} else {
		v.Data = data
	}
	dt, err := dtypeOf(v.Data)
	if err != nil {
		return err
	}
	v.Dtype = dt

	for _, key := range []string{fillValueKey, scaleFactorKey, addOffsetKey} {
		if val, ok := v.Attrs[key]; ok {
			v.Encoding[key] = val
			delete(v.Attrs, key)
		}
	}
	return nil
}

// maskFloat returns a copy of data with every element equal to fill set to
// NaN. A NaN fill needs no masking.
func maskFloat(data []float64, fill float64) []float64 {
	if math.IsNaN(fill) {
		return data
	}
	out := make([]float64, len(data))
	for i, x := range data {
		if x == fill {
			out[i] = math.NaN()
		} else {
			out[i] = x
		}
	}
	return out
}

func scaleFloat(data []float64, scale, offset float64) []float64 {
	out := make([]float64, len(data))
	for i, x := range data {
		out[i] = x*scale + offset
	}
	return out
}

// attrFloat reads a numeric attribute decoded from JSON.
func attrFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		switch x {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
		return strconv.ParseFloat(x, 64)
	case []interface{}:
		if len(x) == 1 {
			return attrFloat(x[0])
		}
	}
	return 0, fmt.Errorf("not a number: %v", v)
}
