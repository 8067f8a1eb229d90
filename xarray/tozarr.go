package xarray

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/minian-go/minian/zarr"
)

// defaultCompressor matches the blosc settings zarr-python picks by default.
var defaultCompressor = zarr.CompressionMeta{ID: zarr.CodecBlosc, Cname: "lz4", Clevel: 5, Shuffle: 1}

// ToZarr writes ds as a zarr group at the root of store, one single-chunk
// array per variable. Dimension names go to each array's _ARRAY_DIMENSIONS
// attribute and non-index coordinates are listed in the group "coordinates"
// attribute, so OpenZarr reads back an equal dataset.
func (ds *Dataset) ToZarr(store zarr.Store) error {
	if _, err := zarr.CreateGroup(store, ""); err != nil {
		return err
	}

	attrs := zarr.Attributes(copyAttrs(ds.Attrs))
	var extra []string
	for _, name := range ds.CoordNames() {
		if !ds.Coords[name].IsIndex() {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		attrs[coordinatesKey] = strings.Join(extra, " ")
	}
	if err := zarr.WriteAttributes(store, "", attrs); err != nil {
		return err
	}

	for _, v := range ds.variables() {
		if err := writeVariable(store, v); err != nil {
			return fmt.Errorf("writing %q: %w", v.Name, err)
		}
	}
	return nil
}

func writeVariable(store zarr.Store, v *Variable) error {
	dt, err := storageDtype(v)
	if err != nil {
		return err
	}
	chunks := make([]int, len(v.Shape))
	for i, s := range v.Shape {
		chunks[i] = s
		if s == 0 {
			chunks[i] = 1
		}
	}
	compressor := defaultCompressor
	meta := &zarr.ArrayMeta{
		Shape:      append([]int(nil), v.Shape...),
		Chunks:     chunks,
		Dtype:      zarr.StructuredType{Dtype: dt},
		Compressor: &compressor,
	}
	if dt.BasicType == zarr.BTFloatingPoint {
		meta.FillValue = zarr.FillValueNaN
	}

	attrs := zarr.Attributes(copyAttrs(v.Attrs))
	dims := make([]interface{}, len(v.Dims))
	for i, d := range v.Dims {
		dims[i] = d
	}
	attrs[dimensionsKey] = dims

	arr, err := zarr.Create(store, v.Name, meta, attrs)
	if err != nil {
		return err
	}
	return arr.WriteAll(v.Data)
}

// storageDtype keeps the variable's dtype when it still describes the data,
// e.g. datetimes held as int64. Strings are always resized to fit.
func storageDtype(v *Variable) (zarr.Dtype, error) {
	if _, isStr := v.Data.([]string); !isStr && v.Data != nil {
		if t, err := v.Dtype.GoType(); err == nil && t == reflect.TypeOf(v.Data).Elem() {
			return v.Dtype, nil
		}
	}
	return dtypeOf(v.Data)
}
