package xarray

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/minian-go/minian/zarr"
)

const (
	// dimensionsKey is the attribute xarray stores array dimension names under.
	dimensionsKey = "_ARRAY_DIMENSIONS"
	// coordinatesKey lists non-index coordinates, space separated.
	coordinatesKey = "coordinates"
)

// OpenOptions configure OpenZarr.
type OpenOptions struct {
	// Consolidated discovers arrays through the ".zmetadata" index instead of
	// listing the store.
	Consolidated bool
	// SkipCFDecoding keeps _FillValue, scale_factor and add_offset as plain
	// attributes and returns raw stored values.
	SkipCFDecoding bool
}

// OpenZarrDir opens the zarr group rooted at the directory path, discovering
// arrays by listing the directory.
func OpenZarrDir(path string) (*Dataset, error) {
	store, err := zarr.OpenLocalStore(path)
	if err != nil {
		return nil, err
	}
	return OpenZarr(store, OpenOptions{})
}

// OpenZarr reads every array of the zarr group at the root of store into a
// Dataset.
func OpenZarr(store zarr.Store, opts OpenOptions) (*Dataset, error) {
	if _, err := zarr.OpenGroup(store, ""); err != nil {
		return nil, err
	}
	attrs, err := zarr.ReadAttributes(store, "")
	if err != nil {
		return nil, err
	}

	names, err := arrayNames(store, opts.Consolidated)
	if err != nil {
		return nil, err
	}

	coordNames := map[string]struct{}{}
	takeCoordinates(attrs, coordNames)

	vars := make([]*Variable, 0, len(names))
	for _, name := range names {
		v, err := readVariable(store, name, opts)
		if errors.Is(err, zarr.ErrNotArray) {
			// subgroups are not part of the dataset
			continue
		}
		if err != nil {
			return nil, err
		}
		takeCoordinates(v.Attrs, coordNames)
		vars = append(vars, v)
	}

	ds := NewDataset()
	ds.Attrs = map[string]interface{}(attrs)
	for _, v := range vars {
		_, listed := coordNames[v.Name]
		if v.IsIndex() || listed {
			err = ds.AddCoord(v)
		} else {
			err = ds.AddDataVar(v)
		}
		if err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func arrayNames(store zarr.Store, consolidated bool) ([]string, error) {
	if consolidated {
		cm, err := zarr.ReadConsolidated(store, "")
		if err != nil {
			return nil, err
		}
		names := cm.Arrays("")
		sort.Strings(names)
		return names, nil
	}

	children, err := store.ListDir("")
	if err != nil {
		return nil, err
	}
	names := children[:0]
	for _, c := range children {
		if !strings.HasPrefix(c, ".") {
			names = append(names, c)
		}
	}
	sort.Strings(names)
	return names, nil
}

func readVariable(store zarr.Store, name string, opts OpenOptions) (*Variable, error) {
	arr, err := zarr.Open(store, name, zarr.ModeRead)
	if err != nil {
		return nil, err
	}
	attrs := copyAttrs(arr.Attrs())
	dims, err := arrayDims(name, attrs, len(arr.Meta().Shape))
	if err != nil {
		return nil, err
	}
	delete(attrs, dimensionsKey)

	data, err := arr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", name, err)
	}

	v := &Variable{
		Name:     name,
		Dims:     dims,
		Shape:    arr.Shape(),
		Dtype:    arr.Meta().Dtype.Dtype,
		Data:     data,
		Attrs:    attrs,
		Encoding: map[string]interface{}{"dtype": arr.Meta().Dtype.Dtype.String()},
	}
	if arr.Meta().Compressor != nil {
		v.Encoding["compressor"] = arr.Meta().Compressor.ID
	}
	if !opts.SkipCFDecoding {
		if err := decodeCF(v); err != nil {
			return nil, fmt.Errorf("decoding %q: %w", name, err)
		}
	}
	return v, nil
}

func arrayDims(name string, attrs map[string]interface{}, rank int) ([]string, error) {
	raw, ok := attrs[dimensionsKey]
	if !ok {
		return nil, fmt.Errorf("%w: array %q", ErrMissingDimensions, name)
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("array %q: %s must be a list, got %T", name, dimensionsKey, raw)
	}
	if len(list) != rank {
		return nil, fmt.Errorf("array %q: %d dimension names for %d dimensions", name, len(list), rank)
	}
	dims := make([]string, len(list))
	for i, el := range list {
		s, ok := el.(string)
		if !ok {
			return nil, fmt.Errorf("array %q: dimension name %v is not a string", name, el)
		}
		dims[i] = s
	}
	return dims, nil
}

// takeCoordinates moves names listed in the "coordinates" attribute into set.
func takeCoordinates(attrs map[string]interface{}, set map[string]struct{}) {
	raw, ok := attrs[coordinatesKey].(string)
	if !ok {
		return
	}
	for _, name := range strings.Fields(raw) {
		set[name] = struct{}{}
	}
	delete(attrs, coordinatesKey)
}
