// Package xarray holds labeled multi-dimensional array collections: datasets
// of named variables sharing dimensions, read from zarr groups and combined
// with Merge.
package xarray

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrDimensionConflict = errors.New("conflicting dimension sizes")
	ErrMissingDimensions = errors.New("missing _ARRAY_DIMENSIONS attribute")
	ErrEmptyDataset      = errors.New("dataset has no data variables")
	ErrMergeConflict     = errors.New("conflicting values for variable")
)

// Dataset is a collection of data variables and coordinates that share a
// common set of named dimensions.
type Dataset struct {
	DataVars map[string]*Variable
	Coords   map[string]*Variable
	Attrs    map[string]interface{}
}

func NewDataset() *Dataset {
	return &Dataset{
		DataVars: map[string]*Variable{},
		Coords:   map[string]*Variable{},
		Attrs:    map[string]interface{}{},
	}
}

// AddDataVar adds or replaces a data variable.
func (ds *Dataset) AddDataVar(v *Variable) error {
	if _, ok := ds.Coords[v.Name]; ok {
		return fmt.Errorf("%q is already a coordinate", v.Name)
	}
	if err := ds.checkDims(v); err != nil {
		return err
	}
	ds.DataVars[v.Name] = v
	return nil
}

// AddCoord adds or replaces a coordinate variable.
func (ds *Dataset) AddCoord(v *Variable) error {
	if _, ok := ds.DataVars[v.Name]; ok {
		return fmt.Errorf("%q is already a data variable", v.Name)
	}
	if err := ds.checkDims(v); err != nil {
		return err
	}
	ds.Coords[v.Name] = v
	return nil
}

// checkDims compares v against every other variable; a variable being
// replaced does not count.
func (ds *Dataset) checkDims(v *Variable) error {
	dims := map[string]int{}
	for _, other := range ds.variables() {
		if other.Name == v.Name {
			continue
		}
		for i, d := range other.Dims {
			dims[d] = other.Shape[i]
		}
	}
	for i, d := range v.Dims {
		if size, ok := dims[d]; ok && size != v.Shape[i] {
			return fmt.Errorf("%w: %q has length %d in %q, %d elsewhere", ErrDimensionConflict, d, v.Shape[i], v.Name, size)
		}
	}
	return nil
}

// Dims maps every dimension name to its length.
func (ds *Dataset) Dims() map[string]int {
	dims := map[string]int{}
	for _, v := range ds.variables() {
		for i, d := range v.Dims {
			dims[d] = v.Shape[i]
		}
	}
	return dims
}

// Variable looks name up among coordinates and data variables.
func (ds *Dataset) Variable(name string) (*Variable, bool) {
	if v, ok := ds.Coords[name]; ok {
		return v, true
	}
	v, ok := ds.DataVars[name]
	return v, ok
}

// Index returns the index coordinate of dim, if there is one.
func (ds *Dataset) Index(dim string) (*Variable, bool) {
	v, ok := ds.Coords[dim]
	if !ok || !v.IsIndex() {
		return nil, false
	}
	return v, true
}

// DataVarNames lists data variable names in sorted order.
func (ds *Dataset) DataVarNames() []string {
	return sortedKeys(ds.DataVars)
}

// CoordNames lists coordinate names in sorted order.
func (ds *Dataset) CoordNames() []string {
	return sortedKeys(ds.Coords)
}

// DataArray returns the named data variable with the coordinates that
// describe it.
func (ds *Dataset) DataArray(name string) (*DataArray, error) {
	v, ok := ds.DataVars[name]
	if !ok {
		return nil, fmt.Errorf("no data variable %q", name)
	}
	da := &DataArray{Variable: v, Coords: map[string]*Variable{}}
	for cname, c := range ds.Coords {
		if coversDims(v.Dims, c.Dims) {
			da.Coords[cname] = c
		}
	}
	return da, nil
}

// DataArrays returns every data variable as a DataArray, in name order.
func (ds *Dataset) DataArrays() []*DataArray {
	names := ds.DataVarNames()
	out := make([]*DataArray, 0, len(names))
	for _, name := range names {
		da, _ := ds.DataArray(name)
		out = append(out, da)
	}
	return out
}

// First returns the first data variable in name order.
func (ds *Dataset) First() (*DataArray, error) {
	names := ds.DataVarNames()
	if len(names) == 0 {
		return nil, ErrEmptyDataset
	}
	return ds.DataArray(names[0])
}

// Copy returns a deep copy of ds.
func (ds *Dataset) Copy() *Dataset {
	out := NewDataset()
	for name, v := range ds.DataVars {
		out.DataVars[name] = v.Copy()
	}
	for name, v := range ds.Coords {
		out.Coords[name] = v.Copy()
	}
	out.Attrs = copyAttrs(ds.Attrs)
	return out
}

// Equal reports whether both datasets hold the same variables with equal
// values. Attributes are not compared.
func (ds *Dataset) Equal(o *Dataset) bool {
	if len(ds.DataVars) != len(o.DataVars) || len(ds.Coords) != len(o.Coords) {
		return false
	}
	for name, v := range ds.DataVars {
		ov, ok := o.DataVars[name]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	for name, v := range ds.Coords {
		ov, ok := o.Coords[name]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (ds *Dataset) String() string {
	var sb strings.Builder
	sb.WriteString("<xarray.Dataset>\nDimensions:")
	dims := ds.Dims()
	for _, d := range sortedKeys(dims) {
		fmt.Fprintf(&sb, " %s: %d", d, dims[d])
	}
	sb.WriteString("\nCoordinates:")
	for _, name := range ds.CoordNames() {
		fmt.Fprintf(&sb, "\n  %s %v %s", name, ds.Coords[name].Dims, ds.Coords[name].Dtype)
	}
	sb.WriteString("\nData variables:")
	for _, name := range ds.DataVarNames() {
		fmt.Fprintf(&sb, "\n  %s %v %s", name, ds.DataVars[name].Dims, ds.DataVars[name].Dtype)
	}
	return sb.String()
}

func (ds *Dataset) variables() []*Variable {
	out := make([]*Variable, 0, len(ds.Coords)+len(ds.DataVars))
	for _, name := range ds.CoordNames() {
		out = append(out, ds.Coords[name])
	}
	for _, name := range ds.DataVarNames() {
		out = append(out, ds.DataVars[name])
	}
	return out
}

// DataArray is a single data variable together with its coordinates.
type DataArray struct {
	Variable *Variable
	Coords   map[string]*Variable
}

// Name is the variable name the array was stored under.
func (da *DataArray) Name() string { return da.Variable.Name }

func (da *DataArray) Dims() []string { return da.Variable.Dims }

func (da *DataArray) Shape() []int { return da.Variable.Shape }

func (da *DataArray) Values() interface{} { return da.Variable.Data }

func (da *DataArray) Attrs() map[string]interface{} { return da.Variable.Attrs }

// ToDataset wraps the array and its coordinates in a new dataset.
func (da *DataArray) ToDataset() *Dataset {
	ds := NewDataset()
	for name, c := range da.Coords {
		ds.Coords[name] = c
	}
	ds.DataVars[da.Name()] = da.Variable
	return ds
}

func coversDims(dims, sub []string) bool {
	for _, d := range sub {
		found := false
		for _, have := range dims {
			if have == d {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
