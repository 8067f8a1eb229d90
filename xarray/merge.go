package xarray

import (
	"fmt"
	"reflect"
	"sort"
)

// Compat selects how Merge treats variables present in more than one dataset.
type Compat int

const (
	// CompatNoConflicts requires non-null values to agree and fills nulls from
	// later datasets.
	CompatNoConflicts Compat = iota
	// CompatEquals requires equal values, nulls in the same places.
	CompatEquals
	// CompatIdentical is CompatEquals plus equal variable attributes.
	CompatIdentical
	// CompatOverride keeps the first dataset's values without comparing.
	CompatOverride
)

func (c Compat) String() string {
	switch c {
	case CompatNoConflicts:
		return "no_conflicts"
	case CompatEquals:
		return "equals"
	case CompatIdentical:
		return "identical"
	case CompatOverride:
		return "override"
	}
	return fmt.Sprintf("Compat(%d)", int(c))
}

// Merge combines datasets into one. Index coordinates are outer-joined first:
// each dimension gets the union of its labels, and positions a dataset has no
// label for are filled with NaN (integers are promoted to float64). Variables
// sharing a name are then combined according to compat; a disagreement is
// reported as ErrMergeConflict. Dataset attributes come from the first
// dataset.
func Merge(datasets []*Dataset, compat Compat) (*Dataset, error) {
	if len(datasets) == 0 {
		return NewDataset(), nil
	}

	unions, err := unionIndexes(datasets)
	if err != nil {
		return nil, err
	}

	merged := map[string]*Variable{}
	isCoord := map[string]bool{}
	for _, ds := range datasets {
		aligned, err := reindexDataset(ds, unions)
		if err != nil {
			return nil, err
		}
		for _, name := range aligned.CoordNames() {
			if err := mergeVariable(merged, aligned.Coords[name], compat); err != nil {
				return nil, err
			}
			isCoord[name] = true
		}
		for _, name := range aligned.DataVarNames() {
			if err := mergeVariable(merged, aligned.DataVars[name], compat); err != nil {
				return nil, err
			}
		}
	}

	out := NewDataset()
	out.Attrs = copyAttrs(datasets[0].Attrs)
	for _, name := range sortedKeys(merged) {
		var err error
		if isCoord[name] {
			err = out.AddCoord(merged[name])
		} else {
			err = out.AddDataVar(merged[name])
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func mergeVariable(merged map[string]*Variable, v *Variable, compat Compat) error {
	prev, ok := merged[v.Name]
	if !ok {
		merged[v.Name] = v.Copy()
		return nil
	}
	if !sameStrings(prev.Dims, v.Dims) || !sameInts(prev.Shape, v.Shape) {
		return fmt.Errorf("%w %q: dimensions %v%v against %v%v", ErrMergeConflict, v.Name, prev.Dims, prev.Shape, v.Dims, v.Shape)
	}
	if compat == CompatOverride {
		return nil
	}
	if compat == CompatIdentical && !reflect.DeepEqual(prev.Attrs, v.Attrs) {
		return fmt.Errorf("%w %q: attributes differ", ErrMergeConflict, v.Name)
	}

	data, at, err := combineData(prev.Data, v.Data, compat != CompatNoConflicts)
	if err != nil {
		return fmt.Errorf("%w %q: %s", ErrMergeConflict, v.Name, err)
	}
	if at >= 0 {
		return fmt.Errorf("%w %q at position %d: %v against %v", ErrMergeConflict, v.Name, at, prev.At(at), v.At(at))
	}
	if reflect.TypeOf(data) != reflect.TypeOf(prev.Data) {
		if prev.Dtype, err = dtypeOf(data); err != nil {
			return err
		}
	}
	prev.Data = data
	return nil
}

// unionIndexes returns, for every dimension indexed in any dataset, an index
// variable holding the union of its labels.
func unionIndexes(datasets []*Dataset) (map[string]*Variable, error) {
	byDim := map[string][]*Variable{}
	for _, ds := range datasets {
		for _, name := range ds.CoordNames() {
			if v := ds.Coords[name]; v.IsIndex() {
				byDim[name] = append(byDim[name], v)
			}
		}
	}

	unions := map[string]*Variable{}
	for _, dim := range sortedKeys(byDim) {
		u, err := unionIndex(dim, byDim[dim])
		if err != nil {
			return nil, err
		}
		unions[dim] = u
	}
	return unions, nil
}

func unionIndex(dim string, indexes []*Variable) (*Variable, error) {
	first := indexes[0]
	elem := reflect.TypeOf(first.Data)
	for _, idx := range indexes[1:] {
		if reflect.TypeOf(idx.Data) != elem {
			elem = nil
			break
		}
	}
	mixed := elem == nil

	firstKeys, err := indexKeys(first, mixed)
	if err != nil {
		return nil, err
	}

	same := true
	keys := append([]interface{}(nil), firstKeys...)
	from := map[interface{}]*Variable{}
	pos := map[interface{}]int{}
	for i, k := range firstKeys {
		from[k], pos[k] = first, i
	}
	for _, idx := range indexes[1:] {
		ks, err := indexKeys(idx, mixed)
		if err != nil {
			return nil, err
		}
		same = same && reflect.DeepEqual(ks, firstKeys)
		for i, k := range ks {
			if _, seen := from[k]; !seen {
				from[k], pos[k] = idx, i
				keys = append(keys, k)
			}
		}
	}
	if same {
		return first, nil
	}
	sortKeys(keys)

	u := first.Copy()
	u.Shape = []int{len(keys)}
	if mixed {
		// mixed label types; keys are float64 unless they are strings
		vals := make([]float64, len(keys))
		for i, k := range keys {
			f, ok := k.(float64)
			if !ok {
				return nil, fmt.Errorf("index %q mixes label types", dim)
			}
			vals[i] = f
		}
		u.Data = vals
		u.Dtype, _ = dtypeOf(vals)
		return u, nil
	}
	out := reflect.MakeSlice(elem, len(keys), len(keys))
	for i, k := range keys {
		out.Index(i).Set(reflect.ValueOf(from[k].Data).Index(pos[k]))
	}
	u.Data = out.Interface()
	return u, nil
}

// indexKeys converts index labels to comparable map keys. Integer labels
// keep their exact value as int64 or uint64 keys so large counts such as
// nanosecond timestamps stay distinct; floats and, when asFloat is set, every
// numeric label become float64 keys; other labels are used as is. Labels
// must be unique.
func indexKeys(idx *Variable, asFloat bool) ([]interface{}, error) {
	keys := make([]interface{}, idx.Len())
	switch {
	case !asFloat && isSigned(idx.Data):
		for i := range keys {
			keys[i] = reflect.ValueOf(idx.Data).Index(i).Int()
		}
	case !asFloat && isUnsigned(idx.Data):
		for i := range keys {
			keys[i] = reflect.ValueOf(idx.Data).Index(i).Uint()
		}
	default:
		if f, ok := toFloat64(idx.Data); ok {
			for i, x := range f {
				keys[i] = x
			}
		} else {
			for i := range keys {
				keys[i] = idx.At(i)
			}
		}
	}
	seen := make(map[interface{}]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("index %q has duplicate label %v", idx.Name, k)
		}
		seen[k] = struct{}{}
	}
	return keys, nil
}

func isSigned(data interface{}) bool {
	switch data.(type) {
	case []int8, []int16, []int32, []int64:
		return true
	}
	return false
}

func isUnsigned(data interface{}) bool {
	switch data.(type) {
	case []uint8, []uint16, []uint32, []uint64:
		return true
	}
	return false
}

// sortKeys orders labels when they all share one key type, and leaves
// first-seen order otherwise.
func sortKeys(keys []interface{}) {
	if len(keys) == 0 {
		return
	}
	kind := reflect.TypeOf(keys[0])
	for _, k := range keys[1:] {
		if reflect.TypeOf(k) != kind {
			return
		}
	}
	var less func(a, b interface{}) bool
	switch keys[0].(type) {
	case float64:
		less = func(a, b interface{}) bool { return a.(float64) < b.(float64) }
	case int64:
		less = func(a, b interface{}) bool { return a.(int64) < b.(int64) }
	case uint64:
		less = func(a, b interface{}) bool { return a.(uint64) < b.(uint64) }
	case string:
		less = func(a, b interface{}) bool { return a.(string) < b.(string) }
	default:
		return
	}
	sort.SliceStable(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
}

// reindexDataset conforms every variable of ds to the union indexes.
func reindexDataset(ds *Dataset, unions map[string]*Variable) (*Dataset, error) {
	sizes := ds.Dims()
	indexers := map[string][]int{}
	for dim, u := range unions {
		size, ok := sizes[dim]
		if !ok {
			continue
		}
		idx, ok := ds.Index(dim)
		if !ok {
			if size != u.Len() {
				return nil, fmt.Errorf("%w: unindexed %q has length %d, index has %d", ErrDimensionConflict, dim, size, u.Len())
			}
			continue
		}
		indexer, err := indexerFor(idx, u)
		if err != nil {
			return nil, err
		}
		if indexer != nil {
			indexers[dim] = indexer
		}
	}

	out := NewDataset()
	out.Attrs = ds.Attrs
	conform := func(v *Variable) (*Variable, error) {
		if u, ok := unions[v.Name]; ok && v.IsIndex() {
			c := u.Copy()
			c.Attrs = copyAttrs(v.Attrs)
			return c, nil
		}
		return reindexVariable(v, indexers)
	}
	for name, v := range ds.Coords {
		c, err := conform(v)
		if err != nil {
			return nil, err
		}
		out.Coords[name] = c
	}
	for name, v := range ds.DataVars {
		c, err := conform(v)
		if err != nil {
			return nil, err
		}
		out.DataVars[name] = c
	}
	return out, nil
}

// indexerFor maps each label of u to its position in idx, -1 where idx lacks
// it. It returns nil when idx already matches u.
func indexerFor(idx, u *Variable) ([]int, error) {
	mixed := reflect.TypeOf(idx.Data) != reflect.TypeOf(u.Data)
	have, err := indexKeys(idx, mixed)
	if err != nil {
		return nil, err
	}
	want, err := indexKeys(u, mixed)
	if err != nil {
		return nil, err
	}
	pos := make(map[interface{}]int, len(have))
	for i, k := range have {
		pos[k] = i
	}
	indexer := make([]int, len(want))
	identity := len(have) == len(want)
	for j, k := range want {
		i, ok := pos[k]
		if !ok {
			i = -1
		}
		indexer[j] = i
		identity = identity && i == j
	}
	if identity {
		return nil, nil
	}
	return indexer, nil
}

func reindexVariable(v *Variable, indexers map[string][]int) (*Variable, error) {
	out := v
	for axis, dim := range v.Dims {
		indexer, ok := indexers[dim]
		if !ok {
			continue
		}
		if out == v {
			out = v.Copy()
		}
		data, err := reindexData(out.Data, out.Shape, axis, indexer)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", v.Name, err)
		}
		out.Data = data
		out.Shape[axis] = len(indexer)
	}
	if out != v && reflect.TypeOf(out.Data) != reflect.TypeOf(v.Data) {
		dt, err := dtypeOf(out.Data)
		if err != nil {
			return nil, err
		}
		out.Dtype = dt
	}
	return out, nil
}
