// Package analysis loads the outputs of a minian pipeline run. Every pipeline
// step saves its result as a zarr store named "<step>.zarr" inside one
// directory; OpenMinian reads them back together.
package analysis

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minian-go/minian/internal/log"
	"github.com/minian-go/minian/xarray"
	"github.com/minian-go/minian/zarr"
)

const storeSuffix = ".zarr"

// ErrDuplicateArray is returned in mapping mode when two stores hold arrays
// with the same name.
var ErrDuplicateArray = errors.New("duplicate array name")

// PostProcessFunc transforms the merged dataset. It receives the directory
// OpenMinian was called with.
type PostProcessFunc func(ds *xarray.Dataset, path string) (*xarray.Dataset, error)

// OpenOptions configure OpenMinian. The zero value merges every store.
type OpenOptions struct {
	// PostProcess, when set, is applied to the merged dataset. It is ignored
	// when ReturnDict is set.
	PostProcess PostProcessFunc
	// ReturnDict returns one array per store instead of merging.
	ReturnDict bool
}

// Result holds what OpenMinian loaded: Dataset in merge mode, Arrays in
// mapping mode.
type Result struct {
	Dataset *xarray.Dataset
	Arrays  map[string]*xarray.DataArray
}

// OpenMinian opens every "*.zarr" directory directly under path. Without
// ReturnDict the stores are merged with xarray.CompatNoConflicts and passed
// through PostProcess; an error from PostProcess is returned as is. With
// ReturnDict each store contributes its first data variable, keyed by the
// variable's own name.
func OpenMinian(path string, opts OpenOptions) (*Result, error) {
	logger := log.WithComponent("analysis")

	stores, err := listStores(path)
	if err != nil {
		return nil, err
	}

	datasets := make([]*xarray.Dataset, 0, len(stores))
	for _, dir := range stores {
		ds, err := xarray.OpenZarrDir(dir)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", dir, err)
		}
		logger.Debug().
			Str("store", filepath.Base(dir)).
			Strs("data_vars", ds.DataVarNames()).
			Msg("opened store")
		datasets = append(datasets, ds)
	}

	if opts.ReturnDict {
		arrays := make(map[string]*xarray.DataArray, len(datasets))
		for i, ds := range datasets {
			da, err := ds.First()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", stores[i], err)
			}
			if _, dup := arrays[da.Name()]; dup {
				return nil, fmt.Errorf("%w %q in %s", ErrDuplicateArray, da.Name(), stores[i])
			}
			arrays[da.Name()] = da
		}
		logger.Info().Str("path", path).Int("arrays", len(arrays)).Msg("loaded arrays")
		return &Result{Arrays: arrays}, nil
	}

	merged, err := xarray.Merge(datasets, xarray.CompatNoConflicts)
	if err != nil {
		return nil, fmt.Errorf("merging stores in %s: %w", path, err)
	}
	logger.Info().
		Str("path", path).
		Int("stores", len(datasets)).
		Int("data_vars", len(merged.DataVars)).
		Msg("merged stores")

	if opts.PostProcess != nil {
		return postProcess(merged, path, opts.PostProcess)
	}
	return &Result{Dataset: merged}, nil
}

func postProcess(ds *xarray.Dataset, path string, fn PostProcessFunc) (*Result, error) {
	out, err := fn(ds, path)
	if err != nil {
		return nil, err
	}
	return &Result{Dataset: out}, nil
}

// listStores returns the "*.zarr" directories under path in name order.
func listStores(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", zarr.ErrNotDirectory, path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var stores []string
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), storeSuffix) {
			continue
		}
		full := filepath.Join(path, e.Name())
		// follow symlinks
		if fi, err := os.Stat(full); err != nil || !fi.IsDir() {
			continue
		}
		stores = append(stores, full)
	}
	return stores, nil
}
