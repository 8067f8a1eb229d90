package xarray

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/minian-go/minian/zarr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToZarrRoundTrip(t *testing.T) {
	ds := testDataset(t)
	store := zarr.NewMemoryStore()
	require.NoError(t, ds.ToZarr(store))

	got, err := OpenZarr(store, OpenOptions{})
	require.NoError(t, err)
	assert.True(t, ds.Equal(got), "got %s", got)
	assert.Equal(t, []string{"frame", "height", "session"}, got.CoordNames())
	assert.Equal(t, []string{"A", "B"}, got.DataVarNames())
	assert.Equal(t, map[string]interface{}{"fps": 30.0}, got.Attrs)
	assert.Equal(t, "<i4", got.DataVars["B"].Dtype.String())
	assert.Equal(t, zarr.CodecBlosc, got.DataVars["A"].Encoding["compressor"])
	assertData(t, []float64{0, 1, 2, 3, 4, 5}, got.DataVars["A"].Data)
}

func TestOpenZarrConsolidated(t *testing.T) {
	ds := testDataset(t)
	store := zarr.NewMemoryStore()
	require.NoError(t, ds.ToZarr(store))

	// the index only lists A and its coordinates; B is left out
	consolidate(t, store, "frame", "height", "session", "A")

	got, err := OpenZarr(store, OpenOptions{Consolidated: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, got.DataVarNames())
	assert.Equal(t, []string{"frame", "height", "session"}, got.CoordNames())

	listed, err := OpenZarr(store, OpenOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, listed.DataVarNames())
}

// consolidate writes a ".zmetadata" document covering the root group and
// the named arrays.
func consolidate(t *testing.T, store zarr.Store, names ...string) {
	t.Helper()
	meta := map[string]json.RawMessage{}
	read := func(key string) {
		r, err := store.Get(key)
		require.NoError(t, err)
		defer r.Close()
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		meta[key] = data
	}
	read(".zgroup")
	read(".zattrs")
	for _, name := range names {
		read(name + "/.zarray")
		read(name + "/.zattrs")
	}
	doc, err := json.Marshal(map[string]interface{}{
		"zarr_consolidated_format": 1,
		"metadata":                 meta,
	})
	require.NoError(t, err)
	require.NoError(t, store.Put(".zmetadata", bytes.NewReader(doc)))
}

func TestOpenZarrDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "minian_ds.zarr")
	store, err := zarr.NewLocalStore(dir)
	require.NoError(t, err)
	require.NoError(t, testDataset(t).ToZarr(store))

	// stray files and nested groups are not variables
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))
	_, err = zarr.CreateGroup(store, "nested")
	require.NoError(t, err)

	got, err := OpenZarrDir(dir)
	require.NoError(t, err)
	assert.True(t, testDataset(t).Equal(got))

	_, err = OpenZarrDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestOpenZarrErrors(t *testing.T) {
	store := zarr.NewMemoryStore()
	_, err := OpenZarr(store, OpenOptions{})
	assert.ErrorIs(t, err, zarr.ErrNotGroup, "no root group")

	_, err = zarr.CreateGroup(store, "")
	require.NoError(t, err)
	_, err = zarr.Create(store, "raw", &zarr.ArrayMeta{
		Shape:  []int{2},
		Chunks: []int{2},
		Dtype:  zarr.StructuredType{Dtype: zarr.Dtype{ByteOrder: zarr.BOLittleEndian, BasicType: zarr.BTFloatingPoint, ByteSize: 8}},
	}, nil)
	require.NoError(t, err)
	_, err = OpenZarr(store, OpenOptions{})
	assert.ErrorIs(t, err, ErrMissingDimensions)

	_, err = zarr.Create(store, "raw", &zarr.ArrayMeta{
		Shape:  []int{2},
		Chunks: []int{2},
		Dtype:  zarr.StructuredType{Dtype: zarr.Dtype{ByteOrder: zarr.BOLittleEndian, BasicType: zarr.BTFloatingPoint, ByteSize: 8}},
	}, zarr.Attributes{dimensionsKey: []interface{}{"x", "y"}})
	require.NoError(t, err)
	_, err = OpenZarr(store, OpenOptions{})
	assert.Error(t, err, "rank mismatch")
}

func TestDecodeCF(t *testing.T) {
	store := zarr.NewMemoryStore()
	_, err := zarr.CreateGroup(store, "")
	require.NoError(t, err)
	arr, err := zarr.Create(store, "raw", &zarr.ArrayMeta{
		Shape:      []int{4},
		Chunks:     []int{4},
		Dtype:      zarr.StructuredType{Dtype: zarr.Dtype{ByteOrder: zarr.BOLittleEndian, BasicType: zarr.BTInteger, ByteSize: 2}},
		Compressor: &zarr.CompressionMeta{ID: zarr.CodecZlib},
	}, zarr.Attributes{
		dimensionsKey:  []interface{}{"x"},
		fillValueKey:   -1,
		scaleFactorKey: 0.5,
		addOffsetKey:   1,
		"units":        "px",
	})
	require.NoError(t, err)
	require.NoError(t, arr.WriteAll([]int16{-1, 0, 2, 4}))

	ds, err := OpenZarr(store, OpenOptions{})
	require.NoError(t, err)
	v := ds.DataVars["raw"]
	assertData(t, []float64{nan, 1, 2, 3}, v.Data)
	assert.Equal(t, "<f8", v.Dtype.String())
	assert.Equal(t, map[string]interface{}{"units": "px"}, v.Attrs)
	assert.Equal(t, 0.5, v.Encoding[scaleFactorKey])

	raw, err := OpenZarr(store, OpenOptions{SkipCFDecoding: true})
	require.NoError(t, err)
	assert.Equal(t, []int16{-1, 0, 2, 4}, raw.DataVars["raw"].Data)
	assert.Contains(t, raw.DataVars["raw"].Attrs, fillValueKey)
}

func TestDecodeCFFloatMask(t *testing.T) {
	v := newVar(t, "f", []string{"x"}, []int{3}, []float32{1, -9, 3})
	v.Attrs[fillValueKey] = -9.0
	require.NoError(t, decodeCF(v))
	assertData(t, []float32{1, float32(nan), 3}, v.Data)
	assert.Equal(t, "<f4", v.Dtype.String())

	s := newVar(t, "s", []string{"x"}, []int{1}, []string{"a"})
	s.Attrs[fillValueKey] = ""
	require.NoError(t, decodeCF(s))
	assert.Equal(t, []string{"a"}, s.Data)
}
