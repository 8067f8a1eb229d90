package zarr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int32Meta(shape, chunks []int) *ArrayMeta {
	return &ArrayMeta{
		Shape:  shape,
		Chunks: chunks,
		Dtype:  StructuredType{Dtype: Dtype{ByteOrder: BOLittleEndian, BasicType: BTInteger, ByteSize: 4}},
	}
}

func TestZarr(t *testing.T) {
	s := NewMemoryStore()
	_, err := Open(s, "foo/bar", ModeReadWrite)
	require.ErrorIs(t, err, ErrNotArray)

	_, err = Create(s, "foo/bar", int32Meta([]int{4}, []int{2}), nil)
	require.NoError(t, err)

	z, err := Open(s, "foo/bar", ModeRead)
	require.NoError(t, err)
	assert.Equal(t, "foo/bar", z.Path())
	assert.Equal(t, "bar", z.Name())
	assert.Equal(t, []int{4}, z.Shape())
	assert.Contains(t, z.Info(), "shape=[4]")

	// no chunks written yet: everything is fill value
	res, err := z.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 0, 0, 0}, res)

	require.ErrorIs(t, z.WriteAll([]int32{1, 2, 3, 4}), ErrReadOnly)
}

/*
import zarr
import numpy as np
from numcodecs import Zstd
z1 = zarr.open('testdata/int32_100x100_chunk_10x10_.zarr', mode='w', shape=(100, 100), chunks=(10, 10), dtype='i4', compressor=Zstd())
z1[:] = 20
*/
func TestReadAll(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	meta := int32Meta([]int{100, 100}, []int{10, 10})
	meta.Compressor = &CompressionMeta{ID: CodecZstd, Level: 1}
	a, err := Create(s, "int32_100x100_chunk_10x10_.zarr", meta, nil)
	require.NoError(t, err)

	data := make([]int32, 100*100)
	for i := range data {
		data[i] = 20
	}
	require.NoError(t, a.WriteAll(data))

	a, err = Open(s, "int32_100x100_chunk_10x10_.zarr", ModeRead)
	require.NoError(t, err)

	got, err := a.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReadAllEdgeChunks(t *testing.T) {
	for _, codec := range []*CompressionMeta{
		nil,
		{ID: CodecGZip},
		{ID: CodecZlib},
		{ID: CodecZstd},
		{ID: CodecBlosc, Cname: "lz4", Shuffle: 1},
		{ID: CodecBlosc, Cname: "zstd", Shuffle: 1},
		{ID: CodecBlosc, Cname: "zlib"},
		{ID: CodecBlosc, Cname: "snappy", Shuffle: 1},
	} {
		name := "raw"
		if codec != nil {
			name = codec.ID + "-" + codec.Cname
		}
		t.Run(name, func(t *testing.T) {
			s := NewMemoryStore()
			meta := &ArrayMeta{
				Shape:      []int{5, 7},
				Chunks:     []int{2, 3},
				Dtype:      StructuredType{Dtype: Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 8}},
				Compressor: codec,
			}
			a, err := Create(s, "A", meta, Attributes{"_ARRAY_DIMENSIONS": []string{"y", "x"}})
			require.NoError(t, err)

			data := make([]float64, 35)
			for i := range data {
				data[i] = float64(i) * 1.5
			}
			require.NoError(t, a.WriteAll(data))

			keys, err := s.ListDir("A")
			require.NoError(t, err)
			// 3 x 3 chunks plus .zarray and .zattrs
			assert.Len(t, keys, 11)

			a, err = Open(s, "A", ModeRead)
			require.NoError(t, err)
			assert.Equal(t, []interface{}{"y", "x"}, a.Attrs()["_ARRAY_DIMENSIONS"])
			got, err := a.ReadAll()
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestReadAllFillValue(t *testing.T) {
	s := NewMemoryStore()
	meta := &ArrayMeta{
		Shape:     []int{4},
		Chunks:    []int{2},
		Dtype:     StructuredType{Dtype: Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 4}},
		FillValue: FillValueNaN,
	}
	_, err := Create(s, "x", meta, nil)
	require.NoError(t, err)
	// only the second chunk is present
	require.NoError(t, s.Put("x/1", bytes.NewReader([]byte{0, 0, 0x80, 0x3f, 0, 0, 0, 0x40})))

	a, err := Open(s, "x", ModeRead)
	require.NoError(t, err)
	got, err := a.ReadAll()
	require.NoError(t, err)
	vals := got.([]float32)
	require.Len(t, vals, 4)
	assert.True(t, math.IsNaN(float64(vals[0])))
	assert.True(t, math.IsNaN(float64(vals[1])))
	assert.Equal(t, []float32{1, 2}, vals[2:])
}

func TestReadAllFortranOrder(t *testing.T) {
	s := NewMemoryStore()
	meta := int32Meta([]int{2, 3}, []int{2, 3})
	meta.Order = "F"
	_, err := Create(s, "f", meta, nil)
	require.NoError(t, err)

	// column-major [[1 2 3] [4 5 6]]
	buf := &bytes.Buffer{}
	for _, v := range []byte{1, 4, 2, 5, 3, 6} {
		buf.Write([]byte{v, 0, 0, 0})
	}
	require.NoError(t, s.Put("f/0.0", buf))

	a, err := Open(s, "f", ModeRead)
	require.NoError(t, err)
	got, err := a.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6}, got)
}

func TestReadAllNestedKeys(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	meta := int32Meta([]int{2, 2}, []int{1, 1})
	meta.DimensionSeparator = "/"
	a, err := Create(s, "nested", meta, nil)
	require.NoError(t, err)
	require.NoError(t, a.WriteAll([]int32{1, 2, 3, 4}))

	_, err = os.Stat(filepath.Join(s.Base(), "nested", "1", "0"))
	require.NoError(t, err)

	a, err = Open(s, "nested", ModeRead)
	require.NoError(t, err)
	got, err := a.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4}, got)
}

func TestReadAllScalarAndStrings(t *testing.T) {
	s := NewMemoryStore()
	scalar := &ArrayMeta{
		Shape:  []int{},
		Chunks: []int{},
		Dtype:  StructuredType{Dtype: Dtype{ByteOrder: BOLittleEndian, BasicType: BTInteger, ByteSize: 8}},
	}
	a, err := Create(s, "n", scalar, nil)
	require.NoError(t, err)
	require.NoError(t, a.WriteAll([]int64{42}))
	_, err = s.Get("n/0")
	require.NoError(t, err)

	a, err = Open(s, "n", ModeRead)
	require.NoError(t, err)
	got, err := a.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, got)

	for _, dt := range []Dtype{
		{ByteOrder: BOLittleEndian, BasicType: BTUnicode, ByteSize: 6},
		{ByteOrder: BONotRelevant, BasicType: BTString, ByteSize: 6},
	} {
		meta := &ArrayMeta{Shape: []int{3}, Chunks: []int{2}, Dtype: StructuredType{Dtype: dt}}
		a, err := Create(s, "names", meta, nil)
		require.NoError(t, err)
		require.NoError(t, a.WriteAll([]string{"cell", "noise", ""}))

		a, err = Open(s, "names", ModeRead)
		require.NoError(t, err)
		got, err := a.ReadAll()
		require.NoError(t, err)
		assert.Equal(t, []string{"cell", "noise", ""}, got, dt.String())
	}
}

func TestReadAllErrors(t *testing.T) {
	s := NewMemoryStore()
	meta := int32Meta([]int{4}, []int{4})
	_, err := Create(s, "short", meta, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put("short/0", bytes.NewReader([]byte{1, 2, 3})))
	a, err := Open(s, "short", ModeRead)
	require.NoError(t, err)
	_, err = a.ReadAll()
	assert.ErrorIs(t, err, ErrCorruptData)

	meta = int32Meta([]int{4}, []int{4})
	meta.Filters = []Filter{{ID: "delta", Dtype: "<i4"}}
	_, err = Create(s, "filtered", meta, nil)
	require.NoError(t, err)
	a, err = Open(s, "filtered", ModeRead)
	require.NoError(t, err)
	_, err = a.ReadAll()
	assert.ErrorIs(t, err, ErrUnsupported)

	a, err = Create(s, "typed", int32Meta([]int{2}, []int{2}), nil)
	require.NoError(t, err)
	assert.Error(t, a.WriteAll([]float64{1, 2}))
	assert.Error(t, a.WriteAll([]int32{1}))
}

func TestGroups(t *testing.T) {
	s := NewMemoryStore()
	_, err := OpenGroup(s, "")
	require.ErrorIs(t, err, ErrNotGroup)

	_, err = CreateGroup(s, "")
	require.NoError(t, err)
	g, err := OpenGroup(s, "/")
	require.NoError(t, err)
	assert.Equal(t, Version, g.ZarrFormat)

	attrs, err := ReadAttributes(s, "")
	require.NoError(t, err)
	assert.Empty(t, attrs)

	require.NoError(t, WriteAttributes(s, "", Attributes{"name": "minian"}))
	attrs, err = ReadAttributes(s, "")
	require.NoError(t, err)
	assert.Equal(t, "minian", attrs["name"])
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenLocalStore(filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, err = OpenLocalStore(file)
	assert.ErrorIs(t, err, ErrNotDirectory)

	s, err := OpenLocalStore(dir)
	require.NoError(t, err)
	assert.Equal(t, LocalStoreType, s.Type())
	_, err = s.Get("nope")
	assert.ErrorIs(t, err, ErrNotfound)
	_, err = s.ListDir("nope")
	assert.ErrorIs(t, err, ErrNotfound)

	require.NoError(t, s.Put("a/b/c", bytes.NewReader([]byte("payload"))))
	names, err := s.ListDir("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)
}

func TestMemoryStoreListDir(t *testing.T) {
	s := NewMemoryStore()
	for _, key := range []string{"b/.zarray", "a/0.0", "a/.zarray", ".zgroup"} {
		require.NoError(t, s.Put(key, bytes.NewReader(nil)))
	}
	names, err := s.ListDir("")
	require.NoError(t, err)
	assert.Equal(t, []string{".zgroup", "a", "b"}, names)

	names, err = s.ListDir("a/")
	require.NoError(t, err)
	assert.Equal(t, []string{".zarray", "0.0"}, names)
}

func TestPath(t *testing.T) {
	p, err := NewPath(`\foo//bar/`)
	require.NoError(t, err)
	assert.Equal(t, "foo/bar", p.String())

	joined := p.Join("baz/.zarray")
	assert.Equal(t, "foo/bar/baz/.zarray", joined.String())
	assert.Equal(t, "foo/bar", p.String())

	head, rest := joined.Shift()
	assert.Equal(t, "foo", head)
	assert.Equal(t, Path{"bar", "baz", ".zarray"}, rest)

	_, err = NewPath("foo/../bar")
	assert.Error(t, err)
}

func TestBloscFrames(t *testing.T) {
	src := make([]byte, 4096)
	for i := range src {
		src[i] = byte(i / 64)
	}

	frame, err := encodeBlosc(src, 4, "lz4", true)
	require.NoError(t, err)
	assert.Less(t, len(frame), len(src))
	got, err := decodeBlosc(frame)
	require.NoError(t, err)
	assert.Equal(t, src, got)

	// incompressible input is stored memcpyed
	noise := []byte{7, 3, 9, 1}
	frame, err = encodeBlosc(noise, 1, "zstd", false)
	require.NoError(t, err)
	assert.NotZero(t, frame[2]&bloscMemcpyed)
	got, err = decodeBlosc(frame)
	require.NoError(t, err)
	assert.Equal(t, noise, got)

	_, err = encodeBlosc(src, 4, "blosclz", true)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = decodeBlosc(frame[:10])
	assert.ErrorIs(t, err, ErrCorruptData)

	bitshuffled := append([]byte(nil), frame...)
	bitshuffled[2] = bloscDoBitshuffle
	bitshuffled[3] = 4
	_, err = decodeBlosc(bitshuffled)
	assert.ErrorIs(t, err, ErrUnsupported)
}

// testdata/lz4_shuffle_split.blosc is written by testdata/blosc_frame.py and
// follows the c-blosc 1.x layout of
//
//	numcodecs.Blosc(cname="lz4", shuffle=Blosc.SHUFFLE, blocksize=1024).encode(
//	    np.array([i * 7 % 251 for i in range(1103)], dtype="<u4"))
//
// four split blocks whose first byte stream is stored raw, then an unsplit
// lz4 leftover block.
func TestBloscSplitFrame(t *testing.T) {
	frame, err := os.ReadFile(filepath.Join("testdata", "lz4_shuffle_split.blosc"))
	require.NoError(t, err)
	require.Len(t, frame, 1351)
	assert.Zero(t, frame[2]&bloscDontSplit)

	want := make([]byte, 1103*4)
	for i := 0; i < 1103; i++ {
		binary.LittleEndian.PutUint32(want[i*4:], uint32(i*7%251))
	}
	got, err := decodeBlosc(frame)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// as a chunk of a <u4 array compressed with the zarr default codec
	meta := &ArrayMeta{
		Shape:      []int{1103},
		Chunks:     []int{1103},
		Dtype:      StructuredType{Dtype: Dtype{ByteOrder: BOLittleEndian, BasicType: BTUnsigned, ByteSize: 4}},
		Compressor: &CompressionMeta{ID: CodecBlosc, Cname: "lz4", Clevel: 5, Shuffle: 1},
	}
	s := NewMemoryStore()
	arr, err := Create(s, "counts", meta, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put("counts/0", bytes.NewReader(frame)))
	data, err := arr.ReadAll()
	require.NoError(t, err)
	values := data.([]uint32)
	assert.Equal(t, uint32(0), values[0])
	assert.Equal(t, uint32(1102*7%251), values[1102])

	truncated := append([]byte(nil), frame[:600]...)
	_, err = decodeBlosc(truncated)
	assert.ErrorIs(t, err, ErrCorruptData)
}

func TestShuffleRoundTrip(t *testing.T) {
	in := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}
	assert.Equal(t, []byte{1, 5, 2, 6, 3, 7, 4, 8, 9}, shuffle(in, 4))
	assert.Equal(t, in, unshuffle(shuffle(in, 4), 4))
}

func TestChunkGrid(t *testing.T) {
	assert.Equal(t, [][]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}, {2, 0}, {2, 1}}, chunkGrid([]int{5, 4}, []int{2, 2}))
	scalar := chunkGrid([]int{}, []int{})
	require.Len(t, scalar, 1)
	assert.Empty(t, scalar[0])
	assert.Nil(t, chunkGrid([]int{0, 3}, []int{1, 1}))
	assert.Equal(t, "0", chunkKey(nil, "."))
	assert.Equal(t, "1.4", chunkKey([]int{1, 4}, ""))
	assert.Equal(t, "1/4", chunkKey([]int{1, 4}, "/"))
}
