package zarr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// Version is the zarr storage specification version this package reads.
	Version = 2
)

var (
	ErrNotArray    = errors.New("not a zarr array")
	ErrNotGroup    = errors.New("not a zarr group")
	ErrUnsupported = errors.New("unsupported zarr feature")
	ErrReadOnly    = errors.New("array opened read-only")
	ErrCorruptData = errors.New("corrupt chunk data")
)

type Array struct {
	path  Path
	store Store
	mode  PersistenceMode
	meta  *ArrayMeta
	attrs Attributes
}

// Create writes array metadata (and attrs, when non-empty) under path and
// returns the array opened for writing. Existing keys are overwritten.
func Create(store Store, path string, m *ArrayMeta, attrs Attributes) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	if m.ZarrFormat == 0 {
		m.ZarrFormat = Version
	}
	if m.Order == "" {
		m.Order = "C"
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	if err := putJSON(store, p.Join(string(MTArray)).String(), m); err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := WriteAttributes(store, p.String(), attrs); err != nil {
			return nil, err
		}
	}
	return &Array{path: p, store: store, mode: ModeWrite, meta: m, attrs: attrs}, nil
}

// Open reads the array metadata stored at path. The ".zattrs" key is
// optional.
func Open(store Store, path string, mode PersistenceMode) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}

	a := &Array{
		path:  p,
		store: store,
		mode:  mode,
		meta:  &ArrayMeta{},
	}

	if err := getJSON(store, p.Join(string(MTArray)).String(), a.meta); err != nil {
		if errors.Is(err, ErrNotfound) {
			return nil, fmt.Errorf("%w: %q", ErrNotArray, p.String())
		}
		return nil, fmt.Errorf("reading %q array metadata: %w", p.String(), err)
	}
	if err := a.meta.validate(); err != nil {
		return nil, fmt.Errorf("array %q: %w", p.String(), err)
	}

	if a.attrs, err = ReadAttributes(store, p.String()); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *Array) Info() string {
	return fmt.Sprintf("<zarr.Array %q shape=%v chunks=%v dtype=%s order=%s>",
		a.Path(), a.meta.Shape, a.meta.Chunks, a.meta.Dtype.Dtype, a.meta.Order)
}

func (a *Array) Path() string {
	return a.path.String()
}

// Name is the last element of the array path.
func (a *Array) Name() string {
	if len(a.path) == 0 {
		return ""
	}
	return a.path[len(a.path)-1]
}

func (a *Array) Meta() *ArrayMeta { return a.meta }

func (a *Array) Attrs() Attributes { return a.attrs }

func (a *Array) Shape() []int { return append([]int(nil), a.meta.Shape...) }

// ReadAll decodes the entire array into a flat Go slice in C (row-major)
// order. The slice element type follows the array dtype, see Dtype.GoType.
func (a *Array) ReadAll() (interface{}, error) {
	if len(a.meta.Filters) > 0 {
		return nil, fmt.Errorf("%w: filters on %q", ErrUnsupported, a.Path())
	}
	dt := a.meta.Dtype.Dtype
	itemSize := dt.ItemSize()
	n := numElements(a.meta.Shape)

	fill, err := a.meta.fillBytes()
	if err != nil {
		return nil, fmt.Errorf("array %q: %w", a.Path(), err)
	}
	out := bytes.Repeat(fill, n)

	chunkLen := numElements(a.meta.Chunks) * itemSize
	fOrder := a.meta.Order == "F"
	for _, coords := range chunkGrid(a.meta.Shape, a.meta.Chunks) {
		data, err := a.readChunk(coords)
		if errors.Is(err, ErrNotfound) {
			// uninitialized chunks hold the fill value
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(data) != chunkLen {
			return nil, fmt.Errorf("%w: chunk %s of %q has %d bytes, want %d",
				ErrCorruptData, a.chunkKey(coords), a.Path(), len(data), chunkLen)
		}
		walkChunk(a.meta.Shape, a.meta.Chunks, coords, itemSize, fOrder, func(arrOff, chunkOff, size int) {
			copy(out[arrOff:arrOff+size], data[chunkOff:chunkOff+size])
		})
	}

	return decodeValues(out, dt, n)
}

// WriteAll encodes data, a flat C-ordered slice matching the array dtype and
// shape, and stores it chunk by chunk.
func (a *Array) WriteAll(data interface{}) error {
	if a.mode == ModeRead {
		return fmt.Errorf("%w: %q", ErrReadOnly, a.Path())
	}
	if a.meta.Order == "F" {
		return fmt.Errorf("%w: writing F-ordered arrays", ErrUnsupported)
	}
	if len(a.meta.Filters) > 0 {
		return fmt.Errorf("%w: filters on %q", ErrUnsupported, a.Path())
	}

	dt := a.meta.Dtype.Dtype
	n := numElements(a.meta.Shape)
	raw, err := encodeValues(data, dt, n)
	if err != nil {
		return fmt.Errorf("array %q: %w", a.Path(), err)
	}

	fill, err := a.meta.fillBytes()
	if err != nil {
		return err
	}
	itemSize := dt.ItemSize()
	chunkElems := numElements(a.meta.Chunks)
	for _, coords := range chunkGrid(a.meta.Shape, a.meta.Chunks) {
		buf := bytes.Repeat(fill, chunkElems)
		walkChunk(a.meta.Shape, a.meta.Chunks, coords, itemSize, false, func(arrOff, chunkOff, size int) {
			copy(buf[chunkOff:chunkOff+size], raw[arrOff:arrOff+size])
		})
		if err := a.writeChunk(coords, buf); err != nil {
			return err
		}
	}
	return nil
}

func (a *Array) readChunk(coords []int) ([]byte, error) {
	f, err := a.store.Get(a.chunkPath(coords).String())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := a.meta.Compressor.Decompressor(f)
	if err != nil {
		return nil, fmt.Errorf("chunk %s of %q: %w", a.chunkKey(coords), a.Path(), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("chunk %s of %q: %w", a.chunkKey(coords), a.Path(), err)
	}
	return data, nil
}

func (a *Array) writeChunk(coords []int, data []byte) error {
	buf := &bytes.Buffer{}
	w, err := a.meta.Compressor.Compressor(buf, a.meta.Dtype.Dtype.ItemSize())
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return a.store.Put(a.chunkPath(coords).String(), buf)
}

func (a *Array) chunkKey(coords []int) string {
	return chunkKey(coords, a.meta.DimensionSeparator)
}

func (a *Array) chunkPath(coords []int) Path {
	return a.path.Join(a.chunkKey(coords))
}

type PersistenceMode string

const (
	// Persistence mode:
	// ‘r’ means read only (must exist);
	ModeRead PersistenceMode = "r"
	//‘r+’ means read/write (must exist)
	ModeReadWrite PersistenceMode = "r+"
	// ‘a’ means read/write (create if doesn’t exist)
	ModeReadWriteCreate PersistenceMode = "a"
	// ‘w’ means create (overwrite if exists)
	ModeWrite PersistenceMode = "w"
	// ‘w-’ means create (fail if exists).
	ModeWriteFail PersistenceMode = "w-"
)

// Arrays can be organized into groups which can also contain other groups.
// A group is created by storing group ArrayMeta under the “.zgroup” key under
// some logical path. E.g., a group exists at the root of an array store if the
// “.zgroup” key exists in the store, and a group exists at logical path
// “foo/bar” if the “foo/bar/.zgroup” key exists in the store.
type Group struct {
	ZarrFormat int `json:"zarr_format"`
}

func (Group) MetaType() MetaType { return MTGroup }

// OpenGroup reads the group metadata at path.
func OpenGroup(store Store, path string) (*Group, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	g := &Group{}
	if err := getJSON(store, p.Join(string(MTGroup)).String(), g); err != nil {
		if errors.Is(err, ErrNotfound) {
			return nil, fmt.Errorf("%w: %q", ErrNotGroup, p.String())
		}
		return nil, fmt.Errorf("reading %q group metadata: %w", p.String(), err)
	}
	if g.ZarrFormat != Version {
		return nil, fmt.Errorf("%w: zarr_format %d", ErrUnsupported, g.ZarrFormat)
	}
	return g, nil
}

// CreateGroup writes group metadata at path.
func CreateGroup(store Store, path string) (*Group, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	g := &Group{ZarrFormat: Version}
	return g, putJSON(store, p.Join(string(MTGroup)).String(), g)
}

// ReadAttributes returns the ".zattrs" document at path, or empty attributes
// when the key is absent.
func ReadAttributes(store Store, path string) (Attributes, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	attrs := Attributes{}
	if err := getJSON(store, p.Join(string(MTAttributes)).String(), &attrs); err != nil {
		if errors.Is(err, ErrNotfound) {
			return Attributes{}, nil
		}
		return nil, fmt.Errorf("reading %q attributes: %w", p.String(), err)
	}
	return attrs, nil
}

func WriteAttributes(store Store, path string, attrs Attributes) error {
	p, err := NewPath(path)
	if err != nil {
		return err
	}
	return putJSON(store, p.Join(string(MTAttributes)).String(), attrs)
}

func getJSON(store Store, key string, v interface{}) error {
	f, err := store.Get(key)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}

func putJSON(store Store, key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return store.Put(key, bytes.NewReader(data))
}

type Path []string

// NewPath normalizes a logical path so keys are consistent across storage
// systems: backslashes become "/", leading and trailing "/" are stripped and
// runs of "/" collapse to one. The root path is empty.
func NewPath(posix string) (Path, error) {
	key := normalizeKey(posix)
	if key == "" {
		return Path{}, nil
	}
	p := strings.Split(key, "/")
	for _, el := range p {
		if el == "." || el == ".." {
			return nil, fmt.Errorf("invalid path segment %q in %q", el, posix)
		}
	}
	return p, nil
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

func (p Path) Shift() (head string, ch Path) {
	switch len(p) {
	case 0:
		return "", nil
	case 1:
		return p[0], nil
	default:
		return p[0], p[1:]
	}
}

// Join returns a new path; p is never modified.
func (p Path) Join(elems ...string) Path {
	out := make(Path, 0, len(p)+len(elems))
	out = append(out, p...)
	for _, el := range elems {
		if el != "" {
			out = append(out, strings.Split(el, "/")...)
		}
	}
	return out
}

func normalizeKey(s string) string {
	s = strings.ReplaceAll(s, "\\", "/")
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}
	return strings.Trim(s, "/")
}
