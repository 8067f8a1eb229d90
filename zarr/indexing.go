package zarr

import (
	"strconv"
	"strings"
)

// chunkGrid lists the coordinates of every chunk covering shape, in C order.
// A 0-d array has a single chunk with empty coordinates.
func chunkGrid(shape, chunks []int) [][]int {
	counts := make([]int, len(shape))
	for i := range shape {
		if shape[i] == 0 {
			return nil
		}
		counts[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}

	grid := [][]int{}
	coords := make([]int, len(shape))
	for {
		grid = append(grid, append([]int(nil), coords...))
		d := len(coords) - 1
		for ; d >= 0; d-- {
			coords[d]++
			if coords[d] < counts[d] {
				break
			}
			coords[d] = 0
		}
		if d < 0 {
			return grid
		}
	}
}

// chunkKey renders chunk coordinates as a store key, "0" for 0-d arrays.
func chunkKey(coords []int, sep string) string {
	if len(coords) == 0 {
		return "0"
	}
	if sep == "" {
		sep = "."
	}
	var sb strings.Builder
	for i, c := range coords {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(strconv.Itoa(c))
	}
	return sb.String()
}

// A mapping of items from chunk to output array. Can be used to extract items
// from the chunk array for loading into an output array. Can also be used to
// extract items from a value array for setting/updating in a chunk array.
type chunkProjection struct {
	// Indices of chunk
	ChunkCoords []int
	// First array index covered by the chunk, per dimension.
	Origin []int
	// Extent of the chunk inside the array; edge chunks are clipped.
	Extent []int
	// Byte strides of the array (C order) and of the chunk (C or F order).
	ArrayStrides []int
	ChunkStrides []int
}

func newChunkProjection(shape, chunks, coords []int, itemSize int, fOrder bool) chunkProjection {
	nd := len(shape)
	p := chunkProjection{
		ChunkCoords:  coords,
		Origin:       make([]int, nd),
		Extent:       make([]int, nd),
		ArrayStrides: make([]int, nd),
		ChunkStrides: make([]int, nd),
	}
	for d := 0; d < nd; d++ {
		p.Origin[d] = coords[d] * chunks[d]
		p.Extent[d] = chunks[d]
		if p.Origin[d]+p.Extent[d] > shape[d] {
			p.Extent[d] = shape[d] - p.Origin[d]
		}
	}
	stride := itemSize
	for d := nd - 1; d >= 0; d-- {
		p.ArrayStrides[d] = stride
		stride *= shape[d]
	}
	stride = itemSize
	if fOrder {
		for d := 0; d < nd; d++ {
			p.ChunkStrides[d] = stride
			stride *= chunks[d]
		}
	} else {
		for d := nd - 1; d >= 0; d-- {
			p.ChunkStrides[d] = stride
			stride *= chunks[d]
		}
	}
	return p
}

// walkChunk calls fn for every contiguous run of bytes shared by the array
// buffer and the chunk buffer at coords. C-ordered chunks yield one run per
// innermost row; F-ordered chunks yield one run per element.
func walkChunk(shape, chunks, coords []int, itemSize int, fOrder bool, fn func(arrOff, chunkOff, size int)) {
	if len(shape) == 0 {
		fn(0, 0, itemSize)
		return
	}
	p := newChunkProjection(shape, chunks, coords, itemSize, fOrder)
	p.walk(0, 0, 0, fOrder, fn)
}

func (p chunkProjection) walk(dim, arrOff, chunkOff int, fOrder bool, fn func(arrOff, chunkOff, size int)) {
	last := len(p.Extent) - 1
	if dim == last && !fOrder {
		start := arrOff + p.Origin[dim]*p.ArrayStrides[dim]
		fn(start, chunkOff, p.Extent[dim]*p.ArrayStrides[dim])
		return
	}
	for i := 0; i < p.Extent[dim]; i++ {
		a := arrOff + (p.Origin[dim]+i)*p.ArrayStrides[dim]
		c := chunkOff + i*p.ChunkStrides[dim]
		if dim == last {
			fn(a, c, p.ArrayStrides[dim])
			continue
		}
		p.walk(dim+1, a, c, fOrder, fn)
	}
}

func numElements(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
