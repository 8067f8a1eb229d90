package zarr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// blosc frame layout (c-blosc 1.x)
const (
	bloscHeaderSize = 16
	bloscMaxSplits  = 16
	bloscMinBuffer  = 128

	bloscDoShuffle    = 0x01
	bloscMemcpyed     = 0x02
	bloscDoBitshuffle = 0x04
	bloscDontSplit    = 0x10
)

// inner codec formats, bits 5-7 of the flags byte
const (
	bloscFormatBloscLZ = 0
	bloscFormatLZ4     = 1
	bloscFormatSnappy  = 2
	bloscFormatZlib    = 3
	bloscFormatZstd    = 4
)

type bloscHeader struct {
	Version   uint8
	VersionLZ uint8
	Flags     uint8
	Typesize  uint8
	Nbytes    uint32
	Blocksize uint32
	Cbytes    uint32
}

func (h bloscHeader) format() int { return int(h.Flags>>5) & 0x7 }

// decodeBlosc decompresses a single blosc frame.
func decodeBlosc(src []byte) ([]byte, error) {
	if len(src) < bloscHeaderSize {
		return nil, fmt.Errorf("%w: blosc frame of %d bytes", ErrCorruptData, len(src))
	}
	h := bloscHeader{}
	if err := binary.Read(bytes.NewReader(src[:bloscHeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	if int(h.Cbytes) > len(src) {
		return nil, fmt.Errorf("%w: blosc frame truncated: %d of %d bytes", ErrCorruptData, len(src), h.Cbytes)
	}
	nbytes := int(h.Nbytes)
	if h.Flags&bloscMemcpyed != 0 {
		if bloscHeaderSize+nbytes > len(src) {
			return nil, fmt.Errorf("%w: memcpyed blosc frame truncated", ErrCorruptData)
		}
		return append([]byte(nil), src[bloscHeaderSize:bloscHeaderSize+nbytes]...), nil
	}
	if h.Flags&bloscDoBitshuffle != 0 && h.Typesize > 1 {
		return nil, fmt.Errorf("%w: blosc bitshuffle", ErrUnsupported)
	}
	if nbytes == 0 {
		return []byte{}, nil
	}
	blocksize := int(h.Blocksize)
	if blocksize <= 0 {
		return nil, fmt.Errorf("%w: blosc blocksize %d", ErrCorruptData, blocksize)
	}

	inflate, err := bloscCodec(h.format())
	if err != nil {
		return nil, err
	}

	nblocks := nbytes / blocksize
	leftover := nbytes % blocksize
	if leftover > 0 {
		nblocks++
	}
	starts := src[bloscHeaderSize:]
	if len(starts) < nblocks*4 {
		return nil, fmt.Errorf("%w: blosc block table truncated", ErrCorruptData)
	}

	typesize := int(h.Typesize)
	out := make([]byte, nbytes)
	for j := 0; j < nblocks; j++ {
		bsize := blocksize
		isLeftover := j == nblocks-1 && leftover > 0
		if isLeftover {
			bsize = leftover
		}
		start := int(binary.LittleEndian.Uint32(starts[j*4:]))
		if start >= len(src) {
			return nil, fmt.Errorf("%w: blosc block %d starts past frame end", ErrCorruptData, j)
		}

		nsplits := 1
		if h.Flags&bloscDontSplit == 0 && typesize <= bloscMaxSplits && typesize > 0 &&
			bsize/typesize >= bloscMinBuffer && !isLeftover {
			nsplits = typesize
		}
		neblock := bsize / nsplits
		block := make([]byte, 0, bsize)
		pos := start
		for s := 0; s < nsplits; s++ {
			if pos+4 > len(src) {
				return nil, fmt.Errorf("%w: blosc split header truncated", ErrCorruptData)
			}
			cbytes := int(int32(binary.LittleEndian.Uint32(src[pos:])))
			pos += 4
			if cbytes < 0 || pos+cbytes > len(src) {
				return nil, fmt.Errorf("%w: blosc split of %d bytes", ErrCorruptData, cbytes)
			}
			chunk := src[pos : pos+cbytes]
			pos += cbytes
			if cbytes == neblock {
				block = append(block, chunk...)
				continue
			}
			dec, err := inflate(chunk, neblock)
			if err != nil {
				return nil, fmt.Errorf("blosc block %d: %w", j, err)
			}
			if len(dec) != neblock {
				return nil, fmt.Errorf("%w: blosc block %d inflated to %d bytes, want %d", ErrCorruptData, j, len(dec), neblock)
			}
			block = append(block, dec...)
		}

		if h.Flags&bloscDoShuffle != 0 && typesize > 1 {
			block = unshuffle(block, typesize)
		}
		copy(out[j*blocksize:], block)
	}
	return out, nil
}

func bloscCodec(format int) (func(src []byte, size int) ([]byte, error), error) {
	switch format {
	case bloscFormatLZ4:
		return func(src []byte, size int) ([]byte, error) {
			dst := make([]byte, size)
			n, err := lz4.UncompressBlock(src, dst)
			if err != nil {
				return nil, err
			}
			return dst[:n], nil
		}, nil
	case bloscFormatSnappy:
		return func(src []byte, size int) ([]byte, error) {
			return snappy.Decode(make([]byte, size), src)
		}, nil
	case bloscFormatZlib:
		return func(src []byte, size int) ([]byte, error) {
			r, err := zlib.NewReader(bytes.NewReader(src))
			if err != nil {
				return nil, err
			}
			defer r.Close()
			return io.ReadAll(r)
		}, nil
	case bloscFormatZstd:
		return func(src []byte, size int) ([]byte, error) {
			dec, err := zstd.NewReader(nil)
			if err != nil {
				return nil, err
			}
			defer dec.Close()
			return dec.DecodeAll(src, make([]byte, 0, size))
		}, nil
	case bloscFormatBloscLZ:
		return nil, fmt.Errorf("%w: blosc inner codec blosclz", ErrUnsupported)
	}
	return nil, fmt.Errorf("%w: blosc inner codec %d", ErrUnsupported, format)
}

// unshuffle reverses the blosc byte shuffle: the input holds byte 0 of every
// element, then byte 1 of every element, and so on. Trailing bytes that do
// not fill an element are stored unshuffled.
func unshuffle(in []byte, typesize int) []byte {
	nelem := len(in) / typesize
	if nelem == 0 {
		return in
	}
	out := make([]byte, len(in))
	for i := 0; i < nelem; i++ {
		for j := 0; j < typesize; j++ {
			out[i*typesize+j] = in[j*nelem+i]
		}
	}
	copy(out[nelem*typesize:], in[nelem*typesize:])
	return out
}

// shuffle is the inverse of unshuffle.
func shuffle(in []byte, typesize int) []byte {
	nelem := len(in) / typesize
	out := make([]byte, len(in))
	for i := 0; i < nelem; i++ {
		for j := 0; j < typesize; j++ {
			out[j*nelem+i] = in[i*typesize+j]
		}
	}
	copy(out[nelem*typesize:], in[nelem*typesize:])
	return out
}

// encodeBlosc writes src as a single-block, unsplit blosc frame. Data that
// does not shrink is stored memcpyed.
func encodeBlosc(src []byte, typesize int, cname string, doShuffle bool) ([]byte, error) {
	format, deflate, err := bloscCompressor(cname)
	if err != nil {
		return nil, err
	}
	if typesize <= 0 || typesize > 255 {
		typesize = 1
	}

	h := bloscHeader{
		Version:   2,
		VersionLZ: 1,
		Flags:     uint8(format<<5) | bloscDontSplit,
		Typesize:  uint8(typesize),
		Nbytes:    uint32(len(src)),
		Blocksize: uint32(len(src)),
	}

	payload := src
	if doShuffle && typesize > 1 {
		h.Flags |= bloscDoShuffle
		payload = shuffle(src, typesize)
	}
	var packed []byte
	if len(src) > 0 {
		if packed, err = deflate(payload); err != nil {
			return nil, err
		}
	}

	buf := &bytes.Buffer{}
	if len(src) == 0 || len(packed) == 0 || len(packed)+8 >= len(src) {
		h.Flags = (h.Flags | bloscMemcpyed) &^ bloscDoShuffle
		h.Cbytes = uint32(bloscHeaderSize + len(src))
		if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
			return nil, err
		}
		buf.Write(src)
		return buf.Bytes(), nil
	}

	h.Cbytes = uint32(bloscHeaderSize + 8 + len(packed))
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	binary.Write(buf, binary.LittleEndian, uint32(bloscHeaderSize+4))
	binary.Write(buf, binary.LittleEndian, int32(len(packed)))
	buf.Write(packed)
	return buf.Bytes(), nil
}

func bloscCompressor(cname string) (int, func([]byte) ([]byte, error), error) {
	switch cname {
	case "lz4", "lz4hc", "":
		return bloscFormatLZ4, func(src []byte) ([]byte, error) {
			dst := make([]byte, lz4.CompressBlockBound(len(src)))
			n, err := lz4.CompressBlock(src, dst, nil)
			if err != nil {
				return nil, err
			}
			return dst[:n], nil
		}, nil
	case "snappy":
		return bloscFormatSnappy, func(src []byte) ([]byte, error) {
			return snappy.Encode(nil, src), nil
		}, nil
	case "zlib":
		return bloscFormatZlib, func(src []byte) ([]byte, error) {
			buf := &bytes.Buffer{}
			w := zlib.NewWriter(buf)
			if _, err := w.Write(src); err != nil {
				return nil, err
			}
			if err := w.Close(); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		}, nil
	case "zstd":
		return bloscFormatZstd, func(src []byte) ([]byte, error) {
			enc, err := zstd.NewWriter(nil)
			if err != nil {
				return nil, err
			}
			defer enc.Close()
			return enc.EncodeAll(src, nil), nil
		}, nil
	}
	return 0, nil, fmt.Errorf("%w: blosc inner codec %q", ErrUnsupported, cname)
}

// bloscWriter buffers a whole chunk and emits one frame on Close.
type bloscWriter struct {
	w        io.Writer
	buf      bytes.Buffer
	typesize int
	meta     *CompressionMeta
}

func (bw *bloscWriter) Write(p []byte) (int, error) { return bw.buf.Write(p) }

func (bw *bloscWriter) Close() error {
	frame, err := encodeBlosc(bw.buf.Bytes(), bw.typesize, bw.meta.Cname, bw.meta.Shuffle != 0)
	if err != nil {
		return err
	}
	_, err = bw.w.Write(frame)
	return err
}
