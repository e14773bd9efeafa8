package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/spf13/cast"
	"golang.org/x/image/tiff/lzw"

	"github.com/couchcryptid/flood-inundation/internal/domain"
	"github.com/couchcryptid/flood-inundation/internal/raster"
)

type entry struct {
	typ   uint16
	count uint32
	raw   []byte
}

type decoder struct {
	buf  []byte
	bo   binary.ByteOrder
	tags map[uint16]entry
}

// Read loads the first band of a GeoTIFF file.
func Read(path string) (*raster.Grid, raster.Metadata, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, raster.Metadata{}, fmt.Errorf("%w: read %s: %w", domain.ErrIO, path, err)
	}
	g, meta, err := Decode(buf)
	if err != nil {
		return nil, raster.Metadata{}, fmt.Errorf("%s: %w", path, err)
	}
	return g, meta, nil
}

// Decode parses an in-memory GeoTIFF.
func Decode(buf []byte) (*raster.Grid, raster.Metadata, error) {
	d, err := newDecoder(buf)
	if err != nil {
		return nil, raster.Metadata{}, err
	}
	spec, err := d.spec()
	if err != nil {
		return nil, raster.Metadata{}, err
	}
	g, err := d.pixels(spec)
	if err != nil {
		return nil, raster.Metadata{}, err
	}
	return g, d.metadata(), nil
}

func ioErr(format string, args ...any) error {
	return fmt.Errorf("%w: geotiff: %s", domain.ErrIO, fmt.Sprintf(format, args...))
}

func newDecoder(buf []byte) (*decoder, error) {
	if len(buf) < 8 {
		return nil, ioErr("file too short")
	}
	d := &decoder{buf: buf, tags: make(map[uint16]entry)}
	switch string(buf[:2]) {
	case "II":
		d.bo = binary.LittleEndian
	case "MM":
		d.bo = binary.BigEndian
	default:
		return nil, ioErr("not a TIFF file")
	}
	switch d.bo.Uint16(buf[2:4]) {
	case 42:
	case 43:
		return nil, ioErr("BigTIFF is not supported")
	default:
		return nil, ioErr("bad TIFF magic")
	}

	off := int64(d.bo.Uint32(buf[4:8]))
	if off+2 > int64(len(buf)) {
		return nil, ioErr("IFD offset out of range")
	}
	n := int64(d.bo.Uint16(buf[off:]))
	if off+2+n*12 > int64(len(buf)) {
		return nil, ioErr("IFD truncated")
	}
	for i := range n {
		p := buf[off+2+i*12:]
		tag := d.bo.Uint16(p[0:2])
		typ := d.bo.Uint16(p[2:4])
		count := d.bo.Uint32(p[4:8])
		size, ok := typeSize[typ]
		if !ok {
			continue
		}
		total := int64(size) * int64(count)
		var raw []byte
		if total <= 4 {
			raw = p[8 : 8+total]
		} else {
			vo := int64(d.bo.Uint32(p[8:12]))
			if vo+total > int64(len(buf)) {
				return nil, ioErr("tag %d data out of range", tag)
			}
			raw = buf[vo : vo+total]
		}
		d.tags[tag] = entry{typ: typ, count: count, raw: raw}
	}
	return d, nil
}

// uints returns integer tag values.
func (d *decoder) uints(tag uint16) []uint64 {
	e, ok := d.tags[tag]
	if !ok {
		return nil
	}
	out := make([]uint64, e.count)
	for i := range out {
		switch e.typ {
		case dtByte, dtUndefined:
			out[i] = uint64(e.raw[i])
		case dtShort:
			out[i] = uint64(d.bo.Uint16(e.raw[2*i:]))
		case dtLong:
			out[i] = uint64(d.bo.Uint32(e.raw[4*i:]))
		default:
			return nil
		}
	}
	return out
}

func (d *decoder) uint(tag uint16, def uint64) uint64 {
	if v := d.uints(tag); len(v) > 0 {
		return v[0]
	}
	return def
}

func (d *decoder) doubles(tag uint16) []float64 {
	e, ok := d.tags[tag]
	if !ok {
		return nil
	}
	out := make([]float64, e.count)
	for i := range out {
		switch e.typ {
		case dtDouble:
			out[i] = math.Float64frombits(d.bo.Uint64(e.raw[8*i:]))
		case dtFloat:
			out[i] = float64(math.Float32frombits(d.bo.Uint32(e.raw[4*i:])))
		default:
			return nil
		}
	}
	return out
}

func (d *decoder) ascii(tag uint16) (string, bool) {
	e, ok := d.tags[tag]
	if !ok || e.typ != dtASCII {
		return "", false
	}
	return strings.TrimRight(string(e.raw), "\x00 "), true
}

// geoKeys returns the short-valued keys of the GeoKey directory.
func (d *decoder) geoKeys() map[uint64]uint64 {
	dir := d.uints(tagGeoKeyDirectory)
	keys := make(map[uint64]uint64)
	if len(dir) < 4 {
		return keys
	}
	n := int(dir[3])
	for i := range n {
		k := dir[4+4*i:]
		if len(k) < 4 {
			break
		}
		if k[1] == 0 && k[2] == 1 {
			keys[k[0]] = k[3]
		}
	}
	return keys
}

func (d *decoder) spec() (raster.Spec, error) {
	w := int(d.uint(tagImageWidth, 0))
	h := int(d.uint(tagImageLength, 0))
	if w <= 0 || h <= 0 {
		return raster.Spec{}, ioErr("missing image dimensions")
	}
	var tr raster.Affine
	if m := d.doubles(tagModelTransform); len(m) >= 8 {
		tr = raster.Affine{A: m[0], B: m[1], C: m[3], D: m[4], E: m[5], F: m[7]}
	} else {
		scale := d.doubles(tagModelPixelScale)
		tie := d.doubles(tagModelTiepoint)
		if len(scale) < 2 || len(tie) < 6 {
			return raster.Spec{}, ioErr("missing georeference tags")
		}
		tr = raster.Affine{
			A: scale[0], C: tie[3] - tie[0]*scale[0],
			E: -scale[1], F: tie[4] + tie[1]*scale[1],
		}
	}
	if d.geoKeys()[keyRasterType] == rasterPixelIsPoint {
		// Point georeference names the cell centre; move to the corner.
		tr.C, tr.F = tr.Apply(-0.5, -0.5)
	}
	return raster.Spec{Width: w, Height: h, Transform: tr}, nil
}

func (d *decoder) metadata() raster.Metadata {
	var meta raster.Metadata
	keys := d.geoKeys()
	if v, ok := keys[keyProjectedType]; ok && v > 0 && v < 32767 {
		meta.EPSG = int(v)
	} else if v, ok := keys[keyGeographicType]; ok && v > 0 && v < 32767 {
		meta.EPSG = int(v)
	}
	if s, ok := d.ascii(tagGDALNoData); ok && s != "" {
		if v, err := cast.ToFloat64E(s); err == nil {
			meta.NoData, meta.HasNoData = v, true
		}
	}
	return meta
}

// layout describes how samples are chunked.
type layout struct {
	chunkW, chunkH int
	offsets        []uint64
	counts         []uint64
	tiled          bool
}

func (d *decoder) layout(spec raster.Spec) (layout, error) {
	if tw := int(d.uint(tagTileWidth, 0)); tw > 0 {
		th := int(d.uint(tagTileLength, 0))
		if th <= 0 {
			return layout{}, ioErr("tile length missing")
		}
		return layout{chunkW: tw, chunkH: th, offsets: d.uints(tagTileOffsets), counts: d.uints(tagTileByteCounts), tiled: true}, nil
	}
	rps := int(d.uint(tagRowsPerStrip, uint64(spec.Height)))
	if rps <= 0 || rps > spec.Height {
		rps = spec.Height
	}
	return layout{chunkW: spec.Width, chunkH: rps, offsets: d.uints(tagStripOffsets), counts: d.uints(tagStripByteCounts)}, nil
}

func (d *decoder) pixels(spec raster.Spec) (*raster.Grid, error) {
	if d.uint(tagPlanarConfig, 1) != 1 && d.uint(tagSamplesPerPixel, 1) > 1 {
		return nil, ioErr("planar configuration 2 is not supported")
	}
	spp := int(d.uint(tagSamplesPerPixel, 1))
	bits := int(d.uint(tagBitsPerSample, 8))
	format := int(d.uint(tagSampleFormat, sampleUint))
	predictor := int(d.uint(tagPredictor, predictorNone))
	compression := int(d.uint(tagCompression, compressionNone))
	bps := bits / 8
	if bits%8 != 0 || bps == 0 || !supportedSample(format, bits) {
		return nil, ioErr("unsupported sample format %d with %d bits", format, bits)
	}

	lay, err := d.layout(spec)
	if err != nil {
		return nil, err
	}
	across := (spec.Width + lay.chunkW - 1) / lay.chunkW
	down := (spec.Height + lay.chunkH - 1) / lay.chunkH
	if len(lay.offsets) < across*down || len(lay.counts) < across*down {
		return nil, ioErr("expected %d chunks, found %d", across*down, len(lay.offsets))
	}

	g := raster.New(spec)
	for cy := range down {
		for cx := range across {
			k := cy*across + cx
			start, n := lay.offsets[k], lay.counts[k]
			if start+n > uint64(len(d.buf)) {
				return nil, ioErr("chunk %d out of range", k)
			}
			rows := lay.chunkH
			if !lay.tiled {
				rows = min(lay.chunkH, spec.Height-cy*lay.chunkH)
			}
			rowBytes := lay.chunkW * spp * bps
			data, err := decompress(d.buf[start:start+n], compression, rowBytes*rows)
			if err != nil {
				return nil, err
			}
			if len(data) < rowBytes*rows {
				return nil, ioErr("chunk %d holds %d bytes, want %d", k, len(data), rowBytes*rows)
			}
			bo := d.bo
			switch predictor {
			case predictorNone:
			case predictorHorizontal:
				undoHorizontal(data, rows, lay.chunkW, spp, bps, bo)
			case predictorFloat:
				data = undoFloat(data, rows, lay.chunkW*spp, bps)
				bo = binary.BigEndian
			default:
				return nil, ioErr("unsupported predictor %d", predictor)
			}
			for r := range rows {
				y := cy*lay.chunkH + r
				if y >= spec.Height {
					break
				}
				for c := range lay.chunkW {
					x := cx*lay.chunkW + c
					if x >= spec.Width {
						break
					}
					off := (r*lay.chunkW + c) * spp * bps
					g.Set(x, y, float32(sample(data[off:off+bps], format, bits, bo)))
				}
			}
		}
	}
	return g, nil
}

func supportedSample(format, bits int) bool {
	switch format {
	case sampleFloat:
		return bits == 32 || bits == 64
	case sampleUint, sampleInt:
		return bits == 8 || bits == 16 || bits == 32
	}
	return false
}

func sample(b []byte, format, bits int, bo binary.ByteOrder) float64 {
	switch {
	case format == sampleFloat && bits == 32:
		return float64(math.Float32frombits(bo.Uint32(b)))
	case format == sampleFloat && bits == 64:
		return math.Float64frombits(bo.Uint64(b))
	case format == sampleInt && bits == 8:
		return float64(int8(b[0]))
	case format == sampleInt && bits == 16:
		return float64(int16(bo.Uint16(b)))
	case format == sampleInt && bits == 32:
		return float64(int32(bo.Uint32(b)))
	case bits == 8:
		return float64(b[0])
	case bits == 16:
		return float64(bo.Uint16(b))
	default:
		return float64(bo.Uint32(b))
	}
}

func decompress(src []byte, compression, want int) ([]byte, error) {
	var r io.ReadCloser
	switch compression {
	case compressionNone:
		return append([]byte(nil), src...), nil
	case compressionLZW:
		r = lzw.NewReader(bytes.NewReader(src), lzw.MSB, 8)
	case compressionDeflate, compressionDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, ioErr("deflate: %v", err)
		}
		r = zr
	default:
		return nil, ioErr("unsupported compression %d", compression)
	}
	defer r.Close()
	out := make([]byte, 0, want)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil && buf.Len() < want {
		return nil, ioErr("decompress: %v", err)
	}
	return buf.Bytes(), nil
}

// undoHorizontal reverses integer horizontal differencing in place.
func undoHorizontal(data []byte, rows, width, spp, bps int, bo binary.ByteOrder) {
	stride := width * spp * bps
	for r := range rows {
		row := data[r*stride : (r+1)*stride]
		for i := spp; i < width*spp; i++ {
			cur, prev := row[i*bps:], row[(i-spp)*bps:]
			switch bps {
			case 1:
				cur[0] += prev[0]
			case 2:
				bo.PutUint16(cur, bo.Uint16(cur)+bo.Uint16(prev))
			case 4:
				bo.PutUint32(cur, bo.Uint32(cur)+bo.Uint32(prev))
			}
		}
	}
}

// undoFloat reverses the floating point predictor. Each row stores byte
// differences of the sample bytes split into planes, most significant plane
// first, so the result is big-endian regardless of the file byte order.
func undoFloat(data []byte, rows, samples, bps int) []byte {
	stride := samples * bps
	out := make([]byte, rows*stride)
	for r := range rows {
		row := data[r*stride : (r+1)*stride]
		for i := 1; i < stride; i++ {
			row[i] += row[i-1]
		}
		dst := out[r*stride : (r+1)*stride]
		for s := range samples {
			for b := range bps {
				dst[s*bps+b] = row[b*samples+s]
			}
		}
	}
	return out
}
