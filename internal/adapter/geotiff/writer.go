package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zlib"

	"github.com/couchcryptid/flood-inundation/internal/domain"
	"github.com/couchcryptid/flood-inundation/internal/raster"
)

// stripBytes is the target uncompressed size of one strip.
const stripBytes = 64 << 10

type field struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// Write stores g as a deflate-compressed float32 GeoTIFF. The file is
// written to a temporary name next to path and renamed into place, so a
// failed write never leaves a partial raster behind.
func Write(path string, g *raster.Grid, meta raster.Metadata) error {
	buf, err := Encode(g, meta)
	if err != nil {
		return err
	}
	return writeAtomic(path, buf)
}

// Encode renders g as GeoTIFF bytes.
func Encode(g *raster.Grid, meta raster.Metadata) ([]byte, error) {
	if g.Width <= 0 || g.Height <= 0 || len(g.Data) != g.Cells() {
		return nil, fmt.Errorf("%w: geotiff: invalid grid %dx%d with %d cells", domain.ErrIO, g.Width, g.Height, len(g.Data))
	}
	le := binary.LittleEndian
	rowsPerStrip := max(1, stripBytes/(4*g.Width))
	rowsPerStrip = min(rowsPerStrip, g.Height)

	var body bytes.Buffer
	body.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})
	var offsets, counts []uint32
	raw := make([]byte, 4*g.Width*rowsPerStrip)
	for y0 := 0; y0 < g.Height; y0 += rowsPerStrip {
		rows := min(rowsPerStrip, g.Height-y0)
		chunk := raw[:4*g.Width*rows]
		for i, v := range g.Data[y0*g.Width : (y0+rows)*g.Width] {
			le.PutUint32(chunk[4*i:], math.Float32bits(v))
		}
		var z bytes.Buffer
		zw, err := zlib.NewWriterLevel(&z, zlib.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("%w: geotiff: %w", domain.ErrIO, err)
		}
		if _, err := zw.Write(chunk); err != nil {
			return nil, fmt.Errorf("%w: geotiff: %w", domain.ErrIO, err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("%w: geotiff: %w", domain.ErrIO, err)
		}
		offsets = append(offsets, uint32(body.Len()))
		counts = append(counts, uint32(z.Len()))
		body.Write(z.Bytes())
		if body.Len()%2 == 1 {
			body.WriteByte(0)
		}
	}

	fields := []field{
		longs(tagImageWidth, uint32(g.Width)),
		longs(tagImageLength, uint32(g.Height)),
		shorts(tagBitsPerSample, 32),
		shorts(tagCompression, compressionDeflate),
		shorts(tagPhotometric, 1),
		longs(tagStripOffsets, offsets...),
		shorts(tagSamplesPerPixel, 1),
		longs(tagRowsPerStrip, uint32(rowsPerStrip)),
		longs(tagStripByteCounts, counts...),
		shorts(tagPlanarConfig, 1),
		shorts(tagSampleFormat, sampleFloat),
		ascii(tagGDALNoData, "nan"),
	}
	fields = append(fields, georeference(g.Transform)...)
	fields = append(fields, geoKeyDirectory(meta.EPSG))
	sort.Slice(fields, func(i, j int) bool { return fields[i].tag < fields[j].tag })

	ifd := uint32(body.Len())
	le.PutUint32(body.Bytes()[4:8], ifd)
	extra := ifd + 2 + 12*uint32(len(fields)) + 4
	var dir, ext bytes.Buffer
	var n [2]byte
	le.PutUint16(n[:], uint16(len(fields)))
	dir.Write(n[:])
	for _, f := range fields {
		var e [12]byte
		le.PutUint16(e[0:], f.tag)
		le.PutUint16(e[2:], f.typ)
		le.PutUint32(e[4:], f.count)
		if len(f.data) <= 4 {
			copy(e[8:], f.data)
		} else {
			le.PutUint32(e[8:], extra+uint32(ext.Len()))
			ext.Write(f.data)
			if ext.Len()%2 == 1 {
				ext.WriteByte(0)
			}
		}
		dir.Write(e[:])
	}
	dir.Write([]byte{0, 0, 0, 0})
	body.Write(dir.Bytes())
	body.Write(ext.Bytes())
	return body.Bytes(), nil
}

func shorts(tag uint16, vs ...uint16) field {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return field{tag: tag, typ: dtShort, count: uint32(len(vs)), data: b}
}

func longs(tag uint16, vs ...uint32) field {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return field{tag: tag, typ: dtLong, count: uint32(len(vs)), data: b}
}

func doubles(tag uint16, vs ...float64) field {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return field{tag: tag, typ: dtDouble, count: uint32(len(vs)), data: b}
}

func ascii(tag uint16, s string) field {
	b := append([]byte(s), 0)
	return field{tag: tag, typ: dtASCII, count: uint32(len(b)), data: b}
}

// georeference uses tiepoint and pixel scale for north-up grids and the full
// transformation matrix otherwise.
func georeference(a raster.Affine) []field {
	if a.B == 0 && a.D == 0 && a.A > 0 && a.E < 0 {
		return []field{
			doubles(tagModelPixelScale, a.A, -a.E, 0),
			doubles(tagModelTiepoint, 0, 0, 0, a.C, a.F, 0),
		}
	}
	return []field{doubles(tagModelTransform,
		a.A, a.B, 0, a.C,
		a.D, a.E, 0, a.F,
		0, 0, 0, 0,
		0, 0, 0, 1,
	)}
}

func geoKeyDirectory(epsg int) field {
	keys := [][4]uint16{{keyRasterType, 0, 1, rasterPixelIsArea}}
	switch {
	case epsg <= 0 || epsg >= math.MaxUint16:
	case isGeographic(epsg):
		keys = append(keys, [4]uint16{keyModelType, 0, 1, modelTypeGeographic}, [4]uint16{keyGeographicType, 0, 1, uint16(epsg)})
	default:
		keys = append(keys, [4]uint16{keyModelType, 0, 1, modelTypeProjected}, [4]uint16{keyProjectedType, 0, 1, uint16(epsg)})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i][0] < keys[j][0] })
	vs := []uint16{1, 1, 0, uint16(len(keys))}
	for _, k := range keys {
		vs = append(vs, k[:]...)
	}
	return shorts(tagGeoKeyDirectory, vs...)
}

// isGeographic reports whether an EPSG code names a geographic 2D CRS.
func isGeographic(epsg int) bool {
	return epsg >= 4000 && epsg < 5000
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", domain.ErrIO, path, err)
	}
	name := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("%w: write %s: %w", domain.ErrIO, path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("%w: write %s: %w", domain.ErrIO, path, err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("%w: write %s: %w", domain.ErrIO, path, err)
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("%w: rename %s: %w", domain.ErrIO, path, err)
	}
	return nil
}
