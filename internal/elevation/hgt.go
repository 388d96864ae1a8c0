// Package elevation resolves terrain height from SRTM HGT tiles. Tiles and
// recent lookups are cached so the hot path almost never touches disk.
package elevation

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Decompressed tile sizes for the two SRTM resolutions.
const (
	hgtBytes1ArcSec = 25934402 // 3601 x 3601 x 2
	hgtBytes3ArcSec = 2884802  // 1201 x 1201 x 2
)

// Tile is one 1x1 degree HGT elevation tile. Samples are big-endian int16
// meters, stored north to south.
type Tile struct {
	buffer []byte
	swLat  float64
	swLng  float64
	size   int
}

// NewTile validates a decompressed HGT buffer and wraps it.
func NewTile(buffer []byte, swLat, swLng float64) (*Tile, error) {
	var size int
	switch len(buffer) {
	case hgtBytes1ArcSec:
		size = 3601
	case hgtBytes3ArcSec:
		size = 1201
	default:
		return nil, fmt.Errorf("unknown hgt tile format: %d bytes", len(buffer))
	}
	return &Tile{buffer: buffer, swLat: swLat, swLng: swLng, size: size}, nil
}

// LoadTile reads and decompresses a gzipped HGT file.
func LoadTile(path string, swLat, swLng float64) (*Tile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open hgt file %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
	}
	defer gz.Close()

	buffer, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress hgt file %s: %w", path, err)
	}
	return NewTile(buffer, swLat, swLng)
}

// ElevationAt returns the bilinearly interpolated elevation in meters at a
// coordinate inside the tile.
func (t *Tile) ElevationAt(lat, lng float64) (int16, error) {
	span := float64(t.size - 1)
	row := (lat - t.swLat) * span
	col := (lng - t.swLng) * span

	if row < 0 || col < 0 || row > span || col > span {
		return 0, fmt.Errorf("coordinate (%f, %f) outside tile sw (%f, %f)",
			lat, lng, t.swLat, t.swLng)
	}
	return t.interpolate(row, col)
}

func (t *Tile) interpolate(row, col float64) (int16, error) {
	rowLow := int(row)
	colLow := int(col)
	rowFrac := row - float64(rowLow)
	colFrac := col - float64(colLow)

	lowLow, err := t.sample(rowLow, colLow)
	if err != nil {
		return 0, err
	}
	lowHigh, err := t.sample(rowLow, colLow+1)
	if err != nil {
		return 0, err
	}
	highLow, err := t.sample(rowLow+1, colLow)
	if err != nil {
		return 0, err
	}
	highHigh, err := t.sample(rowLow+1, colLow+1)
	if err != nil {
		return 0, err
	}

	low := float64(lowLow)*(1-colFrac) + float64(lowHigh)*colFrac
	high := float64(highLow)*(1-colFrac) + float64(highHigh)*colFrac
	return int16(low*(1-rowFrac) + high*rowFrac), nil
}

// sample reads one raw elevation point. Rows are stored north first, so the
// row index is flipped.
func (t *Tile) sample(row, col int) (int16, error) {
	offset := ((t.size-row-1)*t.size + col) * 2
	if offset < 0 || offset+1 >= len(t.buffer) {
		return 0, fmt.Errorf("offset %d outside tile buffer (%d bytes)", offset, len(t.buffer))
	}
	return int16(binary.BigEndian.Uint16(t.buffer[offset:])), nil
}
