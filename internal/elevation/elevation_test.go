package elevation

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ognpipe/ognpipe/internal/metrics"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

func TestNewTileResolutions(t *testing.T) {
	tile, err := NewTile(make([]byte, 25934402), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3601, tile.size)

	tile, err = NewTile(make([]byte, 2884802), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1201, tile.size)

	_, err = NewTile(make([]byte, 100), 0, 0)
	assert.Error(t, err)
}

// flatTileBuffer builds a 3-arcsecond tile where every sample reads the
// given elevation.
func flatTileBuffer(meters int16) []byte {
	buf := make([]byte, 2884802)
	for i := 0; i+1 < len(buf); i += 2 {
		binary.BigEndian.PutUint16(buf[i:], uint16(meters))
	}
	return buf
}

func TestTileElevationInterpolation(t *testing.T) {
	tile, err := NewTile(flatTileBuffer(560), 46, 7)
	require.NoError(t, err)

	meters, err := tile.ElevationAt(46.5, 7.5)
	require.NoError(t, err)
	assert.Equal(t, int16(560), meters)
}

func TestTileRejectsOutOfBounds(t *testing.T) {
	tile, err := NewTile(flatTileBuffer(0), 46, 7)
	require.NoError(t, err)

	_, err = tile.ElevationAt(45.0, 7.5)
	assert.Error(t, err)
	_, err = tile.ElevationAt(46.5, 9.0)
	assert.Error(t, err)
}

func TestTilePathLayout(t *testing.T) {
	s := &Service{dir: "/data/elevation"}

	assert.Equal(t, filepath.Join("/data/elevation", "N45", "N45E009.hgt.gz"), s.tilePath(45, 9))
	assert.Equal(t, filepath.Join("/data/elevation", "S45", "S45W009.hgt.gz"), s.tilePath(-45, -9))
	assert.Equal(t, filepath.Join("/data/elevation", "N00", "N00E000.hgt.gz"), s.tilePath(0, 0))
	assert.Equal(t, filepath.Join("/data/elevation", "N90", "N90E180.hgt.gz"), s.tilePath(90, 180))
}

func TestRoundCoordForCache(t *testing.T) {
	assert.Equal(t, int32(45123), roundCoordForCache(45.1234))
	assert.Equal(t, int32(45124), roundCoordForCache(45.1235))
	assert.Equal(t, int32(-45123), roundCoordForCache(-45.1234))
	assert.Equal(t, int32(0), roundCoordForCache(0))
}

func writeTestTile(t *testing.T, dir string, latFloor, lngFloor int, meters int16) {
	t.Helper()
	s := &Service{dir: dir}
	path := s.tilePath(latFloor, lngFloor)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	_, err = gz.Write(flatTileBuffer(meters))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
}

func TestServiceLookupAndCaching(t *testing.T) {
	dir := t.TempDir()
	writeTestTile(t, dir, 46, 7, 560)

	svc, err := NewService(dir, logger.NewNop(), metrics.NewForTest())
	require.NoError(t, err)

	meters, err := svc.ElevationAt(46.5, 7.5)
	require.NoError(t, err)
	require.NotNil(t, meters)
	assert.Equal(t, float64(560), *meters)

	// Second lookup in the same grid cell is served from cache.
	meters, err = svc.ElevationAt(46.5000004, 7.5000004)
	require.NoError(t, err)
	require.NotNil(t, meters)
	assert.Equal(t, float64(560), *meters)
}

func TestServiceMissingTileMeansNoData(t *testing.T) {
	svc, err := NewService(t.TempDir(), logger.NewNop(), metrics.NewForTest())
	require.NoError(t, err)

	meters, err := svc.ElevationAt(10.5, 10.5)
	require.NoError(t, err)
	assert.Nil(t, meters)
}

func TestServiceRejectsBadCoordinates(t *testing.T) {
	svc, err := NewService(t.TempDir(), logger.NewNop(), metrics.NewForTest())
	require.NoError(t, err)

	_, err = svc.ElevationAt(91, 0)
	assert.Error(t, err)
	_, err = svc.ElevationAt(0, -181)
	assert.Error(t, err)
}

func TestServiceRequiresExistingDirectory(t *testing.T) {
	_, err := NewService("/nonexistent/elevation", logger.NewNop(), metrics.NewForTest())
	assert.Error(t, err)
}
