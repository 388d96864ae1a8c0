package elevation

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ognpipe/ognpipe/internal/metrics"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

// Cache sizing. The grid cache groups lookups to a ~100 m grid (0.001
// degrees), which gives a very high hit rate when many aircraft circle the
// same airfields. Tiles are large, so far fewer are kept.
const (
	defaultGridCacheSize = 500000
	defaultTileCacheSize = 32
)

type gridKey struct {
	latMilli int32
	lngMilli int32
}

type tileKey struct {
	latFloor int
	lngFloor int
}

// gridValue caches the result for a grid cell; missing terrain data (open
// water) caches as !ok so ocean traffic never re-stats tile files.
type gridValue struct {
	meters int16
	ok     bool
}

// Service looks up terrain elevation from a directory of gzipped HGT tiles
// laid out as <dir>/N46/N46E007.hgt.gz.
type Service struct {
	dir       string
	gridCache *lru.Cache[gridKey, gridValue]
	tileCache *lru.Cache[tileKey, *Tile]
	log       *logger.Logger
	metrics   *metrics.Metrics
}

// NewService builds a Service over the given tile directory. The directory
// must exist; individual tiles may be missing.
func NewService(dir string, log *logger.Logger, m *metrics.Metrics) (*Service, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("elevation data directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("elevation data path %s is not a directory", dir)
	}

	gridCache, err := lru.New[gridKey, gridValue](defaultGridCacheSize)
	if err != nil {
		return nil, err
	}
	tileCache, err := lru.New[tileKey, *Tile](defaultTileCacheSize)
	if err != nil {
		return nil, err
	}

	return &Service{
		dir:       dir,
		gridCache: gridCache,
		tileCache: tileCache,
		log:       log.Named("elevation"),
		metrics:   m,
	}, nil
}

// ElevationAt returns terrain elevation in meters at a coordinate. A nil
// result with nil error means no tile covers the location.
func (s *Service) ElevationAt(lat, lng float64) (*float64, error) {
	start := time.Now()
	defer func() {
		s.metrics.ElevationLookups.Observe(time.Since(start).Seconds())
	}()

	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, fmt.Errorf("coordinates out of range: lat=%f, lng=%f", lat, lng)
	}

	key := gridKey{
		latMilli: roundCoordForCache(lat),
		lngMilli: roundCoordForCache(lng),
	}
	if cached, ok := s.gridCache.Get(key); ok {
		s.metrics.ElevationCacheHits.Inc()
		return cached.float(), nil
	}
	s.metrics.ElevationCacheMisses.Inc()

	tile, err := s.tileFor(lat, lng)
	if err != nil {
		return nil, err
	}
	if tile == nil {
		s.gridCache.Add(key, gridValue{})
		return nil, nil
	}

	meters, err := tile.ElevationAt(lat, lng)
	if err != nil {
		// Exact tile-edge coordinates land here; treat as no data.
		s.gridCache.Add(key, gridValue{})
		return nil, nil
	}

	value := gridValue{meters: meters, ok: true}
	s.gridCache.Add(key, value)
	return value.float(), nil
}

func (s *Service) tileFor(lat, lng float64) (*Tile, error) {
	key := tileKey{
		latFloor: int(math.Floor(lat)),
		lngFloor: int(math.Floor(lng)),
	}
	if tile, ok := s.tileCache.Get(key); ok {
		return tile, nil
	}

	path := s.tilePath(key.latFloor, key.lngFloor)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat hgt tile %s: %w", path, err)
	}

	loadStart := time.Now()
	tile, err := LoadTile(path, float64(key.latFloor), float64(key.lngFloor))
	if err != nil {
		return nil, err
	}
	s.log.Info("Loaded elevation tile",
		logger.String("path", path),
		logger.Duration("took", time.Since(loadStart)))

	s.tileCache.Add(key, tile)
	return tile, nil
}

// tilePath builds the conventional SRTM layout, e.g. N46/N46E007.hgt.gz.
func (s *Service) tilePath(latFloor, lngFloor int) string {
	latPrefix := "N"
	if latFloor < 0 {
		latPrefix = "S"
	}
	lngPrefix := "E"
	if lngFloor < 0 {
		lngPrefix = "W"
	}
	latDir := fmt.Sprintf("%s%02d", latPrefix, absInt(latFloor))
	filename := fmt.Sprintf("%s%s%03d.hgt.gz", latDir, lngPrefix, absInt(lngFloor))
	return filepath.Join(s.dir, latDir, filename)
}

func (v gridValue) float() *float64 {
	if !v.ok {
		return nil
	}
	f := float64(v.meters)
	return &f
}

// roundCoordForCache snaps a coordinate to the 0.001-degree cache grid.
func roundCoordForCache(coord float64) int32 {
	return int32(math.Round(coord * 1000))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
