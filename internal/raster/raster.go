// Package raster reads spatial metadata and pixel statistics from local
// rasters and renders derived thumbnails and overviews, all through GDAL.
package raster

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/dylanlee/wncat/pkg/geojson"
)

// ErrUnreadableRaster is returned when a raster cannot be opened or has no
// usable georeferencing.
var ErrUnreadableRaster = errors.New("unreadable raster")

// CoverageUnavailable is returned by CoveragePercent when the statistic
// cannot be computed.
const CoverageUnavailable = -1

var registerOnce sync.Once

func register() {
	registerOnce.Do(godal.RegisterAll)
}

// Metadata is what the catalog needs to know about one raster.
type Metadata struct {
	// Bounds is [minx, miny, maxx, maxy] in the raster's own CRS.
	Bounds [4]float64
	// WGS84Bounds equals Bounds for geographic rasters.
	WGS84Bounds [4]float64
	// Footprint is the WGS84 rectangle matching WGS84Bounds.
	Footprint *geojson.Geometry

	CRS  string // "EPSG:<code>" when known, the WKT otherwise
	WKT  string
	EPSG int // 0 when the CRS has no EPSG authority

	Width, Height, Bands int
}

// BBox returns WGS84Bounds as a slice.
func (m *Metadata) BBox() []float64 {
	return m.WGS84Bounds[:]
}

// Footprint returns the exact rectangle for bounds, visiting bottom-left,
// top-left, top-right, bottom-right.
func Footprint(bounds [4]float64) (*geojson.Geometry, error) {
	return geojson.NewFootprint(bounds[:])
}

// Extractor reads rasters with GDAL.
type Extractor struct {
	logger *slog.Logger
	// rows read per block when counting pixels
	blockRows int
}

// NewExtractor creates an extractor and registers the GDAL drivers.
func NewExtractor() *Extractor {
	register()
	return &Extractor{logger: slog.Default(), blockRows: 256}
}

// WithLogger sets a custom logger for the extractor.
func (e *Extractor) WithLogger(logger *slog.Logger) *Extractor {
	e.logger = logger
	return e
}

// Extract opens path and returns its bounds, footprint and CRS. Any failure
// is wrapped in ErrUnreadableRaster.
func (e *Extractor) Extract(path string) (*Metadata, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrUnreadableRaster, path, err)
	}
	defer ds.Close()

	st := ds.Structure()
	md := &Metadata{Width: st.SizeX, Height: st.SizeY, Bands: st.NBands}

	md.Bounds, err = ds.Bounds()
	if err != nil {
		return nil, fmt.Errorf("%w: bounds of %s: %w", ErrUnreadableRaster, path, err)
	}
	md.WGS84Bounds = md.Bounds

	md.WKT = ds.Projection()
	if md.WKT != "" {
		sr := ds.SpatialRef()
		if sr.AuthorityName("") == "EPSG" {
			if code, err := strconv.Atoi(sr.AuthorityCode("")); err == nil {
				md.EPSG = code
			}
		}
		if !sr.Geographic() || (md.EPSG != 0 && md.EPSG != 4326) {
			wgs84, err := godal.NewSpatialRefFromEPSG(4326)
			if err != nil {
				return nil, fmt.Errorf("create EPSG:4326 reference: %w", err)
			}
			defer wgs84.Close()
			md.WGS84Bounds, err = ds.Bounds(wgs84)
			if err != nil {
				return nil, fmt.Errorf("%w: reproject bounds of %s: %w", ErrUnreadableRaster, path, err)
			}
		}
	}
	switch {
	case md.EPSG != 0:
		md.CRS = "EPSG:" + strconv.Itoa(md.EPSG)
	default:
		md.CRS = md.WKT
	}

	md.Footprint, err = Footprint(md.WGS84Bounds)
	if err != nil {
		return nil, fmt.Errorf("%w: footprint of %s: %w", ErrUnreadableRaster, path, err)
	}
	return md, nil
}

// CoveragePercent returns the share of first-band pixels equal to sentinel
// as a rounded percentage in [0, 100]. Failures are logged and reported as
// CoverageUnavailable.
func (e *Extractor) CoveragePercent(path string, sentinel float64) int {
	pct, err := e.coverage(path, sentinel)
	if err != nil {
		e.logger.Error("coverage statistic unavailable",
			slog.String("path", path),
			slog.Float64("sentinel", sentinel),
			slog.String("error", err.Error()),
		)
		return CoverageUnavailable
	}
	return pct
}

func (e *Extractor) coverage(path string, sentinel float64) (int, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if len(bands) == 0 {
		return 0, fmt.Errorf("%s has no bands", path)
	}
	st := ds.Structure()
	total := st.SizeX * st.SizeY
	if total == 0 {
		return 0, fmt.Errorf("%s has no pixels", path)
	}

	rows := e.blockRows
	if rows <= 0 || rows > st.SizeY {
		rows = st.SizeY
	}
	buf := make([]float64, st.SizeX*rows)
	matched := 0
	for y := 0; y < st.SizeY; y += rows {
		n := rows
		if y+n > st.SizeY {
			n = st.SizeY - y
		}
		block := buf[:st.SizeX*n]
		if err := bands[0].Read(0, y, block, st.SizeX, n); err != nil {
			return 0, fmt.Errorf("read rows %d-%d of %s: %w", y, y+n, path, err)
		}
		for _, v := range block {
			if v == sentinel {
				matched++
			}
		}
	}
	return int(math.Round(float64(matched) / float64(total) * 100)), nil
}
