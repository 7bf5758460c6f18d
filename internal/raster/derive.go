package raster

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/airbusgeo/godal"
)

// Deriver renders the thumbnail and overview published with each item.
type Deriver struct {
	thumbnailSize int
	logger        *slog.Logger
}

// NewDeriver creates a deriver whose thumbnails fit in size x size pixels.
func NewDeriver(size int) *Deriver {
	register()
	if size <= 0 {
		size = 256
	}
	return &Deriver{thumbnailSize: size, logger: slog.Default()}
}

// WithLogger sets a custom logger for the deriver.
func (d *Deriver) WithLogger(logger *slog.Logger) *Deriver {
	d.logger = logger
	return d
}

// ThumbnailSize returns the output width and height for a width x height
// raster, keeping its aspect ratio.
func (d *Deriver) ThumbnailSize(width, height int) (int, int) {
	if width <= 0 || height <= 0 {
		return d.thumbnailSize, d.thumbnailSize
	}
	if width >= height {
		h := height * d.thumbnailSize / width
		return d.thumbnailSize, max(h, 1)
	}
	w := width * d.thumbnailSize / height
	return max(w, 1), d.thumbnailSize
}

// Thumbnail writes a PNG preview of src to dest. Paletted rasters are
// expanded through their color table; others are scaled to bytes.
func (d *Deriver) Thumbnail(src, dest string) error {
	ds, err := godal.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrUnreadableRaster, src, err)
	}
	defer ds.Close()

	st := ds.Structure()
	w, h := d.ThumbnailSize(st.SizeX, st.SizeY)
	size := []string{"-outsize", strconv.Itoa(w), strconv.Itoa(h)}

	out, err := ds.Translate(dest, append([]string{"-of", "PNG", "-expand", "rgba"}, size...))
	if err != nil {
		d.logger.Debug("color table expansion failed, scaling instead",
			slog.String("path", src),
			slog.String("error", err.Error()),
		)
		d.discard(dest)
		out, err = ds.Translate(dest, append([]string{"-of", "PNG", "-ot", "Byte", "-scale"}, size...))
		if err != nil {
			return fmt.Errorf("render thumbnail of %s: %w", src, err)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("write thumbnail %s: %w", dest, err)
	}
	return nil
}

// discard removes a partial output so the next render starts clean.
func (d *Deriver) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove partial output",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// Overview writes a DEFLATE-compressed cloud-optimized GeoTIFF copy of src.
func (d *Deriver) Overview(src, dest string) error {
	ds, err := godal.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrUnreadableRaster, src, err)
	}
	defer ds.Close()

	out, err := ds.Translate(dest, []string{"-of", "COG", "-co", "COMPRESS=DEFLATE"})
	if err != nil {
		return fmt.Errorf("render overview of %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("write overview %s: %w", dest, err)
	}
	return nil
}
