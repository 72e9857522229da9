//go:build govips && cgo

package pipeline

import (
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"

	"github.com/gbmarques/dicomflow/internal/pixel"
)

// govipsEncoder routes jpeg/png/tiff exports through libvips. Formats vips
// does not export (bmp, raw-array) fall back to the stdlib encoder.
type govipsEncoder struct {
	fallback stdlibEncoder
}

func (e govipsEncoder) Encode(img pixel.Grid8, format string) ([]byte, error) {
	switch format {
	case "jpg", "jpeg", "png", "tiff":
	default:
		return e.fallback.Encode(img, format)
	}

	// vips ingests encoded buffers, so stage through lossless png first.
	staged, err := e.fallback.Encode(img, "png")
	if err != nil {
		return nil, err
	}
	ref, err := vips.NewImageFromBuffer(staged)
	if err != nil {
		return nil, fmt.Errorf("load staged image: %w", err)
	}
	defer ref.Close()

	switch format {
	case "jpg", "jpeg":
		params := vips.NewJpegExportParams()
		params.Quality = lossyQuality
		data, _, err := ref.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case "png":
		data, _, err := ref.ExportPng(vips.NewPngExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	default: // tiff
		data, _, err := ref.ExportTiff(vips.NewTiffExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode tiff: %w", err)
		}
		return data, nil
	}
}
