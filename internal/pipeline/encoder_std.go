package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/gbmarques/dicomflow/internal/pixel"
)

type stdlibEncoder struct{}

func (stdlibEncoder) Encode(img pixel.Grid8, format string) ([]byte, error) {
	if format == "raw-array" {
		out := make([]byte, len(img.Pix))
		copy(out, img.Pix)
		return out, nil
	}

	frame, err := toImage(img)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch format {
	case "jpg", "jpeg":
		if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: lossyQuality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case "png":
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, frame); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case "bmp":
		if err := bmp.Encode(&buf, frame); err != nil {
			return nil, fmt.Errorf("encode bmp: %w", err)
		}
	case "tiff":
		if err := tiff.Encode(&buf, frame, nil); err != nil {
			return nil, fmt.Errorf("encode tiff: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	return buf.Bytes(), nil
}

// toImage lifts the grid into a stdlib image. Grayscale pixels map directly;
// color grids carry blue-green-red order and are unpacked accordingly.
func toImage(img pixel.Grid8) (image.Image, error) {
	if img.Rows <= 0 || img.Cols <= 0 {
		return nil, errors.New("image has invalid dimensions")
	}

	switch img.Channels {
	case 1:
		gray := image.NewGray(image.Rect(0, 0, img.Cols, img.Rows))
		copy(gray.Pix, img.Pix)
		return gray, nil
	case 3:
		rgba := image.NewNRGBA(image.Rect(0, 0, img.Cols, img.Rows))
		for i := 0; i*3+2 < len(img.Pix); i++ {
			rgba.Pix[i*4+0] = img.Pix[i*3+2] // red
			rgba.Pix[i*4+1] = img.Pix[i*3+1] // green
			rgba.Pix[i*4+2] = img.Pix[i*3+0] // blue
			rgba.Pix[i*4+3] = 0xff
		}
		return rgba, nil
	default:
		return nil, fmt.Errorf("unsupported channel count: %d", img.Channels)
	}
}
