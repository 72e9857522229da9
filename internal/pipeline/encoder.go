package pipeline

import (
	"github.com/gbmarques/dicomflow/internal/pixel"
)

// lossyQuality is the encode quality requested for lossy formats; lossless
// formats use codec defaults.
const lossyQuality = 90

// Encoder turns an 8-bit display grid into encoded raster bytes. Color grids
// arrive in the pipeline's blue-green-red channel order.
type Encoder interface {
	Encode(img pixel.Grid8, format string) ([]byte, error)
}

func contentTypeForFormat(format string) string {
	switch format {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}
