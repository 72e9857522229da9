package pixel

// Grid is a floating-point sample array in row-major, channel-interleaved
// order. Channels is 1 for grayscale and 3 for color data.
type Grid struct {
	Rows     int
	Cols     int
	Channels int
	Samples  []float64
}

// Grid8 is the final 8-bit display array. For color grids the channel order
// matches the raster codec convention (blue, green, red).
type Grid8 struct {
	Rows     int
	Cols     int
	Channels int
	Pix      []uint8
}

func NewGrid(rows, cols, channels int) Grid {
	if channels < 1 {
		channels = 1
	}
	return Grid{
		Rows:     rows,
		Cols:     cols,
		Channels: channels,
		Samples:  make([]float64, rows*cols*channels),
	}
}

// WindowValue holds a windowing parameter that the dataset may store either
// as a single decimal value or as an ordered sequence of them.
type WindowValue struct {
	values []float64
}

func Scalar(v float64) WindowValue {
	return WindowValue{values: []float64{v}}
}

func Sequence(vs ...float64) WindowValue {
	return WindowValue{values: vs}
}

// Resolve collapses the value to a single float. Sequences resolve to their
// first element; that selection policy is deliberate and mirrors the dataset
// convention that the first window pair is the preferred presentation.
func (w WindowValue) Resolve() (float64, bool) {
	if len(w.values) == 0 {
		return 0, false
	}
	return w.values[0], true
}

// Metadata is the calibration subset the pipeline consumes, extracted from a
// decoded dataset. Pointer and zero-value fields mark absent tags.
type Metadata struct {
	RescaleSlope     *float64
	RescaleIntercept *float64
	VOILUTFunction   string
	WindowCenter     *WindowValue
	WindowWidth      *WindowValue
	Photometric      string
	SOPClassUID      string
	SeriesNumber     string
	InstanceNumber   string
}

// colorPhotometrics lists the interpretations whose sample arrays carry a
// channel axis that must be reordered for the raster codec.
var colorPhotometrics = map[string]bool{
	"YBR_RCT":         true,
	"RGB":             true,
	"YBR_ICT":         true,
	"YBR_PARTIAL_420": true,
	"YBR_FULL_422":    true,
	"YBR_FULL":        true,
	"PALETTE COLOR":   true,
	"PALETTE_COLOR":   true,
}

func (m Metadata) IsColor() bool {
	return colorPhotometrics[m.Photometric]
}
