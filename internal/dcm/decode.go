// Package dcm adapts the DICOM parser into the shapes the conversion
// pipeline consumes: a float sample grid, calibration metadata, and the
// dataset's embedded LUT capability.
package dcm

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/gbmarques/dicomflow/internal/pixel"
)

var errEncapsulated = errors.New("encapsulated pixel data is not supported (transfer syntax must be native)")

// ErrNoPixelData reports a dataset that parsed cleanly but carries no
// PixelData element. Decode still returns the metadata in that case so the
// caller can classify the dataset (document SOP classes have no pixels).
var ErrNoPixelData = errors.New("dataset has no pixel data")

// Image is one decoded dataset, reduced to what a conversion task needs. It
// lives only for the duration of the task that decoded it.
type Image struct {
	Meta       pixel.Metadata
	Grid       pixel.Grid
	FrameCount int
	LUTs       pixel.LUTSource
}

// Decode parses a DICOM byte stream and extracts the first frame's samples
// as floats alongside the pipeline metadata. Multi-frame datasets decode
// successfully (FrameCount reports the count); the caller decides whether to
// skip them before touching the grid. When the dataset carries no PixelData
// element, Decode returns a metadata-only Image together with ErrNoPixelData.
func Decode(data []byte) (*Image, error) {
	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	meta := extractMetadata(&ds)

	pixelElem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return &Image{Meta: meta}, ErrNoPixelData
	}
	info := dicom.MustGetPixelDataInfo(pixelElem.Value)
	if len(info.Frames) == 0 {
		return &Image{Meta: meta}, errors.New("dataset has no pixel data frames")
	}

	first := info.Frames[0]
	if first.Encapsulated {
		return &Image{Meta: meta}, errEncapsulated
	}
	native := first.NativeData

	channels := 1
	if len(native.Data) > 0 {
		channels = len(native.Data[0])
	}

	grid := pixel.Grid{
		Rows:     native.Rows,
		Cols:     native.Cols,
		Channels: channels,
		Samples:  make([]float64, len(native.Data)*channels),
	}
	for j, sample := range native.Data {
		for c := 0; c < channels && c < len(sample); c++ {
			grid.Samples[j*channels+c] = float64(sample[c])
		}
	}

	return &Image{
		Meta:       meta,
		Grid:       grid,
		FrameCount: len(info.Frames),
		LUTs:       newDatasetLUTs(&ds, meta),
	}, nil
}

func extractMetadata(ds *dicom.Dataset) pixel.Metadata {
	meta := pixel.Metadata{
		RescaleSlope:     findFloat(ds, tag.RescaleSlope),
		RescaleIntercept: findFloat(ds, tag.RescaleIntercept),
		VOILUTFunction:   findString(ds, tag.VOILUTFunction),
		WindowCenter:     findWindow(ds, tag.WindowCenter),
		WindowWidth:      findWindow(ds, tag.WindowWidth),
		Photometric:      findString(ds, tag.PhotometricInterpretation),
		SOPClassUID:      findString(ds, tag.SOPClassUID),
		SeriesNumber:     findString(ds, tag.SeriesNumber),
		InstanceNumber:   findString(ds, tag.InstanceNumber),
	}
	return meta
}

func findString(ds *dicom.Dataset, t tag.Tag) string {
	values := findStrings(ds, t)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func findStrings(ds *dicom.Dataset, t tag.Tag) []string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil {
		return nil
	}
	raw, ok := elem.Value.GetValue().([]string)
	if !ok {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}

func findFloat(ds *dicom.Dataset, t tag.Tag) *float64 {
	values := findStrings(ds, t)
	if len(values) == 0 {
		return nil
	}
	parsed, err := strconv.ParseFloat(values[0], 64)
	if err != nil {
		return nil
	}
	return &parsed
}

// findWindow maps a decimal-string element onto the Scalar/Sequence window
// union: one stored value is a scalar, several are an ordered sequence.
func findWindow(ds *dicom.Dataset, t tag.Tag) *pixel.WindowValue {
	values := findStrings(ds, t)
	if len(values) == 0 {
		return nil
	}

	floats := make([]float64, 0, len(values))
	for _, v := range values {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		floats = append(floats, parsed)
	}

	var w pixel.WindowValue
	if len(floats) == 1 {
		w = pixel.Scalar(floats[0])
	} else {
		w = pixel.Sequence(floats...)
	}
	return &w
}
