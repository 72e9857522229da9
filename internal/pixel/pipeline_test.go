package pixel

import (
	"math"
	"testing"
)

func fptr(v float64) *float64 { return &v }

func wptr(w WindowValue) *WindowValue { return &w }

func grayGrid(samples ...float64) Grid {
	return Grid{Rows: 1, Cols: len(samples), Channels: 1, Samples: samples}
}

func TestWindowingLinearExact(t *testing.T) {
	meta := Metadata{
		RescaleSlope:     fptr(1),
		RescaleIntercept: fptr(0),
		WindowCenter:     wptr(Scalar(128)),
		WindowWidth:      wptr(Scalar(256)),
		Photometric:      "MONOCHROME2",
	}

	out := Render(grayGrid(0, 128, 256), meta, nil)
	if out.Pix[0] != 0 {
		t.Fatalf("sample 0: expected 0, got %d", out.Pix[0])
	}
	if out.Pix[2] != 255 {
		t.Fatalf("sample 256: expected 255, got %d", out.Pix[2])
	}
	if d := int(out.Pix[1]) - 128; d < -1 || d > 1 {
		t.Fatalf("sample 128: expected 128±1, got %d", out.Pix[1])
	}
}

func TestWindowSequenceResolvesToFirstElement(t *testing.T) {
	meta := Metadata{
		RescaleSlope:     fptr(1),
		RescaleIntercept: fptr(0),
		WindowCenter:     wptr(Sequence(128, 999)),
		WindowWidth:      wptr(Sequence(256, 1)),
		Photometric:      "MONOCHROME2",
	}

	out := Render(grayGrid(0, 256), meta, nil)
	if out.Pix[0] != 0 || out.Pix[1] != 255 {
		t.Fatalf("expected first window pair (128/256) to apply, got %v", out.Pix)
	}
}

func TestRescaleSlopeKeptAsFloat(t *testing.T) {
	// A slope below one must scale, not truncate to zero.
	meta := Metadata{
		RescaleSlope:     fptr(0.5),
		RescaleIntercept: fptr(0),
		Photometric:      "MONOCHROME2",
	}

	out := Render(grayGrid(0, 100, 200), meta, nil)
	if out.Pix[0] != 0 || out.Pix[2] != 255 {
		t.Fatalf("expected full output range, got %v", out.Pix)
	}
	if d := int(out.Pix[1]) - 127; d < -1 || d > 1 {
		t.Fatalf("midpoint: expected 127±1, got %d", out.Pix[1])
	}
}

func TestInversionSymmetry(t *testing.T) {
	samples := []float64{0, 17, 64, 128, 200, 255}

	mono2 := Render(grayGrid(append([]float64(nil), samples...)...), Metadata{Photometric: "MONOCHROME2"}, nil)
	mono1 := Render(grayGrid(append([]float64(nil), samples...)...), Metadata{Photometric: "MONOCHROME1"}, nil)

	for i := range samples {
		if mono1.Pix[i] != 255-mono2.Pix[i] {
			t.Fatalf("sample %d: MONOCHROME1=%d, MONOCHROME2=%d, want complement", i, mono1.Pix[i], mono2.Pix[i])
		}
	}
}

func TestDegenerateRangeClampsToZero(t *testing.T) {
	out := Render(grayGrid(42, 42, 42, 42), Metadata{Photometric: "MONOCHROME2"}, nil)
	for i, p := range out.Pix {
		if p != 0 {
			t.Fatalf("flat array sample %d: expected 0, got %d", i, p)
		}
	}
}

func TestRenderPreservesShape(t *testing.T) {
	g := NewGrid(4, 6, 1)
	for i := range g.Samples {
		g.Samples[i] = float64(i)
	}
	out := Render(g, Metadata{Photometric: "MONOCHROME2"}, nil)
	if out.Rows != 4 || out.Cols != 6 || out.Channels != 1 || len(out.Pix) != 24 {
		t.Fatalf("shape not preserved: %+v", out)
	}
}

func TestRenderDoesNotMutateInput(t *testing.T) {
	g := grayGrid(1, 2, 3)
	Render(g, Metadata{Photometric: "MONOCHROME2"}, nil)
	if g.Samples[0] != 1 || g.Samples[1] != 2 || g.Samples[2] != 3 {
		t.Fatalf("input grid mutated: %v", g.Samples)
	}
}

func TestColorChannelSwap(t *testing.T) {
	g := Grid{Rows: 1, Cols: 2, Channels: 3, Samples: []float64{
		255, 128, 0,
		0, 128, 255,
	}}
	out := Render(g, Metadata{Photometric: "RGB"}, nil)

	want := []uint8{0, 128, 255, 255, 128, 0}
	for i := range want {
		if out.Pix[i] != want[i] {
			t.Fatalf("pix[%d]: expected %d, got %d", i, want[i], out.Pix[i])
		}
	}
}

func TestGrayscaleNotChannelSwapped(t *testing.T) {
	out := Render(grayGrid(0, 128, 255), Metadata{Photometric: "MONOCHROME2"}, nil)
	if out.Pix[0] != 0 || out.Pix[2] != 255 {
		t.Fatalf("grayscale order disturbed: %v", out.Pix)
	}
}

type recordingLUT struct {
	modalityCalls int
	voiCalls      int
}

func (r *recordingLUT) ApplyModalityLUT(s []float64) []float64 {
	r.modalityCalls++
	return s
}

func (r *recordingLUT) ApplyVOILUT(s []float64) []float64 {
	r.voiCalls++
	return s
}

func TestEmbeddedLUTDelegation(t *testing.T) {
	luts := &recordingLUT{}

	// No slope/intercept, no window: both embedded LUTs consulted.
	Render(grayGrid(1, 2, 3), Metadata{Photometric: "MONOCHROME2"}, luts)
	if luts.modalityCalls != 1 || luts.voiCalls != 1 {
		t.Fatalf("expected embedded LUT delegation, got modality=%d voi=%d", luts.modalityCalls, luts.voiCalls)
	}

	// SIGMOID overrides explicit window values.
	luts = &recordingLUT{}
	Render(grayGrid(1, 2, 3), Metadata{
		RescaleSlope:     fptr(1),
		RescaleIntercept: fptr(0),
		VOILUTFunction:   "SIGMOID",
		WindowCenter:     wptr(Scalar(2)),
		WindowWidth:      wptr(Scalar(2)),
		Photometric:      "MONOCHROME2",
	}, luts)
	if luts.modalityCalls != 0 {
		t.Fatalf("explicit rescale should bypass embedded modality LUT, got %d calls", luts.modalityCalls)
	}
	if luts.voiCalls != 1 {
		t.Fatalf("SIGMOID should delegate to embedded VOI LUT, got %d calls", luts.voiCalls)
	}
}

func TestQuantizeTruncates(t *testing.T) {
	pix := quantize([]float64{0, 0.4, 0.9, 254.999, 255, 300, -5, math.SmallestNonzeroFloat64})
	want := []uint8{0, 0, 0, 254, 255, 255, 0, 0}
	for i := range want {
		if pix[i] != want[i] {
			t.Fatalf("quantize[%d]: expected %d, got %d", i, want[i], pix[i])
		}
	}
}
