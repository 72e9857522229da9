// Package pixel implements the display pipeline that turns raw dataset
// samples into normalized 8-bit values: Modality LUT, VOI LUT/windowing,
// presentation normalization, photometric inversion, quantization, and the
// channel-convention fix-up for color arrays.
package pixel

const voiFunctionSigmoid = "SIGMOID"

// LUTSource is the embedded-LUT capability of a decoded dataset. It is
// consulted only when explicit numeric parameters are absent from the
// metadata; implementations must return the input unchanged when the dataset
// carries no matching LUT.
type LUTSource interface {
	ApplyModalityLUT(samples []float64) []float64
	ApplyVOILUT(samples []float64) []float64
}

// PassthroughLUT is a LUTSource for datasets without embedded tables.
type PassthroughLUT struct{}

func (PassthroughLUT) ApplyModalityLUT(samples []float64) []float64 { return samples }
func (PassthroughLUT) ApplyVOILUT(samples []float64) []float64      { return samples }

// Render runs the full pipeline. It is a pure function over its inputs: no
// I/O, no shared state, safe to call concurrently on disjoint grids. The
// output grid has the input's shape; only the channel swap permutes samples.
func Render(g Grid, meta Metadata, luts LUTSource) Grid8 {
	if luts == nil {
		luts = PassthroughLUT{}
	}

	samples := make([]float64, len(g.Samples))
	copy(samples, g.Samples)

	samples = applyModality(samples, meta, luts)
	samples = applyVOI(samples, meta, luts)
	samples = normalize(samples)

	if meta.Photometric == "MONOCHROME1" {
		invert(samples)
	}

	out := Grid8{
		Rows:     g.Rows,
		Cols:     g.Cols,
		Channels: g.Channels,
		Pix:      quantize(samples),
	}

	if meta.IsColor() && out.Channels == 3 {
		swapChannels(out)
	}
	return out
}

// applyModality maps stored values into output units. Slope and intercept are
// kept as floats throughout; slope may legitimately be below 1.
func applyModality(samples []float64, meta Metadata, luts LUTSource) []float64 {
	if meta.RescaleSlope != nil && meta.RescaleIntercept != nil {
		slope, intercept := *meta.RescaleSlope, *meta.RescaleIntercept
		for i, v := range samples {
			samples[i] = v*slope + intercept
		}
		return samples
	}
	return luts.ApplyModalityLUT(samples)
}

func applyVOI(samples []float64, meta Metadata, luts LUTSource) []float64 {
	if meta.VOILUTFunction == voiFunctionSigmoid {
		return luts.ApplyVOILUT(samples)
	}
	if meta.WindowCenter != nil && meta.WindowWidth != nil {
		center, okC := meta.WindowCenter.Resolve()
		width, okW := meta.WindowWidth.Resolve()
		if okC && okW {
			return windowLinearExact(samples, width, center)
		}
	}
	return luts.ApplyVOILUT(samples)
}

// windowLinearExact applies the LINEAR_EXACT windowing function. Values at or
// below the lower window edge pin to the array minimum, values above the
// upper edge pin to the maximum, and the interior maps linearly across the
// array's current range.
func windowLinearExact(samples []float64, width, center float64) []float64 {
	lo, hi := minMax(samples)
	span := hi - lo
	lower := center - width/2
	upper := center + width/2

	for i, x := range samples {
		switch {
		case x <= lower:
			samples[i] = lo
		case x > upper:
			samples[i] = hi
		default:
			samples[i] = (x-center+width/2)/width*span + lo
		}
	}
	return samples
}

// normalize rescales the array linearly onto [0, 255]. A flat array (min ==
// max) clamps to zero everywhere rather than propagating NaNs.
func normalize(samples []float64) []float64 {
	lo, hi := minMax(samples)
	span := hi - lo
	if span == 0 {
		for i := range samples {
			samples[i] = 0
		}
		return samples
	}
	for i, v := range samples {
		samples[i] = (v - lo) / span * 255
	}
	return samples
}

// invert flips polarity for MONOCHROME1 arrays, computed against the
// post-normalization maximum rather than a blind 255 - x.
func invert(samples []float64) {
	_, hi := minMax(samples)
	for i, v := range samples {
		samples[i] = hi - v
	}
}

// quantize casts to 8-bit by truncation toward zero.
func quantize(samples []float64) []uint8 {
	pix := make([]uint8, len(samples))
	for i, v := range samples {
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		pix[i] = uint8(v)
	}
	return pix
}

// swapChannels exchanges channel 0 and channel 2 in place, converting the
// decoder's RGB ordering into the codec's BGR convention.
func swapChannels(g Grid8) {
	for i := 0; i+2 < len(g.Pix); i += 3 {
		g.Pix[i], g.Pix[i+2] = g.Pix[i+2], g.Pix[i]
	}
}

func minMax(samples []float64) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	lo, hi := samples[0], samples[0]
	for _, v := range samples[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
