package dcm

import (
	"math"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/gbmarques/dicomflow/internal/pixel"
)

// datasetLUTs is the embedded-LUT capability of one dataset. The pipeline
// consults it only when explicit numeric parameters are absent; with no
// matching table the samples pass through unchanged.
type datasetLUTs struct {
	modality *lutTable
	voi      *lutTable

	sigmoidCenter float64
	sigmoidWidth  float64
	sigmoid       bool
}

type lutTable struct {
	firstMapped int
	entries     []float64
}

func newDatasetLUTs(ds *dicom.Dataset, meta pixel.Metadata) *datasetLUTs {
	l := &datasetLUTs{
		modality: tableFromSequence(ds, tag.ModalityLUTSequence),
		voi:      tableFromSequence(ds, tag.VOILUTSequence),
	}

	if meta.VOILUTFunction == "SIGMOID" && meta.WindowCenter != nil && meta.WindowWidth != nil {
		center, okC := meta.WindowCenter.Resolve()
		width, okW := meta.WindowWidth.Resolve()
		if okC && okW && width != 0 {
			l.sigmoidCenter = center
			l.sigmoidWidth = width
			l.sigmoid = true
		}
	}
	return l
}

func (l *datasetLUTs) ApplyModalityLUT(samples []float64) []float64 {
	if l.modality == nil {
		return samples
	}
	return l.modality.apply(samples)
}

func (l *datasetLUTs) ApplyVOILUT(samples []float64) []float64 {
	if l.voi != nil {
		return l.voi.apply(samples)
	}
	if l.sigmoid {
		for i, x := range samples {
			samples[i] = 1 / (1 + math.Exp(-4*(x-l.sigmoidCenter)/l.sigmoidWidth))
		}
	}
	return samples
}

// apply maps each sample through the table: round, offset by the first
// mapped value, clamp to the table bounds.
func (t *lutTable) apply(samples []float64) []float64 {
	if len(t.entries) == 0 {
		return samples
	}
	for i, x := range samples {
		idx := int(math.Round(x)) - t.firstMapped
		if idx < 0 {
			idx = 0
		}
		if idx >= len(t.entries) {
			idx = len(t.entries) - 1
		}
		samples[i] = t.entries[idx]
	}
	return samples
}

func tableFromSequence(ds *dicom.Dataset, seqTag tag.Tag) *lutTable {
	elem, err := ds.FindElementByTag(seqTag)
	if err != nil || elem == nil {
		return nil
	}
	items, ok := elem.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil
	}
	for _, item := range items {
		elements, ok := item.GetValue().([]*dicom.Element)
		if !ok {
			continue
		}
		if table := tableFromItem(elements); table != nil {
			return table
		}
	}
	return nil
}

// tableFromItem reads LUT Descriptor (entry count, first mapped value, bit
// depth) and LUT Data from one sequence item. A descriptor entry count of
// zero means 65536 stored entries.
func tableFromItem(elements []*dicom.Element) *lutTable {
	var descriptor, data []int
	for _, e := range elements {
		switch e.Tag {
		case tag.LUTDescriptor:
			descriptor, _ = e.Value.GetValue().([]int)
		case tag.LUTData:
			data, _ = e.Value.GetValue().([]int)
		}
	}
	if len(descriptor) < 2 || len(data) == 0 {
		return nil
	}

	count := descriptor[0]
	if count == 0 {
		count = 65536
	}
	if count > len(data) {
		count = len(data)
	}

	entries := make([]float64, count)
	for i := 0; i < count; i++ {
		entries[i] = float64(data[i])
	}
	return &lutTable{firstMapped: descriptor[1], entries: entries}
}
