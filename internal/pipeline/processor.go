// Package pipeline runs one conversion task end to end: fetch the dataset
// bytes, decode, apply the display pipeline, resolve the export path, and
// emit the encoded raster. Every per-file problem becomes a typed result;
// nothing in here can fail a batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gbmarques/dicomflow/internal/dcm"
	"github.com/gbmarques/dicomflow/internal/domain"
	"github.com/gbmarques/dicomflow/internal/export"
	"github.com/gbmarques/dicomflow/internal/pixel"
)

// Task is one file's conversion order. All fields are owned by the task for
// its lifetime; nothing is shared across tasks.
type Task struct {
	Source     string
	TargetRoot string
	Format     string
	Anonymize  bool
	AnonPaths  map[string]string
}

type Fetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

type Decoder interface {
	Decode(data []byte) (*dcm.Image, error)
}

type Emitter interface {
	Emit(ctx context.Context, path string, data []byte, format string) error
}

type Processor struct {
	fetcher Fetcher
	decoder Decoder
	encoder Encoder
	emitter Emitter
}

// NewLocalProcessor converts files on the local filesystem.
func NewLocalProcessor() (*Processor, error) {
	encoder, err := newEncoder()
	if err != nil {
		return nil, fmt.Errorf("build encoder: %w", err)
	}
	return &Processor{
		fetcher: LocalFileFetcher{},
		decoder: DatasetDecoder{},
		encoder: encoder,
		emitter: LocalFileEmitter{},
	}, nil
}

// NewProcessor wires explicit stages; used for object-store batches and tests.
func NewProcessor(fetcher Fetcher, decoder Decoder, encoder Encoder, emitter Emitter) (*Processor, error) {
	if fetcher == nil || decoder == nil || emitter == nil {
		return nil, errors.New("fetcher, decoder, and emitter are required")
	}
	if encoder == nil {
		var err error
		encoder, err = newEncoder()
		if err != nil {
			return nil, fmt.Errorf("build encoder: %w", err)
		}
	}
	return &Processor{fetcher: fetcher, decoder: decoder, encoder: encoder, emitter: emitter}, nil
}

// Convert runs the task. The returned result is always attributable to
// task.Source; skip and failure outcomes write nothing.
func (p *Processor) Convert(ctx context.Context, task Task) domain.Result {
	select {
	case <-ctx.Done():
		return domain.Failed(task.Source, ctx.Err())
	default:
	}

	data, err := p.fetcher.Fetch(ctx, task.Source)
	if err != nil {
		return domain.Failed(task.Source, fmt.Errorf("read source: %w", err))
	}

	img, err := p.decoder.Decode(data)
	if img != nil {
		// Classify the SOP class even when decoding stopped short of the
		// pixel data: document storage classes never carry any.
		if name, rejected := domain.UnsupportedSOPClassName(img.Meta.SOPClassUID); rejected {
			return domain.Skipped(task.Source, domain.SkipUnsupportedSOPClass,
				fmt.Sprintf("%s is currently not supported", name))
		}
	}
	if err != nil {
		return domain.Failed(task.Source, fmt.Errorf("decode dataset: %w", err))
	}
	if img.FrameCount > 1 {
		return domain.Skipped(task.Source, domain.SkipMultiframe,
			"multi-frame images are currently not supported")
	}

	rendered := pixel.Render(img.Grid, img.Meta, img.LUTs)

	resolver := export.Resolver{
		TargetRoot: task.TargetRoot,
		Anonymize:  task.Anonymize,
		AnonPaths:  task.AnonPaths,
	}
	outPath, err := resolver.Resolve(task.Source, img.Meta.SeriesNumber, img.Meta.InstanceNumber, task.Format)
	if err != nil {
		return domain.Failed(task.Source, err)
	}

	encoded, err := p.encoder.Encode(rendered, task.Format)
	if err != nil {
		return domain.Failed(task.Source, fmt.Errorf("encode %s: %w", task.Format, err))
	}

	if err := p.emitter.Emit(ctx, outPath, encoded, task.Format); err != nil {
		return domain.Failed(task.Source, fmt.Errorf("write output: %w", err))
	}

	result := domain.Written(task.Source, outPath)
	result.Pixels = int64(rendered.Rows) * int64(rendered.Cols)
	return result
}

// DatasetDecoder is the production Decoder, backed by the DICOM parser.
type DatasetDecoder struct{}

func (DatasetDecoder) Decode(data []byte) (*dcm.Image, error) {
	return dcm.Decode(data)
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", source, err)
	}
	return data, nil
}

// LocalFileEmitter writes outputs to the local filesystem, creating parent
// directories on demand.
type LocalFileEmitter struct{}

func (LocalFileEmitter) Emit(_ context.Context, path string, data []byte, _ string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}
