// Command dicomflow converts DICOM datasets to raster images in one shot,
// without the queue or the API. Inputs are files or directories; directories
// are walked recursively for .dcm files.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gbmarques/dicomflow/internal/batch"
	"github.com/gbmarques/dicomflow/internal/pipeline"
)

const defaultFormat = "bmp"

func main() {
	var (
		out        = flag.String("out", "", "output directory (defaults to the first input's directory)")
		format     = flag.String("format", defaultFormat, "output format: jpg, jpeg, png, bmp, tiff, or raw-array")
		sequential = flag.Bool("sequential", false, "convert files one at a time in sorted order")
		workers    = flag.Int("workers", 0, "parallel conversion workers (0 means one per CPU)")
		anonMap    = flag.String("anon-map", "", "JSON file mapping source paths to anonymized output paths")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] input [input...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := log.New(os.Stdout, "[dicomflow] ", log.LstdFlags|log.Lmsgprefix)

	inputs := flag.Args()
	if len(inputs) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	opts := batch.Options{
		Inputs:     inputs,
		TargetRoot: *out,
		Format:     *format,
		Sequential: *sequential,
		Workers:    *workers,
	}

	if *anonMap != "" {
		paths, err := loadAnonMap(*anonMap)
		if err != nil {
			logger.Fatalf("load anon map: %v", err)
		}
		opts.Anonymize = true
		opts.AnonPaths = paths
	}

	if err := pipeline.Startup(); err != nil {
		logger.Fatalf("initialize image runtime: %v", err)
	}
	defer pipeline.Shutdown()

	processor, err := pipeline.NewLocalProcessor()
	if err != nil {
		logger.Fatalf("initialize processor: %v", err)
	}
	runner, err := batch.NewRunner(processor, batch.LocalDiscoverer{}, logger)
	if err != nil {
		logger.Fatalf("initialize runner: %v", err)
	}

	results, err := runner.Run(context.Background(), opts)
	if err != nil {
		logger.Fatalf("batch rejected: %v", err)
	}

	summary := batch.Summarize(results)
	logger.Printf("done files=%d written=%d skipped=%d failed=%d",
		len(results), summary.Written, summary.Skipped, summary.Failed)
}

func loadAnonMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var paths map[string]string
	if err := json.Unmarshal(data, &paths); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return paths, nil
}
