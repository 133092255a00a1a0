// Package tiffconv converts stored identity documents to the grayscale
// LZW-compressed TIFFs registrars require. All conversion runs through an
// imagemagick subprocess; inputs are validated in-process first so a
// corrupt download fails with a format error instead of a cryptic
// subprocess exit.
//
// Conversion settings differ between the consolidated and nominee pipelines
// and must stay that way: registrars validated against the exact densities
// historically submitted.
package tiffconv

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Settings are the registrar-validated conversion parameters.
type Settings struct {
	// DensityDPI is the rasterization density for PDF input.
	DensityDPI int

	// BitDepth is the output depth; zero leaves the tool default.
	BitDepth int
}

// ConsolidatedSettings are the parameters for the AOF pipeline.
func ConsolidatedSettings() Settings {
	return Settings{DensityDPI: 200, BitDepth: 4}
}

// NomineeSettings are the parameters for the nominee pipeline.
func NomineeSettings() Settings {
	return Settings{DensityDPI: 144}
}

// Converter produces grayscale LZW TIFFs from stored documents.
type Converter struct {
	command string
	timeout time.Duration
	logger  ectologger.Logger
}

// NewConverter creates a converter that shells out to the given imagemagick
// command ("magick" or "convert") with a bounded timeout per invocation.
func NewConverter(command string, timeout time.Duration, logger ectologger.Logger) *Converter {
	if command == "" {
		command = "magick"
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Converter{
		command: command,
		timeout: timeout,
		logger:  logger,
	}
}

// Convert writes a TIFF rendition of src to destPath. A src that is already
// a .tif passes through untouched and its own path is returned.
func (c *Converter) Convert(ctx context.Context, src, destPath string, settings Settings) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "tiffconv.Converter.Convert")
	defer span.End()

	ext := strings.ToLower(filepath.Ext(src))
	if ext == ".tif" || ext == ".tiff" {
		return src, nil
	}

	start := time.Now()
	defer func() {
		metrics.ConversionDuration.WithLabelValues(strings.TrimPrefix(ext, ".")).Observe(time.Since(start).Seconds())
	}()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"source": src,
		"dest":   destPath,
	})

	var err error
	switch ext {
	case ".pdf":
		err = c.convertPDF(ctx, src, destPath, settings)
	default:
		err = c.convertRaster(ctx, src, destPath, settings)
	}
	if err != nil {
		log.WithError(err).Error("Failed to convert document to TIFF")
		return "", err
	}

	log.Debug("Converted document to TIFF")
	return destPath, nil
}

// convertPDF rasterizes a validated PDF through imagemagick into one
// combined grayscale TIFF at the pipeline's density.
func (c *Converter) convertPDF(ctx context.Context, src, destPath string, settings Settings) error {
	pageCount, err := api.PageCountFile(src)
	if err != nil {
		return fmt.Errorf("tiffconv: invalid pdf %s: %w", src, err)
	}
	if pageCount == 0 {
		return fmt.Errorf("tiffconv: pdf %s has no pages", src)
	}

	density := []string{"-density", strconv.Itoa(settings.DensityDPI)}
	return c.run(ctx, density, src, destPath, settings)
}

// convertRaster converts a decodable raster image (jpeg/png) to a
// grayscale LZW TIFF. The subprocess owns TIFF encoding; Go's tiff
// package decodes LZW but cannot write it.
func (c *Converter) convertRaster(ctx context.Context, src, destPath string, settings Settings) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("tiffconv: open %s: %w", src, err)
	}
	_, _, err = image.DecodeConfig(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("tiffconv: decode %s: %w", src, err)
	}

	return c.run(ctx, nil, src, destPath, settings)
}

// run invokes the converter command with the registrar-mandated grayscale
// and LZW arguments appended after any input-specific flags.
func (c *Converter) run(ctx context.Context, preArgs []string, src, destPath string, settings Settings) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append(append([]string{}, preArgs...), src, "-colorspace", "Gray")
	if settings.BitDepth > 0 {
		args = append(args, "-depth", strconv.Itoa(settings.BitDepth))
	}
	args = append(args, "-compress", "LZW", destPath)

	cmd := exec.CommandContext(ctx, c.command, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("tiffconv: conversion of %s timed out after %s", src, c.timeout)
		}
		return fmt.Errorf("tiffconv: %s failed: %w: %s", c.command, err, strings.TrimSpace(string(out)))
	}
	return nil
}
