// Package imageprep prepares report bitmaps for OCR.
package imageprep

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
)

type Options struct {
	MaxDimension int
	SharpenSigma float64
}

// Preprocessor orients, downscales, grayscales, stretches contrast and sharpens an image.
// Output is always PNG. The same input always yields the same bytes.
type Preprocessor struct {
	maxDimension int
	sigma        float64
}

func New(opts Options) *Preprocessor {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = 3000
	}
	if opts.SharpenSigma <= 0 {
		opts.SharpenSigma = 1.0
	}
	return &Preprocessor{maxDimension: opts.MaxDimension, sigma: opts.SharpenSigma}
}

func (p *Preprocessor) Preprocess(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, domain.WrapError(domain.ErrDocumentUnreadable, "decode image", err)
	}

	img := imaging.Fit(src, p.maxDimension, p.maxDimension, imaging.Lanczos)
	img = imaging.Grayscale(img)
	img = stretchContrast(img)
	img = imaging.Sharpen(img, p.sigma)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode preprocessed image: %w", err)
	}
	return buf.Bytes(), nil
}

// stretchContrast maps the occupied luminance range linearly onto 0..255.
// Levels held by fewer than 0.1% of pixels are treated as noise.
func stretchContrast(img *image.NRGBA) *image.NRGBA {
	var histogram [256]int
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			histogram[img.NRGBAAt(x, y).R]++
		}
	}

	threshold := bounds.Dx() * bounds.Dy() / 1000
	low, high := 255, 0
	for level, count := range histogram {
		if count == 0 || count < threshold {
			continue
		}
		if level < low {
			low = level
		}
		if level > high {
			high = level
		}
	}
	if high <= low {
		return img
	}

	var lut [256]uint8
	for level := range lut {
		switch {
		case level <= low:
			lut[level] = 0
		case level >= high:
			lut[level] = 255
		default:
			lut[level] = uint8((level - low) * 255 / (high - low))
		}
	}

	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		v := lut[c.R]
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}
