package imageprocessing

import (
	"bytes"
	"fmt"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// HasPNGSignature checks whether data begins with the PNG magic bytes.
func HasPNGSignature(data []byte) bool {
	return len(data) >= len(pngSignature) && bytes.Equal(data[:len(pngSignature)], pngSignature)
}

// PngConverterCommand re-encodes raster images and renders SVGs as PNG.
type PngConverterCommand struct {
	name              string
	svgFallbackWidth  int
	svgFallbackHeight int
	maxPixels         int
}

func NewPngConverterCommand(params map[string]any) (Command, error) {
	w := getIntParam(params, "svgFallbackWidth", 0)
	h := getIntParam(params, "svgFallbackHeight", 0)
	if w < 0 || h < 0 {
		return nil, fmt.Errorf("svg fallback size must not be negative, got %dx%d", w, h)
	}
	maxPixels, err := getMaxPixelsParam(params)
	if err != nil {
		return nil, err
	}
	return &PngConverterCommand{
		name:              "PngConverterCommand",
		svgFallbackWidth:  w,
		svgFallbackHeight: h,
		maxPixels:         maxPixels,
	}, nil
}

func (c *PngConverterCommand) Name() string {
	return c.name
}

func (c *PngConverterCommand) Execute(imageData []byte) ([]byte, error) {
	if HasPNGSignature(imageData) {
		return imageData, nil
	}

	if IsSVG(imageData) {
		w, h, ok := SVGSize(imageData)
		if !ok {
			w, h = c.svgFallbackWidth, c.svgFallbackHeight
		}
		if w <= 0 || h <= 0 {
			return nil, fmt.Errorf("SVG has no explicit size and no fallback size is configured")
		}
		if err := checkPixels(w, h, c.maxPixels); err != nil {
			return nil, err
		}
		slog.Debug("PngConverterCommand: rendering SVG", "width", w, "height", h)
		return RenderSVGToPNG(imageData, w, h)
	}

	img, format, err := decodeBounded(imageData, c.maxPixels)
	if err != nil {
		return nil, err
	}
	slog.Debug("PngConverterCommand: converting raster image", "current_format", format)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image to PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func init() {
	if err := DefaultRegistry.Register("PngConverterCommand", NewPngConverterCommand); err != nil {
		panic(fmt.Sprintf("failed to register PngConverterCommand: %v", err))
	}
}
