package imageprocessing

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	xdraw "golang.org/x/image/draw"
)

// ScaleParams bounds the rendered size; zero means unbounded on that axis.
type ScaleParams struct {
	MaxWidth  int
	MaxHeight int
	Upscale   bool
	// MaxPixels limits both the source and the scaled image.
	MaxPixels int
}

func NewScaleParamsFromMap(params map[string]any) (*ScaleParams, error) {
	p := &ScaleParams{
		MaxWidth:  getIntParam(params, "maxWidth", 0),
		MaxHeight: getIntParam(params, "maxHeight", 0),
		Upscale:   getBoolParam(params, "upscale", false),
	}
	if p.MaxWidth < 0 || p.MaxHeight < 0 {
		return nil, fmt.Errorf("maxWidth and maxHeight must not be negative, got %dx%d", p.MaxWidth, p.MaxHeight)
	}
	if p.MaxWidth == 0 && p.MaxHeight == 0 {
		return nil, fmt.Errorf("at least one of maxWidth or maxHeight is required")
	}
	maxPixels, err := getMaxPixelsParam(params)
	if err != nil {
		return nil, err
	}
	p.MaxPixels = maxPixels
	return p, nil
}

// ScaleCommand fits an image into the configured bounds keeping its aspect ratio.
type ScaleCommand struct {
	name   string
	params *ScaleParams
}

func NewScaleCommand(params map[string]any) (Command, error) {
	typedParams, err := NewScaleParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &ScaleCommand{
		name:   "ScaleCommand",
		params: typedParams,
	}, nil
}

func (c *ScaleCommand) Name() string {
	return c.name
}

func (c *ScaleCommand) Execute(imageData []byte) ([]byte, error) {
	src, _, err := decodeBounded(imageData, c.params.MaxPixels)
	if err != nil {
		return nil, err
	}

	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	targetW, targetH := fitWithin(w, h, c.params.MaxWidth, c.params.MaxHeight)
	if targetW == w && targetH == h {
		return imageData, nil
	}
	if (targetW > w || targetH > h) && !c.params.Upscale {
		return imageData, nil
	}
	if err := checkPixels(targetW, targetH, c.params.MaxPixels); err != nil {
		return nil, err
	}

	slog.Debug("ScaleCommand: scaling image",
		"orig_width", w, "orig_height", h,
		"target_width", targetW, "target_height", targetH)

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode scaled image: %w", err)
	}
	return buf.Bytes(), nil
}

// fitWithin returns the largest size with the aspect ratio of w x h that fits
// maxW x maxH. A zero bound does not constrain its axis.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := 0.0
	if maxW > 0 {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 {
		if s := float64(maxH) / float64(h); scale == 0 || s < scale {
			scale = s
		}
	}
	return max(1, int(float64(w)*scale+0.5)), max(1, int(float64(h)*scale+0.5))
}

func init() {
	if err := DefaultRegistry.Register("ScaleCommand", NewScaleCommand); err != nil {
		panic(fmt.Sprintf("failed to register ScaleCommand: %v", err))
	}
}
