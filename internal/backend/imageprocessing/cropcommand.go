package imageprocessing

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	xdraw "golang.org/x/image/draw"
)

// CropParams is the size of the centered region to keep.
type CropParams struct {
	Width     int
	Height    int
	MaxPixels int
}

func NewCropParamsFromMap(params map[string]any) (*CropParams, error) {
	p := &CropParams{
		Width:  getIntParam(params, "width", 0),
		Height: getIntParam(params, "height", 0),
	}
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("width and height must be positive, got %dx%d", p.Width, p.Height)
	}
	maxPixels, err := getMaxPixelsParam(params)
	if err != nil {
		return nil, err
	}
	p.MaxPixels = maxPixels
	return p, nil
}

// CropCommand keeps the center of an image. Sides already smaller than the
// requested size are left as they are.
type CropCommand struct {
	name   string
	params *CropParams
}

func NewCropCommand(params map[string]any) (Command, error) {
	typedParams, err := NewCropParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &CropCommand{
		name:   "CropCommand",
		params: typedParams,
	}, nil
}

func (c *CropCommand) Name() string {
	return c.name
}

func (c *CropCommand) Execute(imageData []byte) ([]byte, error) {
	src, _, err := decodeBounded(imageData, c.params.MaxPixels)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	w, h := min(c.params.Width, bounds.Dx()), min(c.params.Height, bounds.Dy())
	if w == bounds.Dx() && h == bounds.Dy() {
		return imageData, nil
	}

	origin := image.Pt(bounds.Min.X+(bounds.Dx()-w)/2, bounds.Min.Y+(bounds.Dy()-h)/2)
	slog.Debug("CropCommand: cropping image",
		"orig_width", bounds.Dx(), "orig_height", bounds.Dy(),
		"crop_x", origin.X, "crop_y", origin.Y,
		"crop_width", w, "crop_height", h)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), src, origin, xdraw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode cropped image: %w", err)
	}
	return buf.Bytes(), nil
}

func init() {
	if err := DefaultRegistry.Register("CropCommand", NewCropCommand); err != nil {
		panic(fmt.Sprintf("failed to register CropCommand: %v", err))
	}
}
