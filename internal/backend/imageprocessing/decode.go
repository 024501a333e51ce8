package imageprocessing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
)

// DefaultMaxPixels bounds the decoded size of an image, about 160 MB as RGBA.
const DefaultMaxPixels = 40_000_000

var ErrImageTooLarge = errors.New("image dimensions exceed pixel limit")

// getMaxPixelsParam reads "maxPixels", falling back to DefaultMaxPixels.
func getMaxPixelsParam(params map[string]any) (int, error) {
	maxPixels := getIntParam(params, "maxPixels", DefaultMaxPixels)
	if maxPixels <= 0 {
		return 0, fmt.Errorf("maxPixels must be positive, got %d", maxPixels)
	}
	return maxPixels, nil
}

func checkPixels(width, height, maxPixels int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}
	if int64(width)*int64(height) > int64(maxPixels) {
		return fmt.Errorf("%w: %dx%d > %d", ErrImageTooLarge, width, height, maxPixels)
	}
	return nil
}

// decodeBounded reads the image header first so that a small file declaring
// huge dimensions is rejected before any pixel buffer is allocated.
func decodeBounded(imageData []byte, maxPixels int) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image header: %w", err)
	}
	if err := checkPixels(cfg.Width, cfg.Height, maxPixels); err != nil {
		return nil, "", err
	}
	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}
