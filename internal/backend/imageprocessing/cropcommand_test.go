package imageprocessing

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodeTestPNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestNewCropParamsFromMap(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{name: "valid", params: map[string]any{"width": 10, "height": 5}},
		{name: "missing height", params: map[string]any{"width": 10}, wantErr: true},
		{name: "zero width", params: map[string]any{"width": 0, "height": 5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCropParamsFromMap(tt.params)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewCropParamsFromMap() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCropCommand_CentersCrop(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 6, 4))
	marker := color.RGBA{R: 255, A: 255}
	src.Set(2, 1, marker)

	cmd, err := NewCropCommand(map[string]any{"width": 2, "height": 2})
	if err != nil {
		t.Fatalf("NewCropCommand error: %v", err)
	}
	out, err := cmd.Execute(encodeTestPNG(t, src))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Fatalf("expected 2x2 output, got %v", img.Bounds())
	}
	if got := color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA); got != marker {
		t.Fatalf("expected crop to start at the center, got %v", got)
	}
}

func TestCropCommand_SmallerImageUnchanged(t *testing.T) {
	data := encodeTestPNG(t, image.NewRGBA(image.Rect(0, 0, 3, 3)))
	cmd, err := NewCropCommand(map[string]any{"width": 10, "height": 10})
	if err != nil {
		t.Fatalf("NewCropCommand error: %v", err)
	}
	out, err := cmd.Execute(data)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("expected unchanged bytes for an image smaller than the crop")
	}
}
