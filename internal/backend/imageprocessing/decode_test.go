package imageprocessing

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"
)

// createPNGHeader returns a PNG made of the signature and an IHDR chunk only,
// declaring an RGBA image of the given size without any pixel data.
func createPNGHeader(t *testing.T, width, height uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(pngSignature)

	chunk := make([]byte, 4+13)
	copy(chunk, "IHDR")
	binary.BigEndian.PutUint32(chunk[4:], width)
	binary.BigEndian.PutUint32(chunk[8:], height)
	chunk[12] = 8 // bit depth
	chunk[13] = 6 // RGBA

	if err := binary.Write(&buf, binary.BigEndian, uint32(13)); err != nil {
		t.Fatalf("failed to write chunk length: %v", err)
	}
	buf.Write(chunk)
	if err := binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk)); err != nil {
		t.Fatalf("failed to write chunk crc: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeBounded(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		maxPixels int
		wantErr   error
	}{
		{name: "within limit", data: createTestPNG(t, 4, 4), maxPixels: 16},
		{name: "declared size above limit", data: createPNGHeader(t, 60000, 60000), maxPixels: DefaultMaxPixels, wantErr: ErrImageTooLarge},
		{name: "one pixel over", data: createTestPNG(t, 4, 4), maxPixels: 15, wantErr: ErrImageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, _, err := decodeBounded(tt.data, tt.maxPixels)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || img == nil {
				t.Fatalf("decodeBounded error: %v", err)
			}
		})
	}
}

func TestDecodeBounded_GarbageHeader(t *testing.T) {
	if _, _, err := decodeBounded([]byte("not an image"), DefaultMaxPixels); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestCommands_RejectOversizedDeclaredImages(t *testing.T) {
	huge := createPNGHeader(t, 60000, 60000)
	scale, err := NewScaleCommand(map[string]any{"maxWidth": 1920, "maxHeight": 1080})
	if err != nil {
		t.Fatalf("NewScaleCommand error: %v", err)
	}
	crop, err := NewCropCommand(map[string]any{"width": 100, "height": 100})
	if err != nil {
		t.Fatalf("NewCropCommand error: %v", err)
	}

	for _, command := range []Command{scale, crop} {
		t.Run(command.Name(), func(t *testing.T) {
			if _, err := command.Execute(huge); !errors.Is(err, ErrImageTooLarge) {
				t.Fatalf("expected ErrImageTooLarge, got %v", err)
			}
		})
	}
}

func TestGetMaxPixelsParam(t *testing.T) {
	if got, err := getMaxPixelsParam(nil); err != nil || got != DefaultMaxPixels {
		t.Fatalf("expected default limit, got %d, %v", got, err)
	}
	if got, err := getMaxPixelsParam(map[string]any{"maxPixels": 100}); err != nil || got != 100 {
		t.Fatalf("expected configured limit, got %d, %v", got, err)
	}
	if _, err := getMaxPixelsParam(map[string]any{"maxPixels": 0}); err == nil {
		t.Fatal("expected error for zero limit")
	}
}
