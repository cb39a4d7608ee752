package utils

import (
	"bufio"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
)

func TestSplitJpeg(t *testing.T) {
	// Construct a stream containing: [Garbage] [JPEG] [JPEG] [Garbage]
	// SOI (Start of Image): FF D8
	// EOI (End of Image):   FF D9

	first := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}
	second := []byte{0xFF, 0xD8, 0x04, 0xFF, 0xD9}

	streamData := []byte{0x00, 0x00} // Garbage at start
	streamData = append(streamData, first...)
	streamData = append(streamData, second...)
	streamData = append(streamData, []byte{0x00, 0x00}...) // Garbage at end

	scanner := bufio.NewScanner(bytes.NewReader(streamData))
	scanner.Split(SplitJpeg)

	for i, want := range [][]byte{first, second} {
		if !scanner.Scan() {
			t.Fatalf("Expected token %d, got EOF", i)
		}
		if !bytes.Equal(scanner.Bytes(), want) {
			t.Errorf("Token %d: expected %X, got %X", i, want, scanner.Bytes())
		}
	}

	// The trailing garbage is not a JPEG
	if scanner.Scan() {
		t.Error("Expected only two tokens, found more")
	}
}

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	img.Set(1, 2, color.RGBA{R: 200, G: 10, B: 30, A: 255})
	return img
}

func TestDecodeFrame(t *testing.T) {
	var pngBuf, bmpBuf bytes.Buffer
	if err := png.Encode(&pngBuf, testImage()); err != nil {
		t.Fatal(err)
	}
	if err := bmp.Encode(&bmpBuf, testImage()); err != nil {
		t.Fatal(err)
	}

	for name, data := range map[string][]byte{"png": pngBuf.Bytes(), "bmp": bmpBuf.Bytes()} {
		t.Run(name, func(t *testing.T) {
			f, err := DecodeFrame(data)
			if err != nil {
				t.Fatalf("DecodeFrame failed: %v", err)
			}
			if err := f.Validate(); err != nil {
				t.Fatalf("Decoded frame invalid: %v", err)
			}
			if f.Width != 4 || f.Height != 3 {
				t.Errorf("Expected 4x3, got %dx%d", f.Width, f.Height)
			}
			i := (2*f.Width + 1) * 4
			if f.Pix[i] != 200 || f.Pix[i+1] != 10 || f.Pix[i+2] != 30 {
				t.Errorf("Pixel (1,2) = %v, want 200,10,30", f.Pix[i:i+3])
			}
		})
	}

	if _, err := DecodeFrame([]byte("not an image")); err == nil {
		t.Error("Expected error for garbage input")
	}
}

func TestExpandFrames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.JPG", "notes.txt", "c.webp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.png"), 0o755); err != nil {
		t.Fatal(err)
	}
	single := filepath.Join(t.TempDir(), "bg.png")
	if err := os.WriteFile(single, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ExpandFrames([]string{single, dir})
	if err != nil {
		t.Fatalf("ExpandFrames failed: %v", err)
	}
	want := []string{single, filepath.Join(dir, "a.JPG"), filepath.Join(dir, "b.png"), filepath.Join(dir, "c.webp")}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Entry %d = %s, want %s", i, got[i], want[i])
		}
	}

	if _, err := ExpandFrames([]string{filepath.Join(dir, "missing.png")}); err == nil {
		t.Error("Expected error for a missing path")
	}
}
