package utils

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresmejia3/pipscan/internal/types"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// FrameExtensions lists the still formats a frame directory may hold.
var FrameExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// DecodeFrame decodes an encoded still into an RGBA frame.
func DecodeFrame(data []byte) (types.Frame, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return types.Frame{}, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Empty() {
		return types.Frame{}, fmt.Errorf("decode image: empty %s", format)
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return types.Frame{Pix: rgba.Pix, Width: b.Dx(), Height: b.Dy()}, nil
}

// LoadFrame reads and decodes one still from disk.
func LoadFrame(path string) (types.Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Frame{}, err
	}
	f, err := DecodeFrame(data)
	if err != nil {
		return types.Frame{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ExpandFrames resolves the arguments into an ordered list of frame files.
// Directories contribute their supported images sorted by name; files are kept as given.
func ExpandFrames(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() || !FrameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			names = append(names, filepath.Join(p, e.Name()))
		}
		sort.Strings(names)
		out = append(out, names...)
	}
	return out, nil
}
