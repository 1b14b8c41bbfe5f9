// Package imaging prepares captured photos for upload and for the detection
// history: sniff the format, decode, and re-encode as JPEG.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

const (
	// UploadQuality is the JPEG quality used for analysis uploads.
	UploadQuality = 90
	// HistoryQuality is the JPEG quality used for images kept in history.
	HistoryQuality = 80

	maxImageBytes = 20 << 20
)

// ErrUnsupportedImage is returned for files that are not JPEG, PNG or GIF.
var ErrUnsupportedImage = errors.New("unsupported image format")

// Format is a sniffed image container.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
)

// Sniff identifies the image format from the leading bytes.
func Sniff(head []byte) (Format, error) {
	switch {
	case len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF:
		return FormatJPEG, nil
	case len(head) >= 8 && bytes.Equal(head[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}):
		return FormatPNG, nil
	case len(head) >= 6 && (string(head[:6]) == "GIF87a" || string(head[:6]) == "GIF89a"):
		return FormatGIF, nil
	}
	return "", ErrUnsupportedImage
}

// IsCandidate reports whether path has an extension the watcher should pick up.
func IsCandidate(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// Decode parses raw image bytes in any supported format.
func Decode(data []byte) (image.Image, error) {
	format, err := Sniff(data)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(data)
	var img image.Image
	switch format {
	case FormatJPEG:
		img, err = jpeg.Decode(r)
	case FormatPNG:
		img, err = png.Decode(r)
	case FormatGIF:
		img, err = gif.Decode(r)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return img, nil
}

// Encode compresses img as JPEG at the given quality.
func Encode(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Recompress decodes data and re-encodes it as JPEG at quality.
func Recompress(data []byte, quality int) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Encode(img, quality)
}

// Load reads the photo at path and returns it ready for upload.
func Load(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxImageBytes {
		return nil, fmt.Errorf("%s is too large (%d bytes)", path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out, err := Recompress(data, UploadQuality)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}
