package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gen2brain/heic"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// maxDimension caps the longer side of transcoded images.
const maxDimension = 2048

const jpegQuality = 90

// needsTranscode reports whether browsers cannot be relied on to render the format.
func needsTranscode(contentType string) bool {
	switch strings.ToLower(contentType) {
	case "image/tiff", "image/bmp", "image/x-ms-bmp", "image/heic", "image/heif":
		return true
	default:
		return false
	}
}

// decodeHEIF is a variable so tests can stub the decoder.
var decodeHEIF = heic.Decode

// toJPEG decodes a raster image and re-encodes it as JPEG, shrinking it to maxDimension.
func toJPEG(data []byte, contentType string) ([]byte, error) {
	var (
		img image.Image
		err error
	)

	switch strings.ToLower(contentType) {
	case "image/tiff":
		img, err = tiff.Decode(bytes.NewReader(data))
	case "image/bmp", "image/x-ms-bmp":
		img, err = bmp.Decode(bytes.NewReader(data))
	case "image/heic", "image/heif":
		img, err = decodeHEIF(bytes.NewReader(data))
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", contentType, err)
	}

	img = fit(img, maxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func fit(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return img
	}

	if w >= h {
		h = h * limit / w
		w = limit
	} else {
		w = w * limit / h
		h = limit
	}

	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
