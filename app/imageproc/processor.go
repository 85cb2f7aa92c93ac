package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrDecoderUnavailable = errors.New("HEIF decoder not available in this build")
	ErrDecodeFailed       = errors.New("image decode failed")
)

const (
	// Maximum dimensions accepted by the vision API without wasting tokens.
	maxWidth  = 1920
	maxHeight = 1080

	jpegQuality = 85
)

var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".heic": true,
	".heif": true,
}

// IsSupportedFormat reports whether the filename extension is one the
// normalizer can handle.
func IsSupportedFormat(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Normalize converts raw photo bytes of any supported format into a JPEG
// buffer no larger than 1920x1080, suitable for the vision API. The color
// model is coerced to full color unless the source is grayscale.
func Normalize(data []byte, filename string) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !supportedExtensions[ext] {
		return nil, fmt.Errorf("%s: %w", filename, ErrUnsupportedFormat)
	}

	var img image.Image
	var err error

	if ext == ".heic" || ext == ".heif" {
		img, err = decodeHEIC(data, filename)
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("%s: %w: %v", filename, ErrDecodeFailed, err)
		}
	}
	if err != nil {
		return nil, err
	}

	img = coerceColorModel(img)
	img = fitEnvelope(img, filename)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode %s as JPEG: %w", filename, err)
	}

	return out.Bytes(), nil
}

// coerceColorModel keeps grayscale and plain full-color images as is and
// redraws everything else (paletted, alpha, CMYK) onto a full-color canvas.
func coerceColorModel(img image.Image) image.Image {
	switch img.(type) {
	case *image.Gray, *image.YCbCr, *image.RGBA:
		return img
	}

	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}

// fitEnvelope downscales the image so both dimensions fit within the
// maximum envelope, preserving aspect ratio. Images already within the
// envelope are returned untouched; nothing is ever upscaled.
func fitEnvelope(img image.Image, filename string) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width <= maxWidth && height <= maxHeight {
		return img
	}

	scaleW := float64(maxWidth) / float64(width)
	scaleH := float64(maxHeight) / float64(height)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}

	newWidth := int(float64(width)*scale + 0.5)
	newHeight := int(float64(height)*scale + 0.5)
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)

	slog.Info("Resized image", "file", filename, "width", newWidth, "height", newHeight)

	return dst
}
