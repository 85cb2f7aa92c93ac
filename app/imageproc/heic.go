package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// heifSupported and heifDecode are set by the init in heif_enabled.go when
// the binary is built with the heif tag. Probing once at startup mirrors a
// capability check rather than a per-call lookup.
var (
	heifSupported bool
	heifDecode    func(r io.Reader) (image.Image, error)
)

// HEIFSupported reports whether this build can decode HEIC/HEIF photos.
func HEIFSupported() bool {
	return heifSupported
}

// decodeTactic is one named attempt at opening a HEIC stream. HEIC files in
// the wild vary by producer, so decoding walks an ordered list of tactics
// and stops at the first success.
type decodeTactic struct {
	name string
	fn   func(data []byte, filename string) (image.Image, error)
}

var heicTactics = []decodeTactic{
	{"direct", decodeDirect},
	{"buffered", decodeBuffered},
	{"forced", decodeForced},
	{"temp file", decodeViaTempFile},
}

func decodeHEIC(data []byte, filename string) (image.Image, error) {
	if !heifSupported {
		return nil, fmt.Errorf("%s: %w", filename, ErrDecoderUnavailable)
	}

	for _, tactic := range heicTactics {
		img, err := tactic.fn(data, filename)
		if err != nil {
			slog.Debug("HEIC decode tactic failed", "file", filename, "tactic", tactic.name, "error", err)
			continue
		}
		slog.Info("HEIC decoded", "file", filename, "tactic", tactic.name)
		return img, nil
	}

	return nil, fmt.Errorf("%s: all decode tactics failed: %w", filename, ErrDecodeFailed)
}

func decodeDirect(data []byte, _ string) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func decodeBuffered(data []byte, _ string) (image.Image, error) {
	buffered := bytes.NewBuffer(nil)
	if _, err := io.Copy(buffered, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(buffered.Bytes()))
	return img, err
}

func decodeForced(data []byte, _ string) (image.Image, error) {
	return heifDecode(bytes.NewReader(data))
}

// decodeViaTempFile writes the bytes to a transient file with the original
// extension preserved and decodes from the path. The decoded pixels are in
// memory before the file is removed, and removal is guaranteed on every
// exit path.
func decodeViaTempFile(data []byte, filename string) (image.Image, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	tmp, err := os.CreateTemp("", "foodsync-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}
