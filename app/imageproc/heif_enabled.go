//go:build heif

package imageproc

import (
	"image"

	"github.com/jdeng/goheif"
)

func init() {
	// "ftyp" sits at offset 4 in the ISO BMFF container shared by
	// .heic/.heif producers.
	image.RegisterFormat("heic", "????ftyp", goheif.Decode, goheif.DecodeConfig)

	heifSupported = true
	heifDecode = goheif.Decode
}
