package corsac

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
)

// renderPreview downscales a decoded surface into a small JPEG suitable for
// display while the heavy stages run. Fit never upscales, so tiny sources
// pass through at their own size. Returns nil when encoding fails; previews
// are best effort and never abort the pipeline.
func renderPreview(src image.Image, edge int, quality float64) []byte {
	fitted := imaging.Fit(src, edge, edge, imaging.Linear)
	var buf bytes.Buffer
	if err := encodeJPEG(&buf, fitted, quality); err != nil {
		return nil
	}
	return buf.Bytes()
}
