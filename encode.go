package corsac

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"sync"
)

// Format identifies an output encoding.
type Format int

const (
	FormatJPEG Format = iota
	FormatPNG
	FormatWebP
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatWebP:
		return "webp"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// MIME returns the content type for bytes encoded in this format.
func (f Format) MIME() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// lossless reports whether quality search is meaningless for the format.
func (f Format) lossless() bool {
	return f == FormatPNG
}

// EncoderFunc encodes src at the given quality in [0, 1]. Lossless encoders
// ignore quality.
type EncoderFunc func(w io.Writer, src *image.NRGBA, quality float64) error

var (
	encoderMu sync.RWMutex
	encoders  = map[Format]EncoderFunc{
		FormatJPEG: encodeJPEG,
		FormatPNG:  encodePNG,
	}
	// probeCache memoizes per process whether a registered encoder actually
	// produced bytes for a 1x1 surface.
	probeCache sync.Map // Format -> bool
)

// RegisterEncoder installs or replaces the encoder for a format, mirroring
// image.RegisterFormat on the decode side. JPEG and PNG are built in; WebP
// has no standard library encoder, so callers that link one register it here
// and it becomes eligible for negotiation. Registering nil removes a
// previously registered encoder.
func RegisterEncoder(f Format, fn EncoderFunc) {
	encoderMu.Lock()
	encoders[f] = fn
	encoderMu.Unlock()
	probeCache.Delete(f)
}

// encoderFor returns a verified encoder for f, or nil when the format has no
// registered encoder or its probe failed.
func encoderFor(f Format) EncoderFunc {
	encoderMu.RLock()
	fn := encoders[f]
	encoderMu.RUnlock()
	if fn == nil {
		return nil
	}
	if ok, seen := probeCache.Load(f); seen {
		if !ok.(bool) {
			return nil
		}
		return fn
	}
	ok := probeEncoder(fn)
	probeCache.Store(f, ok)
	if !ok {
		return nil
	}
	return fn
}

func probeEncoder(fn EncoderFunc) bool {
	var buf bytes.Buffer
	err := fn(&buf, image.NewNRGBA(image.Rect(0, 0, 1, 1)), DefaultQualityHigh)
	return err == nil && buf.Len() > 0
}

// negotiateFormat picks the first format with a working encoder, trying the
// preference, then the fallback, then JPEG.
func negotiateFormat(preferred, fallback Format) (Format, EncoderFunc, error) {
	for _, f := range []Format{preferred, fallback, FormatJPEG} {
		if fn := encoderFor(f); fn != nil {
			return f, fn, nil
		}
	}
	return 0, nil, errf(KindEncodeFailure, "no encoder available for %s or %s", preferred, fallback)
}

// encodeJPEG maps quality onto the encoder's 1-100 scale. Opaque NRGBA and
// RGBA share a byte layout, so reinterpreting the surface skips the
// per-pixel color conversion inside the jpeg encoder.
func encodeJPEG(w io.Writer, src *image.NRGBA, quality float64) error {
	opts := &jpeg.Options{Quality: jpegQuality(quality)}
	if isOpaque(src) {
		rgba := &image.RGBA{Pix: src.Pix, Stride: src.Stride, Rect: src.Rect}
		return jpeg.Encode(w, rgba, opts)
	}
	return jpeg.Encode(w, src, opts)
}

func jpegQuality(q float64) int {
	n := int(math.Round(q * 100))
	if n < 1 {
		n = 1
	}
	if n > 100 {
		n = 100
	}
	return n
}

// encodePNG reduces the surface to the cheapest faithful representation
// before encoding: grayscale when every pixel is opaque with R == G == B,
// a palette when at most 256 distinct colors survive, full NRGBA otherwise.
// The opacity check matters: toGray has no alpha channel to keep.
func encodePNG(w io.Writer, src *image.NRGBA, _ float64) error {
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if isOpaque(src) && isGrayscale(src) {
		return enc.Encode(w, toGray(src))
	}
	if p := tryPalettize(src, 256); p != nil {
		return enc.Encode(w, p)
	}
	return enc.Encode(w, src)
}

// tryPalettize converts the image to indexed color, or returns nil when it
// holds more than maxColors distinct colors.
func tryPalettize(img *image.NRGBA, maxColors int) *image.Paletted {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()

	colorMap := make(map[[4]uint8]int)
	for y := 0; y < h; y++ {
		off := y * img.Stride
		for x := 0; x < w; x++ {
			i := off + x*4
			key := [4]uint8{img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]}
			colorMap[key]++
			if len(colorMap) > maxColors {
				return nil
			}
		}
	}

	palette := make([]color.Color, 0, len(colorMap))
	colorIndex := make(map[[4]uint8]uint8, len(colorMap))
	for c := range colorMap {
		colorIndex[c] = uint8(len(palette))
		palette = append(palette, color.NRGBA{R: c[0], G: c[1], B: c[2], A: c[3]})
	}

	paletted := image.NewPaletted(image.Rect(0, 0, w, h), palette)
	for y := 0; y < h; y++ {
		srcOff := y * img.Stride
		dstOff := y * paletted.Stride
		for x := 0; x < w; x++ {
			i := srcOff + x*4
			key := [4]uint8{img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]}
			paletted.Pix[dstOff+x] = colorIndex[key]
		}
	}
	return paletted
}
