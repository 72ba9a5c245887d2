package corsac

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Gamma-correct resampling. Interpolating gamma-encoded sRGB samples darkens
// midtones and bands smooth ramps; the fix is to linearize, filter in linear
// light at 16 bits, and re-encode. Piecewise sRGB transfer per IEC 61966-2-1.
const (
	srgbGamma       = 2.4
	srgbThreshold   = 0.04045
	linearThreshold = 0.0031308
	srgbLinearScale = 12.92
	srgbGammaScale  = 1.055
	srgbGammaOffset = 0.055
)

// srgbToLinear16 maps an 8-bit sRGB sample to 16-bit linear light.
var srgbToLinear16 = func() [256]uint16 {
	var lut [256]uint16
	for i := range lut {
		f := float64(i) / 255.0
		var l float64
		if f <= srgbThreshold {
			l = f / srgbLinearScale
		} else {
			l = math.Pow((f+srgbGammaOffset)/srgbGammaScale, srgbGamma)
		}
		lut[i] = uint16(l*65535.0 + 0.5)
	}
	return lut
}()

// linearToSRGB8 maps 16-bit linear light back to an 8-bit sRGB sample.
func linearToSRGB8(v uint16) uint8 {
	f := float64(v) / 65535.0
	var s float64
	if f <= linearThreshold {
		s = f * srgbLinearScale
	} else {
		s = srgbGammaScale*math.Pow(f, 1.0/srgbGamma) - srgbGammaOffset
	}
	return clampF(s * 255.0)
}

// toLinearRGBA64 converts the sr region of src into an origin-anchored,
// alpha-premultiplied, linear-light RGBA64 surface, which is what the draw
// scalers expect to operate on.
func toLinearRGBA64(src *image.NRGBA, sr image.Rectangle) *image.RGBA64 {
	w, h := sr.Dx(), sr.Dy()
	dst := image.NewRGBA64(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		srcOff := (sr.Min.Y+y)*src.Stride + sr.Min.X*4
		dstOff := y * dst.Stride
		for x := 0; x < w; x++ {
			si := srcOff + x*4
			a := uint32(src.Pix[si+3])
			r := (uint32(srgbToLinear16[src.Pix[si]]) * a) / 255
			g := (uint32(srgbToLinear16[src.Pix[si+1]]) * a) / 255
			b := (uint32(srgbToLinear16[src.Pix[si+2]]) * a) / 255

			di := dstOff + x*8
			dst.Pix[di] = uint8(r >> 8)
			dst.Pix[di+1] = uint8(r)
			dst.Pix[di+2] = uint8(g >> 8)
			dst.Pix[di+3] = uint8(g)
			dst.Pix[di+4] = uint8(b >> 8)
			dst.Pix[di+5] = uint8(b)
			a16 := a * 257
			dst.Pix[di+6] = uint8(a16 >> 8)
			dst.Pix[di+7] = uint8(a16)
		}
	}
	return dst
}

// fromLinearRGBA64 un-premultiplies and re-encodes a linear RGBA64 surface
// back to sRGB NRGBA.
func fromLinearRGBA64(lin *image.RGBA64) *image.NRGBA {
	w, h := lin.Bounds().Dx(), lin.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		srcOff := y * lin.Stride
		dstOff := y * dst.Stride
		for x := 0; x < w; x++ {
			si := srcOff + x*8
			r := uint32(lin.Pix[si])<<8 | uint32(lin.Pix[si+1])
			g := uint32(lin.Pix[si+2])<<8 | uint32(lin.Pix[si+3])
			b := uint32(lin.Pix[si+4])<<8 | uint32(lin.Pix[si+5])
			a := uint32(lin.Pix[si+6])<<8 | uint32(lin.Pix[si+7])

			di := dstOff + x*4
			if a == 0 {
				dst.Pix[di] = 0
				dst.Pix[di+1] = 0
				dst.Pix[di+2] = 0
				dst.Pix[di+3] = 0
				continue
			}
			dst.Pix[di] = linearToSRGB8(uint16(r * 0xffff / a))
			dst.Pix[di+1] = linearToSRGB8(uint16(g * 0xffff / a))
			dst.Pix[di+2] = linearToSRGB8(uint16(b * 0xffff / a))
			dst.Pix[di+3] = uint8(a >> 8)
		}
	}
	return dst
}

// scaleLinear resamples the sr region of src into a fresh w x h surface,
// filtering in linear light.
func scaleLinear(src *image.NRGBA, sr image.Rectangle, w, h int, scaler draw.Scaler) *image.NRGBA {
	lin := toLinearRGBA64(src, sr)
	out := image.NewRGBA64(image.Rect(0, 0, w, h))
	scaler.Scale(out, out.Bounds(), lin, lin.Bounds(), draw.Src, nil)
	return fromLinearRGBA64(out)
}
