package corsac

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	// Decoder registrations beyond the JPEG and PNG support linked in via the
	// encoders. WebP, BMP and TIFF decode but only re-encode through the
	// negotiated output formats.
	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// validateInput admits or rejects raw input bytes. Two ceilings apply in
// order: the raw byte size before anything parses the data, then the
// header-declared pixel count before any pixel buffer is allocated. A
// 100000x100000 header is rejected here at the cost of a few hundred bytes
// of header parsing, not a 40 GB decode.
func (p *Pipeline) validateInput(data []byte) (width, height int, err error) {
	if int64(len(data)) > p.cfg.MaxInputBytes {
		return 0, 0, errf(KindInputTooLarge, "input is %s, limit %s",
			humanBytes(int64(len(data))), humanBytes(p.cfg.MaxInputBytes))
	}
	if len(data) == 0 {
		return 0, 0, errf(KindDecodeFailure, "empty input")
	}

	ic, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, wrapErr(KindDecodeFailure, err, "read image header")
	}
	if ic.Width <= 0 || ic.Height <= 0 {
		return 0, 0, errf(KindDecodeFailure, "degenerate dimensions %dx%d", ic.Width, ic.Height)
	}
	pixels := int64(ic.Width) * int64(ic.Height)
	if pixels > p.cfg.MaxPixels {
		return 0, 0, errf(KindInputTooLarge, "%dx%d is %d pixels, limit %d",
			ic.Width, ic.Height, pixels, p.cfg.MaxPixels)
	}
	// The decode allocates pixels*4 bytes in one slice. The pixel ceiling
	// normally keeps that small, but the ceiling is configurable and int is
	// platform-sized, so the byte count must stay addressable on its own.
	if pixels > math.MaxInt/4 {
		return 0, 0, errf(KindResourceExhausted, "%dx%d surface is not addressable",
			ic.Width, ic.Height)
	}
	return ic.Width, ic.Height, nil
}

// decodeInput decodes validated bytes and corrects EXIF orientation, so the
// planner and engine always see upright pixels.
func decodeInput(data []byte) (*image.NRGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, wrapErr(KindDecodeFailure, err, "decode image")
	}
	src := toNRGBARef(img)
	if orient := ReadOrientation(data); orient > OrientNormal {
		src = ApplyOrientation(src, orient)
	}
	return src, nil
}

// formatForPath maps a file extension onto an output format.
func formatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG, true
	case ".png":
		return FormatPNG, true
	case ".webp":
		return FormatWebP, true
	default:
		return 0, false
	}
}

// ProcessFile reads inPath, processes it with opts, and writes the encoded
// result to outPath. A recognized image extension on outPath overrides
// opts.Format.
func (p *Pipeline) ProcessFile(ctx context.Context, inPath, outPath string, opts Options) (*Result, error) {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return nil, fmt.Errorf("corsac: read %q: %w", inPath, err)
	}
	if f, ok := formatForPath(outPath); ok {
		opts.Format = f
	}

	res, err := p.Process(ctx, data, opts)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("corsac: create %q: %w", outPath, err)
	}
	defer f.Close()
	if _, err := res.WriteTo(f); err != nil {
		return nil, fmt.Errorf("corsac: write %q: %w", outPath, err)
	}
	return res, nil
}
