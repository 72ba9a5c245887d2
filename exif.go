package corsac

import (
	"encoding/binary"
	"image"

	"github.com/disintegration/imaging"
)

// Orientation describes an EXIF orientation tag value.
type Orientation int

const (
	OrientNormal      Orientation = 1
	OrientFlipH       Orientation = 2
	OrientRotate180   Orientation = 3
	OrientFlipV       Orientation = 4
	OrientTranspose   Orientation = 5 // Rotate 270 CW + flip H
	OrientRotate90CW  Orientation = 6
	OrientTransverse  Orientation = 7 // Rotate 90 CW + flip H
	OrientRotate270CW Orientation = 8
)

// ReadOrientation extracts the EXIF orientation tag from JPEG bytes.
// Returns OrientNormal (1) when the data is not a JPEG, carries no EXIF
// segment, or the tag is absent. Only the orientation tag is read; the full
// EXIF tree is never parsed.
func ReadOrientation(data []byte) Orientation {
	// SOI marker.
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return OrientNormal
	}

	// Walk segments looking for APP1 (0xFFE1), which carries EXIF.
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return OrientNormal
		}
		marker := data[pos+1]
		pos += 2

		// Padding bytes between segments.
		for marker == 0xFF && pos < len(data) {
			marker = data[pos]
			pos++
		}

		// SOS: entropy-coded data follows, no more metadata.
		if marker == 0xDA {
			return OrientNormal
		}

		if pos+2 > len(data) {
			return OrientNormal
		}
		segLen := int(binary.BigEndian.Uint16(data[pos:pos+2])) - 2
		pos += 2
		if segLen < 0 || pos+segLen > len(data) {
			return OrientNormal
		}

		if marker == 0xE1 {
			return orientationFromAPP1(data[pos : pos+segLen])
		}
		pos += segLen
	}
	return OrientNormal
}

// orientationFromAPP1 scans an APP1 payload for the TIFF orientation tag.
func orientationFromAPP1(seg []byte) Orientation {
	// "Exif\0\0" header precedes the TIFF structure.
	if len(seg) < 14 || string(seg[:4]) != "Exif" || seg[4] != 0 || seg[5] != 0 {
		return OrientNormal
	}

	tiff := seg[6:]
	if len(tiff) < 8 {
		return OrientNormal
	}

	var bo binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return OrientNormal
	}
	if bo.Uint16(tiff[2:4]) != 42 {
		return OrientNormal
	}

	ifd := int(bo.Uint32(tiff[4:8]))
	if ifd < 8 || ifd+2 > len(tiff) {
		return OrientNormal
	}

	entries := int(bo.Uint16(tiff[ifd : ifd+2]))
	ifd += 2

	for i := 0; i < entries; i++ {
		off := ifd + i*12
		if off+12 > len(tiff) {
			break
		}
		if bo.Uint16(tiff[off:off+2]) != 0x0112 {
			continue
		}
		// Orientation is a SHORT; anything else is malformed.
		if bo.Uint16(tiff[off+2:off+4]) != 3 {
			return OrientNormal
		}
		val := bo.Uint16(tiff[off+8 : off+10])
		if val >= 1 && val <= 8 {
			return Orientation(val)
		}
		return OrientNormal
	}
	return OrientNormal
}

// ApplyOrientation rotates and flips an image so it displays upright,
// producing an image with effective orientation 1.
func ApplyOrientation(img *image.NRGBA, orient Orientation) *image.NRGBA {
	switch orient {
	case OrientFlipH:
		return imaging.FlipH(img)
	case OrientRotate180:
		return imaging.Rotate180(img)
	case OrientFlipV:
		return imaging.FlipV(img)
	case OrientTranspose:
		return imaging.Transpose(img)
	case OrientRotate90CW:
		// imaging rotations are counter-clockwise.
		return imaging.Rotate270(img)
	case OrientTransverse:
		return imaging.Transverse(img)
	case OrientRotate270CW:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
