package corsac

import (
	"image"
	"math"
)

// Complexity sampling grid and the luminance spread treated as fully busy.
const (
	complexityGrid = 128
	complexityNorm = 80.0
)

// Complexity estimates how much fine detail a surface carries, in [0, 1].
// It is the standard deviation of BT.601 luminance over a stride-subsampled
// grid of at most complexityGrid samples per axis: busy photographic content
// saturates toward 1, flat synthetic fills stay near 0. The pipeline runs it
// on the resized surface, so detail removed by downscaling does not inflate
// the quality budget.
func Complexity(img *image.NRGBA) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	stepX := (w + complexityGrid - 1) / complexityGrid
	stepY := (h + complexityGrid - 1) / complexityGrid

	var sum, sumSq float64
	n := 0
	for y := 0; y < h; y += stepY {
		off := y * img.Stride
		for x := 0; x < w; x += stepX {
			i := off + x*4
			lum := 0.299*float64(img.Pix[i]) + 0.587*float64(img.Pix[i+1]) + 0.114*float64(img.Pix[i+2])
			sum += lum
			sumSq += lum * lum
			n++
		}
	}

	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Min(1, math.Sqrt(variance)/complexityNorm)
}

// ImageStats describes content characteristics that drive format and quality
// recommendations.
type ImageStats struct {
	// Width and Height in pixels.
	Width, Height int

	// HasAlpha indicates the image uses transparency.
	HasAlpha bool

	// IsGrayscale indicates all pixels have R == G == B.
	IsGrayscale bool

	// UniqueColors is the number of distinct colors (sampled for large images).
	UniqueColors int

	// Entropy measures information density (0-8 bits per channel).
	Entropy float64

	// EdgeDensity is the proportion of edge pixels (0-1). High values suggest
	// text or diagrams, low values photographs.
	EdgeDensity float64

	// MeanBrightness is the average luminance (0-255).
	MeanBrightness float64

	// Complexity is the detail estimate used by the quality model.
	Complexity float64

	// RecommendedFormat based on the analysis.
	RecommendedFormat Format

	// SuggestedQuality is the starting encode quality for this content.
	SuggestedQuality float64

	// EstimatedCompression is a rough achievable compression ratio.
	EstimatedCompression float64
}

// Analyze inspects a decoded image and reports content statistics. The
// pipeline itself only needs Complexity; the rest backs the CLI's analyze
// mode and callers that choose formats ahead of time.
func Analyze(img image.Image) ImageStats {
	src := toNRGBA(img)
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()

	stats := ImageStats{Width: w, Height: h}
	if w == 0 || h == 0 {
		return stats
	}

	// Single pass: histogram, brightness, alpha, grayness, sampled colors.
	histogram := [256]float64{}
	var brightSum float64
	colorSet := make(map[uint32]struct{})
	maxSample := 50000
	step := 1
	if w*h > maxSample {
		step = w * h / maxSample
	}

	allGray := true
	hasAlpha := false
	idx := 0

	for y := 0; y < h; y++ {
		off := y * src.Stride
		for x := 0; x < w; x++ {
			i := off + x*4
			r := src.Pix[i]
			g := src.Pix[i+1]
			b := src.Pix[i+2]
			a := src.Pix[i+3]

			lum := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			brightSum += lum
			histogram[int(lum+0.5)]++

			if a < 255 {
				hasAlpha = true
			}
			if r != g || g != b {
				allGray = false
			}
			if idx%step == 0 && len(colorSet) < 1024 {
				key := uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | uint32(a)
				colorSet[key] = struct{}{}
			}
			idx++
		}
	}

	n := float64(w * h)
	stats.HasAlpha = hasAlpha
	stats.IsGrayscale = allGray
	stats.UniqueColors = len(colorSet)
	stats.MeanBrightness = brightSum / n
	stats.Complexity = Complexity(src)
	stats.Entropy = computeEntropy(histogram[:], n)
	stats.EdgeDensity = computeEdgeDensity(src)

	stats.RecommendedFormat = recommendFormat(stats)
	stats.SuggestedQuality = baseQualityFor(stats.Complexity)
	stats.EstimatedCompression = estimateCompression(stats)

	return stats
}

// computeEntropy calculates Shannon entropy from a luminance histogram.
func computeEntropy(histogram []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	var entropy float64
	for _, count := range histogram {
		if count > 0 {
			p := count / total
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

// computeEdgeDensity uses a sampled Sobel operator to detect edges and
// returns the fraction of sampled pixels that are edges (0-1).
func computeEdgeDensity(img *image.NRGBA) float64 {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()

	if w < 3 || h < 3 {
		return 0
	}

	stepX := int(math.Max(1, float64(w)/200))
	stepY := int(math.Max(1, float64(h)/200))

	edgeCount := 0
	totalCount := 0
	threshold := 30.0 // Sobel magnitude treated as an edge.

	for y := 1; y < h-1; y += stepY {
		for x := 1; x < w-1; x += stepX {
			gx := lumAt(img, x+1, y-1) - lumAt(img, x-1, y-1) +
				2*lumAt(img, x+1, y) - 2*lumAt(img, x-1, y) +
				lumAt(img, x+1, y+1) - lumAt(img, x-1, y+1)

			gy := lumAt(img, x-1, y+1) - lumAt(img, x-1, y-1) +
				2*lumAt(img, x, y+1) - 2*lumAt(img, x, y-1) +
				lumAt(img, x+1, y+1) - lumAt(img, x+1, y-1)

			if math.Sqrt(gx*gx+gy*gy) > threshold {
				edgeCount++
			}
			totalCount++
		}
	}

	if totalCount == 0 {
		return 0
	}
	return float64(edgeCount) / float64(totalCount)
}

func lumAt(img *image.NRGBA, x, y int) float64 {
	off := y*img.Stride + x*4
	return 0.299*float64(img.Pix[off]) + 0.587*float64(img.Pix[off+1]) + 0.114*float64(img.Pix[off+2])
}

func recommendFormat(stats ImageStats) Format {
	if stats.HasAlpha {
		return FormatPNG
	}
	if stats.UniqueColors <= 256 {
		return FormatPNG
	}
	if stats.EdgeDensity > 0.3 && stats.UniqueColors < 1000 {
		// Screenshots, text, diagrams compress better losslessly.
		return FormatPNG
	}
	return FormatJPEG
}

func estimateCompression(stats ImageStats) float64 {
	if stats.RecommendedFormat == FormatPNG {
		if stats.UniqueColors <= 256 {
			return 5.0 + (256-float64(stats.UniqueColors))/50
		}
		if stats.IsGrayscale {
			return 3.0
		}
		return 2.0
	}

	base := 10.0
	if stats.Entropy > 7 {
		base = 5.0
	} else if stats.Entropy > 5 {
		base = 8.0
	}
	if stats.EdgeDensity > 0.2 {
		base *= 0.7
	}
	return base
}
