package corsac

import (
	"fmt"
	"image"
	"io"
)

// Version is the library version.
const Version = "1.0.0"

// Algorithm selects the resample filter. The engine picks the most specific
// accelerated kernel matching the request and degrades to the baseline when
// the kernel is absent; the software engine honors the request exactly.
type Algorithm int

const (
	// AlgoAuto lets the engine choose (Catmull-Rom for software, bilinear
	// baseline for the accelerated path).
	AlgoAuto Algorithm = iota
	// AlgoNearest is nearest-neighbor: fastest, blocky. Useful for pixel art.
	AlgoNearest
	// AlgoBilinear is bilinear interpolation.
	AlgoBilinear
	// AlgoLanczos is Lanczos-3: sharpest downscales, most expensive.
	AlgoLanczos
)

// String returns the flag-style name of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case AlgoNearest:
		return "nearest"
	case AlgoBilinear:
		return "bilinear"
	case AlgoLanczos:
		return "lanczos"
	default:
		return "auto"
	}
}

// Stage describes what the pipeline is currently doing.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageValidating Stage = "validating"
	StageDecoding   Stage = "decoding"
	StagePreview    Stage = "preview"
	StagePlanning   Stage = "planning"
	StageResizing   Stage = "resizing"
	StageEncoding   Stage = "encoding"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Event is a progress report delivered on the Options.Events channel.
// Percent is monotonically non-decreasing across the events of one
// invocation; intermediate values may be coalesced when the consumer lags,
// but a later event never carries a smaller Percent than an earlier one.
// Preview is non-nil only for StagePreview events and holds the encoded
// preview bytes.
type Event struct {
	Stage   Stage
	Percent int
	Preview []byte
}

// Options configures a single Process invocation. The zero value is usable;
// DefaultOptions fills in the recommended format pair.
type Options struct {
	// MaxWidth and MaxHeight bound the output dimensions. 0 falls back to the
	// Config maxima. Aspect ratio is always preserved and the output is never
	// larger than the source.
	MaxWidth  int
	MaxHeight int

	// DisplayWidth and DisplayHeight hint at the consumer's viewport. When
	// set, the effective bounding box is clamped to them so the pipeline
	// never produces more pixels than the display can show.
	DisplayWidth  int
	DisplayHeight int

	// TargetBytes is the output byte budget. 0 disables the budget search:
	// the image is encoded once at the complexity-biased base quality.
	TargetBytes int64

	// Format is the preferred output format. Support is probed once per
	// process lifetime; unsupported formats negotiate down to Fallback.
	Format Format

	// Fallback is used when Format has no registered encoder.
	// The zero value falls back to JPEG.
	Fallback Format

	// Algorithm selects the resample filter.
	Algorithm Algorithm

	// GammaCorrect resamples in linear light instead of gamma-encoded sRGB,
	// avoiding the darkening and banding artifacts of naive interpolation.
	GammaCorrect bool

	// PreferAcceleration attempts the accelerated kernel even below the
	// configured auto-enable pixel threshold. A missing or failing
	// accelerator still falls back to the software engine.
	PreferAcceleration bool

	// EmitPreview generates a small low-quality rendition right after decode
	// and delivers it as a StagePreview event, ahead of the heavy stages.
	EmitPreview bool

	// Events receives progress events. Sends never block: when the channel
	// is full the event is dropped, so consumers must tolerate coalesced
	// values. Poll Pipeline.Progress for the cheap alternative.
	Events chan<- Event
}

// DefaultOptions returns sensible defaults for general use.
func DefaultOptions() Options {
	return Options{
		Format:    FormatJPEG,
		Fallback:  FormatPNG,
		Algorithm: AlgoAuto,
	}
}

// Result holds the processed image and its statistics. Ownership transfers
// to the caller; the pipeline keeps no reference after returning it.
type Result struct {
	// Data holds the encoded output bytes.
	Data []byte

	// Format is the negotiated output format.
	Format Format

	// Quality is the encoder quality parameter used for the final encode,
	// in [0, 1]. 0 for formats without a quality knob.
	Quality float64

	// EncodeAttempts counts encoder invocations spent hitting the budget.
	EncodeAttempts int

	// Strategy is the resize strategy the planner chose.
	Strategy Strategy

	// Accelerated reports whether the accelerated kernel produced the
	// resized surface. False when the software engine ran, including after
	// a transparent acceleration fallback.
	Accelerated bool

	// OriginalSize is the input byte length.
	OriginalSize int64

	// CompressedSize is the output byte length.
	CompressedSize int64

	// Ratio is OriginalSize / CompressedSize.
	Ratio float64

	// SavingsPercent is the percentage of bytes saved.
	SavingsPercent float64

	// OriginalDimensions is the decoded (post-orientation) width x height.
	OriginalDimensions image.Point

	// FinalDimensions is the output width x height.
	FinalDimensions image.Point
}

// WriteTo writes the encoded output to w.
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	if len(r.Data) == 0 {
		return 0, fmt.Errorf("corsac: no encoded data available")
	}
	n, err := w.Write(r.Data)
	return int64(n), err
}

// Bytes returns the encoded output bytes.
func (r *Result) Bytes() []byte {
	return r.Data
}

// String returns a human-readable summary of the processing result.
func (r *Result) String() string {
	accel := ""
	if r.Accelerated {
		accel = " | accel"
	}
	return fmt.Sprintf(
		"Corsac Result: %s | Q=%.2f | %s | %dx%d → %dx%d | %s → %s | Saved: %.1f%%%s",
		r.Format, r.Quality, r.Strategy,
		r.OriginalDimensions.X, r.OriginalDimensions.Y,
		r.FinalDimensions.X, r.FinalDimensions.Y,
		humanBytes(r.OriginalSize), humanBytes(r.CompressedSize),
		r.SavingsPercent, accel,
	)
}

// computeStats fills in the computed fields (Ratio, SavingsPercent) from sizes.
func (r *Result) computeStats() {
	if r.OriginalSize > 0 && r.CompressedSize > 0 {
		r.Ratio = float64(r.OriginalSize) / float64(r.CompressedSize)
		r.SavingsPercent = (1 - float64(r.CompressedSize)/float64(r.OriginalSize)) * 100
	}
}
