package corsac

import (
	"time"

	"go.uber.org/zap"
)

// Defaults for Config fields. All sizes are bytes unless noted.
const (
	// DefaultMaxWidth and DefaultMaxHeight bound output dimensions when
	// neither Config nor Options say otherwise (a 4K display box).
	DefaultMaxWidth  = 3840
	DefaultMaxHeight = 2160

	// DefaultMaxInputBytes rejects pathological uploads before decoding.
	DefaultMaxInputBytes = 128 << 20

	// DefaultMaxPixels rejects sources above ~67 megapixels before any pixel
	// buffer is allocated.
	DefaultMaxPixels = 1 << 26

	// DefaultLargeSurfaceBytes is the decoded-surface footprint (width x
	// height x 4) above which the multistep strategy kicks in. 64 MiB is
	// roughly a 16.7 MP RGBA surface.
	DefaultLargeSurfaceBytes = 64 << 20

	// DefaultHugeSurfaceBytes switches to the chunked strategy. 192 MiB is
	// roughly a 50 MP RGBA surface.
	DefaultHugeSurfaceBytes = 192 << 20

	// DefaultChunkEdge is the square tile edge, in source pixels, for the
	// chunked strategy.
	DefaultChunkEdge = 2048

	// DefaultYieldEvery is how many tiles the chunked strategy renders
	// between cooperative yields.
	DefaultYieldEvery = 4

	// DefaultAccelPixelThreshold is the source pixel count above which the
	// accelerated kernel is attempted without an explicit request.
	DefaultAccelPixelThreshold = 4 << 20

	// DefaultAccelLoadTimeout bounds the wait for the acceleration module.
	DefaultAccelLoadTimeout = 500 * time.Millisecond

	// DefaultPreviewEdge is the bounding edge of generated previews.
	DefaultPreviewEdge = 256
)

// Quality knob defaults, all in [0, 1].
const (
	// DefaultQualityHigh is the center of the complexity-biased base quality.
	DefaultQualityHigh = 0.90

	// DefaultQualityMin and DefaultQualityMax clamp the base quality.
	DefaultQualityMin = 0.70
	DefaultQualityMax = 0.98

	// DefaultQualitySearchFloor is the lowest quality the budget search will
	// try. Below this, output artifacts outweigh any byte savings.
	DefaultQualitySearchFloor = 0.30

	// DefaultConservativeQuality is the retry quality after an encoder
	// rejects its parameters.
	DefaultConservativeQuality = 0.80

	// DefaultBudgetTolerance brackets an acceptable landing zone around the
	// byte budget: within budget x (1 ± tolerance) the search stops.
	DefaultBudgetTolerance = 0.05

	// DefaultPreviewQuality is the encoder quality for previews.
	DefaultPreviewQuality = 0.60
)

// maxSearchAttempts bounds the binary search after the first encode.
const maxSearchAttempts = 5

// Config holds the process-wide knobs shared by every invocation of a
// Pipeline. The zero value is usable: normalize fills in the defaults above.
type Config struct {
	// MaxWidth and MaxHeight are the hard output ceilings. Per-invocation
	// Options may shrink the box but never exceed it.
	MaxWidth  int
	MaxHeight int

	// MaxInputBytes is the input byte-size ceiling, checked before decode.
	MaxInputBytes int64

	// MaxPixels is the source pixel-count ceiling, checked against the image
	// header before any pixel buffer is allocated.
	MaxPixels int64

	// LargeSurfaceBytes and HugeSurfaceBytes drive strategy selection on the
	// decoded surface footprint (width x height x 4).
	LargeSurfaceBytes int64
	HugeSurfaceBytes  int64

	// ChunkEdge is the square tile edge in source pixels.
	ChunkEdge int

	// YieldEvery is the tile interval between cooperative yields.
	YieldEvery int

	// Quality knobs. See the Default* constants.
	QualityHigh         float64
	QualityMin          float64
	QualityMax          float64
	QualitySearchFloor  float64
	ConservativeQuality float64
	BudgetTolerance     float64

	// PreviewEdge and PreviewQuality shape GeneratePreview output.
	PreviewEdge    int
	PreviewQuality float64

	// AccelPixelThreshold auto-enables the accelerated kernel for sources at
	// or above this pixel count. Options.PreferAcceleration bypasses it.
	AccelPixelThreshold int64

	// AccelLoadTimeout bounds LoadAccelerator.
	AccelLoadTimeout time.Duration

	// Accelerator is the optional shared acceleration handle. Construct it
	// once at startup with LoadAccelerator and pass it to every Pipeline;
	// nil means software-only.
	Accelerator *Accelerator

	// Offload runs the heavy resize and encode stages on a dedicated worker
	// goroutine so the calling goroutine stays responsive between progress
	// checkpoints. When false, stages run inline.
	Offload bool

	// Logger receives fallback and diagnostic events. nil means no logging.
	Logger *zap.Logger
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		MaxWidth:            DefaultMaxWidth,
		MaxHeight:           DefaultMaxHeight,
		MaxInputBytes:       DefaultMaxInputBytes,
		MaxPixels:           DefaultMaxPixels,
		LargeSurfaceBytes:   DefaultLargeSurfaceBytes,
		HugeSurfaceBytes:    DefaultHugeSurfaceBytes,
		ChunkEdge:           DefaultChunkEdge,
		YieldEvery:          DefaultYieldEvery,
		QualityHigh:         DefaultQualityHigh,
		QualityMin:          DefaultQualityMin,
		QualityMax:          DefaultQualityMax,
		QualitySearchFloor:  DefaultQualitySearchFloor,
		ConservativeQuality: DefaultConservativeQuality,
		BudgetTolerance:     DefaultBudgetTolerance,
		PreviewEdge:         DefaultPreviewEdge,
		PreviewQuality:      DefaultPreviewQuality,
		AccelPixelThreshold: DefaultAccelPixelThreshold,
		AccelLoadTimeout:    DefaultAccelLoadTimeout,
		Offload:             true,
	}
}

// normalize fills zero fields with defaults so a partially populated Config
// behaves like DefaultConfig for the fields the caller left alone.
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.MaxWidth <= 0 {
		c.MaxWidth = d.MaxWidth
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = d.MaxHeight
	}
	if c.MaxInputBytes <= 0 {
		c.MaxInputBytes = d.MaxInputBytes
	}
	if c.MaxPixels <= 0 {
		c.MaxPixels = d.MaxPixels
	}
	if c.LargeSurfaceBytes <= 0 {
		c.LargeSurfaceBytes = d.LargeSurfaceBytes
	}
	if c.HugeSurfaceBytes <= 0 {
		c.HugeSurfaceBytes = d.HugeSurfaceBytes
	}
	if c.ChunkEdge <= 0 {
		c.ChunkEdge = d.ChunkEdge
	}
	if c.YieldEvery <= 0 {
		c.YieldEvery = d.YieldEvery
	}
	if c.QualityHigh <= 0 {
		c.QualityHigh = d.QualityHigh
	}
	if c.QualityMin <= 0 {
		c.QualityMin = d.QualityMin
	}
	if c.QualityMax <= 0 {
		c.QualityMax = d.QualityMax
	}
	if c.QualitySearchFloor <= 0 {
		c.QualitySearchFloor = d.QualitySearchFloor
	}
	if c.ConservativeQuality <= 0 {
		c.ConservativeQuality = d.ConservativeQuality
	}
	if c.BudgetTolerance <= 0 {
		c.BudgetTolerance = d.BudgetTolerance
	}
	if c.PreviewEdge <= 0 {
		c.PreviewEdge = d.PreviewEdge
	}
	if c.PreviewQuality <= 0 {
		c.PreviewQuality = d.PreviewQuality
	}
	if c.AccelPixelThreshold <= 0 {
		c.AccelPixelThreshold = d.AccelPixelThreshold
	}
	if c.AccelLoadTimeout <= 0 {
		c.AccelLoadTimeout = d.AccelLoadTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
