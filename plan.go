package corsac

import "math"

// Strategy identifies how the engine walks from source to target surface.
type Strategy int

const (
	// StrategyDirect is a single resample pass. Cheapest; used when the
	// source is modest in size and ratio.
	StrategyDirect Strategy = iota
	// StrategyMultistep halves dimensions repeatedly before a final exact
	// pass, which filters large ratios better than one big pass.
	StrategyMultistep
	// StrategyChunked resamples fixed-size source tiles independently so no
	// more than one tile-sized intermediate is ever alive.
	StrategyChunked
)

// String returns the flag-style name of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyMultistep:
		return "multistep"
	case StrategyChunked:
		return "chunked"
	default:
		return "direct"
	}
}

// Plan is the per-invocation resize decision. Derived once, never mutated.
type Plan struct {
	// Width and Height are the planned output dimensions.
	Width  int
	Height int

	// Strategy is the engine walk.
	Strategy Strategy

	// UseAcceleration marks the plan for the accelerated kernel. The engine
	// still falls back to software transparently if the kernel fails.
	UseAcceleration bool
}

// planDimensions computes target output dimensions for a source inside the
// effective bounding box, preserving aspect ratio and never upscaling.
//
// The effective box is maxW x maxH shrunk by the display hint when one is
// given: producing more pixels than the consumer can show is wasted work.
// A source that already fits is returned unchanged. Otherwise both axes are
// scaled by min(effW/srcW, effH/srcH) and rounded to the nearest integer,
// floored at 1. Pure and deterministic; no failure mode.
func planDimensions(srcW, srcH, maxW, maxH, dispW, dispH int) (int, int) {
	effW, effH := maxW, maxH
	if dispW > 0 && dispW < effW {
		effW = dispW
	}
	if dispH > 0 && dispH < effH {
		effH = dispH
	}
	if effW <= 0 {
		effW = srcW
	}
	if effH <= 0 {
		effH = srcH
	}

	if srcW <= effW && srcH <= effH {
		return srcW, srcH
	}

	scale := math.Min(float64(effW)/float64(srcW), float64(effH)/float64(srcH))
	w := int(math.Max(1, math.Round(float64(srcW)*scale)))
	h := int(math.Max(1, math.Round(float64(srcH)*scale)))
	return w, h
}

// planStrategy picks the resize strategy from the decoded surface footprint
// and the scale ratio. Evaluated in order, first match wins:
//
//	footprint > huge threshold                          → chunked
//	footprint > large threshold OR either axis > 3x     → multistep
//	otherwise                                           → direct
//
// The footprint is width*height*4: the quantity chunking actually bounds.
func planStrategy(srcW, srcH, dstW, dstH int, largeBytes, hugeBytes int64) Strategy {
	footprint := int64(srcW) * int64(srcH) * 4
	if footprint > hugeBytes {
		return StrategyChunked
	}
	if footprint > largeBytes || srcW > 3*dstW || srcH > 3*dstH {
		return StrategyMultistep
	}
	return StrategyDirect
}

// plan derives the full resize plan for one invocation.
func (p *Pipeline) plan(srcW, srcH int, opts Options) Plan {
	maxW, maxH := p.cfg.MaxWidth, p.cfg.MaxHeight
	if opts.MaxWidth > 0 && opts.MaxWidth < maxW {
		maxW = opts.MaxWidth
	}
	if opts.MaxHeight > 0 && opts.MaxHeight < maxH {
		maxH = opts.MaxHeight
	}

	w, h := planDimensions(srcW, srcH, maxW, maxH, opts.DisplayWidth, opts.DisplayHeight)
	strategy := planStrategy(srcW, srcH, w, h, p.cfg.LargeSurfaceBytes, p.cfg.HugeSurfaceBytes)

	// Acceleration copies the whole surface into module memory, which would
	// defeat the chunked strategy's peak-memory bound.
	accel := p.accel != nil && strategy != StrategyChunked &&
		(opts.PreferAcceleration || int64(srcW)*int64(srcH) >= p.cfg.AccelPixelThreshold)

	return Plan{Width: w, Height: h, Strategy: strategy, UseAcceleration: accel}
}
