package corsac

import (
	"context"
	"image"
	"runtime"

	"golang.org/x/image/draw"
)

// Strategy execution. Direct resampling is a single whole-image pass.
// Multistep halves the surface with a cheap bilinear filter until it is
// within 2x of the target on both axes, then finishes with one exact pass;
// at most two intermediate surfaces are alive at any moment. Chunked renders
// the destination tile by tile so the working set stays bounded by the tile
// size rather than the source size, yielding the scheduler between batches.

// scalerFor maps an algorithm to its x/image scaler. Auto favors Catmull-Rom,
// which keeps edges crisp on photographic downscales.
func scalerFor(a Algorithm) draw.Scaler {
	switch a {
	case AlgoNearest:
		return draw.NearestNeighbor
	case AlgoBilinear:
		return draw.BiLinear
	default:
		return draw.CatmullRom
	}
}

// cropNRGBA copies the r region of src into a fresh origin-anchored image.
func cropNRGBA(src *image.NRGBA, r image.Rectangle) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	rowBytes := r.Dx() * 4
	for y := 0; y < r.Dy(); y++ {
		srcOff := (r.Min.Y+y-src.Rect.Min.Y)*src.Stride + (r.Min.X-src.Rect.Min.X)*4
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+rowBytes], src.Pix[srcOff:srcOff+rowBytes])
	}
	return dst
}

// scaleSurface resamples the sr region of src into a fresh w x h surface
// using the requested algorithm, in linear light when gamma is set. Lanczos
// runs in gamma space only; linear-light requests degrade to Catmull-Rom.
func scaleSurface(src *image.NRGBA, sr image.Rectangle, w, h int, algo Algorithm, gamma bool) *image.NRGBA {
	if gamma {
		return scaleLinear(src, sr, w, h, scalerFor(algo))
	}
	if algo == AlgoLanczos {
		region := src
		if sr != src.Bounds() || sr.Min != (image.Point{}) {
			region = cropNRGBA(src, sr)
		}
		return lanczosResize(region, w, h)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	scalerFor(algo).Scale(dst, dst.Bounds(), src, sr, draw.Src, nil)
	return dst
}

// halveSurface is the cheap intermediate pass of the multistep strategy.
func halveSurface(src *image.NRGBA, w, h int, gamma bool) *image.NRGBA {
	if gamma {
		return scaleLinear(src, src.Bounds(), w, h, draw.ApproxBiLinear)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// resizeSoftware executes the planned strategy on the CPU. onStep, when
// non-nil, receives coarse completion counts for progress accounting.
func resizeSoftware(ctx context.Context, cfg *Config, src *image.NRGBA, plan Plan, opts Options, onStep func(done, total int)) (*image.NRGBA, error) {
	switch plan.Strategy {
	case StrategyChunked:
		return resizeChunked(ctx, cfg, src, plan.Width, plan.Height, opts, onStep)
	case StrategyMultistep:
		return resizeMultistep(ctx, src, plan.Width, plan.Height, opts, onStep)
	default:
		out := resizeDirect(src, plan.Width, plan.Height, opts)
		if onStep != nil {
			onStep(1, 1)
		}
		return out, nil
	}
}

func resizeDirect(src *image.NRGBA, dstW, dstH int, opts Options) *image.NRGBA {
	return scaleSurface(src, src.Bounds(), dstW, dstH, opts.Algorithm, opts.GammaCorrect)
}

// halvingSteps reports how many intermediate passes the multistep strategy
// takes before its exact pass.
func halvingSteps(srcW, srcH, dstW, dstH int) int {
	steps := 0
	w, h := srcW, srcH
	for w > 2*dstW || h > 2*dstH {
		w = max(dstW, w/2)
		h = max(dstH, h/2)
		steps++
	}
	return steps
}

func resizeMultistep(ctx context.Context, src *image.NRGBA, dstW, dstH int, opts Options, onStep func(done, total int)) (*image.NRGBA, error) {
	total := halvingSteps(src.Bounds().Dx(), src.Bounds().Dy(), dstW, dstH) + 1
	cur := src
	done := 0
	for cur.Bounds().Dx() > 2*dstW || cur.Bounds().Dy() > 2*dstH {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nextW := max(dstW, cur.Bounds().Dx()/2)
		nextH := max(dstH, cur.Bounds().Dy()/2)
		cur = halveSurface(cur, nextW, nextH, opts.GammaCorrect)
		done++
		if onStep != nil {
			onStep(done, total)
		}
	}
	out := scaleSurface(cur, cur.Bounds(), dstW, dstH, opts.Algorithm, opts.GammaCorrect)
	done++
	if onStep != nil {
		onStep(done, total)
	}
	return out, nil
}

// chunk pairs a source tile with the destination rectangle it maps onto.
type chunk struct {
	src image.Rectangle
	dst image.Rectangle
}

// chunkRects tiles the source into edge-sized squares and maps each onto the
// destination with integer floor arithmetic. Every tile boundary maps through
// the same floor expression, so adjacent destination rectangles share exact
// edges: the tiles partition the destination with no seams and no
// double-rendered pixels. Tiles that collapse to zero destination area are
// still emitted and skipped at render time.
func chunkRects(srcW, srcH, dstW, dstH, edge int) []chunk {
	cols := (srcW + edge - 1) / edge
	rows := (srcH + edge - 1) / edge
	chunks := make([]chunk, 0, cols*rows)
	for sy := 0; sy < srcH; sy += edge {
		sh := min(edge, srcH-sy)
		dy0 := sy * dstH / srcH
		dy1 := (sy + sh) * dstH / srcH
		for sx := 0; sx < srcW; sx += edge {
			sw := min(edge, srcW-sx)
			dx0 := sx * dstW / srcW
			dx1 := (sx + sw) * dstW / srcW
			chunks = append(chunks, chunk{
				src: image.Rect(sx, sy, sx+sw, sy+sh),
				dst: image.Rect(dx0, dy0, dx1, dy1),
			})
		}
	}
	return chunks
}

// renderChunks rasterizes each chunk independently into dst. Chunks carry
// their own destination geometry, so render order does not affect the output.
// Every cfg.YieldEvery rendered tiles the loop checks the context and yields
// the scheduler so a long render cannot monopolize a CPU.
func renderChunks(ctx context.Context, cfg *Config, dst, src *image.NRGBA, chunks []chunk, opts Options, onStep func(done, total int)) error {
	total := 0
	for _, c := range chunks {
		if c.dst.Dx() > 0 && c.dst.Dy() > 0 {
			total++
		}
	}
	rendered := 0
	for _, c := range chunks {
		if c.dst.Dx() == 0 || c.dst.Dy() == 0 {
			continue
		}
		tile := scaleSurface(src, c.src, c.dst.Dx(), c.dst.Dy(), opts.Algorithm, opts.GammaCorrect)
		draw.Draw(dst, c.dst, tile, image.Point{}, draw.Src)
		rendered++
		if cfg.YieldEvery > 0 && rendered%cfg.YieldEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			runtime.Gosched()
		}
		if onStep != nil {
			onStep(rendered, total)
		}
	}
	return nil
}

func resizeChunked(ctx context.Context, cfg *Config, src *image.NRGBA, dstW, dstH int, opts Options, onStep func(done, total int)) (*image.NRGBA, error) {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	chunks := chunkRects(b.Dx(), b.Dy(), dstW, dstH, cfg.ChunkEdge)
	if err := renderChunks(ctx, cfg, dst, src, chunks, opts, onStep); err != nil {
		return nil, err
	}
	return dst, nil
}
