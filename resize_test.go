package corsac

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
)

// ── Surface Scaling Tests ───────────────────────────────────────────────────

func TestScaleSurfaceDimensions(t *testing.T) {
	src := makeTestImage(400, 300)
	for _, algo := range []Algorithm{AlgoAuto, AlgoNearest, AlgoBilinear, AlgoLanczos} {
		out := scaleSurface(src, src.Bounds(), 200, 150, algo, false)
		if out.Bounds().Dx() != 200 || out.Bounds().Dy() != 150 {
			t.Fatalf("%v: got %v, want 200x150", algo, out.Bounds().Size())
		}
	}
}

func TestScaleSurfaceSolidStaysSolid(t *testing.T) {
	c := color.NRGBA{R: 200, G: 60, B: 10, A: 255}
	src := makeSolidImage(64, 64, c)

	out := scaleSurface(src, src.Bounds(), 16, 16, AlgoNearest, false)
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] != c.R || out.Pix[i+1] != c.G || out.Pix[i+2] != c.B || out.Pix[i+3] != c.A {
			t.Fatalf("pixel %d: nearest must not blend a solid surface, got %v",
				i/4, out.Pix[i:i+4])
		}
	}
}

func TestCropNRGBA(t *testing.T) {
	src := makeTestImage(100, 80)
	r := image.Rect(30, 20, 70, 60)

	crop := cropNRGBA(src, r)
	if crop.Bounds() != image.Rect(0, 0, 40, 40) {
		t.Fatalf("crop must be origin-anchored 40x40, got %v", crop.Bounds())
	}
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			want := src.NRGBAAt(30+x, 20+y)
			got := crop.NRGBAAt(x, y)
			if got != want {
				t.Fatalf("pixel (%d,%d): got %v, want %v", x, y, got, want)
			}
		}
	}
}

// ── Multistep Tests ─────────────────────────────────────────────────────────

func TestHalvingSteps(t *testing.T) {
	cases := []struct {
		srcW, srcH int
		dstW, dstH int
		want       int
	}{
		{6000, 4000, 3240, 2160, 0},
		{1000, 1000, 100, 100, 3},
		{300, 300, 100, 100, 1},
		{800, 600, 800, 600, 0},
		{1000, 100, 100, 100, 3},
	}
	for _, tc := range cases {
		got := halvingSteps(tc.srcW, tc.srcH, tc.dstW, tc.dstH)
		if got != tc.want {
			t.Fatalf("halvingSteps(%dx%d -> %dx%d): got %d, want %d",
				tc.srcW, tc.srcH, tc.dstW, tc.dstH, got, tc.want)
		}
	}
}

func TestResizeMultistepMatchesDirect(t *testing.T) {
	src := makeTestImage(800, 800)
	opts := DefaultOptions()

	multi, err := resizeMultistep(ctx(), src, 200, 200, opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	direct := resizeDirect(src, 200, 200, opts)

	if multi.Bounds() != direct.Bounds() {
		t.Fatalf("bounds differ: %v vs %v", multi.Bounds(), direct.Bounds())
	}
	if s := SSIMFast(multi, direct); s < 0.95 {
		t.Fatalf("multistep diverged from direct: SSIM %.4f", s)
	}
}

func TestResizeMultistepCancellation(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	src := makeTestImage(1000, 1000)
	_, err := resizeMultistep(cancelled, src, 100, 100, DefaultOptions(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// ── Chunked Tests ───────────────────────────────────────────────────────────

func TestChunkRectsPartitionDestination(t *testing.T) {
	const (
		srcW, srcH = 5000, 3000
		dstW, dstH = 1234, 789
	)
	chunks := chunkRects(srcW, srcH, dstW, dstH, 2048)

	covered := make([]uint8, dstW*dstH)
	for _, c := range chunks {
		for y := c.dst.Min.Y; y < c.dst.Max.Y; y++ {
			for x := c.dst.Min.X; x < c.dst.Max.X; x++ {
				covered[y*dstW+x]++
			}
		}
	}
	for i, n := range covered {
		if n != 1 {
			t.Fatalf("dst pixel (%d,%d) covered %d times, want exactly once",
				i%dstW, i/dstW, n)
		}
	}
}

func TestChunkRectsSourceCoverage(t *testing.T) {
	chunks := chunkRects(700, 500, 350, 250, 256)
	area := 0
	for _, c := range chunks {
		area += c.src.Dx() * c.src.Dy()
	}
	if area != 700*500 {
		t.Fatalf("source tiles cover %d pixels, want %d", area, 700*500)
	}
}

func TestChunkRectsEmitsZeroAreaTiles(t *testing.T) {
	// Shrinking 5000px into 2px collapses most tiles to zero destination
	// width. They must still appear, so the non-empty ones partition exactly.
	chunks := chunkRects(5000, 100, 2, 1, 2048)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 tiles, got %d", len(chunks))
	}
	zero, covered := 0, 0
	for _, c := range chunks {
		if c.dst.Dx() == 0 || c.dst.Dy() == 0 {
			zero++
			continue
		}
		covered += c.dst.Dx() * c.dst.Dy()
	}
	if zero == 0 {
		t.Fatal("expected at least one zero-area tile")
	}
	if covered != 2 {
		t.Fatalf("non-empty tiles cover %d pixels, want 2", covered)
	}
}

func TestRenderChunksOrderIndependent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkEdge = 128
	src := makeTestImage(500, 400)
	chunks := chunkRects(500, 400, 123, 97, cfg.ChunkEdge)

	forward := image.NewNRGBA(image.Rect(0, 0, 123, 97))
	if err := renderChunks(ctx(), &cfg, forward, src, chunks, DefaultOptions(), nil); err != nil {
		t.Fatal(err)
	}

	reversed := make([]chunk, len(chunks))
	for i, c := range chunks {
		reversed[len(chunks)-1-i] = c
	}
	backward := image.NewNRGBA(image.Rect(0, 0, 123, 97))
	if err := renderChunks(ctx(), &cfg, backward, src, reversed, DefaultOptions(), nil); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(forward.Pix, backward.Pix) {
		t.Fatal("render order changed the output")
	}
}

func TestResizeChunkedMatchesDirect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkEdge = 256
	src := makeTestImage(1024, 1024)
	opts := DefaultOptions()

	chunked, err := resizeChunked(ctx(), &cfg, src, 300, 300, opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	direct := resizeDirect(src, 300, 300, opts)

	if s := SSIMFast(chunked, direct); s < 0.95 {
		t.Fatalf("chunked diverged from direct: SSIM %.4f", s)
	}
}

func TestResizeChunkedTinyDestination(t *testing.T) {
	cfg := DefaultConfig()
	src := makeTestImage(5000, 100)

	out, err := resizeChunked(ctx(), &cfg, src, 2, 1, DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Bounds().Dx() != 2 || out.Bounds().Dy() != 1 {
		t.Fatalf("got %v, want 2x1", out.Bounds().Size())
	}
}

func TestResizeChunkedCancellation(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultConfig()
	cfg.ChunkEdge = 100
	src := makeTestImage(600, 600)

	_, err := resizeChunked(cancelled, &cfg, src, 150, 150, DefaultOptions(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// ── Dispatch Tests ──────────────────────────────────────────────────────────

func TestResizeSoftwareDispatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkEdge = 100
	opts := DefaultOptions()

	cases := []struct {
		name      string
		src       *image.NRGBA
		plan      Plan
		wantTotal int
	}{
		{"direct", makeTestImage(400, 300), Plan{Width: 200, Height: 150, Strategy: StrategyDirect}, 1},
		{"multistep", makeTestImage(1000, 1000), Plan{Width: 200, Height: 200, Strategy: StrategyMultistep}, 3},
		{"chunked", makeTestImage(600, 600), Plan{Width: 150, Height: 150, Strategy: StrategyChunked}, 36},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var lastDone, lastTotal int
			out, err := resizeSoftware(ctx(), &cfg, tc.src, tc.plan, opts, func(done, total int) {
				lastDone, lastTotal = done, total
			})
			if err != nil {
				t.Fatal(err)
			}
			if out.Bounds().Dx() != tc.plan.Width || out.Bounds().Dy() != tc.plan.Height {
				t.Fatalf("got %v, want %dx%d", out.Bounds().Size(), tc.plan.Width, tc.plan.Height)
			}
			if lastTotal != tc.wantTotal {
				t.Fatalf("total steps %d, want %d", lastTotal, tc.wantTotal)
			}
			if lastDone != lastTotal {
				t.Fatalf("final step %d/%d, progress must end complete", lastDone, lastTotal)
			}
		})
	}
}

// ── Linear-Light Tests ──────────────────────────────────────────────────────

func TestSRGBLUTRoundTrip(t *testing.T) {
	for v := 0; v < 256; v++ {
		got := linearToSRGB8(srgbToLinear16[v])
		if got != uint8(v) {
			t.Fatalf("sRGB %d -> linear %d -> sRGB %d, round trip must be exact",
				v, srgbToLinear16[v], got)
		}
	}
}

func TestLinearSurfaceRoundTripOpaque(t *testing.T) {
	src := makeTestImage(32, 32)
	back := fromLinearRGBA64(toLinearRGBA64(src, src.Bounds()))

	if !bytes.Equal(src.Pix, back.Pix) {
		t.Fatal("opaque surface must survive the linear round trip exactly")
	}
}

func TestLinearSurfaceZeroAlpha(t *testing.T) {
	src := makeSolidImage(8, 8, color.NRGBA{R: 200, G: 100, B: 50, A: 0})
	back := fromLinearRGBA64(toLinearRGBA64(src, src.Bounds()))

	for i, v := range back.Pix {
		if v != 0 {
			t.Fatalf("byte %d: fully transparent pixels must come back as zeros, got %d", i, v)
		}
	}
}

func TestScaleLinearBrightness(t *testing.T) {
	// A 1px black and white checkerboard averages to 50% linear light, which
	// is around sRGB 188. Averaging the encoded values instead gives 128.
	// Filtering in linear light must land near the former.
	src := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(0)
			if (x+y)%2 == 0 {
				v = 255
			}
			off := y*src.Stride + x*4
			src.Pix[off] = v
			src.Pix[off+1] = v
			src.Pix[off+2] = v
			src.Pix[off+3] = 0xff
		}
	}

	gammaSpace := halveSurface(src, 8, 8, false)
	linearLight := halveSurface(src, 8, 8, true)

	mean := func(img *image.NRGBA) float64 {
		sum := 0.0
		for i := 0; i < len(img.Pix); i += 4 {
			sum += float64(img.Pix[i])
		}
		return sum / float64(len(img.Pix)/4)
	}

	mg, ml := mean(gammaSpace), mean(linearLight)
	if ml-mg < 30 {
		t.Fatalf("linear-light mean %.1f should sit well above gamma-space mean %.1f", ml, mg)
	}
}

// ── Lanczos Tests ───────────────────────────────────────────────────────────

func TestLanczosResizeDimensions(t *testing.T) {
	src := makeTestImage(200, 150)
	out := lanczosResize(src, 100, 75)
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 75 {
		t.Fatalf("got %v, want 100x75", out.Bounds().Size())
	}
}

func TestLanczosResizePreservesContent(t *testing.T) {
	src := makeTestImage(200, 150)
	down := lanczosResize(src, 100, 75)
	back := lanczosResize(down, 200, 150)

	if s := SSIM(src, back); s < 0.5 {
		t.Fatalf("down and up round trip SSIM %.4f, structure lost", s)
	}
}

func TestLanczosKernel(t *testing.T) {
	if k := lanczosKernel(0); k != 1.0 {
		t.Fatalf("kernel at 0 is %f, want 1", k)
	}
	if k := lanczosKernel(1); k > 1e-9 {
		t.Fatalf("kernel at integer offset is %f, want ~0", k)
	}
	if k := lanczosKernel(3.5); k != 0 {
		t.Fatalf("kernel outside support is %f, want 0", k)
	}
}

func TestScaleSurfaceLanczosCropped(t *testing.T) {
	src := makeTestImage(300, 300)
	out := scaleSurface(src, image.Rect(100, 100, 200, 200), 50, 50, AlgoLanczos, false)
	if out.Bounds().Dx() != 50 || out.Bounds().Dy() != 50 {
		t.Fatalf("got %v, want 50x50", out.Bounds().Size())
	}
}

// ── Benchmarks ──────────────────────────────────────────────────────────────

func BenchmarkResizeDirect(b *testing.B) {
	src := makeTestImage(1920, 1080)
	opts := DefaultOptions()
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		resizeDirect(src, 800, 450, opts)
	}
}

func BenchmarkResizeMultistep(b *testing.B) {
	src := makeTestImage(4000, 3000)
	opts := DefaultOptions()
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := resizeMultistep(ctx(), src, 800, 600, opts, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLanczosResize(b *testing.B) {
	src := makeTestImage(1920, 1080)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		lanczosResize(src, 800, 450)
	}
}

func BenchmarkScaleLinear(b *testing.B) {
	src := makeTestImage(1920, 1080)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		scaleSurface(src, src.Bounds(), 800, 450, AlgoAuto, true)
	}
}
