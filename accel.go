package corsac

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

// errAccelUnavailable marks acceleration failures. The pipeline absorbs it by
// falling back to the software engine; it never reaches Process callers.
var errAccelUnavailable = errors.New("acceleration unavailable")

// Required exports of an acceleration module.
const (
	exportResize  = "resize_rgba"
	exportAlloc   = "alloc_memory"
	exportDealloc = "dealloc_memory"
)

// Optional exports probed once at load.
const (
	exportResizeNearest = "resize_rgba_nearest"
	exportResizeLanczos = "resize_rgba_lanczos"
	exportResizeGamma   = "resize_rgba_gamma_bilinear"
	exportLastError     = "get_last_error"
)

// Status codes returned by the module's resize entry points.
const (
	accelStatusOK          = 0
	accelStatusNullPointer = 1
	accelStatusInvalidSize = 2
	accelStatusOverflow    = 3
	accelStatusMemory      = 4
	accelStatusAlignment   = 5
	accelStatusOverlap     = 6
)

const maxGuestErrLen = 256

func accelStatusText(code int32) string {
	switch code {
	case accelStatusNullPointer:
		return "null pointer"
	case accelStatusInvalidSize:
		return "invalid dimensions"
	case accelStatusOverflow:
		return "size overflow"
	case accelStatusMemory:
		return "guest out of memory"
	case accelStatusAlignment:
		return "misaligned buffer"
	case accelStatusOverlap:
		return "overlapping buffers"
	default:
		return fmt.Sprintf("status %d", code)
	}
}

// Capabilities reports which optional kernels an acceleration module exports.
// Probed once at load; modules cannot grow capabilities afterward.
type Capabilities struct {
	Nearest       bool
	Lanczos       bool
	GammaBilinear bool
	LastError     bool
}

// accelResizer is the seam between the pipeline and the WebAssembly bridge.
type accelResizer interface {
	resizeRGBA(ctx context.Context, src *image.NRGBA, dstW, dstH int, opts Options) (*image.NRGBA, error)
}

// Accelerator executes resize kernels inside a WebAssembly module via the
// wazero runtime. The module contract: resize entry points take
// (src_ptr, src_w, src_h, dst_ptr, dst_w, dst_h) and return an i32 status,
// pixels cross the boundary as tightly packed RGBA8, alloc_memory returns 0
// on guest allocation failure, and get_last_error (when exported) returns a
// pointer to a NUL-terminated diagnostic in module memory.
//
// An Accelerator is safe to share between pipelines; calls into the module
// instance are serialized.
type Accelerator struct {
	mu      sync.Mutex
	closed  bool
	runtime wazero.Runtime
	module  api.Module
	mem     api.Memory
	caps    Capabilities
	logger  *zap.Logger

	resize        api.Function
	resizeNearest api.Function
	resizeLanczos api.Function
	resizeGamma   api.Function
	alloc         api.Function
	dealloc       api.Function
	lastError     api.Function
}

// LoadAccelerator compiles and instantiates a WebAssembly resize module and
// probes its capabilities. Loading is bounded by DefaultAccelLoadTimeout
// unless ctx carries an earlier deadline.
func LoadAccelerator(ctx context.Context, wasm []byte, logger *zap.Logger) (*Accelerator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loadCtx, cancel := context.WithTimeout(ctx, DefaultAccelLoadTimeout)
	defer cancel()

	r := wazero.NewRuntimeWithConfig(loadCtx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	wasi_snapshot_preview1.MustInstantiate(loadCtx, r)

	mod, err := r.Instantiate(loadCtx, wasm)
	if err != nil {
		_ = r.Close(context.Background())
		return nil, fmt.Errorf("corsac: instantiate acceleration module: %w", err)
	}

	a := &Accelerator{
		runtime: r,
		module:  mod,
		mem:     mod.Memory(),
		logger:  logger,

		resize:        mod.ExportedFunction(exportResize),
		resizeNearest: mod.ExportedFunction(exportResizeNearest),
		resizeLanczos: mod.ExportedFunction(exportResizeLanczos),
		resizeGamma:   mod.ExportedFunction(exportResizeGamma),
		alloc:         mod.ExportedFunction(exportAlloc),
		dealloc:       mod.ExportedFunction(exportDealloc),
		lastError:     mod.ExportedFunction(exportLastError),
	}
	if a.mem == nil || a.resize == nil || a.alloc == nil || a.dealloc == nil {
		_ = r.Close(context.Background())
		return nil, fmt.Errorf("corsac: acceleration module missing required exports (%s, %s, %s, memory)",
			exportResize, exportAlloc, exportDealloc)
	}
	a.caps = Capabilities{
		Nearest:       a.resizeNearest != nil,
		Lanczos:       a.resizeLanczos != nil,
		GammaBilinear: a.resizeGamma != nil,
		LastError:     a.lastError != nil,
	}
	logger.Info("acceleration module loaded",
		zap.Bool("nearest", a.caps.Nearest),
		zap.Bool("lanczos", a.caps.Lanczos),
		zap.Bool("gamma_bilinear", a.caps.GammaBilinear))
	return a, nil
}

// Ready reports whether the accelerator holds a live module. Safe on nil.
func (a *Accelerator) Ready() bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.module != nil && !a.closed
}

// Capabilities returns the kernel set probed at load. Safe on nil.
func (a *Accelerator) Capabilities() Capabilities {
	if a == nil {
		return Capabilities{}
	}
	return a.caps
}

// Close tears down the module and its runtime. Safe on nil and idempotent.
func (a *Accelerator) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.runtime == nil {
		return nil
	}
	err := a.runtime.Close(ctx)
	a.module = nil
	a.runtime = nil
	return err
}

// kernelFor picks the most specific exported kernel matching the request.
// Nearest and Lanczos intents degrade to the baseline kernel when their
// exports are absent. A linear-light request does not degrade: the baseline
// kernel filters in gamma space, so the software engine handles it instead.
func (a *Accelerator) kernelFor(opts Options) (api.Function, string, error) {
	if opts.GammaCorrect {
		if a.resizeGamma == nil {
			return nil, "", fmt.Errorf("%w: module exports no linear-light kernel", errAccelUnavailable)
		}
		return a.resizeGamma, exportResizeGamma, nil
	}
	switch opts.Algorithm {
	case AlgoNearest:
		if a.resizeNearest != nil {
			return a.resizeNearest, exportResizeNearest, nil
		}
	case AlgoLanczos:
		if a.resizeLanczos != nil {
			return a.resizeLanczos, exportResizeLanczos, nil
		}
	}
	return a.resize, exportResize, nil
}

// resizeRGBA runs one whole-surface resize inside the module: allocate guest
// buffers, copy pixels in, call the kernel, copy pixels out, free.
func (a *Accelerator) resizeRGBA(ctx context.Context, src *image.NRGBA, dstW, dstH int, opts Options) (*image.NRGBA, error) {
	if a == nil {
		return nil, errAccelUnavailable
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.module == nil {
		return nil, fmt.Errorf("%w: module closed", errAccelUnavailable)
	}

	fn, name, err := a.kernelFor(opts)
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	srcLen := int64(srcW) * int64(srcH) * 4
	dstLen := int64(dstW) * int64(dstH) * 4
	if srcLen <= 0 || dstLen <= 0 || srcLen > math.MaxUint32 || dstLen > math.MaxUint32 {
		return nil, fmt.Errorf("%w: surface exceeds module address space", errAccelUnavailable)
	}

	srcPtr, err := a.guestAlloc(ctx, uint32(srcLen))
	if err != nil {
		return nil, err
	}
	defer a.guestFree(ctx, srcPtr, uint32(srcLen))

	dstPtr, err := a.guestAlloc(ctx, uint32(dstLen))
	if err != nil {
		return nil, err
	}
	defer a.guestFree(ctx, dstPtr, uint32(dstLen))

	if err := a.writeSurface(src, srcPtr, srcW, srcH); err != nil {
		return nil, err
	}

	res, err := fn.Call(ctx, uint64(srcPtr), uint64(srcW), uint64(srcH), uint64(dstPtr), uint64(dstW), uint64(dstH))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errAccelUnavailable, name, err)
	}
	if len(res) != 1 {
		return nil, fmt.Errorf("%w: %s: unexpected result arity %d", errAccelUnavailable, name, len(res))
	}
	if status := int32(res[0]); status != accelStatusOK {
		return nil, fmt.Errorf("%w: %s: %s", errAccelUnavailable, name, a.guestError(ctx, accelStatusText(status)))
	}

	buf, ok := a.mem.Read(dstPtr, uint32(dstLen))
	if !ok {
		return nil, fmt.Errorf("%w: %s: result outside module memory", errAccelUnavailable, name)
	}
	out := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	// Read returns a view into guest memory; copy before the buffers are freed.
	copy(out.Pix, buf)
	return out, nil
}

func (a *Accelerator) guestAlloc(ctx context.Context, n uint32) (uint32, error) {
	res, err := a.alloc.Call(ctx, uint64(n))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errAccelUnavailable, exportAlloc, err)
	}
	if len(res) != 1 || uint32(res[0]) == 0 {
		return 0, fmt.Errorf("%w: %s: guest allocation of %d bytes failed", errAccelUnavailable, exportAlloc, n)
	}
	return uint32(res[0]), nil
}

func (a *Accelerator) guestFree(ctx context.Context, ptr, n uint32) {
	if ptr == 0 {
		return
	}
	if _, err := a.dealloc.Call(ctx, uint64(ptr), uint64(n)); err != nil {
		a.logger.Debug("guest dealloc failed", zap.Error(err))
	}
}

// writeSurface copies src pixels into guest memory as tightly packed rows.
func (a *Accelerator) writeSurface(src *image.NRGBA, ptr uint32, w, h int) error {
	row := w * 4
	if src.Stride == row {
		if !a.mem.Write(ptr, src.Pix[:h*row]) {
			return fmt.Errorf("%w: source outside module memory", errAccelUnavailable)
		}
		return nil
	}
	for y := 0; y < h; y++ {
		off := y * src.Stride
		if !a.mem.Write(ptr+uint32(y*row), src.Pix[off:off+row]) {
			return fmt.Errorf("%w: source outside module memory", errAccelUnavailable)
		}
	}
	return nil
}

// guestError reads the module's NUL-terminated diagnostic, appending it to
// the numeric status text. Falls back to the status text alone when the
// export is missing or the pointer is unreadable.
func (a *Accelerator) guestError(ctx context.Context, statusText string) string {
	if a.lastError == nil {
		return statusText
	}
	res, err := a.lastError.Call(ctx)
	if err != nil || len(res) != 1 {
		return statusText
	}
	ptr := uint32(res[0])
	size := a.mem.Size()
	if ptr == 0 || ptr >= size {
		return statusText
	}
	n := uint32(maxGuestErrLen)
	if size-ptr < n {
		n = size - ptr
	}
	buf, ok := a.mem.Read(ptr, n)
	if !ok {
		return statusText
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	if len(buf) == 0 {
		return statusText
	}
	return fmt.Sprintf("%s: %s", statusText, buf)
}
