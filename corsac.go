// Package corsac provides adaptive image resizing and compression: plan the
// output dimensions, pick a resize strategy sized to the decoded surface,
// then search encoder quality toward a byte budget.
//
// Corsac: Steppe Fox. Small and quick. Goes far on little.
//
// Unlike fixed resize-then-encode helpers, Corsac adapts per image:
//
//   - Dimension planning: aspect-preserving fit with display-capability hints
//   - Strategy selection: direct, multistep or chunked by surface footprint
//   - Optional WebAssembly kernels with transparent software fallback
//   - Complexity-biased quality with a byte-budget binary search
//   - Format negotiation with probed encoder support
//   - Progress that can be polled atomically or streamed from a channel
package corsac

import (
	"bytes"
	"context"
	"image"
	"sync/atomic"

	"go.uber.org/zap"
)

// Progress checkpoints. Each value marks the completion of its stage; the
// resize and encode stages interpolate within their spans.
const (
	progressValidated = 5
	progressDecoded   = 15
	progressPreview   = 20
	progressPlanned   = 25
	progressResizeLo  = 30
	progressResizeHi  = 70
	progressEncodeLo  = 75
	progressEncodeHi  = 95
	progressDone      = 100
)

// runState is the observable state of one Process invocation. Each run gets
// its own instance so a run abandoned by its caller can never scribble on the
// next run's telemetry.
type runState struct {
	stage   atomic.Value // Stage
	percent atomic.Int32
	closed  atomic.Bool
	events  chan<- Event
}

func newRunState(events chan<- Event) *runState {
	rs := &runState{events: events}
	rs.stage.Store(StageValidating)
	return rs
}

// checkpoint advances the run to a stage and percent and emits an event.
// Percent never moves backward: late or duplicate reports collapse upward.
// Event sends never block; a full channel drops the event and the consumer
// sees coalesced progress.
func (rs *runState) checkpoint(stage Stage, percent int, preview []byte) {
	if rs.closed.Load() {
		return
	}
	for {
		cur := rs.percent.Load()
		if int32(percent) <= cur {
			percent = int(cur)
			break
		}
		if rs.percent.CompareAndSwap(cur, int32(percent)) {
			break
		}
	}
	rs.stage.Store(stage)
	if rs.events != nil {
		select {
		case rs.events <- Event{Stage: stage, Percent: percent, Preview: preview}:
		default:
		}
	}
}

func (rs *runState) close() {
	rs.closed.Store(true)
}

// Pipeline is the adaptive resize and compression engine. One Pipeline serves
// one image at a time: a Process call that arrives while another is in flight
// fails fast with KindBusy instead of queueing unbounded pixel buffers.
// Construct with New; the zero value is not usable.
type Pipeline struct {
	cfg   Config
	accel accelResizer
	exec  *executor

	busy atomic.Bool
	run  atomic.Pointer[runState]
}

// New returns a Pipeline for the given configuration. Zero Config fields take
// their documented defaults.
func New(cfg Config) *Pipeline {
	cfg.normalize()
	p := &Pipeline{cfg: cfg}
	if cfg.Accelerator.Ready() {
		p.accel = cfg.Accelerator
	}
	if cfg.Offload {
		p.exec = newExecutor(offloadQueueDepth)
	}
	return p
}

// Close releases the pipeline's worker goroutine. It does not close a shared
// Accelerator; whoever loaded it owns it.
func (p *Pipeline) Close() {
	if p.exec != nil {
		p.exec.close()
	}
}

// State reports what the pipeline is doing right now, StageIdle between runs.
func (p *Pipeline) State() Stage {
	rs := p.run.Load()
	if rs == nil || rs.closed.Load() {
		return StageIdle
	}
	return rs.stage.Load().(Stage)
}

// Progress reports the current run's percent complete. Between runs it holds
// the final percent of the last run; zero before the first.
func (p *Pipeline) Progress() int {
	rs := p.run.Load()
	if rs == nil {
		return 0
	}
	return int(rs.percent.Load())
}

// Process runs the whole pipeline on encoded image bytes: validate, decode,
// plan, resize, encode toward the byte budget. The input slice is only read.
// Cancelling ctx abandons the run at the next suspension point; abandoned
// work finishes on the worker and its result is discarded.
func (p *Pipeline) Process(ctx context.Context, data []byte, opts Options) (*Result, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, errf(KindBusy, "another image is in flight")
	}
	defer p.busy.Store(false)

	rs := newRunState(opts.Events)
	p.run.Store(rs)
	defer rs.close()

	res, err := p.process(ctx, rs, data, opts)
	if err != nil {
		rs.checkpoint(StageFailed, 0, nil)
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, rs *runState, data []byte, opts Options) (*Result, error) {
	// Admission: byte ceiling, then header-declared pixel ceiling.
	if _, _, err := p.validateInput(data); err != nil {
		return nil, err
	}
	rs.checkpoint(StageValidating, progressValidated, nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := decodeInput(data)
	if err != nil {
		return nil, err
	}
	rs.checkpoint(StageDecoding, progressDecoded, nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.EmitPreview {
		if pv := renderPreview(src, p.cfg.PreviewEdge, p.cfg.PreviewQuality); pv != nil {
			rs.checkpoint(StagePreview, progressPreview, pv)
		}
	}

	b := src.Bounds()
	plan := p.plan(b.Dx(), b.Dy(), opts)
	rs.checkpoint(StagePlanning, progressPlanned, nil)

	// The heavy tail runs on the worker so this goroutine stays cheap to
	// schedule around while consumers poll progress.
	var (
		res      *Result
		stageErr error
	)
	work := func() {
		res, stageErr = p.transform(ctx, rs, src, plan, opts, int64(len(data)))
	}
	if err := p.offload(ctx, work); err != nil {
		return nil, err
	}
	if stageErr != nil {
		return nil, stageErr
	}

	rs.checkpoint(StageDone, progressDone, nil)
	return res, nil
}

func (p *Pipeline) offload(ctx context.Context, fn func()) error {
	if p.exec == nil {
		fn()
		return nil
	}
	return p.exec.run(ctx, fn)
}

// transform is the heavy tail of a run: resize per the plan, estimate
// complexity on the surface that will be encoded, negotiate a format, and
// fit the byte budget.
func (p *Pipeline) transform(ctx context.Context, rs *runState, src *image.NRGBA, plan Plan, opts Options, originalSize int64) (*Result, error) {
	b := src.Bounds()
	srcW, srcH := b.Dx(), b.Dy()

	onStep := func(done, total int) {
		if total <= 0 {
			return
		}
		pct := progressResizeLo + (progressResizeHi-progressResizeLo)*done/total
		rs.checkpoint(StageResizing, pct, nil)
	}

	resized := src
	accelerated := false
	if plan.Width != srcW || plan.Height != srcH {
		if plan.UseAcceleration {
			out, err := p.accel.resizeRGBA(ctx, src, plan.Width, plan.Height, opts)
			if err != nil {
				p.cfg.Logger.Warn("acceleration failed, using software engine",
					zap.Error(err),
					zap.Int("src_width", srcW),
					zap.Int("src_height", srcH))
			} else {
				resized = out
				accelerated = true
				onStep(1, 1)
			}
		}
		if !accelerated {
			out, err := resizeSoftware(ctx, &p.cfg, src, plan, opts, onStep)
			if err != nil {
				return nil, err
			}
			resized = out
		}
	}
	rs.checkpoint(StageResizing, progressResizeHi, nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Complexity runs on the resized surface: detail that downscaling removed
	// must not inflate the quality budget.
	complexity := Complexity(resized)

	format, enc, err := negotiateFormat(opts.Format, opts.Fallback)
	if err != nil {
		return nil, err
	}
	if format != opts.Format {
		p.cfg.Logger.Info("format negotiated down",
			zap.Stringer("preferred", opts.Format),
			zap.Stringer("using", format))
	}
	rs.checkpoint(StageEncoding, progressEncodeLo, nil)

	attempts := 0
	encode := func(q float64) ([]byte, error) {
		var buf bytes.Buffer
		if err := enc(&buf, resized, q); err != nil {
			return nil, wrapErr(KindEncodeFailure, err, "encode %s", format)
		}
		attempts++
		span := progressEncodeHi - progressEncodeLo
		pct := progressEncodeLo + span*attempts/(maxSearchAttempts+1)
		if pct > progressEncodeHi {
			pct = progressEncodeHi
		}
		rs.checkpoint(StageEncoding, pct, nil)
		return buf.Bytes(), nil
	}

	pixels := int64(plan.Width) * int64(plan.Height)
	outcome, err := fitBudget(&p.cfg, encode, pixels, opts.TargetBytes, complexity, format.lossless())
	if err != nil {
		if !IsKind(err, KindEncodeFailure) {
			return nil, err
		}
		// One retry at a conservative quality: encoder rejections are usually
		// parameter-specific, not content-specific.
		p.cfg.Logger.Warn("encode failed, retrying at conservative quality",
			zap.Error(err),
			zap.Float64("quality", p.cfg.ConservativeQuality))
		data, rerr := encode(p.cfg.ConservativeQuality)
		if rerr != nil {
			return nil, rerr
		}
		outcome = budgetOutcome{data: data, quality: p.cfg.ConservativeQuality}
	}
	rs.checkpoint(StageEncoding, progressEncodeHi, nil)

	res := &Result{
		Data:               outcome.data,
		Format:             format,
		Quality:            outcome.quality,
		EncodeAttempts:     attempts,
		Strategy:           plan.Strategy,
		Accelerated:        accelerated,
		OriginalSize:       originalSize,
		CompressedSize:     int64(len(outcome.data)),
		OriginalDimensions: image.Pt(srcW, srcH),
		FinalDimensions:    image.Pt(plan.Width, plan.Height),
	}
	if format.lossless() {
		res.Quality = 0
	}
	res.computeStats()
	return res, nil
}

// GeneratePreview validates, decodes and renders the small early preview
// without running the heavy stages. It shares the single-flight guard with
// Process.
func (p *Pipeline) GeneratePreview(ctx context.Context, data []byte) ([]byte, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, errf(KindBusy, "another image is in flight")
	}
	defer p.busy.Store(false)

	rs := newRunState(nil)
	p.run.Store(rs)
	defer rs.close()

	if _, _, err := p.validateInput(data); err != nil {
		rs.checkpoint(StageFailed, 0, nil)
		return nil, err
	}
	rs.checkpoint(StageValidating, progressValidated, nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := decodeInput(data)
	if err != nil {
		rs.checkpoint(StageFailed, 0, nil)
		return nil, err
	}
	rs.checkpoint(StageDecoding, progressDecoded, nil)

	pv := renderPreview(src, p.cfg.PreviewEdge, p.cfg.PreviewQuality)
	if pv == nil {
		rs.checkpoint(StageFailed, 0, nil)
		return nil, errf(KindEncodeFailure, "preview encode produced no data")
	}
	rs.checkpoint(StagePreview, progressPreview, pv)
	rs.checkpoint(StageDone, progressDone, nil)
	return pv, nil
}
