package corsac

import (
	"context"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func writeBatchFixtures(t *testing.T, n int) (dir string, items []BatchItem) {
	t.Helper()
	dir = t.TempDir()
	for i := 0; i < n; i++ {
		src := filepath.Join(dir, "in_"+string(rune('a'+i))+".png")
		dst := filepath.Join(dir, "out_"+string(rune('a'+i))+".jpg")
		if err := os.WriteFile(src, encodeToPNG(t, makeTestImage(200+10*i, 150)), 0644); err != nil {
			t.Fatal(err)
		}
		items = append(items, BatchItem{Src: src, Dst: dst})
	}
	return dir, items
}

// ── Batch Tests ─────────────────────────────────────────────────────────────

func TestProcessBatch(t *testing.T) {
	_, items := writeBatchFixtures(t, 3)

	var ticks atomic.Int32
	results := ProcessBatch(ctx(), DefaultConfig(), items, BatchOptions{
		Workers:     2,
		DefaultOpts: DefaultOptions(),
		OnItem: func(completed, total int) {
			ticks.Add(1)
			if total != 3 {
				t.Errorf("total %d, want 3", total)
			}
		},
	})

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Fatalf("result %d carries index %d, want input order", i, r.Index)
		}
		if r.Err != nil {
			t.Fatalf("item %d failed: %v", i, r.Err)
		}
		if r.Result == nil || r.Result.Format != FormatJPEG {
			t.Fatalf("item %d: expected a JPEG result, got %+v", i, r.Result)
		}

		f, err := os.Open(r.Item.Dst)
		if err != nil {
			t.Fatalf("item %d output missing: %v", i, err)
		}
		if _, err := jpeg.Decode(f); err != nil {
			t.Fatalf("item %d output does not decode: %v", i, err)
		}
		f.Close()
	}
	if ticks.Load() != 3 {
		t.Fatalf("OnItem fired %d times, want 3", ticks.Load())
	}
}

func TestProcessBatchEmpty(t *testing.T) {
	if results := ProcessBatch(ctx(), DefaultConfig(), nil, BatchOptions{}); results != nil {
		t.Fatalf("empty batch should return nil, got %d results", len(results))
	}
}

func TestProcessBatchPartialFailure(t *testing.T) {
	dir, items := writeBatchFixtures(t, 2)
	items = append(items, BatchItem{
		Src: filepath.Join(dir, "missing.png"),
		Dst: filepath.Join(dir, "never.jpg"),
	})

	results := ProcessBatch(ctx(), DefaultConfig(), items, BatchOptions{
		DefaultOpts: DefaultOptions(),
	})

	if results[0].Err != nil || results[1].Err != nil {
		t.Fatalf("good items failed: %v, %v", results[0].Err, results[1].Err)
	}
	if results[2].Err == nil {
		t.Fatal("missing input should fail its item")
	}

	s := Summarize(results)
	if s.Total != 3 || s.Succeeded != 2 || s.Failed != 1 {
		t.Fatalf("summary %+v, want 3/2/1", s)
	}
	if s.TotalSaved <= 0 {
		t.Fatalf("expected positive savings, got %d", s.TotalSaved)
	}
	if !strings.Contains(s.String(), "2/3 succeeded") {
		t.Fatalf("summary string %q", s.String())
	}
}

func TestProcessBatchCancelled(t *testing.T) {
	_, items := writeBatchFixtures(t, 3)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	results := ProcessBatch(cancelled, DefaultConfig(), items, BatchOptions{
		DefaultOpts: DefaultOptions(),
	})
	for i, r := range results {
		if r.Err == nil {
			t.Fatalf("item %d should carry the cancellation error", i)
		}
	}
}

func TestProcessBatchPerItemOptions(t *testing.T) {
	_, items := writeBatchFixtures(t, 2)

	tiny := DefaultOptions()
	tiny.MaxWidth = 50
	tiny.MaxHeight = 50
	items[1].Opts = &tiny

	results := ProcessBatch(ctx(), DefaultConfig(), items, BatchOptions{
		DefaultOpts: DefaultOptions(),
	})

	if results[0].Err != nil || results[1].Err != nil {
		t.Fatalf("batch failed: %v, %v", results[0].Err, results[1].Err)
	}
	if d := results[0].Result.FinalDimensions; d.X != 200 {
		t.Fatalf("default item resized to %v, want untouched width 200", d)
	}
	if d := results[1].Result.FinalDimensions; d.X > 50 || d.Y > 50 {
		t.Fatalf("per-item options ignored: %v", d)
	}
}

// ── Summary Tests ───────────────────────────────────────────────────────────

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || s.Succeeded != 0 || s.Failed != 0 || s.AvgRatio != 0 {
		t.Fatalf("zero batch summary %+v", s)
	}
}
