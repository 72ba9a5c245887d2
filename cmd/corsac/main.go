// Command corsac resizes and compresses images adaptively.
//
// Usage:
//
//	corsac [flags] <input> [output]
//	corsac -analyze <input>
//
// Examples:
//
//	corsac photo.jpg resized.jpg
//	corsac -max-width 1920 -max-height 1080 photo.png out.jpg
//	corsac -budget 500KB photo.jpg out.jpg
//	corsac -algorithm lanczos -gamma photo.jpg out.png
//	corsac -accel resize.wasm -budget 1MB panorama.jpg out.jpg
//	corsac -analyze photo.jpg
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/shamspias/corsac"
)

func main() {
	var (
		maxWidth      int
		maxHeight     int
		displayWidth  int
		displayHeight int
		budget        string
		format        string
		fallback      string
		algorithm     string
		gamma         bool
		accelPath     string
		preferAccel   bool
		previewPath   string
		analyze       bool
		progress      bool
		verbose       bool
	)

	flag.IntVar(&maxWidth, "max-width", 0, "Maximum output width (0 = config default)")
	flag.IntVar(&maxHeight, "max-height", 0, "Maximum output height (0 = config default)")
	flag.IntVar(&displayWidth, "display-width", 0, "Display capability hint: viewport width")
	flag.IntVar(&displayHeight, "display-height", 0, "Display capability hint: viewport height")
	flag.StringVar(&budget, "budget", "", "Output byte budget (e.g. 500KB, 2MB; empty = single encode)")
	flag.StringVar(&format, "format", "jpeg", "Preferred output format: jpeg|png|webp")
	flag.StringVar(&fallback, "fallback", "png", "Fallback format when the preferred one has no encoder")
	flag.StringVar(&algorithm, "algorithm", "auto", "Resample filter: auto|nearest|bilinear|lanczos")
	flag.BoolVar(&gamma, "gamma", false, "Resample in linear light (gamma-correct)")
	flag.StringVar(&accelPath, "accel", "", "Path to a WebAssembly resize module")
	flag.BoolVar(&preferAccel, "prefer-accel", false, "Use the accelerator below the auto-enable threshold")
	flag.StringVar(&previewPath, "preview", "", "Also write a small preview JPEG to this path")
	flag.BoolVar(&analyze, "analyze", false, "Analyze the image without processing it")
	flag.BoolVar(&progress, "progress", false, "Stream progress to stderr")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: corsac [flags] <input> [output]")
		fmt.Fprintln(os.Stderr, "       corsac -analyze <input>")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
		os.Exit(1)
	}

	input := args[0]

	if analyze {
		runAnalyze(input)
		return
	}

	output := ""
	if len(args) >= 2 {
		output = args[1]
	} else {
		ext := filepath.Ext(input)
		output = strings.TrimSuffix(input, ext) + "_resized" + ext
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := zap.NewNop()
	if verbose {
		logger = zap.Must(zap.NewDevelopment())
		defer logger.Sync()
	}

	cfg := corsac.DefaultConfig()
	cfg.Logger = logger

	if accelPath != "" {
		wasm, err := os.ReadFile(accelPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", accelPath, err)
			os.Exit(1)
		}
		acc, err := corsac.LoadAccelerator(ctx, wasm, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Note: acceleration unavailable: %v\n", err)
		} else {
			cfg.Accelerator = acc
			defer acc.Close(context.Background())
		}
	}

	opts := corsac.DefaultOptions()
	opts.MaxWidth = maxWidth
	opts.MaxHeight = maxHeight
	opts.DisplayWidth = displayWidth
	opts.DisplayHeight = displayHeight
	opts.GammaCorrect = gamma
	opts.PreferAcceleration = preferAccel

	f, err := parseFormat(format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	opts.Format = f
	fb, err := parseFormat(fallback)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	opts.Fallback = fb

	switch strings.ToLower(algorithm) {
	case "auto":
		opts.Algorithm = corsac.AlgoAuto
	case "nearest":
		opts.Algorithm = corsac.AlgoNearest
	case "bilinear":
		opts.Algorithm = corsac.AlgoBilinear
	case "lanczos":
		opts.Algorithm = corsac.AlgoLanczos
	default:
		fmt.Fprintf(os.Stderr, "Unknown algorithm: %s\n", algorithm)
		os.Exit(1)
	}

	if budget != "" {
		n, err := parseSize(budget)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid budget %q: %v\n", budget, err)
			os.Exit(1)
		}
		opts.TargetBytes = n
	}

	if progress {
		events := make(chan corsac.Event, 16)
		opts.Events = events
		go func() {
			for ev := range events {
				fmt.Fprintf(os.Stderr, "\r%-12s %3d%%", ev.Stage, ev.Percent)
			}
		}()
	}

	p := corsac.New(cfg)
	defer p.Close()

	if previewPath != "" {
		data, err := os.ReadFile(input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", input, err)
			os.Exit(1)
		}
		pv, err := p.GeneratePreview(ctx, data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating preview: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(previewPath, pv, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", previewPath, err)
			os.Exit(1)
		}
	}

	result, err := p.ProcessFile(ctx, input, output, opts)
	if progress {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// When negotiation picked a different format than the output extension,
	// rename so the file opens correctly.
	if want, ok := formatExt(result.Format); ok {
		outExt := strings.ToLower(filepath.Ext(output))
		if outExt != want && !(want == ".jpg" && outExt == ".jpeg") {
			renamed := strings.TrimSuffix(output, filepath.Ext(output)) + want
			if err := os.Rename(output, renamed); err == nil {
				output = renamed
				fmt.Fprintf(os.Stderr, "Note: format negotiated to %s → saved as %s\n", result.Format, renamed)
			}
		}
	}

	fmt.Println(result)
}

func runAnalyze(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
		os.Exit(1)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding %s: %v\n", path, err)
		os.Exit(1)
	}

	stats := corsac.Analyze(img)

	fmt.Printf("📐 File:          %s\n", path)
	fmt.Printf("💾 Size:          %s\n", humanBytes(int64(len(data))))
	fmt.Printf("📏 Dimensions:    %d × %d\n", stats.Width, stats.Height)
	fmt.Printf("🎭 Alpha:         %v\n", stats.HasAlpha)
	fmt.Printf("⬛ Grayscale:     %v\n", stats.IsGrayscale)
	fmt.Printf("🎨 Unique colors: %d+\n", stats.UniqueColors)
	fmt.Printf("📊 Entropy:       %.2f bits\n", stats.Entropy)
	fmt.Printf("🔲 Edge density:  %.1f%%\n", stats.EdgeDensity*100)
	fmt.Printf("☀️  Brightness:    %.0f\n", stats.MeanBrightness)
	fmt.Printf("🌀 Complexity:    %.2f\n", stats.Complexity)
	fmt.Println()
	fmt.Printf("💡 Recommended format:  %s\n", strings.ToUpper(stats.RecommendedFormat.String()))
	fmt.Printf("💡 Suggested quality:   %.2f\n", stats.SuggestedQuality)
	fmt.Printf("💡 Est. compression:    ~%.1fx\n", stats.EstimatedCompression)
}

func parseFormat(s string) (corsac.Format, error) {
	switch strings.ToLower(s) {
	case "jpeg", "jpg":
		return corsac.FormatJPEG, nil
	case "png":
		return corsac.FormatPNG, nil
	case "webp":
		return corsac.FormatWebP, nil
	default:
		return 0, fmt.Errorf("unknown format %q", s)
	}
}

func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	return int64(n * float64(multiplier)), nil
}

func humanBytes(b int64) string {
	switch {
	case b >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(b)/(1024*1024))
	case b >= 1024:
		return fmt.Sprintf("%.1f KB", float64(b)/1024)
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func formatExt(f corsac.Format) (string, bool) {
	switch f {
	case corsac.FormatJPEG:
		return ".jpg", true
	case corsac.FormatPNG:
		return ".png", true
	case corsac.FormatWebP:
		return ".webp", true
	default:
		return "", false
	}
}
