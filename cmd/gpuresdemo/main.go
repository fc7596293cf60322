// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command gpuresdemo drives a small frame loop against a gpures backend.
//
// Every frame streams vertex data through a MemoryHeap, renders into a
// transient texture and destroys it, then flushes the device so the
// deferred-release queue drains. Statistics are printed at exit and can be
// scraped from /metrics while the loop runs.
//
//	gpuresdemo -backend soft -frames 120 -metrics :9090 -output frame.png
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/gpures"
	"github.com/gogpu/gpures/backend"
	_ "github.com/gogpu/gpures/backend/soft"
	_ "github.com/gogpu/gpures/backend/wgpu"
	"github.com/gogpu/gpures/metrics"
)

type config struct {
	backend  string
	frames   int
	size     int
	interval time.Duration
	pageSize uint64
	metrics  string
	output   string
	verbose  bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.backend, "backend", "", "backend name (empty picks the best available)")
	flag.IntVar(&cfg.frames, "frames", 60, "number of frames to run")
	flag.IntVar(&cfg.size, "size", 256, "render target width and height")
	flag.DurationVar(&cfg.interval, "interval", 0, "delay between frames")
	flag.Uint64Var(&cfg.pageSize, "page-size", gpures.DefaultPageSize, "memory heap page size")
	flag.StringVar(&cfg.metrics, "metrics", "", "serve Prometheus metrics on this address")
	flag.StringVar(&cfg.output, "output", "", "write the last frame as PNG")
	flag.BoolVar(&cfg.verbose, "v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	gpures.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("gpuresdemo failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	dev, err := backend.OpenDevice(cfg.backend, gpures.WithLabel("demo"))
	if err != nil {
		return err
	}
	defer dev.Close()

	heap, err := dev.CreateMemoryHeap(nil, gpures.WithPageSize(cfg.pageSize), gpures.WithHeapLabel("frame"))
	if err != nil {
		return err
	}
	defer heap.Close()

	heapStats := metrics.NewHeapCollector("frame", heap)
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewDeviceCollector(dev.Label(), dev), heapStats)

	g, ctx := errgroup.WithContext(ctx)
	loopDone := make(chan struct{})
	if cfg.metrics != "" {
		srv := &http.Server{
			Addr:              cfg.metrics,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.metrics)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-ctx.Done():
			case <-loopDone:
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	r := &renderer{dev: dev, heap: heap, size: uint32(cfg.size)} //nolint:gosec // G115: flag value
	g.Go(func() error {
		defer close(loopDone)
		for i := range cfg.frames {
			if err := ctx.Err(); err != nil {
				return nil
			}
			if err := r.frame(i, i == cfg.frames-1 && cfg.output != ""); err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
			heapStats.Update()
			if cfg.interval > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(cfg.interval):
				}
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if r.last != nil {
		if err := writePNG(cfg.output, r.last); err != nil {
			return err
		}
		logger.Info("last frame written", "path", cfg.output)
	}
	printStats(dev.Stats(), heap.Stats())
	return nil
}

// renderer owns the per-frame work.
type renderer struct {
	dev  *gpures.Device
	heap *gpures.MemoryHeap
	size uint32
	last *gpures.Bitmap
}

func (r *renderer) frame(n int, capture bool) error {
	// Stream a quad's worth of vertices through the heap.
	verts, err := r.heap.Allocate(4*16, 16)
	if err != nil {
		return err
	}
	data := make([]byte, verts.Size())
	for i := range data {
		data[i] = byte(n + i)
	}
	if err := verts.Write(data); err != nil {
		return err
	}

	target, err := r.dev.CreateTexture(gpures.TextureDesc{
		Label:    fmt.Sprintf("frame %d target", n),
		Format:   gpures.FormatRGBA8Unorm,
		Width:    r.size,
		Height:   r.size,
		MipCount: 1,
		Usage:    gpures.UsageRenderTarget | gpures.UsageShaderResource,
	})
	if err != nil {
		return err
	}
	if _, err := target.GetRTV(0, 0, 1); err != nil {
		return err
	}
	if _, err := target.GetSRV(gpures.AllSubresources); err != nil {
		return err
	}

	pixels := make([]byte, int(r.size)*int(r.size)*4)
	for y := range r.size {
		for x := range r.size {
			i := (y*r.size + x) * 4
			pixels[i] = byte(x + uint32(n))
			pixels[i+1] = byte(y)
			pixels[i+2] = byte(n * 4)
			pixels[i+3] = 0xff
		}
	}
	if err := target.SetSubresourceData(0, pixels); err != nil {
		return err
	}
	if capture {
		if r.last, err = target.ToBitmap(0, 0); err != nil {
			return err
		}
	}

	target.Destroy()
	verts.Release()
	if _, err := r.dev.Flush(); err != nil {
		return err
	}
	r.heap.ExecuteDeferredReleases()
	return nil
}

func writePNG(path string, bm *gpures.Bitmap) error {
	img, err := bm.ToImage()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printStats(d gpures.DeviceStats, h gpures.HeapStats) {
	fmt.Printf("device %q on %s\n", d.Label, d.Backend)
	fmt.Printf("  live: %d buffers, %d textures, %d views\n", d.Buffers, d.Textures, d.Views)
	fmt.Printf("  fence: signaled %d, completed %d\n", d.SignaledValue, d.CompletedValue)
	fmt.Printf("  releases: %d pending, %d done\n", d.PendingReleases, d.ReleasedHandles)
	fmt.Printf("heap %q: %d pages (%d free), %d bytes reserved\n",
		h.Label, h.Pages, h.FreePages, h.ReservedBytes)
}
