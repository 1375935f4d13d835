package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-intake/internal/app"
	"github.com/joseph-ayodele/invoice-intake/internal/async"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/export"
	"github.com/joseph-ayodele/invoice-intake/internal/extraction"
	"github.com/joseph-ayodele/invoice-intake/internal/ingest"
	"github.com/joseph-ayodele/invoice-intake/internal/pipeline"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir        = flag.String("dir", "", "directory of invoice documents (required)")
		watch      = flag.Bool("watch", false, "keep running and process new files as they appear")
		workers    = flag.Int("workers", 4, "concurrent documents")
		timeout    = flag.Duration("timeout", 3*time.Minute, "per-document processing timeout")
		strategy   = flag.String("strategy", "", "strategy name for every document")
		force      = flag.Bool("force", false, "process duplicate content again")
		skipHidden = flag.Bool("skip-hidden", true, "ignore dot files and directories")
		out        = flag.String("out", "", "write a learning workbook here when done")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}

	logger := app.NewLogger("json", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := common.LoadConfig()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	var (
		mu      sync.Mutex
		summary ingest.DirStats
	)
	handler := &pipeline.JobHandler{
		Processor: a.Processor,
		Loader:    ingest.NewLoader(),
		Parse:     extraction.ParseContext{Identity: "invoice-batch", Strategy: *strategy},
		OnDone: func(job async.Job, o pipeline.Outcome, err error) {
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Failed++
			case o.InvoiceID == nil:
				summary.Deduplicated++
			default:
				summary.Succeeded++
			}
		},
	}
	queue := async.NewProcessorQueue(handler, logger,
		async.WithWorkers(*workers),
		async.WithQueueSize(512),
		async.WithProcessTimeout(*timeout),
	)

	enqueue := func(path string) {
		job := async.Job{Path: path, Force: *force, SubmittedAt: time.Now(), TraceID: uuid.NewString()}
		if err := queue.Enqueue(ctx, job); err != nil {
			logger.Warn("enqueue failed", "path", path, "error", err)
		}
	}

	if *watch {
		paths, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
			Roots:       []string{*dir},
			InitialScan: true,
			SkipHidden:  *skipHidden,
		}, logger)
		if err != nil {
			logger.Error("failed to watch directory", "dir", *dir, "error", err)
			os.Exit(1)
		}
		logger.Info("watching", "dir", *dir)
		for paths != nil || errs != nil {
			select {
			case p, ok := <-paths:
				if !ok {
					paths = nil
					continue
				}
				enqueue(p)
			case werr, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Warn("watch error", "error", werr)
			}
		}
	} else {
		files, failed, walkStats, err := ingest.WalkDirectory(ctx, *dir, *skipHidden)
		if err != nil {
			logger.Error("failed to scan directory", "dir", *dir, "error", err)
			os.Exit(1)
		}
		for _, r := range failed {
			logger.Warn("unreadable entry", "path", r.SourcePath, "error", r.Err)
		}
		mu.Lock()
		summary.Scanned = walkStats.Scanned
		summary.Matched = walkStats.Matched
		summary.Failed += walkStats.Failed
		mu.Unlock()
		logger.Info("starting batch", "dir", *dir, "files", len(files))
		for _, f := range files {
			enqueue(f)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+*timeout)
	defer cancel()
	queue.Shutdown(shutdownCtx)

	mu.Lock()
	final := summary
	mu.Unlock()
	logger.Info("batch complete",
		"scanned", final.Scanned,
		"matched", final.Matched,
		"succeeded", final.Succeeded,
		"deduplicated", final.Deduplicated,
		"failed", final.Failed,
	)

	if *out != "" {
		data, err := a.Exporter.ExportLearningXLSX(context.Background(), export.Options{})
		if err != nil {
			logger.Error("export failed", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			logger.Error("write export failed", "path", *out, "error", err)
			os.Exit(1)
		}
		abs, _ := filepath.Abs(*out)
		logger.Info("export written", "path", abs, "bytes", len(data))
	}
	if final.Failed > 0 {
		os.Exit(2)
	}
}
