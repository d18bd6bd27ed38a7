package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"novacred-engine/internal/artifact"
	"novacred-engine/internal/clean"
	"novacred-engine/internal/config"
	"novacred-engine/internal/ingest"
)

const (
	exitFailure = 1
	exitReview  = 2
	exitLocked  = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Getenv, os.Stderr); err != nil {
		stop()
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, clean.ErrReviewRequired):
		return exitReview
	case errors.Is(err, artifact.ErrLocked):
		return exitLocked
	}
	return exitFailure
}

// run is one cleaning pass: config, input, pipeline, artifacts. Every error
// is logged before it is returned.
func run(ctx context.Context, getenv func(string) string, stderr io.Writer) error {
	// Data dir: use env if provided, else the working directory.
	dataDir := getenv("CLEANER_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	boot := slog.New(slog.NewTextHandler(stderr, nil))

	cfgPath := getenv("CLEANER_CONFIG")
	if cfgPath == "" {
		p, err := config.EnsureUserConfig(dataDir)
		if err != nil {
			boot.Error("config bootstrap failed", "err", err)
			return fmt.Errorf("config bootstrap: %w", err)
		}
		cfgPath = p
	}

	loaded, err := config.Load(cfgPath)
	if err != nil {
		boot.Error("config load failed", "path", cfgPath, "err", err)
		return fmt.Errorf("config load: %w", err)
	}
	cfg, v := config.NormalizeAndValidate(loaded)
	for _, w := range v.Warnings {
		boot.Warn("config warning", "path", cfgPath, "warning", w)
	}
	if err := v.Err(); err != nil {
		boot.Error("config invalid", "path", cfgPath, "err", err)
		return err
	}
	opts, err := cfg.PipelineOptions()
	if err != nil {
		boot.Error("config invalid", "path", cfgPath, "err", err)
		return err
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))

	inPath := config.Resolve(dataDir, cfg.Input.Path)
	snap, err := ingest.LoadFile(inPath)
	if err != nil {
		logger.Error("input rejected", "path", inPath, "err", err)
		return err
	}
	logger.Info("input loaded", "path", snap.Path, "records", len(snap.Records), "sha256", snap.SHA256)

	formats := clean.AuditFormats(snap.Records)
	for _, e := range formats.EmailInvalid {
		logger.Debug("malformed email", "id", e.RecordID, "value", e.Value)
	}
	for _, s := range formats.SSNInvalid {
		logger.Debug("malformed ssn", "id", s.RecordID, "value", s.Value)
	}
	logger.Info("format audit", "email_invalid", len(formats.EmailInvalid), "ssn_invalid", len(formats.SSNInvalid))

	res, err := clean.New(opts, logger).Run(ctx, snap.Records)
	if err != nil {
		var rerr *clean.ReviewError
		if errors.As(err, &rerr) {
			logger.Error("aborting without artifacts; fix the records or disable audit.strict_review",
				"review", len(rerr.Items))
		} else {
			logger.Error("pipeline failed", "err", err)
		}
		return err
	}

	out := cfg.Output
	out.Dir = config.Resolve(dataDir, out.Dir)
	w := &artifact.Writer{Outputs: out, Logger: logger}

	unlock, err := w.Lock()
	if err != nil {
		logger.Error("output dir unavailable", "dir", out.Dir, "err", err)
		return err
	}
	defer func() {
		if err := unlock(); err != nil {
			logger.Warn("unlock failed", "dir", out.Dir, "err", err)
		}
	}()

	_, err = w.WriteAll(ctx, artifact.Run{
		ID:            artifact.RunID(snap.SHA256, cfg.Audit.ReferenceDate),
		InputPath:     snap.Path,
		InputSHA256:   snap.SHA256,
		ReferenceDate: cfg.Audit.ReferenceDate,
		InputCount:    len(snap.Records),
		Formats:       formats,
		Result:        res,
	})
	if err != nil {
		logger.Error("writing artifacts failed", "dir", out.Dir, "err", err)
		return err
	}
	return nil
}
