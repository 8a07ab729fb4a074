package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/entrhq/visreg/pkg/artifact"
	"github.com/entrhq/visreg/pkg/browser"
	"github.com/entrhq/visreg/pkg/capability"
	"github.com/entrhq/visreg/pkg/catalog"
	"github.com/entrhq/visreg/pkg/config"
	"github.com/entrhq/visreg/pkg/logging"
	"github.com/entrhq/visreg/pkg/metrics"
	"github.com/entrhq/visreg/pkg/orchestrator"
	"github.com/entrhq/visreg/pkg/pipeline"
	"github.com/entrhq/visreg/pkg/report"
	"github.com/entrhq/visreg/pkg/smartui"
	"github.com/entrhq/visreg/pkg/stabilize"
	"github.com/entrhq/visreg/pkg/types"
)

const pushTimeout = 10 * time.Second

// run executes one visual-regression run and returns the process exit code.
//
//nolint:gocyclo
func run(ctx context.Context, cli *CLIConfig) int {
	cfg, err := loadConfig(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return exitConfig
	}

	console := logging.NewConsole(logging.ParseLevel(cfg.Logging.Verbosity), os.Stderr)
	var logger logging.Logger = console
	if cfg.Logging.File {
		fileLogger, ferr := logging.NewFileLogger("visreg")
		if ferr != nil {
			console.Warnf("file logging disabled: %v", ferr)
		} else {
			defer fileLogger.Close()
			logger = logging.Tee(console, fileLogger)
			console.Verbosef("logging to %s", fileLogger.LogPath())
		}
	}

	runID := logging.RunID()
	console.Header(fmt.Sprintf("visreg v%s  run %s", version, runID))

	if cfg.Credentials.User == "" || cfg.Credentials.AccessKey == "" {
		console.Warnf("LT_USERNAME or LT_ACCESS_KEY is not set; the farm will reject sessions")
	}

	paths := cfg.Pages
	if len(paths) == 0 {
		paths = catalog.DefaultPaths
	}
	prefix := cfg.Checkpoint.ScreenshotPrefix
	if prefix == "" {
		prefix = pipeline.DefaultScreenshotPrefix
	}
	cat, err := catalog.New(cfg.BaseURL, paths, cfg.Include, cfg.Exclude,
		catalog.WithNameFunc(func(path string) string { return smartui.ScreenshotName(prefix, path) }))
	if err != nil {
		console.Errorf("%v", err)
		return exitConfig
	}

	descriptors, err := capability.Build(cfg)
	if err != nil {
		console.Errorf("%v", err)
		return exitConfig
	}

	mode, err := orchestrator.ParsePageMode(cfg.PageMode)
	if err != nil {
		console.Errorf("%v", err)
		return exitConfig
	}

	store, err := newStore(cfg, runID)
	if err != nil {
		console.Errorf("%v", err)
		return exitConfig
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	console.Section(fmt.Sprintf("%d capabilities x %d pages (%s screen, baseline=%t, %s)",
		len(descriptors), cat.Len(), cfg.ScreenSize, cfg.Baseline(), mode))

	rec := metrics.New()

	farm := browser.NewFarm(browser.Options{
		Endpoint: cfg.Endpoint,
		OpenRate: cfg.SessionOpenRate,
		Logger:   logging.WithPrefix(logger, "farm"),
	})
	if ierr := farm.Initialize(); ierr != nil {
		// Every Open now fails, so each page is still reported.
		console.Errorf("%v", ierr)
	}
	defer func() {
		if serr := farm.Shutdown(); serr != nil {
			console.Warnf("farm shutdown: %v", serr)
		}
	}()

	validator := pipeline.New(pipeline.Options{
		Catalog: cat,
		Stabilizer: stabilize.New(stabilize.Options{
			OverlaySelector:  cfg.Stabilize.OverlaySelector,
			OverlayTimeout:   cfg.Stabilize.OverlayTimeout,
			ForceLazyLoad:    cfg.Stabilize.ForceLazyLoad,
			ScrollStep:       cfg.Stabilize.ScrollStep,
			ScrollDelay:      cfg.Stabilize.ScrollDelay,
			SettleMaxRetries: cfg.Stabilize.SettleMaxRetries,
			Logger:           logger,
		}),
		Checkpoint: smartui.New(smartui.Options{
			MaxPolls:        cfg.Checkpoint.MaxPolls,
			InitialInterval: cfg.Checkpoint.InitialInterval,
			MaxInterval:     cfg.Checkpoint.MaxInterval,
			Store:           store,
			Metrics:         rec,
			Logger:          logger,
		}),
		ScreenshotPrefix: prefix,
		Metrics:          rec,
		Logger:           logger,
	})

	orch := orchestrator.New(orchestrator.Options{
		Factory:            farm,
		Validator:          validator,
		PageMode:           mode,
		MaxConcurrentPages: cfg.MaxConcurrentPages,
		Metrics:            rec,
		Logger:             logger,
	})

	r := orch.Run(ctx, descriptors, cat.Pages())
	r.RunID = runID

	if cfg.Artifacts.ReportDir != "" {
		if werr := report.NewWriter(cfg.Artifacts.ReportDir).WriteAll(r); werr != nil {
			console.Warnf("%v", werr)
		} else {
			console.Verbosef("report written to %s", cfg.Artifacts.ReportDir)
		}
	}

	pushCtx, cancelPush := context.WithTimeout(context.Background(), pushTimeout)
	defer cancelPush()
	if perr := rec.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, runID); perr != nil {
		console.Warnf("%v", perr)
	}

	if perr := report.PrintSummary(os.Stdout, r); perr != nil {
		console.Warnf("printing summary: %v", perr)
	}

	if rerr := r.Err(); rerr != nil {
		console.Errorf("%v", rerr)
		return exitCode(rerr)
	}
	console.Successf("all %d pages passed", r.Total)
	return exitOK
}

// newStore returns the local screenshot store, mirrored to S3 when configured.
func newStore(cfg *config.Config, runID string) (artifact.Store, error) {
	local := artifact.NewLocalStore(cfg.Artifacts.ScreenshotDir)
	s3 := cfg.Artifacts.S3
	if s3.Endpoint == "" {
		return local, nil
	}

	remote, err := artifact.NewMinioStore(artifact.MinioConfig{
		Endpoint:  strings.TrimPrefix(strings.TrimPrefix(s3.Endpoint, "https://"), "http://"),
		Bucket:    s3.Bucket,
		Region:    s3.Region,
		UseSSL:    s3.UseSSL || strings.HasPrefix(s3.Endpoint, "https://"),
		AccessKey: s3.AccessKey,
		SecretKey: s3.SecretKey,
		Prefix:    runID,
	})
	if err != nil {
		return nil, types.Wrap(types.KindConfiguration, "artifacts", err)
	}
	return artifact.Multi{local, remote}, nil
}
