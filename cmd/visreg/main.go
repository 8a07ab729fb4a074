// Package main provides the visreg command: a cross-browser visual-regression
// run of the site catalog against the SmartUI diff service, for CI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/entrhq/visreg/pkg/config"
	"github.com/entrhq/visreg/pkg/types"
)

const version = "0.1.0"

// Exit codes
const (
	exitOK           = 0
	exitFailingPages = 1
	exitConfig       = 2
)

// CLIConfig holds command-line configuration. Unset fields leave the file and
// environment values in place.
type CLIConfig struct {
	ConfigFile  string
	ScreenSize  string
	Baseline    *bool
	Browsers    []string
	Mode        string
	Include     []string
	Exclude     []string
	Timeout     time.Duration
	Verbosity   string
	ReportDir   string
	ShowVersion bool
}

func main() {
	cli, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(exitConfig)
	}

	if cli.ShowVersion {
		fmt.Printf("visreg v%s\n", version)
		return
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\n\nShutting down gracefully...")
		cancel()
	}()

	code := run(ctx, cli)
	cancel()
	os.Exit(code)
}

// parseFlags parses command line flags
func parseFlags(args []string) (*CLIConfig, error) {
	cli := &CLIConfig{}
	fs := flag.NewFlagSet("visreg", flag.ContinueOnError)

	fs.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	fs.StringVar(&cli.ScreenSize, "screen", "", "Screen size: desktop or mobile (required)")
	fs.Func("baseline", "Whether this run establishes the baseline: true or false (required)", func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid baseline value %q", v)
		}
		cli.Baseline = &b
		return nil
	})
	fs.Func("browsers", "Comma-separated browser engines: chromium,firefox,webkit", func(v string) error {
		cli.Browsers = splitList(v)
		return nil
	})
	fs.StringVar(&cli.Mode, "mode", "", "Page mode: sequential or concurrent")
	fs.Func("include", "Comma-separated glob patterns of pages to validate", func(v string) error {
		cli.Include = append(cli.Include, splitList(v)...)
		return nil
	})
	fs.Func("exclude", "Comma-separated glob patterns of pages to skip", func(v string) error {
		cli.Exclude = append(cli.Exclude, splitList(v)...)
		return nil
	})
	fs.DurationVar(&cli.Timeout, "timeout", 0, "Overall run timeout (0 for none)")
	fs.StringVar(&cli.Verbosity, "verbosity", "", "Logging verbosity: quiet, normal, verbose or debug")
	fs.StringVar(&cli.ReportDir, "report-dir", "", "Directory for report.json and summary.md")
	fs.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "visreg - Cross-browser visual regression for CI\n\n")
		fmt.Fprintf(os.Stderr, "Usage: visreg [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  LT_USERNAME, LT_ACCESS_KEY   farm credentials\n")
		fmt.Fprintf(os.Stderr, "  GITHUB_URL                   commit status URL attached to every session\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Compare the desktop layout against the baseline\n")
		fmt.Fprintf(os.Stderr, "  visreg -screen desktop -baseline=false\n\n")
		fmt.Fprintf(os.Stderr, "  # Establish a mobile baseline on every engine\n")
		fmt.Fprintf(os.Stderr, "  visreg -screen mobile -baseline=true -browsers chromium,firefox,webkit\n\n")
		fmt.Fprintf(os.Stderr, "  # Only the services pages, all tabs at once\n")
		fmt.Fprintf(os.Stderr, "  visreg -config visreg.yaml -screen desktop -baseline=false -mode concurrent -include 'services*'\n\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cli, nil
}

// loadConfig layers defaults, the config file, the environment and the flags,
// in that order, then validates the result.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if cli.ConfigFile != "" {
		if err := cfg.LoadFile(cli.ConfigFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}

	applyFlags(cfg, cli)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, cli *CLIConfig) {
	if cli.ScreenSize != "" {
		cfg.ScreenSize = cli.ScreenSize
	}
	if cli.Baseline != nil {
		cfg.IsBaseline = cli.Baseline
	}
	if len(cli.Browsers) > 0 {
		cfg.Browsers = cli.Browsers
	}
	if cli.Mode != "" {
		cfg.PageMode = cli.Mode
	}
	if len(cli.Include) > 0 {
		cfg.Include = cli.Include
	}
	if len(cli.Exclude) > 0 {
		cfg.Exclude = cli.Exclude
	}
	if cli.Timeout > 0 {
		cfg.Timeout = cli.Timeout
	}
	if cli.Verbosity != "" {
		cfg.Logging.Verbosity = cli.Verbosity
	}
	if cli.ReportDir != "" {
		cfg.Artifacts.ReportDir = cli.ReportDir
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// exitCode maps a run error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var typed *types.Error
	if errors.As(err, &typed) && typed.Kind == types.KindConfiguration {
		return exitConfig
	}
	return exitFailingPages
}
