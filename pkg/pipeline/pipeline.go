// Package pipeline validates one catalog page under one capability:
// navigate, stabilize, capture, compare.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/visreg/pkg/browser"
	"github.com/entrhq/visreg/pkg/capability"
	"github.com/entrhq/visreg/pkg/catalog"
	"github.com/entrhq/visreg/pkg/logging"
	"github.com/entrhq/visreg/pkg/metrics"
	"github.com/entrhq/visreg/pkg/smartui"
	"github.com/entrhq/visreg/pkg/types"
)

// DefaultScreenshotPrefix starts screenshot names when none is configured.
const DefaultScreenshotPrefix = "erbis"

// Stabilizer prepares a navigated page for capture.
type Stabilizer interface {
	Stabilize(ctx context.Context, page browser.Page) error
}

// Checkpoint captures a page and returns the diff verdict.
type Checkpoint interface {
	Capture(ctx context.Context, page browser.Page, capabilitySlug, name string) (types.CheckpointResult, error)
}

// Options wires a Pipeline.
type Options struct {
	Catalog    *catalog.Catalog
	Stabilizer Stabilizer
	Checkpoint Checkpoint

	// ScreenshotPrefix starts every screenshot name.
	ScreenshotPrefix string

	Metrics *metrics.Recorder
	Logger  logging.Logger
}

// Pipeline runs page validations. It holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	opts   Options
	logger logging.Logger
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	if opts.ScreenshotPrefix == "" {
		opts.ScreenshotPrefix = DefaultScreenshotPrefix
	}
	return &Pipeline{opts: opts, logger: logging.OrDiscard(opts.Logger)}
}

// ScreenshotName returns the screenshot name used for page.
func (p *Pipeline) ScreenshotName(page catalog.Page) string {
	return smartui.ScreenshotName(p.opts.ScreenshotPrefix, page.Path)
}

// Validate runs the full pipeline for page on session. It never returns an
// error and never panics: every failure, including a panic in a step, becomes
// a Failure outcome. The tab it opens is always closed.
func (p *Pipeline) Validate(ctx context.Context, session browser.Session, d capability.Descriptor, page catalog.Page) (out types.PageOutcome) {
	out = types.PageOutcome{
		Capability:      d.Name,
		CapabilityIndex: d.Index,
		Page:            page.Path,
		PageIndex:       page.Index,
		ScreenshotName:  p.ScreenshotName(page),
		StartedAt:       time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			out = out.Fail(types.Errorf(types.KindInternal, "validate", "panic: %v", r))
		}
		out.Duration = time.Since(out.StartedAt)
		p.report(d, out)
	}()

	if err := ctx.Err(); err != nil {
		return out.Fail(types.Wrap(types.KindNavigation, "validate", err))
	}

	tab, err := session.NewPage()
	if err != nil {
		return out.Fail(types.Wrap(types.KindNavigation, "new page", err))
	}
	defer func() {
		if err := tab.Close(); err != nil {
			p.logger.Debugf("%s: closing page %q: %v", d.Name, page.Path, err)
		}
	}()

	url := p.opts.Catalog.URL(page)
	p.logger.Debugf("navigating %s %s", d.Name, url)
	if err := tab.Goto(url); err != nil {
		return out.Fail(types.Wrap(types.KindNavigation, "goto", err))
	}

	if err := p.opts.Stabilizer.Stabilize(ctx, tab); err != nil {
		return out.Fail(err)
	}

	result, err := p.opts.Checkpoint.Capture(ctx, tab, d.Slug(), out.ScreenshotName)
	if err != nil {
		return out.Fail(err)
	}
	out.Checkpoint = &result

	if !result.Matched && !d.Baseline {
		return out.Fail(types.Errorf(types.KindMismatch, "compare",
			"%s differs from baseline by %.2f%% (%s)", out.ScreenshotName, result.DiffPercentage, result.Status))
	}

	out.Status = types.StatusSuccess
	return out
}

func (p *Pipeline) report(d capability.Descriptor, out types.PageOutcome) {
	p.opts.Metrics.PageValidated(string(d.Engine), out.Status, out.Duration)

	if out.Succeeded() {
		p.logger.Infof("%s validated screenshot: %s successfully", d.Name, out.ScreenshotName)
		return
	}
	p.logger.Errorf("%s failed page %s: %s", d.Name, displayPath(out.Page), out.Reason)
}

func displayPath(path string) string {
	return fmt.Sprintf("/%s", path)
}
