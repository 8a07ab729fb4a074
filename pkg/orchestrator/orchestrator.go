// Package orchestrator runs the page catalog against every capability of the
// matrix and folds the outcomes into one report.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/entrhq/visreg/pkg/browser"
	"github.com/entrhq/visreg/pkg/capability"
	"github.com/entrhq/visreg/pkg/catalog"
	"github.com/entrhq/visreg/pkg/logging"
	"github.com/entrhq/visreg/pkg/metrics"
	"github.com/entrhq/visreg/pkg/report"
	"github.com/entrhq/visreg/pkg/types"
	"golang.org/x/sync/errgroup"
)

// PageMode selects how pages of one capability are visited.
type PageMode string

const (
	// Sequential visits pages one after another in catalog order.
	Sequential PageMode = "sequential"
	// Concurrent visits all pages of a capability at once, in separate tabs of
	// the same session.
	Concurrent PageMode = "concurrent"
)

// ParsePageMode parses a page mode name.
func ParsePageMode(s string) (PageMode, error) {
	switch mode := PageMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case Sequential, Concurrent:
		return mode, nil
	case "":
		return Sequential, nil
	default:
		return "", types.Errorf(types.KindConfiguration, "page mode",
			"invalid page mode: %s (must be '%s' or '%s')", s, Sequential, Concurrent)
	}
}

// Validator validates one page on an open session.
type Validator interface {
	Validate(ctx context.Context, session browser.Session, d capability.Descriptor, page catalog.Page) types.PageOutcome
}

// Options configures an Orchestrator.
type Options struct {
	Factory   browser.SessionFactory
	Validator Validator
	PageMode  PageMode

	// MaxConcurrentPages bounds open tabs per session in Concurrent mode.
	// Zero means unbounded.
	MaxConcurrentPages int

	Metrics *metrics.Recorder
	Logger  logging.Logger
}

// Orchestrator fans validations out over the capability matrix.
type Orchestrator struct {
	opts   Options
	logger logging.Logger
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.PageMode == "" {
		opts.PageMode = Sequential
	}
	return &Orchestrator{opts: opts, logger: logging.OrDiscard(opts.Logger)}
}

// Run validates every page under every descriptor and returns the aggregated
// report. All capabilities run concurrently and each one is isolated: a
// failure in one never cancels another. Run returns only once every
// (capability, page) pair has an outcome.
func (o *Orchestrator) Run(ctx context.Context, descriptors []capability.Descriptor, pages []catalog.Page) *report.RunReport {
	started := time.Now()

	results := make([][]types.PageOutcome, len(descriptors))

	var g errgroup.Group
	for i, d := range descriptors {
		g.Go(func() error {
			results[i] = o.runCapability(ctx, d, pages)
			return nil // outcomes carry failures, never the group
		})
	}
	_ = g.Wait()

	outcomes := make([]types.PageOutcome, 0, len(descriptors)*len(pages))
	for _, r := range results {
		outcomes = append(outcomes, r...)
	}

	r := report.Aggregate(outcomes)
	r.StartedAt = started
	r.Duration = time.Since(started)
	return r
}

func (o *Orchestrator) runCapability(ctx context.Context, d capability.Descriptor, pages []catalog.Page) []types.PageOutcome {
	logger := logging.WithPrefix(o.logger, d.Name)
	logger.Infof("opening session (%d pages, %s)", len(pages), o.opts.PageMode)

	session, err := o.opts.Factory.Open(ctx, d)
	o.opts.Metrics.SessionOpened(string(d.Engine), err)
	if err != nil {
		if types.KindOf(err) != types.KindSessionOpen {
			err = types.Wrap(types.KindSessionOpen, d.Name, err)
		}
		logger.Errorf("%v", err)
		out := failAll(d, pages, err)
		for _, failed := range out {
			o.opts.Metrics.PageValidated(string(d.Engine), failed.Status, failed.Duration)
		}
		return out
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warnf("closing session: %v", cerr)
		}
	}()

	out := make([]types.PageOutcome, len(pages))

	if o.opts.PageMode == Sequential {
		for i, page := range pages {
			out[i] = o.opts.Validator.Validate(ctx, session, d, page)
		}
		return out
	}

	var g errgroup.Group
	if o.opts.MaxConcurrentPages > 0 {
		g.SetLimit(o.opts.MaxConcurrentPages)
	}
	for i, page := range pages {
		g.Go(func() error {
			out[i] = o.opts.Validator.Validate(ctx, session, d, page)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func failAll(d capability.Descriptor, pages []catalog.Page, err error) []types.PageOutcome {
	now := time.Now()
	out := make([]types.PageOutcome, len(pages))
	for i, page := range pages {
		out[i] = types.PageOutcome{
			Capability:      d.Name,
			CapabilityIndex: d.Index,
			Page:            page.Path,
			PageIndex:       page.Index,
			StartedAt:       now,
		}.Fail(err)
	}
	return out
}
