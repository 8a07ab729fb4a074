// Package stabilize brings a freshly navigated page into a deterministic
// visual state before it is captured.
package stabilize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/entrhq/visreg/pkg/browser"
	"github.com/entrhq/visreg/pkg/logging"
	"github.com/entrhq/visreg/pkg/types"
)

const (
	// HeightScript reads the document height used to detect reflow.
	HeightScript = `() => document.body ? document.body.scrollHeight : 0`

	// ScrollScript walks the full document height in fixed steps, then
	// returns to the top.
	ScrollScript = `async ({ step, delay }) => {
	for (let y = 0; y < document.body.scrollHeight; y += step) {
		window.scrollTo(0, y);
		await new Promise(resolve => setTimeout(resolve, delay));
	}
	window.scrollTo(0, 0);
}`
)

const (
	defaultSettleInitialInterval = 100 * time.Millisecond
	defaultSettleMaxInterval     = 2 * time.Second
	defaultSettleMaxRetries      = 6
)

var errUnsettled = errors.New("height kept changing")

// Options tunes a Stabilizer.
type Options struct {
	// OverlaySelector matches transient UI removed before capture. Empty
	// disables overlay handling.
	OverlaySelector string
	OverlayTimeout  time.Duration

	ForceLazyLoad bool
	ScrollStep    int
	ScrollDelay   time.Duration

	SettleMaxRetries      int
	SettleInitialInterval time.Duration
	SettleMaxInterval     time.Duration

	Logger logging.Logger
}

// Stabilizer removes overlays, materializes lazy content and waits for the
// layout to stop moving.
type Stabilizer struct {
	opts   Options
	logger logging.Logger
}

// New creates a Stabilizer, filling unset settle parameters with defaults.
func New(opts Options) *Stabilizer {
	if opts.SettleMaxRetries <= 0 {
		opts.SettleMaxRetries = defaultSettleMaxRetries
	}
	if opts.SettleInitialInterval <= 0 {
		opts.SettleInitialInterval = defaultSettleInitialInterval
	}
	if opts.SettleMaxInterval < opts.SettleInitialInterval {
		opts.SettleMaxInterval = defaultSettleMaxInterval
	}
	return &Stabilizer{opts: opts, logger: logging.OrDiscard(opts.Logger)}
}

// Stabilize runs overlay removal, the optional lazy-content scroll and the
// reflow wait, in that order. An overlay that never attaches is not an error.
func (s *Stabilizer) Stabilize(ctx context.Context, page browser.Page) error {
	if err := s.removeOverlay(page); err != nil {
		return err
	}

	if s.opts.ForceLazyLoad {
		if err := ctx.Err(); err != nil {
			return types.Wrap(types.KindStabilization, "scroll", err)
		}
		args := map[string]interface{}{
			"step":  s.opts.ScrollStep,
			"delay": s.opts.ScrollDelay.Milliseconds(),
		}
		if _, err := page.Evaluate(ScrollScript, args); err != nil {
			return types.Wrap(types.KindStabilization, "scroll", err)
		}
	}

	return s.settle(ctx, page)
}

func (s *Stabilizer) removeOverlay(page browser.Page) error {
	if s.opts.OverlaySelector == "" {
		return nil
	}

	err := page.WaitForAttached(s.opts.OverlaySelector, s.opts.OverlayTimeout)
	if types.IsTimeout(err) {
		s.logger.Debugf("overlay %s did not attach within %s, skipping removal", s.opts.OverlaySelector, s.opts.OverlayTimeout)
		return nil
	}
	if err != nil {
		return types.Wrap(types.KindStabilization, "overlay", err)
	}

	n, err := page.RemoveAll(s.opts.OverlaySelector)
	if err != nil {
		return types.Wrap(types.KindStabilization, "overlay", err)
	}
	s.logger.Debugf("removed %d overlay element(s) matching %s", n, s.opts.OverlaySelector)
	return nil
}

// settle polls the document height until two consecutive reads agree.
func (s *Stabilizer) settle(ctx context.Context, page browser.Page) error {
	last := -1
	op := func() error {
		v, err := page.Evaluate(HeightScript, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		h := toInt(v)
		if h == last {
			return nil
		}
		last = h
		return errUnsettled
	}

	err := backoff.Retry(op, backoff.WithContext(s.backOff(), ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errUnsettled):
		return types.Wrap(types.KindStabilization, "reflow", fmt.Errorf("%w: %w", errUnsettled, types.ErrTimeout))
	default:
		return types.Wrap(types.KindStabilization, "reflow", err)
	}
}

func (s *Stabilizer) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.SettleInitialInterval
	b.MaxInterval = s.opts.SettleMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(s.opts.SettleMaxRetries))
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
