// Package smartui captures screenshots and obtains comparison verdicts from
// the LambdaTest SmartUI visual-diff service.
//
// Commands travel over the farm's in-page channel: the page evaluates a no-op
// function whose argument is "lambdatest_action: " followed by a JSON command.
// The farm intercepts the call and answers with the service's JSON response.
package smartui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/entrhq/visreg/pkg/artifact"
	"github.com/entrhq/visreg/pkg/browser"
	"github.com/entrhq/visreg/pkg/logging"
	"github.com/entrhq/visreg/pkg/metrics"
	"github.com/entrhq/visreg/pkg/types"
)

const (
	actionPrefix = "lambdatest_action: "
	noopFunction = "_ => {}"

	actionTakeScreenshot = "smartui.takeScreenshot"
	actionFetchStatus    = "smartui.fetchScreenshotStatus"
)

const (
	DefaultMaxPolls        = 8
	DefaultInitialInterval = time.Second
	DefaultMaxInterval     = 10 * time.Second
)

// Options configures a Checkpoint.
type Options struct {
	MaxPolls        int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Store receives the local screenshot; nil skips saving.
	Store artifact.Store

	Metrics *metrics.Recorder
	Logger  logging.Logger
}

// Checkpoint captures one screenshot and waits for its verdict.
type Checkpoint struct {
	opts   Options
	logger logging.Logger
}

// New creates a Checkpoint, filling unset polling parameters with defaults.
func New(opts Options) *Checkpoint {
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = DefaultMaxPolls
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultMaxInterval
	}
	if opts.MaxInterval < opts.InitialInterval {
		opts.MaxInterval = opts.InitialInterval
	}
	return &Checkpoint{opts: opts, logger: logging.OrDiscard(opts.Logger)}
}

// ScreenshotName derives the artifact identity of a catalog path. Baseline
// and candidate runs of the same path always produce the same name.
func ScreenshotName(prefix, path string) string {
	return fmt.Sprintf("%s-%s-page", prefix, strings.ReplaceAll(strings.Trim(path, "/"), "/", "-"))
}

// Capture takes a full-page screenshot of page, stores it under the
// capability's directory, registers it with the service and polls until the
// comparison is finished.
func (c *Checkpoint) Capture(ctx context.Context, page browser.Page, capabilitySlug, name string) (types.CheckpointResult, error) {
	data, err := page.Screenshot(browser.ScreenshotOptions{FullPage: true})
	if err != nil {
		return types.CheckpointResult{}, types.Wrap(types.KindScreenshot, "capture", err)
	}

	if c.opts.Store != nil {
		loc, err := c.opts.Store.Save(ctx, artifact.Key(capabilitySlug, name), data)
		if err != nil {
			return types.CheckpointResult{}, types.Wrap(types.KindScreenshot, "save", err)
		}
		c.logger.Debugf("saved %s to %s", name, loc)
	}

	ack, err := send(page, actionTakeScreenshot, map[string]interface{}{
		"fullPage":       true,
		"screenshotName": name,
	})
	if err != nil {
		return types.CheckpointResult{}, types.Wrap(types.KindDiffService, "take screenshot", err)
	}
	if err := parseAck(ack); err != nil {
		return types.CheckpointResult{}, types.Wrap(types.KindDiffService, "take screenshot", err)
	}

	return c.waitForVerdict(ctx, page, name)
}

func (c *Checkpoint) waitForVerdict(ctx context.Context, page browser.Page, name string) (types.CheckpointResult, error) {
	var result types.CheckpointResult
	polls := 0

	op := func() error {
		polls++
		raw, err := send(page, actionFetchStatus, map[string]interface{}{"screenshotName": name})
		if err != nil {
			c.opts.Metrics.StatusPoll(metrics.PollError)
			return backoff.Permanent(err)
		}

		r, err := ParseStatus(raw, name)
		switch {
		case errors.Is(err, errPending):
			c.opts.Metrics.StatusPoll(metrics.PollPending)
			c.logger.Debugf("%s: comparison pending (poll %d/%d)", name, polls, c.opts.MaxPolls)
			return err
		case err != nil:
			c.opts.Metrics.StatusPoll(metrics.PollError)
			return backoff.Permanent(err)
		}

		c.opts.Metrics.StatusPoll(metrics.PollTerminal)
		result = r
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(c.backOff(), ctx))
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, errPending):
		return types.CheckpointResult{}, types.Wrap(types.KindTimeout, "status",
			fmt.Errorf("%s still pending after %d polls: %w", name, polls, types.ErrTimeout))
	default:
		return types.CheckpointResult{}, types.Wrap(types.KindDiffService, "status", err)
	}
}

func (c *Checkpoint) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialInterval
	b.MaxInterval = c.opts.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(c.opts.MaxPolls-1))
}

// send issues one command over the in-page channel and returns the raw
// response.
func send(page browser.Page, action string, args map[string]interface{}) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"action":    action,
		"arguments": args,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", action, err)
	}

	res, err := page.Evaluate(noopFunction, actionPrefix+string(payload))
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", action, err)
	}

	switch v := res.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("unexpected %s response %T", action, v)
		}
		return string(encoded), nil
	}
}
