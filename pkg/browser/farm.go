package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/entrhq/visreg/pkg/capability"
	"github.com/entrhq/visreg/pkg/logging"
	"github.com/entrhq/visreg/pkg/types"
	"github.com/playwright-community/playwright-go"
	"golang.org/x/time/rate"
)

const (
	// DefaultConnectTimeout bounds the websocket handshake with the farm.
	DefaultConnectTimeout = 60 * time.Second

	// DefaultNavigationTimeout bounds a single page load.
	DefaultNavigationTimeout = 60 * time.Second
)

// Options configures a Farm.
type Options struct {
	// Endpoint is the farm's websocket URL, without capabilities.
	Endpoint string

	// OpenRate limits session opens per second. Zero means unlimited.
	OpenRate float64

	ConnectTimeout    time.Duration
	NavigationTimeout time.Duration

	Logger logging.Logger
}

// Farm opens sessions on a remote Playwright grid. It is safe for
// concurrent use once initialized.
type Farm struct {
	mu          sync.Mutex
	opts        Options
	playwright  *playwright.Playwright
	limiter     *rate.Limiter
	sessions    map[*remoteSession]struct{}
	initialized bool
	logger      logging.Logger
}

// NewFarm creates a farm client. Initialize must be called before Open.
func NewFarm(opts Options) *Farm {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}
	return &Farm{
		opts:     opts,
		limiter:  newLimiter(opts.OpenRate),
		sessions: make(map[*remoteSession]struct{}),
		logger:   logging.OrDiscard(opts.Logger),
	}
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Initialize starts the local Playwright driver. Browsers run on the farm,
// so only the driver is installed.
func (f *Farm) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		SkipInstallBrowsers: true,
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return types.Wrap(types.KindSessionOpen, "initialize", fmt.Errorf("failed to install playwright driver: %w", err))
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return types.Wrap(types.KindSessionOpen, "initialize", fmt.Errorf("failed to start playwright: %w", err))
	}

	f.playwright = pw
	f.initialized = true
	return nil
}

// Open connects a browser for d and creates its viewport-sized context.
func (f *Farm) Open(ctx context.Context, d capability.Descriptor) (Session, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, types.Wrap(types.KindSessionOpen, d.Name, fmt.Errorf("waiting to open session: %w", err))
	}

	f.mu.Lock()
	pw := f.playwright
	initialized := f.initialized
	f.mu.Unlock()

	if !initialized {
		return nil, types.Errorf(types.KindSessionOpen, d.Name, "farm not initialized")
	}

	endpoint, err := d.Endpoint(f.opts.Endpoint)
	if err != nil {
		return nil, types.Wrap(types.KindSessionOpen, d.Name, err)
	}

	browserType, err := engineType(pw, d.Engine)
	if err != nil {
		return nil, types.Wrap(types.KindSessionOpen, d.Name, err)
	}

	f.logger.Debugf("connecting %s to %s", d.Name, f.opts.Endpoint)

	timeout := float64(f.opts.ConnectTimeout.Milliseconds())
	b, err := browserType.Connect(endpoint, playwright.BrowserTypeConnectOptions{Timeout: &timeout})
	if err != nil {
		return nil, types.Wrap(types.KindSessionOpen, d.Name, mapError(fmt.Errorf("failed to connect: %w", err)))
	}

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  d.Viewport.Width,
			Height: d.Viewport.Height,
		},
	})
	if err != nil {
		_ = b.Close()
		return nil, types.Wrap(types.KindSessionOpen, d.Name, fmt.Errorf("failed to create context: %w", err))
	}

	s := &remoteSession{
		farm:       f,
		name:       d.Name,
		browser:    b,
		context:    bctx,
		navTimeout: float64(f.opts.NavigationTimeout.Milliseconds()),
	}

	f.mu.Lock()
	f.sessions[s] = struct{}{}
	f.mu.Unlock()

	f.logger.Infof("session opened: %s", d.Name)
	return s, nil
}

func engineType(pw *playwright.Playwright, engine capability.Engine) (playwright.BrowserType, error) {
	switch engine {
	case capability.EngineChromium:
		return pw.Chromium, nil
	case capability.EngineFirefox:
		return pw.Firefox, nil
	case capability.EngineWebKit:
		return pw.WebKit, nil
	default:
		return nil, fmt.Errorf("unsupported engine: %s", engine)
	}
}

func (f *Farm) forget(s *remoteSession) {
	f.mu.Lock()
	delete(f.sessions, s)
	f.mu.Unlock()
}

// Shutdown closes any session still open and stops the driver.
func (f *Farm) Shutdown() error {
	f.mu.Lock()
	open := make([]*remoteSession, 0, len(f.sessions))
	for s := range f.sessions {
		open = append(open, s)
	}
	f.mu.Unlock()

	var errs []error
	for _, s := range open {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized && f.playwright != nil {
		if err := f.playwright.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
		f.initialized = false
	}

	return errors.Join(errs...)
}

// mapError makes driver timeouts recognizable through types.ErrTimeout.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) && !errors.Is(err, types.ErrTimeout) {
		return fmt.Errorf("%w: %w", types.ErrTimeout, err)
	}
	return err
}
