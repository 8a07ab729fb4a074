package browser

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// remoteSession owns one connected browser and its context.
type remoteSession struct {
	farm       *Farm
	name       string
	browser    playwright.Browser
	context    playwright.BrowserContext
	navTimeout float64

	closeOnce sync.Once
	closeErr  error
}

func (s *remoteSession) NewPage() (Page, error) {
	page, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", mapError(err))
	}
	page.SetDefaultNavigationTimeout(s.navTimeout)
	return &remotePage{page: page}, nil
}

// Close releases the context and the remote browser. Safe to call twice.
func (s *remoteSession) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.context.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.browser.Close(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			s.closeErr = fmt.Errorf("closing session %s: %w", s.name, errors.Join(errs...))
		}
		s.farm.forget(s)
	})
	return s.closeErr
}

type remotePage struct {
	page playwright.Page
}

func (p *remotePage) Goto(url string) error {
	waitUntil := playwright.WaitUntilState("load")
	if _, err := p.page.Goto(url, playwright.PageGotoOptions{WaitUntil: &waitUntil}); err != nil {
		return fmt.Errorf("navigation failed: %w", mapError(err))
	}
	return nil
}

func (p *remotePage) WaitForAttached(selector string, timeout time.Duration) error {
	state := playwright.WaitForSelectorState("attached")
	ms := float64(timeout.Milliseconds())
	err := p.page.Locator(selector).WaitFor(playwright.LocatorWaitForOptions{
		State:   &state,
		Timeout: &ms,
	})
	if err != nil {
		return fmt.Errorf("wait for %s failed: %w", selector, mapError(err))
	}
	return nil
}

const removeAllScript = `selector => {
	const nodes = document.querySelectorAll(selector);
	nodes.forEach(node => node.remove());
	return nodes.length;
}`

func (p *remotePage) RemoveAll(selector string) (int, error) {
	result, err := p.page.Evaluate(removeAllScript, selector)
	if err != nil {
		return 0, fmt.Errorf("remove %s failed: %w", selector, mapError(err))
	}
	return toInt(result), nil
}

func (p *remotePage) Evaluate(expression string, arg interface{}) (interface{}, error) {
	result, err := p.page.Evaluate(expression, arg)
	if err != nil {
		return nil, fmt.Errorf("evaluate failed: %w", mapError(err))
	}
	return result, nil
}

func (p *remotePage) Screenshot(opts ScreenshotOptions) ([]byte, error) {
	animations := playwright.ScreenshotAnimations("disabled")
	pwOpts := playwright.PageScreenshotOptions{
		FullPage:   &opts.FullPage,
		Animations: &animations,
	}
	data, err := p.page.Screenshot(pwOpts)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", mapError(err))
	}
	return data, nil
}

func (p *remotePage) Close() error {
	return p.page.Close()
}

// toInt converts a numeric value decoded from the page. The driver hands
// back JSON numbers as int or float64 depending on their value.
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
