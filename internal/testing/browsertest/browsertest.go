// Package browsertest provides in-memory browser sessions for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/visreg/pkg/browser"
	"github.com/entrhq/visreg/pkg/capability"
)

// ActionPrefix marks an Evaluate argument carrying a SmartUI command.
const ActionPrefix = "lambdatest_action: "

// Evaluator answers Page.Evaluate calls.
type Evaluator func(expression string, arg interface{}) (interface{}, error)

// Page is a scriptable browser.Page. Zero values succeed.
type Page struct {
	mu sync.Mutex

	GotoErr       error
	WaitErr       error
	RemoveErr     error
	Removed       int
	ScreenshotErr error
	PNG           []byte
	Evaluator     Evaluator

	// Panic, when set, is raised from Goto.
	Panic interface{}

	// Delay is slept on every Goto, to widen race windows.
	Delay time.Duration

	url         string
	screenshots []browser.ScreenshotOptions
	calls       []string
	closed      int
}

var _ browser.Page = (*Page)(nil)

func (p *Page) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *Page) Goto(url string) error {
	p.record("goto " + url)
	if p.Delay > 0 {
		time.Sleep(p.Delay)
	}
	if p.Panic != nil {
		panic(p.Panic)
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return p.GotoErr
}

func (p *Page) WaitForAttached(selector string, timeout time.Duration) error {
	p.record("wait " + selector)
	return p.WaitErr
}

func (p *Page) RemoveAll(selector string) (int, error) {
	p.record("remove " + selector)
	if p.RemoveErr != nil {
		return 0, p.RemoveErr
	}
	return p.Removed, nil
}

func (p *Page) Evaluate(expression string, arg interface{}) (interface{}, error) {
	p.record("evaluate")
	if p.Evaluator == nil {
		return nil, nil
	}
	return p.Evaluator(expression, arg)
}

func (p *Page) Screenshot(opts browser.ScreenshotOptions) ([]byte, error) {
	p.record("screenshot")
	p.mu.Lock()
	p.screenshots = append(p.screenshots, opts)
	p.mu.Unlock()
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	if p.PNG == nil {
		return []byte("\x89PNG fake"), nil
	}
	return p.PNG, nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	return nil
}

// URL returns the last navigated URL.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Calls returns the recorded call log.
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Screenshots returns the options of every capture.
func (p *Page) Screenshots() []browser.ScreenshotOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.ScreenshotOptions(nil), p.screenshots...)
}

// Closed returns how many times Close was called.
func (p *Page) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Session hands out pages built by NewPageFunc, or fresh zero Pages.
type Session struct {
	mu sync.Mutex

	NewPageFunc func(n int) (*Page, error)

	pages  []*Page
	closed int
}

var _ browser.Session = (*Session)(nil)

func (s *Session) NewPage() (browser.Page, error) {
	s.mu.Lock()
	n := len(s.pages)
	s.mu.Unlock()

	page := &Page{}
	if s.NewPageFunc != nil {
		p, err := s.NewPageFunc(n)
		if err != nil {
			return nil, err
		}
		page = p
	}

	s.mu.Lock()
	s.pages = append(s.pages, page)
	s.mu.Unlock()
	return page, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

// Pages returns every page handed out so far.
func (s *Session) Pages() []*Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Page(nil), s.pages...)
}

// Closed returns how many times Close was called.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Factory opens Sessions keyed by descriptor name.
type Factory struct {
	mu sync.Mutex

	// OpenErr fails the open of the named descriptors.
	OpenErr map[string]error

	// NewSession customizes sessions; nil yields empty Sessions.
	NewSession func(d capability.Descriptor) *Session

	sessions map[string]*Session
	opened   []string
}

var _ browser.SessionFactory = (*Factory)(nil)

func (f *Factory) Open(ctx context.Context, d capability.Descriptor) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.opened = append(f.opened, d.Name)
	if err := f.OpenErr[d.Name]; err != nil {
		return nil, err
	}

	s := &Session{}
	if f.NewSession != nil {
		s = f.NewSession(d)
	}
	if f.sessions == nil {
		f.sessions = make(map[string]*Session)
	}
	f.sessions[d.Name] = s
	return s, nil
}

// Session returns the session opened for name, or nil.
func (f *Factory) Session(name string) *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[name]
}

// Opened returns the descriptor names passed to Open, in call order.
func (f *Factory) Opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

// SmartUI simulates the visual-diff command channel and a document whose
// height never changes.
type SmartUI struct {
	mu sync.Mutex

	Height int

	// Status returns the fetchScreenshotStatus payload for name on the given
	// poll, counted from 1. Nil answers every poll with an approved match.
	Status func(name string, poll int) string

	// TakeErr fails every takeScreenshot command.
	TakeErr error

	taken []string
	polls map[string]int
}

// Approved is a fetchScreenshotStatus payload for a matching screenshot.
func Approved(name string) string {
	return StatusPayload(name, "Approved", 0)
}

// StatusPayload builds a fetchScreenshotStatus payload.
func StatusPayload(name, status string, mismatch float64) string {
	return fmt.Sprintf(`{"data":{"buildStatus":"completed","screenshotsData":[{"screenshotName":%q,"screenshotStatus":%q,"mismatchPercentage":%g}]}}`,
		name, status, mismatch)
}

type action struct {
	Action    string `json:"action"`
	Arguments struct {
		ScreenshotName string `json:"screenshotName"`
		FullPage       bool   `json:"fullPage"`
	} `json:"arguments"`
}

// Evaluate implements Evaluator.
func (s *SmartUI) Evaluate(expression string, arg interface{}) (interface{}, error) {
	cmd, ok := arg.(string)
	if !ok || !strings.HasPrefix(cmd, ActionPrefix) {
		return s.Height, nil
	}

	var a action
	if err := json.Unmarshal([]byte(strings.TrimPrefix(cmd, ActionPrefix)), &a); err != nil {
		return nil, fmt.Errorf("malformed action: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch a.Action {
	case "smartui.takeScreenshot":
		if s.TakeErr != nil {
			return nil, s.TakeErr
		}
		s.taken = append(s.taken, a.Arguments.ScreenshotName)
		return `{"data":{"message":"screenshot queued"}}`, nil
	case "smartui.fetchScreenshotStatus":
		if s.polls == nil {
			s.polls = make(map[string]int)
		}
		s.polls[a.Arguments.ScreenshotName]++
		poll := s.polls[a.Arguments.ScreenshotName]
		if s.Status == nil {
			return Approved(a.Arguments.ScreenshotName), nil
		}
		return s.Status(a.Arguments.ScreenshotName, poll), nil
	default:
		return nil, errors.New("unknown action " + a.Action)
	}
}

// Taken returns the screenshot names registered with takeScreenshot.
func (s *SmartUI) Taken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.taken...)
}

// Polls returns how many status polls name received.
func (s *SmartUI) Polls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls[name]
}
