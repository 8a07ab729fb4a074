// Package capability expands a run configuration into the immutable set of
// remote browser session descriptors.
package capability

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/entrhq/visreg/pkg/config"
	"github.com/entrhq/visreg/pkg/types"
)

// Engine is a Playwright browser engine.
type Engine string

const (
	EngineChromium Engine = "chromium"
	EngineFirefox  Engine = "firefox"
	EngineWebKit   Engine = "webkit"
)

// engineInfo is what the farm calls an engine, and how project names refer to it.
type engineInfo struct {
	farmName    string
	projectName string
}

var engines = map[Engine]engineInfo{
	EngineChromium: {farmName: "Chrome", projectName: "chrome"},
	EngineFirefox:  {farmName: "pw-firefox", projectName: "firefox"},
	EngineWebKit:   {farmName: "pw-webkit", projectName: "webkit"},
}

// ParseEngine resolves an engine name case-insensitively.
func ParseEngine(name string) (Engine, error) {
	e := Engine(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := engines[e]; !ok {
		return "", fmt.Errorf("unknown browser engine %q (must be chromium, firefox or webkit)", name)
	}
	return e, nil
}

// Viewport is the browser window size of a session.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Credentials authenticate the session against the farm.
type Credentials struct {
	User      string
	AccessKey string
}

// Features are farm-side capture toggles.
type Features struct {
	Network bool
	Video   bool
	Console bool
}

// Descriptor identifies one remote browser session. It holds only values, so
// copies never alias; it is created by Build and never modified afterwards.
type Descriptor struct {
	Index          int
	Name           string
	Engine         Engine
	BrowserName    string
	BrowserVersion string
	Platform       string
	ScreenSize     string
	Viewport       Viewport
	Build          string
	ProjectName    string
	Baseline       bool
	Credentials    Credentials
	Features       Features
	GithubURL      string
	ClientVersion  string
}

// Build derives one descriptor per configured engine, in configuration order.
// The screen size is matched case-insensitively.
// Any error is a configuration error: no session may be opened on bad input.
func Build(cfg *config.Config) ([]Descriptor, error) {
	screen := strings.ToLower(strings.TrimSpace(cfg.ScreenSize))
	vp, ok := cfg.Viewports[screen]
	if !ok {
		return nil, types.Errorf(types.KindConfiguration, "capabilities",
			"unknown screen size %q (known: %s)", cfg.ScreenSize, strings.Join(cfg.ViewportNames(), ", "))
	}
	if vp.Width <= 0 || vp.Height <= 0 {
		return nil, types.Errorf(types.KindConfiguration, "capabilities",
			"viewport %q has invalid size %dx%d", screen, vp.Width, vp.Height)
	}

	descriptors := make([]Descriptor, 0, len(cfg.Browsers))
	names := make(map[string]bool, len(cfg.Browsers))

	for _, raw := range cfg.Browsers {
		engine, err := ParseEngine(raw)
		if err != nil {
			return nil, types.Wrap(types.KindConfiguration, "capabilities", err)
		}
		info := engines[engine]

		platform := cfg.Platforms[string(engine)]
		if platform == "" {
			return nil, types.Errorf(types.KindConfiguration, "capabilities", "no platform configured for %s", engine)
		}

		name := fmt.Sprintf("SmartUI Test %s %s", engine, screen)
		if names[name] {
			return nil, types.Errorf(types.KindConfiguration, "capabilities", "duplicate capability %q", name)
		}
		names[name] = true

		project := cfg.ProjectName
		if project == "" {
			project = fmt.Sprintf("%s_%s", info.projectName, screen)
		}

		descriptors = append(descriptors, Descriptor{
			Index:          len(descriptors),
			Name:           name,
			Engine:         engine,
			BrowserName:    info.farmName,
			BrowserVersion: cfg.BrowserVersion,
			Platform:       platform,
			ScreenSize:     screen,
			Viewport:       Viewport{Width: vp.Width, Height: vp.Height},
			Build:          cfg.Build,
			ProjectName:    project,
			Baseline:       cfg.Baseline(),
			Credentials:    Credentials{User: cfg.Credentials.User, AccessKey: cfg.Credentials.AccessKey},
			Features:       Features{Network: cfg.Features.Network, Video: cfg.Features.Video, Console: cfg.Features.Console},
			GithubURL:      cfg.GithubURL,
			ClientVersion:  cfg.ClientVersion,
		})
	}

	return descriptors, nil
}

type githubInfo struct {
	URL string `json:"url"`
}

type farmOptions struct {
	Platform      string      `json:"platform"`
	Build         string      `json:"build"`
	Name          string      `json:"name"`
	User          string      `json:"user"`
	AccessKey     string      `json:"accessKey"`
	Network       bool        `json:"network"`
	Video         bool        `json:"video"`
	Console       bool        `json:"console"`
	Project       string      `json:"smartUIProjectName"`
	Baseline      bool        `json:"smartUIBaseline"`
	Github        *githubInfo `json:"github,omitempty"`
	ClientVersion string      `json:"playwrightClientVersion,omitempty"`
}

type farmCapabilities struct {
	BrowserName    string      `json:"browserName"`
	BrowserVersion string      `json:"browserVersion"`
	Options        farmOptions `json:"LT:Options"`
}

// Capabilities renders the session-establishment parameters the farm expects.
func (d Descriptor) Capabilities() ([]byte, error) {
	caps := farmCapabilities{
		BrowserName:    d.BrowserName,
		BrowserVersion: d.BrowserVersion,
		Options: farmOptions{
			Platform:      d.Platform,
			Build:         d.Build,
			Name:          d.Name,
			User:          d.Credentials.User,
			AccessKey:     d.Credentials.AccessKey,
			Network:       d.Features.Network,
			Video:         d.Features.Video,
			Console:       d.Features.Console,
			Project:       d.ProjectName,
			Baseline:      d.Baseline,
			ClientVersion: d.ClientVersion,
		},
	}
	if d.GithubURL != "" {
		caps.Options.Github = &githubInfo{URL: d.GithubURL}
	}
	return json.Marshal(caps)
}

// Endpoint returns the connect URL for this descriptor on the farm at base.
func (d Descriptor) Endpoint(base string) (string, error) {
	caps, err := d.Capabilities()
	if err != nil {
		return "", fmt.Errorf("failed to encode capabilities: %w", err)
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "capabilities=" + url.QueryEscape(string(caps)), nil
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slug is a filesystem-safe form of the descriptor name.
func (d Descriptor) Slug() string {
	return strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(d.Name), "-"), "-")
}

// String returns the descriptor name without credentials, for logs.
func (d Descriptor) String() string {
	return d.Name
}
