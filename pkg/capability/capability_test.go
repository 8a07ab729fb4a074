package capability

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/entrhq/visreg/pkg/config"
	"github.com/entrhq/visreg/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(screen string, baseline bool, browsers ...string) *config.Config {
	c := config.DefaultConfig()
	c.ScreenSize = screen
	c.IsBaseline = &baseline
	c.Browsers = browsers
	c.Credentials = config.Credentials{User: "ci-user", AccessKey: "secret"}
	return c
}

func TestBuild_OneDescriptorPerEngine(t *testing.T) {
	cfg := testConfig("desktop", true, "chromium", "firefox", "WebKit")

	descriptors, err := Build(cfg)
	require.NoError(t, err)
	require.Len(t, descriptors, 3)

	names := map[string]bool{}
	for i, d := range descriptors {
		assert.Equal(t, i, d.Index)
		assert.False(t, names[d.Name], "descriptor names must be unique")
		names[d.Name] = true
		assert.Equal(t, Viewport{Width: 1920, Height: 1080}, d.Viewport)
		assert.True(t, d.Baseline)
	}

	assert.Equal(t, EngineChromium, descriptors[0].Engine)
	assert.Equal(t, "Chrome", descriptors[0].BrowserName)
	assert.Equal(t, "Windows 10", descriptors[0].Platform)
	assert.Equal(t, "chrome_desktop", descriptors[0].ProjectName)

	assert.Equal(t, "pw-firefox", descriptors[1].BrowserName)
	assert.Equal(t, "firefox_desktop", descriptors[1].ProjectName)

	assert.Equal(t, EngineWebKit, descriptors[2].Engine)
	assert.Equal(t, "MacOS Ventura", descriptors[2].Platform)
	assert.Equal(t, "SmartUI Test webkit desktop", descriptors[2].Name)
}

func TestBuild_ScreenSizeIsCaseInsensitive(t *testing.T) {
	descriptors, err := Build(testConfig(" Desktop", false, "chromium"))
	require.NoError(t, err)
	require.Len(t, descriptors, 1)

	d := descriptors[0]
	assert.Equal(t, "desktop", d.ScreenSize)
	assert.Equal(t, "SmartUI Test chromium desktop", d.Name)
	assert.Equal(t, "chrome_desktop", d.ProjectName)
	assert.Equal(t, Viewport{Width: 1920, Height: 1080}, d.Viewport)
}

func TestBuild_ExplicitProjectName(t *testing.T) {
	cfg := testConfig("mobile", false, "chromium")
	cfg.ProjectName = "erbis"

	descriptors, err := Build(cfg)
	require.NoError(t, err)
	assert.Equal(t, "erbis", descriptors[0].ProjectName)
	assert.Equal(t, Viewport{Width: 390, Height: 844}, descriptors[0].Viewport)
}

func TestBuild_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.Config
		wantErr string
	}{
		{
			name:    "unknown screen size",
			cfg:     testConfig("tablet", false, "chromium"),
			wantErr: `unknown screen size "tablet" (known: desktop, mobile)`,
		},
		{
			name:    "unknown engine",
			cfg:     testConfig("desktop", false, "chromium", "opera"),
			wantErr: `unknown browser engine "opera"`,
		},
		{
			name:    "duplicate engine",
			cfg:     testConfig("desktop", false, "chromium", "Chromium"),
			wantErr: "duplicate capability",
		},
		{
			name: "missing platform",
			cfg: func() *config.Config {
				c := testConfig("desktop", false, "webkit")
				delete(c.Platforms, "webkit")
				return c
			}(),
			wantErr: "no platform configured for webkit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			descriptors, err := Build(tt.cfg)
			require.Error(t, err)
			assert.Nil(t, descriptors)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, types.KindConfiguration, types.KindOf(err))
		})
	}
}

func TestBuild_DescriptorsDoNotAliasConfig(t *testing.T) {
	cfg := testConfig("desktop", false, "chromium")
	descriptors, err := Build(cfg)
	require.NoError(t, err)

	cfg.Viewports["desktop"] = config.Viewport{Width: 1, Height: 1}
	cfg.Credentials.User = "someone-else"

	assert.Equal(t, Viewport{Width: 1920, Height: 1080}, descriptors[0].Viewport)
	assert.Equal(t, "ci-user", descriptors[0].Credentials.User)
}

func TestDescriptor_Capabilities(t *testing.T) {
	cfg := testConfig("desktop", true, "firefox")
	cfg.GithubURL = "https://github.com/erbis/site/pull/7"

	descriptors, err := Build(cfg)
	require.NoError(t, err)

	raw, err := descriptors[0].Capabilities()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "pw-firefox", decoded["browserName"])
	assert.Equal(t, "latest", decoded["browserVersion"])

	opts := decoded["LT:Options"].(map[string]interface{})
	assert.Equal(t, "Windows 10", opts["platform"])
	assert.Equal(t, "SmartUI Test firefox desktop", opts["name"])
	assert.Equal(t, "ci-user", opts["user"])
	assert.Equal(t, "secret", opts["accessKey"])
	assert.Equal(t, "firefox_desktop", opts["smartUIProjectName"])
	assert.Equal(t, true, opts["smartUIBaseline"])
	assert.Equal(t, true, opts["video"])
	assert.Equal(t, "1.52.0", opts["playwrightClientVersion"])
	assert.Equal(t, map[string]interface{}{"url": "https://github.com/erbis/site/pull/7"}, opts["github"])
}

func TestDescriptor_CapabilitiesOmitsEmptyGithub(t *testing.T) {
	descriptors, err := Build(testConfig("desktop", false, "chromium"))
	require.NoError(t, err)

	raw, err := descriptors[0].Capabilities()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "github")
}

func TestDescriptor_Endpoint(t *testing.T) {
	descriptors, err := Build(testConfig("mobile", false, "chromium"))
	require.NoError(t, err)

	endpoint, err := descriptors[0].Endpoint("wss://cdp.lambdatest.com/playwright")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(endpoint, "wss://cdp.lambdatest.com/playwright?capabilities="))

	u, err := url.Parse(endpoint)
	require.NoError(t, err)
	caps, err := descriptors[0].Capabilities()
	require.NoError(t, err)
	assert.JSONEq(t, string(caps), u.Query().Get("capabilities"))

	withQuery, err := descriptors[0].Endpoint("wss://grid.example/playwright?region=eu")
	require.NoError(t, err)
	assert.Contains(t, withQuery, "?region=eu&capabilities=")
}

func TestDescriptor_SlugAndString(t *testing.T) {
	d := Descriptor{Name: "SmartUI Test chromium desktop", Credentials: Credentials{AccessKey: "secret"}}
	assert.Equal(t, "smartui-test-chromium-desktop", d.Slug())
	assert.Equal(t, "SmartUI Test chromium desktop", d.String())
	assert.NotContains(t, d.String(), "secret")
}
