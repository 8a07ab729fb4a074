package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/entrhq/visreg/internal/testing/browsertest"
	"github.com/entrhq/visreg/pkg/browser"
	"github.com/entrhq/visreg/pkg/capability"
	"github.com/entrhq/visreg/pkg/catalog"
	"github.com/entrhq/visreg/pkg/metrics"
	"github.com/entrhq/visreg/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStabilizer is a mock implementation of Stabilizer.
type MockStabilizer struct {
	mock.Mock
}

func (m *MockStabilizer) Stabilize(ctx context.Context, page browser.Page) error {
	args := m.Called(ctx, page)
	return args.Error(0)
}

// MockCheckpoint is a mock implementation of Checkpoint.
type MockCheckpoint struct {
	mock.Mock
}

func (m *MockCheckpoint) Capture(ctx context.Context, page browser.Page, capabilitySlug, name string) (types.CheckpointResult, error) {
	args := m.Called(ctx, page, capabilitySlug, name)
	return args.Get(0).(types.CheckpointResult), args.Error(1)
}

var descriptor = capability.Descriptor{
	Index:  1,
	Name:   "SmartUI Test chromium desktop",
	Engine: capability.EngineChromium,
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New("https://erbis.com", []string{"", "company", "services/ui-ux-design"}, nil, nil)
	require.NoError(t, err)
	return c
}

func newPipeline(t *testing.T, s Stabilizer, c Checkpoint, rec *metrics.Recorder) (*Pipeline, []catalog.Page) {
	cat := testCatalog(t)
	return New(Options{Catalog: cat, Stabilizer: s, Checkpoint: c, Metrics: rec}), cat.Pages()
}

func TestValidate_Success(t *testing.T) {
	stab := &MockStabilizer{}
	stab.On("Stabilize", mock.Anything, mock.Anything).Return(nil)
	cp := &MockCheckpoint{}
	cp.On("Capture", mock.Anything, mock.Anything, "smartui-test-chromium-desktop", "erbis-services-ui-ux-design-page").
		Return(types.CheckpointResult{Status: "Approved", Matched: true}, nil)

	rec := metrics.New()
	p, pages := newPipeline(t, stab, cp, rec)
	session := &browsertest.Session{}

	out := p.Validate(context.Background(), session, descriptor, pages[2])

	assert.True(t, out.Succeeded())
	assert.Equal(t, "SmartUI Test chromium desktop", out.Capability)
	assert.Equal(t, 1, out.CapabilityIndex)
	assert.Equal(t, "services/ui-ux-design", out.Page)
	assert.Equal(t, 2, out.PageIndex)
	assert.Equal(t, "erbis-services-ui-ux-design-page", out.ScreenshotName)
	require.NotNil(t, out.Checkpoint)
	assert.True(t, out.Checkpoint.Matched)
	assert.NoError(t, out.Err)
	assert.False(t, out.StartedAt.IsZero())

	tabs := session.Pages()
	require.Len(t, tabs, 1)
	assert.Equal(t, "https://erbis.com/services/ui-ux-design/", tabs[0].URL())
	assert.Equal(t, 1, tabs[0].Closed())

	stab.AssertExpectations(t)
	cp.AssertExpectations(t)

	count, err := testutil.GatherAndCount(rec.Registry(), "visreg_pages_validated_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestValidate_FailuresBecomeOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		session     *browsertest.Session
		stabErr     error
		result      types.CheckpointResult
		captureErr  error
		baseline    bool
		wantKind    types.Kind
		wantCapture bool
	}{
		{
			name: "navigation error",
			session: &browsertest.Session{NewPageFunc: func(int) (*browsertest.Page, error) {
				return &browsertest.Page{GotoErr: errors.New("net::ERR_CONNECTION_RESET")}, nil
			}},
			wantKind: types.KindNavigation,
		},
		{
			name: "new page error",
			session: &browsertest.Session{NewPageFunc: func(int) (*browsertest.Page, error) {
				return nil, errors.New("context closed")
			}},
			wantKind: types.KindNavigation,
		},
		{
			name:     "stabilization error",
			session:  &browsertest.Session{},
			stabErr:  types.Wrap(types.KindStabilization, "reflow", fmt.Errorf("height kept changing: %w", types.ErrTimeout)),
			wantKind: types.KindStabilization,
		},
		{
			name:        "diff service error",
			session:     &browsertest.Session{},
			captureErr:  types.Errorf(types.KindDiffService, "status", "malformed status response"),
			wantKind:    types.KindDiffService,
			wantCapture: true,
		},
		{
			name:        "mismatch",
			session:     &browsertest.Session{},
			result:      types.CheckpointResult{Status: "Changes found", DiffPercentage: 4.25},
			wantKind:    types.KindMismatch,
			wantCapture: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stab := &MockStabilizer{}
			stab.On("Stabilize", mock.Anything, mock.Anything).Return(tt.stabErr)
			cp := &MockCheckpoint{}
			cp.On("Capture", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(tt.result, tt.captureErr)

			p, pages := newPipeline(t, stab, cp, nil)
			d := descriptor
			d.Baseline = tt.baseline

			out := p.Validate(context.Background(), tt.session, d, pages[1])

			assert.False(t, out.Succeeded())
			assert.Equal(t, types.StatusFailure, out.Status)
			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Error(t, out.Err)
			assert.NotEmpty(t, out.Reason)
			assert.Equal(t, "erbis-company-page", out.ScreenshotName)

			if tt.wantCapture {
				cp.AssertNumberOfCalls(t, "Capture", 1)
			} else {
				cp.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
			for _, tab := range tt.session.Pages() {
				assert.Equal(t, 1, tab.Closed(), "page is always closed")
			}
		})
	}
}

func TestValidate_MismatchInBaselineRunSucceeds(t *testing.T) {
	stab := &MockStabilizer{}
	stab.On("Stabilize", mock.Anything, mock.Anything).Return(nil)
	cp := &MockCheckpoint{}
	cp.On("Capture", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(types.CheckpointResult{Status: "Changes found", DiffPercentage: 12}, nil)

	p, pages := newPipeline(t, stab, cp, nil)
	d := descriptor
	d.Baseline = true

	out := p.Validate(context.Background(), &browsertest.Session{}, d, pages[0])
	assert.True(t, out.Succeeded())
	assert.Equal(t, "erbis--page", out.ScreenshotName)
}

func TestValidate_RecoversPanics(t *testing.T) {
	stab := &MockStabilizer{}
	cp := &MockCheckpoint{}
	session := &browsertest.Session{NewPageFunc: func(int) (*browsertest.Page, error) {
		return &browsertest.Page{Panic: "nil map write"}, nil
	}}

	p, pages := newPipeline(t, stab, cp, nil)

	var out types.PageOutcome
	require.NotPanics(t, func() {
		out = p.Validate(context.Background(), session, descriptor, pages[1])
	})

	assert.Equal(t, types.StatusFailure, out.Status)
	assert.Equal(t, types.KindInternal, out.Kind)
	assert.Contains(t, out.Reason, "panic: nil map write")
	assert.Equal(t, 1, session.Pages()[0].Closed())
	stab.AssertNotCalled(t, "Stabilize", mock.Anything, mock.Anything)
}

func TestValidate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, pages := newPipeline(t, &MockStabilizer{}, &MockCheckpoint{}, nil)
	session := &browsertest.Session{}

	out := p.Validate(ctx, session, descriptor, pages[0])
	assert.Equal(t, types.StatusFailure, out.Status)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Empty(t, session.Pages(), "no page opened")
}
