package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/entrhq/visreg/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	r := New()

	r.SessionOpened("chromium", nil)
	r.SessionOpened("firefox", errors.New("handshake failed"))
	r.PageValidated("chromium", types.StatusSuccess, 3*time.Second)
	r.PageValidated("chromium", types.StatusSuccess, 4*time.Second)
	r.PageValidated("chromium", types.StatusFailure, time.Second)
	r.StatusPoll(PollPending)
	r.StatusPoll(PollTerminal)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessionsOpened.WithLabelValues("chromium", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessionsOpened.WithLabelValues("firefox", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.pagesValidated.WithLabelValues("chromium", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.pagesValidated.WithLabelValues("chromium", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.statusPolls.WithLabelValues(PollPending)))

	expected := `
# HELP visreg_status_polls_total Screenshot status queries sent to the visual-diff service, by result.
# TYPE visreg_status_polls_total counter
visreg_status_polls_total{result="pending"} 1
visreg_status_polls_total{result="terminal"} 1
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "visreg_status_polls_total"))

	count, err := testutil.GatherAndCount(r.Registry(), "visreg_page_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.SessionOpened("webkit", nil)
		r.PageValidated("webkit", types.StatusFailure, time.Second)
		r.StatusPoll(PollError)
		assert.Nil(t, r.Registry())
		assert.NoError(t, r.Push(context.Background(), "http://unused", "visreg", "run"))
	})
}

func TestRecorder_Push(t *testing.T) {
	var path, body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		path = req.URL.Path
		data, _ := io.ReadAll(req.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := New()
	r.SessionOpened("chromium", nil)

	require.NoError(t, r.Push(context.Background(), server.URL, "visreg", "run-1"))
	assert.Equal(t, "/metrics/job/visreg/run_id/run-1", path)
	assert.NotEmpty(t, body)
}

func TestRecorder_PushFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := New().Push(context.Background(), server.URL, "visreg", "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to push metrics")
}

func TestRecorder_PushDisabled(t *testing.T) {
	assert.NoError(t, New().Push(context.Background(), "", "visreg", "run-1"))
}
