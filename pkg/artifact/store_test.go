package artifact

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "smartui-test-chromium-desktop/erbis-company-page.png",
		Key("smartui-test-chromium-desktop", "erbis-company-page"))
}

func TestLocalStore_SaveOverwrites(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	key := Key("smartui-test-chromium-desktop", "erbis--page")

	loc, err := s.Save(context.Background(), key, []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "smartui-test-chromium-desktop", "erbis--page.png"), loc)

	loc2, err := s.Save(context.Background(), key, []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, loc, loc2)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestLocalStore_CapabilitiesDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)

	a, err := s.Save(context.Background(), Key("chromium", "erbis-company-page"), []byte("a"))
	require.NoError(t, err)
	b, err := s.Save(context.Background(), Key("firefox", "erbis-company-page"), []byte("b"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	for _, key := range []string{"", ".", "..", "../outside.png", "a/../../outside.png"} {
		_, err := s.Save(context.Background(), key, []byte("x"))
		assert.Error(t, err, key)
	}
}

func TestLocalStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalStore(t.TempDir()).Save(ctx, "a.png", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingStore struct{ err error }

func (f failingStore) Save(context.Context, string, []byte) (string, error) { return "", f.err }

func TestMulti_SavesEverywhere(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	m := Multi{NewLocalStore(first), NewLocalStore(second)}

	loc, err := m.Save(context.Background(), "caps/shot.png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(first, "caps", "shot.png"), loc)
	assert.FileExists(t, filepath.Join(second, "caps", "shot.png"))
}

func TestMulti_ReportsFailuresButKeepsGoing(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("bucket unreachable")
	m := Multi{NewLocalStore(dir), failingStore{err: boom}}

	loc, err := m.Save(context.Background(), "caps/shot.png", []byte("png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, filepath.Join(dir, "caps", "shot.png"), loc)
	assert.FileExists(t, loc)
}

func TestMinioConfig_Validate(t *testing.T) {
	valid := MinioConfig{Endpoint: "localhost:9000", Bucket: "screens"}
	assert.NoError(t, valid.Validate())

	withScheme := valid
	withScheme.Endpoint = "http://localhost:9000"
	assert.ErrorContains(t, withScheme.Validate(), "must not include scheme")

	noBucket := valid
	noBucket.Bucket = ""
	assert.ErrorContains(t, noBucket.Validate(), "bucket is required")

	_, err := NewMinioStore(MinioConfig{})
	assert.ErrorContains(t, err, "invalid s3 config")
}

func TestMinioStore_Save(t *testing.T) {
	var method, objectPath, contentType, body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		method = req.Method
		objectPath = req.URL.Path
		contentType = req.Header.Get("Content-Type")
		data, _ := io.ReadAll(req.Body)
		body = string(data)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, err := NewMinioStore(MinioConfig{
		Endpoint:  strings.TrimPrefix(server.URL, "http://"),
		Bucket:    "screens",
		Region:    "us-east-1",
		AccessKey: "ak",
		SecretKey: "sk",
		Prefix:    "run-1/",
	})
	require.NoError(t, err)

	loc, err := s.Save(context.Background(), "caps/erbis-company-page.png", []byte("png-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "s3://screens/run-1/caps/erbis-company-page.png", loc)
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/screens/run-1/caps/erbis-company-page.png", objectPath)
	assert.Equal(t, "image/png", contentType)
	assert.Contains(t, body, "png-bytes")
}

func TestMinioStore_NotInitialized(t *testing.T) {
	var s *MinioStore
	_, err := s.Save(context.Background(), "a.png", nil)
	assert.ErrorContains(t, err, "not initialized")

	_, err = NewMinioStoreWithClient(nil, "b", "")
	assert.ErrorContains(t, err, "client is required")
}
