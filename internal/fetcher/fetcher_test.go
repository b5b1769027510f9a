package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/feichai0017/document-monitor/config"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
	"github.com/feichai0017/document-monitor/pkg/storage/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFetcher(t *testing.T, maxBytes int64, timeout time.Duration) (*Fetcher, *local.LocalStorage) {
	t.Helper()
	store, err := local.NewLocalStorage(t.TempDir(), logger.NewTestLogger())
	require.NoError(t, err)
	return New(config.FetchConfig{MaxBytes: maxBytes, Timeout: timeout, UserAgent: config.DefaultUserAgent}, store, logger.NewTestLogger()), store
}

func TestFetchHTTPSendsBrowserUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/pdf; charset=binary")
		w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	f, _ := newFetcher(t, 1024, 5*time.Second)
	res, err := f.Fetch(context.Background(), srv.URL+"/terms")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(res.Data))
	assert.Equal(t, ContentTypePDF, res.ContentType)
	assert.Contains(t, gotUA, "Mozilla/5.0")
}

func TestFetchHTTPContentTypeFromExtension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	f, _ := newFetcher(t, 1024, 5*time.Second)
	res, err := f.Fetch(context.Background(), srv.URL+"/page.html")
	require.NoError(t, err)
	assert.Equal(t, ContentTypeHTML, res.ContentType)
}

func TestResolveContentTypeVariants(t *testing.T) {
	cases := []struct {
		header, path, want string
	}{
		{"application/x-pdf", "/doc", ContentTypePDF},
		{"application/pdf; charset=binary", "/doc", ContentTypePDF},
		{"binary/octet-stream", "/bucket/terms.pdf", ContentTypePDF},
		{"binary/octet-stream", "/bucket/page.html", ContentTypeHTML},
		{"application/xhtml+xml", "/doc", ContentTypeHTML},
		{"", "/data.json", ContentTypeJSON},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, resolveContentType(tc.header, tc.path), tc.header+" "+tc.path)
	}
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no Content-Length: chunked body
		w.(http.Flusher).Flush()
		w.Write([]byte(strings.Repeat("a", 64)))
	}))
	defer srv.Close()

	f, _ := newFetcher(t, 16, 5*time.Second)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTooLarge))
	assert.True(t, errors.Is(err, errors.ErrFetchFailed))
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	f, _ := newFetcher(t, 1024, 100*time.Millisecond)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTimeout))
	assert.True(t, errors.Is(err, errors.ErrFetchFailed))
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f, _ := newFetcher(t, 1024, time.Second)
	_, err := f.Fetch(context.Background(), srv.URL+"/missing.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.True(t, errors.Is(err, errors.ErrFetchFailed))
}

func TestFetchInternalScheme(t *testing.T) {
	f, store := newFetcher(t, 1024, time.Second)
	_, err := store.Upload(context.Background(), "uploads/20240105_120000_policy.json", []byte(`{"a":1}`), "application/json")
	require.NoError(t, err)

	res, err := f.Fetch(context.Background(), "internal://uploads/20240105_120000_policy.json")
	require.NoError(t, err)
	assert.Equal(t, ContentTypeJSON, res.ContentType)
	assert.Equal(t, `{"a":1}`, string(res.Data))

	_, err = f.Fetch(context.Background(), "internal://uploads/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestFetchUnsupportedScheme(t *testing.T) {
	f, _ := newFetcher(t, 1024, time.Second)
	_, err := f.Fetch(context.Background(), "ftp://example.com/a.pdf")
	assert.True(t, errors.Is(err, errors.ErrFetchFailed))
}

func TestContentTypeForPath(t *testing.T) {
	assert.Equal(t, ContentTypePDF, ContentTypeForPath("uploads/contract"))
	assert.Equal(t, ContentTypeJSON, ContentTypeForPath("a/b.JSON"))
	assert.Equal(t, ".html", ExtensionFor(ContentTypeHTML))
	assert.Equal(t, ".pdf", ExtensionFor("application/x-unknown"))
}
