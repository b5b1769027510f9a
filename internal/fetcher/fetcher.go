package fetcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/feichai0017/document-monitor/config"
	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
	"github.com/feichai0017/document-monitor/pkg/storage"
)

// InternalScheme addresses blobs already held by the storage gateway.
const InternalScheme = "internal"

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeHTML = "text/html"
	ContentTypeJSON = "application/json"
)

var extToMIME = map[string]string{
	".pdf":  ContentTypePDF,
	".html": ContentTypeHTML,
	".htm":  ContentTypeHTML,
	".json": ContentTypeJSON,
}

// Result is a downloaded document body.
type Result struct {
	Data        []byte
	ContentType string
}

// Fetcher retrieves raw document bytes over HTTP(S) or from storage.
type Fetcher struct {
	client    *http.Client
	storage   storage.Storage
	maxBytes  int64
	timeout   time.Duration
	userAgent string
	logger    logger.Logger
}

func New(cfg config.FetchConfig, store storage.Storage, log logger.Logger) *Fetcher {
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   cfg.Timeout,
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
		storage:   store,
		maxBytes:  cfg.MaxBytes,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		logger:    log.Named("fetcher"),
	}
}

// Fetch downloads rawURL. Every failure is marked errors.ErrFetchFailed and
// additionally ErrTimeout, ErrTooLarge or ErrNotFound where that applies.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fetchErr(errors.Wrapf(err, "parse url %q", rawURL))
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	var res *Result
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		res, err = f.fetchHTTP(ctx, u)
	case InternalScheme:
		res, err = f.fetchInternal(ctx, u)
	default:
		return nil, fetchErr(errors.Newf("unsupported url scheme %q", u.Scheme))
	}
	if err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, errors.ErrTimeout) {
			err = errors.Mark(err, errors.ErrTimeout)
		}
		f.logger.Warn("Fetch failed", logger.String("url", rawURL), logger.Error(err))
		return nil, fetchErr(err)
	}

	f.logger.Info("Fetched document",
		logger.String("url", rawURL),
		logger.String("content_type", res.ContentType),
		logger.Int("bytes", len(res.Data)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/pdf,text/html,application/json;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		var netErr net.Error
		if stderrors.As(err, &netErr) && netErr.Timeout() {
			return nil, errors.Mark(errors.Wrap(err, "request"), errors.ErrTimeout)
		}
		return nil, errors.Wrap(err, "request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, errors.Mark(errors.Newf("source returned %d", resp.StatusCode), errors.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errors.Newf("source returned %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, errors.Mark(errors.Newf("content length %d exceeds limit %d", resp.ContentLength, f.maxBytes), errors.ErrTooLarge)
	}

	data, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, ContentType: resolveContentType(resp.Header.Get("Content-Type"), u.Path)}, nil
}

func (f *Fetcher) fetchInternal(ctx context.Context, u *url.URL) (*Result, error) {
	if f.storage == nil {
		return nil, errors.New("internal urls need a storage gateway")
	}
	// internal://uploads/a.pdf parses with host "uploads"
	key := strings.TrimPrefix(path.Join(u.Host, u.Path), "/")
	if key == "" {
		return nil, errors.Newf("empty internal path in %q", u.String())
	}

	rc, err := f.storage.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := f.readLimited(rc)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, ContentType: resolveContentType("", key)}, nil
}

// readLimited reads at most maxBytes+1 so an oversized body is detected
// without buffering it.
func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errors.Mark(errors.Newf("body exceeds limit of %d bytes", f.maxBytes), errors.ErrTooLarge)
	}
	return data, nil
}

// genericTypes say nothing about the payload; the path extension decides.
var genericTypes = map[string]bool{
	"application/octet-stream": true,
	"binary/octet-stream":      true,
	"application/binary":       true,
	"application/download":     true,
}

func resolveContentType(header, p string) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil && !genericTypes[mt] {
			switch {
			case strings.Contains(mt, "pdf"):
				return ContentTypePDF
			case strings.Contains(mt, "html"):
				return ContentTypeHTML
			}
			return mt
		}
	}
	return ContentTypeForPath(p)
}

// ContentTypeForPath maps a path extension to a content type, defaulting to PDF.
func ContentTypeForPath(p string) string {
	if ct, ok := extToMIME[strings.ToLower(path.Ext(p))]; ok {
		return ct
	}
	return ContentTypePDF
}

// ExtensionFor returns the file extension used when storing content of type ct.
func ExtensionFor(ct string) string {
	for ext, m := range extToMIME {
		if m == ct && ext != ".htm" {
			return ext
		}
	}
	return ".pdf"
}

func fetchErr(err error) error {
	return errors.Classify(err, errors.ErrFetchFailed)
}

// String is used in step details.
func (r *Result) String() string {
	return fmt.Sprintf("%d bytes (%s)", len(r.Data), r.ContentType)
}
