// Package resource fetches template bytes for sessions that load by URL.
package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrUnsupportedScheme = errors.New("resource: unsupported scheme")
	ErrTooLarge          = errors.New("resource: response exceeds size limit")
)

// Fetcher loads the template addressed by rawURL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

type FetcherFunc func(ctx context.Context, rawURL string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return f(ctx, rawURL)
}

// FileFetcher reads file:// URLs and bare paths. Relative paths resolve
// against Root.
type FileFetcher struct {
	Root string
}

func (f FileFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := rawURL
	if strings.HasPrefix(rawURL, "file://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("resource: parse %q: %w", rawURL, err)
		}
		p = u.Path
	}
	if !filepath.IsAbs(p) && f.Root != "" {
		p = filepath.Join(f.Root, p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("resource: read %s: %w", p, err)
	}
	return data, nil
}

// HTTPFetcher GETs http and https URLs. A zero MaxBytes means no limit.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

const defaultHTTPTimeout = 30 * time.Second

func (f HTTPFetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

func (f HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("resource: build request: %w", err)
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("resource: get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resource: get %s: status %d", rawURL, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("resource: read body %s: %w", rawURL, err)
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, rawURL)
	}
	return data, nil
}

// Multi routes a URL to the fetcher registered for its scheme. URLs without
// a scheme go to the "file" fetcher.
type Multi struct {
	fetchers map[string]Fetcher
	health   *Health
}

func NewMulti() *Multi {
	return &Multi{
		fetchers: make(map[string]Fetcher),
		health:   NewHealth(),
	}
}

// Default returns a Multi serving file, http and https.
func Default(root string) *Multi {
	m := NewMulti()
	m.Register("file", FileFetcher{Root: root})
	h := HTTPFetcher{}
	m.Register("http", h)
	m.Register("https", h)
	return m
}

// Register is not safe for use concurrently with Fetch.
func (m *Multi) Register(scheme string, f Fetcher) {
	m.fetchers[strings.ToLower(scheme)] = f
}

func (m *Multi) Health() *Health { return m.health }

func (m *Multi) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	scheme := Scheme(rawURL)
	f, ok := m.fetchers[scheme]
	if !ok {
		err := fmt.Errorf("%w %q", ErrUnsupportedScheme, scheme)
		m.health.RecordFailure(scheme, rawURL, err)
		return nil, err
	}
	data, err := f.Fetch(ctx, rawURL)
	if err != nil {
		m.health.RecordFailure(scheme, rawURL, err)
		return nil, err
	}
	m.health.RecordSuccess(scheme, rawURL)
	return data, nil
}

// Scheme returns the lowercase URL scheme of rawURL, or "file" for paths.
func Scheme(rawURL string) string {
	i := strings.Index(rawURL, "://")
	if i <= 0 {
		return "file"
	}
	return strings.ToLower(rawURL[:i])
}
