package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/byteowlz/queryflow/internal/browser"
)

// ErrFetch reports a page that could not be loaded over the network.
var ErrFetch = errors.New("failed to fetch page")

type FetchOptions struct {
	Timeout         time.Duration
	UserAgent       string
	BrowserAgent    string
	Cookies         []*http.Cookie
	FollowRedirects bool
}

// Fetcher loads saved or served HTML for an offline scan.
type Fetcher struct {
	client          *http.Client
	userAgentSelect *browser.UserAgentSelector
	opts            FetchOptions
}

func NewFetcher(opts FetchOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: opts.Timeout}
	if !opts.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return &Fetcher{
		client:          client,
		userAgentSelect: browser.NewUserAgentSelector(),
		opts:            opts,
	}
}

// Load reads target, which is an http(s) URL, a file:// URL or a local path.
// The returned URL is the one recorded as the page's source.
func (f *Fetcher) Load(ctx context.Context, target string) (html string, pageURL string, err error) {
	switch {
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		html, err = f.fetch(ctx, target)
		return html, target, err
	case strings.HasPrefix(target, "file://"):
		u, perr := url.Parse(target)
		if perr != nil {
			return "", "", fmt.Errorf("invalid file URL: %w", perr)
		}
		html, err = readFile(u.Path)
		return html, target, err
	default:
		html, err = readFile(target)
		return html, (&url.URL{Scheme: "file", Path: target}).String(), err
	}
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func (f *Fetcher) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	userAgent := f.opts.UserAgent
	if userAgent == "" {
		userAgent = f.userAgentSelect.GetUserAgent(f.opts.BrowserAgent)
	}
	req.Header.Set("User-Agent", userAgent)

	// Add headers that make the request look more like a real browser
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")

	for _, cookie := range f.opts.Cookies {
		req.AddCookie(cookie)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: HTTP error: %s", ErrFetch, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response body: %v", ErrFetch, err)
	}
	return string(body), nil
}
