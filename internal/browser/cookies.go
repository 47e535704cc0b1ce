package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // Import all browser support
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
)

type BrowserType string

const (
	BrowserNone    BrowserType = "none"
	BrowserAuto    BrowserType = "auto"
	BrowserChrome  BrowserType = "chrome"
	BrowserFirefox BrowserType = "firefox"
	BrowserSafari  BrowserType = "safari"
	BrowserZen     BrowserType = "zen"
)

func ParseBrowserType(name string) (BrowserType, error) {
	switch t := BrowserType(strings.ToLower(strings.TrimSpace(name))); t {
	case "", BrowserNone:
		return BrowserNone, nil
	case BrowserAuto, BrowserChrome, BrowserFirefox, BrowserSafari, BrowserZen:
		return t, nil
	default:
		return "", fmt.Errorf("unknown cookie browser: %s (available: none, auto, chrome, firefox, safari, zen)", name)
	}
}

// CookieExtractor reads the cookies of a desktop browser profile so the
// automated tab can open a chat page already signed in.
type CookieExtractor struct {
	browserType BrowserType
	now         func() time.Time
}

func NewCookieExtractor(browserType BrowserType) *CookieExtractor {
	return &CookieExtractor{browserType: browserType, now: time.Now}
}

// CookieParams returns the cookies for targetURL's host, converted for
// network.SetCookies.
func (ce *CookieExtractor) CookieParams(ctx context.Context, targetURL string) ([]*network.CookieParam, error) {
	if ce.browserType == BrowserNone {
		return nil, nil
	}

	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	host := parsedURL.Hostname()

	var cookies []*http.Cookie
	if ce.browserType == BrowserAuto {
		// first browser holding any cookie for the host wins
		for _, b := range []BrowserType{BrowserChrome, BrowserFirefox, BrowserZen, BrowserSafari} {
			if found := ce.extractFromBrowser(ctx, b, host); len(found) > 0 {
				cookies = found
				break
			}
		}
	} else {
		cookies = ce.extractFromBrowser(ctx, ce.browserType, host)
	}

	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, toCookieParam(c))
	}
	return params, nil
}

func (ce *CookieExtractor) extractFromBrowser(ctx context.Context, browserType BrowserType, domain string) []*http.Cookie {
	var cookies []*http.Cookie
	now := ce.now()

	for cookie, err := range kooky.TraverseCookies(ctx) {
		if err != nil {
			continue
		}
		if !cookie.Expires.IsZero() && cookie.Expires.Before(now) {
			continue
		}
		if matchesBrowserType(cookie.Browser, browserType) && matchesDomain(cookie.Domain, domain) {
			c := cookie.Cookie
			cookies = append(cookies, &c)
		}
	}
	return cookies
}

func matchesBrowserType(browser kooky.BrowserInfo, browserType BrowserType) bool {
	if browserType == BrowserAuto {
		return true
	}
	if browser == nil {
		return false
	}

	browserName := strings.ToLower(browser.Browser())
	switch browserType {
	case BrowserChrome:
		return strings.Contains(browserName, "chrome") || strings.Contains(browserName, "chromium")
	case BrowserFirefox:
		return strings.Contains(browserName, "firefox") && !strings.Contains(strings.ToLower(browser.FilePath()), "zen")
	case BrowserSafari:
		return strings.Contains(browserName, "safari")
	case BrowserZen:
		return strings.Contains(browserName, "zen") ||
			(strings.Contains(browserName, "firefox") && strings.Contains(strings.ToLower(browser.FilePath()), "zen"))
	}
	return false
}

func matchesDomain(cookieDomain, targetDomain string) bool {
	if cookieDomain == "" || targetDomain == "" {
		return false
	}

	cookieDomain = strings.TrimPrefix(cookieDomain, ".")
	if cookieDomain == targetDomain {
		return true
	}
	return strings.HasSuffix(targetDomain, "."+cookieDomain)
}

func toCookieParam(c *http.Cookie) *network.CookieParam {
	p := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HttpOnly,
	}
	if p.Path == "" {
		p.Path = "/"
	}
	if !c.Expires.IsZero() {
		exp := cdp.TimeSinceEpoch(c.Expires)
		p.Expires = &exp
	}
	switch c.SameSite {
	case http.SameSiteStrictMode:
		p.SameSite = network.CookieSameSiteStrict
	case http.SameSiteLaxMode:
		p.SameSite = network.CookieSameSiteLax
	case http.SameSiteNoneMode:
		p.SameSite = network.CookieSameSiteNone
	}
	return p
}
