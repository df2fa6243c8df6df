package httpx

import (
	"net"
	"net/http"
	"time"
)

// NewClient returns an HTTP client tuned for long-running polling against
// recreation.gov. The jar may be nil for clients that don't need cookies.
func NewClient(jar http.CookieJar) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}

// APIHeaders sets a browser-like header set for JSON API requests.
// Requests without these (and without cookies from a warmed session)
// tend to get 403s from the upstream.
func APIHeaders(r *http.Request, userAgent string) {
	r.Header.Set("User-Agent", userAgent)
	r.Header.Set("Accept", "application/json, text/plain, */*")
	r.Header.Set("Accept-Language", "en-US,en;q=0.9")
	r.Header.Set("Connection", "keep-alive")
}

// PageHeaders sets the header set used when loading a regular page, e.g.
// the site root during session warm-up.
func PageHeaders(r *http.Request, userAgent string) {
	r.Header.Set("User-Agent", userAgent)
	r.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	r.Header.Set("Accept-Language", "en-US,en;q=0.5")
	r.Header.Set("DNT", "1")
	r.Header.Set("Connection", "keep-alive")
	r.Header.Set("Upgrade-Insecure-Requests", "1")
}
