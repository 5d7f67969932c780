package upstream

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"crmdash-go/internal/constants"
)

// NewHTTPClient builds the pooled client used for CRM API calls. Per-call
// deadlines come from the request context.
func NewHTTPClient(proxyURL string) *http.Client {
	tr := &http.Transport{
		Proxy: getProxyFunc(proxyURL),
		DialContext: (&net.Dialer{
			Timeout:   constants.DefaultDialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   constants.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: constants.DefaultResponseHeaderTimeout,
		ExpectContinueTimeout: constants.DefaultExpectContinueTimeout,
		MaxIdleConns:          constants.BaseMaxIdleConns,
		MaxIdleConnsPerHost:   constants.BaseMaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{Transport: tr}
}

// getProxyFunc prefers an explicit proxy URL and falls back to the environment.
func getProxyFunc(proxyURL string) func(*http.Request) (*url.URL, error) {
	if proxyURL != "" {
		if parsedURL, err := url.Parse(proxyURL); err == nil {
			return http.ProxyURL(parsedURL)
		}
	}
	return http.ProxyFromEnvironment
}
