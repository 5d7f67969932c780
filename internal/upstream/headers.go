package upstream

import (
	"fmt"
	"net/http"
	"runtime"

	"crmdash-go/internal/version"
)

func userAgent() string {
	return fmt.Sprintf("crmdash-go/%s (%s; %s) %s", version.Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

// applyDefaultHeaders sets the bearer token and the provider's required headers.
func (p *Proxy) applyDefaultHeaders(req *http.Request, bearer string) {
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if p.opts.APIVersion != "" {
		req.Header.Set("Version", p.opts.APIVersion)
	}
	req.Header.Set("User-Agent", userAgent())
}
