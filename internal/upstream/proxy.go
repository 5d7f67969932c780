package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crmdash-go/internal/config"
	"crmdash-go/internal/constants"
	"crmdash-go/internal/credential"
	apperrors "crmdash-go/internal/errors"
	"crmdash-go/internal/logging"
	"crmdash-go/internal/monitoring"
	"crmdash-go/internal/monitoring/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Refresher performs the refresh-token grant. It writes the new credential to
// the store on success.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (credential.Credential, error)
}

// Options configures a Proxy.
type Options struct {
	Provider   string
	APIBase    string
	APIVersion string
	LocationID string
	Timeout    time.Duration
	ProxyURL   string
}

// OptionsFromConfig maps the provider section of the configuration.
func OptionsFromConfig(p config.ProviderConfig) Options {
	return Options{
		Provider:   p.Name,
		APIBase:    p.APIBase,
		APIVersion: p.APIVersion,
		LocationID: p.LocationID,
		Timeout:    time.Duration(p.RequestTimeoutSec) * time.Second,
		ProxyURL:   p.ProxyURL,
	}
}

// Request is a single upstream API call. Path is relative to the API base
// unless it is an absolute URL. Token and RefreshToken are the caller's own
// tokens (cookie, header or query) and are used only when the store is empty.
type Request struct {
	Method       string
	Path         string
	Params       url.Values
	Token        string
	RefreshToken string
}

// Response is a fully buffered upstream reply.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	Refreshed bool
}

// Proxy issues authenticated CRM API calls and retries exactly once after a
// credential refresh when the first attempt is rejected with 401.
type Proxy struct {
	opts        Options
	cli         *http.Client
	store       *credential.Store
	coordinator *credential.RefreshCoordinator
	refresher   Refresher
	maxBody     int64
}

// ProxyOption customizes Proxy creation.
type ProxyOption func(*Proxy)

// WithHTTPClient overrides the pooled HTTP client.
func WithHTTPClient(cli *http.Client) ProxyOption {
	return func(p *Proxy) {
		if cli != nil {
			p.cli = cli
		}
	}
}

// WithMaxBodyBytes caps how much of an upstream reply is buffered.
func WithMaxBodyBytes(n int64) ProxyOption {
	return func(p *Proxy) {
		if n > 0 {
			p.maxBody = n
		}
	}
}

// NewProxy wires a proxy to the credential store, its refresh coordinator and
// the OAuth refresher.
func NewProxy(opts Options, store *credential.Store, coordinator *credential.RefreshCoordinator, refresher Refresher, proxyOpts ...ProxyOption) *Proxy {
	if opts.Timeout <= 0 {
		opts.Timeout = constants.DefaultUpstreamTimeout
	}
	opts.APIBase = strings.TrimRight(opts.APIBase, "/")
	if coordinator == nil {
		coordinator = credential.NewRefreshCoordinator(store)
	}
	p := &Proxy{
		opts:        opts,
		store:       store,
		coordinator: coordinator,
		refresher:   refresher,
		maxBody:     constants.MaxUpstreamBodyBytes,
	}
	for _, opt := range proxyOpts {
		if opt != nil {
			opt(p)
		}
	}
	if p.cli == nil {
		p.cli = NewHTTPClient(opts.ProxyURL)
	}
	return p
}

// LocationID returns the configured default location, if any.
func (p *Proxy) LocationID() string { return p.opts.LocationID }

// Do performs req. It returns ErrUnauthenticated without touching the network
// when no token is available, and after a failed refresh or a second 401.
// A refresh that cannot run for lack of configuration returns the
// *ConfigError. Every other failure is an *UpstreamError.
func (p *Proxy) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	endpoint := p.endpoint(req.Path)

	token := req.Token
	if cred, ok := p.store.Get(); ok {
		token = cred.AccessToken
	}
	if token == "" {
		monitoring.UpstreamErrors.WithLabelValues(p.opts.Provider, "no_credential").Inc()
		return nil, apperrors.ErrUnauthenticated
	}

	ctx, span := tracing.StartSpan(ctx, "upstream", "CRM."+req.Method,
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", endpoint),
			attribute.String("upstream.provider", p.opts.Provider),
		))
	var spanErr error
	defer func() { tracing.End(span, spanErr) }()

	issued := time.Now()
	resp, err := p.send(ctx, req, endpoint, token)
	if err != nil {
		spanErr = err
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized {
		span.SetAttributes(attribute.Int("http.status_code", resp.Status))
		spanErr = p.check(endpoint, resp)
		if spanErr != nil {
			return nil, spanErr
		}
		return resp, nil
	}

	fresh, refreshed, err := p.coordinator.Do(ctx, credential.RefreshRequest{
		StaleAccess:     token,
		FallbackRefresh: req.RefreshToken,
		IssuedAt:        issued,
	}, p.refresh)
	if err != nil {
		spanErr = p.refreshFailed(endpoint, err)
		return nil, spanErr
	}
	if refreshed {
		monitoring.CredentialRefreshes.WithLabelValues("refreshed").Inc()
	} else {
		monitoring.CredentialRefreshes.WithLabelValues("reused").Inc()
	}
	span.SetAttributes(attribute.Bool("upstream.refreshed", true))

	retry, err := p.send(ctx, req, endpoint, fresh.AccessToken)
	if err != nil {
		monitoring.UpstreamRetryAttempts.WithLabelValues(p.opts.Provider, "error").Inc()
		spanErr = err
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", retry.Status))
	if retry.Status == http.StatusUnauthorized {
		monitoring.UpstreamRetryAttempts.WithLabelValues(p.opts.Provider, "unauthenticated").Inc()
		log.WithField("endpoint", endpoint).Warn("upstream rejected refreshed token; re-authentication required")
		spanErr = fmt.Errorf("%w: refreshed token rejected by %s", apperrors.ErrUnauthenticated, endpoint)
		return nil, spanErr
	}
	if spanErr = p.check(endpoint, retry); spanErr != nil {
		monitoring.UpstreamRetryAttempts.WithLabelValues(p.opts.Provider, "error").Inc()
		return nil, spanErr
	}
	monitoring.UpstreamRetryAttempts.WithLabelValues(p.opts.Provider, "success").Inc()
	retry.Refreshed = true
	return retry, nil
}

// Get is shorthand for a GET with the given query parameters.
func (p *Proxy) Get(ctx context.Context, path string, params url.Values, token, refreshToken string) (*Response, error) {
	return p.Do(ctx, Request{Method: http.MethodGet, Path: path, Params: params, Token: token, RefreshToken: refreshToken})
}

func (p *Proxy) refresh(ctx context.Context, refreshToken string) (credential.Credential, error) {
	if p.refresher == nil {
		return credential.Credential{}, credential.ErrNoRefreshToken
	}
	return p.refresher.Refresh(ctx, refreshToken)
}

func (p *Proxy) refreshFailed(endpoint string, err error) error {
	status := "failed"
	if errors.Is(err, credential.ErrNoRefreshToken) {
		status = "no_refresh_token"
	}
	if _, ok := apperrors.AsConfig(err); ok {
		monitoring.CredentialRefreshes.WithLabelValues("misconfigured").Inc()
		log.WithError(err).WithField("endpoint", endpoint).Error("credential refresh is not configured")
		return err
	}
	monitoring.CredentialRefreshes.WithLabelValues(status).Inc()
	log.WithError(err).WithFields(log.Fields{
		"endpoint": endpoint,
		"reason":   status,
	}).Warn("upstream returned 401 and the credential could not be refreshed")
	return fmt.Errorf("%w: %v", apperrors.ErrUnauthenticated, err)
}

// check turns a non-2xx, non-401 reply into an UpstreamError.
func (p *Proxy) check(endpoint string, resp *Response) error {
	if resp.Status >= 200 && resp.Status < 300 {
		return nil
	}
	monitoring.UpstreamErrors.WithLabelValues(p.opts.Provider, logging.ErrorKind(resp.Status, false)).Inc()
	log.WithFields(log.Fields{
		"endpoint": endpoint,
		"status":   resp.Status,
		"body":     string(resp.Body),
	}).Warn("upstream request failed")
	return &apperrors.UpstreamError{Endpoint: endpoint, Status: resp.Status, Body: resp.Body}
}

func (p *Proxy) send(ctx context.Context, req Request, endpoint, bearer string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	target := endpoint
	if len(req.Params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Params.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, nil)
	if err != nil {
		return nil, &apperrors.UpstreamError{Endpoint: endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	p.applyDefaultHeaders(httpReq, bearer)

	start := time.Now()
	httpResp, err := p.cli.Do(httpReq)
	monitoring.UpstreamRequestDuration.WithLabelValues(p.opts.Provider).Observe(time.Since(start).Seconds())
	if err != nil {
		monitoring.UpstreamRequestsTotal.WithLabelValues(p.opts.Provider, monitoring.StatusClass(0)).Inc()
		monitoring.UpstreamErrors.WithLabelValues(p.opts.Provider, logging.ErrorKind(0, true)).Inc()
		log.WithError(err).WithField("endpoint", endpoint).Warn("upstream request error")
		return nil, &apperrors.UpstreamError{Endpoint: endpoint, Err: err}
	}
	defer httpResp.Body.Close()
	monitoring.UpstreamRequestsTotal.WithLabelValues(p.opts.Provider, monitoring.StatusClass(httpResp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, p.maxBody+1))
	if err != nil {
		return nil, &apperrors.UpstreamError{Endpoint: endpoint, Status: httpResp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if int64(len(body)) > p.maxBody {
		monitoring.UpstreamErrors.WithLabelValues(p.opts.Provider, "body_too_large").Inc()
		log.WithFields(log.Fields{"endpoint": endpoint, "limit": p.maxBody}).Warn("upstream response exceeds size limit")
		return nil, &apperrors.UpstreamError{Endpoint: endpoint, Status: httpResp.StatusCode, Err: fmt.Errorf("response body exceeds %d bytes", p.maxBody)}
	}
	log.WithFields(log.Fields{
		"endpoint":    endpoint,
		"status":      httpResp.StatusCode,
		"duration_ms": logging.DurationMS(time.Since(start)),
	}).Debug("upstream request completed")
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header.Clone(), Body: body}, nil
}

func (p *Proxy) endpoint(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return p.opts.APIBase + path
}
