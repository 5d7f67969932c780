package oauth

import (
	"context"
	"encoding/json"
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

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Options holds the OAuth application registration.
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	Scopes       []string
	Timeout      time.Duration
}

// OptionsFromConfig maps the provider section of the configuration.
func OptionsFromConfig(p config.ProviderConfig) Options {
	return Options{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURI:  p.RedirectURI,
		AuthURL:      p.AuthURL,
		TokenURL:     p.TokenURL,
		Scopes:       append([]string(nil), p.Scopes...),
		Timeout:      time.Duration(p.TokenTimeoutSec) * time.Second,
	}
}

// ClientOption customizes Client creation.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for token calls.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithNowFunc overrides the clock used for expiry calculations (testing).
func WithNowFunc(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStateTTL overrides how long an issued state value stays valid.
func WithStateTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl > 0 {
			c.stateTTL = ttl
		}
	}
}

// Client performs the authorization-code and refresh-token grants and writes
// successful results to the credential store.
type Client struct {
	opts       Options
	store      *credential.Store
	httpClient *http.Client
	states     *cache.Cache
	stateTTL   time.Duration
	now        func() time.Time
}

// NewClient creates a client bound to store.
func NewClient(opts Options, store *credential.Store, clientOpts ...ClientOption) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = constants.DefaultTokenTimeout
	}
	c := &Client{
		opts:       opts,
		store:      store,
		httpClient: &http.Client{Timeout: opts.Timeout},
		stateTTL:   constants.OAuthStateTTL,
		now:        time.Now,
	}
	for _, opt := range clientOpts {
		if opt != nil {
			opt(c)
		}
	}
	c.states = cache.New(c.stateTTL, 2*c.stateTTL)
	return c
}

func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.opts.ClientID,
		ClientSecret: c.opts.ClientSecret,
		RedirectURL:  c.opts.RedirectURI,
		Scopes:       c.opts.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.opts.AuthURL,
			TokenURL:  c.opts.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c *Client) ensureClientID() error {
	if strings.TrimSpace(c.opts.ClientID) == "" {
		return &apperrors.ConfigError{Field: "CLIENT_ID"}
	}
	return nil
}

func (c *Client) ensureClientCredentials() error {
	if err := c.ensureClientID(); err != nil {
		return err
	}
	if strings.TrimSpace(c.opts.ClientSecret) == "" {
		return &apperrors.ConfigError{Field: "CLIENT_SECRET"}
	}
	return nil
}

// AuthCodeURL builds the provider consent URL with a fresh one-shot state.
func (c *Client) AuthCodeURL() (authURL, state string, err error) {
	if err := c.ensureClientID(); err != nil {
		return "", "", err
	}
	state = uuid.New().String()
	c.states.Set(state, c.now(), c.stateTTL)
	authURL = c.oauthConfig().AuthCodeURL(state)
	log.WithField("state", state).Debug("oauth consent flow started")
	return authURL, state, nil
}

// ValidateState consumes a state issued by AuthCodeURL. It reports false for
// unknown or expired values.
func (c *Client) ValidateState(state string) bool {
	if state == "" {
		return false
	}
	if _, ok := c.states.Get(state); !ok {
		return false
	}
	c.states.Delete(state)
	return true
}

// ExchangeCode trades an authorization code for a credential.
func (c *Client) ExchangeCode(ctx context.Context, code string) (credential.Credential, error) {
	if err := c.ensureClientCredentials(); err != nil {
		return credential.Credential{}, err
	}
	if strings.TrimSpace(code) == "" {
		return credential.Credential{}, &apperrors.UpstreamAuthError{Grant: grantAuthorizationCode, Err: errors.New("authorization code is empty")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.oauthConfig().Exchange(ctx, code)
	if err != nil {
		monitoring.TokenGrantsTotal.WithLabelValues(grantAuthorizationCode, "error").Inc()
		authErr := &apperrors.UpstreamAuthError{Grant: grantAuthorizationCode, Err: err}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			authErr.Body = re.Body
			if re.Response != nil {
				authErr.Status = re.Response.StatusCode
			}
		}
		log.WithError(err).WithField("status", authErr.Status).Warn("authorization code exchange failed")
		return credential.Credential{}, authErr
	}

	cred := credential.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		AcquiredVia:  credential.GrantAuthorizationCode,
		Scope:        extraString(token, "scope"),
		LocationID:   extraString(token, "locationId"),
		UserID:       extraString(token, "userId"),
	}
	c.store.Set(cred)
	monitoring.TokenGrantsTotal.WithLabelValues(grantAuthorizationCode, "ok").Inc()
	log.WithFields(log.Fields{
		"access_token": logging.MaskToken(cred.AccessToken),
		"expires_at":   cred.ExpiresAt,
		"location_id":  cred.LocationID,
	}).Info("authorization code exchanged")
	return cred, nil
}

// Refresh trades a refresh token for a new credential. The previous refresh
// token is kept when the provider does not rotate it. A failed refresh leaves
// the store untouched.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (credential.Credential, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return credential.Credential{}, credential.ErrNoRefreshToken
	}
	if err := c.ensureClientCredentials(); err != nil {
		return credential.Credential{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	data := url.Values{
		"client_id":     {c.opts.ClientID},
		"client_secret": {c.opts.ClientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {grantRefreshToken},
	}
	if c.opts.RedirectURI != "" {
		data.Set("redirect_uri", c.opts.RedirectURI)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return credential.Credential{}, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		monitoring.TokenGrantsTotal.WithLabelValues(grantRefreshToken, "error").Inc()
		return credential.Credential{}, &apperrors.UpstreamAuthError{Grant: grantRefreshToken, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxUpstreamBodyBytes))
	if err != nil {
		monitoring.TokenGrantsTotal.WithLabelValues(grantRefreshToken, "error").Inc()
		return credential.Credential{}, &apperrors.UpstreamAuthError{Grant: grantRefreshToken, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		monitoring.TokenGrantsTotal.WithLabelValues(grantRefreshToken, "rejected").Inc()
		log.WithFields(log.Fields{"status": resp.StatusCode, "body": string(body)}).Warn("token refresh rejected")
		return credential.Credential{}, &apperrors.UpstreamAuthError{Grant: grantRefreshToken, Status: resp.StatusCode, Body: body}
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		monitoring.TokenGrantsTotal.WithLabelValues(grantRefreshToken, "error").Inc()
		return credential.Credential{}, &apperrors.UpstreamAuthError{Grant: grantRefreshToken, Status: resp.StatusCode, Body: body, Err: fmt.Errorf("failed to decode token response: %w", err)}
	}
	if tokenResp.AccessToken == "" {
		monitoring.TokenGrantsTotal.WithLabelValues(grantRefreshToken, "error").Inc()
		return credential.Credential{}, &apperrors.UpstreamAuthError{Grant: grantRefreshToken, Status: resp.StatusCode, Body: body, Err: errors.New("token response has no access_token")}
	}

	prev, _ := c.store.Get()
	cred := credential.Credential{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: firstNonEmpty(tokenResp.RefreshToken, refreshToken),
		AcquiredVia:  credential.GrantRefresh,
		Scope:        firstNonEmpty(tokenResp.Scope, prev.Scope),
		LocationID:   firstNonEmpty(tokenResp.LocationID, prev.LocationID),
		UserID:       firstNonEmpty(tokenResp.UserID, prev.UserID),
	}
	if tokenResp.ExpiresIn > 0 {
		cred.ExpiresAt = c.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}
	c.store.Set(cred)
	monitoring.TokenGrantsTotal.WithLabelValues(grantRefreshToken, "ok").Inc()
	log.WithFields(log.Fields{
		"access_token": logging.MaskToken(cred.AccessToken),
		"rotated":      tokenResp.RefreshToken != "",
		"expires_at":   cred.ExpiresAt,
	}).Info("access token refreshed")
	return cred, nil
}

func extraString(token *oauth2.Token, key string) string {
	if v, ok := token.Extra(key).(string); ok {
		return v
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
