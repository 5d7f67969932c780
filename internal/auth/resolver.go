package auth

import (
	"net/http"
	"strings"

	apperrors "crmdash-go/internal/errors"
)

// ErrTokenNotFound is returned when no carrier yields a token.
var ErrTokenNotFound = apperrors.ErrTokenNotFound

// Carrier extracts a bearer token from one place in a request.
type Carrier interface {
	Extract(r *http.Request) string
	Name() string
}

// CookieCarrier reads the token from a named cookie.
type CookieCarrier struct {
	Cookie string
}

func (c CookieCarrier) Extract(r *http.Request) string {
	ck, err := r.Cookie(c.Cookie)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(ck.Value)
}

func (c CookieCarrier) Name() string { return "cookie:" + c.Cookie }

// HeaderCarrier reads "Authorization: Bearer <token>".
type HeaderCarrier struct{}

func (HeaderCarrier) Extract(r *http.Request) string {
	return BearerToken(r.Header.Get("Authorization"))
}

func (HeaderCarrier) Name() string { return "header:authorization" }

// QueryCarrier reads the token from a query parameter.
type QueryCarrier struct {
	Param string
}

func (q QueryCarrier) Extract(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get(q.Param))
}

func (q QueryCarrier) Name() string { return "query:" + q.Param }

// AccessCookieName and RefreshCookieName are the per-provider cookie names.
func AccessCookieName(provider string) string  { return provider + "_access_token" }
func RefreshCookieName(provider string) string { return provider + "_refresh_token" }

// DefaultCarriers returns the fixed resolution order: cookie, Authorization
// header, then the "token" query parameter.
func DefaultCarriers(provider string) []Carrier {
	return []Carrier{
		CookieCarrier{Cookie: AccessCookieName(provider)},
		HeaderCarrier{},
		QueryCarrier{Param: "token"},
	}
}

// Resolver tries its carriers in order.
type Resolver struct {
	carriers []Carrier
}

// NewResolver builds a resolver. Without carriers it uses DefaultCarriers.
func NewResolver(provider string, carriers ...Carrier) *Resolver {
	if len(carriers) == 0 {
		carriers = DefaultCarriers(provider)
	}
	return &Resolver{carriers: carriers}
}

// Resolve returns the first non-empty token.
func (r *Resolver) Resolve(req *http.Request) (string, error) {
	token, _, err := r.ResolveWithSource(req)
	return token, err
}

// ResolveWithSource also reports which carrier supplied the token.
func (r *Resolver) ResolveWithSource(req *http.Request) (string, string, error) {
	if req == nil {
		return "", "", ErrTokenNotFound
	}
	for _, c := range r.carriers {
		if tok := c.Extract(req); tok != "" {
			return tok, c.Name(), nil
		}
	}
	return "", "", ErrTokenNotFound
}

// RefreshToken returns the refresh-token cookie value, if any.
func RefreshToken(req *http.Request, provider string) string {
	return CookieCarrier{Cookie: RefreshCookieName(provider)}.Extract(req)
}

// BearerToken parses an Authorization header value. The scheme match is
// case-insensitive.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
