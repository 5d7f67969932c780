package crawler

import (
	"context"
	"net/url"
	"strconv"

	"crmdash-go/internal/crm"
	"crmdash-go/internal/upstream"
)

// Lister is the part of the upstream proxy a crawl needs.
type Lister interface {
	Do(ctx context.Context, req upstream.Request) (*upstream.Response, error)
}

// ProxyPageFunc adapts a listing endpoint behind the proxy into a PageFunc.
// base carries fixed query parameters such as locationId; limit and offset
// are set per page. Records are read from the array under field.
func ProxyPageFunc(p Lister, path, field string, base url.Values, token, refreshToken string) PageFunc {
	return func(ctx context.Context, offset, limit int) ([]crm.Opportunity, error) {
		params := url.Values{}
		for k, v := range base {
			params[k] = append([]string(nil), v...)
		}
		params.Set("limit", strconv.Itoa(limit))
		params.Set("offset", strconv.Itoa(offset))

		resp, err := p.Do(ctx, upstream.Request{
			Path:         path,
			Params:       params,
			Token:        token,
			RefreshToken: refreshToken,
		})
		if err != nil {
			return nil, err
		}
		return crm.DecodePage(resp.Body, field)
	}
}
