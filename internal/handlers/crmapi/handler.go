package crmapi

import (
	"context"
	"net/http"
	"strings"

	"crmdash-go/internal/credential"
	hcommon "crmdash-go/internal/handlers/common"
	"crmdash-go/internal/upstream"

	"github.com/gin-gonic/gin"
)

// Doer is the upstream proxy.
type Doer interface {
	Do(ctx context.Context, req upstream.Request) (*upstream.Response, error)
}

// Handler proxies the route table.
type Handler struct {
	proxy      Doer
	store      *credential.Store
	locationID string
	routes     []Route
}

// New builds the handler. locationID is the configured default sub-account.
func New(proxy Doer, store *credential.Store, locationID string) *Handler {
	return &Handler{proxy: proxy, store: store, locationID: locationID, routes: Routes}
}

// Register mounts one GET route per table row on r, which is expected to be
// the /api group.
func (h *Handler) Register(r gin.IRoutes) {
	for _, rt := range h.routes {
		r.GET("/"+rt.Path, h.serve(rt))
	}
}

func (h *Handler) serve(rt Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		location := hcommon.LocationID(c, h.locationID, h.store)
		path := rt.Upstream
		if strings.Contains(path, "{locationId}") {
			if location == "" {
				hcommon.AbortWithStatus(c, http.StatusBadRequest, "missing_location", "locationId is required")
				return
			}
			path = strings.ReplaceAll(path, "{locationId}", location)
		}

		params := c.Request.URL.Query()
		params.Del("token")
		params.Del("locationId")
		if rt.LocationParam != "" && location != "" && params.Get(rt.LocationParam) == "" {
			params.Set(rt.LocationParam, location)
		}

		access, refresh := hcommon.CallerTokens(c)
		resp, err := h.proxy.Do(c.Request.Context(), upstream.Request{
			Method:       http.MethodGet,
			Path:         path,
			Params:       params,
			Token:        access,
			RefreshToken: refresh,
		})
		if err != nil {
			hcommon.AbortWithError(c, err)
			return
		}
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		c.Data(resp.Status, contentType, resp.Body)
	}
}
