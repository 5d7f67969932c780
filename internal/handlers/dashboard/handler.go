// Package dashboard serves the aggregated opportunity views and the live
// metrics streams.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"crmdash-go/internal/constants"
	"crmdash-go/internal/crawler"
	"crmdash-go/internal/credential"
	"crmdash-go/internal/events"
	hcommon "crmdash-go/internal/handlers/common"
	"crmdash-go/internal/logging"
	"crmdash-go/internal/stages"
	"crmdash-go/internal/webhook"

	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// The CRM listing the dashboard crawls.
const (
	OpportunitiesPath  = "/opportunities/search"
	OpportunitiesField = "opportunities"
)

// Options tunes the live streams.
type Options struct {
	LocationID       string
	SubscriberBuffer int
	Heartbeat        time.Duration
	AllowedOrigins   []string
}

// Handler serves /api/opportunities/all and the /dashboard routes.
type Handler struct {
	lister      crawler.Lister
	store       *credential.Store
	crawler     *crawler.Crawler
	classifier  *stages.Classifier
	ingestor    *webhook.Ingestor
	broadcaster *events.Broadcaster
	upgrader    ws.Upgrader
	opts        Options
}

// New wires the dashboard to the proxy, crawler, classifier and live state.
func New(lister crawler.Lister, store *credential.Store, cr *crawler.Crawler, classifier *stages.Classifier,
	ingestor *webhook.Ingestor, broadcaster *events.Broadcaster, opts Options) *Handler {
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = constants.DefaultSubscriberBuffer
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = constants.SSEHeartbeatInterval
	}
	return &Handler{
		lister:      lister,
		store:       store,
		crawler:     cr,
		classifier:  classifier,
		ingestor:    ingestor,
		broadcaster: broadcaster,
		upgrader:    events.NewUpgrader(opts.AllowedOrigins),
		opts:        opts,
	}
}

// crawl walks every opportunity page with the caller's tokens.
func (h *Handler) crawl(c *gin.Context) crawler.Result {
	base := url.Values{}
	if loc := hcommon.LocationID(c, h.opts.LocationID, h.store); loc != "" {
		base.Set("location_id", loc)
	}
	access, refresh := hcommon.CallerTokens(c)
	fetch := crawler.ProxyPageFunc(h.lister, OpportunitiesPath, OpportunitiesField, base, access, refresh)
	return h.crawler.Crawl(c.Request.Context(), fetch)
}

type opportunitiesResponse struct {
	Opportunities []json.RawMessage       `json:"opportunities"`
	Count         int                     `json:"count"`
	Pages         int                     `json:"pages"`
	Incomplete    bool                    `json:"incomplete"`
	Categories    map[stages.Category]int `json:"categories"`
	Warning       string                  `json:"warning,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

// AllOpportunities crawls and classifies every opportunity. A crawl that
// fails after some pages still returns what it fetched, flagged incomplete.
func (h *Handler) AllOpportunities(c *gin.Context) {
	res := h.crawl(c)
	if res.Err != nil && len(res.Records) == 0 {
		hcommon.AbortWithError(c, res.Err)
		return
	}

	annotated := h.classifier.Classify(res.Records)
	out := opportunitiesResponse{
		Opportunities: make([]json.RawMessage, 0, len(annotated)),
		Count:         len(annotated),
		Pages:         res.Pages,
		Incomplete:    res.Incomplete(),
		Categories:    stages.Counts(annotated),
	}
	for _, a := range annotated {
		raw, err := a.JSON()
		if err != nil {
			logging.WithReq(c, log.Fields{"id": a.ID}).WithError(err).Warn("failed to annotate opportunity")
			raw = a.Opportunity.JSON()
		}
		out.Opportunities = append(out.Opportunities, raw)
	}
	if w := res.Warning(); w != nil {
		out.Warning = w.Error()
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	c.JSON(http.StatusOK, out)
}

type metricsResponse struct {
	webhook.Metrics
	Pages      int    `json:"pages"`
	Incomplete bool   `json:"incomplete"`
	Seeded     bool   `json:"seeded"`
	Warning    string `json:"warning,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Metrics crawls, replaces the live record set and broadcasts the result. A
// crawl cut short by an error is reported but does not replace the live set.
func (h *Handler) Metrics(c *gin.Context) {
	res := h.crawl(c)
	if res.Err != nil && len(res.Records) == 0 {
		hcommon.AbortWithError(c, res.Err)
		return
	}

	out := metricsResponse{Pages: res.Pages, Incomplete: res.Incomplete()}
	if res.Err != nil {
		out.Metrics = webhook.ComputeMetrics(h.classifier.Classify(res.Records), time.Now().UTC())
		out.Error = res.Err.Error()
	} else {
		out.Metrics = h.ingestor.Seed(res.Records)
		out.Seeded = true
	}
	if w := res.Warning(); w != nil {
		out.Warning = w.Error()
	}
	c.JSON(http.StatusOK, out)
}

// Snapshot returns the current live metrics without touching the CRM.
func (h *Handler) Snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":     h.ingestor.Snapshot(),
		"records":     h.ingestor.Len(),
		"subscribers": h.broadcaster.Len(),
	})
}

// Stages lists the stage map the classifier currently uses.
func (h *Handler) Stages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stages": h.classifier.Stages()})
}

// Stream is the SSE metrics feed.
func (h *Handler) Stream(c *gin.Context) {
	err := events.StreamSSE(c.Request.Context(), c.Writer, h.broadcaster, h.opts.SubscriberBuffer, h.opts.Heartbeat)
	h.logStreamEnd(c, "sse", err)
}

// WebSocket is the same feed over a WebSocket.
func (h *Handler) WebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.WithReq(c, nil).WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()
	err = events.StreamWebSocket(c.Request.Context(), conn, h.broadcaster, h.opts.SubscriberBuffer, h.opts.Heartbeat)
	h.logStreamEnd(c, "websocket", err)
}

func (h *Handler) logStreamEnd(c *gin.Context, transport string, err error) {
	entry := logging.WithReq(c, log.Fields{"transport": transport})
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		entry.Debug("dashboard stream closed")
	case errors.Is(err, events.ErrDropped):
		entry.Warn("dashboard subscriber dropped for falling behind")
	default:
		entry.WithError(err).Info("dashboard stream ended")
	}
}

// Register mounts the crawl view on api and the dashboard routes on dash.
func (h *Handler) Register(api, dash gin.IRoutes) {
	api.GET("/opportunities/all", h.AllOpportunities)
	dash.GET("/metrics", h.Metrics)
	dash.GET("/snapshot", h.Snapshot)
	dash.GET("/stages", h.Stages)
	dash.GET("/stream", h.Stream)
	dash.GET("/ws", h.WebSocket)
}
