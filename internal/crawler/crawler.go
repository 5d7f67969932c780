package crawler

import (
	"context"
	"errors"
	"fmt"

	"crmdash-go/internal/constants"
	"crmdash-go/internal/crm"
	apperrors "crmdash-go/internal/errors"
	"crmdash-go/internal/monitoring"
	"crmdash-go/internal/monitoring/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PageFunc fetches one page of at most limit records starting at offset.
type PageFunc func(ctx context.Context, offset, limit int) ([]crm.Opportunity, error)

// StopReason records why a crawl ended.
type StopReason string

const (
	StopEmptyPage StopReason = "empty"
	StopShortPage StopReason = "short"
	StopCeiling   StopReason = "ceiling"
	StopError     StopReason = "error"
	StopCanceled  StopReason = "canceled"
)

// Result is the outcome of one crawl. Records holds everything fetched before
// the crawl stopped, including when Err is set.
type Result struct {
	Records    []crm.Opportunity
	Pages      int
	Reason     StopReason
	SafetyStop bool
	Err        error
}

// Incomplete reports whether the records may not cover the whole listing.
func (r Result) Incomplete() bool {
	return r.SafetyStop || r.Err != nil
}

// Warning returns ErrPaginationSafetyStop when the page ceiling ended the crawl.
func (r Result) Warning() error {
	if r.SafetyStop {
		return apperrors.ErrPaginationSafetyStop
	}
	return nil
}

// Crawler walks an offset/limit listing. Each call re-issues every request;
// nothing is cached between crawls.
type Crawler struct {
	PageSize int
	MaxPages int
}

// New returns a crawler; non-positive values fall back to the defaults.
func New(pageSize, maxPages int) *Crawler {
	if pageSize <= 0 {
		pageSize = constants.DefaultPageSize
	}
	if maxPages <= 0 {
		maxPages = constants.DefaultMaxPages
	}
	return &Crawler{PageSize: pageSize, MaxPages: maxPages}
}

// Each calls yield for every page until the listing ends, the page ceiling is
// reached, fetch fails, or yield returns false. It returns how many pages
// were fetched and why it stopped.
func (c *Crawler) Each(ctx context.Context, fetch PageFunc, yield func(page []crm.Opportunity) bool) (int, StopReason, error) {
	pages := 0
	for offset := 0; ; offset += c.PageSize {
		if pages >= c.MaxPages {
			return pages, StopCeiling, nil
		}
		if err := ctx.Err(); err != nil {
			return pages, StopCanceled, err
		}
		page, err := fetch(ctx, offset, c.PageSize)
		if err != nil {
			monitoring.CrawlPagesTotal.WithLabelValues("error").Inc()
			return pages, StopError, fmt.Errorf("fetch page at offset %d: %w", offset, err)
		}
		pages++
		monitoring.CrawlPagesTotal.WithLabelValues("ok").Inc()
		log.WithFields(log.Fields{
			"offset": offset,
			"limit":  c.PageSize,
			"count":  len(page),
		}).Debug("crawl page fetched")

		if len(page) == 0 {
			return pages, StopEmptyPage, nil
		}
		if !yield(page) {
			return pages, StopCanceled, nil
		}
		if len(page) < c.PageSize {
			return pages, StopShortPage, nil
		}
	}
}

// Crawl accumulates every page into a Result.
func (c *Crawler) Crawl(ctx context.Context, fetch PageFunc) Result {
	ctx, span := tracing.StartSpan(ctx, "crawler", "Crawl",
		trace.WithAttributes(
			attribute.Int("crawl.page_size", c.PageSize),
			attribute.Int("crawl.max_pages", c.MaxPages),
		))

	var res Result
	res.Pages, res.Reason, res.Err = c.Each(ctx, fetch, func(page []crm.Opportunity) bool {
		res.Records = append(res.Records, page...)
		return true
	})
	res.SafetyStop = res.Reason == StopCeiling
	monitoring.CrawlStopsTotal.WithLabelValues(string(res.Reason)).Inc()

	span.SetAttributes(
		attribute.Int("crawl.pages", res.Pages),
		attribute.Int("crawl.records", len(res.Records)),
		attribute.String("crawl.stop_reason", string(res.Reason)),
	)
	tracing.End(span, res.Err)

	entry := log.WithFields(log.Fields{
		"pages":   res.Pages,
		"records": len(res.Records),
		"reason":  res.Reason,
	})
	switch {
	case res.Err != nil && !errors.Is(res.Err, context.Canceled):
		entry.WithError(res.Err).Warn("crawl stopped on error; returning partial results")
	case res.SafetyStop:
		entry.Warn("crawl hit the page ceiling; results may be incomplete")
	default:
		entry.Debug("crawl finished")
	}
	return res
}
