package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"crmdash-go/internal/crm"
	"crmdash-go/internal/stages"

	log "github.com/sirupsen/logrus"
)

// Event types sent by the CRM.
const (
	EventOpportunityCreate              = "OpportunityCreate"
	EventOpportunityUpdate              = "OpportunityUpdate"
	EventOpportunityStageUpdate         = "OpportunityStageUpdate"
	EventOpportunityStatusUpdate        = "OpportunityStatusUpdate"
	EventOpportunityMonetaryValueUpdate = "OpportunityMonetaryValueUpdate"
	EventOpportunityDelete              = "OpportunityDelete"
)

// MetricsEventType is the type of the event broadcast after every change.
const MetricsEventType = "metrics"

// ErrUnsupportedEvent is returned for event types the ingestor ignores.
var ErrUnsupportedEvent = errors.New("unsupported webhook event type")

// Metrics is the dashboard summary, always computed from one consistent
// record set.
type Metrics struct {
	QuoteSentCount    int       `json:"quote_sent_count"`
	QuotePendingCount int       `json:"quote_pending_count"`
	ClosedPaidCount   int       `json:"closed_paid_count"`
	ApproximateCount  int       `json:"approximate_count"`
	TotalRecords      int       `json:"total_records"`
	TotalValue        float64   `json:"total_value"`
	Timestamp         time.Time `json:"timestamp"`
}

// Publisher delivers an event to live dashboards.
type Publisher interface {
	Broadcast(event any) (int, error)
}

// MetricsEvent is the payload pushed to dashboards.
type MetricsEvent struct {
	Type string  `json:"type"`
	Data Metrics `json:"data"`
}

// Ingestor holds the in-memory opportunity set fed by webhooks. Every
// mutation, the metrics recompute and the broadcast happen under one lock,
// so subscribers see metrics in mutation order.
type Ingestor struct {
	mu         sync.Mutex
	records    map[string]crm.Opportunity
	metrics    Metrics
	classifier *stages.Classifier
	pub        Publisher
	now        func() time.Time
}

// NewIngestor creates an empty ingestor. pub may be nil.
func NewIngestor(classifier *stages.Classifier, pub Publisher) *Ingestor {
	if classifier == nil {
		classifier = stages.NewClassifier(nil, stages.Rules{}, stages.Heuristic{})
	}
	in := &Ingestor{
		records:    make(map[string]crm.Opportunity),
		classifier: classifier,
		pub:        pub,
		now:        time.Now,
	}
	in.metrics = in.computeLocked()
	return in
}

// Ingest applies one event. Create inserts; the update family merges into the
// existing record or inserts it when unknown; delete removes it. Metrics are
// recomputed and broadcast after every applied event.
func (in *Ingestor) Ingest(ctx context.Context, eventType string, data json.RawMessage) (Metrics, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return in.metrics, err
	}

	switch eventType {
	case EventOpportunityCreate:
		rec, err := crm.DecodeOpportunity(data)
		if err != nil {
			return in.metrics, fmt.Errorf("%s: %w", eventType, err)
		}
		in.records[rec.ID] = rec

	case EventOpportunityUpdate, EventOpportunityStageUpdate, EventOpportunityStatusUpdate, EventOpportunityMonetaryValueUpdate:
		patch, err := crm.DecodeOpportunity(data)
		if err != nil {
			return in.metrics, fmt.Errorf("%s: %w", eventType, err)
		}
		if existing, ok := in.records[patch.ID]; ok {
			merged, err := crm.Merge(existing, data)
			if err != nil {
				return in.metrics, fmt.Errorf("%s: %w", eventType, err)
			}
			in.records[patch.ID] = merged
		} else {
			in.records[patch.ID] = patch
		}

	case EventOpportunityDelete:
		rec, err := crm.DecodeOpportunity(data)
		if err != nil {
			return in.metrics, fmt.Errorf("%s: %w", eventType, err)
		}
		delete(in.records, rec.ID)

	default:
		return in.metrics, fmt.Errorf("%w: %q", ErrUnsupportedEvent, eventType)
	}

	return in.publishLocked(eventType), nil
}

// Seed replaces the whole record set, typically with the result of a crawl.
func (in *Ingestor) Seed(records []crm.Opportunity) Metrics {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.records = make(map[string]crm.Opportunity, len(records))
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		in.records[r.ID] = r.Clone()
	}
	return in.publishLocked("seed")
}

// Snapshot returns the last computed metrics.
func (in *Ingestor) Snapshot() Metrics {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.metrics
}

// Records returns copies of every record ordered by id.
func (in *Ingestor) Records() []crm.Opportunity {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]crm.Opportunity, 0, len(in.records))
	for _, r := range in.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of records held.
func (in *Ingestor) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.records)
}

func (in *Ingestor) publishLocked(cause string) Metrics {
	in.metrics = in.computeLocked()
	if in.pub != nil {
		n, err := in.pub.Broadcast(MetricsEvent{Type: MetricsEventType, Data: in.metrics})
		entry := log.WithFields(log.Fields{
			"cause":       cause,
			"records":     in.metrics.TotalRecords,
			"subscribers": n,
		})
		if err != nil {
			entry.WithError(err).Warn("metrics broadcast failed")
		} else {
			entry.Debug("metrics broadcast")
		}
	}
	return in.metrics
}

func (in *Ingestor) computeLocked() Metrics {
	recs := make([]crm.Opportunity, 0, len(in.records))
	for _, r := range in.records {
		recs = append(recs, r)
	}
	return ComputeMetrics(in.classifier.Classify(recs), in.now())
}

// ComputeMetrics summarizes annotated records.
func ComputeMetrics(annotated []stages.Annotated, at time.Time) Metrics {
	m := Metrics{TotalRecords: len(annotated), Timestamp: at.UTC()}
	for _, a := range annotated {
		m.TotalValue += a.MonetaryValue
		switch a.Category {
		case stages.QuoteSent:
			m.QuoteSentCount++
		case stages.QuotePending:
			m.QuotePendingCount++
		case stages.ClosedPaid:
			m.ClosedPaidCount++
		}
		if a.Approximate {
			m.ApproximateCount++
		}
	}
	return m
}
