// Package stages maps pipeline-stage ids to names and sorts opportunities
// into the dashboard's quote and closed categories.
//
// Exact stage-id rules are authoritative. When no rule covers a record, a
// keyword heuristic over the record's name, status and stage name is used
// instead. The heuristic is best effort: records classified that way carry
// Approximate=true and can be miscounted when names are free text.
package stages

import (
	"encoding/json"
	"strings"
	"sync"

	"crmdash-go/internal/config"
	"crmdash-go/internal/crm"
)

// UnknownStage is the name reported for stage ids missing from the map.
const UnknownStage = "Unknown Stage"

// Category is the dashboard bucket of an opportunity.
type Category string

const (
	QuoteSent    Category = "quote_sent"
	QuotePending Category = "quote_pending"
	ClosedPaid   Category = "closed_paid"
	Unclassified Category = "unclassified"
)

// StageMap maps stage ids to display names. It is read-only once loaded.
type StageMap map[string]string

// Name returns the display name for id, or UnknownStage.
func (m StageMap) Name(id string) string {
	if name, ok := m[id]; ok && name != "" {
		return name
	}
	return UnknownStage
}

// Rules lists the stage ids that exactly identify each category.
type Rules struct {
	QuoteSentStageIDs    []string
	QuotePendingStageIDs []string
	ClosedPaidStageIDs   []string
}

// Heuristic holds the lower-case keyword sets of the fallback classifier.
type Heuristic struct {
	QuoteSent    []string
	QuotePending []string
	ClosedPaid   []string
}

// Match returns the first category whose keywords occur in any of the given
// texts. Closed-paid is checked first, then pending, then sent.
func (h Heuristic) Match(texts ...string) Category {
	hay := strings.ToLower(strings.Join(texts, " \x00 "))
	for _, set := range []struct {
		cat      Category
		keywords []string
	}{
		{ClosedPaid, h.ClosedPaid},
		{QuotePending, h.QuotePending},
		{QuoteSent, h.QuoteSent},
	} {
		for _, kw := range set.keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(hay, kw) {
				return set.cat
			}
		}
	}
	return Unclassified
}

// Annotated is an opportunity with its stage name and category.
type Annotated struct {
	crm.Opportunity
	StageName   string
	Category    Category
	Approximate bool
}

// JSON returns the upstream record with stageName, category and
// approximate added.
func (a Annotated) JSON() (json.RawMessage, error) {
	return crm.Annotate(a.Opportunity.JSON(), map[string]any{
		"stageName":   a.StageName,
		"category":    string(a.Category),
		"approximate": a.Approximate,
	})
}

// Classify annotates records with stage names only. It never fails.
func Classify(records []crm.Opportunity, m StageMap) []Annotated {
	out := make([]Annotated, len(records))
	for i, r := range records {
		out[i] = Annotated{Opportunity: r, StageName: m.Name(r.PipelineStageID), Category: Unclassified}
	}
	return out
}

type tables struct {
	names     StageMap
	byStage   map[string]Category
	heuristic Heuristic
}

// Classifier applies names, exact rules and the heuristic. Its tables can be
// swapped at runtime with Update.
type Classifier struct {
	mu sync.RWMutex
	t  tables
}

// NewClassifier builds a classifier from explicit tables.
func NewClassifier(names StageMap, rules Rules, h Heuristic) *Classifier {
	c := &Classifier{}
	c.set(names, rules, h)
	return c
}

// FromConfig builds a classifier from the stages section of the configuration.
func FromConfig(cfg config.StagesConfig) *Classifier {
	c := &Classifier{}
	c.Update(cfg)
	return c
}

// Update replaces every table from cfg.
func (c *Classifier) Update(cfg config.StagesConfig) {
	c.set(StageMap(cfg.Names), Rules{
		QuoteSentStageIDs:    cfg.QuoteSentStageIDs,
		QuotePendingStageIDs: cfg.QuotePendingStageIDs,
		ClosedPaidStageIDs:   cfg.ClosedPaidStageIDs,
	}, Heuristic{
		QuoteSent:    cfg.Keywords.QuoteSent,
		QuotePending: cfg.Keywords.QuotePending,
		ClosedPaid:   cfg.Keywords.ClosedPaid,
	})
}

func (c *Classifier) set(names StageMap, rules Rules, h Heuristic) {
	t := tables{
		names:     make(StageMap, len(names)),
		byStage:   make(map[string]Category),
		heuristic: h,
	}
	for k, v := range names {
		t.names[k] = v
	}
	for _, r := range []struct {
		cat Category
		ids []string
	}{
		{QuoteSent, rules.QuoteSentStageIDs},
		{QuotePending, rules.QuotePendingStageIDs},
		{ClosedPaid, rules.ClosedPaidStageIDs},
	} {
		for _, id := range r.ids {
			if id = strings.TrimSpace(id); id != "" {
				t.byStage[id] = r.cat
			}
		}
	}
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *Classifier) snapshot() tables {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

// Stages returns a copy of the stage map in use.
func (c *Classifier) Stages() StageMap {
	t := c.snapshot()
	out := make(StageMap, len(t.names))
	for k, v := range t.names {
		out[k] = v
	}
	return out
}

// Annotate classifies one record.
func (c *Classifier) Annotate(r crm.Opportunity) Annotated {
	return c.snapshot().annotate(r)
}

// Classify classifies every record against one consistent set of tables.
func (c *Classifier) Classify(records []crm.Opportunity) []Annotated {
	t := c.snapshot()
	out := Classify(records, t.names)
	for i := range out {
		t.categorize(&out[i])
	}
	return out
}

func (t tables) annotate(r crm.Opportunity) Annotated {
	a := Annotated{Opportunity: r, StageName: t.names.Name(r.PipelineStageID)}
	t.categorize(&a)
	return a
}

// categorize fills Category and Approximate on a record that already has its
// stage name.
func (t tables) categorize(a *Annotated) {
	r := a.Opportunity
	if cat, ok := t.byStage[r.PipelineStageID]; ok {
		a.Category = cat
		return
	}
	stageName := a.StageName
	if stageName == UnknownStage {
		stageName = ""
	}
	a.Category = t.heuristic.Match(r.Name, r.Status, stageName)
	a.Approximate = a.Category != Unclassified
}

// Counts tallies categories.
func Counts(records []Annotated) map[Category]int {
	out := map[Category]int{}
	for _, r := range records {
		out[r.Category]++
	}
	return out
}
