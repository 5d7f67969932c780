package crm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrMissingID is returned for records without an id.
var ErrMissingID = errors.New("record has no id")

// DecodeOpportunity reads an opportunity from its upstream JSON. Both the
// listing shape (nested contact) and the webhook shape (flat contactId) are
// accepted.
func DecodeOpportunity(raw []byte) (Opportunity, error) {
	if !gjson.ValidBytes(raw) {
		return Opportunity{}, fmt.Errorf("invalid opportunity json")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return Opportunity{}, fmt.Errorf("opportunity must be a json object")
	}
	o := Opportunity{
		ID:              doc.Get("id").String(),
		Name:            doc.Get("name").String(),
		PipelineID:      doc.Get("pipelineId").String(),
		PipelineStageID: firstString(doc, "pipelineStageId", "stageId"),
		Status:          doc.Get("status").String(),
		MonetaryValue:   doc.Get("monetaryValue").Float(),
		CreatedAt:       parseTime(firstString(doc, "createdAt", "dateAdded")),
		UpdatedAt:       parseTime(firstString(doc, "updatedAt", "lastStatusChangeAt", "dateUpdated")),
		Raw:             append(json.RawMessage(nil), raw...),
	}
	if o.ID == "" {
		return Opportunity{}, ErrMissingID
	}
	if c := doc.Get("contact"); c.IsObject() {
		o.Contact = &Contact{
			ID:    c.Get("id").String(),
			Name:  c.Get("name").String(),
			Email: c.Get("email").String(),
			Phone: c.Get("phone").String(),
		}
	} else if id := doc.Get("contactId").String(); id != "" {
		o.Contact = &Contact{ID: id}
	}
	return o, nil
}

// DecodePage extracts the records array stored under field from a listing
// response body.
func DecodePage(body []byte, field string) ([]Opportunity, error) {
	arr := gjson.GetBytes(body, field)
	if !arr.Exists() {
		return nil, fmt.Errorf("listing response has no %q field", field)
	}
	if !arr.IsArray() {
		return nil, fmt.Errorf("listing field %q is not an array", field)
	}
	items := arr.Array()
	out := make([]Opportunity, 0, len(items))
	for i, item := range items {
		o, err := DecodeOpportunity([]byte(item.Raw))
		if err != nil {
			return out, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// fieldAliases maps the alternate names DecodeOpportunity accepts to the
// field it prefers.
var fieldAliases = map[string]string{
	"stageId":            "pipelineStageId",
	"dateAdded":          "createdAt",
	"lastStatusChangeAt": "updatedAt",
	"dateUpdated":        "updatedAt",
}

// Merge applies the top-level fields of patch onto o and re-decodes the result.
// Fields absent from patch keep their previous values. An alias in patch
// overwrites the preferred field unless patch sets that field too.
func Merge(o Opportunity, patch []byte) (Opportunity, error) {
	doc := gjson.ParseBytes(patch)
	if !doc.IsObject() {
		return o, fmt.Errorf("patch must be a json object")
	}
	base := o.JSON()
	merged := append([]byte(nil), base...)
	var err error
	doc.ForEach(func(key, value gjson.Result) bool {
		merged, err = sjson.SetRawBytes(merged, escapePath(key.String()), []byte(value.Raw))
		if err != nil {
			return false
		}
		if preferred, ok := fieldAliases[key.String()]; ok && !doc.Get(preferred).Exists() {
			merged, err = sjson.SetRawBytes(merged, preferred, []byte(value.Raw))
		}
		return err == nil
	})
	if err == nil {
		merged, err = mergeContactID(merged, doc)
	}
	if err != nil {
		return o, fmt.Errorf("merge opportunity %s: %w", o.ID, err)
	}
	return DecodeOpportunity(merged)
}

// mergeContactID drops a nested contact that a flat contactId in patch has
// replaced.
func mergeContactID(merged []byte, patch gjson.Result) ([]byte, error) {
	id := patch.Get("contactId").String()
	if id == "" || patch.Get("contact").Exists() {
		return merged, nil
	}
	if existing := gjson.GetBytes(merged, "contact.id"); existing.Exists() && existing.String() != id {
		return sjson.DeleteBytes(merged, "contact")
	}
	return merged, nil
}

// Annotate sets extra top-level fields on a raw record.
func Annotate(raw []byte, fields map[string]any) (json.RawMessage, error) {
	out := append([]byte(nil), raw...)
	if len(out) == 0 {
		out = []byte(`{}`)
	}
	var err error
	for k, v := range fields {
		out, err = sjson.SetBytes(out, escapePath(k), v)
		if err != nil {
			return nil, fmt.Errorf("annotate %q: %w", k, err)
		}
	}
	return out, nil
}

func firstString(doc gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := doc.Get(k).String(); v != "" {
			return v
		}
	}
	return ""
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

var pathEscaper = strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)

func escapePath(key string) string {
	return pathEscaper.Replace(key)
}
