package crm

import (
	"encoding/json"
	"time"
)

// Contact is the contact summary embedded in an opportunity.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Opportunity is the subset of the CRM opportunity record the dashboard uses.
// Raw keeps the upstream JSON verbatim so unknown fields survive a round trip.
type Opportunity struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	PipelineID      string    `json:"pipelineId,omitempty"`
	PipelineStageID string    `json:"pipelineStageId"`
	Status          string    `json:"status"`
	MonetaryValue   float64   `json:"monetaryValue"`
	Contact         *Contact  `json:"contact,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	Raw json.RawMessage `json:"-"`
}

// Clone returns a deep copy.
func (o Opportunity) Clone() Opportunity {
	out := o
	if o.Contact != nil {
		c := *o.Contact
		out.Contact = &c
	}
	if o.Raw != nil {
		out.Raw = append(json.RawMessage(nil), o.Raw...)
	}
	return out
}

// JSON returns the upstream representation, or a marshalled one when the
// record was built in-process.
func (o Opportunity) JSON() json.RawMessage {
	if len(o.Raw) > 0 {
		return o.Raw
	}
	b, err := json.Marshal(o)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
