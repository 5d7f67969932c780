// Package crmapi exposes read-only CRM resources through the resilient proxy.
// Every endpoint is a row in Routes.
package crmapi

// Route maps a dashboard path under /api onto a CRM endpoint.
type Route struct {
	// Path is relative to /api.
	Path string
	// Upstream is the CRM path. "{locationId}" is replaced with the location.
	Upstream string
	// LocationParam names the query parameter the CRM expects the location
	// in. Empty means the location goes into the path or is not needed.
	LocationParam string
}

// Routes is the proxied resource table.
var Routes = []Route{
	{Path: "contacts", Upstream: "/contacts/", LocationParam: "locationId"},
	{Path: "opportunities", Upstream: "/opportunities/search", LocationParam: "location_id"},
	{Path: "calendars", Upstream: "/calendars/", LocationParam: "locationId"},
	{Path: "calendars/events", Upstream: "/calendars/events", LocationParam: "locationId"},
	{Path: "workflows", Upstream: "/workflows/", LocationParam: "locationId"},
	{Path: "pipelines", Upstream: "/opportunities/pipelines", LocationParam: "locationId"},
	{Path: "users", Upstream: "/users/", LocationParam: "locationId"},
	{Path: "locations", Upstream: "/locations/{locationId}"},
}
