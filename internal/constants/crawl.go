package constants

const (
	// DefaultPageSize is the listing page size requested from the CRM (its maximum is 100).
	DefaultPageSize = 100
	// DefaultMaxPages is the crawl page ceiling (10,000 records at the default page size).
	DefaultMaxPages = 100
	// DefaultSubscriberBuffer is the per-subscriber outbound queue depth.
	DefaultSubscriberBuffer = 16
)
