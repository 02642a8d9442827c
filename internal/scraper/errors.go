package scraper

import (
	"fmt"
)

// Failure kinds, used as the metrics label and by callers that branch on
// the cause.
const (
	KindTimeout    = "timeout"
	KindStatus     = "status"
	KindBlocked    = "blocked"
	KindDisallowed = "disallowed"
	KindNetwork    = "network"
)

// FetchError is returned when a page could not be turned into a snapshot.
// A crawl that hits one records nothing.
type FetchError struct {
	URL        string
	StatusCode int
	Timeout    bool
	// Vendor of the bot wall that answered instead of the page.
	BlockedBy  string
	Disallowed bool
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("Timeout while fetching %s", e.URL)
	case e.BlockedBy != "":
		return fmt.Sprintf("Blocked by %s while fetching %s", e.BlockedBy, e.URL)
	case e.Disallowed:
		return fmt.Sprintf("Fetching %s is disallowed by robots.txt", e.URL)
	case e.StatusCode != 0:
		return fmt.Sprintf("HTTP %d while fetching %s", e.StatusCode, e.URL)
	case e.Err != nil:
		return fmt.Sprintf("Failed to fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("Failed to fetch %s", e.URL)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Kind classifies the failure.
func (e *FetchError) Kind() string {
	switch {
	case e.Timeout:
		return KindTimeout
	case e.BlockedBy != "":
		return KindBlocked
	case e.Disallowed:
		return KindDisallowed
	case e.StatusCode != 0:
		return KindStatus
	default:
		return KindNetwork
	}
}
