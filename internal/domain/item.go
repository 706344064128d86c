package domain

import "time"

// Item is a single post fetched from the subreddit listing.
type Item struct {
	ID          string
	Title       string
	Author      string
	URL         string
	Body        string
	Permalink   string
	Thumbnail   string
	Flair       *string
	Score       int
	NumComments int
	CreatedUTC  int64
	Subreddit   string
}

// CreatedAt returns the creation time in UTC.
func (i Item) CreatedAt() time.Time {
	return time.Unix(i.CreatedUTC, 0).UTC()
}

// FlairText returns the flair label or an empty string.
func (i Item) FlairText() string {
	if i.Flair == nil {
		return ""
	}
	return *i.Flair
}

// LedgerStats is a snapshot of the delivered-id ledger.
type LedgerStats struct {
	PostedCount    int       `json:"posted_count"`
	TotalProcessed int64     `json:"total_processed"`
	LastCheck      time.Time `json:"last_check"`
	CreatedAt      time.Time `json:"created_at"`
	LastUpdated    time.Time `json:"last_updated"`
}
