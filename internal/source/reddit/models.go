package reddit

// Listing is the envelope returned by /r/{subreddit}/new.
type Listing struct {
	Kind string      `json:"kind"`
	Data ListingData `json:"data"`
}

type ListingData struct {
	After    *string `json:"after"`
	Children []Child `json:"children"`
}

type Child struct {
	Kind string `json:"kind"`
	Data Post   `json:"data"`
}

type Post struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	URL           string  `json:"url"`
	Selftext      string  `json:"selftext"`
	Permalink     string  `json:"permalink"`
	Thumbnail     string  `json:"thumbnail"`
	LinkFlairText *string `json:"link_flair_text"`
	Score         int     `json:"score"`
	NumComments   int     `json:"num_comments"`
	CreatedUTC    float64 `json:"created_utc"`
	Subreddit     string  `json:"subreddit"`
}
