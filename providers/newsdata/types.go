package newsdata

// SearchResponse repräsentiert die JSON-Antwort der newsdata.io-API.
type SearchResponse struct {
	Status       string   `json:"status"`
	TotalResults int      `json:"totalResults"`
	Results      []Result `json:"results"`
}

// Result ist ein einzelner News-Treffer.
type Result struct {
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	Description string   `json:"description"`
	PubDate     string   `json:"pubDate"`
	SourceID    string   `json:"source_id"`
	Creator     []string `json:"creator"`
}
