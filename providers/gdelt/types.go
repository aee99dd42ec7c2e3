package gdelt

// SearchResponse repräsentiert die JSON-Antwort der GDELT Doc-API (mode=artlist).
type SearchResponse struct {
	Articles []Article `json:"articles"`
}

// Article ist ein einzelner Treffer im GDELT-Artikel-Listing.
type Article struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	SeenDate      string `json:"seendate"`
	Domain        string `json:"domain"`
	Language      string `json:"language"`
	SourceCountry string `json:"sourcecountry"`
}
