package gdelt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"edufinx/config"
	"edufinx/models"
	"edufinx/providers"

	"go.uber.org/zap"
)

const maxRecords = 30

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Fetcher implementiert das SearchProvider-Interface für die GDELT Doc-API.
// GDELT benötigt keinen API-Key.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt einen neuen GDELT-Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "gdelt"
}

// Search führt die Artikelsuche auf GDELT aus.
func (f *Fetcher) Search(ctx context.Context, q providers.SearchQuery) ([]models.EnrichmentSource, error) {
	log := f.Logger.With(zap.String("topic", q.Topic))
	log.Info("Starte Suche auf GDELT.")

	query := fmt.Sprintf("%q", q.Topic)
	if q.Ticker != "" {
		query = fmt.Sprintf("(%q OR %q)", q.Topic, q.Ticker)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("mode", "artlist")
	params.Set("format", "json")
	params.Set("sort", "hybridrel")
	params.Set("maxrecords", fmt.Sprintf("%d", maxRecords))
	if q.PeriodStart != nil {
		params.Set("startdatetime", q.PeriodStart.UTC().Format("20060102150405"))
	}
	if q.PeriodEnd != nil {
		params.Set("enddatetime", q.PeriodEnd.UTC().Format("20060102150405"))
	}

	searchURL := f.Config.GDELTBaseURL + "?" + params.Encode()
	log.Debug("Rufe GDELT-API auf", zap.String("url", searchURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gdelt request failed with status: %d", resp.StatusCode)
	}

	var searchResponse SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResponse); err != nil {
		return nil, err
	}

	var sources []models.EnrichmentSource
	for _, article := range searchResponse.Articles {
		sources = append(sources, mapArticleToModel(&article))
	}

	log.Info("Suche auf GDELT abgeschlossen", zap.Int("found_sources", len(sources)))
	return sources, nil
}

// mapArticleToModel konvertiert einen GDELT-Artikel in unser Quellen-Modell.
func mapArticleToModel(article *Article) models.EnrichmentSource {
	snippet := article.Domain
	if article.SeenDate != "" {
		snippet = fmt.Sprintf("%s (%s)", article.Domain, article.SeenDate)
	}
	return models.EnrichmentSource{
		URL:      article.URL,
		Title:    article.Title,
		Snippet:  snippet,
		Provider: "gdelt",
	}
}
