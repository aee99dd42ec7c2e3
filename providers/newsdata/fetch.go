package newsdata

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

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Fetcher implementiert das SearchProvider-Interface für newsdata.io.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt einen neuen newsdata.io-Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "newsdata"
}

// Search führt die News-Suche auf newsdata.io aus.
func (f *Fetcher) Search(ctx context.Context, q providers.SearchQuery) ([]models.EnrichmentSource, error) {
	if f.Config.NewsdataAPIKey == "" {
		return nil, fmt.Errorf("newsdata api key ist nicht konfiguriert")
	}

	log := f.Logger.With(zap.String("topic", q.Topic))
	log.Info("Starte Suche auf newsdata.io.")

	query := q.Topic
	if q.Ticker != "" {
		query = fmt.Sprintf("%s OR %s", q.Topic, q.Ticker)
	}

	params := url.Values{}
	params.Set("apikey", f.Config.NewsdataAPIKey)
	params.Set("q", query)
	params.Set("language", "en")

	searchURL := f.Config.NewsdataBaseURL + "?" + params.Encode()
	log.Debug("Rufe newsdata.io-API auf", zap.String("url", f.Config.NewsdataBaseURL))

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
		return nil, fmt.Errorf("newsdata request failed with status: %d", resp.StatusCode)
	}

	var searchResponse SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResponse); err != nil {
		return nil, err
	}
	if searchResponse.Status != "success" {
		return nil, fmt.Errorf("newsdata returned status %q", searchResponse.Status)
	}

	var sources []models.EnrichmentSource
	for _, result := range searchResponse.Results {
		sources = append(sources, mapResultToModel(&result))
	}

	log.Info("Suche auf newsdata.io abgeschlossen", zap.Int("found_sources", len(sources)))
	return sources, nil
}

// mapResultToModel konvertiert einen newsdata-Treffer in unser Quellen-Modell.
func mapResultToModel(result *Result) models.EnrichmentSource {
	return models.EnrichmentSource{
		URL:      result.Link,
		Title:    result.Title,
		Snippet:  result.Description,
		Provider: "newsdata",
	}
}
