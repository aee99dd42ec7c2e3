package services

import (
	"context"
	"time"

	"edufinx/config"
	"edufinx/models"
	"edufinx/providers"

	"go.uber.org/zap"
)

const (
	maxSnippetLen = 500
	maxTitleLen   = 300
)

// Enricher sammelt externe Referenzquellen über alle aktiven Provider ein
// und normalisiert sie zu einer begrenzten, deduplizierten Quellenliste.
type Enricher struct {
	Config    *config.Config
	Logger    *zap.Logger
	Providers []providers.SearchProvider
}

// NewEnricher erstellt eine neue Instanz des Enricher.
func NewEnricher(cfg *config.Config, logger *zap.Logger, provs []providers.SearchProvider) *Enricher {
	return &Enricher{Config: cfg, Logger: logger, Providers: provs}
}

// Enrich fragt alle Provider ab, dedupliziert per URL, kürzt Snippets und
// begrenzt die Liste. Fällt ein Provider aus, degradiert nur die Statistik;
// fallen alle aus, wird ein EnrichmentError zurückgegeben.
func (e *Enricher) Enrich(ctx context.Context, q providers.SearchQuery) ([]models.EnrichmentSource, models.EnrichmentStats, error) {
	stats := models.EnrichmentStats{}

	if q.Topic == "" {
		return nil, stats, &ValidationError{Msg: "enrichment topic must not be empty"}
	}

	log := e.Logger.With(zap.String("topic", q.Topic))
	log.Info("Starte Anreicherung", zap.Int("providers", len(e.Providers)))

	seen := make(map[string]bool)
	var kept []models.EnrichmentSource
	var lastErr error

	for _, provider := range e.Providers {
		provCtx, cancel := context.WithTimeout(ctx, time.Duration(e.Config.ProviderTimeoutSec)*time.Second)
		sources, err := provider.Search(provCtx, q)
		cancel()
		if err != nil {
			log.Error("Provider-Suche fehlgeschlagen", zap.String("provider", provider.Name()), zap.Error(err))
			stats.FailedProviders++
			lastErr = err
			continue
		}
		log.Info("Provider hat Quellen geliefert", zap.String("provider", provider.Name()), zap.Int("count", len(sources)))

		for _, src := range sources {
			stats.Fetched++
			if src.URL == "" {
				continue
			}
			if seen[src.URL] {
				stats.Duplicates++
				continue
			}
			seen[src.URL] = true

			src.Title = truncateRunes(src.Title, maxTitleLen)
			src.Snippet = truncateRunes(src.Snippet, maxSnippetLen)
			kept = append(kept, src)
		}
	}

	if len(e.Providers) > 0 && stats.FailedProviders == len(e.Providers) {
		return nil, stats, &EnrichmentError{Msg: "all providers failed", Err: lastErr}
	}

	if limit := e.Config.MaxSourcesPerCase; limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	stats.Kept = len(kept)

	log.Info("Anreicherung abgeschlossen",
		zap.Int("fetched", stats.Fetched),
		zap.Int("kept", stats.Kept),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("failed_providers", stats.FailedProviders))
	return kept, stats, nil
}

// truncateRunes kürzt s rune-sicher auf maximal max Zeichen.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
