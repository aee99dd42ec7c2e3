package providers

import (
	"context"
	"time"

	"edufinx/models"
)

// SearchQuery beschreibt eine Anreicherungs-Suche für ein Case-Thema.
type SearchQuery struct {
	Topic       string // Firmenname oder Titel, nie leer
	Ticker      string
	SeedSummary string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// SearchProvider ist das Interface, das jeder News-/Such-Provider
// (z.B. GDELT, newsdata.io) implementieren muss.
type SearchProvider interface {
	// Search führt eine Suche aus und gibt standardisierte Quellen zurück.
	Search(ctx context.Context, q SearchQuery) ([]models.EnrichmentSource, error)

	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "gdelt").
	Name() string
}
