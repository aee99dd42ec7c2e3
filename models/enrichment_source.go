package models

import "time"

// EnrichmentSource ist eine externe Referenzquelle (News/Suche) zu einem Case.
// Der Satz wird bei jeder Anreicherung vollständig ersetzt.
type EnrichmentSource struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	CaseStudyID uint `json:"case_study_id" gorm:"index;not null"`

	URL      string `json:"url" gorm:"size:1024;not null"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet,omitempty" gorm:"type:text"`
	Provider string `json:"provider" gorm:"index"` // Herkunft, z.B. "gdelt"
}

// TableName gibt explizit den Tabellennamen an.
func (EnrichmentSource) TableName() string {
	return "enrichment_sources"
}

// EnrichmentStats fasst das Ergebnis eines Anreicherungslaufs zusammen.
type EnrichmentStats struct {
	Fetched         int `json:"fetched"`
	Kept            int `json:"kept"`
	Duplicates      int `json:"duplicates"`
	FailedProviders int `json:"failed_providers"`
}
