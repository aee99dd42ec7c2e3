package models

import (
	"time"

	"gorm.io/datatypes"
)

// CaseStatus ist der Lebenszyklus-Status eines Case Study.
type CaseStatus string

const (
	StatusDraft       CaseStatus = "DRAFT"
	StatusEnriched    CaseStatus = "ENRICHED"
	StatusSynthesized CaseStatus = "SYNTHESIZED"
	StatusPublished   CaseStatus = "PUBLISHED"
)

// statusTransitions definiert die erlaubten Vorwärts-Übergänge.
// PUBLISHED ist terminal, aus diesem Status führt kein Übergang heraus.
var statusTransitions = map[CaseStatus][]CaseStatus{
	StatusDraft:       {StatusEnriched, StatusSynthesized},
	StatusEnriched:    {StatusEnriched, StatusSynthesized},
	StatusSynthesized: {StatusEnriched, StatusSynthesized, StatusPublished},
	StatusPublished:   {StatusPublished},
}

// CanTransition meldet, ob der Übergang von s nach target erlaubt ist.
func (s CaseStatus) CanTransition(target CaseStatus) bool {
	for _, t := range statusTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Valid meldet, ob s einer der vier bekannten Status ist.
func (s CaseStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusEnriched, StatusSynthesized, StatusPublished:
		return true
	}
	return false
}

// CaseStudy repräsentiert eine Fallstudie mit zugehörigem Quiz.
type CaseStudy struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Slug  string `json:"slug" gorm:"uniqueIndex;not null"`
	Title string `json:"title" gorm:"not null"`

	// Von der Synthese erzeugte Felder
	RefinedTitle  string `json:"refined_title,omitempty"`
	Narrative     string `json:"narrative,omitempty" gorm:"type:text"`
	FullNarrative string `json:"full_narrative,omitempty" gorm:"type:text"`

	// Legacy: einzelne Challenge-Frage aus der ersten Produktversion
	ChallengeQuestion  string         `json:"challenge_question,omitempty" gorm:"type:text"`
	Options            datatypes.JSON `json:"options,omitempty" gorm:"type:jsonb"`
	CorrectOptionIndex int            `json:"correct_option_index"`
	Explanation        string         `json:"explanation,omitempty" gorm:"type:text"`

	// Themen-Metadaten
	CompanyName  string     `json:"company_name,omitempty" gorm:"index"`
	Ticker       string     `json:"ticker,omitempty" gorm:"index"`
	PeriodStart  *time.Time `json:"period_start,omitempty"`
	PeriodEnd    *time.Time `json:"period_end,omitempty"`
	ShortSummary string     `json:"short_summary,omitempty" gorm:"type:text"`

	Status      CaseStatus `json:"status" gorm:"index;default:'DRAFT'"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	QuizQuestions     []QuizQuestion     `json:"quiz_questions,omitempty" gorm:"foreignKey:CaseStudyID;constraint:OnDelete:CASCADE"`
	EnrichmentSources []EnrichmentSource `json:"enrichment_sources,omitempty" gorm:"foreignKey:CaseStudyID;constraint:OnDelete:CASCADE"`
}

// TableName gibt explizit den Tabellennamen an.
func (CaseStudy) TableName() string {
	return "case_studies"
}

// EnrichmentTopic liefert das Suchthema: Firmenname, sonst Titel.
func (c *CaseStudy) EnrichmentTopic() string {
	if c.CompanyName != "" {
		return c.CompanyName
	}
	return c.Title
}
