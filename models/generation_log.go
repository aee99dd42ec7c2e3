package models

import (
	"time"

	"gorm.io/datatypes"
)

// GenerationLogEntry ist ein unveränderlicher Audit-Eintrag der Pipeline.
// Einträge werden nur angehängt, nie aktualisiert oder gelöscht.
type GenerationLogEntry struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	CaseStudyID  uint           `json:"case_study_id" gorm:"index;not null"`
	Event        string         `json:"event" gorm:"index;not null"` // z.B. "synthesis:complete"
	Input        datatypes.JSON `json:"input,omitempty" gorm:"type:jsonb"`
	Output       datatypes.JSON `json:"output,omitempty" gorm:"type:jsonb"`
	ErrorMessage string         `json:"error_message,omitempty" gorm:"type:text"`
}

// TableName gibt explizit den Tabellennamen an.
func (GenerationLogEntry) TableName() string {
	return "generation_log_entries"
}
