package services

import (
	"encoding/json"

	"edufinx/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GenerationLog schreibt den append-only Audit-Trail der Pipeline.
// Log-Fehler werden verschluckt und nie an den Aufrufer propagiert.
type GenerationLog struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewGenerationLog erstellt eine neue Instanz des GenerationLog.
func NewGenerationLog(db *gorm.DB, logger *zap.Logger) *GenerationLog {
	return &GenerationLog{DB: db, Logger: logger}
}

// Record hängt genau einen unveränderlichen Eintrag an.
func (g *GenerationLog) Record(caseID uint, event string, input, output map[string]interface{}, errorMessage string) {
	entry := models.GenerationLogEntry{
		CaseStudyID:  caseID,
		Event:        event,
		ErrorMessage: errorMessage,
	}
	if len(input) > 0 {
		if b, err := json.Marshal(input); err == nil {
			entry.Input = b
		}
	}
	if len(output) > 0 {
		if b, err := json.Marshal(output); err == nil {
			entry.Output = b
		}
	}

	if err := g.DB.Create(&entry).Error; err != nil {
		g.Logger.Warn("Generation-Log-Eintrag konnte nicht geschrieben werden",
			zap.Uint("case_study_id", caseID),
			zap.String("event", event),
			zap.Error(err))
	}
}

// Entries liefert alle Einträge eines Cases in Einfüge-Reihenfolge.
func (g *GenerationLog) Entries(caseID uint) ([]models.GenerationLogEntry, error) {
	var entries []models.GenerationLogEntry
	if err := g.DB.Where("case_study_id = ?", caseID).Order("id asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
