package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"edufinx/config"
	"edufinx/models"
	"edufinx/providers"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Pipeline treibt einen Case durch die Zustände
// DRAFT -> ENRICHED -> SYNTHESIZED -> PUBLISHED.
// Alle Übergänge auf denselben Case werden über eine Per-Case-Sperre
// serialisiert, damit konkurrierende Aufrufe nicht auf der Storage-Ebene racen.
type Pipeline struct {
	Config      *config.Config
	DB          *gorm.DB
	Logger      *zap.Logger
	Enricher    *Enricher
	Synthesizer *Synthesizer
	GenLog      *GenerationLog

	// OnPublished wird nach erfolgreichem Publish best-effort aufgerufen
	// (z.B. Snapshot-Export). Fehler dort beeinflussen den Publish nie.
	OnPublished func(cs *models.CaseStudy)

	mu        sync.Mutex
	caseLocks map[uint]*sync.Mutex
}

// NewPipeline erstellt eine neue Instanz der Pipeline.
func NewPipeline(cfg *config.Config, db *gorm.DB, logger *zap.Logger, enricher *Enricher, synth *Synthesizer, genLog *GenerationLog) *Pipeline {
	return &Pipeline{
		Config:      cfg,
		DB:          db,
		Logger:      logger,
		Enricher:    enricher,
		Synthesizer: synth,
		GenLog:      genLog,
		caseLocks:   make(map[uint]*sync.Mutex),
	}
}

// lockCase liefert die Sperre für eine Case-ID.
func (p *Pipeline) lockCase(caseID uint) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.caseLocks[caseID]
	if !ok {
		m = &sync.Mutex{}
		p.caseLocks[caseID] = m
	}
	return m
}

// loadCase lädt einen Case oder gibt NotFoundError zurück.
func (p *Pipeline) loadCase(caseID uint, preload ...string) (*models.CaseStudy, error) {
	query := p.DB
	for _, rel := range preload {
		if rel == "QuizQuestions" {
			query = query.Preload(rel, func(db *gorm.DB) *gorm.DB {
				return db.Order("display_order asc")
			})
			continue
		}
		query = query.Preload(rel)
	}
	var cs models.CaseStudy
	if err := query.First(&cs, caseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "case study", ID: caseID}
		}
		return nil, err
	}
	return &cs, nil
}

// advanceStatus setzt den Status nur vorwärts gemäß Übergangstabelle.
// Ein unzulässiger Übergang lässt den Status unverändert; insbesondere
// verlässt kein Übergang PUBLISHED.
func advanceStatus(tx *gorm.DB, cs *models.CaseStudy, target models.CaseStatus) error {
	if cs.Status == target || !cs.Status.CanTransition(target) {
		return nil
	}
	cs.Status = target
	return tx.Model(&models.CaseStudy{}).Where("id = ?", cs.ID).Update("status", target).Error
}

// Enrich sammelt Referenzquellen für einen Case ein und ersetzt den
// gespeicherten Quellensatz vollständig. Wiederholte Anreicherung ist erlaubt.
func (p *Pipeline) Enrich(ctx context.Context, caseID uint) ([]models.EnrichmentSource, models.EnrichmentStats, error) {
	lock := p.lockCase(caseID)
	lock.Lock()
	defer lock.Unlock()

	cs, err := p.loadCase(caseID)
	if err != nil {
		return nil, models.EnrichmentStats{}, err
	}

	query := providers.SearchQuery{
		Topic:       cs.EnrichmentTopic(),
		Ticker:      cs.Ticker,
		SeedSummary: cs.ShortSummary,
		PeriodStart: cs.PeriodStart,
		PeriodEnd:   cs.PeriodEnd,
	}

	start := time.Now()
	sources, stats, err := p.Enricher.Enrich(ctx, query)
	if err != nil {
		p.GenLog.Record(caseID, "enrichment:error",
			map[string]interface{}{"topic": query.Topic},
			nil, err.Error())
		return nil, stats, err
	}

	// Quellensatz atomar ersetzen
	err = p.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("case_study_id = ?", caseID).Delete(&models.EnrichmentSource{}).Error; err != nil {
			return err
		}
		for i := range sources {
			sources[i].ID = 0
			sources[i].CaseStudyID = caseID
			if err := tx.Create(&sources[i]).Error; err != nil {
				return err
			}
		}
		return advanceStatus(tx, cs, models.StatusEnriched)
	})
	if err != nil {
		p.GenLog.Record(caseID, "enrichment:error",
			map[string]interface{}{"topic": query.Topic},
			nil, err.Error())
		return nil, stats, err
	}

	p.GenLog.Record(caseID, "enrichment:complete",
		map[string]interface{}{"topic": query.Topic},
		map[string]interface{}{
			"duration_ms":      time.Since(start).Milliseconds(),
			"fetched":          stats.Fetched,
			"kept":             stats.Kept,
			"failed_providers": stats.FailedProviders,
		}, "")

	p.Logger.Info("Anreicherung für Case abgeschlossen",
		zap.Uint("case_study_id", caseID),
		zap.Int("kept", stats.Kept),
		zap.Duration("duration", time.Since(start)))
	return sources, stats, nil
}

// Synthesize erzeugt Titel, Narrative und Quiz neu und persistiert das
// Ergebnis atomar: Feld-Updates, Löschen der alten Fragen und Einfügen der
// neuen geschehen in einer Transaktion, Teilergebnisse werden nie sichtbar.
func (p *Pipeline) Synthesize(ctx context.Context, caseID uint) (*SynthesisResult, error) {
	lock := p.lockCase(caseID)
	lock.Lock()
	defer lock.Unlock()

	cs, err := p.loadCase(caseID)
	if err != nil {
		return nil, err
	}

	p.GenLog.Record(caseID, "synthesis:start",
		map[string]interface{}{"title": cs.Title}, nil, "")

	result, err := p.Synthesizer.Synthesize(ctx, caseID)
	if err != nil {
		var synthErr *SynthesisError
		if errors.As(err, &synthErr) {
			p.GenLog.Record(caseID, "synthesis:error",
				map[string]interface{}{"code": synthErr.Code},
				synthErr.Meta, synthErr.Error())
		} else {
			p.GenLog.Record(caseID, "synthesis:error", nil, nil, err.Error())
		}
		return nil, err
	}

	err = p.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"refined_title":  result.RefinedTitle,
			"full_narrative": result.FullNarrative,
		}
		if err := tx.Model(&models.CaseStudy{}).Where("id = ?", caseID).Updates(updates).Error; err != nil {
			return err
		}
		if err := replaceQuizSet(tx, caseID, result.Quiz); err != nil {
			return err
		}
		return advanceStatus(tx, cs, models.StatusSynthesized)
	})
	if err != nil {
		p.GenLog.Record(caseID, "synthesis:error", nil, nil, err.Error())
		return nil, err
	}

	p.GenLog.Record(caseID, "synthesis:complete", nil,
		map[string]interface{}{
			"quiz_count":       len(result.Quiz),
			"dropped":          result.Dropped,
			"narrative_length": len(result.FullNarrative),
		}, "")

	p.Logger.Info("Synthese für Case abgeschlossen",
		zap.Uint("case_study_id", caseID),
		zap.Int("quiz_count", len(result.Quiz)))
	return result, nil
}

// UpdateRequest ist ein freier Admin-Edit. Nil-Felder bleiben unberührt.
type UpdateRequest struct {
	RefinedTitle  *string              `json:"refined_title"`
	FullNarrative *string              `json:"full_narrative"`
	Quiz          *[]QuizQuestionDraft `json:"quiz"`
}

// Update überschreibt Titel/Narrative/Quiz manuell, ohne den Status zu
// ändern. Der Quiz-Satz wird wie bei der Synthese vollständig ersetzt;
// Entwürfe ohne exakt 4 Optionen werden stillschweigend übersprungen.
func (p *Pipeline) Update(ctx context.Context, caseID uint, edits UpdateRequest) (*models.CaseStudy, error) {
	lock := p.lockCase(caseID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := p.loadCase(caseID); err != nil {
		return nil, err
	}

	err := p.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{}
		if edits.RefinedTitle != nil {
			updates["refined_title"] = truncateRunes(*edits.RefinedTitle, maxRefinedTitleLen)
		}
		if edits.FullNarrative != nil {
			updates["full_narrative"] = truncateRunes(*edits.FullNarrative, maxNarrativeLen)
		}
		if len(updates) > 0 {
			if err := tx.Model(&models.CaseStudy{}).Where("id = ?", caseID).Updates(updates).Error; err != nil {
				return err
			}
		}
		if edits.Quiz != nil {
			var valid []QuizQuestionDraft
			for _, draft := range *edits.Quiz {
				if !draft.Valid() {
					continue
				}
				applyDraftCaps(&draft)
				valid = append(valid, draft)
			}
			if err := replaceQuizSet(tx, caseID, valid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return p.loadCase(caseID, "QuizQuestions")
}

// Publish ist der einzige terminale Übergang. Vorbedingung: nicht-leere
// Narrative und mindestens eine gespeicherte Quiz-Frage.
func (p *Pipeline) Publish(ctx context.Context, caseID uint) (*models.CaseStudy, error) {
	lock := p.lockCase(caseID)
	lock.Lock()
	defer lock.Unlock()

	cs, err := p.loadCase(caseID, "QuizQuestions")
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cs.FullNarrative) == "" {
		return nil, &IncompletePublishError{Reason: "full narrative is empty"}
	}
	if len(cs.QuizQuestions) == 0 {
		return nil, &IncompletePublishError{Reason: "case has no quiz questions"}
	}

	now := time.Now()
	err = p.DB.Transaction(func(tx *gorm.DB) error {
		if cs.Status != models.StatusPublished {
			if err := tx.Model(&models.CaseStudy{}).Where("id = ?", caseID).
				Updates(map[string]interface{}{"status": models.StatusPublished, "published_at": now}).Error; err != nil {
				return err
			}
			cs.Status = models.StatusPublished
			cs.PublishedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.GenLog.Record(caseID, "publish:complete", nil,
		map[string]interface{}{"quiz_count": len(cs.QuizQuestions)}, "")
	p.Logger.Info("Case veröffentlicht", zap.Uint("case_study_id", caseID), zap.String("slug", cs.Slug))

	if p.OnPublished != nil {
		p.OnPublished(cs)
	}
	return cs, nil
}

// Logs liefert den Audit-Trail eines existierenden Cases in Einfüge-Reihenfolge.
func (p *Pipeline) Logs(caseID uint) ([]models.GenerationLogEntry, error) {
	if _, err := p.loadCase(caseID); err != nil {
		return nil, err
	}
	return p.GenLog.Entries(caseID)
}

// EnrichAllPending reichert alle unveröffentlichten Cases neu an.
// Wird vom Cron-Job aufgerufen; Fehler einzelner Cases brechen den Lauf nicht ab.
func (p *Pipeline) EnrichAllPending(ctx context.Context) (int, error) {
	var cases []models.CaseStudy
	if err := p.DB.Where("status <> ?", models.StatusPublished).Find(&cases).Error; err != nil {
		return 0, err
	}

	refreshed := 0
	for _, cs := range cases {
		if _, _, err := p.Enrich(ctx, cs.ID); err != nil {
			p.Logger.Error("Geplante Anreicherung fehlgeschlagen",
				zap.Uint("case_study_id", cs.ID), zap.Error(err))
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// replaceQuizSet ersetzt den Quiz-Satz eines Cases als eine Einheit:
// alle bestehenden Fragen löschen, den neuen Satz einfügen.
func replaceQuizSet(tx *gorm.DB, caseID uint, drafts []QuizQuestionDraft) error {
	if err := tx.Where("case_study_id = ?", caseID).Delete(&models.QuizQuestion{}).Error; err != nil {
		return err
	}
	for _, draft := range drafts {
		q := models.QuizQuestion{
			CaseStudyID:        caseID,
			Order:              draft.Order,
			Prompt:             draft.Prompt,
			CorrectOptionIndex: draft.CorrectOptionIndex,
			Explanation:        draft.Explanation,
			Category:           draft.Category,
			Difficulty:         draft.Difficulty,
		}
		if err := q.SetOptions(draft.Options); err != nil {
			return err
		}
		if err := tx.Create(&q).Error; err != nil {
			return err
		}
	}
	return nil
}
