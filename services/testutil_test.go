package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"edufinx/config"
	"edufinx/models"
	"edufinx/providers"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB öffnet eine frische In-Memory-SQLite-Datenbank pro Test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.CaseStudy{},
		&models.QuizQuestion{},
		&models.EnrichmentSource{},
		&models.GenerationLogEntry{},
		&models.IPO{},
		&models.Opinion{},
		&models.QuizAttempt{},
	))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		ProviderTimeoutSec: 5,
		MaxSourcesPerCase:  12,
		GenTextTimeoutSec:  5,
	}
}

// fakeProvider liefert vorgegebene Quellen oder einen Fehler.
type fakeProvider struct {
	name    string
	sources []models.EnrichmentSource
	err     error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(ctx context.Context, q providers.SearchQuery) ([]models.EnrichmentSource, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.EnrichmentSource, len(f.sources))
	copy(out, f.sources)
	return out, nil
}

// fakeGenerator liefert eine vorgegebene Provider-Antwort oder einen Fehler.
type fakeGenerator struct {
	output string
	err    error
	calls  int
}

func (f *fakeGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

// newTestPipeline verdrahtet die Pipeline mit Fakes.
func newTestPipeline(t *testing.T, db *gorm.DB, gen *fakeGenerator, provs ...providers.SearchProvider) *Pipeline {
	t.Helper()
	cfg := testConfig()
	log := zap.NewNop()
	genLog := NewGenerationLog(db, log)
	enricher := NewEnricher(cfg, log, provs)
	synth := NewSynthesizer(cfg, db, log, gen)
	return NewPipeline(cfg, db, log, enricher, synth, genLog)
}

// seedCase legt einen Basis-Case an.
func seedCase(t *testing.T, db *gorm.DB, cs *models.CaseStudy) *models.CaseStudy {
	t.Helper()
	if cs == nil {
		cs = &models.CaseStudy{}
	}
	if cs.Title == "" {
		cs.Title = "Zeta Motors IPO frenzy"
	}
	if cs.Slug == "" {
		cs.Slug = fmt.Sprintf("zeta-motors-%s", strings.ToLower(strings.ReplaceAll(t.Name(), "/", "-")))
	}
	if cs.Status == "" {
		cs.Status = models.StatusDraft
	}
	require.NoError(t, db.Create(cs).Error)
	return cs
}

// seedQuestion hängt eine gültige Frage an einen Case.
func seedQuestion(t *testing.T, db *gorm.DB, caseID uint, order int) *models.QuizQuestion {
	t.Helper()
	q := &models.QuizQuestion{
		CaseStudyID:        caseID,
		Order:              order,
		Prompt:             fmt.Sprintf("Question %d", order),
		CorrectOptionIndex: 1,
		Explanation:        "because",
	}
	require.NoError(t, q.SetOptions([]string{"a", "b", "c", "d"}))
	require.NoError(t, db.Create(q).Error)
	return q
}

// validSynthesisJSON baut eine gültige Generator-Antwort mit n gültigen und
// m fehlerhaften Quiz-Entwürfen (3 statt 4 Optionen).
func validSynthesisJSON(validCount, malformedCount int) string {
	var quiz []string
	for i := 0; i < validCount; i++ {
		quiz = append(quiz, fmt.Sprintf(`{"prompt":"Valid question %d","options":["a","b","c","d"],"correct_option_index":%d,"explanation":"expl","category":"ipo-basics","difficulty":"easy"}`, i+1, i%4))
	}
	for i := 0; i < malformedCount; i++ {
		quiz = append(quiz, fmt.Sprintf(`{"prompt":"Broken question %d","options":["a","b","c"],"correct_option_index":0}`, i+1))
	}
	return fmt.Sprintf(`{"refined_title":"Zeta Motors: Anatomy of an IPO","full_narrative":"A long narrative about the listing.","quiz":[%s]}`, strings.Join(quiz, ","))
}
