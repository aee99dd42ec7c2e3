package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"edufinx/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionsOnMissingCase(t *testing.T) {
	db := newTestDB(t)
	gen := &fakeGenerator{output: validSynthesisJSON(3, 0)}
	prov := &fakeProvider{name: "fake", sources: []models.EnrichmentSource{{URL: "https://x.test/a"}}}
	p := newTestPipeline(t, db, gen, prov)
	ctx := context.Background()

	var notFound *NotFoundError

	_, _, err := p.Enrich(ctx, 999)
	require.ErrorAs(t, err, &notFound)

	_, err = p.Synthesize(ctx, 999)
	require.ErrorAs(t, err, &notFound)

	_, err = p.Update(ctx, 999, UpdateRequest{})
	require.ErrorAs(t, err, &notFound)

	_, err = p.Publish(ctx, 999)
	require.ErrorAs(t, err, &notFound)

	_, err = p.Logs(999)
	require.ErrorAs(t, err, &notFound)

	// Keine Transition darf etwas geschrieben haben
	var sources, questions, logs int64
	db.Model(&models.EnrichmentSource{}).Count(&sources)
	db.Model(&models.QuizQuestion{}).Count(&questions)
	db.Model(&models.GenerationLogEntry{}).Count(&logs)
	assert.Zero(t, sources)
	assert.Zero(t, questions)
	assert.Zero(t, logs)
	assert.Zero(t, gen.calls)
}

func TestEnrichStoresSourcesAndAdvancesStatus(t *testing.T) {
	db := newTestDB(t)
	provA := &fakeProvider{name: "a", sources: []models.EnrichmentSource{
		{URL: "https://news.test/1", Title: "One", Provider: "a"},
		{URL: "https://news.test/2", Title: "Two", Provider: "a"},
	}}
	provB := &fakeProvider{name: "b", sources: []models.EnrichmentSource{
		{URL: "https://news.test/2", Title: "Two again", Provider: "b"}, // Duplikat
		{URL: "https://news.test/3", Title: "Three", Provider: "b"},
	}}
	p := newTestPipeline(t, db, &fakeGenerator{}, provA, provB)
	cs := seedCase(t, db, &models.CaseStudy{CompanyName: "Zeta Motors", Ticker: "ZETA"})

	sources, stats, err := p.Enrich(context.Background(), cs.ID)
	require.NoError(t, err)
	assert.Len(t, sources, 3)
	assert.Equal(t, 4, stats.Fetched)
	assert.Equal(t, 3, stats.Kept)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 0, stats.FailedProviders)

	var stored []models.EnrichmentSource
	require.NoError(t, db.Where("case_study_id = ?", cs.ID).Find(&stored).Error)
	assert.Len(t, stored, 3)

	var reloaded models.CaseStudy
	require.NoError(t, db.First(&reloaded, cs.ID).Error)
	assert.Equal(t, models.StatusEnriched, reloaded.Status)

	logs, err := p.Logs(cs.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "enrichment:complete", logs[0].Event)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(logs[0].Output, &out))
	assert.EqualValues(t, 3, out["kept"])
}

func TestEnrichReplacesPriorSourceSet(t *testing.T) {
	db := newTestDB(t)
	prov := &fakeProvider{name: "a", sources: []models.EnrichmentSource{
		{URL: "https://news.test/old", Title: "Old", Provider: "a"},
	}}
	p := newTestPipeline(t, db, &fakeGenerator{}, prov)
	cs := seedCase(t, db, nil)

	_, _, err := p.Enrich(context.Background(), cs.ID)
	require.NoError(t, err)

	prov.sources = []models.EnrichmentSource{
		{URL: "https://news.test/new-1", Title: "New 1", Provider: "a"},
		{URL: "https://news.test/new-2", Title: "New 2", Provider: "a"},
	}
	_, _, err = p.Enrich(context.Background(), cs.ID)
	require.NoError(t, err)

	var stored []models.EnrichmentSource
	require.NoError(t, db.Where("case_study_id = ?", cs.ID).Find(&stored).Error)
	require.Len(t, stored, 2)
	for _, s := range stored {
		assert.NotEqual(t, "https://news.test/old", s.URL)
	}
}

func TestEnrichTotalFailureWritesNothing(t *testing.T) {
	db := newTestDB(t)
	prov := &fakeProvider{name: "a", err: fmt.Errorf("upstream down")}
	p := newTestPipeline(t, db, &fakeGenerator{}, prov)
	cs := seedCase(t, db, nil)

	_, _, err := p.Enrich(context.Background(), cs.ID)
	var enrichErr *EnrichmentError
	require.ErrorAs(t, err, &enrichErr)

	var sources int64
	db.Model(&models.EnrichmentSource{}).Where("case_study_id = ?", cs.ID).Count(&sources)
	assert.Zero(t, sources)

	var reloaded models.CaseStudy
	require.NoError(t, db.First(&reloaded, cs.ID).Error)
	assert.Equal(t, models.StatusDraft, reloaded.Status)

	logs, err := p.Logs(cs.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "enrichment:error", logs[0].Event)
	assert.NotEmpty(t, logs[0].ErrorMessage)
}

func TestSynthesizeDropsMalformedDraftsAndPersists(t *testing.T) {
	db := newTestDB(t)
	// 5 Entwürfe vom Provider, einer davon mit nur 3 Optionen
	gen := &fakeGenerator{output: validSynthesisJSON(4, 1)}
	p := newTestPipeline(t, db, gen, &fakeProvider{name: "a"})
	cs := seedCase(t, db, &models.CaseStudy{Narrative: "seed narrative"})

	result, err := p.Synthesize(context.Background(), cs.ID)
	require.NoError(t, err)
	assert.Len(t, result.Quiz, 4)
	assert.Equal(t, 1, result.Dropped)

	var questions []models.QuizQuestion
	require.NoError(t, db.Where("case_study_id = ?", cs.ID).Order("display_order asc").Find(&questions).Error)
	require.Len(t, questions, 4)
	for i, q := range questions {
		assert.Equal(t, i+1, q.Order)
		assert.Len(t, q.OptionList(), 4)
	}

	var reloaded models.CaseStudy
	require.NoError(t, db.First(&reloaded, cs.ID).Error)
	assert.Equal(t, "Zeta Motors: Anatomy of an IPO", reloaded.RefinedTitle)
	assert.Equal(t, "A long narrative about the listing.", reloaded.FullNarrative)
	assert.Equal(t, models.StatusSynthesized, reloaded.Status)

	logs, err := p.Logs(cs.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "synthesis:start", logs[0].Event)
	assert.Equal(t, "synthesis:complete", logs[1].Event)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(logs[1].Output, &out))
	assert.EqualValues(t, 4, out["quiz_count"])
}

func TestSynthesizeAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	gen := &fakeGenerator{output: validSynthesisJSON(0, 3)} // nur fehlerhafte Entwürfe
	p := newTestPipeline(t, db, gen, &fakeProvider{name: "a"})
	cs := seedCase(t, db, &models.CaseStudy{FullNarrative: "existing narrative", RefinedTitle: "existing title"})
	seedQuestion(t, db, cs.ID, 1)
	seedQuestion(t, db, cs.ID, 2)

	_, err := p.Synthesize(context.Background(), cs.ID)
	var synthErr *SynthesisError
	require.ErrorAs(t, err, &synthErr)
	assert.Equal(t, "empty_quiz", synthErr.Code)

	// Narrative und Quiz-Satz müssen unverändert sein
	var reloaded models.CaseStudy
	require.NoError(t, db.First(&reloaded, cs.ID).Error)
	assert.Equal(t, "existing narrative", reloaded.FullNarrative)
	assert.Equal(t, "existing title", reloaded.RefinedTitle)

	var questions int64
	db.Model(&models.QuizQuestion{}).Where("case_study_id = ?", cs.ID).Count(&questions)
	assert.EqualValues(t, 2, questions)

	logs, err := p.Logs(cs.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "synthesis:error", logs[1].Event)
}

func TestSynthesizeProviderFailure(t *testing.T) {
	db := newTestDB(t)
	gen := &fakeGenerator{err: errors.New("model overloaded")}
	p := newTestPipeline(t, db, gen, &fakeProvider{name: "a"})
	cs := seedCase(t, db, nil)

	_, err := p.Synthesize(context.Background(), cs.ID)
	var synthErr *SynthesisError
	require.ErrorAs(t, err, &synthErr)
	assert.Equal(t, "provider_failed", synthErr.Code)

	logs, err := p.Logs(cs.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "synthesis:error", logs[1].Event)
	assert.Contains(t, logs[1].ErrorMessage, "model overloaded")
}

func TestUpdateReplacesQuizSetAndSkipsInvalid(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db, &fakeGenerator{}, &fakeProvider{name: "a"})
	cs := seedCase(t, db, &models.CaseStudy{Status: models.StatusSynthesized})
	seedQuestion(t, db, cs.ID, 1)
	seedQuestion(t, db, cs.ID, 2)

	narrative := "hand-edited narrative"
	quiz := []QuizQuestionDraft{
		{Order: 5, Prompt: "Only survivor", Options: []string{"a", "b", "c", "d"}, CorrectOptionIndex: 2},
		{Order: 6, Prompt: "Too few options", Options: []string{"a", "b", "c"}, CorrectOptionIndex: 0},
		{Order: 7, Prompt: "Bad index", Options: []string{"a", "b", "c", "d"}, CorrectOptionIndex: 4},
	}
	updated, err := p.Update(context.Background(), cs.ID, UpdateRequest{
		FullNarrative: &narrative,
		Quiz:          &quiz,
	})
	require.NoError(t, err)
	assert.Equal(t, "hand-edited narrative", updated.FullNarrative)
	require.Len(t, updated.QuizQuestions, 1)
	assert.Equal(t, 5, updated.QuizQuestions[0].Order)
	assert.Equal(t, "Only survivor", updated.QuizQuestions[0].Prompt)

	// Edit ändert den Status nicht
	assert.Equal(t, models.StatusSynthesized, updated.Status)
}

func TestUpdateWithoutQuizKeepsQuestions(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db, &fakeGenerator{}, &fakeProvider{name: "a"})
	cs := seedCase(t, db, nil)
	seedQuestion(t, db, cs.ID, 1)

	title := "new refined title"
	updated, err := p.Update(context.Background(), cs.ID, UpdateRequest{RefinedTitle: &title})
	require.NoError(t, err)
	assert.Equal(t, "new refined title", updated.RefinedTitle)
	assert.Len(t, updated.QuizQuestions, 1)
}

func TestPublishIncompleteCase(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db, &fakeGenerator{}, &fakeProvider{name: "a"})

	// Fall 1: keine Narrative
	noNarrative := seedCase(t, db, nil)
	seedQuestion(t, db, noNarrative.ID, 1)
	_, err := p.Publish(context.Background(), noNarrative.ID)
	var pubErr *IncompletePublishError
	require.ErrorAs(t, err, &pubErr)

	// Fall 2: Narrative, aber keine Fragen
	noQuiz := seedCase(t, db, &models.CaseStudy{
		Slug:          "no-quiz",
		FullNarrative: "complete narrative",
	})
	_, err = p.Publish(context.Background(), noQuiz.ID)
	require.ErrorAs(t, err, &pubErr)

	// Status beider Cases unverändert
	for _, id := range []uint{noNarrative.ID, noQuiz.ID} {
		var reloaded models.CaseStudy
		require.NoError(t, db.First(&reloaded, id).Error)
		assert.Equal(t, models.StatusDraft, reloaded.Status)
		assert.Nil(t, reloaded.PublishedAt)
	}
}

func TestPublishCompleteCase(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db, &fakeGenerator{}, &fakeProvider{name: "a"})
	cs := seedCase(t, db, &models.CaseStudy{
		FullNarrative: "complete narrative",
		Status:        models.StatusSynthesized,
	})
	seedQuestion(t, db, cs.ID, 1)

	var publishedHook *models.CaseStudy
	p.OnPublished = func(c *models.CaseStudy) { publishedHook = c }

	published, err := p.Publish(context.Background(), cs.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)
	require.NotNil(t, publishedHook)
	assert.Equal(t, cs.ID, publishedHook.ID)

	// Wiederholtes Publish bleibt idempotent
	again, err := p.Publish(context.Background(), cs.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, again.Status)
}

func TestPublishedCaseNeverLeavesPublished(t *testing.T) {
	db := newTestDB(t)
	prov := &fakeProvider{name: "a", sources: []models.EnrichmentSource{
		{URL: "https://news.test/1", Title: "One", Provider: "a"},
	}}
	p := newTestPipeline(t, db, &fakeGenerator{}, prov)
	cs := seedCase(t, db, &models.CaseStudy{FullNarrative: "narrative", Status: models.StatusSynthesized})
	seedQuestion(t, db, cs.ID, 1)

	_, err := p.Publish(context.Background(), cs.ID)
	require.NoError(t, err)

	// Re-Enrichment ist erlaubt, darf den Status aber nicht zurücksetzen
	_, _, err = p.Enrich(context.Background(), cs.ID)
	require.NoError(t, err)

	var reloaded models.CaseStudy
	require.NoError(t, db.First(&reloaded, cs.ID).Error)
	assert.Equal(t, models.StatusPublished, reloaded.Status)
}

func TestLogsReturnedInInsertionOrder(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db, &fakeGenerator{}, &fakeProvider{name: "a"})
	cs := seedCase(t, db, nil)

	genLog := p.GenLog
	genLog.Record(cs.ID, "enrichment:complete", nil, map[string]interface{}{"kept": 2}, "")
	genLog.Record(cs.ID, "synthesis:start", nil, nil, "")
	genLog.Record(cs.ID, "synthesis:complete", nil, map[string]interface{}{"quiz_count": 4}, "")

	logs, err := p.Logs(cs.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "enrichment:complete", logs[0].Event)
	assert.Equal(t, "synthesis:start", logs[1].Event)
	assert.Equal(t, "synthesis:complete", logs[2].Event)
	assert.True(t, logs[0].ID < logs[1].ID && logs[1].ID < logs[2].ID)
}

func TestQuizRoundTrip(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db, &fakeGenerator{}, &fakeProvider{name: "a"})
	cs := seedCase(t, db, nil)
	seedQuestion(t, db, cs.ID, 1)
	seedQuestion(t, db, cs.ID, 2)

	quiz := []QuizQuestionDraft{
		{Order: 1, Prompt: "The only question", Options: []string{"a", "b", "c", "d"}, CorrectOptionIndex: 0},
	}
	_, err := p.Update(context.Background(), cs.ID, UpdateRequest{Quiz: &quiz})
	require.NoError(t, err)

	var questions []models.QuizQuestion
	require.NoError(t, db.Where("case_study_id = ?", cs.ID).Find(&questions).Error)
	require.Len(t, questions, 1)
	assert.Equal(t, 1, questions[0].Order)
	assert.Equal(t, "The only question", questions[0].Prompt)
	assert.Equal(t, []string{"a", "b", "c", "d"}, questions[0].OptionList())
}
