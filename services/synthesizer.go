package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"edufinx/config"
	"edufinx/models"
	"edufinx/providers/gentext"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Defensive Längengrenzen gegen übergroße Provider-Ausgaben.
const (
	maxRefinedTitleLen = 200
	maxNarrativeLen    = 12000
	maxPromptLen       = 800
	maxExplanationLen  = 800
	maxCategoryLen     = 40
	maxDifficultyLen   = 20
)

// QuizQuestionDraft ist eine noch nicht persistierte Quiz-Frage.
type QuizQuestionDraft struct {
	Order              int      `json:"order"`
	Prompt             string   `json:"prompt"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_option_index"`
	Explanation        string   `json:"explanation,omitempty"`
	Category           string   `json:"category,omitempty"`
	Difficulty         string   `json:"difficulty,omitempty"`
}

// Valid meldet, ob der Entwurf persistierbar ist: exakt 4 Optionen,
// korrekter Index in [0,3], nicht-leerer Prompt.
func (d *QuizQuestionDraft) Valid() bool {
	return len(d.Options) == 4 &&
		d.CorrectOptionIndex >= 0 && d.CorrectOptionIndex <= 3 &&
		strings.TrimSpace(d.Prompt) != ""
}

// SynthesisResult ist das validierte Ergebnis einer Synthese.
type SynthesisResult struct {
	RefinedTitle  string              `json:"refined_title"`
	FullNarrative string              `json:"full_narrative"`
	Quiz          []QuizQuestionDraft `json:"quiz"`
	Dropped       int                 `json:"-"` // verworfene fehlerhafte Entwürfe
}

// synthesisOutput ist das rohe JSON-Format, das der Text-Service liefern soll.
type synthesisOutput struct {
	RefinedTitle  string              `json:"refined_title"`
	FullNarrative string              `json:"full_narrative"`
	Quiz          []QuizQuestionDraft `json:"quiz"`
}

// Synthesizer kombiniert Seed-Daten und Anreicherungsquellen zu einem
// verfeinerten Titel, einer Langform-Narrative und einem Quiz-Satz.
type Synthesizer struct {
	Config    *config.Config
	DB        *gorm.DB
	Logger    *zap.Logger
	Generator gentext.Generator
}

// NewSynthesizer erstellt eine neue Instanz des Synthesizer.
func NewSynthesizer(cfg *config.Config, db *gorm.DB, logger *zap.Logger, gen gentext.Generator) *Synthesizer {
	return &Synthesizer{Config: cfg, DB: db, Logger: logger, Generator: gen}
}

// Synthesize lädt den Case samt Quellen, ruft den generativen Text-Service
// auf und validiert dessen Ausgabe. Es wird hier nichts persistiert.
func (s *Synthesizer) Synthesize(ctx context.Context, caseID uint) (*SynthesisResult, error) {
	var cs models.CaseStudy
	if err := s.DB.Preload("EnrichmentSources").First(&cs, caseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "case study", ID: caseID}
		}
		return nil, err
	}

	log := s.Logger.With(zap.Uint("case_study_id", caseID))
	log.Info("Starte Synthese", zap.Int("enrichment_sources", len(cs.EnrichmentSources)))

	raw, err := s.Generator.Generate(ctx, synthesisSystemPrompt, buildSynthesisPrompt(&cs))
	if err != nil {
		return nil, &SynthesisError{Code: "provider_failed", Msg: "text generation failed", Err: err}
	}

	var out synthesisOutput
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &out); err != nil {
		return nil, &SynthesisError{
			Code: "parse_failed",
			Msg:  "provider output is not valid JSON",
			Meta: map[string]interface{}{"raw_length": len(raw)},
			Err:  err,
		}
	}

	if strings.TrimSpace(out.FullNarrative) == "" {
		return nil, &SynthesisError{Code: "empty_narrative", Msg: "provider returned an empty narrative"}
	}

	// Fehlerhafte Entwürfe werden verworfen, nicht fatal -
	// außer der Quiz-Satz bleibt dadurch leer.
	result := &SynthesisResult{
		RefinedTitle:  truncateRunes(strings.TrimSpace(out.RefinedTitle), maxRefinedTitleLen),
		FullNarrative: truncateRunes(out.FullNarrative, maxNarrativeLen),
	}
	if result.RefinedTitle == "" {
		result.RefinedTitle = truncateRunes(cs.Title, maxRefinedTitleLen)
	}
	for i := range out.Quiz {
		draft := out.Quiz[i]
		if !draft.Valid() {
			result.Dropped++
			continue
		}
		applyDraftCaps(&draft)
		draft.Order = len(result.Quiz) + 1
		result.Quiz = append(result.Quiz, draft)
	}
	if len(result.Quiz) == 0 {
		return nil, &SynthesisError{
			Code: "empty_quiz",
			Msg:  "no valid quiz questions after validation",
			Meta: map[string]interface{}{"dropped": result.Dropped},
		}
	}

	log.Info("Synthese validiert",
		zap.Int("quiz_count", len(result.Quiz)),
		zap.Int("dropped", result.Dropped),
		zap.Int("narrative_length", len(result.FullNarrative)))
	return result, nil
}

// applyDraftCaps wendet die defensiven Längengrenzen auf einen Entwurf an.
func applyDraftCaps(d *QuizQuestionDraft) {
	d.Prompt = truncateRunes(d.Prompt, maxPromptLen)
	d.Explanation = truncateRunes(d.Explanation, maxExplanationLen)
	d.Category = truncateRunes(d.Category, maxCategoryLen)
	d.Difficulty = truncateRunes(d.Difficulty, maxDifficultyLen)
}

const synthesisSystemPrompt = `You are a financial-literacy editor for a learning platform.
You turn seed material about a company event into a case study for retail investors.

Respond with ONLY a JSON object of this exact shape, no prose, no markdown fences:
{
  "refined_title": "...",
  "full_narrative": "...",
  "quiz": [
    {"prompt": "...", "options": ["a","b","c","d"], "correct_option_index": 0, "explanation": "...", "category": "...", "difficulty": "easy|medium|hard"}
  ]
}

Rules:
- full_narrative: 600-1200 words, plain language, no investment advice.
- quiz: 4-6 questions, each with exactly 4 options and one correct answer.
- explanations teach the underlying concept, not just the answer.`

// buildSynthesisPrompt baut den User-Prompt aus Seed-Daten und Quellen.
func buildSynthesisPrompt(cs *models.CaseStudy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", cs.Title)
	if cs.CompanyName != "" {
		fmt.Fprintf(&b, "Company: %s\n", cs.CompanyName)
	}
	if cs.Ticker != "" {
		fmt.Fprintf(&b, "Ticker: %s\n", cs.Ticker)
	}
	if cs.ShortSummary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", cs.ShortSummary)
	}
	if cs.Narrative != "" {
		fmt.Fprintf(&b, "\nSeed narrative:\n%s\n", cs.Narrative)
	}
	if len(cs.EnrichmentSources) > 0 {
		b.WriteString("\nReference sources:\n")
		for i, src := range cs.EnrichmentSources {
			fmt.Fprintf(&b, "%d. %s - %s\n", i+1, src.Title, src.URL)
			if src.Snippet != "" {
				fmt.Fprintf(&b, "   %s\n", src.Snippet)
			}
		}
	}
	return b.String()
}

// stripCodeFences entfernt umgebende Markdown-Zäune aus der Provider-Antwort.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
