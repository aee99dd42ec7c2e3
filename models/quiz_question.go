package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// QuizQuestion gehört zu genau einem CaseStudy. Die Optionen werden als
// JSON-Array gespeichert; jede persistierte Frage hat exakt 4 Optionen.
type QuizQuestion struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CaseStudyID uint `json:"case_study_id" gorm:"index;not null"`

	// Order definiert die Anzeigereihenfolge innerhalb eines Cases.
	Order              int            `json:"order" gorm:"column:display_order;not null"`
	Prompt             string         `json:"prompt" gorm:"type:text;not null"`
	Options            datatypes.JSON `json:"options" gorm:"type:jsonb;not null"`
	CorrectOptionIndex int            `json:"correct_option_index"`
	Explanation        string         `json:"explanation,omitempty" gorm:"type:text"`

	Category   string `json:"category,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (QuizQuestion) TableName() string {
	return "quiz_questions"
}

// OptionList dekodiert die gespeicherten Optionen.
func (q *QuizQuestion) OptionList() []string {
	var opts []string
	_ = json.Unmarshal(q.Options, &opts)
	return opts
}

// SetOptions kodiert die Optionen als JSON-Array.
func (q *QuizQuestion) SetOptions(opts []string) error {
	b, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	q.Options = b
	return nil
}
