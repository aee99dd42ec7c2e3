package models

import "time"

// QuizAttempt speichert einen abgeschlossenen Quiz-Versuch für das Leaderboard.
type QuizAttempt struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	CaseStudyID uint   `json:"case_study_id" gorm:"index;not null"`
	PlayerName  string `json:"player_name" gorm:"index;not null"`
	Score       int    `json:"score" gorm:"not null"`
	Total       int    `json:"total"` // Anzahl Fragen im Versuch
}

// TableName gibt explizit den Tabellennamen an.
func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// LeaderboardEntry ist eine aggregierte Zeile der Rangliste.
type LeaderboardEntry struct {
	PlayerName   string `json:"player_name"`
	TotalScore   int    `json:"total_score"`
	AttemptCount int    `json:"attempt_count"`
}
