package services

import (
	"errors"

	"edufinx/models"

	"gorm.io/gorm"
)

// StanceCount ist eine Zeile der Sentiment-Aufschlüsselung.
type StanceCount struct {
	Stance  models.Stance `json:"stance"`
	Count   int           `json:"count"`
	Percent float64       `json:"percent"`
}

// SentimentBreakdown fasst alle Meinungen zu einem IPO zusammen.
type SentimentBreakdown struct {
	IPOID     uint          `json:"ipo_id"`
	Total     int           `json:"total"`
	Breakdown []StanceCount `json:"breakdown"`
}

// StanceBreakdown aggregiert die Meinungen eines IPO pro Stance.
// Alle drei Labels erscheinen immer, auch mit Count 0.
func StanceBreakdown(db *gorm.DB, ipoID uint) (*SentimentBreakdown, error) {
	var ipo models.IPO
	if err := db.First(&ipo, ipoID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "ipo", ID: ipoID}
		}
		return nil, err
	}

	type row struct {
		Stance models.Stance
		Count  int
	}
	var rows []row
	if err := db.Model(&models.Opinion{}).
		Select("stance, count(*) as count").
		Where("ipo_id = ?", ipoID).
		Group("stance").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := map[models.Stance]int{}
	total := 0
	for _, r := range rows {
		counts[r.Stance] = r.Count
		total += r.Count
	}

	breakdown := make([]StanceCount, 0, 3)
	for _, stance := range []models.Stance{models.StanceApply, models.StanceAvoid, models.StanceNeutralApplyListingGains} {
		entry := StanceCount{Stance: stance, Count: counts[stance]}
		if total > 0 {
			entry.Percent = float64(entry.Count) * 100 / float64(total)
		}
		breakdown = append(breakdown, entry)
	}

	return &SentimentBreakdown{IPOID: ipoID, Total: total, Breakdown: breakdown}, nil
}

// Leaderboard liefert die Rangliste über alle Quiz-Versuche, sortiert nach
// Gesamtpunktzahl absteigend.
func Leaderboard(db *gorm.DB, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []models.LeaderboardEntry
	err := db.Model(&models.QuizAttempt{}).
		Select("player_name, SUM(score) as total_score, COUNT(*) as attempt_count").
		Group("player_name").
		Order("total_score desc, MIN(created_at) asc").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
