package models

import "time"

// Stance ist das kategoriale Sentiment-Label einer IPO-Meinung.
type Stance string

const (
	StanceApply                    Stance = "APPLY"
	StanceAvoid                    Stance = "AVOID"
	StanceNeutralApplyListingGains Stance = "NEUTRAL_APPLY_FOR_LISTING_GAINS"
)

// Valid meldet, ob s ein bekanntes Stance-Label ist.
func (s Stance) Valid() bool {
	switch s {
	case StanceApply, StanceAvoid, StanceNeutralApplyListingGains:
		return true
	}
	return false
}

// IPO repräsentiert einen Börsengang, zu dem Meinungen gesammelt werden.
type IPO struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CompanyName string     `json:"company_name" gorm:"not null;index"`
	Symbol      string     `json:"symbol,omitempty" gorm:"index"`
	PriceBand   string     `json:"price_band,omitempty"`
	OpenDate    *time.Time `json:"open_date,omitempty"`
	CloseDate   *time.Time `json:"close_date,omitempty"`
	About       string     `json:"about,omitempty" gorm:"type:text"`

	Opinions []Opinion `json:"opinions,omitempty" gorm:"foreignKey:IPOID;constraint:OnDelete:CASCADE"`
}

// TableName gibt explizit den Tabellennamen an.
func (IPO) TableName() string {
	return "ipos"
}

// Opinion ist eine einzelne Einschätzung zu einem IPO.
type Opinion struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	IPOID     uint   `json:"ipo_id" gorm:"column:ipo_id;index;not null"`
	Author    string `json:"author,omitempty"`
	Stance    Stance `json:"stance" gorm:"index;not null"`
	Rationale string `json:"rationale,omitempty" gorm:"type:text"`
}

// TableName gibt explizit den Tabellennamen an.
func (Opinion) TableName() string {
	return "opinions"
}
