package datastore

import (
	"time"
)

// Result values stored in predictions.result.
const (
	ResultPneumonia = "Pneumonia"
	ResultNormal    = "Normal"
)

// User is a registered account. Rows are created at registration and never
// updated or deleted by the web application.
type User struct {
	ID           uint      `gorm:"primaryKey"`
	Username     string    `gorm:"size:80;uniqueIndex;not null"`
	Email        *string   `gorm:"size:200;uniqueIndex"`
	PasswordHash string    `gorm:"size:255;not null"`
	IsAdmin      bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
}

// TableName pins the table name regardless of naming strategy.
func (User) TableName() string { return "users" }

// Prediction is one stored classification outcome. UserID is nil for
// predictions made by anonymous visitors, although those are not
// persisted by the web front.
type Prediction struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     *uint     `gorm:"index"`
	User       *User     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	Filename   string    `gorm:"size:300;not null"`
	Result     string    `gorm:"size:50;not null"`
	Confidence *float64  // percent in [0,100]
	CreatedAt  time.Time `gorm:"index;not null"`
}

func (Prediction) TableName() string { return "predictions" }

// PredictionJSON is the wire representation of a Prediction.
type PredictionJSON struct {
	ID         uint     `json:"id"`
	UserID     *uint    `json:"user_id"`
	Filename   string   `json:"filename"`
	Result     string   `json:"result"`
	Confidence *float64 `json:"confidence"`
	CreatedAt  string   `json:"created_at"`
}

// JSON converts p to its wire representation with an RFC 3339 timestamp.
func (p *Prediction) JSON() PredictionJSON {
	return PredictionJSON{
		ID:         p.ID,
		UserID:     p.UserID,
		Filename:   p.Filename,
		Result:     p.Result,
		Confidence: p.Confidence,
		CreatedAt:  p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ConfidenceValue returns the confidence or 0 when it was not recorded.
func (p *Prediction) ConfidenceValue() float64 {
	if p.Confidence == nil {
		return 0
	}
	return *p.Confidence
}
