package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Report is an append-only abuse report filed by one chat partner against the other.
type Report struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ReporterID string    `gorm:"size:64;not null;index" json:"reporter_id"`
	ReportedID string    `gorm:"size:64;not null;index" json:"reported_id"`
	Reason     string    `gorm:"size:50;not null" json:"reason"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (Report) TableName() string {
	return "reports"
}
