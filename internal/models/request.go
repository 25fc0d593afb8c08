// Package models defines the persistence models and error types shared
// across the approval service.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestStatus defines lifecycle states for a copy request.
type RequestStatus string

const (
	// RequestStatusPending indicates the request is awaiting review.
	RequestStatusPending RequestStatus = "pending"
	// RequestStatusComplete indicates the request was closed by a reviewer.
	// Complete is terminal; a request is never re-opened.
	RequestStatusComplete RequestStatus = "complete"
)

// Request is a user-submitted request to copy data between storage zones.
// It owns the approval entities recorded at submission time.
type Request struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Status          RequestStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	SubmittedBy     string        `gorm:"not null" json:"submitted_by"`
	SubmittedAt     time.Time     `json:"submitted_at"`
	DestinationGeid string        `gorm:"not null" json:"destination_geid"`
	SourceGeid      string        `gorm:"not null" json:"source_geid"`
	Note            string        `gorm:"type:text" json:"note"`
	ProjectGeid     string        `gorm:"not null;index" json:"project_geid"`
	DestinationPath string        `json:"destination_path"`
	SourcePath      string        `json:"source_path"`
	ReviewNotes     string        `gorm:"type:text" json:"review_notes"`
	CompletedBy     string        `json:"completed_by"`
	CompletedAt     *time.Time    `json:"completed_at"`

	Entities []Entity `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName keeps the table name used by earlier deployments.
func (Request) TableName() string {
	return "approval_request"
}

// BeforeCreate assigns the row id and submission timestamp.
func (r *Request) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = time.Now().UTC()
	}
	return nil
}
