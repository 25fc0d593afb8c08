package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EntityType discriminates file and folder rows.
type EntityType string

const (
	// EntityTypeFile marks a reviewable file entity.
	EntityTypeFile EntityType = "file"
	// EntityTypeFolder marks a structural folder entity. Folders carry no
	// review status of their own; review happens on their file descendants.
	EntityTypeFolder EntityType = "folder"
)

// ReviewStatus defines the review states of a file entity.
type ReviewStatus string

const (
	// ReviewStatusPending is the initial state of every file entity.
	ReviewStatusPending ReviewStatus = "pending"
	// ReviewStatusApproved marks a file accepted for copying.
	ReviewStatusApproved ReviewStatus = "approved"
	// ReviewStatusDenied marks a file rejected by a reviewer.
	ReviewStatusDenied ReviewStatus = "denied"
)

// ValidReviewTarget reports whether status is an allowed target for a
// review transition. Only the terminal states may be set.
func ValidReviewTarget(status ReviewStatus) bool {
	return status == ReviewStatusApproved || status == ReviewStatusDenied
}

// Entity is one file or folder tracked for review within a request. The
// parent geid, when set, always references another entity of the same
// request; it mirrors the source folder hierarchy at submission time and is
// unrelated to the node's real-world location.
type Entity struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID    uuid.UUID    `gorm:"type:uuid;not null;index" json:"request_id"`
	EntityGeid   string       `gorm:"not null;index" json:"entity_geid"`
	EntityType   EntityType   `gorm:"type:varchar(20);not null" json:"entity_type"`
	ReviewStatus ReviewStatus `gorm:"type:varchar(20);index" json:"review_status"`
	ReviewedBy   string       `json:"reviewed_by"`
	// ReviewedAt is RFC3339 text rather than a timestamp column to stay
	// compatible with rows written by earlier deployments.
	ReviewedAt string     `json:"reviewed_at"`
	ParentGeid *string    `gorm:"index" json:"parent_geid"`
	CopyStatus string     `gorm:"type:varchar(20)" json:"copy_status"`
	Name       string     `gorm:"not null" json:"name"`
	UploadedBy string     `json:"uploaded_by"`
	DcmID      string     `json:"dcm_id"`
	UploadedAt time.Time  `json:"uploaded_at"`
	FileSize   int64      `json:"file_size"`
}

// TableName keeps the table name used by earlier deployments.
func (Entity) TableName() string {
	return "approval_entity"
}

// BeforeCreate assigns the row id.
func (e *Entity) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// EntityColumns whitelists the entity columns accepted for ordering and
// exact/partial filtering on list queries.
var EntityColumns = map[string]bool{
	"entity_geid":   true,
	"entity_type":   true,
	"review_status": true,
	"reviewed_by":   true,
	"reviewed_at":   true,
	"copy_status":   true,
	"name":          true,
	"uploaded_by":   true,
	"uploaded_at":   true,
	"dcm_id":        true,
	"file_size":     true,
}
